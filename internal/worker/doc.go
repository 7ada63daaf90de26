// Package worker runs the fixed pool of goroutines that drive pipeline stages.
//
// Every worker sweeps the same ordered list of stage handles, running whichever
// stage it can lock. Because each handle admits one worker at a time, stages
// never run concurrently with themselves while the pool as a whole keeps every
// CPU busy. Idle workers sleep until a fifo changes or the idle interval
// elapses.
package worker
