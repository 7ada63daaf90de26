package logging

import "testing"

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(0, 1) {
		t.Fatal("first event should log")
	}
	if s.ShouldLog(5, 1) {
		t.Fatal("same bucket should not log")
	}
	if !s.ShouldLog(12, 1) {
		t.Fatal("new bucket should log")
	}
	if !s.ShouldLog(12, 2) {
		t.Fatal("pass change should log")
	}
	if s.ShouldLog(-1, 2) {
		t.Fatal("unknown percent in same pass should not log")
	}
	if !s.ShouldLog(150, 2) {
		t.Fatal("completion should log")
	}
	if s.ShouldLog(100, 2) {
		t.Fatal("clamped completion should not repeat")
	}
}

func TestProgressSamplerDefaultsAndReset(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 5 {
		t.Fatalf("bucketSize = %v", s.bucketSize)
	}
	s.ShouldLog(50, 1)
	s.Reset()
	if !s.ShouldLog(50, 1) {
		t.Fatal("expected log after reset")
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(1, 1) {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()
}
