package volume

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"ripline/internal/buffer"
	"ripline/internal/demux"
	"ripline/internal/errcode"
	"ripline/internal/fifo"
	"ripline/internal/logging"
	"ripline/internal/stage"
	"ripline/internal/title"
)

// Reader streams a title's packs into the demux fifo, once per pass.
type Reader struct {
	Title *title.Title
	Out   *fifo.Fifo
	Gate  *stage.Gate
	// Passes is 1 or 2. Two passes stamp buffers with pass 1 then 2.
	Passes int
	Logger *slog.Logger
}

// Run reads until the title is exhausted, ctx is cancelled or the output
// fifo dies. The output fifo is marked dead on return.
func (r *Reader) Run(ctx context.Context) error {
	defer r.Out.Die()
	logger := logging.NewComponentLogger(r.Logger, "reader")

	passes := r.Passes
	if passes < 1 {
		passes = 1
	}
	for p := 1; p <= passes; p++ {
		pass := 0
		if passes > 1 {
			pass = p
		}
		done, err := r.readPass(ctx, logger, pass, passes)
		if err != nil || done {
			return err
		}
	}
	logger.Debug("title read", logging.String("source", r.Title.Source))
	return nil
}

// readPass reports done when the reader should stop without error.
func (r *Reader) readPass(ctx context.Context, logger *slog.Logger, pass, passes int) (bool, error) {
	f, err := os.Open(r.Title.Source)
	if err != nil {
		return false, errcode.Wrap(errcode.OpenFailed, "reader", "open title", err)
	}
	defer f.Close()

	length := r.Title.Length
	if length <= 0 {
		if info, err := f.Stat(); err == nil {
			length = info.Size()
		}
	}
	logger.Info("reading title",
		logging.String("source", r.Title.Source),
		logging.Int(logging.FieldPass, pass),
		logging.Int64("bytes", length),
	)

	var offset int64
	for {
		if err := r.Gate.Wait(ctx); err != nil {
			return true, nil
		}
		b := buffer.New(demux.PackSize)
		n, err := io.ReadFull(f, b.Data)
		if err != nil {
			b.Release()
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Debug("dropping partial trailing pack", logging.Int("bytes", n))
				return false, nil
			}
			return false, errcode.Wrap(errcode.ReadFailed, "reader", "read pack", err)
		}
		b.Pass = pass
		b.Position = position(offset, length, pass, passes)
		offset += int64(n)

		if err := r.Out.PushWait(ctx, b); err != nil {
			b.Release()
			return true, nil
		}
	}
}

func position(offset, length int64, pass, passes int) float64 {
	frac := 0.0
	if length > 0 {
		frac = float64(offset) / float64(length)
	}
	if frac > 1 {
		frac = 1
	}
	if passes < 2 {
		return frac
	}
	return (float64(pass-1) + frac) / float64(passes)
}
