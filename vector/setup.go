package vector

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// gate is a one-shot completion signal for asynchronous store setup. Every
// operation waits on it before touching the database.
type gate struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newGate() *gate {
	return &gate{done: make(chan struct{})}
}

// openGate returns a gate that is already complete.
func openGate() *gate {
	g := newGate()
	g.finish(nil)
	return g
}

// start runs fn in its own goroutine and completes the gate with its result.
func (g *gate) start(fn func() error) {
	go func() {
		g.finish(fn())
	}()
}

func (g *gate) finish(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// wait blocks until setup finished or ctx is done. Setup is best-effort, so
// its error is not returned here; see result.
func (g *gate) wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// result blocks until setup finished and returns its error.
func (g *gate) result() error {
	<-g.done
	return g.err
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger.With(slog.String("component", component))
}
