package ops

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
)

var errClosed = stderrors.New("coordinator is closed")

type job struct {
	run  func() error
	done chan error
}

// writer runs persistence jobs one at a time in submission order.
type writer struct {
	jobs chan *job
	once sync.Once
	wg   sync.WaitGroup
}

func newWriter() *writer {
	w := &writer{jobs: make(chan *job, 64)}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for j := range w.jobs {
			j.done <- j.run()
		}
	}()
	return w
}

func (w *writer) submit(run func() error) <-chan error {
	j := &job{run: run, done: make(chan error, 1)}
	w.jobs <- j
	return j.done
}

// close drains queued jobs and stops the writer.
func (w *writer) close() {
	w.once.Do(func() {
		close(w.jobs)
	})
	w.wg.Wait()
}

// persist runs a write, retrying transient failures with exponential
// backoff. An ambiguous commit is never retried.
func (c *Coordinator) persist(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.Initial
	b.MaxInterval = c.retry.Max

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		err = classify(op, err)
		if errors.KindOf(err) != errors.KindTransient || store.IsCommitUnknown(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("transient persistence failure, retrying",
				"op", op, "attempt", attempt, "next", next, "error", err)
		}),
	)
	return err
}

// read runs a store query under the same retry policy as writes.
func (c *Coordinator) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return c.persist(ctx, op, fn)
}

// classify converts anything the store let through into the error taxonomy.
func classify(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return store.Classify(op, err)
}
