package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-chat/pkg/logger"

	"go.uber.org/zap"
)

// Task is a best-effort side effect. Its error never reaches the caller that
// scheduled it.
type Task func(ctx context.Context) error

// FailureFunc is told about every task that returned an error or panicked.
type FailureFunc func(name string, err error)

type Runner interface {
	Go(name string, task Task)
}

// Detached runs each task on its own goroutine with a bounded timeout,
// independent of the scheduling request's context.
type Detached struct {
	base      context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	onFailure FailureFunc
	logger    *logger.Logger
	wg        sync.WaitGroup
}

func NewDetached(l *logger.Logger, timeout time.Duration, onFailure FailureFunc) *Detached {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Detached{
		base:      ctx,
		cancel:    cancel,
		timeout:   timeout,
		onFailure: onFailure,
		logger:    l,
	}
}

func (r *Detached) Go(name string, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.base, r.timeout)
		defer cancel()
		if err := run(ctx, task); err != nil {
			r.fail(name, err)
		}
	}()
}

// Shutdown waits for in-flight tasks until ctx expires, then cancels them.
func (r *Detached) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

func (r *Detached) fail(name string, err error) {
	if r.logger != nil {
		r.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
	}
	if r.onFailure != nil {
		r.onFailure(name, err)
	}
}

// Inline runs tasks synchronously on the caller's goroutine. Failures are
// still swallowed and reported through OnFailure.
type Inline struct {
	OnFailure FailureFunc
}

func (r Inline) Go(name string, task Task) {
	if err := run(context.Background(), task); err != nil && r.OnFailure != nil {
		r.OnFailure(name, err)
	}
}

func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task(ctx)
}
