package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("ingest: pool closed")

// TaskError is a failure reported by a detached task.
type TaskError struct {
	Task    string
	Session string
	Err     error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("%s (session %s): %v", e.Task, e.Session, e.Err)
}

func (e TaskError) Unwrap() error { return e.Err }

// Pool runs pipeline stages on a fixed set of workers. Do blocks until the
// stage finishes; Go detaches it and reports failures on Errors.
type Pool struct {
	workers int
	tasks   chan func()
	errs    chan TaskError
	wg      sync.WaitGroup
	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	// mu orders pending.Add in submit before pending.Wait in Close.
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewPool starts a pool with the given number of workers (NumCPU when <= 0).
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), workers*10),
		errs:    make(chan TaskError, 64),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.Or(logger),
	}
	p.start()
	return p
}

func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
		}
	}
}

func (p *Pool) submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.pending.Add(1)
	p.mu.Unlock()

	wrapped := func() {
		defer p.pending.Done()
		task()
	}
	select {
	case <-p.ctx.Done():
		p.pending.Done()
		return ErrPoolClosed
	case p.tasks <- wrapped:
		return nil
	}
}

// Do runs fn on a worker and waits for its result. A panic in fn is
// returned as an error.
func Do[T any](p *Pool, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	err := p.submit(func() {
		var r result
		defer func() {
			if rec := recover(); rec != nil {
				r.err = fmt.Errorf("stage panicked: %v", rec)
			}
			done <- r
		}()
		r.v, r.err = fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	r := <-done
	return r.v, r.err
}

// Go runs fn on a worker without waiting. A non-nil error or panic is sent
// to the supervisor channel; when the channel is full the error is logged
// and dropped.
func (p *Pool) Go(task, session string, fn func() error) error {
	return p.submit(func() {
		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %v", rec)
			}
			if err != nil {
				p.report(TaskError{Task: task, Session: session, Err: err})
			}
		}()
		err = fn()
	})
}

func (p *Pool) report(te TaskError) {
	select {
	case p.errs <- te:
	default:
		p.logger.Error("supervisor channel full, dropping task error",
			"task", te.Task, "session", te.Session, "error", te.Err)
	}
}

// Errors is the supervisor channel for detached task failures. It is
// closed by Close.
func (p *Pool) Errors() <-chan TaskError {
	return p.errs
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close drains queued tasks, stops the workers and closes Errors.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.pending.Wait()
		p.cancel()
		p.wg.Wait()
		close(p.errs)
	})
}
