package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
)

const defaultWriterTimeout = 30 * time.Second

var (
	ErrWriterStopped = errors.New("writer stopped")
	ErrPanic         = errors.New("task panicked")
)

type writerKey struct{}

const (
	taskPending int32 = iota
	taskRunning
	taskAbandoned
)

type task struct {
	ctx   context.Context
	fn    func(context.Context) error
	state atomic.Int32
	done  chan struct{}
	err   error
}

func (t *task) run(w *Writer) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Writer task panicked")
			t.err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	ctx := context.WithValue(context.WithoutCancel(t.ctx), writerKey{}, w)
	t.err = t.fn(ctx)
}

type writerActor struct {
	w *Writer
}

func (a *writerActor) Receive(c actor.Context) {
	t, ok := c.Message().(*task)
	if !ok {
		return
	}
	if t.state.CompareAndSwap(taskPending, taskRunning) {
		t.run(a.w)
	}
	if c.Sender() != nil {
		c.Respond(struct{}{})
	}
}

// Writer runs every mutation of the game one at a time on a single actor.
// Work submitted from inside a running task runs inline, so handlers may
// call back into the controller without deadlocking.
type Writer struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	timeout time.Duration
	stopped atomic.Bool
}

// NewWriter spawns the writer actor. Callers whose context has no deadline
// give up on a queued task after timeout.
func NewWriter(timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = defaultWriterTimeout
	}
	w := &Writer{system: actor.NewActorSystem(), timeout: timeout}
	props := actor.PropsFromProducer(func() actor.Actor { return &writerActor{w: w} })
	w.pid = w.system.Root.Spawn(props)
	return w
}

// Do runs fn on the writer and returns its error. If ctx ends while the
// task is still queued the task is abandoned and never runs; once started
// it always runs to completion and Do waits for it.
func (w *Writer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if InWriter(ctx) {
		return fn(ctx)
	}
	if w.stopped.Load() {
		return ErrWriterStopped
	}
	t := &task{ctx: ctx, fn: fn, done: make(chan struct{})}
	future := w.system.Root.RequestFuture(w.pid, t, w.timeoutFor(ctx))

	waitErr := make(chan error, 1)
	go func() {
		_, err := future.Result()
		waitErr <- err
	}()

	select {
	case <-t.done:
		return t.err
	case err := <-waitErr:
		if err == nil {
			<-t.done
			return t.err
		}
	case <-ctx.Done():
	}
	if t.state.CompareAndSwap(taskPending, taskAbandoned) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.DeadlineExceeded
	}
	<-t.done
	return t.err
}

// Submit queues fn without waiting for it.
func (w *Writer) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if w.stopped.Load() {
		return ErrWriterStopped
	}
	t := &task{ctx: ctx, fn: func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Msg("Queued writer task failed")
		}
		return nil
	}, done: make(chan struct{})}
	w.system.Root.Send(w.pid, t)
	return nil
}

// Stop refuses new work, lets queued tasks finish and shuts the actor down.
func (w *Writer) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	if err := w.system.Root.PoisonFuture(w.pid).Wait(); err != nil {
		log.Warn().Err(err).Msg("Writer did not drain cleanly")
	}
	w.system.Shutdown()
}

// InWriter reports whether ctx belongs to a task running on a writer.
func InWriter(ctx context.Context) bool {
	_, ok := ctx.Value(writerKey{}).(*Writer)
	return ok
}

func (w *Writer) timeoutFor(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return w.timeout
	}
	remain := time.Until(deadline)
	if remain <= 0 {
		return time.Millisecond
	}
	return remain
}
