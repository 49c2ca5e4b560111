// Package queue provides a reusable asynchronous, non-blocking bounded
// queue that funnels writes through a single goroutine. It is the
// generic form of go-ampio-server's internal/transport.AsyncTx
// (originally specialized to can.Frame); here it is parameterized over
// any payload type. VideoLink's JPEG relay is its only user; the serial
// Actuator writes synchronously and does not go through it.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send once Close has been called.
var ErrClosed = errors.New("queue: closed")

// Hooks customize AsyncTx behavior without each caller re-implementing
// the goroutine.
type Hooks[T any] struct {
	// OnError is called when send returns a non-nil error (item not delivered).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the buffer is full; its returned error (if
	// any) is returned from Send. If nil, overflow is silent.
	OnDrop func() error
}

// AsyncTx is a single-consumer asynchronous sender: producers enqueue
// via Send, which never blocks — if the internal buffer is full the item
// is dropped and OnDrop is invoked. This matches spec §4.4's video
// backpressure policy (drop, never block) and is reused by any other
// link that wants the same non-blocking discipline.
type AsyncTx[T any] struct {
	mu     sync.Mutex
	ch     chan T
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(T) error
	hooks  Hooks[T]
	closed atomic.Bool
}

// New constructs an AsyncTx with a buffered channel of size buf, whose
// single consumer goroutine calls send for each enqueued item.
func New[T any](parent context.Context, buf int, send func(T) error, hooks Hooks[T]) *AsyncTx[T] {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ch:     make(chan T, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer a.wg.Done()
	for {
		select {
		case item, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(item); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Send enqueues item for asynchronous delivery. It never blocks: if the
// buffer is full, the item is dropped and OnDrop's error (or nil) is
// returned. After Close, Send returns ErrClosed.
func (a *AsyncTx[T]) Send(item T) error {
	if a.closed.Load() {
		return ErrClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrClosed
	}
	select {
	case a.ch <- item:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the consumer goroutine and waits for it to exit. Safe to
// call multiple times.
func (a *AsyncTx[T]) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
