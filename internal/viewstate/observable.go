// Package viewstate holds the render state of the session and expense screens.
// Each container is a single-writer state updated from gateway outcomes and
// observed through conflated watch channels.
package viewstate

import (
	"context"
	"sync"
)

// observable fans the latest value out to watchers. A slow watcher only ever
// sees the most recent value.
type observable[T any] struct {
	mu       sync.Mutex
	watchers map[chan T]struct{}
	done     chan struct{}
	closed   bool
}

// doneLocked returns the channel closed by closeAll. Callers hold mu.
func (o *observable[T]) doneLocked() chan struct{} {
	if o.done == nil {
		o.done = make(chan struct{})
	}
	return o.done
}

// watch returns a channel holding current, then every later value. It is
// closed when ctx ends or the observable is closed.
func (o *observable[T]) watch(ctx context.Context, current T) <-chan T {
	ch := make(chan T, 1)
	ch <- current

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch
	}
	if o.watchers == nil {
		o.watchers = make(map[chan T]struct{})
	}
	o.watchers[ch] = struct{}{}
	done := o.doneLocked()
	o.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			o.drop(ch)
		case <-done:
		}
	}()
	return ch
}

func (o *observable[T]) drop(ch chan T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.watchers[ch]; ok {
		delete(o.watchers, ch)
		close(ch)
	}
}

func (o *observable[T]) publish(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for ch := range o.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// closeAll ends every watch channel and releases their goroutines. Later
// watches get an already closed channel.
func (o *observable[T]) closeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.doneLocked())
	for ch := range o.watchers {
		delete(o.watchers, ch)
		close(ch)
	}
}
