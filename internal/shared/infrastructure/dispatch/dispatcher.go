// Package dispatch runs asynchronous backend calls on a small worker pool.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/transport"
)

// AsyncCall is one unit of backend work. Execute runs on a worker goroutine;
// exactly one of OnCompletion and OnError is invoked afterwards, on that
// same goroutine.
type AsyncCall interface {
	Execute() (*transport.Response, error)
	OnCompletion(response *transport.Response)
	OnError(err error)
}

// Dispatcher executes submitted calls on a fixed pool of workers over an
// unbounded FIFO queue. Closing is fire-and-forget: queued calls that have
// not started are dropped and later enqueues are silently ignored, but
// in-flight calls run to completion.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []AsyncCall
	closed bool
}

// NewDispatcher creates a dispatcher with the given number of workers.
// Worker counts below one are raised to one.
func NewDispatcher(workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{logger: logger}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Enqueue submits a call for execution. A no-op after Close.
func (d *Dispatcher) Enqueue(call AsyncCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Debug("dispatcher closed, dropping call")
		return
	}
	d.queue = append(d.queue, call)
	d.cond.Signal()
}

// Close transitions the dispatcher to closed and drops queued calls.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.queue = nil
	d.cond.Broadcast()
}

// IsClosed reports whether Close has been called.
func (d *Dispatcher) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) work() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		call := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		response, err := call.Execute()
		if err != nil {
			call.OnError(err)
			continue
		}
		call.OnCompletion(response)
	}
}
