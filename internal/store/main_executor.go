package store

import "sync"

// MainExecutor marshals work onto the goroutine that owns the provider's
// purchase UI. The provider mandates that flow launches happen there.
type MainExecutor interface {
	Execute(fn func())
}

// SerialExecutor runs submitted functions one at a time on a dedicated
// goroutine, in submission order.
type SerialExecutor struct {
	jobs chan func()
	stop sync.Once
}

// NewSerialExecutor creates and starts a serial executor.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{jobs: make(chan func(), 16)}
	go func() {
		for fn := range e.jobs {
			fn()
		}
	}()
	return e
}

// Execute submits a function for ordered execution. Execute must not be
// called after Stop.
func (e *SerialExecutor) Execute(fn func()) {
	e.jobs <- fn
}

// Stop drains already submitted work and ends the executor goroutine.
func (e *SerialExecutor) Stop() {
	e.stop.Do(func() { close(e.jobs) })
}

// ExecutorFunc adapts a function to the MainExecutor interface.
type ExecutorFunc func(fn func())

// Execute calls the adapted function.
func (f ExecutorFunc) Execute(fn func()) { f(fn) }
