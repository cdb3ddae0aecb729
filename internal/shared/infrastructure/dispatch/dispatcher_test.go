package dispatch

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/transport"
	"github.com/stretchr/testify/require"
)

type stubCall struct {
	execute func() (*transport.Response, error)

	mu        sync.Mutex
	completed *transport.Response
	failed    error
	done      chan struct{}
}

func newStubCall(execute func() (*transport.Response, error)) *stubCall {
	return &stubCall{execute: execute, done: make(chan struct{})}
}

func (c *stubCall) Execute() (*transport.Response, error) { return c.execute() }

func (c *stubCall) OnCompletion(response *transport.Response) {
	c.mu.Lock()
	c.completed = response
	c.mu.Unlock()
	close(c.done)
}

func (c *stubCall) OnError(err error) {
	c.mu.Lock()
	c.failed = err
	c.mu.Unlock()
	close(c.done)
}

func (c *stubCall) await(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for call")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestDispatcherRoutesSuccessToOnCompletion(t *testing.T) {
	d := NewDispatcher(2, testLogger())
	t.Cleanup(d.Close)

	call := newStubCall(func() (*transport.Response, error) {
		return &transport.Response{StatusCode: 200}, nil
	})
	d.Enqueue(call)
	call.await(t)

	require.NotNil(t, call.completed)
	require.Equal(t, 200, call.completed.StatusCode)
	require.NoError(t, call.failed)
}

func TestDispatcherRoutesFailureToOnError(t *testing.T) {
	d := NewDispatcher(1, testLogger())
	t.Cleanup(d.Close)

	wantErr := errors.New("connection refused")
	call := newStubCall(func() (*transport.Response, error) {
		return nil, wantErr
	})
	d.Enqueue(call)
	call.await(t)

	require.Nil(t, call.completed)
	require.ErrorIs(t, call.failed, wantErr)
}

func TestDispatcherRunsAllQueuedCalls(t *testing.T) {
	d := NewDispatcher(3, testLogger())
	t.Cleanup(d.Close)

	const calls = 50
	var executed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(calls)
	for i := 0; i < calls; i++ {
		call := newStubCall(func() (*transport.Response, error) {
			executed.Add(1)
			return &transport.Response{StatusCode: 200}, nil
		})
		go func() {
			call.await(t)
			wg.Done()
		}()
		d.Enqueue(call)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for queued calls")
	}
	require.Equal(t, int32(calls), executed.Load())
}

func TestDispatcherZeroWorkersRaisedToOne(t *testing.T) {
	d := NewDispatcher(0, testLogger())
	t.Cleanup(d.Close)

	call := newStubCall(func() (*transport.Response, error) {
		return &transport.Response{StatusCode: 204}, nil
	})
	d.Enqueue(call)
	call.await(t)
	require.NotNil(t, call.completed)
}

func TestDispatcherDropsEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(1, testLogger())
	d.Close()
	require.True(t, d.IsClosed())

	call := newStubCall(func() (*transport.Response, error) {
		t.Error("call must not execute after close")
		return nil, nil
	})
	d.Enqueue(call)

	select {
	case <-call.done:
		t.Fatal("dropped call must never complete")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(2, testLogger())
	d.Close()
	d.Close()
	require.True(t, d.IsClosed())
}
