package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andywolf/crowdplay/internal/events"
)

func newShutdownController() *Controller {
	return &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}
}

func TestGracefulShutdown_FlushLogs(t *testing.T) {
	c := newShutdownController()

	flushed := false
	c.SetLogFlushFunc(func() error {
		flushed = true
		return nil
	})

	c.gracefulShutdown()

	if !flushed {
		t.Error("expected log flush to be called during shutdown")
	}
}

func TestGracefulShutdown_FlushLogsWithError(t *testing.T) {
	c := newShutdownController()
	c.SetLogFlushFunc(func() error {
		return errors.New("flush error")
	})

	// Should not panic even if flush returns error
	c.gracefulShutdown()
}

func TestGracefulShutdown_FlushLogsTimeout(t *testing.T) {
	c := newShutdownController()

	release := make(chan struct{})
	c.SetLogFlushFunc(func() error {
		<-release
		return nil
	})

	start := time.Now()
	c.gracefulShutdown()
	elapsed := time.Since(start)
	close(release)

	if elapsed > LogFlushTimeout+2*time.Second {
		t.Errorf("shutdown took %v, expected to timeout within %v", elapsed, LogFlushTimeout+2*time.Second)
	}
}

func TestGracefulShutdown_RunsHooksInOrder(t *testing.T) {
	c := newShutdownController()

	var order []int
	for i := 1; i <= 3; i++ {
		n := i
		c.AddShutdownHook(func(ctx context.Context) error {
			order = append(order, n)
			return nil
		})
	}

	c.gracefulShutdown()

	if len(order) != 3 {
		t.Fatalf("expected 3 hooks to run, got %d", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("hook %d ran in position %d", v, i)
		}
	}
}

func TestGracefulShutdown_HookError(t *testing.T) {
	c := newShutdownController()

	hookCalled := false
	c.AddShutdownHook(func(ctx context.Context) error {
		return errors.New("hook error")
	})
	c.AddShutdownHook(func(ctx context.Context) error {
		hookCalled = true
		return nil
	})

	c.gracefulShutdown()

	if !hookCalled {
		t.Error("second hook should still be called after first hook error")
	}
}

// closeCounter is a sink that counts Close calls.
type closeCounter struct {
	events.Recorder
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestGracefulShutdown_ClosesSinksAndSecrets(t *testing.T) {
	sink := &closeCounter{}
	secrets := &closingFetcher{}
	c := newShutdownController()
	c.sinks = []events.Sink{sink}
	c.secretManager = secrets

	c.gracefulShutdown()
	c.gracefulShutdown()

	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
	if !secrets.closed {
		t.Error("secret manager not closed")
	}
}

type closingFetcher struct {
	closed bool
}

func (f *closingFetcher) FetchSecret(context.Context, string) (string, error) {
	return "", errors.New("unused")
}

func (f *closingFetcher) Close() error {
	f.closed = true
	return nil
}

func TestGracefulShutdown_OnlyRunsOnce(t *testing.T) {
	c := newShutdownController()

	var callCount int32
	c.SetLogFlushFunc(func() error {
		atomic.AddInt32(&callCount, 1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.gracefulShutdown()
		}()
	}
	wg.Wait()

	if count := atomic.LoadInt32(&callCount); count != 1 {
		t.Errorf("expected flush to be called exactly once, got %d", count)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() channel not closed")
	}
}
