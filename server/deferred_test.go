package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/grizzpector/telemetry"
)

func TestDeferredRunnerReportsErrors(t *testing.T) {
	r := NewDeferredRunner(context.Background())
	var mu sync.Mutex
	got := map[string]error{}
	r.OnError = func(ctx context.Context, task string, err error) {
		mu.Lock()
		defer mu.Unlock()
		got[task] = err
	}

	boom := errors.New("boom")
	r.Go(context.Background(), "ok", func(context.Context) error { return nil })
	r.Go(context.Background(), "fails", func(context.Context) error { return boom })
	r.Go(context.Background(), "panics", func(context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("errors = %v, want 2", got)
	}
	if !errors.Is(got["fails"], boom) {
		t.Errorf("fails error = %v", got["fails"])
	}
	if got["panics"] == nil {
		t.Error("panic not reported")
	}
}

func TestDeferredRunnerCarriesCorrelation(t *testing.T) {
	r := NewDeferredRunner(context.Background())
	reqCtx, cancelReq := context.WithCancel(telemetry.WithCorrelation(context.Background(), "corr-9"))

	seen := make(chan string, 1)
	alive := make(chan error, 1)
	start := make(chan struct{})
	r.Go(reqCtx, "corr", func(ctx context.Context) error {
		<-start
		seen <- telemetry.GetCorrelation(ctx)
		alive <- ctx.Err()
		return nil
	})
	// The request finishing must not cancel the task.
	cancelReq()
	close(start)

	if got := <-seen; got != "corr-9" {
		t.Errorf("correlation = %q, want corr-9", got)
	}
	if err := <-alive; err != nil {
		t.Errorf("task context cancelled with request: %v", err)
	}
	_ = r.Wait(context.Background())
}

func TestDeferredRunnerCancelledWithRoot(t *testing.T) {
	root, cancel := context.WithCancel(context.Background())
	r := NewDeferredRunner(root)
	r.OnError = func(context.Context, string, error) {}

	started := make(chan struct{})
	r.Go(context.Background(), "blocked", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestDeferredRunnerWaitTimeout(t *testing.T) {
	r := NewDeferredRunner(context.Background())
	release := make(chan struct{})
	defer close(release)
	r.Go(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want deadline exceeded", err)
	}
}
