package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/grizzpector/telemetry"
)

// DeferredRunner runs the slow half of deferred interactions. Tasks run on a context
// derived from the runner's root context, so cancelling the root cancels them, and
// keep the correlation id and trace of the request that started them.
type DeferredRunner struct {
	root context.Context
	wg   sync.WaitGroup

	// OnError receives every task error. It defaults to logging.
	OnError func(ctx context.Context, task string, err error)
}

// NewDeferredRunner creates a runner whose tasks are cancelled with root.
func NewDeferredRunner(root context.Context) *DeferredRunner {
	return &DeferredRunner{root: root, OnError: logTaskError}
}

// Go starts fn in the background. reqCtx is only used to carry request-scoped values.
func (d *DeferredRunner) Go(reqCtx context.Context, task string, fn func(ctx context.Context) error) {
	ctx := telemetry.WithCorrelation(d.root, telemetry.GetCorrelation(reqCtx))
	ctx = trace.ContextWithSpanContext(ctx, trace.SpanContextFromContext(reqCtx))

	if telemetry.DeferredTasksStarted != nil {
		telemetry.DeferredTasksStarted.WithLabelValues(task).Inc()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, span := telemetry.StartSpan(ctx, "deferred", "deferred."+task)
		err := runTask(ctx, fn)
		telemetry.EndSpan(span, err)
		if err == nil {
			return
		}
		if telemetry.DeferredTasksFailed != nil {
			telemetry.DeferredTasksFailed.WithLabelValues(task).Inc()
		}
		if d.OnError != nil {
			d.OnError(ctx, task, err)
		}
	}()
}

func runTask(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deferred task panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until all started tasks finish or ctx is done.
func (d *DeferredRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func logTaskError(ctx context.Context, task string, err error) {
	telemetry.LoggerWithCorr(ctx).Error("deferred interaction task failed",
		slog.String("component", "deferred"),
		slog.String("task", task),
		slog.Any("err", err))
}
