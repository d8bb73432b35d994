package persistence

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/grizzpector/telemetry"
)

// instrumented records metrics and spans around another Provider. ErrNotFound is not
// counted as a failure.
type instrumented struct {
	backend string
	next    Provider
}

// Instrument wraps p so every operation is measured under the given backend label.
func Instrument(backend string, p Provider) Provider {
	return &instrumented{backend: backend, next: p}
}

func (i *instrumented) Save(ctx context.Context, key string, value []byte) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "persistence", "persistence.save",
		attribute.String("persistence.backend", i.backend), attribute.String("persistence.key", key))
	defer func() { telemetry.EndSpan(span, err) }()
	start := time.Now()
	err = i.next.Save(ctx, key, value)
	telemetry.RecordPersistence(i.backend, "save", time.Since(start), err)
	return err
}

func (i *instrumented) Load(ctx context.Context, key string) (b []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, "persistence", "persistence.load",
		attribute.String("persistence.backend", i.backend), attribute.String("persistence.key", key))
	start := time.Now()
	b, err = i.next.Load(ctx, key)
	measured := err
	if errors.Is(err, ErrNotFound) {
		measured = nil
		span.SetAttributes(attribute.Bool("persistence.not_found", true))
	}
	telemetry.RecordPersistence(i.backend, "load", time.Since(start), measured)
	telemetry.EndSpan(span, measured)
	return b, err
}

func (i *instrumented) Connect(ctx context.Context) error {
	if c, ok := i.next.(Connector); ok {
		return c.Connect(ctx)
	}
	return nil
}

func (i *instrumented) Close() error {
	if c, ok := i.next.(Connector); ok {
		return c.Close()
	}
	return nil
}

func (i *instrumented) Ping(ctx context.Context) error {
	if p, ok := i.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
