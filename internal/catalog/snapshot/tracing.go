package snapshot

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("catalog-snapshot")

// TracedKV records a span for every call to the wrapped KV
type TracedKV struct {
	KV
	backend string
}

func WithTracing(kv KV, backend string) *TracedKV {
	return &TracedKV{KV: kv, backend: backend}
}

func (t *TracedKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "snapshot.Get",
		trace.WithAttributes(
			attribute.String("snapshot.backend", t.backend),
			attribute.String("snapshot.key", key),
		),
	)
	defer span.End()

	value, found, err := t.KV.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	span.SetAttributes(
		attribute.Bool("snapshot.found", found),
		attribute.Int("snapshot.bytes", len(value)),
	)
	return value, found, nil
}

func (t *TracedKV) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "snapshot.Put",
		trace.WithAttributes(
			attribute.String("snapshot.backend", t.backend),
			attribute.String("snapshot.key", key),
			attribute.Int("snapshot.bytes", len(value)),
		),
	)
	defer span.End()

	if err := t.KV.Put(ctx, key, value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
