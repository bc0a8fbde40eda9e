package activities

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/otelhelper"
)

// TracingExecutor decorates an executor with one span per activity
// execution. Replayed steps never reach the executor, so spans reflect
// actual work only.
type TracingExecutor struct {
	tracer trace.Tracer
	inner  orchestrator.ActivityExecutor
}

func NewTracingExecutor(tracer trace.Tracer, inner orchestrator.ActivityExecutor) *TracingExecutor {
	return &TracingExecutor{tracer: tracer, inner: inner}
}

func (t *TracingExecutor) Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "activity."+name,
		attribute.String(otelhelper.ActivityNameKey, name))
	defer span.End()

	result, err := t.inner.Execute(ctx, name, input)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.ActivityNameKey, name))
	}

	return result, err
}
