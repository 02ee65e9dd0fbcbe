package observability

import "context"

// NoOpTracer discards everything. Used when tracing is disabled.
type NoOpTracer struct{}

func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (t *NoOpTracer) StartTrace(taskID string, _ TraceOptions) TraceContext {
	return TraceContext{TraceID: taskID, TaskID: taskID}
}

func (t *NoOpTracer) StartStep(trace TraceContext, step int, _ SpanOptions) SpanContext {
	return SpanContext{Step: step, TraceID: trace.TraceID}
}

func (t *NoOpTracer) RecordGeneration(SpanContext, GenerationInput) {}

func (t *NoOpTracer) RecordSkipped(SpanContext, string, string) {}

func (t *NoOpTracer) EndStep(SpanContext, string, int64) {}

func (t *NoOpTracer) CompleteTrace(TraceContext, CompleteOptions) {}

func (t *NoOpTracer) Flush(context.Context) error { return nil }

func (t *NoOpTracer) Stop(context.Context) error { return nil }
