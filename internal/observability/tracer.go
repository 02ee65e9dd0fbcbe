// Package observability traces episode runs. Each episode maps to one
// trace, each step to a span, and each model role invocation within the
// step (actor, summarizer, verifier, selector, editor) to a generation.
package observability

import "context"

// Tracer records the lifecycle of episodes.
//
// Trace hierarchy:
//
//	Episode (Trace)
//	  └── Step (Span)
//	        ├── actor (Generation)
//	        ├── selector / editor (Generation, when the pipeline uses them)
//	        └── verifier (Generation, or Event when not due)
type Tracer interface {
	StartTrace(taskID string, opts TraceOptions) TraceContext
	StartStep(trace TraceContext, step int, opts SpanOptions) SpanContext
	RecordGeneration(span SpanContext, gen GenerationInput)
	RecordSkipped(span SpanContext, component string, reason string)
	EndStep(span SpanContext, status string, durationMs int64)
	CompleteTrace(trace TraceContext, opts CompleteOptions)
	Flush(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TraceContext holds the context for an active trace (episode level).
type TraceContext struct {
	TraceID  string
	TaskID   string
	Metadata map[string]string
}

// SpanContext holds the context for an active span (step level).
type SpanContext struct {
	SpanID  string
	Step    int
	TraceID string
}

// TraceOptions configures a new trace.
type TraceOptions struct {
	RunID   string
	Preset  string
	Backend string
}

// SpanOptions configures a new step span.
type SpanOptions struct {
	StepBudget int
	Metadata   map[string]string
}

// GenerationInput describes one role invocation to record.
type GenerationInput struct {
	Role         string // "actor", "summarizer", "verifier", "selector", "editor"
	Model        string
	Input        string
	Output       string
	OutputTokens int
	Status       string // "completed" or "error"
	DurationMs   int64
}

// CompleteOptions configures trace completion.
type CompleteOptions struct {
	Status            string // terminal episode status
	Steps             int
	Reward            float64
	TotalOutputTokens int
}
