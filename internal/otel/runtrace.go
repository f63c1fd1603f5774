package otel

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunParent returns ctx carrying a remote parent for the run span, so every span of the run
// lands in the trace named by traceID.
//
// A traceID that is not 32 hex characters is hashed with SHA-256 into one. A parentID that is
// not 16 hex characters is replaced by a span id derived from the trace id. Both substitutions
// are reported as attributes to set on the run span. An empty traceID leaves ctx untouched.
func RunParent(ctx context.Context, traceID, parentID string) (context.Context, []attribute.KeyValue) {
	if traceID == "" {
		return ctx, nil
	}

	var warnings []attribute.KeyValue

	tid, err := trace.TraceIDFromHex(traceID)
	if len(traceID) != 32 || err != nil {
		hash := sha256.Sum256([]byte(traceID))
		copy(tid[:], hash[:16])
		warnings = append(warnings,
			attribute.String("cellwatch.trace_id.input", traceID),
			attribute.String("cellwatch.trace_id.warning",
				fmt.Sprintf("%q is not a valid 32-char hex trace ID, used SHA-256 hash instead", traceID)),
		)
	}

	sid, err := trace.SpanIDFromHex(parentID)
	if len(parentID) != 16 || err != nil {
		hash := sha256.Sum256(tid[:])
		copy(sid[:], hash[:8])
		if parentID != "" {
			warnings = append(warnings,
				attribute.String("cellwatch.parent_id.input", parentID),
				attribute.String("cellwatch.parent_id.warning",
					fmt.Sprintf("%q is not a valid 16-char hex span ID, derived one from the trace ID", parentID)),
			)
		}
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc), warnings
}
