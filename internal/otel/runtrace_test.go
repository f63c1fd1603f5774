package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestRunParent_Empty(t *testing.T) {
	ctx := context.Background()
	got, warnings := RunParent(ctx, "", "00f067aa0ba902b7")
	assert.Equal(t, ctx, got)
	assert.Nil(t, warnings)
}

func TestRunParent_ValidIDs(t *testing.T) {
	ctx, warnings := RunParent(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	assert.Empty(t, warnings)

	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", sc.SpanID().String())
}

func TestRunParent_HashesInvalidTraceID(t *testing.T) {
	ctx, warnings := RunParent(context.Background(), "lab-campaign-42", "")
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	require.Len(t, warnings, 2)
	assert.Equal(t, "lab-campaign-42", warnings[0].Value.AsString())

	// Deterministic: the same label always maps to the same trace.
	again, _ := RunParent(context.Background(), "lab-campaign-42", "")
	assert.Equal(t, sc.TraceID(), trace.SpanContextFromContext(again).TraceID())
	assert.Equal(t, sc.SpanID(), trace.SpanContextFromContext(again).SpanID())
}

func TestRunParent_InvalidParentID(t *testing.T) {
	ctx, warnings := RunParent(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "xyz")
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	require.Len(t, warnings, 2)
	assert.Equal(t, "cellwatch.parent_id.input", string(warnings[0].Key))
}
