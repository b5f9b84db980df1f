package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracer_DefaultsToNoopBeforeInit(t *testing.T) {
	assert.NotNil(t, Tracer())
	_, span := StartSpan(context.Background(), "noop.span")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestStartSpan_NeverPanicsWithoutInit(t *testing.T) {
	assert.NotPanics(t, func() {
		_, span := StartSpan(context.Background(), "test.span")
		span.End()
	})
}
