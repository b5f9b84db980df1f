package llmadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/llm"
	"github.com/renegade-studio/matrix/internal/memory"
	"github.com/renegade-studio/matrix/internal/protocol"
	"github.com/renegade-studio/matrix/internal/reflection"
	"github.com/renegade-studio/matrix/internal/vectorstore"
)

// fixedProvider always returns the same text, regardless of the
// messages it was handed, which is all DirectGenerate-driven adapters
// need from a provider in a test.
type fixedProvider struct {
	text string
	err  error
}

func (f *fixedProvider) Generate(_ context.Context, _ []*protocol.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text}, nil
}
func (f *fixedProvider) ModelName() string    { return "fixed" }
func (f *fixedProvider) MaxTokens() int       { return 512 }
func (f *fixedProvider) Temperature() float64 { return 0 }
func (f *fixedProvider) Close() error         { return nil }

func newService(text string) *llm.Service {
	return llm.NewService(&fixedProvider{text: text}, "openai", nil, nil, nil, 1)
}

func TestDecisionAdapter_Decide(t *testing.T) {
	adapter := &DecisionAdapter{Service: newService(`{"operation":"ADD","confidence":0.9}`)}
	similar := []vectorstore.SearchResult{{ID: "m1", Score: 0.8, Content: "older fact"}}

	decision, err := adapter.Decide(context.Background(), "the sky is blue", similar, map[string]any{"sessionId": "s1"})
	require.NoError(t, err)
	assert.Equal(t, memory.OpAdd, decision.Operation)
	assert.InDelta(t, 0.9, decision.Confidence, 0.0001)
}

func TestDecisionAdapter_NoServiceConfigured(t *testing.T) {
	adapter := &DecisionAdapter{}
	_, err := adapter.Decide(context.Background(), "fact", nil, nil)
	assert.Error(t, err)
}

func TestDetector_Detect(t *testing.T) {
	detector := &Detector{Service: newService(`{"containsReasoning":true,"confidence":0.75}`)}
	found, confidence, err := detector.Detect(context.Background(), "first I did X, then Y")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 0.75, confidence, 0.0001)
}

func TestDetector_InvalidJSON(t *testing.T) {
	detector := &Detector{Service: newService("not json")}
	_, _, err := detector.Detect(context.Background(), "x")
	assert.Error(t, err)
}

func TestExtractor_ParsesNumberedSteps(t *testing.T) {
	extractor := &Extractor{Service: newService("1. Gathered requirements\n2. Wrote the plan\n3) Executed it\n")}
	steps, err := extractor.Extract(context.Background(), "some reasoning")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0].Index)
	assert.Equal(t, "Gathered requirements", steps[0].Description)
	assert.Equal(t, 3, steps[2].Index)
	assert.Equal(t, "Executed it", steps[2].Description)
}

func TestExtractor_EmptyResponseYieldsNoSteps(t *testing.T) {
	extractor := &Extractor{Service: newService("")}
	steps, err := extractor.Extract(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestEvaluator_Evaluate(t *testing.T) {
	evaluator := &Evaluator{Service: newService(`{"qualityScore":0.6,"shouldStore":true,"issues":["vague"],"suggestions":["be specific"]}`)}
	result, err := evaluator.Evaluate(context.Background(), []reflection.ReasoningStep{{Index: 1, Description: "step one"}})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, result.QualityScore, 0.0001)
	assert.True(t, result.ShouldStore)
	assert.Equal(t, []string{"vague"}, result.Issues)
}
