package adapter_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

func TestFakeEmbedding(t *testing.T) {
	milk := adapter.FakeEmbedding("Buy milk", 64)
	gt.A(t, milk).Length(64)
	gt.Equal(t, milk, adapter.FakeEmbedding("buy milk!", 64))

	related := adapter.FakeEmbedding("what should I buy", 64)
	unrelated := adapter.FakeEmbedding("dentist appointment tuesday", 64)
	gt.True(t, cosine(milk, related) > cosine(milk, unrelated))

	empty := adapter.FakeEmbedding("", 8)
	gt.A(t, empty).Length(8)
}

func TestGeminiMockRecordsCalls(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.FunctionCallResponse(&genai.FunctionCall{Name: "read_note", Args: map[string]any{"query": "milk"}}), nil
		},
	}

	contents := []*genai.Content{genai.NewContentFromText("hello", genai.RoleUser)}
	resp, err := mock.GenerateContent(context.Background(), contents, nil)
	gt.NoError(t, err)
	gt.A(t, resp.FunctionCalls()).Length(1)

	calls := mock.Calls()
	gt.A(t, calls).Length(1)
	gt.A(t, calls[0].Contents).Length(1)

	_, err = (&adapter.GeminiMock{}).GenerateContent(context.Background(), nil, nil)
	gt.Error(t, err)
}
