package adapter

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// GeminiMock is a Gemini implementation driven by function fields. Every
// GenerateContent call is recorded so tests can inspect what the model saw.
type GeminiMock struct {
	GenerateContentFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbeddingFunc       func(ctx context.Context, text string, dimensionality int) ([]float32, error)

	mu    sync.Mutex
	calls []*GenerateCall
}

// GenerateCall is one recorded GenerateContent invocation
type GenerateCall struct {
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

var _ Gemini = (*GeminiMock)(nil)

func (m *GeminiMock) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, &GenerateCall{Contents: contents, Config: config})
	m.mu.Unlock()

	if m.GenerateContentFunc == nil {
		return nil, goerr.New("GenerateContentFunc is not set")
	}
	return m.GenerateContentFunc(ctx, contents, config)
}

func (m *GeminiMock) Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error) {
	if m.EmbeddingFunc == nil {
		return FakeEmbedding(text, dimensionality), nil
	}
	return m.EmbeddingFunc(ctx, text, dimensionality)
}

// Calls returns recorded GenerateContent calls
func (m *GeminiMock) Calls() []*GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GenerateCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// TextResponse builds a model response holding a single text part
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

// FunctionCallResponse builds a model response requesting the given calls
func FunctionCallResponse(calls ...*genai.FunctionCall) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(calls))
	for _, fc := range calls {
		parts = append(parts, &genai.Part{FunctionCall: fc})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: parts,
				},
			},
		},
	}
}

// FakeEmbedding returns a deterministic bag-of-words vector. Texts sharing
// words get a higher cosine similarity, which is enough for local runs and
// tests without an embedding model.
func FakeEmbedding(text string, dimensionality int) []float32 {
	if dimensionality <= 0 {
		dimensionality = 64
	}
	vec := make([]float32, dimensionality)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(dimensionality)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
