package adapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerConfig configures the circuit breaker in front of the gateway
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is allowed
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while the circuit is closed
	Interval time.Duration `yaml:"interval"`
}

// GeminiBreaker wraps a Gemini client with circuit breaker protection. Calls
// rejected by an open circuit fail with ErrTagModelUnavailable.
type GeminiBreaker struct {
	inner    Gemini
	generate *gobreaker.CircuitBreaker[*genai.GenerateContentResponse]
	embed    *gobreaker.CircuitBreaker[[]float32]
}

var _ Gemini = (*GeminiBreaker)(nil)

func NewGeminiBreaker(inner Gemini, cfg BreakerConfig) *GeminiBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}

	return &GeminiBreaker{
		inner:    inner,
		generate: gobreaker.NewCircuitBreaker[*genai.GenerateContentResponse](breakerSettings("gemini:generate", cfg)),
		embed:    gobreaker.NewCircuitBreaker[[]float32](breakerSettings("gemini:embed", cfg)),
	}
}

func breakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Default().Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// caller side cancellation says nothing about the health of the model
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

func (b *GeminiBreaker) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := b.generate.Execute(func() (*genai.GenerateContentResponse, error) {
		return b.inner.GenerateContent(ctx, contents, config)
	})
	if err != nil {
		return nil, breakerError(err, "generate content")
	}
	return resp, nil
}

func (b *GeminiBreaker) Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error) {
	resp, err := b.embed.Execute(func() ([]float32, error) {
		return b.inner.Embedding(ctx, text, dimensionality)
	})
	if err != nil {
		return nil, breakerError(err, "embedding")
	}
	return resp, nil
}

// State returns the state of the generation circuit
func (b *GeminiBreaker) State() gobreaker.State {
	return b.generate.State()
}

func breakerError(err error, op string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return goerr.Wrap(err, "gemini circuit open", goerr.V("op", op), goerr.T(model.ErrTagModelUnavailable))
	}
	return err
}
