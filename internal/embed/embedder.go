package embed

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// How much of the body participates in the embedding. Titles carry
	// most of the signal; the prefix disambiguates.
	contentPrefixLen = 600

	separator = " [SEP] "

	rateLimiterBurst = 5
)

var (
	ErrEmptyResponse = errors.New("empty embedding response")
	ErrZeroVector    = errors.New("embedding has zero norm")
)

// Embedder maps (title, content) pairs to unit-norm vectors through an
// OpenAI-compatible embeddings endpoint. The same input always yields
// the same vector for a given model.
type Embedder struct {
	client  *openai.Client
	model   string
	dim     int
	limiter *rate.Limiter
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Dim     int
	RPS     int
}

func New(cfg Config) *Embedder {
	if cfg.RPS == 0 {
		cfg.RPS = 1
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		dim:     cfg.Dim,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), rateLimiterBurst),
	}
}

// Model returns the model name recorded alongside each stored vector.
func (e *Embedder) Model() string { return e.model }

// Dim returns the expected vector dimension.
func (e *Embedder) Dim() int { return e.dim }

// Embed returns the L2-normalized embedding of the article, built from
// the title and the first 600 characters of the content.
func (e *Embedder) Embed(ctx context.Context, title, content string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{BuildInput(title, content)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	vector := resp.Data[0].Embedding

	if e.dim > 0 && len(vector) != e.dim {
		return nil, fmt.Errorf("embedding dim %d, want %d", len(vector), e.dim)
	}

	if err := Normalize(vector); err != nil {
		return nil, err
	}

	return vector, nil
}

// BuildInput concatenates the title and a bounded content prefix.
func BuildInput(title, content string) string {
	runes := []rune(content)
	if len(runes) > contentPrefixLen {
		runes = runes[:contentPrefixLen]
	}

	return title + separator + string(runes)
}

// Normalize scales the vector to unit L2 norm in place, so that dot
// product equals cosine similarity.
func Normalize(vector []float32) error {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}

	if sum == 0 {
		return ErrZeroVector
	}

	inv := 1 / math.Sqrt(sum)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) * inv)
	}

	return nil
}
