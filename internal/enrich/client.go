package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/alphapulse/news-radar/internal/observability"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// LLM calls are bounded; an unanswered cluster is retried next
	// cycle.
	requestTimeout = 30 * time.Second

	analyzeTemperature = 0.3
	analyzeMaxTokens   = 1000

	cardTemperature = 0.4
	cardMaxTokens   = 800
)

var (
	ErrEmptyResponse = errors.New("empty completion response")
	ErrRateLimited   = errors.New("llm rate limited")
	ErrAPIFailure    = errors.New("llm API error")
)

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	cardModel  string
	limiter    *rate.Limiter
	log        *zerolog.Logger
}

type ClientConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	CardModel string

	// Delay is the minimum spacing between requests.
	Delay time.Duration
}

func NewClient(cfg ClientConfig, log *zerolog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}

	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}

	if cfg.CardModel == "" {
		cfg.CardModel = cfg.Model
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		cardModel:  cfg.CardModel,
		limiter:    rate.NewLimiter(rate.Every(cfg.Delay), 1),
		log:        log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, model, prompt string, temperature float64, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}); err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := c.httpClient.Do(req)

	observability.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrAPIFailure, resp.StatusCode, errResp.Error.Message)
		}

		return "", fmt.Errorf("%w: status %d", ErrAPIFailure, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if len(chat.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return chat.Choices[0].Message.Content, nil
}

// AnalyzeNews asks the model to rate a story and extract instruments.
// The response is parsed leniently; a malformed response surfaces as
// an error so the cluster stays queued.
func (c *Client) AnalyzeNews(ctx context.Context, input AnalysisInput) (Analysis, error) {
	raw, err := c.complete(ctx, c.model, buildAnalyzePrompt(input), analyzeTemperature, analyzeMaxTokens)
	if err != nil {
		return Analysis{}, err
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		c.log.Warn().Err(err).Str("response", truncate(raw, 300)).Msg("unparseable analysis response")

		return Analysis{}, err
	}

	return analysis, nil
}

// GenerateCard produces the detailed seven-section analytical card. On
// any failure it degrades to a canned low-confidence stub instead of
// failing the caller.
func (c *Client) GenerateCard(ctx context.Context, input CardInput) string {
	raw, err := c.complete(ctx, c.cardModel, buildCardPrompt(input), cardTemperature, cardMaxTokens)
	if err != nil {
		c.log.Warn().Err(err).Int("cluster_id", input.ClusterID).Msg("card generation failed")

		return fallbackCard(input)
	}

	card, err := ParseCard(raw)
	if err != nil {
		c.log.Warn().Err(err).Int("cluster_id", input.ClusterID).Msg("card parse failed")

		return fallbackCard(input)
	}

	return card
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
