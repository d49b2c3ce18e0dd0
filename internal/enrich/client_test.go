package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()

	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	logger := zerolog.Nop()

	c := NewClient(ClientConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Model:    "deepseek/deepseek-chat",
		Delay:    time.Millisecond,
	}, &logger)

	return c, srv
}

func TestClientAnalyzeNews(t *testing.T) {
	var gotAuth string

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "deepseek/deepseek-chat", req.Model)
		require.InDelta(t, analyzeTemperature, req.Temperature, 1e-9)
		require.Contains(t, req.Messages[0].Content, "HEADLINE: Fed hikes rates")

		chatReply(t, w, `{"hotness": 0.72, "tickers": ["USD"], "reasoning": "policy move", "headline_en": "Fed hikes rates", "content_en": "The Fed raised rates."}`)
	})
	defer srv.Close()

	got, err := c.AnalyzeNews(context.Background(), AnalysisInput{
		Headline:    "Fed hikes rates",
		Content:     "The Federal Reserve raised rates.",
		RuleHotness: 0.6,
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer test-key", gotAuth)
	require.InDelta(t, 0.72, got.Hotness, 1e-6)
	require.Equal(t, []string{"USD"}, got.Tickers)
}

func TestClientAnalyzeNewsMalformed(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		chatReply(t, w, "I cannot answer in JSON today.")
	})
	defer srv.Close()

	_, err := c.AnalyzeNews(context.Background(), AnalysisInput{Headline: "x", Content: "y"})
	require.ErrorIs(t, err, errNoJSONObject)
}

func TestClientRateLimited(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.AnalyzeNews(context.Background(), AnalysisInput{Headline: "x", Content: "y"})
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestClientAPIError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	})
	defer srv.Close()

	_, err := c.AnalyzeNews(context.Background(), AnalysisInput{Headline: "x", Content: "y"})
	require.ErrorIs(t, err, ErrAPIFailure)
	require.ErrorContains(t, err, "invalid api key")
}

func TestClientGenerateCard(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.InDelta(t, cardTemperature, req.Temperature, 1e-9)

			chatReply(t, w, `{"analysis_text": "TL;DR: Fed hiked.\nConfidence: High"}`)
		})
		defer srv.Close()

		card := c.GenerateCard(context.Background(), CardInput{ClusterID: 1, Headline: "Fed hikes rates", Hotness: 0.8})
		require.Contains(t, card, "TL;DR: Fed hiked.")
	})

	t.Run("failure degrades to stub", func(t *testing.T) {
		c, srv := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		defer srv.Close()

		card := c.GenerateCard(context.Background(), CardInput{ClusterID: 1, Headline: "Fed hikes rates", Hotness: 0.8})
		require.Contains(t, card, "Confidence: Low")
	})
}
