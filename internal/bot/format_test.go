package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphapulse/news-radar/internal/storage"
)

func TestHotnessEmoji(t *testing.T) {
	tests := []struct {
		hotness float32
		want    string
	}{
		{0.95, "🔴🔥"},
		{0.8, "🔴🔥"},
		{0.7, "🟠🔥"},
		{0.6, "🟠🔥"},
		{0.5, "🟡"},
		{0.4, "🟡"},
		{0.2, "🟢"},
		{0, "🟢"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, hotnessEmoji(tt.hotness), "hotness %.2f", tt.hotness)
	}
}

func TestSanitizeMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"balanced", "*bold* and _italic_", "*bold* and _italic_"},
		{"dangling bold", "*bold text", "*bold text*"},
		{"dangling italic", "some _italic", "some _italic_"},
		{"dangling backtick", "code `here", "code `here`"},
		{"dangling fence", "```go\nfunc main()", "```go\nfunc main()```"},
		{"plain", "nothing to fix", "nothing to fix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeMarkdown(tt.in))
		})
	}
}

func TestFormatNewsItem(t *testing.T) {
	a := storage.AnalyzedNews{
		ID:            7,
		Headline:      "ЦБ повысил ставку",
		HeadlineEN:    "Central bank raises key rate",
		ContentEN:     "The central bank raised its key rate by 200bp.",
		AIHotness:     0.82,
		Tickers:       []string{"SBER", "RUB"},
		DocCount:      4,
		PublishedTime: time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC),
		URLs:          []string{"https://example.com/rate"},
	}

	out := formatNewsItem(1, a)

	require.Contains(t, out, "1. 🔴🔥 *Central bank raises key rate*")
	require.Contains(t, out, "Hotness: 0.82")
	require.Contains(t, out, "Sources: 4")
	require.Contains(t, out, "SBER, RUB")
	require.Contains(t, out, "2026-08-24 09:30 UTC")
	require.Contains(t, out, "[source](https://example.com/rate)")
}

func TestFormatNewsItemFallsBackToOriginal(t *testing.T) {
	a := storage.AnalyzedNews{Headline: "Original only", AIHotness: 0.1}

	out := formatNewsItem(2, a)
	require.Contains(t, out, "*Original only*")
	require.Contains(t, out, "🟢")
}

func TestFormatAlert(t *testing.T) {
	a := storage.AnalyzedNews{
		Headline:  "Market crash",
		AIHotness: 0.91,
		Reasoning: "Unprecedented single-day drop.",
		Tickers:   []string{"SPX"},
	}

	out := formatAlert(a)
	require.True(t, strings.HasPrefix(out, "🔴🔥 *HOT NEWS* (0.91)"))
	require.Contains(t, out, "*Market crash*")
	require.Contains(t, out, "Tickers: SPX")
	require.Contains(t, out, "_Unprecedented single-day drop._")
}

func TestFormatCard(t *testing.T) {
	a := storage.AnalyzedNews{
		Headline:  "Rate cut",
		AIHotness: 0.65,
		URLs:      []string{"https://example.com/cut"},
	}

	out := formatCard(a, "TL;DR: rates are down.")
	require.Contains(t, out, "🟠🔥 *Rate cut*")
	require.Contains(t, out, "TL;DR: rates are down.")
	require.Contains(t, out, "[source](https://example.com/cut)")
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "short", truncateRunes("short", 10))

	long := strings.Repeat("я", 400)
	out := truncateRunes(long, 300)
	require.Equal(t, 301, len([]rune(out)))
	require.True(t, strings.HasSuffix(out, "…"))
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	require.Equal(t, "30m ago", formatTimeAgo(now.Add(-30*time.Minute), now))
	require.Equal(t, "5h ago", formatTimeAgo(now.Add(-5*time.Hour), now))
	require.Equal(t, "3d ago", formatTimeAgo(now.Add(-3*24*time.Hour), now))
}

func TestClampArg(t *testing.T) {
	tests := []struct {
		name string
		args []string
		idx  int
		want int
	}{
		{"missing uses default", nil, 0, 10},
		{"valid", []string{"5"}, 0, 5},
		{"too large clamps", []string{"99"}, 0, 20},
		{"too small clamps", []string{"0"}, 0, 1},
		{"garbage uses default", []string{"abc"}, 0, 10},
		{"second arg", []string{"5", "12"}, 1, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, clampArg(tt.args, tt.idx, 10, 1, 20))
		})
	}
}
