package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphapulse/news-radar/internal/storage"
)

func TestCleanHTML(t *testing.T) {
	n := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "Fed hikes rates", "Fed hikes rates"},
		{"tags stripped", "<p>Fed <b>hikes</b> rates</p>", "Fed hikes rates"},
		{"entities decoded", "S&amp;P 500 drops", "S&P 500 drops"},
		{"script removed", "<script>alert(1)</script>Market news", "Market news"},
		{"control chars removed", "Fed\x00 hikes\x0b rates\ufeff", "Fed hikes rates"},
		{"whitespace collapsed", "Fed   hikes\n\nrates ", "Fed hikes rates"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.CleanHTML(tt.input))
		})
	}
}

func TestIsSpam(t *testing.T) {
	n := New()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"too short", "Fed hikes", true},
		{"promo english", "Buy now! 50% discount! Click here!", true},
		{"promo russian", "Только сегодня скидка 50% на подписку, кликните здесь", true},
		{"emoji heavy", "🔥🔥🔥🔥🔥 market 🔥🔥🔥🔥🔥", true},
		{"normal article", "The Federal Reserve raised interest rates by 25 basis points on Wednesday.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.IsSpam(tt.input))
		})
	}
}

func TestQualityScore(t *testing.T) {
	n := New()

	long := strings.Repeat("The Federal Reserve raised rates again. ", 15) // > 500 chars

	t.Run("full score", func(t *testing.T) {
		score := n.QualityScore("Fed raises rates again", long, "https://reuters.com/a", "reuters.com")
		require.InDelta(t, 1.0, score, 0.001)
	})

	t.Run("short content dropped", func(t *testing.T) {
		require.Zero(t, n.QualityScore("Title here", "too short", "", ""))
	})

	t.Run("mid length", func(t *testing.T) {
		mid := strings.Repeat("Markets moved today. ", 12) // 200..499 chars
		score := n.QualityScore("Markets update today", mid, "", "")
		require.InDelta(t, 0.7, score, 0.001) // 0.2 len + 0.2 title + 0.3 non-spam
	})

	t.Run("spam collapses score", func(t *testing.T) {
		spam := strings.Repeat("Buy now! Huge savings on everything in the store today. ", 10)
		score := n.QualityScore("Huge savings today", spam, "https://x.test", "promo")
		require.Less(t, score, float32(0.3))
	})
}

func TestTitleRepair(t *testing.T) {
	content := "The Federal Reserve raised interest rates by 25 basis points on Wednesday. Markets reacted calmly to the widely expected move."

	t.Run("title equals content", func(t *testing.T) {
		require.True(t, titleNeedsFix(content, content))
	})

	t.Run("long prefix", func(t *testing.T) {
		prefix := content[:110]
		require.True(t, titleNeedsFix(prefix, content))
	})

	t.Run("good title kept", func(t *testing.T) {
		require.False(t, titleNeedsFix("Fed raises rates by 25 bps", content))
	})

	t.Run("empty title", func(t *testing.T) {
		require.True(t, titleNeedsFix("", content))
	})

	t.Run("overlong title", func(t *testing.T) {
		require.True(t, titleNeedsFix(strings.Repeat("a", 181), content))
	})

	t.Run("first sentence becomes title", func(t *testing.T) {
		title := makeTitleFromContent(content)
		require.Equal(t, "The Federal Reserve raised interest rates by 25 basis points on Wednesday.", title)
	})

	t.Run("truncation fallback", func(t *testing.T) {
		noBoundary := strings.Repeat("word ", 60)
		title := makeTitleFromContent(noBoundary)
		require.True(t, strings.HasSuffix(title, "…"))
		require.LessOrEqual(t, len([]rune(title)), 161)
	})

	t.Run("emoji stripped", func(t *testing.T) {
		title := makeTitleFromContent("Fed 🔥 raises rates, markets react calmly to the expected move today.")
		require.NotContains(t, title, "🔥")
	})
}

func TestExtractEntities(t *testing.T) {
	n := New()

	text := "Apple Inc shares rose while MSFT and NVDA fell. Goldman Sachs cut its outlook."
	entities := n.ExtractEntities(text)

	require.Contains(t, entities, "MSFT")
	require.Contains(t, entities, "NVDA")
	require.Contains(t, entities, "Apple Inc")
	require.Contains(t, entities, "Goldman Sachs")
	require.LessOrEqual(t, len(entities), 20)
	require.IsIncreasing(t, entities)
}

func TestCountWords(t *testing.T) {
	require.Equal(t, 5, CountWords("Fed raises rates by 25"))
	require.Equal(t, 0, CountWords("  ... !!! "))
	require.Equal(t, 3, CountWords("ставки выросли сегодня"))
}

func TestReadingTime(t *testing.T) {
	require.Equal(t, 1, ReadingTime(50))
	require.Equal(t, 1, ReadingTime(0))
	require.Equal(t, 2, ReadingTime(450))
}

func TestNormalizeArticle(t *testing.T) {
	n := New()

	t.Run("good article survives", func(t *testing.T) {
		raw := storage.RawArticle{
			ID:        7,
			Title:     "Fed hikes rates by 25 bps",
			Content:   "<p>" + strings.Repeat("The Federal Reserve raised interest rates by 25 basis points. ", 10) + "</p>",
			Link:      "https://reuters.com/markets/fed",
			Source:    "reuters.com",
			Published: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		}

		got, err := n.Normalize(raw)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, 7, got.OriginalID)
		require.Equal(t, "Fed hikes rates by 25 bps", got.Title)
		require.Equal(t, "en", got.LanguageCode)
		require.GreaterOrEqual(t, got.QualityScore, float32(0.2))
		require.NotZero(t, got.WordCount)
	})

	t.Run("spam filtered", func(t *testing.T) {
		raw := storage.RawArticle{
			ID:      8,
			Title:   "Special offer",
			Content: "Buy now! 50% discount! Click here!",
		}

		got, err := n.Normalize(raw)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("emoji heavy filtered", func(t *testing.T) {
		raw := storage.RawArticle{
			ID:      10,
			Title:   "Markets surge",
			Content: "Markets surged higher today on strong earnings 🔥🔥🔥🔥🔥🔥🔥🔥",
		}

		got, err := n.Normalize(raw)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("summary used when content empty", func(t *testing.T) {
		raw := storage.RawArticle{
			ID:      9,
			Title:   "Oil prices climb on supply concerns",
			Summary: strings.Repeat("Oil prices climbed on renewed supply concerns in the region. ", 10),
		}

		got, err := n.Normalize(raw)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotEmpty(t, got.Content)
	})
}
