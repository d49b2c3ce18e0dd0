package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alphapulse/news-radar/internal/storage"
)

const (
	hotnessRed    = 0.8
	hotnessOrange = 0.6
	hotnessYellow = 0.4

	maxListContentLen = 300
)

// hotnessEmoji maps a score to the badge shown in lists and alerts.
func hotnessEmoji(h float32) string {
	switch {
	case h >= hotnessRed:
		return "🔴🔥"
	case h >= hotnessOrange:
		return "🟠🔥"
	case h >= hotnessYellow:
		return "🟡"
	default:
		return "🟢"
	}
}

// preferEnglish picks the English rendering when the model produced
// one, falling back to the original text.
func preferEnglish(english, original string) string {
	if strings.TrimSpace(english) != "" {
		return english
	}

	return original
}

// formatNewsItem renders one analyzed story as a Markdown block for
// /top, /latest and /search listings.
func formatNewsItem(idx int, a storage.AnalyzedNews) string {
	var b strings.Builder

	headline := preferEnglish(a.HeadlineEN, a.Headline)

	fmt.Fprintf(&b, "%d. %s *%s*\n", idx, hotnessEmoji(a.AIHotness), headline)
	fmt.Fprintf(&b, "   Hotness: %.2f | Sources: %d", a.AIHotness, a.DocCount)

	if len(a.Tickers) > 0 {
		fmt.Fprintf(&b, " | %s", strings.Join(a.Tickers, ", "))
	}

	b.WriteString("\n")

	if !a.PublishedTime.IsZero() {
		fmt.Fprintf(&b, "   🕐 %s\n", a.PublishedTime.UTC().Format("2006-01-02 15:04 UTC"))
	}

	if content := strings.TrimSpace(preferEnglish(a.ContentEN, a.Content)); content != "" {
		fmt.Fprintf(&b, "   %s\n", truncateRunes(content, maxListContentLen))
	}

	if len(a.URLs) > 0 {
		fmt.Fprintf(&b, "   [source](%s)\n", a.URLs[0])
	}

	return b.String()
}

// formatAlert renders the hot-news push sent to subscribers.
func formatAlert(a storage.AnalyzedNews) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *HOT NEWS* (%.2f)\n\n", hotnessEmoji(a.AIHotness), a.AIHotness)
	fmt.Fprintf(&b, "*%s*\n\n", preferEnglish(a.HeadlineEN, a.Headline))

	if content := strings.TrimSpace(preferEnglish(a.ContentEN, a.Content)); content != "" {
		fmt.Fprintf(&b, "%s\n\n", truncateRunes(content, maxListContentLen))
	}

	if len(a.Tickers) > 0 {
		fmt.Fprintf(&b, "Tickers: %s\n", strings.Join(a.Tickers, ", "))
	}

	if a.Reasoning != "" {
		fmt.Fprintf(&b, "_%s_\n", a.Reasoning)
	}

	if len(a.URLs) > 0 {
		fmt.Fprintf(&b, "[source](%s)\n", a.URLs[0])
	}

	return b.String()
}

// formatCard wraps the seven-section analytical card with the story
// header.
func formatCard(a storage.AnalyzedNews, card string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *%s*\n\n", hotnessEmoji(a.AIHotness), preferEnglish(a.HeadlineEN, a.Headline))
	b.WriteString(card)

	if len(a.URLs) > 0 {
		fmt.Fprintf(&b, "\n\n[source](%s)", a.URLs[0])
	}

	return b.String()
}

// analyzeKeyboard returns the inline button that requests the detailed
// analytical card for a story.
func analyzeKeyboard(analyzedID int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Detailed analysis", fmt.Sprintf("%s%d", callbackAnalyze, analyzedID)),
		),
	)
}

// SanitizeMarkdown closes dangling legacy-Markdown tokens so Telegram
// does not reject the message. Model output and scraped headlines
// routinely contain unbalanced markers.
func SanitizeMarkdown(text string) string {
	if strings.Count(text, "```")%2 == 1 {
		text += "```"
	}

	// Single backticks, not counting the fence markers.
	if (strings.Count(text, "`")-strings.Count(text, "```")*3)%2 == 1 {
		text += "`"
	}

	if strings.Count(text, "*")%2 == 1 {
		text += "*"
	}

	if strings.Count(text, "_")%2 == 1 {
		text += "_"
	}

	return text
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return strings.TrimSpace(string(runes[:max])) + "…"
}

func formatTimeAgo(t time.Time, now time.Time) string {
	d := now.Sub(t)

	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
