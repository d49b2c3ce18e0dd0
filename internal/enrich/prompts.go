package enrich

import (
	"fmt"
	"strings"
	"time"
)

// AnalysisInput carries the representative article plus the cluster
// context that the rating prompt embeds.
type AnalysisInput struct {
	Headline    string
	Content     string
	Source      string
	URL         string
	PublishedAt time.Time
	RuleHotness float32
}

// CardInput feeds the detailed analytical card prompt.
type CardInput struct {
	ClusterID int
	Headline  string
	Content   string
	Tickers   []string
	Hotness   float32
}

const analyzePromptContentLimit = 2000

const cardPromptContentLimit = 1500

func buildAnalyzePrompt(in AnalysisInput) string {
	var b strings.Builder

	b.WriteString("You are a financial analyst. Analyze the news story and rate its significance for financial markets.\n\n")
	fmt.Fprintf(&b, "HEADLINE: %s\n\n", in.Headline)
	fmt.Fprintf(&b, "TEXT: %s\n\n", truncate(in.Content, analyzePromptContentLimit))

	if in.Source != "" {
		fmt.Fprintf(&b, "SOURCE: %s\n", in.Source)
	}

	if in.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", in.URL)
	}

	if !in.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "PUBLISHED: %s\n", in.PublishedAt.UTC().Format(time.RFC3339))
	}

	fmt.Fprintf(&b, "RULE-BASED HOTNESS: %.2f\n\n", in.RuleHotness)

	b.WriteString(`INSTRUCTIONS:
1. Read the whole text and identify the core event.
2. Rate "hotness" from 0.00 to 1.00 combining:
   - EVENT SCALE (0-0.30): global crisis > national policy > sector news > routine items
   - MARKET IMPACT (0-0.30): direct and immediate > medium-term > indirect > none
   - UNIQUENESS (0-0.20): unprecedented > rare > periodic > everyday
   - URGENCY (0-0.20): breaking > important within hours > same-day > not urgent
   Use the full scale with precise values (0.23, 0.67, 0.84), not round steps.
3. List ALL financial instruments mentioned or affected: stock tickers, crypto assets, indices, country markets. Empty list if none.
4. Explain the rating in 1-2 sentences (reasoning).
5. Provide an English rendering of the headline (headline_en) and a 2-3 sentence English summary of the content (content_en). If the text is already English, reuse it.

Return ONLY JSON, no text before or after:
{
    "hotness": 0.67,
    "tickers": ["SBER", "RU"],
    "reasoning": "...",
    "headline_en": "...",
    "content_en": "..."
}`)

	return b.String()
}

func buildCardPrompt(in CardInput) string {
	tickers := "none"
	if len(in.Tickers) > 0 {
		tickers = strings.Join(in.Tickers, ", ")
	}

	var b strings.Builder

	b.WriteString("You are a financial analyst. Produce a concise analytical card for this news story.\n\n")
	fmt.Fprintf(&b, "HEADLINE: %s\n", in.Headline)
	fmt.Fprintf(&b, "TEXT: %s\n", truncate(in.Content, cardPromptContentLimit))
	fmt.Fprintf(&b, "TICKERS: %s\n", tickers)
	fmt.Fprintf(&b, "HOTNESS: %.2f\n\n", in.Hotness)

	b.WriteString(`Write the card as plain text with exactly these seven labeled sections, in this order:

TL;DR: one-sentence essence of the story.
Key facts: 2-4 bullet points.
Affected assets: instruments, sectors or markets touched.
Sentiment: a number from -1 to 1 with a word (bearish/neutral/bullish).
News score: a number from 0 to 1 reflecting market significance.
Recommendation: one actionable sentence (watch/buy/sell/hold, horizon).
Confidence: High, Medium or Low.

Return ONLY JSON:
{
    "analysis_text": "TL;DR: ...\nKey facts:\n- ...\nAffected assets: ...\nSentiment: ...\nNews score: ...\nRecommendation: ...\nConfidence: ..."
}`)

	return b.String()
}

// fallbackCard is the canned analysis used when the model call or its
// parse fails. The card still follows the seven-section contract.
func fallbackCard(in CardInput) string {
	assets := "n/a"
	if len(in.Tickers) > 0 {
		assets = strings.Join(in.Tickers, ", ")
	}

	return fmt.Sprintf(`TL;DR: %s
Key facts:
- Detailed analysis is temporarily unavailable.
Affected assets: %s
Sentiment: 0 (neutral)
News score: %.2f
Recommendation: Watch for follow-up coverage before acting.
Confidence: Low`, in.Headline, assets, in.Hotness)
}
