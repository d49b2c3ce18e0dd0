package normalize

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/alphapulse/news-radar/internal/storage"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	tickerRe     = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	properRe     = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	sentenceRe   = regexp.MustCompile(`^(.{40,160}?[.!?…])\s`)
)

// defaultSpamPatterns flag promotional and click-bait text. The mix of
// Russian and English markers matches the feeds we actually ingest.
var defaultSpamPatterns = []string{
	`(?i)реклама`,
	`(?i)спонсор`,
	`(?i)купить\s+сейчас`,
	`(?i)скидка\s+\d+\s*%`,
	`(?i)только\s+сегодня`,
	`(?i)ограниченное\s+предложение`,
	`(?i)кликните\s+здесь`,
	`(?i)подробнее\s+на\s+сайте`,
	`(?i)перейти\s+по\s+ссылке`,
	`(?i)buy\s+now`,
	`(?i)\d+\s*%\s+discount`,
	`(?i)click\s+here`,
	`(?i)limited\s+(?:time\s+)?offer`,
	`(?i)sponsored\s+(?:post|content)`,
}

// Normalizer turns raw articles into cleaned, language-tagged,
// quality-scored ones. Articles that fail the spam or quality gates are
// dropped, not stored.
type Normalizer struct {
	spam []*regexp.Regexp
}

func New() *Normalizer {
	n := &Normalizer{}
	for _, p := range defaultSpamPatterns {
		n.spam = append(n.spam, regexp.MustCompile(p))
	}

	return n
}

// Normalize processes one raw article. A nil result with a nil error
// means the article was filtered out.
func (n *Normalizer) Normalize(raw storage.RawArticle) (*storage.NormalizedArticle, error) {
	// Spam is judged on the cleaned text, before the symbol filter
	// replaces emoji and would blind the density check.
	cleaned := n.CleanHTML(pickContent(raw))
	if n.IsSpam(cleaned) {
		return nil, nil
	}

	content := n.NormalizeText(cleaned)

	title := n.NormalizeText(raw.Title)
	if titleNeedsFix(title, content) {
		if fixed := makeTitleFromContent(content); fixed != "" {
			title = fixed
		}
	}

	if len(strings.TrimSpace(content)) < 30 {
		return nil, nil
	}

	score := n.QualityScore(title, content, raw.Link, raw.Source)
	if score < 0.2 {
		return nil, nil
	}

	return &storage.NormalizedArticle{
		OriginalID:   raw.ID,
		Title:        title,
		Content:      content,
		Link:         raw.Link,
		Source:       raw.Source,
		PublishedAt:  raw.Published,
		LanguageCode: DetectLanguage(content),
		Entities:     n.ExtractEntities(content),
		QualityScore: score,
		WordCount:    CountWords(content),
	}, nil
}

func pickContent(raw storage.RawArticle) string {
	if strings.TrimSpace(raw.Content) != "" {
		return raw.Content
	}

	return raw.Summary
}

// CleanHTML decodes entities, strips tags and control characters and
// collapses whitespace.
func (n *Normalizer) CleanHTML(text string) string {
	if text == "" {
		return ""
	}

	text = html.UnescapeString(text)
	text = stripTags(text)
	text = stripControl(text)

	return whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// NormalizeText cleans HTML, applies Unicode compatibility
// normalization and drops symbols outside letters, digits and basic
// punctuation.
func (n *Normalizer) NormalizeText(text string) string {
	if text == "" {
		return ""
	}

	text = n.CleanHTML(text)
	text = norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune(".,!?;:-()", r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return whitespaceRe.ReplaceAllString(strings.TrimSpace(b.String()), " ")
}

// IsSpam reports whether the content is too short, matches a promo
// pattern, or is mostly emoji.
func (n *Normalizer) IsSpam(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 {
		return true
	}

	for _, re := range n.spam {
		if re.MatchString(text) {
			return true
		}
	}

	runes := []rune(text)

	var emoji int
	for _, r := range runes {
		if isEmoji(r) {
			emoji++
		}
	}

	return emoji*10 > len(runes)
}

// ExtractEntities pulls ticker-like uppercase runs and title-case
// multiword phrases out of the text. At most 20, sorted,
// de-duplicated.
func (n *Normalizer) ExtractEntities(text string) []string {
	seen := map[string]struct{}{}

	for _, m := range tickerRe.FindAllString(text, -1) {
		seen[m] = struct{}{}
	}

	for _, m := range properRe.FindAllString(text, -1) {
		seen[m] = struct{}{}
	}

	entities := make([]string, 0, len(seen))
	for e := range seen {
		entities = append(entities, e)
	}

	sort.Strings(entities)

	if len(entities) > 20 {
		entities = entities[:20]
	}

	return entities
}

// QualityScore rates an article in [0,1]. Length, title, link and
// source each contribute; spam collapses the score.
func (n *Normalizer) QualityScore(title, content, link, source string) float32 {
	if len(strings.TrimSpace(content)) < 30 {
		return 0
	}

	var score float32

	switch l := len(content); {
	case l >= 500:
		score += 0.3
	case l >= 200:
		score += 0.2
	}

	if len(strings.TrimSpace(title)) > 10 {
		score += 0.2
	}

	if link != "" {
		score += 0.1
	}

	if source != "" {
		score += 0.1
	}

	if n.IsSpam(content) {
		score *= 0.3
	} else {
		score += 0.3
	}

	if score > 1 {
		score = 1
	}

	return score
}

// titleNeedsFix reports whether the title duplicates the content, is a
// long prefix of it, is overlong, or is missing.
func titleNeedsFix(title, content string) bool {
	t := strings.TrimSpace(title)
	if t == "" {
		return true
	}

	c := strings.TrimSpace(content)
	if c == "" {
		return false
	}

	if t == c {
		return true
	}

	limit := len(c)
	if limit > 200 {
		limit = 200
	}

	if strings.HasPrefix(c, t) && len(t)*10 >= limit*8 {
		return true
	}

	return len([]rune(t)) > 180
}

// makeTitleFromContent synthesizes a headline: the first sentence
// boundary within 40-160 chars, else a word-safe 160-char truncation
// with an ellipsis.
func makeTitleFromContent(content string) string {
	txt := strings.TrimSpace(content)
	if txt == "" {
		return ""
	}

	var cand string
	if m := sentenceRe.FindStringSubmatch(txt + " "); m != nil {
		cand = strings.TrimSpace(m[1])
	} else {
		runes := []rune(txt)
		if len(runes) > 160 {
			cand = string(runes[:160])
			if i := strings.LastIndex(cand, " "); i > 0 {
				cand = cand[:i]
			}
			cand = strings.TrimSpace(cand) + "…"
		} else {
			cand = txt
		}
	}

	cand = strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, cand)

	return whitespaceRe.ReplaceAllString(strings.TrimSpace(cand), " ")
}

// CountWords counts maximal letter/digit runs.
func CountWords(text string) int {
	var count int
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if !inWord {
				count++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return count
}

// ReadingTime estimates minutes at 200 words per minute, at least 1.
func ReadingTime(words int) int {
	t := words / 200
	if t < 1 {
		t = 1
	}

	return t
}

func stripTags(text string) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}

	var (
		b    strings.Builder
		skip int
	)

	tokenizer := xhtml.NewTokenizer(strings.NewReader(text))

	for {
		switch tokenizer.Next() {
		case xhtml.ErrorToken:
			return b.String()
		case xhtml.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case xhtml.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case xhtml.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 0x00, 0x0b, 0x0c, 0xfeff:
			return -1
		}
		return r
	}, text)
}

func isEmoji(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1FAFF) || (r >= 0x2600 && r <= 0x27BF)
}
