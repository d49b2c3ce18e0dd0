package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in response")

// Analysis is the structured result of one analyze call.
type Analysis struct {
	Hotness      float32
	Tickers      []string
	Reasoning    string
	HeadlineEN   string
	ContentEN    string
	AnalysisText string
}

const defaultHotness = 0.5

// ParseAnalysis decodes a model response into an Analysis. The decoder
// is deliberately forgiving: fences are stripped, the last balanced
// object is located, stray control characters are repaired, hotness is
// clamped and tickers coerced to strings.
func ParseAnalysis(raw string) (Analysis, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return Analysis{}, err
	}

	var decoded struct {
		Hotness      *float64          `json:"hotness"`
		Tickers      []json.RawMessage `json:"tickers"`
		Reasoning    string            `json:"reasoning"`
		HeadlineEN   string            `json:"headline_en"`
		ContentEN    string            `json:"content_en"`
		AnalysisText string            `json:"analysis_text"`
	}

	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	hotness := defaultHotness
	if decoded.Hotness != nil {
		hotness = *decoded.Hotness
	}

	if hotness < 0 {
		hotness = 0
	}

	if hotness > 1 {
		hotness = 1
	}

	return Analysis{
		Hotness:      float32(hotness),
		Tickers:      coerceTickers(decoded.Tickers),
		Reasoning:    strings.TrimSpace(decoded.Reasoning),
		HeadlineEN:   strings.TrimSpace(decoded.HeadlineEN),
		ContentEN:    strings.TrimSpace(decoded.ContentEN),
		AnalysisText: strings.TrimSpace(decoded.AnalysisText),
	}, nil
}

// ParseCard extracts the card text from a model response: either an
// object with an analysis_text field or free text.
func ParseCard(raw string) (string, error) {
	payload, err := ExtractJSON(raw)
	if err == nil {
		var decoded struct {
			AnalysisText string `json:"analysis_text"`
		}

		if jsonErr := json.Unmarshal([]byte(payload), &decoded); jsonErr == nil && decoded.AnalysisText != "" {
			return strings.TrimSpace(decoded.AnalysisText), nil
		}
	}

	text := strings.TrimSpace(stripFences(raw))
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// ExtractJSON returns the last balanced top-level {…} in the text,
// with code fences stripped and control characters repaired so the
// standard decoder accepts it.
func ExtractJSON(raw string) (string, error) {
	text := stripFences(raw)

	start := -1
	lastStart, lastEnd := -1, -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}

			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}

			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					lastStart, lastEnd = start, i
				}
			}
		}
	}

	if lastStart < 0 {
		return "", errNoJSONObject
	}

	return sanitizeJSON(text[lastStart : lastEnd+1]), nil
}

func stripFences(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			text = rest[:j]
		}
	}

	return text
}

// sanitizeJSON removes NUL/BOM/vertical-tab and escapes raw newlines
// and tabs inside string literals, which models emit routinely.
func sanitizeJSON(payload string) string {
	var b strings.Builder
	b.Grow(len(payload))

	inString := false
	escaped := false

	for _, r := range payload {
		switch r {
		case 0x00, 0x0b, 0xfeff:
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
			case r == '\\':
				escaped = true
				b.WriteRune(r)
			case r == '"':
				inString = false
				b.WriteRune(r)
			case r == '\n':
				b.WriteString(`\n`)
			case r == '\r':
				// dropped
			case r == '\t':
				b.WriteString(`\t`)
			case r < 0x20:
				// dropped
			default:
				b.WriteRune(r)
			}

			continue
		}

		if r == '"' {
			inString = true
		}

		b.WriteRune(r)
	}

	return b.String()
}

func coerceTickers(raw []json.RawMessage) []string {
	var tickers []string

	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				tickers = append(tickers, s)
			}

			continue
		}

		// Non-string scalars keep their literal form.
		trimmed := strings.TrimSpace(string(item))
		if trimmed != "" && trimmed != "null" && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			tickers = append(tickers, trimmed)
		}
	}

	return tickers
}
