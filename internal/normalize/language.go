package normalize

import (
	"strings"
	"unicode"
)

// Stopword lists for the Latin-script languages the feeds carry. A few
// high-frequency function words are enough to separate them.
var latinStopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "for", "with", "was"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "mit", "für", "auf"},
	"fr": {"le", "la", "les", "des", "est", "dans", "pour", "que", "une", "avec"},
	"es": {"el", "la", "los", "las", "es", "que", "por", "para", "una", "con"},
}

// DetectLanguage guesses the language of the first 1000 characters by
// script, then by stopword frequency for Latin text. Returns "unknown"
// when the sample carries too little signal.
func DetectLanguage(text string) string {
	sample := []rune(strings.TrimSpace(text))
	if len(sample) < 10 {
		return "unknown"
	}

	if len(sample) > 1000 {
		sample = sample[:1000]
	}

	var cyrillic, latin, han, letters int

	for _, r := range sample {
		if !unicode.IsLetter(r) {
			continue
		}

		letters++

		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Han, r):
			han++
		}
	}

	if letters == 0 {
		return "unknown"
	}

	switch {
	case cyrillic*2 > letters:
		return detectCyrillic(sample)
	case han*2 > letters:
		return "zh"
	case latin*2 > letters:
		return detectLatin(string(sample))
	}

	return "unknown"
}

// Ukrainian uses і, ї, є and ґ; Russian does not.
func detectCyrillic(sample []rune) string {
	for _, r := range sample {
		switch r {
		case 'і', 'ї', 'є', 'ґ', 'І', 'Ї', 'Є', 'Ґ':
			return "uk"
		}
	}

	return "ru"
}

func detectLatin(sample string) string {
	words := strings.Fields(strings.ToLower(sample))

	best, bestHits := "unknown", 0

	for lang, stops := range latinStopwords {
		var hits int

		for _, w := range words {
			w = strings.Trim(w, ".,!?;:-()")
			for _, s := range stops {
				if w == s {
					hits++
					break
				}
			}
		}

		if hits > bestHits || (hits == bestHits && hits > 0 && lang < best) {
			best, bestHits = lang, hits
		}
	}

	if bestHits < 2 {
		return "unknown"
	}

	return best
}
