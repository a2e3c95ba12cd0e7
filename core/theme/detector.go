package theme

import (
	"sort"
	"strings"
)

// Detector detects dictionary themes in TF-IDF scored documents.
type Detector struct {
	themes  []Theme
	reasons map[string]string // {reason: theme}
}

func NewDetector(dict *Dictionary) *Detector {
	d := &Detector{
		themes:  dict.Themes(),
		reasons: make(map[string]string),
	}
	for _, th := range d.themes {
		for _, r := range th.DirectReasons {
			if _, ok := d.reasons[r]; !ok {
				d.reasons[r] = th.Name
			}
		}
	}
	return d
}

// Match reports whether token matches keyword: equal, or either one contains the other.
// Substring containment is a stemming shortcut and over-matches short keywords (e.g. "time" matches "sometimes").
func Match(token, keyword string) bool {
	return token == keyword || strings.Contains(token, keyword) || strings.Contains(keyword, token)
}

// Detect returns the themes having at least one keyword matched by a token with a non-zero score.
func (d *Detector) Detect(scores map[string]float64) map[string]bool {
	detected := make(map[string]bool)
	tokens := sortedTokens(scores)
	for _, th := range d.themes {
		if d.matchAny(th, tokens, scores) {
			detected[th.Name] = true
		}
	}
	return detected
}

// Score sums, per theme, the scores of every token matching one of its keywords.
// A token contributes at most once per theme. Themes with no match are omitted.
func (d *Detector) Score(scores map[string]float64) map[string]float64 {
	result := make(map[string]float64)
	tokens := sortedTokens(scores)
	for _, th := range d.themes {
		var sum float64
		var matched bool
		for _, tok := range tokens {
			if scores[tok] == 0 {
				continue
			}
			if matchesTheme(tok, th) {
				sum += scores[tok]
				matched = true
			}
		}
		if matched {
			result[th.Name] = sum
		}
	}
	return result
}

// DirectTheme returns the theme mapped to a discrete reason code.
func (d *Detector) DirectTheme(reason string) (string, bool) {
	th, ok := d.reasons[reason]
	return th, ok
}

func (d *Detector) matchAny(th Theme, tokens []string, scores map[string]float64) bool {
	for _, tok := range tokens {
		if scores[tok] != 0 && matchesTheme(tok, th) {
			return true
		}
	}
	return false
}

func matchesTheme(token string, th Theme) bool {
	for _, kw := range th.Keywords {
		if Match(token, kw) {
			return true
		}
	}
	return false
}

// sortedTokens fixes the summation order so scores are bit-identical across runs.
func sortedTokens(scores map[string]float64) []string {
	tokens := make([]string, 0, len(scores))
	for tok := range scores {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}
