// Package textstats computes term statistics over free text: tokens, term frequency,
// inverse document frequency and TF-IDF. All functions are pure.
//
// Values are not rounded here. Callers round to 4 decimal places (core.Round) where a value is persisted.
package textstats

import (
	"iter"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLen is the minimum length, in runes, of a kept token.
const MinTokenLen = 3

// Tokens yields the normalized tokens of text: lower-cased, split on any non-alphanumeric rune,
// dropping tokens shorter than MinTokenLen.
func Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, f := range fields {
			if utf8.RuneCountInString(f) < MinTokenLen {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Tokenize collects Tokens(text).
func Tokenize(text string) []string {
	tokens := make([]string, 0)
	for tok := range Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// TermFrequency maps each token of doc to its occurrence count divided by the document length.
func TermFrequency(doc []string) map[string]float64 {
	tf := make(map[string]float64)
	if len(doc) == 0 {
		return tf
	}
	counts := make(map[string]int)
	for _, tok := range doc {
		counts[tok]++
	}
	n := float64(len(doc))
	for tok, c := range counts {
		tf[tok] = float64(c) / n
	}
	return tf
}

// InverseDocumentFrequency maps each token of the corpus to ln(N/df),
// where df is the number of documents containing the token.
func InverseDocumentFrequency(corpus [][]string) map[string]float64 {
	idf := make(map[string]float64)
	if len(corpus) == 0 {
		return idf
	}
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	n := float64(len(corpus))
	for tok, c := range df {
		idf[tok] = math.Log(n / float64(c))
	}
	return idf
}

// TFIDF multiplies every term frequency by its idf. Tokens missing from idf score 0.
func TFIDF(tf, idf map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(tf))
	for tok, f := range tf {
		scores[tok] = f * idf[tok]
	}
	return scores
}

// Index holds the idf of a corpus so documents can be scored against it.
type Index struct {
	idf map[string]float64
}

// NewIndex tokenizes every text and computes the corpus idf.
func NewIndex(texts []string) *Index {
	corpus := make([][]string, 0, len(texts))
	for _, t := range texts {
		corpus = append(corpus, Tokenize(t))
	}
	return &Index{idf: InverseDocumentFrequency(corpus)}
}

// Len returns the number of distinct tokens in the corpus.
func (ix *Index) Len() int { return len(ix.idf) }

// Score returns the TF-IDF scores of text against the corpus.
func (ix *Index) Score(text string) map[string]float64 {
	return TFIDF(TermFrequency(Tokenize(text)), ix.idf)
}
