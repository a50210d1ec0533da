// Package search ranks a caller's prompts against a free-text query.
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|. Tokens are Unicode words,
// case-folded with golang.org/x/text/cases so "Straße" and "STRASSE" match.
// Results are deterministic: ties are broken by the higher (newer) id.
//
// The package holds no state and does no logging; callers pass in the
// documents they are allowed to see.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultK is used when Rank is called with k <= 0.
const DefaultK = 10

// Doc is a rankable document.
type Doc struct {
	ID   uint
	Text string
}

// Hit is a ranked document id with its similarity score in (0, 1].
type Hit struct {
	ID    uint
	Score float64
}

// Option customizes ranking.
type Option func(*options)

type options struct {
	stopwords map[string]struct{}
	minScore  float64
}

// WithStopwords drops the given words from both query and documents.
func WithStopwords(words []string) Option {
	return func(o *options) {
		for _, w := range words {
			if w = fold(strings.TrimSpace(w)); w == "" {
				continue
			}
			if o.stopwords == nil {
				o.stopwords = make(map[string]struct{}, len(words))
			}
			o.stopwords[w] = struct{}{}
		}
	}
}

// WithMinScore discards hits scoring below s. Negative values are ignored.
func WithMinScore(s float64) Option {
	return func(o *options) {
		if s >= 0 {
			o.minScore = s
		}
	}
}

// Rank returns up to k documents most similar to query, best first.
// It returns nil for a blank query or when nothing overlaps.
func Rank(query string, docs []Doc, k int, opts ...Option) []Hit {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if k <= 0 {
		k = DefaultK
	}
	q := o.tokenize(query)
	if len(q) == 0 || len(docs) == 0 {
		return nil
	}

	var hits []Hit
	for _, d := range docs {
		if score := jaccard(q, o.tokenize(d.Text)); score > 0 && score >= o.minScore {
			hits = append(hits, Hit{ID: d.ID, Score: score})
		}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// fold applies full Unicode case folding, so "ß" and "SS" compare equal.
func fold(s string) string {
	return cases.Fold().String(s)
}

// tokenize returns the set of folded words in s minus stopwords.
func (o options) tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := o.stopwords[w]; !stop {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|, or 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
