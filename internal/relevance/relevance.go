package relevance

import (
	"regexp"
	"strings"
)

// Scorer computes a lexical similarity in [0,1] between a query and chunk
// content. Scoring is deterministic and case-insensitive: both operands are
// lowercased before token matching. No embeddings, no corpus statistics; the
// score depends only on the two strings.
type Scorer struct {
	tokenPattern *regexp.Regexp
}

func NewScorer() *Scorer {
	return &Scorer{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
	}
}

// Score returns the fraction of distinct query tokens present in the content,
// with each matched token's contribution raised by its term frequency in the
// content (capped so repetition cannot push a partial match past full
// coverage). A query with no tokens scores 0 against everything.
func (s *Scorer) Score(query, content string) float64 {
	qTokens := s.Tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	// keep first-appearance order so float accumulation is reproducible
	seen := make(map[string]struct{}, len(qTokens))
	distinct := qTokens[:0:0]
	for _, t := range qTokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		distinct = append(distinct, t)
	}
	tf := make(map[string]int)
	for _, t := range s.Tokenize(content) {
		tf[t]++
	}
	var sum float64
	for _, t := range distinct {
		c := tf[t]
		if c == 0 {
			continue
		}
		// 0.75 for presence, up to 0.25 more for repetition
		extra := float64(c - 1)
		if extra > 4 {
			extra = 4
		}
		sum += 0.75 + 0.25*extra/4
	}
	score := sum / float64(len(distinct))
	if score > 1 {
		score = 1
	}
	return score
}

// Tokenize lowercases text and extracts word tokens (letters/digits with
// embedded apostrophes).
func (s *Scorer) Tokenize(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}
