// Package briefing builds extractive briefs of uploaded documents: the
// highest ranked sentences in document order plus a few surface facts.
package briefing

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"levi/internal/rules"
)

// Brief is the extractive briefing of a document.
type Brief struct {
	Summary       string   `json:"summary"`
	KeySentences  []string `json:"key_sentences"`
	KeyTerms      []string `json:"key_terms"`
	Dates         []string `json:"dates"`
	WordCount     int      `json:"word_count"`
	SentenceCount int      `json:"sentence_count"`
}

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

const defaultKeyTerms = 8

// FrequencySummarizer ranks sentences by normalized content-word frequency.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
	keyTerms  int
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords(), keyTerms: defaultKeyTerms}
}

// Summarize joins the top maxSentences sentences in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	return s.Brief(text, maxSentences).Summary, nil
}

// Brief ranks the sentences of text and returns the best maxSentences of
// them in document order. maxSentences <= 0 means 5.
func (s *FrequencySummarizer) Brief(text string, maxSentences int) Brief {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	b := Brief{
		KeySentences: []string{},
		KeyTerms:     []string{},
		Dates:        findDates(text),
		WordCount:    len(strings.Fields(text)),
	}
	sentences := splitSentences(text)
	b.SentenceCount = len(sentences)
	if len(sentences) == 0 {
		return b
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = s.tokens(sent)
		for _, tok := range tokens[i] {
			if _, stop := s.stopwords[tok]; !stop {
				freq[tok]++
			}
		}
	}
	b.KeyTerms = topTerms(freq, s.keyTerms)

	maxF := 1.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, tok := range tokens[i] {
			score += freq[tok] / maxF
		}
		// Long sentences would otherwise win on length alone.
		if n := len(tokens[i]); n > 0 {
			score /= math.Sqrt(float64(n))
		}
		scores[i] = ranked{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	for _, idx := range selected {
		b.KeySentences = append(b.KeySentences, sentences[idx])
	}
	b.Summary = strings.Join(b.KeySentences, " ")
	return b
}

func (s *FrequencySummarizer) tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func splitSentences(text string) []string {
	var out []string
	for _, m := range sentencePattern.FindAllString(text, -1) {
		if t := strings.Join(strings.Fields(m), " "); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func topTerms(freq map[string]float64, n int) []string {
	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func findDates(text string) []string {
	out := []string{}
	rule, ok := rules.Lookup(rules.Dates)
	if !ok {
		return out
	}
	seen := map[string]bool{}
	for _, d := range rule.FindAll(text) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down",
		"over", "under", "again", "further", "than", "so", "such", "into", "about", "through", "during", "before", "after",
		"above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "any", "all",
		"shall", "may", "hereby", "herein", "thereof", "whereas", "which", "who", "not", "no", "each", "other",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
