// Package rules evaluates structural markers of a legal document and scores
// how many of them are present.
package rules

import (
	"regexp"
	"sort"

	"levi/internal/domain"
)

const (
	Signatures   = "signatures"
	Dates        = "dates"
	Parties      = "parties"
	Jurisdiction = "jurisdiction"
)

// Rule is a named predicate satisfied when any of its patterns matches.
type Rule struct {
	Name     string
	Patterns []*regexp.Regexp
}

// Match reports whether any pattern of the rule occurs in text.
func (r Rule) Match(text string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// FindAll returns the matches of the rule's patterns in order of position.
// Matches starting at the same offset as an earlier one are dropped.
func (r Rule) FindAll(text string) []string {
	var spans [][]int
	for _, p := range r.Patterns {
		spans = append(spans, p.FindAllStringIndex(text, -1)...)
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	out := make([]string, 0, len(spans))
	last := -1
	for _, sp := range spans {
		if sp[0] == last {
			continue
		}
		last = sp[0]
		out = append(out, text[sp[0]:sp[1]])
	}
	return out
}

// Lookup returns the default rule with the given name.
func Lookup(name string) (Rule, bool) {
	for _, r := range DefaultRules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

const months = `january|february|march|april|may|june|july|august|september|october|november|december`

// DefaultRules is the fixed rule set used by the verifier.
var DefaultRules = []Rule{
	{
		Name: Signatures,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)signed\s+by|signature|authori[sz]ed\s+signatory|witness|attest(?:ed|ation)?\b`),
		},
	},
	{
		Name: Dates,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-](?:\d{4}|\d{2})\b`),
			regexp.MustCompile(`\b\d{4}[./-]\d{1,2}[./-]\d{1,2}\b`),
			regexp.MustCompile(`(?i)\b(?:` + months + `)\s+\d{1,2},?\s+\d{4}\b`),
		},
	},
	{
		Name: Parties,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)\bbetween\s+\S.*?\s+and\s+\S`),
			regexp.MustCompile(`(?is)\bthis\s+agreement\s+is\s+made\b.*?\bby\s+and\s+between\b`),
			regexp.MustCompile(`(?i)\bparty\s+[ab]\b`),
		},
	},
	{
		Name: Jurisdiction,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)governed\s+by\s+the\s+laws?\s+of\s+\S`),
			regexp.MustCompile(`(?i)jurisdiction\s+of\s+\S`),
			regexp.MustCompile(`(?i)courts?\s+of\s+\S`),
			regexp.MustCompile(`(?i)\btribunal\b`),
		},
	},
}

// Engine evaluates a rule set over document text.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine over rules, or over DefaultRules when none are given.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{rules: rules}
}

// Evaluate runs every rule independently. The result always holds one key per rule.
func (e *Engine) Evaluate(text string) domain.RuleChecklist {
	out := make(domain.RuleChecklist, len(e.rules))
	for _, r := range e.rules {
		out[r.Name] = r.Match(text)
	}
	return out
}

// Evaluate runs DefaultRules over text.
func Evaluate(text string) domain.RuleChecklist {
	return NewEngine().Evaluate(text)
}
