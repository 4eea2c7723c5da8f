package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levi/internal/domain"
)

func keys(c domain.RuleChecklist) []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

func TestEvaluate_FullAgreement(t *testing.T) {
	text := "This agreement is made by and between Alice and Bob, governed by the laws of Delhi, signed by both parties on January 5, 2023."
	got := Evaluate(text)
	assert.Equal(t, domain.RuleChecklist{
		Signatures:   true,
		Dates:        true,
		Parties:      true,
		Jurisdiction: true,
	}, got)
	assert.Equal(t, 100.0, Score(got))
}

func TestEvaluate_Empty(t *testing.T) {
	got := Evaluate("")
	assert.ElementsMatch(t, []string{Signatures, Dates, Parties, Jurisdiction}, keys(got))
	for name, ok := range got {
		assert.False(t, ok, name)
	}
	assert.Equal(t, 0.0, Score(got))
}

func TestEvaluate_Pure(t *testing.T) {
	text := "Party A shall pay Party B on 12/03/2021 before the Tribunal."
	assert.Equal(t, Evaluate(text), Evaluate(text))
}

func TestRules(t *testing.T) {
	cases := []struct {
		rule string
		text string
		want bool
	}{
		{Signatures, "SIGNATURE: ____________", true},
		{Signatures, "In the presence of the following witness", true},
		{Signatures, "Executed by the Authorized Signatory", true},
		{Signatures, "The deed was duly attested.", true},
		{Signatures, "no marks here", false},

		{Dates, "dated 05/01/2023", true},
		{Dates, "dated 5.1.23", true},
		{Dates, "dated 05-01-2023", true},
		{Dates, "on 2023-01-05", true},
		{Dates, "on March 3 2020", true},
		{Dates, "on december 31, 1999", true},
		{Dates, "in the year twenty twenty", false},
		{Dates, "version 1.2", false},

		{Parties, "between the Landlord and the Tenant", true},
		{Parties, "between\nACME Ltd\nand\nFoo LLC", true},
		{Parties, "Party B agrees", true},
		{Parties, "This Agreement is made on this day by and between X", true},
		{Parties, "the party agrees", false},

		{Jurisdiction, "governed by the laws of England", true},
		{Jurisdiction, "subject to the jurisdiction of Mumbai", true},
		{Jurisdiction, "the courts of New York", true},
		{Jurisdiction, "referred to an arbitral tribunal", true},
		{Jurisdiction, "nothing to see", false},
	}
	for _, tc := range cases {
		t.Run(tc.rule+"/"+tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.text)[tc.rule])
		})
	}
}

func TestScore(t *testing.T) {
	c := domain.RuleChecklist{Signatures: false, Dates: false, Parties: false, Jurisdiction: false}
	prev := Score(c)
	assert.Equal(t, 0.0, prev)
	for _, k := range []string{Signatures, Dates, Parties, Jurisdiction} {
		c[k] = true
		s := Score(c)
		assert.Greater(t, s, prev)
		assert.LessOrEqual(t, s, 100.0)
		prev = s
	}
	assert.Equal(t, 100.0, prev)
	assert.Equal(t, 50.0, Score(domain.RuleChecklist{Signatures: true, Dates: false}))
	assert.Equal(t, 0.0, Score(nil))
}

func TestEngine_CustomRuleSetTracksDenominator(t *testing.T) {
	extra := append([]Rule{}, DefaultRules...)
	extra = append(extra, Rule{Name: "stamp"})
	got := NewEngine(extra...).Evaluate("signed by Alice")
	assert.Len(t, got, 5)
	assert.Equal(t, 20.0, Score(got))
}

func TestRule_FindAllInDocumentOrder(t *testing.T) {
	rule, ok := Lookup(Dates)
	require.True(t, ok)
	got := rule.FindAll("Signed 2021-02-03, renewed on March 4, 2022 and ended 05/06/23.")
	assert.Equal(t, []string{"2021-02-03", "March 4, 2022", "05/06/23"}, got)

	_, ok = Lookup("notary")
	assert.False(t, ok)
}
