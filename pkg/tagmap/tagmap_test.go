package tagmap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"ssn", []string{"PII.Sensitive.SSN"}, []string{"DataClassification.Confidential"}},
		{"generic sensitive", []string{"PII.Sensitive"}, []string{"DataClassification.Confidential"}},
		{"contact subtag", []string{"PII.Contact.Email"}, []string{"DataClassification.Personal"}},
		{"both", []string{"PII.Contact", "PII.Sensitive.CreditCard"}, []string{"DataClassification.Confidential", "DataClassification.Personal"}},
		{"unrelated", []string{"Tier.Gold", "PersonalData.Personal"}, []string{}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Map(tt.in))
		})
	}
}

var vocabulary = []string{
	"PII.Sensitive", "PII.Sensitive.SSN", "PII.Sensitive.CreditCard", "PII.Contact",
	"PII.Contact.Email", "PII.Contact.Phone", "Tier.Gold", "DataClassification.Confidential",
	"x.PII.Contact.y", "pii.sensitive", "",
}

func randomTags(r *rand.Rand) []string {
	n := r.Intn(6)
	out := make([]string, n)
	for i := range out {
		out[i] = vocabulary[r.Intn(len(vocabulary))]
	}
	return out
}

func TestMap_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	targets := Targets(DefaultRules)

	for i := 0; i < 500; i++ {
		in := randomTags(r)
		first := Map(in)

		assert.Equal(t, first, Map(in), "deterministic for %v", in)

		seen := make(map[string]bool)
		for _, tag := range first {
			_, ok := targets[tag]
			assert.True(t, ok, "%q is not a rule target", tag)
			assert.False(t, seen[tag], "duplicate %q", tag)
			seen[tag] = true
		}

		reversed := make([]string, len(in))
		for j := range in {
			reversed[len(in)-1-j] = in[j]
		}
		assert.Equal(t, first, Map(reversed), "order independent for %v", in)
	}
}

func TestApply_CustomRules(t *testing.T) {
	rules := []Rule{{Source: "Finance", Target: "Regulated.SOX"}}
	assert.Equal(t, []string{"Regulated.SOX"}, Apply(rules, []string{"Finance.Revenue"}))
	assert.Empty(t, Apply(rules, []string{"PII.Sensitive"}))
}
