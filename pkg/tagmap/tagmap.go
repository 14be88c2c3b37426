// Package tagmap derives downstream classification tags from directly
// assigned ones. It performs no I/O and holds no state.
package tagmap

import (
	"sort"
	"strings"
)

// Rule derives Target from any tag equal to or containing Source.
type Rule struct {
	Source string
	Target string
}

// DefaultRules is the built-in rule table.
var DefaultRules = []Rule{
	{Source: "PII.Sensitive", Target: "DataClassification.Confidential"},
	{Source: "PII.Sensitive.SSN", Target: "DataClassification.Confidential"},
	{Source: "PII.Sensitive.CreditCard", Target: "DataClassification.Confidential"},
	{Source: "PII.Contact", Target: "DataClassification.Personal"},
}

// Map applies DefaultRules.
func Map(tags []string) []string {
	return Apply(DefaultRules, tags)
}

// Apply returns the sorted, deduplicated targets of every rule fired by tags.
func Apply(rules []Rule, tags []string) []string {
	seen := make(map[string]struct{})
	for _, tag := range tags {
		for _, r := range rules {
			if tag == r.Source || strings.Contains(tag, r.Source) {
				seen[r.Target] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Targets returns the set of tags the rules can produce.
func Targets(rules []Rule) map[string]struct{} {
	out := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		out[r.Target] = struct{}{}
	}
	return out
}
