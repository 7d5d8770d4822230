// Package classifier maps ticket text to a category label using an ordered
// keyword table. It performs no I/O and is safe for concurrent use.
package classifier

import (
	"strings"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// Rule assigns Label to any text containing one of Keywords.
type Rule struct {
	Label    domain.Label
	Keywords []string
}

// RuleSet is evaluated in order; the first matching rule wins.
type RuleSet struct {
	rules    []Rule
	fallback domain.Label
}

// DefaultRules is the production rule table. Order is significant.
var DefaultRules = NewRuleSet([]Rule{
	{Label: domain.LabelAuth, Keywords: []string{"login", "password", "reset", "2fa", "otp"}},
	{Label: domain.LabelBilling, Keywords: []string{"payment", "invoice", "refund", "charge", "card"}},
	{Label: domain.LabelAccount, Keywords: []string{"profile", "email", "username", "account"}},
}, domain.LabelGeneral)

// NewRuleSet builds a rule set. Keywords are lowercased once here so matching
// only needs to lowercase the input text.
func NewRuleSet(rules []Rule, fallback domain.Label) RuleSet {
	copied := make([]Rule, 0, len(rules))
	for _, r := range rules {
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			keywords = append(keywords, strings.ToLower(k))
		}
		copied = append(copied, Rule{Label: r.Label, Keywords: keywords})
	}
	return RuleSet{rules: copied, fallback: fallback}
}

// Classify returns the label of the first rule with a keyword occurring as a
// substring of the lowercased "subject description" text.
func (rs RuleSet) Classify(subject, description string) domain.Label {
	text := strings.ToLower(subject + " " + description)
	for _, rule := range rs.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, keyword) {
				return rule.Label
			}
		}
	}
	return rs.fallback
}

// Classify applies DefaultRules.
func Classify(subject, description string) domain.Label {
	return DefaultRules.Classify(subject, description)
}
