package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/agentic-support/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		description string
		want        domain.Label
	}{
		{name: "auth keyword in subject", subject: "Reset link expired", description: "Cannot log in", want: domain.LabelAuth},
		{name: "billing keyword in description", subject: "Payment failed", description: "card declined", want: domain.LabelBilling},
		{name: "account keywords", subject: "profile", description: "change email", want: domain.LabelAccount},
		{name: "auth wins over billing", subject: "password payment issue", description: "help", want: domain.LabelAuth},
		{name: "billing wins over account", subject: "refund to my account", description: "please", want: domain.LabelBilling},
		{name: "substring match", subject: "hello", description: "my carding hobby", want: domain.LabelBilling},
		{name: "case insensitive", subject: "OTP never arrives", description: "SMS", want: domain.LabelAuth},
		{name: "description keyword beats subject keyword by rule order", subject: "email", description: "otp", want: domain.LabelAuth},
		{name: "joint space does not glue words", subject: "lo", description: "gin problems", want: domain.LabelGeneral},
		{name: "fallback", subject: "printer jammed", description: "paper stuck", want: domain.LabelGeneral},
		{name: "empty text", subject: "", description: "", want: domain.LabelGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.subject, tt.description))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	first := Classify("Invoice missing", "sent to wrong email")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Classify("Invoice missing", "sent to wrong email"))
	}
	assert.Equal(t, domain.LabelBilling, first)
}

func TestRuleSet_OrderIsTieBreak(t *testing.T) {
	rules := NewRuleSet([]Rule{
		{Label: domain.LabelAccount, Keywords: []string{"Email"}},
		{Label: domain.LabelAuth, Keywords: []string{"password"}},
	}, "other")

	assert.Equal(t, domain.LabelAccount, rules.Classify("password and email", ""))
	assert.Equal(t, domain.LabelAuth, rules.Classify("password", ""))
	assert.Equal(t, domain.Label("other"), rules.Classify("printer", ""))
}
