// Package rules implements the always-available regex-based classifier.
// It is both a standalone classifier.Classifier and the fallback target
// for the optional LLM-backed implementation.
package rules

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/bankflowhq/workflow-engine/internal/classifier"
)

var (
	balancePatterns = compileAll(
		`\bbalance\b`, `\bbalanse\b`, `\bbalence\b`, `\bbalanc\b`,
		`\baccoun?t\s+balance\b`, `\bmy\s+balance\b`, `\bcheck\s+balance\b`, `\bshow\s+balance\b`,
	)
	transferPatterns = compileAll(
		`\btransfer\b`, `\btansfer\b`, `\btranfer\b`, `\btransffer\b`, `\btransfar\b`,
		`\bsend\b`, `\bsnd\b`, `\bpay\b`, `\bmove\b`, `\bsend\s+money\b`, `\bgive\b`,
		`\b\d+\s+to\s+\w+\b`,
	)
	statementPatterns = compileAll(
		`\bstatement\b`, `\bstatment\b`, `\bstatemnt\b`, `\bstatmnt\b`,
		`\btransactions?\b`, `\btransaction\b`, `\btransacton\b`,
		`\bhistory\b`, `\bhistroy\b`, `\brecent\s+activity\b`,
		`\bshow\s+statement\b`, `\baccoun?t\s+statement\b`,
	)
	loanPatterns = compileAll(
		`\bloan\b`, `\blon\b`, `\blone\b`, `\blaon\b`,
		`\bcredit\b`, `\bkredit\b`, `\beligible\b`, `\beligable\b`,
		`\bborrow\b`, `\bborow\b`, `\bapply\s+for\s+loan\b`, `\bloan\s+info\b`, `\bloan\s+inquiry\b`,
	)

	amountRe            = regexp.MustCompile(`(?i)(?:send|transfer)?\s*(\d+(?:[.,]\d{1,2})?)`)
	recipientRe         = regexp.MustCompile(`(?i)to\s+(account\s*\d+|\w+|'\w+|\w+'s\s+account)`)
	possessiveRecipient = regexp.MustCompile(`(?i)(\w+)'s\s+account`)
	altRecipientRe      = regexp.MustCompile(`(?i)account\s*(\d+)`)
	nameRecipientRe     = regexp.MustCompile(`(?i)to\s+(\w+)`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Classifier is the regex-based classifier.Classifier implementation.
type Classifier struct{}

// New returns a ready-to-use rules classifier.
func New() *Classifier { return &Classifier{} }

// Classify never returns an error — it is the system's always-available
// baseline and fallback target.
func (c *Classifier) Classify(_ context.Context, message string) (classifier.Result, error) {
	m := strings.ToLower(message)

	var intent classifier.Intent
	switch {
	case anyMatch(balancePatterns, m):
		intent = classifier.IntentBalanceInquiry
	case anyMatch(transferPatterns, m):
		intent = classifier.IntentMoneyTransfer
	case anyMatch(statementPatterns, m):
		intent = classifier.IntentAccountStatement
	case anyMatch(loanPatterns, m):
		intent = classifier.IntentLoanInquiry
	default:
		intent = classifier.IntentFallback
	}

	entities := map[string]string{}
	switch intent {
	case classifier.IntentMoneyTransfer:
		if amount, ok := extractAmount(message); ok {
			entities["amount"] = amount
		}
		entities["recipient"] = extractRecipient(message)
	case classifier.IntentLoanInquiry:
		if amount, ok := extractAmount(message); ok {
			entities["loan_amount"] = amount
		}
	}

	return classifier.Result{
		Intent:     intent,
		Entities:   entities,
		Confidence: confidenceFor(intent, m),
	}, nil
}

// confidenceFor gives a clear-pattern match a high confidence and anything
// reaching fallback a low one, so the low-confidence gate still triggers
// for truly ambiguous text.
func confidenceFor(intent classifier.Intent, m string) float64 {
	if intent == classifier.IntentFallback {
		if strings.TrimSpace(m) == "" {
			return 0
		}
		return 0.30
	}
	return 0.95
}

func extractAmount(message string) (string, bool) {
	match := amountRe.FindStringSubmatch(message)
	if match == nil {
		return "", false
	}
	raw := strings.Replace(match[1], ",", ".", 1)
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return "", false
	}
	return raw, true
}

func extractRecipient(message string) string {
	if m := altRecipientRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if m := possessiveRecipient.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if m := recipientRe.FindStringSubmatch(message); m != nil {
		return strings.TrimSuffix(m[1], "'s account")
	}
	if m := nameRecipientRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return "kiran"
}
