// Package classifier defines the pluggable intent-classification contract:
// a message goes in, an intent plus extracted entities and a confidence
// score come out. Two implementations ship — rules (always available, also
// the fallback target) and llm (optional, OpenAI-backed) — selected by
// configuration in cmd/bankflow.
package classifier

import (
	"context"
	"log/slog"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

// Intent is one of the five banking intents the graph routes on.
type Intent string

const (
	IntentBalanceInquiry   Intent = "balance_inquiry"
	IntentMoneyTransfer    Intent = "money_transfer"
	IntentAccountStatement Intent = "account_statement"
	IntentLoanInquiry      Intent = "loan_inquiry"
	IntentFallback         Intent = "fallback"
)

// FallbackConfidence is the single fixed confidence pinned on the
// error-fallback path, whatever the fallback itself computed.
const FallbackConfidence = 0.50

// Result is what a Classifier produces for one message.
type Result struct {
	Intent     Intent
	Entities   map[string]string
	Confidence float64
}

// Classifier classifies a single message.
type Classifier interface {
	Classify(ctx context.Context, message string) (Result, error)
}

// WithFallback wraps primary so that any error it returns is masked by a
// call to fallback, with confidence pinned to FallbackConfidence. A
// classification error is never fatal. The rules classifier itself never
// errors, so in practice this only triggers when primary is the LLM-backed
// implementation.
func WithFallback(primary, fallback Classifier, logger *slog.Logger) Classifier {
	return &fallbackClassifier{primary: primary, fallback: fallback, logger: logger}
}

type fallbackClassifier struct {
	primary  Classifier
	fallback Classifier
	logger   *slog.Logger
}

func (f *fallbackClassifier) Classify(ctx context.Context, message string) (Result, error) {
	res, err := f.primary.Classify(ctx, message)
	if err == nil {
		return res, nil
	}
	if f.logger != nil {
		f.logger.Warn("classifier error, falling back to rules", "error", err)
	}
	res, ferr := f.fallback.Classify(ctx, message)
	if ferr != nil {
		return Result{}, bankerr.New(bankerr.KindClassifier, "classifier.fallback", ferr)
	}
	res.Confidence = FallbackConfidence
	return res, nil
}
