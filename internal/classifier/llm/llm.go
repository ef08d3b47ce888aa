// Package llm implements the optional LLM-backed classifier.Classifier
// over an OpenAI-compatible JSON-mode chat completion.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/classifier"
)

const systemPrompt = `You are a banking AI assistant that analyzes customer requests.

Respond ONLY with valid JSON in this exact format:
{
  "intent": "one of: balance_inquiry, money_transfer, account_statement, loan_inquiry, fallback",
  "entities": {"amount": null or number, "recipient": null or string, "loan_amount": null or number},
  "confidence": 0.95
}

Rules:
1. confidence should be 0.90+ for clear requests.
2. confidence should be 0.50-0.80 for vague requests.
3. confidence should be <0.50 for unclear or non-banking requests.
4. Extract amount/loan_amount as numbers, never strings.
5. Handle typos gracefully (e.g. "tansfer" means "transfer").`

type llmResult struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
}

var validIntents = map[string]bool{
	string(classifier.IntentBalanceInquiry):   true,
	string(classifier.IntentMoneyTransfer):    true,
	string(classifier.IntentAccountStatement): true,
	string(classifier.IntentLoanInquiry):      true,
	string(classifier.IntentFallback):         true,
}

// Classifier calls an OpenAI-compatible chat completion endpoint.
type Classifier struct {
	client *openai.Client
	model  string
}

// New builds a Classifier. baseURL may be empty to use OpenAI's default
// endpoint, or set to point at a compatible gateway.
func New(apiKey, baseURL, model string) *Classifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Classifier{client: openai.NewClientWithConfig(cfg), model: model}
}

// Classify sends message to the configured model in JSON mode and parses
// the intent/entities/confidence envelope. Any failure (transport, decode,
// invalid intent) is returned as a ClassifierError for the caller to fall
// back on, per classifier.WithFallback.
func (c *Classifier) Classify(ctx context.Context, message string) (classifier.Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("User Request: %q", message)},
		},
	})
	if err != nil {
		return classifier.Result{}, bankerr.New(bankerr.KindClassifier, "llm.classify", err)
	}
	if len(resp.Choices) == 0 {
		return classifier.Result{}, bankerr.New(bankerr.KindClassifier, "llm.classify", fmt.Errorf("empty completion"))
	}

	var parsed llmResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return classifier.Result{}, bankerr.New(bankerr.KindClassifier, "llm.decode", err)
	}

	if !validIntents[parsed.Intent] {
		return classifier.Result{}, bankerr.New(bankerr.KindClassifier, "llm.decode", fmt.Errorf("invalid intent %q", parsed.Intent))
	}

	entities := map[string]string{}
	for k, v := range parsed.Entities {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			entities[k] = fmt.Sprintf("%g", val)
		case string:
			entities[k] = val
		}
	}

	return classifier.Result{
		Intent:     classifier.Intent(parsed.Intent),
		Entities:   entities,
		Confidence: parsed.Confidence,
	}, nil
}
