package query

import (
	"context"
	"fmt"

	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/logger"
)

// IntentClassifier labels inbound messages. Classification never
// fails; implementations degrade to a neutral fallback.
type IntentClassifier interface {
	Classify(ctx context.Context, message string, history []ai.ChatMessage) (common.Intent, float64)
}

type intentVerdict struct {
	Intent           string  `json:"intent" jsonschema_description:"One of account_specific, general_knowledge, technical_support, out_of_scope"`
	Confidence       float64 `json:"confidence" jsonschema_description:"Classification confidence between 0 and 1"`
	Reasoning        string  `json:"reasoning" jsonschema_description:"Brief explanation of the chosen intent"`
	NeedsAccountData bool    `json:"needs_account_data" jsonschema_description:"Whether answering requires account-specific data"`
}

// Classifier classifies intent with a structured model call.
type Classifier struct {
	client ai.Client
	model  string
}

// NewClassifier returns a classifier using the given model, or the
// client default when empty.
func NewClassifier(client ai.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify labels a message with an intent and a confidence. Model
// failures and unrecognized labels fall back to general_knowledge at
// neutral confidence.
func (c *Classifier) Classify(ctx context.Context, message string, history []ai.ChatMessage) (common.Intent, float64) {
	prompt := fmt.Sprintf(intentClassificationPrompt, message)
	if len(history) > 0 {
		prompt = "Recent conversation:\n" + renderHistory(history) + "\n\n" + prompt
	}

	opts := []ai.GenerateOption{ai.WithTemperature(0.1)}
	if c.model != "" {
		opts = append(opts, ai.WithModel(c.model))
	}

	var verdict intentVerdict
	err := c.client.GenerateCompletionWithFormat(ctx,
		"intent_classification",
		"Intent label and confidence for a customer support message",
		prompt, &verdict, opts...)
	if err != nil {
		logger.Warn("[Intent] Classification failed, using fallback", "error", err)
		return common.IntentGeneralKnowledge, 0.5
	}

	intent := common.Intent(verdict.Intent)
	switch intent {
	case common.IntentAccountSpecific, common.IntentGeneralKnowledge,
		common.IntentTechnicalSupport, common.IntentOutOfScope:
	default:
		logger.Warn("[Intent] Unrecognized label, using fallback", "label", verdict.Intent)
		return common.IntentGeneralKnowledge, 0.5
	}

	confidence := verdict.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	logger.Debug("[Intent] Classified", "intent", intent, "confidence", confidence)
	return intent, confidence
}

func renderHistory(history []ai.ChatMessage) string {
	rendered := ""
	for _, msg := range history {
		rendered += msg.Role + ": " + msg.Message + "\n"
	}
	return rendered
}
