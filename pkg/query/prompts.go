package query

import (
	"fmt"
	"strings"

	"github.com/helmsman-ai/concierge/pkg/common"
)

const systemPromptAssistant = `You are the Concierge assistant, a helpful and knowledgeable customer support assistant.

Your role is to help customers with:
- Questions about products and services
- Billing and payment inquiries
- Account dashboard features and navigation
- General questions about how things work

Guidelines:
- If you have relevant information from the knowledge base, use it
- If you are unsure, acknowledge it honestly and offer to escalate to human support
- Never make up specific numbers, dates, or policies
- If asked about account-specific information you do not have access to, guide the customer to their dashboard or to support`

const systemPromptWithContext = `You are the Concierge assistant, a helpful customer support assistant.

Relevant information from the knowledge base is included below to help answer the customer's question.

Guidelines:
- Base your answer primarily on the provided context
- If the context does not fully answer the question, use general knowledge but note the customer may need to contact support for specifics
- Be conversational and friendly, not robotic
- Keep responses concise, at most a few short paragraphs
- If appropriate, ask whether anything needs clarification`

const intentClassificationPrompt = `You are an intent classification system for a customer support assistant.

Classify the user's query into ONE of these intents:

1. account_specific: Questions about their own account, orders, payments, or personal data.
   Examples: "When will I get paid?", "Update my email address"

2. general_knowledge: Questions about how the product, services, or policies work.
   Examples: "How does billing work?", "What plans do you offer?"

3. technical_support: Issues with the website, dashboard access, login problems, or errors.
   Examples: "I can't log in", "Dashboard won't load"

4. out_of_scope: Questions unrelated to the product or company.
   Examples: "What's the weather?", "Tell me a joke"

USER MESSAGE:
%s`

var intentInstructions = map[common.Intent]string{
	common.IntentAccountSpecific:  "This is a question about the customer's own account or data. Use the provided customer context to answer.",
	common.IntentGeneralKnowledge: "This is a general question. Use the knowledge base context to provide a comprehensive answer.",
	common.IntentTechnicalSupport: "This is a technical support question. Provide troubleshooting steps and offer to escalate if needed.",
	common.IntentOutOfScope:       "This question is outside our scope. Politely redirect to supported topics.",
}

// buildResponsePrompt layers intent guidance, retrieved context, and
// entity attributes around the user's message.
func buildResponsePrompt(message, ragContext string, entity *common.Entity, intent common.Intent) string {
	var parts []string

	if instruction, ok := intentInstructions[intent]; ok {
		parts = append(parts, instruction)
	}

	if ragContext != "" {
		parts = append(parts, fmt.Sprintf("\nKNOWLEDGE BASE INFORMATION:\n%s\n", ragContext))
	}

	if entity != nil {
		var info []string
		if entity.CanonicalName != "" {
			info = append(info, "Customer: "+entity.CanonicalName)
		}
		if entity.Email != "" {
			info = append(info, "Email: "+entity.Email)
		}
		for key, value := range entity.Metadata {
			info = append(info, fmt.Sprintf("%s: %v", key, value))
		}
		if len(info) > 0 {
			parts = append(parts, "\nCUSTOMER INFORMATION:\n"+strings.Join(info, "\n")+"\n")
		}
	}

	parts = append(parts, fmt.Sprintf("\nUSER QUESTION:\n%s\n", message))

	parts = append(parts, `
YOUR TASK:
Provide a helpful, accurate response based on the information above.
- Be conversational and friendly
- Keep it concise
- If you cannot fully answer, explain what information you need`)

	return strings.Join(parts, "\n")
}
