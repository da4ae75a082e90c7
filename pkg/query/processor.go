// Package query orchestrates the end-to-end support pipeline: resolve
// who is asking, classify what they want, gather context, generate an
// answer, score confidence, and either respond or escalate.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/helmsman-ai/concierge/internal/config"
	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/confidence"
	"github.com/helmsman-ai/concierge/pkg/identity"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/rag"
	"github.com/helmsman-ai/concierge/pkg/store"
)

const degradedResponse = "I apologize, but I'm experiencing technical difficulties. Please try again or contact our support team."

// technicalDocTypes filters retrieval for technical support questions.
var technicalDocTypes = []string{"dashboard", "technical_support"}

// Request is one inbound customer message with whatever identifiers
// the platform captured.
type Request struct {
	Message            string
	Name               string
	Email              string
	Phone              string
	Platform           string
	PlatformIdentifier string
	// ConversationID continues an existing conversation when set.
	ConversationID string
}

// Metadata carries per-request diagnostics returned alongside the
// response text.
type Metadata struct {
	ConversationID     string             `json:"conversation_id,omitempty"`
	EntityID           string             `json:"entity_id,omitempty"`
	IdentityMethod     common.MatchMethod `json:"identity_method,omitempty"`
	IdentityConfidence float64            `json:"identity_confidence,omitempty"`
	Intent             common.Intent      `json:"intent,omitempty"`
	IntentConfidence   float64            `json:"intent_confidence,omitempty"`
	TokensUsed         int                `json:"tokens_used,omitempty"`
	ProcessingTimeMS   int64              `json:"processing_time_ms"`
	Sources            []rag.Source       `json:"sources,omitempty"`
}

// Result is the outcome of processing one request. Success false
// means the pipeline failed and the response is a generic apology.
type Result struct {
	Success        bool                       `json:"success"`
	Response       string                     `json:"response"`
	Confidence     float64                    `json:"confidence"`
	Breakdown      common.ConfidenceBreakdown `json:"confidence_breakdown"`
	ShouldEscalate bool                       `json:"should_escalate"`
	Escalation     *common.Escalation         `json:"escalation,omitempty"`
	Metadata       Metadata                   `json:"metadata"`
}

// Resolver maps a request to an entity. Satisfied by
// identity.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, q identity.Query) (identity.Resolution, error)
}

// Retriever fetches knowledge chunks for a query. Satisfied by
// rag.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, documentTypes []string) ([]common.KnowledgeChunk, error)
}

// EscalationPublisher hands escalations to the dispatch queue.
type EscalationPublisher interface {
	PublishEscalation(ctx context.Context, esc common.Escalation) error
}

// ProcessorParams wires a Processor's collaborators.
type ProcessorParams struct {
	Store          store.Store
	Client         ai.Client
	Resolver       Resolver
	Classifier     IntentClassifier
	Retriever      Retriever
	ContextBuilder *rag.ContextBuilder
	Fuser          *confidence.Fuser
	// Publisher may be nil; escalations are then stored but not
	// dispatched.
	Publisher EscalationPublisher
	// HistoryLimit bounds conversation history turns, 10 when zero.
	HistoryLimit int
	// Model is recorded on persisted assistant messages for auditing.
	Model string
}

// Processor runs the support pipeline.
type Processor struct {
	store          store.Store
	client         ai.Client
	resolver       Resolver
	classifier     IntentClassifier
	retriever      Retriever
	contextBuilder *rag.ContextBuilder
	fuser          *confidence.Fuser
	publisher      EscalationPublisher
	historyLimit   int
	model          string
}

// NewProcessor builds a processor from its collaborators.
func NewProcessor(params ProcessorParams) *Processor {
	historyLimit := params.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	contextBuilder := params.ContextBuilder
	if contextBuilder == nil {
		contextBuilder = rag.NewContextBuilder(0)
	}
	fuser := params.Fuser
	if fuser == nil {
		fuser = confidence.NewFuser(config.ConfidenceWeights{}, 0)
	}
	return &Processor{
		store:          params.Store,
		client:         params.Client,
		resolver:       params.Resolver,
		classifier:     params.Classifier,
		retriever:      params.Retriever,
		contextBuilder: contextBuilder,
		fuser:          fuser,
		publisher:      params.Publisher,
		historyLimit:   historyLimit,
		model:          params.Model,
	}
}

// Process runs one request through the full pipeline. It never
// returns an error: failures produce a degraded result and an
// analytics record.
func (p *Processor) Process(ctx context.Context, req Request) Result {
	start := time.Now()
	record := common.AnalyticsRecord{
		ConversationID: req.ConversationID,
		Platform:       req.Platform,
		Escalated:      true,
		Errored:        true,
	}
	defer func() {
		record.LatencyMS = time.Since(start).Milliseconds()
		if err := p.store.RecordAnalytics(ctx, record); err != nil {
			logger.Error("[Query] Analytics write failed", "error", err)
		}
	}()

	resolution, err := p.resolver.Resolve(ctx, identity.Query{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		Platform:           req.Platform,
		PlatformIdentifier: req.PlatformIdentifier,
		Context:            req.Message,
	})
	if err != nil {
		return p.degrade(&record, "identity resolution", err)
	}
	record.EntityID = resolution.Entity.ID
	record.Identity = resolution.Confidence

	history := p.loadHistory(ctx, req.ConversationID)

	intent, intentConfidence := p.classifier.Classify(ctx, req.Message, history)
	record.Intent = intent
	record.IntentScore = intentConfidence

	ragContext, ragRelevance, entityContext := p.gatherContext(ctx, req.Message, intent, resolution.Entity)
	record.RAG = ragRelevance

	response, err := p.generate(ctx, req.Message, intent, ragContext, entityContext, history)
	if err != nil {
		return p.degrade(&record, "response generation", err)
	}

	llmConfidence := assessResponseConfidence(response, ragContext)
	record.LLM = llmConfidence

	breakdown := p.fuser.Fuse(confidence.Factors{
		Identity: confidence.Score(resolution.Confidence),
		Intent:   confidence.Score(intentConfidence),
		RAG:      confidence.Score(ragRelevance),
		LLM:      confidence.Score(llmConfidence),
	})
	record.Overall = breakdown.Overall
	record.Escalated = breakdown.ShouldEscalate()

	conversationID, answerID, err := p.persistTurn(ctx, req, resolution, intent, intentConfidence, response, breakdown, time.Since(start).Milliseconds())
	if err != nil {
		return p.degrade(&record, "conversation persistence", err)
	}
	record.ConversationID = conversationID

	var escalation *common.Escalation
	if breakdown.ShouldEscalate() {
		escalation, err = p.escalate(ctx, conversationID, resolution.Entity.ID, answerID, breakdown)
		if err != nil {
			return p.degrade(&record, "escalation", err)
		}
	}

	record.Errored = false

	metrics := p.client.GetMetrics()
	return Result{
		Success:        true,
		Response:       response,
		Confidence:     breakdown.Overall,
		Breakdown:      breakdown.Common(),
		ShouldEscalate: breakdown.ShouldEscalate(),
		Escalation:     escalation,
		Metadata: Metadata{
			ConversationID:     conversationID,
			EntityID:           resolution.Entity.ID,
			IdentityMethod:     resolution.Method,
			IdentityConfidence: resolution.Confidence,
			Intent:             intent,
			IntentConfidence:   intentConfidence,
			TokensUsed:         metrics.TotalTokens,
			ProcessingTimeMS:   time.Since(start).Milliseconds(),
			Sources:            ragContext.Sources,
		},
	}
}

func (p *Processor) degrade(record *common.AnalyticsRecord, stage string, err error) Result {
	logger.Error("[Query] Pipeline failed", "stage", stage, "error", err)
	record.Errored = true
	record.Escalated = true
	record.Overall = 0
	return Result{
		Success:        false,
		Response:       degradedResponse,
		Confidence:     0,
		ShouldEscalate: true,
		Metadata:       Metadata{ConversationID: record.ConversationID},
	}
}

func (p *Processor) loadHistory(ctx context.Context, conversationID string) []ai.ChatMessage {
	if conversationID == "" {
		return nil
	}
	messages, err := p.store.GetRecentMessages(ctx, conversationID, p.historyLimit)
	if err != nil {
		logger.Warn("[Query] History load failed, continuing without", "conversation", conversationID, "error", err)
		return nil
	}
	history := make([]ai.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, ai.ChatMessage{Message: msg.Content, Role: msg.Role})
	}
	return history
}

// gatherContext picks the context source by intent: knowledge base
// for general and technical questions, entity attributes for account
// questions. Retrieval failures degrade to no context rather than
// failing the request.
func (p *Processor) gatherContext(ctx context.Context, message string, intent common.Intent, entity common.Entity) (rag.Context, float64, *common.Entity) {
	switch intent {
	case common.IntentGeneralKnowledge, common.IntentTechnicalSupport:
		var types []string
		if intent == common.IntentTechnicalSupport {
			types = technicalDocTypes
		}
		chunks, err := p.retriever.Retrieve(ctx, message, types)
		if err != nil {
			logger.Warn("[Query] Retrieval failed, answering without context", "error", err)
			return rag.Context{}, 0, nil
		}
		return p.contextBuilder.Build(chunks), rag.AverageRelevance(chunks), nil

	case common.IntentAccountSpecific:
		// Entity attributes stand in for retrieval.
		return rag.Context{}, 0.8, &entity

	default:
		return rag.Context{}, 0.5, nil
	}
}

func (p *Processor) generate(ctx context.Context, message string, intent common.Intent, ragContext rag.Context, entity *common.Entity, history []ai.ChatMessage) (string, error) {
	systemPrompt := systemPromptAssistant
	if ragContext.Text != "" {
		systemPrompt = systemPromptWithContext
	}

	prompt := buildResponsePrompt(message, ragContext.Text, entity, intent)
	messages := make([]ai.ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ai.ChatMessage{Message: prompt, Role: "user"})

	return p.client.GenerateChat(ctx, messages,
		ai.WithSystemPrompts(systemPrompt),
		ai.WithTemperature(0.3))
}

// assessResponseConfidence scores the answer with a cheap heuristic:
// base 0.7, raised when substantial context backed it, lowered when
// the answer hedges or defers to support. Clamped to [0.1, 0.95].
func assessResponseConfidence(response string, ragContext rag.Context) float64 {
	score := 0.7

	if ragContext.Substantial() {
		score += 0.15
	}

	lowered := strings.ToLower(response)
	if strings.Contains(lowered, "i don't know") || strings.Contains(lowered, "i'm not sure") {
		score -= 0.3
	} else if strings.Contains(lowered, "contact support") {
		score -= 0.2
	}

	if score < 0.1 {
		return 0.1
	}
	if score > 0.95 {
		return 0.95
	}
	return score
}

// persistTurn stores the user and assistant messages and returns the
// conversation ID and the assistant message ID. The assistant message
// carries the confidence breakdown, the model name and the pipeline
// latency so the answer can be audited later.
func (p *Processor) persistTurn(ctx context.Context, req Request, resolution identity.Resolution, intent common.Intent, intentConfidence float64, response string, breakdown confidence.Breakdown, elapsedMS int64) (string, string, error) {
	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := p.store.CreateConversation(ctx, common.Conversation{
			EntityID: resolution.Entity.ID,
			Platform: req.Platform,
		})
		if err != nil {
			return "", "", err
		}
		conversationID = conv.ID
	}

	if _, err := p.store.AppendMessage(ctx, common.Message{
		ConversationID: conversationID,
		Role:           "user",
		Content:        req.Message,
		Intent:         intent,
		Confidence:     intentConfidence,
	}); err != nil {
		return "", "", err
	}

	audit := breakdown.Common()
	answer, err := p.store.AppendMessage(ctx, common.Message{
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        response,
		Intent:         intent,
		Confidence:     breakdown.Overall,
		Breakdown:      &audit,
		Model:          p.model,
		ProcessingMS:   elapsedMS,
	})
	if err != nil {
		return "", "", err
	}

	return conversationID, answer.ID, nil
}

func (p *Processor) escalate(ctx context.Context, conversationID, entityID, messageID string, breakdown confidence.Breakdown) (*common.Escalation, error) {
	priority := common.PriorityLow
	switch {
	case breakdown.Overall < 0.3:
		priority = common.PriorityHigh
	case breakdown.Overall < 0.5:
		priority = common.PriorityMedium
	}

	escalation, err := p.store.CreateEscalation(ctx, common.Escalation{
		ConversationID: conversationID,
		EntityID:       entityID,
		MessageID:      messageID,
		Reasons:        breakdown.EscalationReasons(),
		Priority:       priority,
		Status:         common.EscalationPending,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("[Query] Escalation created", "id", escalation.ID, "priority", priority)

	if p.publisher != nil {
		if err := p.publisher.PublishEscalation(ctx, escalation); err != nil {
			logger.Error("[Query] Escalation publish failed", "id", escalation.ID, "error", err)
		}
	}

	return &escalation, nil
}
