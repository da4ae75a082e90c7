package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/helmsman-ai/concierge/internal/config"
	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/confidence"
	"github.com/helmsman-ai/concierge/pkg/identity"
	"github.com/helmsman-ai/concierge/pkg/rag"
	"github.com/helmsman-ai/concierge/pkg/store"
)

type pipelineStore struct {
	store.Store

	conversations  []common.Conversation
	messages       []common.Message
	escalations    []common.Escalation
	analytics      []common.AnalyticsRecord
	history        []common.Message
	analyticsErr   error
	escalationErr  error
	appendErr      error
	historyErr     error
	conversationID string
}

func (s *pipelineStore) CreateConversation(_ context.Context, conv common.Conversation) (common.Conversation, error) {
	conv.ID = s.conversationID
	if conv.ID == "" {
		conv.ID = fmt.Sprintf("conv-%d", len(s.conversations)+1)
	}
	s.conversations = append(s.conversations, conv)
	return conv, nil
}

func (s *pipelineStore) AppendMessage(_ context.Context, msg common.Message) (common.Message, error) {
	if s.appendErr != nil {
		return common.Message{}, s.appendErr
	}
	msg.ID = fmt.Sprintf("msg-%d", len(s.messages)+1)
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *pipelineStore) GetRecentMessages(_ context.Context, _ string, _ int) ([]common.Message, error) {
	return s.history, s.historyErr
}

func (s *pipelineStore) CreateEscalation(_ context.Context, esc common.Escalation) (common.Escalation, error) {
	if s.escalationErr != nil {
		return common.Escalation{}, s.escalationErr
	}
	esc.ID = fmt.Sprintf("esc-%d", len(s.escalations)+1)
	s.escalations = append(s.escalations, esc)
	return esc, nil
}

func (s *pipelineStore) RecordAnalytics(_ context.Context, rec common.AnalyticsRecord) error {
	if s.analyticsErr != nil {
		return s.analyticsErr
	}
	s.analytics = append(s.analytics, rec)
	return nil
}

type stubResolver struct {
	resolution identity.Resolution
	err        error
}

func (r *stubResolver) Resolve(_ context.Context, _ identity.Query) (identity.Resolution, error) {
	return r.resolution, r.err
}

type stubClassifier struct {
	intent     common.Intent
	confidence float64
	gotHistory []ai.ChatMessage
}

func (c *stubClassifier) Classify(_ context.Context, _ string, history []ai.ChatMessage) (common.Intent, float64) {
	c.gotHistory = history
	return c.intent, c.confidence
}

type stubRetriever struct {
	chunks   []common.KnowledgeChunk
	err      error
	calls    int
	gotTypes []string
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, documentTypes []string) ([]common.KnowledgeChunk, error) {
	r.calls++
	r.gotTypes = documentTypes
	return r.chunks, r.err
}

type stubChatClient struct {
	ai.Client

	response    string
	err         error
	gotMessages []ai.ChatMessage
}

func (c *stubChatClient) GenerateChat(_ context.Context, messages []ai.ChatMessage, _ ...ai.GenerateOption) (string, error) {
	c.gotMessages = messages
	return c.response, c.err
}

func (c *stubChatClient) GetMetrics() ai.ModelMetrics {
	return ai.ModelMetrics{TotalTokens: 42}
}

type capturingPublisher struct {
	published []common.Escalation
	err       error
}

func (p *capturingPublisher) PublishEscalation(_ context.Context, esc common.Escalation) error {
	p.published = append(p.published, esc)
	return p.err
}

func highConfidenceResolution() identity.Resolution {
	return identity.Resolution{
		Entity:     common.Entity{ID: "e1", CanonicalName: "Jane Smith"},
		Confidence: 1.0,
		Method:     common.MatchExactEmail,
	}
}

func relevantChunks() []common.KnowledgeChunk {
	return []common.KnowledgeChunk{{
		ID: "c1", DocumentID: "d1", Title: "Billing FAQ",
		Text:      strings.Repeat("Billing cycles run monthly and renew automatically. ", 4),
		Relevance: 0.92,
	}}
}

func newTestProcessor(s *pipelineStore, resolver *stubResolver, classifier *stubClassifier, retriever *stubRetriever, chat *stubChatClient, publisher EscalationPublisher) *Processor {
	return NewProcessor(ProcessorParams{
		Store:      s,
		Client:     chat,
		Resolver:   resolver,
		Classifier: classifier,
		Retriever:  retriever,
		Fuser:      confidence.NewFuser(config.ConfidenceWeights{Identity: 0.30, Intent: 0.20, RAG: 0.25, LLM: 0.25}, 0.80),
		Publisher:  publisher,
		Model:      "llama3.2",
	})
}

func TestProcessHighConfidenceResponds(t *testing.T) {
	s := &pipelineStore{}
	chat := &stubChatClient{response: "Billing cycles run monthly and renew automatically."}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.95},
		&stubRetriever{chunks: relevantChunks()},
		chat, nil)

	result := p.Process(context.Background(), Request{Message: "How does billing work?", Platform: "web"})

	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.ShouldEscalate {
		t.Errorf("high confidence result escalated: %+v", result.Breakdown)
	}
	if result.Escalation != nil {
		t.Error("escalation created on confident answer")
	}
	if result.Metadata.EntityID != "e1" || result.Metadata.Intent != common.IntentGeneralKnowledge {
		t.Errorf("metadata = %+v", result.Metadata)
	}
	if result.Metadata.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42 from client metrics", result.Metadata.TokensUsed)
	}
	if len(s.conversations) != 1 || len(s.messages) != 2 {
		t.Errorf("persisted %d conversations / %d messages, want 1 / 2", len(s.conversations), len(s.messages))
	}
	if s.messages[0].Role != "user" || s.messages[1].Role != "assistant" {
		t.Errorf("message roles = %s/%s", s.messages[0].Role, s.messages[1].Role)
	}
	if len(s.analytics) != 1 || s.analytics[0].Errored || s.analytics[0].Escalated {
		t.Errorf("analytics = %+v, want one clean record", s.analytics)
	}
}

func TestProcessLowConfidenceEscalates(t *testing.T) {
	s := &pipelineStore{}
	publisher := &capturingPublisher{}
	chat := &stubChatClient{response: "I'm not sure, please contact support."}
	p := newTestProcessor(s,
		&stubResolver{resolution: identity.Resolution{
			Entity: common.Entity{ID: "e1"}, Confidence: 0.5, Method: common.MatchNewIdentity,
		}},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.1},
		&stubRetriever{},
		chat, publisher)

	result := p.Process(context.Background(), Request{Message: "Where is my refund?", Platform: "web"})

	if !result.Success {
		t.Fatalf("pipeline errored: %+v", result)
	}
	if !result.ShouldEscalate || result.Escalation == nil {
		t.Fatalf("result = %+v, want escalation", result)
	}
	if result.Escalation.Priority != common.PriorityHigh {
		t.Errorf("priority = %s at overall %v, want high", result.Escalation.Priority, result.Confidence)
	}
	if result.Escalation.Status != common.EscalationPending {
		t.Errorf("status = %s, want pending", result.Escalation.Status)
	}
	if len(result.Escalation.Reasons) == 0 {
		t.Error("escalation has no reasons")
	}
	if len(publisher.published) != 1 {
		t.Errorf("published %d escalations, want 1", len(publisher.published))
	}
	if len(s.analytics) != 1 || !s.analytics[0].Escalated || s.analytics[0].Errored {
		t.Errorf("analytics = %+v, want escalated record", s.analytics)
	}
}

func TestProcessMediumConfidencePriority(t *testing.T) {
	s := &pipelineStore{}
	chat := &stubChatClient{response: "Here is a partial answer."}
	p := newTestProcessor(s,
		&stubResolver{resolution: identity.Resolution{
			Entity: common.Entity{ID: "e1"}, Confidence: 0.5,
		}},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.5},
		&stubRetriever{},
		chat, nil)

	result := p.Process(context.Background(), Request{Message: "hm", Platform: "web"})

	if result.Escalation == nil {
		t.Fatalf("result = %+v, want escalation", result)
	}
	if result.Escalation.Priority != common.PriorityMedium {
		t.Errorf("priority = %s at overall %v, want medium", result.Escalation.Priority, result.Confidence)
	}
}

func TestProcessGenerationFailureDegrades(t *testing.T) {
	s := &pipelineStore{}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.9},
		&stubRetriever{},
		&stubChatClient{err: errors.New("model unavailable")}, nil)

	result := p.Process(context.Background(), Request{Message: "hello", Platform: "web"})

	if result.Success {
		t.Fatal("want degraded result on generation failure")
	}
	if result.Response != degradedResponse {
		t.Errorf("response = %q, want apology", result.Response)
	}
	if result.Confidence != 0 || !result.ShouldEscalate {
		t.Errorf("result = %+v, want zero confidence and escalation", result)
	}
	if len(s.analytics) != 1 || !s.analytics[0].Errored || !s.analytics[0].Escalated {
		t.Errorf("analytics = %+v, want errored record", s.analytics)
	}
}

func TestProcessResolutionFailureDegrades(t *testing.T) {
	s := &pipelineStore{}
	p := newTestProcessor(s,
		&stubResolver{err: identity.ErrNoIdentifiers},
		&stubClassifier{},
		&stubRetriever{},
		&stubChatClient{response: "unused"}, nil)

	result := p.Process(context.Background(), Request{Message: "hi", Platform: "web"})

	if result.Success || result.Response != degradedResponse {
		t.Fatalf("result = %+v, want degraded response", result)
	}
}

func TestProcessAccountSpecificSkipsRetrieval(t *testing.T) {
	s := &pipelineStore{}
	retriever := &stubRetriever{}
	chat := &stubChatClient{response: "Your account shows two active orders."}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentAccountSpecific, confidence: 0.9},
		retriever, chat, nil)

	result := p.Process(context.Background(), Request{Message: "When will I get paid?", Platform: "web"})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if retriever.calls != 0 {
		t.Errorf("retriever called %d times on account question, want 0", retriever.calls)
	}
	if result.Breakdown.RAG != 0.8 {
		t.Errorf("rag factor = %v, want fixed 0.8 for entity context", result.Breakdown.RAG)
	}
	var prompt string
	if len(chat.gotMessages) > 0 {
		prompt = chat.gotMessages[len(chat.gotMessages)-1].Message
	}
	if !strings.Contains(prompt, "Jane Smith") {
		t.Errorf("prompt missing entity attributes: %q", prompt)
	}
}

func TestProcessTechnicalSupportFiltersTypes(t *testing.T) {
	s := &pipelineStore{}
	retriever := &stubRetriever{}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentTechnicalSupport, confidence: 0.9},
		retriever,
		&stubChatClient{response: "Try resetting your password."}, nil)

	p.Process(context.Background(), Request{Message: "I can't log in", Platform: "web"})

	if retriever.calls != 1 {
		t.Fatalf("retriever calls = %d, want 1", retriever.calls)
	}
	if len(retriever.gotTypes) != 2 {
		t.Errorf("document types = %v, want technical filter", retriever.gotTypes)
	}
}

func TestProcessRetrievalFailureContinues(t *testing.T) {
	s := &pipelineStore{}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.9},
		&stubRetriever{err: errors.New("search down")},
		&stubChatClient{response: "General answer without context."}, nil)

	result := p.Process(context.Background(), Request{Message: "How does billing work?", Platform: "web"})

	if !result.Success {
		t.Fatalf("result = %+v, want success without context", result)
	}
	if result.Breakdown.RAG != 0 {
		t.Errorf("rag factor = %v, want 0 after retrieval failure", result.Breakdown.RAG)
	}
}

func TestProcessContinuesConversation(t *testing.T) {
	s := &pipelineStore{history: []common.Message{
		{Role: "user", Content: "How does billing work?"},
		{Role: "assistant", Content: "Billing is monthly."},
	}}
	classifier := &stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.9}
	chat := &stubChatClient{response: "As mentioned, billing is monthly."}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		classifier,
		&stubRetriever{chunks: relevantChunks()},
		chat, nil)

	result := p.Process(context.Background(), Request{
		Message: "And when is it charged?", Platform: "web", ConversationID: "conv-existing",
	})

	if result.Metadata.ConversationID != "conv-existing" {
		t.Errorf("conversation = %s, want conv-existing", result.Metadata.ConversationID)
	}
	if len(s.conversations) != 0 {
		t.Errorf("created %d conversations, want 0 when continuing", len(s.conversations))
	}
	if len(classifier.gotHistory) != 2 {
		t.Errorf("classifier history = %d turns, want 2", len(classifier.gotHistory))
	}
	if len(chat.gotMessages) != 3 {
		t.Errorf("chat messages = %d, want history plus prompt", len(chat.gotMessages))
	}
}

func TestProcessAnalyticsErrorNeverPropagates(t *testing.T) {
	s := &pipelineStore{analyticsErr: errors.New("analytics table gone")}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.9},
		&stubRetriever{chunks: relevantChunks()},
		&stubChatClient{response: "All good."}, nil)

	result := p.Process(context.Background(), Request{Message: "hi", Platform: "web"})

	if !result.Success {
		t.Fatalf("analytics failure leaked into result: %+v", result)
	}
}

func TestProcessStampsAuditOnAssistantMessage(t *testing.T) {
	s := &pipelineStore{}
	chat := &stubChatClient{response: "Billing cycles run monthly and renew automatically."}
	p := newTestProcessor(s,
		&stubResolver{resolution: highConfidenceResolution()},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.95},
		&stubRetriever{chunks: relevantChunks()},
		chat, nil)

	result := p.Process(context.Background(), Request{Message: "How does billing work?", Platform: "web"})

	if !result.Success {
		t.Fatalf("pipeline errored: %+v", result)
	}
	if len(s.messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(s.messages))
	}
	user, answer := s.messages[0], s.messages[1]
	if user.Breakdown != nil || user.Model != "" {
		t.Errorf("user message carries audit fields: %+v", user)
	}
	if answer.Breakdown == nil {
		t.Fatal("assistant message has no confidence breakdown")
	}
	if answer.Breakdown.Overall != result.Confidence {
		t.Errorf("stored overall = %v, want %v", answer.Breakdown.Overall, result.Confidence)
	}
	if answer.Breakdown.WeakestFactor == "" {
		t.Error("stored breakdown missing weakest factor")
	}
	if answer.Model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", answer.Model)
	}
	if answer.ProcessingMS < 0 {
		t.Errorf("processing ms = %d", answer.ProcessingMS)
	}
}

func TestProcessLinksEscalationToAnswer(t *testing.T) {
	s := &pipelineStore{}
	chat := &stubChatClient{response: "I'm not sure, please contact support."}
	p := newTestProcessor(s,
		&stubResolver{resolution: identity.Resolution{
			Entity: common.Entity{ID: "e1"}, Confidence: 0.5, Method: common.MatchNewIdentity,
		}},
		&stubClassifier{intent: common.IntentGeneralKnowledge, confidence: 0.1},
		&stubRetriever{},
		chat, nil)

	result := p.Process(context.Background(), Request{Message: "Where is my refund?", Platform: "web"})

	if result.Escalation == nil {
		t.Fatalf("result = %+v, want escalation", result)
	}
	if len(s.messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(s.messages))
	}
	if got, want := result.Escalation.MessageID, s.messages[1].ID; got != want {
		t.Errorf("escalation message id = %q, want assistant message %q", got, want)
	}
}

func TestAssessResponseConfidence(t *testing.T) {
	substantial := rag.Context{Text: strings.Repeat("context ", 20)}

	tests := []struct {
		name     string
		response string
		context  rag.Context
		want     float64
	}{
		{"base", "Here is your answer.", rag.Context{}, 0.7},
		{"with context", "Here is your answer.", substantial, 0.85},
		{"uncertain", "I'm not sure about that.", rag.Context{}, 0.4},
		{"defers to support", "Please contact support for help.", rag.Context{}, 0.5},
		{"uncertainty outweighs deferral", "I don't know, contact support.", substantial, 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assessResponseConfidence(tt.response, tt.context); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got, tt.want)
			}
		})
	}
}
