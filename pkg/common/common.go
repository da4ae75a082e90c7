package common

import "time"

// MatchMethod names how an identity resolution outcome was reached.
type MatchMethod string

const (
	MatchExactIdentity MatchMethod = "exact_identity_match"
	MatchExactEmail    MatchMethod = "exact_email_match"
	MatchExactPhone    MatchMethod = "exact_phone_match"
	MatchFuzzy         MatchMethod = "fuzzy_match"
	MatchLLM           MatchMethod = "llm_disambiguation"
	MatchNewIdentity   MatchMethod = "new_identity_created"
)

// Intent classifies what a customer message is asking for.
type Intent string

const (
	IntentAccountSpecific  Intent = "account_specific"
	IntentGeneralKnowledge Intent = "general_knowledge"
	IntentTechnicalSupport Intent = "technical_support"
	IntentOutOfScope       Intent = "out_of_scope"
)

// EscalationPriority grades how urgently a human needs to pick up
// an escalated conversation.
type EscalationPriority string

const (
	PriorityHigh   EscalationPriority = "high"
	PriorityMedium EscalationPriority = "medium"
	PriorityLow    EscalationPriority = "low"
)

// EscalationStatus tracks the lifecycle of an escalation record.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationClaimed  EscalationStatus = "claimed"
	EscalationResolved EscalationStatus = "resolved"
)

// Entity represents a resolved customer identity. An entity is the
// canonical record that identity links from multiple platforms point at.
//
// CanonicalName holds the normalized display name used for fuzzy
// matching. Metadata carries free-form attributes such as account tier.
type Entity struct {
	ID            string         `json:"id"`
	CanonicalName string         `json:"canonical_name"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IdentityLink maps a platform-specific identifier to an entity.
// The pair (Platform, PlatformIdentifier) is unique across the system.
//
// NormalizedIdentifier holds the canonicalized email or phone used for
// exact lookups across platforms. Verified marks links created with
// near-certain confidence.
type IdentityLink struct {
	ID                   string      `json:"id"`
	EntityID             string      `json:"entity_id"`
	Platform             string      `json:"platform"`
	PlatformIdentifier   string      `json:"platform_identifier"`
	NormalizedIdentifier string      `json:"normalized_identifier,omitempty"`
	DisplayName          string      `json:"display_name,omitempty"`
	Confidence           float64     `json:"confidence"`
	Method               MatchMethod `json:"method"`
	Verified             bool        `json:"verified"`
	CreatedAt            time.Time   `json:"created_at"`
}

// MatchCandidate is a scored entity considered during fuzzy matching
// or handed to the language model for disambiguation.
type MatchCandidate struct {
	Entity     Entity  `json:"entity"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// ConfidenceBreakdown carries the per-factor confidence scores that
// feed the fused overall score, plus the fusion result itself.
type ConfidenceBreakdown struct {
	Identity      float64 `json:"identity"`
	Intent        float64 `json:"intent"`
	RAG           float64 `json:"rag"`
	LLM           float64 `json:"llm"`
	Overall       float64 `json:"overall"`
	WeakestFactor string  `json:"weakest_factor"`
	MeetsBar      bool    `json:"meets_bar"`
	Explanation   string  `json:"explanation"`
}

// Conversation groups the messages exchanged with one customer on one
// platform, pinned to the entity the customer resolved to.
type Conversation struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation. Role is either "user"
// or "assistant". Assistant messages carry the confidence breakdown,
// the model that produced the reply and the pipeline latency, so every
// answer can be audited after the fact.
type Message struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	Role           string               `json:"role"`
	Content        string               `json:"content"`
	Intent         Intent               `json:"intent,omitempty"`
	Confidence     float64              `json:"confidence,omitempty"`
	Breakdown      *ConfidenceBreakdown `json:"breakdown,omitempty"`
	Model          string               `json:"model,omitempty"`
	ProcessingMS   int64                `json:"processing_ms,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Escalation records a conversation handed off to a human agent,
// including why the automated pipeline gave up on it. MessageID points
// at the assistant message whose confidence breakdown triggered the
// handoff.
type Escalation struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	EntityID       string             `json:"entity_id"`
	MessageID      string             `json:"message_id,omitempty"`
	Reasons        []string           `json:"reasons"`
	Priority       EscalationPriority `json:"priority"`
	Status         EscalationStatus   `json:"status"`
	AssignedTo     string             `json:"assigned_to,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// AnalyticsRecord captures one pipeline run for later inspection.
// A record is written for every query, including failures.
type AnalyticsRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	EntityID       string    `json:"entity_id,omitempty"`
	Platform       string    `json:"platform"`
	Intent         Intent    `json:"intent,omitempty"`
	Identity       float64   `json:"identity_confidence"`
	IntentScore    float64   `json:"intent_confidence"`
	RAG            float64   `json:"rag_confidence"`
	LLM            float64   `json:"llm_confidence"`
	Overall        float64   `json:"overall_confidence"`
	Escalated      bool      `json:"escalated"`
	Errored        bool      `json:"errored"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// KnowledgeDocument is a support article ingested into the knowledge
// base. Chunks of its text are embedded separately for retrieval.
type KnowledgeDocument struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DocumentType string    `json:"document_type,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// KnowledgeChunk is an embedded segment of a knowledge document.
// Title, DocumentType and Relevance are populated on retrieval results.
type KnowledgeChunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	Title        string    `json:"title,omitempty"`
	DocumentType string    `json:"document_type,omitempty"`
	Position     int       `json:"position"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"-"`
	Relevance    float64   `json:"relevance,omitempty"`
}
