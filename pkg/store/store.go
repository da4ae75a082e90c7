package store

import (
	"context"
	"errors"
	"time"

	"github.com/helmsman-ai/concierge/pkg/common"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateLink is returned when an identity link insert collides
	// with the unique (platform, platform_identifier) constraint.
	ErrDuplicateLink = errors.New("identity link already exists")
)

// AnalyticsSummary aggregates pipeline runs over a time window.
type AnalyticsSummary struct {
	TotalQueries      int64            `json:"total_queries"`
	EscalatedQueries  int64            `json:"escalated_queries"`
	ErroredQueries    int64            `json:"errored_queries"`
	AverageConfidence float64          `json:"average_confidence"`
	AverageLatencyMS  float64          `json:"average_latency_ms"`
	QueriesByIntent   map[string]int64 `json:"queries_by_intent"`
}

// Store defines the interface for persisting and querying identities,
// conversations, escalations, analytics, and the knowledge base. It
// provides filtered reads and inserts; resolution logic lives above it.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, entity common.Entity) (common.Entity, error)
	GetEntity(ctx context.Context, id string) (common.Entity, error)
	ListEntities(ctx context.Context) ([]common.Entity, error)

	// Identity links
	GetLinkByPlatformIdentifier(ctx context.Context, platform, platformIdentifier string) (common.IdentityLink, error)
	GetLinkByNormalizedIdentifier(ctx context.Context, normalized string) (common.IdentityLink, error)
	CreateIdentityLink(ctx context.Context, link common.IdentityLink) (common.IdentityLink, error)
	ListLinksByEntity(ctx context.Context, entityID string) ([]common.IdentityLink, error)

	// Conversations
	CreateConversation(ctx context.Context, conv common.Conversation) (common.Conversation, error)
	GetConversation(ctx context.Context, id string) (common.Conversation, error)
	AppendMessage(ctx context.Context, msg common.Message) (common.Message, error)
	GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]common.Message, error)

	// Escalations
	CreateEscalation(ctx context.Context, esc common.Escalation) (common.Escalation, error)
	GetEscalation(ctx context.Context, id string) (common.Escalation, error)
	ListEscalations(ctx context.Context, status common.EscalationStatus, limit int) ([]common.Escalation, error)
	UpdateEscalationStatus(ctx context.Context, id string, status common.EscalationStatus, assignedTo string) (common.Escalation, error)

	// Analytics
	RecordAnalytics(ctx context.Context, rec common.AnalyticsRecord) error
	AnalyticsSummary(ctx context.Context, since time.Time) (AnalyticsSummary, error)

	// Knowledge base
	SaveKnowledgeDocument(ctx context.Context, doc common.KnowledgeDocument, chunks []common.KnowledgeChunk) error
	SearchKnowledge(ctx context.Context, embedding []float32, topK int, minSimilarity float64, documentTypes []string) ([]common.KnowledgeChunk, error)
}
