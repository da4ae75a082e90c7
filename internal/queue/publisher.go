package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/helmsman-ai/concierge/pkg/common"
)

// EscalationMsg is the wire form of an escalation event.
type EscalationMsg struct {
	EscalationID   string   `json:"escalation_id"`
	ConversationID string   `json:"conversation_id"`
	EntityID       string   `json:"entity_id"`
	MessageID      string   `json:"message_id,omitempty"`
	Priority       string   `json:"priority"`
	Reasons        []string `json:"reasons"`
	CreatedAt      string   `json:"created_at"`
}

// Publisher pushes escalation events onto the dispatch queue. It
// satisfies the pipeline's EscalationPublisher interface.
type Publisher struct {
	ch *amqp091.Channel
}

// NewPublisher wraps an open channel.
func NewPublisher(ch *amqp091.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishEscalation enqueues one escalation for the dispatch worker.
func (p *Publisher) PublishEscalation(_ context.Context, esc common.Escalation) error {
	msg := EscalationMsg{
		EscalationID:   esc.ID,
		ConversationID: esc.ConversationID,
		EntityID:       esc.EntityID,
		MessageID:      esc.MessageID,
		Priority:       string(esc.Priority),
		Reasons:        esc.Reasons,
		CreatedAt:      esc.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal escalation %s: %w", esc.ID, err)
	}

	return PublishFIFO(p.ch, EscalationQueue, data)
}
