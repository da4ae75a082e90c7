package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/leaselock"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/store"
)

// Desk names escalations are routed to by priority.
const (
	PriorityDesk = "priority-desk"
	SupportDesk  = "support-desk"
)

// Locker serializes dispatch of a single escalation across workers.
// Satisfied by leaselock.Client.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// ProcessEscalationMessage routes one escalation event to an agent
// desk. High priority escalations go to the priority desk, everything
// else to the general support desk. Escalations already claimed or
// resolved by the time the worker sees them are skipped. The queue
// redelivers on failure, so a lease per escalation keeps concurrent
// workers from assigning the same one twice.
func ProcessEscalationMessage(ctx context.Context, s store.Store, locker Locker, body []byte) error {
	var msg EscalationMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal escalation message: %w", err)
	}
	if msg.EscalationID == "" {
		return errors.New("escalation message without id")
	}

	if locker == nil {
		return dispatchEscalation(ctx, s, msg.EscalationID)
	}
	return locker.WithLease(ctx, "escalation_dispatch:"+msg.EscalationID, leaselock.Options{
		TTL:  30 * time.Second,
		Wait: true,
	}, func(ctx context.Context) error {
		return dispatchEscalation(ctx, s, msg.EscalationID)
	})
}

func dispatchEscalation(ctx context.Context, s store.Store, id string) error {
	escalation, err := s.GetEscalation(ctx, id)
	if err != nil {
		return fmt.Errorf("load escalation %s: %w", id, err)
	}

	if escalation.Status != common.EscalationPending {
		logger.Info("[Queue] Escalation already handled, skipping",
			"id", escalation.ID, "status", escalation.Status)
		return nil
	}

	desk := SupportDesk
	if escalation.Priority == common.PriorityHigh {
		desk = PriorityDesk
	}

	updated, err := s.UpdateEscalationStatus(ctx, escalation.ID, common.EscalationPending, desk)
	if err != nil {
		return fmt.Errorf("assign escalation %s: %w", escalation.ID, err)
	}

	logger.Info("[Queue] Escalation dispatched",
		"id", updated.ID,
		"desk", desk,
		"priority", updated.Priority,
		"conversation", updated.ConversationID,
		"reasons", updated.Reasons)

	return nil
}
