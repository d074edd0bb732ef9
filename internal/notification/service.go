// Package notification reports settlement outcomes to an observability sink.
//
// Delivery is fire-and-forget: a failed or slow notification must never block
// or fail the money movement that triggered it.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"creditledger/pkg/logger"
)

// Event names the settlement outcomes worth reporting.
const (
	EventSettlementCompleted = "SETTLEMENT_COMPLETED"
	EventSettlementReversed  = "SETTLEMENT_REVERSED"
	EventSettlementFailed    = "SETTLEMENT_FAILED"
	EventDebtAccountClosed   = "DEBT_ACCOUNT_CLOSED"
	EventIncident            = "LEDGER_INCIDENT"
)

// Service is the outbound reporting boundary.
type Service interface {
	Notify(ctx context.Context, ownerID uuid.UUID, eventType string, data map[string]interface{}) error
}

// DefaultService writes events to the structured log. A real deployment
// swaps this for a message-bus or webhook publisher behind the same
// interface.
type DefaultService struct {
	logger logger.Logger
}

func NewService(log logger.Logger) *DefaultService {
	return &DefaultService{logger: log}
}

func (s *DefaultService) Notify(ctx context.Context, ownerID uuid.UUID, eventType string, data map[string]interface{}) error {
	fields := map[string]interface{}{
		"owner_id":   ownerID,
		"event_type": eventType,
		"emitted_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range data {
		fields[k] = v
	}
	s.logger.Info("ledger event", fields)
	return nil
}

// Nop discards every event. Useful in tests.
type Nop struct{}

func (Nop) Notify(ctx context.Context, ownerID uuid.UUID, eventType string, data map[string]interface{}) error {
	return nil
}
