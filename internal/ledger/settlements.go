package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// NewSettlement is the input for CreateSettlement.
type NewSettlement struct {
	GroupID    string
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
	Comment    string
	OccurredAt time.Time
}

// CreateSettlement records a direct transfer from sender to receiver.
func (s *Service) CreateSettlement(ctx context.Context, actorID string, in NewSettlement) (*models.Settlement, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	if in.SenderID == "" || in.ReceiverID == "" {
		return nil, fmt.Errorf("%w: sender and receiver are required", models.ErrValidationFailed)
	}
	if in.SenderID == in.ReceiverID {
		return nil, fmt.Errorf("%w: sender and receiver must differ", models.ErrValidationFailed)
	}
	if err := requireMembers(ctx, s.dir, in.GroupID, in.SenderID, in.ReceiverID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	settlement := &models.Settlement{
		GroupID:        in.GroupID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Amount:         in.Amount,
		Comment:        in.Comment,
		OccurredAt:     in.OccurredAt,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if settlement.OccurredAt.IsZero() {
		settlement.OccurredAt = now
	}

	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		if err := requireMembers(ctx, q, settlement.GroupID, settlement.SenderID, settlement.ReceiverID); err != nil {
			return err
		}
		if err := q.CreateSettlement(ctx, settlement); err != nil {
			return err
		}
		_, err := record(ctx, q, actorID, models.SettlementRef(settlement.ID), models.ActionCreate, now)
		return err
	})
	if models.IsValidationError(err) {
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "CreateSettlement failed", "group_id", in.GroupID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Settlement created",
		"settlement_id", settlement.ID,
		"sender", settlement.SenderID,
		"receiver", settlement.ReceiverID,
		"amount", settlement.Amount.String(),
	)
	return settlement, nil
}

// DeleteSettlement removes a settlement. Its audit records, including the
// one written here, survive with a cleared target.
func (s *Service) DeleteSettlement(ctx context.Context, actorID, settlementID string) error {
	now := s.clock.Now()
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		if _, err := q.GetSettlement(ctx, settlementID); err != nil {
			return err
		}
		if _, err := record(ctx, q, actorID, models.SettlementRef(settlementID), models.ActionDelete, now); err != nil {
			return err
		}
		return q.DeleteSettlement(ctx, settlementID)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Settlement deleted", "settlement_id", settlementID)
	return nil
}
