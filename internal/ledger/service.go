// Package ledger implements the shared-expense ledger: entries with
// weighted splits, settlements, balance projections and the audit trail.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/calculator"
	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// Service is the write side of the ledger. Every mutation validates first,
// then commits the change and its audit record in one transaction.
type Service struct {
	store  storage.Store
	dir    MembershipDirectory
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates a Service. dir is usually a CachedDirectory over store;
// it rejects bad input early, and every write re-checks membership against
// the store inside its transaction.
func NewService(store storage.Store, dir MembershipDirectory, clk clock.Clock) *Service {
	return &Service{
		store:  store,
		dir:    dir,
		clock:  clk,
		logger: slog.Default().With("component", "ledger"),
	}
}

// NewEntry is the input for CreateEntry.
type NewEntry struct {
	Description string
	Amount      decimal.Decimal
	GroupID     string
	PayerID     string

	// Shares maps consumers to weights.
	Shares map[string]decimal.Decimal

	// SharedByAll splits among every current group member with weight 1
	// when Shares is empty.
	SharedByAll bool

	// OccurredAt defaults to now.
	OccurredAt time.Time
}

// CreateEntry validates and persists a new entry.
func (s *Service) CreateEntry(ctx context.Context, actorID string, in NewEntry) (*models.LedgerEntry, error) {
	raw := in.Shares
	if len(raw) == 0 && in.SharedByAll {
		members, err := s.store.MembersOf(ctx, in.GroupID)
		if err != nil {
			return nil, err
		}
		raw = calculator.EqualWeights(members)
	}

	shares, err := models.NewShares(raw)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := &models.LedgerEntry{
		Description:    in.Description,
		Amount:         in.Amount,
		GroupID:        in.GroupID,
		PayerID:        in.PayerID,
		Shares:         shares,
		OccurredAt:     in.OccurredAt,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = now
	}
	if err := ValidateEntry(ctx, s.dir, entry); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(q storage.Queries) error {
		if err := requireMembers(ctx, q, entry.GroupID, entry.Participants()...); err != nil {
			return err
		}
		if err := q.CreateEntry(ctx, entry); err != nil {
			return err
		}
		_, err := record(ctx, q, actorID, models.EntryRef(entry.ID), models.ActionCreate, now)
		return err
	})
	if models.IsValidationError(err) {
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "CreateEntry failed", "group_id", in.GroupID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Entry created",
		"entry_id", entry.ID,
		"group_id", entry.GroupID,
		"amount", entry.Amount.String(),
		"consumers", entry.Shares.Len(),
	)
	return entry, nil
}

// EntryUpdate lists the scalar fields to change; nil fields stay as they are.
type EntryUpdate struct {
	Description *string
	Amount      *decimal.Decimal
	OccurredAt  *time.Time
}

// UpdateEntry changes description, amount or date of an entry.
func (s *Service) UpdateEntry(ctx context.Context, actorID, entryID string, upd EntryUpdate) (*models.LedgerEntry, error) {
	if upd.Amount != nil {
		if err := ValidateAmount(*upd.Amount); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	var entry *models.LedgerEntry
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		if entry, err = q.GetEntry(ctx, entryID); err != nil {
			return err
		}
		if upd.Description != nil {
			entry.Description = *upd.Description
		}
		if upd.Amount != nil {
			entry.Amount = *upd.Amount
		}
		if upd.OccurredAt != nil {
			entry.OccurredAt = upd.OccurredAt.UTC()
		}
		entry.LastModifiedAt = now

		if err := q.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		_, err = record(ctx, q, actorID, models.EntryRef(entryID), models.ActionUpdate, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Entry updated", "entry_id", entryID)
	return entry, nil
}

// RequireMember fails with models.ErrParticipantNotInGroup unless
// participantID currently belongs to the group. It reads the store, not the
// membership cache.
func (s *Service) RequireMember(ctx context.Context, groupID, participantID string) error {
	return requireMembers(ctx, s.store, groupID, participantID)
}

// GetEntry loads one entry.
func (s *Service) GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	return s.store.GetEntry(ctx, entryID)
}

// SetConsumerShares replaces the consumer weights of an entry. The new split
// rows, the recomputed total weight and the audit record commit together;
// on any failure the entry keeps its previous shares and total.
func (s *Service) SetConsumerShares(ctx context.Context, actorID, entryID string, raw map[string]decimal.Decimal) (*models.LedgerEntry, error) {
	shares, err := models.NewShares(raw)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var entry *models.LedgerEntry
	err = s.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		if entry, err = q.GetEntry(ctx, entryID); err != nil {
			return err
		}
		if err := requireMembers(ctx, q, entry.GroupID, shares.Consumers()...); err != nil {
			return err
		}
		if err := q.ReplaceShares(ctx, entryID, shares, now); err != nil {
			return err
		}
		_, err = record(ctx, q, actorID, models.EntryRef(entryID), models.ActionSetShares, now)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "SetConsumerShares failed", "entry_id", entryID, "error", err)
		return nil, err
	}

	entry.Shares = shares
	entry.LastModifiedAt = now
	s.logger.InfoContext(ctx, "Consumer shares replaced",
		"entry_id", entryID,
		"consumers", shares.Len(),
		"total_weight", shares.TotalWeight().String(),
	)
	return entry, nil
}

// AmountOwedBy returns the rounded part of an entry owed by one consumer.
// It fails with ErrParticipantNotFound for non-consumers.
func (s *Service) AmountOwedBy(ctx context.Context, entryID, participantID string) (decimal.Decimal, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return decimal.Zero, err
	}
	owed, err := entry.AmountOwedBy(participantID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("entry %s: %w", entryID, err)
	}
	return owed, nil
}
