// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/mmynk/sharedledger/internal/models"
)

// Queries is the set of ledger operations available both directly on a
// Store and inside a transaction started with Store.WithTx.
//
// Lookups of missing records return an error wrapping models.ErrNotFound.
// Failures of the backend itself wrap models.ErrStorageUnavailable.
type Queries interface {
	ParticipantQueries
	GroupQueries
	EntryQueries
	SettlementQueries
	TemplateQueries
	ModificationQueries
}

// ParticipantQueries persists participants.
type ParticipantQueries interface {
	// CreateParticipant persists a new participant. ID and CreatedAt are
	// populated by the store when empty.
	CreateParticipant(ctx context.Context, p *models.Participant) error

	GetParticipant(ctx context.Context, participantID string) (*models.Participant, error)

	// DeleteParticipant removes a participant. It fails with
	// models.ErrParticipantReferenced while any entry, settlement or
	// template still references them.
	DeleteParticipant(ctx context.Context, participantID string) error
}

// GroupQueries persists groups and their membership.
type GroupQueries interface {
	CreateGroup(ctx context.Context, g *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	AddMember(ctx context.Context, groupID, participantID string) error
	RemoveMember(ctx context.Context, groupID, participantID string) error

	// MembersOf returns the participant IDs of a group, sorted.
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}

// EntryQueries persists ledger entries and their split rows.
type EntryQueries interface {
	// CreateEntry persists an entry together with its split rows and cached
	// total weight. ID is populated by the store when empty.
	CreateEntry(ctx context.Context, e *models.LedgerEntry) error

	GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error)

	// UpdateEntry writes description, amount, occurred_at and
	// last_modified_at. Shares are not touched.
	UpdateEntry(ctx context.Context, e *models.LedgerEntry) error

	// ReplaceShares swaps the split rows of an entry and rewrites its cached
	// total weight. Callers run it inside WithTx so both land together.
	ReplaceShares(ctx context.Context, entryID string, shares models.Shares, modifiedAt time.Time) error

	// ListEntriesByPayer returns the entries paid by a participant, newest
	// last_modified_at first.
	ListEntriesByPayer(ctx context.Context, participantID string) ([]*models.LedgerEntry, error)

	// ListEntriesByConsumer returns the entries a participant consumes,
	// newest last_modified_at first.
	ListEntriesByConsumer(ctx context.Context, participantID string) ([]*models.LedgerEntry, error)

	ListEntriesByGroup(ctx context.Context, groupID string) ([]*models.LedgerEntry, error)
	ListEntriesByTemplate(ctx context.Context, templateID string) ([]*models.LedgerEntry, error)
}

// SettlementQueries persists settlements.
type SettlementQueries interface {
	CreateSettlement(ctx context.Context, s *models.Settlement) error
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// ListSettlementsBySender and ListSettlementsByReceiver are ordered by
	// last_modified_at, newest first.
	ListSettlementsBySender(ctx context.Context, participantID string) ([]*models.Settlement, error)
	ListSettlementsByReceiver(ctx context.Context, participantID string) ([]*models.Settlement, error)

	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)
	DeleteSettlement(ctx context.Context, settlementID string) error
}

// TemplateQueries persists recurring templates and their watermark.
type TemplateQueries interface {
	CreateTemplate(ctx context.Context, t *models.RecurringTemplate) error
	GetTemplate(ctx context.Context, templateID string) (*models.RecurringTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.RecurringTemplate, error)
	DeleteTemplate(ctx context.Context, templateID string) error

	// AdvanceWatermark moves last_materialized to date, but only forward.
	// It fails with models.ErrAlreadyMaterialized when the stored watermark
	// is already at or past date.
	AdvanceWatermark(ctx context.Context, templateID string, date time.Time) error
}

// ModificationQueries persists the audit trail.
type ModificationQueries interface {
	CreateModification(ctx context.Context, rec *models.ModificationRecord) error

	// ListModifications returns the records of one target, newest first.
	ListModifications(ctx context.Context, target models.TargetRef) ([]*models.ModificationRecord, error)

	// ListOrphanedModifications returns the records whose target was removed.
	ListOrphanedModifications(ctx context.Context) ([]*models.ModificationRecord, error)
}

// Store is a ledger storage backend.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	Queries

	// WithTx runs fn inside one transaction. The transaction commits when
	// fn returns nil and rolls back otherwise, so either every write made
	// through q lands or none does.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	// Close releases any resources held by the store.
	Close() error
}
