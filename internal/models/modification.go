package models

import (
	"fmt"
	"time"
)

// TargetKind tags which kind of record a TargetRef points at.
type TargetKind string

const (
	TargetLedgerEntry       TargetKind = "ledger_entry"
	TargetSettlement        TargetKind = "settlement"
	TargetRecurringTemplate TargetKind = "recurring_template"
)

// Valid reports whether k is one of the known kinds.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetLedgerEntry, TargetSettlement, TargetRecurringTemplate:
		return true
	}
	return false
}

// TargetRef references exactly one ledger entry, settlement or recurring
// template. The zero value is a cleared reference, left behind when the
// target was removed.
type TargetRef struct {
	Kind TargetKind
	ID   string
}

func EntryRef(id string) TargetRef      { return TargetRef{Kind: TargetLedgerEntry, ID: id} }
func SettlementRef(id string) TargetRef { return TargetRef{Kind: TargetSettlement, ID: id} }
func TemplateRef(id string) TargetRef   { return TargetRef{Kind: TargetRecurringTemplate, ID: id} }

// ParseTargetRef builds a reference from its persisted parts. Empty parts
// yield the cleared reference.
func ParseTargetRef(kind, id string) (TargetRef, error) {
	if kind == "" && id == "" {
		return TargetRef{}, nil
	}
	ref := TargetRef{Kind: TargetKind(kind), ID: id}
	if err := ref.Validate(); err != nil {
		return TargetRef{}, err
	}
	return ref, nil
}

// IsZero reports whether the reference was cleared.
func (r TargetRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Validate checks that a non-cleared reference names a known kind and an id.
func (r TargetRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown target kind %q", ErrValidationFailed, r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: target id is required", ErrValidationFailed)
	}
	return nil
}

func (r TargetRef) String() string {
	if r.IsZero() {
		return "<cleared>"
	}
	return string(r.Kind) + "/" + r.ID
}

// Action names the kind of mutation recorded.
type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionSetShares   Action = "set_shares"
	ActionDelete      Action = "delete"
	ActionMaterialize Action = "materialize"
)

// ModificationRecord is an append-only audit row: who touched what, and when.
type ModificationRecord struct {
	ID        string
	ActorID   string
	Target    TargetRef
	Action    Action
	Timestamp time.Time
}
