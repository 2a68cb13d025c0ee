package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReminderThreshold is the balance below which members are reminded
// when a group does not configure its own threshold.
var DefaultReminderThreshold = decimal.NewFromInt(-100)

// Participant is a person who can owe or be owed money.
// The ID is immutable; the display name is informational only.
type Participant struct {
	// ID is the unique identifier for the participant (UUID format).
	ID string

	// DisplayName is the human-readable name.
	DisplayName string

	// CreatedAt is when the participant was registered (UTC).
	CreatedAt time.Time
}

// Group scopes which participants may transact together.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Flat 3B", "Ski trip").
	Name string

	// Members is the list of participant IDs currently in the group.
	Members []string

	// ReminderThreshold is the (non-positive) balance below which a member
	// shows up in the group's reminder report.
	ReminderThreshold decimal.Decimal

	// CreatedAt is when the group was created (UTC).
	CreatedAt time.Time
}

// HasMember reports whether participantID is in the group.
func (g *Group) HasMember(participantID string) bool {
	for _, m := range g.Members {
		if m == participantID {
			return true
		}
	}
	return false
}
