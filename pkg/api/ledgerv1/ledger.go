// Package ledgerv1 defines the sharedledger.v1 LedgerService wire messages
// and its Connect handler and client.
//
// Messages are plain structs carried by a JSON codec. Amounts and weights
// are decimal strings; dates are YYYY-MM-DD; timestamps are RFC 3339.
package ledgerv1

import (
	"time"

	"github.com/shopspring/decimal"
)

type Entry struct {
	ID                  string                     `json:"id"`
	GroupID             string                     `json:"group_id"`
	PayerID             string                     `json:"payer_id"`
	Description         string                     `json:"description"`
	Amount              decimal.Decimal            `json:"amount"`
	Shares              map[string]decimal.Decimal `json:"shares"`
	TotalWeight         decimal.Decimal            `json:"total_weight"`
	OccurredAt          time.Time                  `json:"occurred_at"`
	LastModifiedAt      time.Time                  `json:"last_modified_at"`
	RecurringTemplateID string                     `json:"recurring_template_id,omitempty"`
	OccurrenceDate      string                     `json:"occurrence_date,omitempty"`
}

type Settlement struct {
	ID             string          `json:"id"`
	GroupID        string          `json:"group_id"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	Amount         decimal.Decimal `json:"amount"`
	Comment        string          `json:"comment,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
}

type Template struct {
	ID               string                     `json:"id"`
	GroupID          string                     `json:"group_id"`
	PayerID          string                     `json:"payer_id"`
	Description      string                     `json:"description"`
	Amount           decimal.Decimal            `json:"amount"`
	Shares           map[string]decimal.Decimal `json:"shares"`
	StartDate        string                     `json:"start_date"`
	Rule             string                     `json:"rule"`
	Schedule         string                     `json:"schedule"`
	LastMaterialized string                     `json:"last_materialized,omitempty"`
}

type FeedItem struct {
	Kind           string          `json:"kind"`
	ID             string          `json:"id"`
	GroupID        string          `json:"group_id"`
	Description    string          `json:"description,omitempty"`
	Counterparty   string          `json:"counterparty,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
}

type MemberBalance struct {
	MemberID   string          `json:"member_id"`
	NetBalance decimal.Decimal `json:"net_balance"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	TotalOwed  decimal.Decimal `json:"total_owed"`
	Settled    decimal.Decimal `json:"settled"`
}

type Debt struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type Reminder struct {
	MemberID  string          `json:"member_id"`
	Balance   decimal.Decimal `json:"balance"`
	Threshold decimal.Decimal `json:"threshold"`
}

type Modification struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	TargetKind string    `json:"target_kind,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

type CreateEntryRequest struct {
	GroupID     string                     `json:"group_id"`
	PayerID     string                     `json:"payer_id"`
	Description string                     `json:"description"`
	Amount      decimal.Decimal            `json:"amount"`
	Shares      map[string]decimal.Decimal `json:"shares,omitempty"`
	SharedByAll bool                       `json:"shared_by_all,omitempty"`
	OccurredAt  *time.Time                 `json:"occurred_at,omitempty"`
}

type CreateEntryResponse struct {
	Entry *Entry `json:"entry"`
}

type SetConsumerSharesRequest struct {
	EntryID string                     `json:"entry_id"`
	Shares  map[string]decimal.Decimal `json:"shares"`
}

type SetConsumerSharesResponse struct {
	Entry *Entry `json:"entry"`
}

type AmountOwedByRequest struct {
	EntryID       string `json:"entry_id"`
	ParticipantID string `json:"participant_id"`
}

type AmountOwedByResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

type CreateSettlementRequest struct {
	GroupID    string          `json:"group_id"`
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Comment    string          `json:"comment,omitempty"`
}

type CreateSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type DeleteSettlementRequest struct {
	SettlementID string `json:"settlement_id"`
}

type DeleteSettlementResponse struct{}

type CreateTemplateRequest struct {
	GroupID     string                     `json:"group_id"`
	PayerID     string                     `json:"payer_id"`
	Description string                     `json:"description"`
	Amount      decimal.Decimal            `json:"amount"`
	Shares      map[string]decimal.Decimal `json:"shares,omitempty"`
	SharedByAll bool                       `json:"shared_by_all,omitempty"`
	StartDate   string                     `json:"start_date"`
	Rule        string                     `json:"rule"`
}

type CreateTemplateResponse struct {
	Template *Template `json:"template"`
}

// Feed scopes.
const (
	FeedEntries     = "entries"
	FeedSettlements = "settlements"
	FeedAll         = "all"
)

type FeedRequest struct {
	ParticipantID string `json:"participant_id"`

	// Scope is one of FeedEntries (default), FeedSettlements or FeedAll.
	Scope string `json:"scope,omitempty"`
}

type FeedResponse struct {
	Items []*FeedItem `json:"items"`
}

type NetBalanceRequest struct {
	ParticipantID string `json:"participant_id"`
	GroupID       string `json:"group_id"`
}

type NetBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type GroupBalancesRequest struct {
	GroupID string `json:"group_id"`
}

type GroupBalancesResponse struct {
	Balances  []*MemberBalance `json:"balances"`
	Debts     []*Debt          `json:"debts"`
	Reminders []*Reminder      `json:"reminders"`
}

type MaterializeDueRequest struct {
	TemplateID string `json:"template_id"`

	// AsOf defaults to today.
	AsOf string `json:"as_of,omitempty"`
}

type MaterializeDueResponse struct {
	Created   []*Entry `json:"created"`
	Watermark string   `json:"watermark,omitempty"`
	Warning   string   `json:"warning,omitempty"`
}

type HistoryRequest struct {
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
}

type HistoryResponse struct {
	Records []*Modification `json:"records"`
}
