package events

import (
	"encoding/json"
	"time"

	"github.com/mmynk/sharedledger/internal/models"
)

// EntryMaterializedMessage announces a ledger entry created from a
// recurring template. It carries enough to render a notification; consumers
// fetch the full entry (with its split) from the ledger.
type EntryMaterializedMessage struct {
	EntryID        string    `json:"entry_id"`
	TemplateID     string    `json:"template_id"`
	GroupID        string    `json:"group_id"`
	PayerID        string    `json:"payer_id"`
	Description    string    `json:"description"`
	Amount         string    `json:"amount"`
	OccurrenceDate string    `json:"occurrence_date"`
	Consumers      []string  `json:"consumers"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEntryMaterializedMessage builds the message for entry.
func NewEntryMaterializedMessage(entry *models.LedgerEntry, now time.Time) *EntryMaterializedMessage {
	return &EntryMaterializedMessage{
		EntryID:        entry.ID,
		TemplateID:     entry.RecurringTemplateID,
		GroupID:        entry.GroupID,
		PayerID:        entry.PayerID,
		Description:    entry.Description,
		Amount:         entry.Amount.StringFixed(2),
		OccurrenceDate: entry.OccurrenceDate.Format(time.DateOnly),
		Consumers:      entry.Shares.Consumers(),
		Timestamp:      now,
	}
}

func (m *EntryMaterializedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryMaterializedMessageFromJSON(data []byte) (*EntryMaterializedMessage, error) {
	var msg EntryMaterializedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
