package service

import (
	"time"

	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/recurrence"
	pb "github.com/mmynk/sharedledger/pkg/api/ledgerv1"
)

func entryToProto(e *models.LedgerEntry) *pb.Entry {
	return &pb.Entry{
		ID:                  e.ID,
		GroupID:             e.GroupID,
		PayerID:             e.PayerID,
		Description:         e.Description,
		Amount:              e.Amount,
		Shares:              e.Shares.Weights(),
		TotalWeight:         e.TotalWeight(),
		OccurredAt:          e.OccurredAt,
		LastModifiedAt:      e.LastModifiedAt,
		RecurringTemplateID: e.RecurringTemplateID,
		OccurrenceDate:      formatDate(e.OccurrenceDate),
	}
}

func settlementToProto(s *models.Settlement) *pb.Settlement {
	return &pb.Settlement{
		ID:             s.ID,
		GroupID:        s.GroupID,
		SenderID:       s.SenderID,
		ReceiverID:     s.ReceiverID,
		Amount:         s.Amount,
		Comment:        s.Comment,
		OccurredAt:     s.OccurredAt,
		LastModifiedAt: s.LastModifiedAt,
	}
}

func templateToProto(t *models.RecurringTemplate) *pb.Template {
	schedule := t.Rule
	if rule, err := recurrence.Parse(t.Rule); err == nil {
		schedule = recurrence.Describe(rule)
	}
	return &pb.Template{
		ID:               t.ID,
		GroupID:          t.GroupID,
		PayerID:          t.PayerID,
		Description:      t.Description,
		Amount:           t.Amount,
		Shares:           t.Shares.Weights(),
		StartDate:        formatDate(t.StartDate),
		Rule:             t.Rule,
		Schedule:         schedule,
		LastMaterialized: formatDate(t.LastMaterialized),
	}
}

func feedItemToProto(item ledger.FeedItem) *pb.FeedItem {
	return &pb.FeedItem{
		Kind:           string(item.Kind),
		ID:             item.ID,
		GroupID:        item.GroupID,
		Description:    item.Description,
		Counterparty:   item.Counterparty,
		Amount:         item.Amount,
		OccurredAt:     item.OccurredAt,
		LastModifiedAt: item.LastModifiedAt,
	}
}

func modificationToProto(r *models.ModificationRecord) *pb.Modification {
	return &pb.Modification{
		ID:         r.ID,
		ActorID:    r.ActorID,
		TargetKind: string(r.Target.Kind),
		TargetID:   r.Target.ID,
		Action:     string(r.Action),
		Timestamp:  r.Timestamp,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
