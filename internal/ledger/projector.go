package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/calculator"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// FeedKind says in which role a participant appears on a feed item.
type FeedKind string

const (
	FeedPaid     FeedKind = "paid"
	FeedConsumed FeedKind = "consumed"
	FeedSent     FeedKind = "sent"
	FeedReceived FeedKind = "received"
)

// FeedItem is one transaction as seen by one participant. Amount carries
// that participant's signed effect.
type FeedItem struct {
	Kind        FeedKind
	ID          string
	GroupID     string
	Description string

	// Counterparty is the payer for consumed entries and the other party
	// for settlements. Empty for paid entries.
	Counterparty string

	Amount         decimal.Decimal
	OccurredAt     time.Time
	LastModifiedAt time.Time
}

func feedKey(item FeedItem) time.Time { return item.LastModifiedAt }

// Projector derives per-participant feeds and balances. Each call reads in
// one transaction so it sees a consistent snapshot.
type Projector struct {
	store storage.Store
}

func NewProjector(store storage.Store) *Projector {
	return &Projector{store: store}
}

// FeedFor merges the entries a participant paid (+amount) and consumed
// (-amount owed) into one list, newest last_modified_at first. On equal
// timestamps paid entries come first.
func (p *Projector) FeedFor(ctx context.Context, participantID string) ([]FeedItem, error) {
	var paid, consumed []FeedItem
	err := p.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		paid, consumed, err = entryStreams(ctx, q, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return calculator.MergeDescending(feedKey, paid, consumed), nil
}

// SettlementFeed merges the settlements a participant sent (-amount) and
// received (+amount), newest first, sent before received on ties.
func (p *Projector) SettlementFeed(ctx context.Context, participantID string) ([]FeedItem, error) {
	var sent, received []FeedItem
	err := p.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		sent, received, err = settlementStreams(ctx, q, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return calculator.MergeDescending(feedKey, sent, received), nil
}

// CombinedFeed merges all four streams: paid, consumed, sent, received.
func (p *Projector) CombinedFeed(ctx context.Context, participantID string) ([]FeedItem, error) {
	var paid, consumed, sent, received []FeedItem
	err := p.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		if paid, consumed, err = entryStreams(ctx, q, participantID); err != nil {
			return err
		}
		sent, received, err = settlementStreams(ctx, q, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return calculator.MergeDescending(feedKey, paid, consumed, sent, received), nil
}

// NetBalance sums a participant's signed effects inside one group: positive
// means the group owes them.
func (p *Projector) NetBalance(ctx context.Context, participantID, groupID string) (decimal.Decimal, error) {
	feed, err := p.CombinedFeed(ctx, participantID)
	if err != nil {
		return decimal.Zero, err
	}
	net := decimal.Zero
	for _, item := range feed {
		if item.GroupID == groupID {
			net = net.Add(item.Amount)
		}
	}
	return net, nil
}

// GroupBalances returns every member's paid/owed/settled totals and the
// simplified set of transfers that would square the group.
func (p *Projector) GroupBalances(ctx context.Context, groupID string) ([]calculator.MemberBalance, []calculator.DebtEdge, error) {
	var snap groupSnapshot
	err := p.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		snap, err = loadGroup(ctx, q, groupID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return snap.balances()
}

// Reminder flags a member whose balance fell below the group's threshold.
type Reminder struct {
	MemberID  string
	Balance   decimal.Decimal
	Threshold decimal.Decimal
}

// Reminders lists the members of a group whose net balance is below its
// reminder threshold, most indebted first. The threshold and the balances
// come from the same snapshot.
func (p *Projector) Reminders(ctx context.Context, groupID string) ([]Reminder, error) {
	var snap groupSnapshot
	err := p.store.WithTx(ctx, func(q storage.Queries) error {
		var err error
		snap, err = loadGroup(ctx, q, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	balances, _, err := snap.balances()
	if err != nil {
		return nil, err
	}

	threshold := snap.group.ReminderThreshold
	var reminders []Reminder
	for _, b := range balances {
		if b.NetBalance.LessThan(threshold) {
			reminders = append(reminders, Reminder{MemberID: b.MemberID, Balance: b.NetBalance, Threshold: threshold})
		}
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].Balance.LessThan(reminders[j].Balance)
	})
	return reminders, nil
}

// groupSnapshot is a group with all of its entries and settlements, read in
// one transaction.
type groupSnapshot struct {
	group       *models.Group
	entries     []*models.LedgerEntry
	settlements []*models.Settlement
}

func loadGroup(ctx context.Context, q storage.Queries, groupID string) (groupSnapshot, error) {
	var snap groupSnapshot
	var err error
	if snap.group, err = q.GetGroup(ctx, groupID); err != nil {
		return snap, err
	}
	if snap.entries, err = q.ListEntriesByGroup(ctx, groupID); err != nil {
		return snap, err
	}
	snap.settlements, err = q.ListSettlementsByGroup(ctx, groupID)
	return snap, err
}

func (s groupSnapshot) balances() ([]calculator.MemberBalance, []calculator.DebtEdge, error) {
	forEntries := make([]calculator.EntryForBalance, len(s.entries))
	for i, e := range s.entries {
		forEntries[i] = e.ForBalance()
	}
	forSettlements := make([]calculator.SettlementForBalance, len(s.settlements))
	for i, st := range s.settlements {
		forSettlements[i] = st.ForBalance()
	}
	return calculator.CalculateGroupBalances(forEntries, forSettlements)
}

func entryStreams(ctx context.Context, q storage.EntryQueries, participantID string) (paid, consumed []FeedItem, err error) {
	paidEntries, err := q.ListEntriesByPayer(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range paidEntries {
		paid = append(paid, FeedItem{
			Kind:           FeedPaid,
			ID:             e.ID,
			GroupID:        e.GroupID,
			Description:    e.Description,
			Amount:         e.Amount,
			OccurredAt:     e.OccurredAt,
			LastModifiedAt: e.LastModifiedAt,
		})
	}

	consumedEntries, err := q.ListEntriesByConsumer(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range consumedEntries {
		owed, err := e.AmountOwedBy(participantID)
		if err != nil {
			return nil, nil, err
		}
		consumed = append(consumed, FeedItem{
			Kind:           FeedConsumed,
			ID:             e.ID,
			GroupID:        e.GroupID,
			Description:    e.Description,
			Counterparty:   e.PayerID,
			Amount:         owed.Neg(),
			OccurredAt:     e.OccurredAt,
			LastModifiedAt: e.LastModifiedAt,
		})
	}
	return paid, consumed, nil
}

func settlementStreams(ctx context.Context, q storage.SettlementQueries, participantID string) (sent, received []FeedItem, err error) {
	sentSettlements, err := q.ListSettlementsBySender(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range sentSettlements {
		sent = append(sent, settlementItem(s, FeedSent, s.ReceiverID, s.Amount.Neg()))
	}

	receivedSettlements, err := q.ListSettlementsByReceiver(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range receivedSettlements {
		received = append(received, settlementItem(s, FeedReceived, s.SenderID, s.Amount))
	}
	return sent, received, nil
}

func settlementItem(s *models.Settlement, kind FeedKind, counterparty string, amount decimal.Decimal) FeedItem {
	return FeedItem{
		Kind:           kind,
		ID:             s.ID,
		GroupID:        s.GroupID,
		Description:    s.Comment,
		Counterparty:   counterparty,
		Amount:         amount,
		OccurredAt:     s.OccurredAt,
		LastModifiedAt: s.LastModifiedAt,
	}
}
