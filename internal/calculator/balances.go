package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// EntryForBalance represents a ledger entry with the minimal information needed for balance calculations.
type EntryForBalance struct {
	Amount      decimal.Decimal
	PayerID     string
	Weights     map[string]decimal.Decimal
	TotalWeight decimal.Decimal
}

// SettlementForBalance represents a settlement with the minimal information needed for balance calculations.
type SettlementForBalance struct {
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
}

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	MemberID   string
	NetBalance decimal.Decimal // Positive = owed money, Negative = owes money
	TotalPaid  decimal.Decimal // Sum of amounts paid as payer
	TotalOwed  decimal.Decimal // Sum of rounded shares consumed
	Settled    decimal.Decimal // Net effect of settlements
}

// DebtEdge represents a debt from one member to another.
type DebtEdge struct {
	From   string // Member who owes
	To     string // Member who is owed
	Amount decimal.Decimal
}

// EntryEffects returns the signed effect of one entry on each involved
// participant: +amount for the payer, -AmountOwed for each consumer.
func EntryEffects(e EntryForBalance) (map[string]decimal.Decimal, error) {
	effects := make(map[string]decimal.Decimal, len(e.Weights)+1)
	effects[e.PayerID] = e.Amount
	for participant := range e.Weights {
		owed, err := AmountOwed(e.Amount, participant, e.Weights, e.TotalWeight)
		if err != nil {
			return nil, err
		}
		effects[participant] = effects[participant].Sub(owed)
	}
	return effects, nil
}

// CalculateGroupBalances computes balances across entries and settlements of one group.
//
// Algorithm:
//   - For each entry: payer is credited +amount, each consumer is debited their rounded share
//   - For each settlement: receiver +amount, sender -amount
//   - net = paid - owed + settled
//   - Debt edges: greedy matching of debtors against creditors, largest first
func CalculateGroupBalances(entries []EntryForBalance, settlements []SettlementForBalance) ([]MemberBalance, []DebtEdge, error) {
	balances := make(map[string]*MemberBalance)
	get := func(id string) *MemberBalance {
		b, ok := balances[id]
		if !ok {
			b = &MemberBalance{MemberID: id}
			balances[id] = b
		}
		return b
	}

	for _, e := range entries {
		if e.PayerID == "" {
			continue
		}
		get(e.PayerID).TotalPaid = get(e.PayerID).TotalPaid.Add(e.Amount)
		for participant := range e.Weights {
			owed, err := AmountOwed(e.Amount, participant, e.Weights, e.TotalWeight)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to calculate share: %w", err)
			}
			b := get(participant)
			b.TotalOwed = b.TotalOwed.Add(owed)
		}
	}

	for _, s := range settlements {
		sender := get(s.SenderID)
		sender.Settled = sender.Settled.Sub(s.Amount)
		receiver := get(s.ReceiverID)
		receiver.Settled = receiver.Settled.Add(s.Amount)
	}

	memberBalances := make([]MemberBalance, 0, len(balances))
	for _, b := range balances {
		b.NetBalance = b.TotalPaid.Sub(b.TotalOwed).Add(b.Settled)
		memberBalances = append(memberBalances, *b)
	}
	sort.Slice(memberBalances, func(i, j int) bool {
		return memberBalances[i].MemberID < memberBalances[j].MemberID
	})

	return memberBalances, SimplifyDebts(memberBalances), nil
}

// SimplifyDebts matches debtors with creditors to minimize the number of
// transfers needed to bring every balance to zero.
func SimplifyDebts(balances []MemberBalance) []DebtEdge {
	var creditors, debtors []MemberBalance
	for _, b := range balances {
		if b.NetBalance.IsPositive() {
			creditors = append(creditors, b)
		} else if b.NetBalance.IsNegative() {
			debtors = append(debtors, b)
		}
	}
	// Largest amounts first, ties by id for deterministic output.
	sort.Slice(creditors, func(i, j int) bool {
		if c := creditors[i].NetBalance.Cmp(creditors[j].NetBalance); c != 0 {
			return c > 0
		}
		return creditors[i].MemberID < creditors[j].MemberID
	})
	sort.Slice(debtors, func(i, j int) bool {
		if c := debtors[i].NetBalance.Cmp(debtors[j].NetBalance); c != 0 {
			return c < 0
		}
		return debtors[i].MemberID < debtors[j].MemberID
	})

	debtorLeft := make(map[string]decimal.Decimal, len(debtors))
	creditorLeft := make(map[string]decimal.Decimal, len(creditors))
	for _, d := range debtors {
		debtorLeft[d.MemberID] = d.NetBalance.Neg()
	}
	for _, c := range creditors {
		creditorLeft[c.MemberID] = c.NetBalance
	}

	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := debtors[i].MemberID
		creditor := creditors[j].MemberID

		amount := decimal.Min(debtorLeft[debtor], creditorLeft[creditor])
		if amount.IsPositive() {
			edges = append(edges, DebtEdge{From: debtor, To: creditor, Amount: amount})
		}

		debtorLeft[debtor] = debtorLeft[debtor].Sub(amount)
		creditorLeft[creditor] = creditorLeft[creditor].Sub(amount)

		if !debtorLeft[debtor].IsPositive() {
			i++
		}
		if !creditorLeft[creditor].IsPositive() {
			j++
		}
	}
	return edges
}
