// Package service exposes the ledger over Connect RPC.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/middleware"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/recurrence"
	pb "github.com/mmynk/sharedledger/pkg/api/ledgerv1"
)

// LedgerService implements ledgerv1.LedgerServiceHandler. Every mutating
// call is attributed to the participant authenticated by
// middleware.RequireAuth.
type LedgerService struct {
	ledger    *ledger.Service
	projector *ledger.Projector
	modlog    *ledger.ModLog
	engine    *recurrence.Engine
	clock     clock.Clock
}

var _ pb.LedgerServiceHandler = (*LedgerService)(nil)

func NewLedgerService(svc *ledger.Service, projector *ledger.Projector, modlog *ledger.ModLog, engine *recurrence.Engine, clk clock.Clock) *LedgerService {
	return &LedgerService{
		ledger:    svc,
		projector: projector,
		modlog:    modlog,
		engine:    engine,
		clock:     clk,
	}
}

func actor(ctx context.Context) (string, error) {
	actorID := middleware.ActorID(ctx)
	if actorID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("no authenticated participant"))
	}
	return actorID, nil
}

func (s *LedgerService) CreateEntry(ctx context.Context, req *connect.Request[pb.CreateEntryRequest]) (*connect.Response[pb.CreateEntryResponse], error) {
	actorID, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	in := ledger.NewEntry{
		Description: req.Msg.Description,
		Amount:      req.Msg.Amount,
		GroupID:     req.Msg.GroupID,
		PayerID:     req.Msg.PayerID,
		Shares:      req.Msg.Shares,
		SharedByAll: req.Msg.SharedByAll,
	}
	if req.Msg.OccurredAt != nil {
		in.OccurredAt = *req.Msg.OccurredAt
	}

	entry, err := s.ledger.CreateEntry(ctx, actorID, in)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.CreateEntryResponse{Entry: entryToProto(entry)}), nil
}

func (s *LedgerService) SetConsumerShares(ctx context.Context, req *connect.Request[pb.SetConsumerSharesRequest]) (*connect.Response[pb.SetConsumerSharesResponse], error) {
	actorID, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.SetConsumerShares(ctx, actorID, req.Msg.EntryID, req.Msg.Shares)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.SetConsumerSharesResponse{Entry: entryToProto(entry)}), nil
}

func (s *LedgerService) AmountOwedBy(ctx context.Context, req *connect.Request[pb.AmountOwedByRequest]) (*connect.Response[pb.AmountOwedByResponse], error) {
	owed, err := s.ledger.AmountOwedBy(ctx, req.Msg.EntryID, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.AmountOwedByResponse{Amount: owed}), nil
}

func (s *LedgerService) CreateSettlement(ctx context.Context, req *connect.Request[pb.CreateSettlementRequest]) (*connect.Response[pb.CreateSettlementResponse], error) {
	actorID, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	settlement, err := s.ledger.CreateSettlement(ctx, actorID, ledger.NewSettlement{
		GroupID:    req.Msg.GroupID,
		SenderID:   req.Msg.SenderID,
		ReceiverID: req.Msg.ReceiverID,
		Amount:     req.Msg.Amount,
		Comment:    req.Msg.Comment,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.CreateSettlementResponse{Settlement: settlementToProto(settlement)}), nil
}

func (s *LedgerService) DeleteSettlement(ctx context.Context, req *connect.Request[pb.DeleteSettlementRequest]) (*connect.Response[pb.DeleteSettlementResponse], error) {
	actorID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.DeleteSettlement(ctx, actorID, req.Msg.SettlementID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.DeleteSettlementResponse{}), nil
}

func (s *LedgerService) CreateTemplate(ctx context.Context, req *connect.Request[pb.CreateTemplateRequest]) (*connect.Response[pb.CreateTemplateResponse], error) {
	actorID, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	start, err := parseDate("start_date", req.Msg.StartDate, s.clock.Now())
	if err != nil {
		return nil, err
	}
	tmpl, err := s.engine.CreateTemplate(ctx, actorID, recurrence.NewTemplate{
		Description: req.Msg.Description,
		Amount:      req.Msg.Amount,
		GroupID:     req.Msg.GroupID,
		PayerID:     req.Msg.PayerID,
		Shares:      req.Msg.Shares,
		SharedByAll: req.Msg.SharedByAll,
		StartDate:   start,
		Rule:        req.Msg.Rule,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.CreateTemplateResponse{Template: templateToProto(tmpl)}), nil
}

func (s *LedgerService) Feed(ctx context.Context, req *connect.Request[pb.FeedRequest]) (*connect.Response[pb.FeedResponse], error) {
	if req.Msg.ParticipantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("participant_id is required"))
	}

	var (
		items []ledger.FeedItem
		err   error
	)
	switch req.Msg.Scope {
	case "", pb.FeedEntries:
		items, err = s.projector.FeedFor(ctx, req.Msg.ParticipantID)
	case pb.FeedSettlements:
		items, err = s.projector.SettlementFeed(ctx, req.Msg.ParticipantID)
	case pb.FeedAll:
		items, err = s.projector.CombinedFeed(ctx, req.Msg.ParticipantID)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown feed scope %q", req.Msg.Scope))
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]*pb.FeedItem, len(items))
	for i, item := range items {
		out[i] = feedItemToProto(item)
	}
	return connect.NewResponse(&pb.FeedResponse{Items: out}), nil
}

func (s *LedgerService) NetBalance(ctx context.Context, req *connect.Request[pb.NetBalanceRequest]) (*connect.Response[pb.NetBalanceResponse], error) {
	balance, err := s.projector.NetBalance(ctx, req.Msg.ParticipantID, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.NetBalanceResponse{Balance: balance}), nil
}

func (s *LedgerService) GroupBalances(ctx context.Context, req *connect.Request[pb.GroupBalancesRequest]) (*connect.Response[pb.GroupBalancesResponse], error) {
	balances, debts, err := s.projector.GroupBalances(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	reminders, err := s.projector.Reminders(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &pb.GroupBalancesResponse{
		Balances:  make([]*pb.MemberBalance, len(balances)),
		Debts:     make([]*pb.Debt, len(debts)),
		Reminders: make([]*pb.Reminder, len(reminders)),
	}
	for i, b := range balances {
		resp.Balances[i] = &pb.MemberBalance{
			MemberID:   b.MemberID,
			NetBalance: b.NetBalance,
			TotalPaid:  b.TotalPaid,
			TotalOwed:  b.TotalOwed,
			Settled:    b.Settled,
		}
	}
	for i, d := range debts {
		resp.Debts[i] = &pb.Debt{From: d.From, To: d.To, Amount: d.Amount}
	}
	for i, r := range reminders {
		resp.Reminders[i] = &pb.Reminder{MemberID: r.MemberID, Balance: r.Balance, Threshold: r.Threshold}
	}
	return connect.NewResponse(resp), nil
}

// MaterializeDue catches up one template. Only members of the template's
// group may trigger it, and never for a date after today: materialized
// entries are permanent.
func (s *LedgerService) MaterializeDue(ctx context.Context, req *connect.Request[pb.MaterializeDueRequest]) (*connect.Response[pb.MaterializeDueResponse], error) {
	actorID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	asOf, err := parseDate("as_of", req.Msg.AsOf, now)
	if err != nil {
		return nil, err
	}
	if asOf.After(clock.Date(now)) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("as_of %s is in the future", req.Msg.AsOf))
	}

	tmpl, err := s.engine.Template(ctx, req.Msg.TemplateID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.ledger.RequireMember(ctx, tmpl.GroupID, actorID); err != nil {
		if errors.Is(err, models.ErrParticipantNotInGroup) {
			return nil, connect.NewError(connect.CodePermissionDenied, err)
		}
		return nil, toConnectError(err)
	}

	res, err := s.engine.MaterializeDue(ctx, req.Msg.TemplateID, asOf)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &pb.MaterializeDueResponse{
		Created:   make([]*pb.Entry, len(res.Created)),
		Watermark: formatDate(res.Watermark),
	}
	for i, e := range res.Created {
		resp.Created[i] = entryToProto(e)
	}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
	}
	return connect.NewResponse(resp), nil
}

func (s *LedgerService) History(ctx context.Context, req *connect.Request[pb.HistoryRequest]) (*connect.Response[pb.HistoryResponse], error) {
	target, err := models.ParseTargetRef(req.Msg.TargetKind, req.Msg.TargetID)
	if err == nil && target.IsZero() {
		err = fmt.Errorf("%w: target_kind and target_id are required", models.ErrValidationFailed)
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	records, err := s.modlog.History(ctx, target)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]*pb.Modification, len(records))
	for i, r := range records {
		out[i] = modificationToProto(r)
	}
	return connect.NewResponse(&pb.HistoryResponse{Records: out}), nil
}

// toConnectError maps ledger errors onto Connect codes.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case models.IsValidationError(err):
		code = connect.CodeInvalidArgument
	case errors.Is(err, models.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, models.ErrParticipantReferenced):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, models.ErrAlreadyMaterialized):
		code = connect.CodeAlreadyExists
	case errors.Is(err, models.ErrStorageUnavailable):
		slog.Error("Storage unavailable", "error", err)
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

// parseDate reads a YYYY-MM-DD request field, defaulting to the date of now.
func parseDate(field, value string, now time.Time) (time.Time, error) {
	if value == "" {
		return clock.Date(now), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return time.Time{}, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s must be YYYY-MM-DD: %w", field, err))
	}
	return t, nil
}
