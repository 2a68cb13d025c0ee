package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/auth"
	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/middleware"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/recurrence"
	"github.com/mmynk/sharedledger/internal/storage/sqlite"
	pb "github.com/mmynk/sharedledger/pkg/api/ledgerv1"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testServer struct {
	url    string
	jwt    *auth.JWTManager
	store  *sqlite.SQLiteStore
	client *pb.LedgerServiceClient
}

// setupTestServer serves a LedgerService over a temp database with alice,
// bob and carol in group "flat". The returned client is signed in as alice.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		if err := store.CreateParticipant(ctx, &models.Participant{ID: id, DisplayName: id}); err != nil {
			t.Fatalf("CreateParticipant failed: %v", err)
		}
	}
	if err := store.CreateGroup(ctx, &models.Group{ID: "flat", Name: "Flat", Members: []string{"alice", "bob", "carol"}}); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	jwtManager := auth.NewJWTManager(testSecret, time.Hour)
	svc := NewLedgerService(
		ledger.NewService(store, store, clk),
		ledger.NewProjector(store),
		ledger.NewModLog(store, clk),
		recurrence.NewEngine(store, store, clk),
		clk,
	)

	path, handler := pb.NewLedgerServiceHandler(svc, connect.WithInterceptors(
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
	))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	ts := &testServer{url: server.URL, jwt: jwtManager, store: store}
	ts.client = ts.clientAs(t, "alice")
	return ts
}

func (ts *testServer) clientAs(t *testing.T, participantID string) *pb.LedgerServiceClient {
	t.Helper()
	token, err := ts.jwt.Generate(&models.Participant{ID: participantID})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	bearer := connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	})
	return pb.NewLedgerServiceClient(http.DefaultClient, ts.url, connect.WithInterceptors(bearer))
}

func (ts *testServer) createEntry(t *testing.T, payer, amount string, shares map[string]decimal.Decimal) *pb.Entry {
	t.Helper()
	resp, err := ts.client.CreateEntry(context.Background(), connect.NewRequest(&pb.CreateEntryRequest{
		GroupID:     "flat",
		PayerID:     payer,
		Description: "test",
		Amount:      d(amount),
		Shares:      shares,
		SharedByAll: shares == nil,
	}))
	require.NoError(t, err)
	return resp.Msg.Entry
}

func TestCreateEntryAndAmountOwedBy(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	entry := ts.createEntry(t, "alice", "10.00", nil)
	assert.Len(t, entry.Shares, 3)
	assert.True(t, entry.TotalWeight.Equal(d("3")))

	for _, p := range []string{"alice", "bob", "carol"} {
		resp, err := ts.client.AmountOwedBy(ctx, connect.NewRequest(&pb.AmountOwedByRequest{EntryID: entry.ID, ParticipantID: p}))
		require.NoError(t, err)
		assert.True(t, resp.Msg.Amount.Equal(d("3.33")), "%s owes %s", p, resp.Msg.Amount)
	}

	history, err := ts.client.History(ctx, connect.NewRequest(&pb.HistoryRequest{TargetKind: "ledger_entry", TargetID: entry.ID}))
	require.NoError(t, err)
	require.Len(t, history.Msg.Records, 1)
	assert.Equal(t, "alice", history.Msg.Records[0].ActorID)
	assert.Equal(t, "create", history.Msg.Records[0].Action)
}

func TestSetConsumerShares(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	entry := ts.createEntry(t, "alice", "60.00", map[string]decimal.Decimal{"bob": d("1")})
	bob := ts.clientAs(t, "bob")

	resp, err := bob.SetConsumerShares(ctx, connect.NewRequest(&pb.SetConsumerSharesRequest{
		EntryID: entry.ID,
		Shares:  map[string]decimal.Decimal{"bob": d("2"), "carol": d("0.5")},
	}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Entry.TotalWeight.Equal(d("2.5")))

	owed, err := ts.client.AmountOwedBy(ctx, connect.NewRequest(&pb.AmountOwedByRequest{EntryID: entry.ID, ParticipantID: "bob"}))
	require.NoError(t, err)
	assert.True(t, owed.Msg.Amount.Equal(d("48")))

	history, err := ts.client.History(ctx, connect.NewRequest(&pb.HistoryRequest{TargetKind: "ledger_entry", TargetID: entry.ID}))
	require.NoError(t, err)
	require.Len(t, history.Msg.Records, 2)
	assert.Equal(t, "bob", history.Msg.Records[0].ActorID, "newest first")
	assert.Equal(t, "set_shares", history.Msg.Records[0].Action)
}

func TestErrorCodes(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	entry := ts.createEntry(t, "alice", "9.00", nil)

	tests := []struct {
		name string
		call func() error
		want connect.Code
	}{
		{
			name: "empty split",
			call: func() error {
				_, err := ts.client.SetConsumerShares(ctx, connect.NewRequest(&pb.SetConsumerSharesRequest{EntryID: entry.ID}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "negative weight",
			call: func() error {
				_, err := ts.client.SetConsumerShares(ctx, connect.NewRequest(&pb.SetConsumerSharesRequest{
					EntryID: entry.ID,
					Shares:  map[string]decimal.Decimal{"bob": d("-1")},
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "consumer outside group",
			call: func() error {
				_, err := ts.client.SetConsumerShares(ctx, connect.NewRequest(&pb.SetConsumerSharesRequest{
					EntryID: entry.ID,
					Shares:  map[string]decimal.Decimal{"mallory": d("1")},
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "unknown entry",
			call: func() error {
				_, err := ts.client.AmountOwedBy(ctx, connect.NewRequest(&pb.AmountOwedByRequest{EntryID: "nope", ParticipantID: "bob"}))
				return err
			},
			want: connect.CodeNotFound,
		},
		{
			name: "not a consumer",
			call: func() error {
				_, err := ts.client.AmountOwedBy(ctx, connect.NewRequest(&pb.AmountOwedByRequest{EntryID: entry.ID, ParticipantID: "dave"}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "bad feed scope",
			call: func() error {
				_, err := ts.client.Feed(ctx, connect.NewRequest(&pb.FeedRequest{ParticipantID: "alice", Scope: "everything"}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "bad as_of",
			call: func() error {
				_, err := ts.client.MaterializeDue(ctx, connect.NewRequest(&pb.MaterializeDueRequest{TemplateID: "t", AsOf: "01/02/2024"}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "unknown template",
			call: func() error {
				_, err := ts.client.MaterializeDue(ctx, connect.NewRequest(&pb.MaterializeDueRequest{TemplateID: "nope"}))
				return err
			},
			want: connect.CodeNotFound,
		},
		{
			name: "history without target",
			call: func() error {
				_, err := ts.client.History(ctx, connect.NewRequest(&pb.HistoryRequest{}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name: "self settlement",
			call: func() error {
				_, err := ts.client.CreateSettlement(ctx, connect.NewRequest(&pb.CreateSettlementRequest{
					GroupID: "flat", SenderID: "bob", ReceiverID: "bob", Amount: d("1"),
				}))
				return err
			},
			want: connect.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err), "error: %v", err)
		})
	}
}

func TestRequiresAuthentication(t *testing.T) {
	ts := setupTestServer(t)
	anonymous := pb.NewLedgerServiceClient(http.DefaultClient, ts.url)

	_, err := anonymous.NetBalance(context.Background(), connect.NewRequest(&pb.NetBalanceRequest{ParticipantID: "alice", GroupID: "flat"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	forged := auth.NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour)
	token, err := forged.Generate(&models.Participant{ID: "alice"})
	require.NoError(t, err)
	req := connect.NewRequest(&pb.NetBalanceRequest{ParticipantID: "alice", GroupID: "flat"})
	req.Header().Set("Authorization", "Bearer "+token)
	_, err = anonymous.NetBalance(context.Background(), req)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestRejectsUnknownFields(t *testing.T) {
	ts := setupTestServer(t)
	token, err := ts.jwt.Generate(&models.Participant{ID: "alice"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.url+pb.LedgerServiceNetBalanceProcedure,
		strings.NewReader(`{"participant_id":"alice","group_id":"flat","currency":"EUR"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFeedAndBalances(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	ts.createEntry(t, "alice", "300.00", nil)
	_, err := ts.client.CreateSettlement(ctx, connect.NewRequest(&pb.CreateSettlementRequest{
		GroupID: "flat", SenderID: "bob", ReceiverID: "alice", Amount: d("40"), Comment: "cash",
	}))
	require.NoError(t, err)

	feed, err := ts.client.Feed(ctx, connect.NewRequest(&pb.FeedRequest{ParticipantID: "bob", Scope: pb.FeedAll}))
	require.NoError(t, err)
	require.Len(t, feed.Msg.Items, 2)
	kinds := []string{feed.Msg.Items[0].Kind, feed.Msg.Items[1].Kind}
	assert.ElementsMatch(t, []string{"consumed", "sent"}, kinds)

	entriesOnly, err := ts.client.Feed(ctx, connect.NewRequest(&pb.FeedRequest{ParticipantID: "bob"}))
	require.NoError(t, err)
	require.Len(t, entriesOnly.Msg.Items, 1)
	assert.True(t, entriesOnly.Msg.Items[0].Amount.Equal(d("-100")))

	balance, err := ts.client.NetBalance(ctx, connect.NewRequest(&pb.NetBalanceRequest{ParticipantID: "bob", GroupID: "flat"}))
	require.NoError(t, err)
	assert.True(t, balance.Msg.Balance.Equal(d("-140")), "bob: -100 consumed, -40 sent; got %s", balance.Msg.Balance)

	balances, err := ts.client.GroupBalances(ctx, connect.NewRequest(&pb.GroupBalancesRequest{GroupID: "flat"}))
	require.NoError(t, err)
	require.Len(t, balances.Msg.Balances, 3)
	require.Len(t, balances.Msg.Reminders, 1, "carol sits exactly on the threshold, bob is below it")
	assert.Equal(t, "bob", balances.Msg.Reminders[0].MemberID)
	assert.True(t, balances.Msg.Reminders[0].Threshold.Equal(d("-100")))
}

func TestTemplatesOverRPC(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	created, err := ts.client.CreateTemplate(ctx, connect.NewRequest(&pb.CreateTemplateRequest{
		GroupID:     "flat",
		PayerID:     "alice",
		Description: "Rent",
		Amount:      d("900"),
		SharedByAll: true,
		StartDate:   "2024-01-31",
		Rule:        "RRULE:FREQ=MONTHLY",
	}))
	require.NoError(t, err)
	tmpl := created.Msg.Template
	assert.Equal(t, "RRULE:FREQ=MONTHLY;INTERVAL=1", tmpl.Rule)
	assert.Equal(t, "every month", tmpl.Schedule)
	assert.Empty(t, tmpl.LastMaterialized)

	res, err := ts.client.MaterializeDue(ctx, connect.NewRequest(&pb.MaterializeDueRequest{TemplateID: tmpl.ID, AsOf: "2024-03-31"}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Created, 2)
	assert.Equal(t, "2024-02-29", res.Msg.Created[0].OccurrenceDate)
	assert.Equal(t, "2024-03-31", res.Msg.Watermark)
	assert.Empty(t, res.Msg.Warning)

	again, err := ts.client.MaterializeDue(ctx, connect.NewRequest(&pb.MaterializeDueRequest{TemplateID: tmpl.ID, AsOf: "2024-03-31"}))
	require.NoError(t, err)
	assert.Empty(t, again.Msg.Created)

	// The server clock reads 2024-06-01.
	_, err = ts.client.MaterializeDue(ctx, connect.NewRequest(&pb.MaterializeDueRequest{TemplateID: tmpl.ID, AsOf: "2030-01-31"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	require.NoError(t, ts.store.CreateParticipant(ctx, &models.Participant{ID: "mallory", DisplayName: "mallory"}))
	_, err = ts.clientAs(t, "mallory").MaterializeDue(ctx, connect.NewRequest(&pb.MaterializeDueRequest{TemplateID: tmpl.ID, AsOf: "2024-05-31"}))
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	stored, err := ts.store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", stored.LastMaterialized.Format(time.DateOnly), "rejected calls leave the watermark alone")

	history, err := ts.client.History(ctx, connect.NewRequest(&pb.HistoryRequest{TargetKind: "ledger_entry", TargetID: res.Msg.Created[0].ID}))
	require.NoError(t, err)
	require.Len(t, history.Msg.Records, 1)
	assert.Equal(t, recurrence.SystemActor, history.Msg.Records[0].ActorID)

	_, err = ts.client.CreateTemplate(ctx, connect.NewRequest(&pb.CreateTemplateRequest{
		GroupID: "flat", PayerID: "alice", Amount: d("1"), SharedByAll: true, Rule: "RRULE:FREQ=FORTNIGHTLY",
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestDeleteSettlement(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	created, err := ts.client.CreateSettlement(ctx, connect.NewRequest(&pb.CreateSettlementRequest{
		GroupID: "flat", SenderID: "bob", ReceiverID: "alice", Amount: d("5"),
	}))
	require.NoError(t, err)
	id := created.Msg.Settlement.ID

	_, err = ts.client.DeleteSettlement(ctx, connect.NewRequest(&pb.DeleteSettlementRequest{SettlementID: id}))
	require.NoError(t, err)

	_, err = ts.client.DeleteSettlement(ctx, connect.NewRequest(&pb.DeleteSettlementRequest{SettlementID: id}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	history, err := ts.client.History(ctx, connect.NewRequest(&pb.HistoryRequest{TargetKind: "settlement", TargetID: id}))
	require.NoError(t, err)
	assert.Empty(t, history.Msg.Records, "records of a deleted settlement lose their target")
}
