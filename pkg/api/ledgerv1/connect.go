package ledgerv1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const LedgerServiceName = "sharedledger.v1.LedgerService"

const (
	LedgerServiceCreateEntryProcedure       = "/sharedledger.v1.LedgerService/CreateEntry"
	LedgerServiceSetConsumerSharesProcedure = "/sharedledger.v1.LedgerService/SetConsumerShares"
	LedgerServiceAmountOwedByProcedure      = "/sharedledger.v1.LedgerService/AmountOwedBy"
	LedgerServiceCreateSettlementProcedure  = "/sharedledger.v1.LedgerService/CreateSettlement"
	LedgerServiceDeleteSettlementProcedure  = "/sharedledger.v1.LedgerService/DeleteSettlement"
	LedgerServiceCreateTemplateProcedure    = "/sharedledger.v1.LedgerService/CreateTemplate"
	LedgerServiceFeedProcedure              = "/sharedledger.v1.LedgerService/Feed"
	LedgerServiceNetBalanceProcedure        = "/sharedledger.v1.LedgerService/NetBalance"
	LedgerServiceGroupBalancesProcedure     = "/sharedledger.v1.LedgerService/GroupBalances"
	LedgerServiceMaterializeDueProcedure    = "/sharedledger.v1.LedgerService/MaterializeDue"
	LedgerServiceHistoryProcedure           = "/sharedledger.v1.LedgerService/History"
)

// LedgerServiceHandler is implemented by the server.
type LedgerServiceHandler interface {
	CreateEntry(context.Context, *connect.Request[CreateEntryRequest]) (*connect.Response[CreateEntryResponse], error)
	SetConsumerShares(context.Context, *connect.Request[SetConsumerSharesRequest]) (*connect.Response[SetConsumerSharesResponse], error)
	AmountOwedBy(context.Context, *connect.Request[AmountOwedByRequest]) (*connect.Response[AmountOwedByResponse], error)
	CreateSettlement(context.Context, *connect.Request[CreateSettlementRequest]) (*connect.Response[CreateSettlementResponse], error)
	DeleteSettlement(context.Context, *connect.Request[DeleteSettlementRequest]) (*connect.Response[DeleteSettlementResponse], error)
	CreateTemplate(context.Context, *connect.Request[CreateTemplateRequest]) (*connect.Response[CreateTemplateResponse], error)
	Feed(context.Context, *connect.Request[FeedRequest]) (*connect.Response[FeedResponse], error)
	NetBalance(context.Context, *connect.Request[NetBalanceRequest]) (*connect.Response[NetBalanceResponse], error)
	GroupBalances(context.Context, *connect.Request[GroupBalancesRequest]) (*connect.Response[GroupBalancesResponse], error)
	MaterializeDue(context.Context, *connect.Request[MaterializeDueRequest]) (*connect.Response[MaterializeDueResponse], error)
	History(context.Context, *connect.Request[HistoryRequest]) (*connect.Response[HistoryResponse], error)
}

// NewLedgerServiceHandler builds an HTTP handler serving every procedure
// of svc. It returns the path prefix to mount it on.
func NewLedgerServiceHandler(svc LedgerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(LedgerServiceCreateEntryProcedure, connect.NewUnaryHandler(LedgerServiceCreateEntryProcedure, svc.CreateEntry, opts...))
	mux.Handle(LedgerServiceSetConsumerSharesProcedure, connect.NewUnaryHandler(LedgerServiceSetConsumerSharesProcedure, svc.SetConsumerShares, opts...))
	mux.Handle(LedgerServiceAmountOwedByProcedure, connect.NewUnaryHandler(LedgerServiceAmountOwedByProcedure, svc.AmountOwedBy, opts...))
	mux.Handle(LedgerServiceCreateSettlementProcedure, connect.NewUnaryHandler(LedgerServiceCreateSettlementProcedure, svc.CreateSettlement, opts...))
	mux.Handle(LedgerServiceDeleteSettlementProcedure, connect.NewUnaryHandler(LedgerServiceDeleteSettlementProcedure, svc.DeleteSettlement, opts...))
	mux.Handle(LedgerServiceCreateTemplateProcedure, connect.NewUnaryHandler(LedgerServiceCreateTemplateProcedure, svc.CreateTemplate, opts...))
	mux.Handle(LedgerServiceFeedProcedure, connect.NewUnaryHandler(LedgerServiceFeedProcedure, svc.Feed, opts...))
	mux.Handle(LedgerServiceNetBalanceProcedure, connect.NewUnaryHandler(LedgerServiceNetBalanceProcedure, svc.NetBalance, opts...))
	mux.Handle(LedgerServiceGroupBalancesProcedure, connect.NewUnaryHandler(LedgerServiceGroupBalancesProcedure, svc.GroupBalances, opts...))
	mux.Handle(LedgerServiceMaterializeDueProcedure, connect.NewUnaryHandler(LedgerServiceMaterializeDueProcedure, svc.MaterializeDue, opts...))
	mux.Handle(LedgerServiceHistoryProcedure, connect.NewUnaryHandler(LedgerServiceHistoryProcedure, svc.History, opts...))
	return "/" + LedgerServiceName + "/", mux
}

// LedgerServiceClient calls a LedgerService.
type LedgerServiceClient struct {
	createEntry       *connect.Client[CreateEntryRequest, CreateEntryResponse]
	setConsumerShares *connect.Client[SetConsumerSharesRequest, SetConsumerSharesResponse]
	amountOwedBy      *connect.Client[AmountOwedByRequest, AmountOwedByResponse]
	createSettlement  *connect.Client[CreateSettlementRequest, CreateSettlementResponse]
	deleteSettlement  *connect.Client[DeleteSettlementRequest, DeleteSettlementResponse]
	createTemplate    *connect.Client[CreateTemplateRequest, CreateTemplateResponse]
	feed              *connect.Client[FeedRequest, FeedResponse]
	netBalance        *connect.Client[NetBalanceRequest, NetBalanceResponse]
	groupBalances     *connect.Client[GroupBalancesRequest, GroupBalancesResponse]
	materializeDue    *connect.Client[MaterializeDueRequest, MaterializeDueResponse]
	history           *connect.Client[HistoryRequest, HistoryResponse]
}

func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &LedgerServiceClient{
		createEntry:       connect.NewClient[CreateEntryRequest, CreateEntryResponse](httpClient, baseURL+LedgerServiceCreateEntryProcedure, opts...),
		setConsumerShares: connect.NewClient[SetConsumerSharesRequest, SetConsumerSharesResponse](httpClient, baseURL+LedgerServiceSetConsumerSharesProcedure, opts...),
		amountOwedBy:      connect.NewClient[AmountOwedByRequest, AmountOwedByResponse](httpClient, baseURL+LedgerServiceAmountOwedByProcedure, opts...),
		createSettlement:  connect.NewClient[CreateSettlementRequest, CreateSettlementResponse](httpClient, baseURL+LedgerServiceCreateSettlementProcedure, opts...),
		deleteSettlement:  connect.NewClient[DeleteSettlementRequest, DeleteSettlementResponse](httpClient, baseURL+LedgerServiceDeleteSettlementProcedure, opts...),
		createTemplate:    connect.NewClient[CreateTemplateRequest, CreateTemplateResponse](httpClient, baseURL+LedgerServiceCreateTemplateProcedure, opts...),
		feed:              connect.NewClient[FeedRequest, FeedResponse](httpClient, baseURL+LedgerServiceFeedProcedure, opts...),
		netBalance:        connect.NewClient[NetBalanceRequest, NetBalanceResponse](httpClient, baseURL+LedgerServiceNetBalanceProcedure, opts...),
		groupBalances:     connect.NewClient[GroupBalancesRequest, GroupBalancesResponse](httpClient, baseURL+LedgerServiceGroupBalancesProcedure, opts...),
		materializeDue:    connect.NewClient[MaterializeDueRequest, MaterializeDueResponse](httpClient, baseURL+LedgerServiceMaterializeDueProcedure, opts...),
		history:           connect.NewClient[HistoryRequest, HistoryResponse](httpClient, baseURL+LedgerServiceHistoryProcedure, opts...),
	}
}

func (c *LedgerServiceClient) CreateEntry(ctx context.Context, req *connect.Request[CreateEntryRequest]) (*connect.Response[CreateEntryResponse], error) {
	return c.createEntry.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) SetConsumerShares(ctx context.Context, req *connect.Request[SetConsumerSharesRequest]) (*connect.Response[SetConsumerSharesResponse], error) {
	return c.setConsumerShares.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) AmountOwedBy(ctx context.Context, req *connect.Request[AmountOwedByRequest]) (*connect.Response[AmountOwedByResponse], error) {
	return c.amountOwedBy.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) CreateSettlement(ctx context.Context, req *connect.Request[CreateSettlementRequest]) (*connect.Response[CreateSettlementResponse], error) {
	return c.createSettlement.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) DeleteSettlement(ctx context.Context, req *connect.Request[DeleteSettlementRequest]) (*connect.Response[DeleteSettlementResponse], error) {
	return c.deleteSettlement.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) CreateTemplate(ctx context.Context, req *connect.Request[CreateTemplateRequest]) (*connect.Response[CreateTemplateResponse], error) {
	return c.createTemplate.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) Feed(ctx context.Context, req *connect.Request[FeedRequest]) (*connect.Response[FeedResponse], error) {
	return c.feed.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) NetBalance(ctx context.Context, req *connect.Request[NetBalanceRequest]) (*connect.Response[NetBalanceResponse], error) {
	return c.netBalance.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) GroupBalances(ctx context.Context, req *connect.Request[GroupBalancesRequest]) (*connect.Response[GroupBalancesResponse], error) {
	return c.groupBalances.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) MaterializeDue(ctx context.Context, req *connect.Request[MaterializeDueRequest]) (*connect.Response[MaterializeDueResponse], error) {
	return c.materializeDue.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) History(ctx context.Context, req *connect.Request[HistoryRequest]) (*connect.Response[HistoryResponse], error) {
	return c.history.CallUnary(ctx, req)
}

// Codec is the JSON codec every LedgerService message travels in. Unknown
// request fields are rejected.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(msg)
}
