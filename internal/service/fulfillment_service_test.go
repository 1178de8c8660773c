package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sibysi/agent-directory/internal/model"
	"github.com/sibysi/agent-directory/internal/payment"
	"github.com/sibysi/agent-directory/internal/source"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// In-memory repositories mirroring the conditional-update semantics of the
// real ones: lifecycle moves only happen when the status guard matches, and
// the affected-row count tells the caller whether it won.

type fakeTxRepo struct {
	txns map[string]*model.Transaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{txns: map[string]*model.Transaction{}}
}

func (r *fakeTxRepo) Create(_ context.Context, t *model.Transaction) error {
	cp := *t
	r.txns[t.ID] = &cp
	return nil
}

func (r *fakeTxRepo) FindByID(_ context.Context, id string) (*model.Transaction, error) {
	t, ok := r.txns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTxRepo) ClaimForProcessing(_ context.Context, id string, startedAt time.Time) (int64, error) {
	t, ok := r.txns[id]
	if !ok || t.Status != model.TransactionStatusPending {
		return 0, nil
	}
	t.Status = model.TransactionStatusProcessing
	t.Fulfillment.Status = model.FulfillmentStatusPurchasing
	t.Fulfillment.StartedAt = &startedAt
	return 1, nil
}

func (r *fakeTxRepo) CompleteDelivery(_ context.Context, id string, delivery datatypes.JSON, completedAt time.Time) (int64, error) {
	t, ok := r.txns[id]
	if !ok || t.Status != model.TransactionStatusProcessing {
		return 0, nil
	}
	t.Status = model.TransactionStatusCompleted
	t.Fulfillment.Status = model.FulfillmentStatusDelivered
	t.Fulfillment.Delivery = delivery
	t.Fulfillment.CompletedAt = &completedAt
	return 1, nil
}

func (r *fakeTxRepo) MarkPendingManual(_ context.Context, id string) error {
	t, ok := r.txns[id]
	if !ok || t.Status != model.TransactionStatusProcessing {
		return nil
	}
	t.Fulfillment.Status = model.FulfillmentStatusPendingManual
	return nil
}

func (r *fakeTxRepo) MarkFailed(_ context.Context, id, errMsg string, failedAt time.Time) error {
	t, ok := r.txns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Status = model.TransactionStatusFailed
	t.Fulfillment.Status = model.FulfillmentStatusFailed
	t.Fulfillment.LastError = errMsg
	t.Fulfillment.FailedAt = &failedAt
	return nil
}

func (r *fakeTxRepo) MarkRefunded(_ context.Context, id, refundID string, refundedAt time.Time) error {
	t, ok := r.txns[id]
	if !ok || t.Status != model.TransactionStatusFailed {
		return gorm.ErrRecordNotFound
	}
	t.Status = model.TransactionStatusRefunded
	t.Fulfillment.Status = model.FulfillmentStatusRefunded
	t.Fulfillment.RefundID = refundID
	t.Fulfillment.RefundedAt = &refundedAt
	return nil
}

func (r *fakeTxRepo) RecordRefundError(_ context.Context, id, errMsg string) error {
	t, ok := r.txns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Fulfillment.RefundError = errMsg
	return nil
}

func (r *fakeTxRepo) ListDelivered(_ context.Context) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range r.txns {
		if t.Fulfillment.Status == model.FulfillmentStatusDelivered {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTxRepo) SetDB(*gorm.DB) {}

type fakeListingRepo struct {
	listings map[string]*model.Listing
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{listings: map[string]*model.Listing{}}
}

func (r *fakeListingRepo) Create(_ context.Context, l *model.Listing) error {
	cp := *l
	r.listings[l.ID] = &cp
	return nil
}

func (r *fakeListingRepo) FindByID(_ context.Context, id string) (*model.Listing, error) {
	l, ok := r.listings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeListingRepo) SetDB(*gorm.DB) {}

type fakeQueueRepo struct {
	nextID uint64
	tasks  []*model.ManualFulfillmentTask
}

func (r *fakeQueueRepo) Enqueue(_ context.Context, task *model.ManualFulfillmentTask) error {
	r.nextID++
	cp := *task
	cp.ID = r.nextID
	if cp.Status == "" {
		cp.Status = model.ManualTaskStatusPending
	}
	r.tasks = append(r.tasks, &cp)
	return nil
}

func (r *fakeQueueRepo) ListPending(_ context.Context) ([]model.ManualFulfillmentTask, error) {
	var out []model.ManualFulfillmentTask
	for _, t := range r.tasks {
		if t.Status == model.ManualTaskStatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeQueueRepo) FindPendingByTransactionID(_ context.Context, transactionID string) (*model.ManualFulfillmentTask, error) {
	for _, t := range r.tasks {
		if t.TransactionID == transactionID && t.Status == model.ManualTaskStatusPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeQueueRepo) Complete(_ context.Context, transactionID string, delivery datatypes.JSON, completedAt time.Time) (int64, error) {
	for _, t := range r.tasks {
		if t.TransactionID == transactionID && t.Status == model.ManualTaskStatusPending {
			t.Status = model.ManualTaskStatusCompleted
			t.Delivery = delivery
			t.CompletedAt = &completedAt
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeQueueRepo) SetDB(*gorm.DB) {}

type fakeLogRepo struct {
	entries []model.FulfillmentLogEntry
}

func (r *fakeLogRepo) Append(_ context.Context, transactionID, status string, details datatypes.JSON) error {
	r.entries = append(r.entries, model.FulfillmentLogEntry{
		ID:            uint64(len(r.entries) + 1),
		TransactionID: transactionID,
		Status:        status,
		Details:       details,
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}

func (r *fakeLogRepo) CountByStatus(_ context.Context, status string) (int64, error) {
	var n int64
	for _, e := range r.entries {
		if e.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeLogRepo) ListByTransaction(_ context.Context, transactionID string) ([]model.FulfillmentLogEntry, error) {
	var out []model.FulfillmentLogEntry
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) SetDB(*gorm.DB) {}

func (r *fakeLogRepo) byStatus(status string) []model.FulfillmentLogEntry {
	var out []model.FulfillmentLogEntry
	for _, e := range r.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

type fakePayments struct {
	calls int
	err   error
}

func (p *fakePayments) CreateRefund(_ context.Context, paymentIntentID, reason string) (*payment.Refund, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &payment.Refund{ID: "re_" + paymentIntentID}, nil
}

type creditRecord struct {
	agentID string
	amount  decimal.Decimal
}

type fakeRevenue struct {
	credits []creditRecord
}

func (r *fakeRevenue) Get(_ context.Context, agentID string) (int64, error) {
	var cents int64
	for _, c := range r.credits {
		if c.agentID == agentID {
			cents += c.amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		}
	}
	return cents, nil
}

func (r *fakeRevenue) Credit(_ context.Context, agentID string, amountUSD decimal.Decimal) error {
	r.credits = append(r.credits, creditRecord{agentID: agentID, amount: amountUSD})
	return nil
}

type sentNotice struct {
	agentID string
	typ     string
	txnID   string
}

type fakeNotify struct {
	sent []sentNotice
}

func (n *fakeNotify) Notify(_ context.Context, agentID, typ, _, _ string, transactionID string) {
	n.sent = append(n.sent, sentNotice{agentID: agentID, typ: typ, txnID: transactionID})
}

func (n *fakeNotify) List(context.Context, string, int) ([]model.Notification, error) {
	return nil, nil
}

type engineEnv struct {
	svc      FulfillmentService
	txns     *fakeTxRepo
	listings *fakeListingRepo
	queue    *fakeQueueRepo
	logs     *fakeLogRepo
	payments *fakePayments
	revenue  *fakeRevenue
	notify   *fakeNotify
}

func newEngineEnv(t *testing.T, payments *fakePayments) *engineEnv {
	t.Helper()
	env := &engineEnv{
		txns:     newFakeTxRepo(),
		listings: newFakeListingRepo(),
		queue:    &fakeQueueRepo{},
		logs:     &fakeLogRepo{},
		payments: payments,
		revenue:  &fakeRevenue{},
		notify:   &fakeNotify{},
	}
	dispatcher := source.NewDispatcher(source.Config{RapidAPIKey: "test-key"}, env.queue)
	var client payment.Client
	if payments != nil {
		client = payments
	}
	env.svc = NewFulfillmentService(env.txns, env.listings, env.queue, env.logs, dispatcher, client, env.revenue, env.notify)
	return env
}

func (e *engineEnv) seed(t *testing.T, txn *model.Transaction, listing *model.Listing) {
	t.Helper()
	if err := e.listings.Create(context.Background(), listing); err != nil {
		t.Fatal(err)
	}
	if err := e.txns.Create(context.Background(), txn); err != nil {
		t.Fatal(err)
	}
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func arbListing(id, platform, price, sourcePrice string) *model.Listing {
	return &model.Listing{
		ID:            id,
		SellerAgentID: "seller-1",
		Title:         "Data Summarizer",
		PriceUSD:      money(price),
		Source: model.ArbitrageSource{
			IsArbitrage:    true,
			SourcePlatform: platform,
			SourcePrice:    money(sourcePrice),
		},
	}
}

func paidTxn(id, listingID, amount string) *model.Transaction {
	t := &model.Transaction{
		ID:              id,
		BuyerAgentID:    "buyer-1",
		SellerAgentID:   "seller-1",
		ListingID:       listingID,
		AmountUSD:       money(amount),
		CommissionRate:  money("0.06"),
		PaymentIntentID: "pi_" + id,
		Status:          model.TransactionStatusPending,
		InputData:       datatypes.JSONMap{"text": "summarize this"},
		Fulfillment:     model.Fulfillment{Status: model.FulfillmentStatusPending},
	}
	t.ComputeCommission()
	return t
}

func TestProcessDeliversAutomatedPurchase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"summary":"done"}`)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "rapidapi", "15.00", "8.00")
	listing.Source.APIEndpoint = srv.URL
	listing.Source.APIMethod = http.MethodPost
	txn := paidTxn("txn-1", "lst-1", "15.00")
	env.seed(t, txn, listing)

	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeDelivered {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeDelivered)
	}
	if res.Platform != source.PlatformRapidAPI {
		t.Errorf("platform = %s, want rapidapi", res.Platform)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.Fulfillment.Status != model.FulfillmentStatusDelivered {
		t.Errorf("fulfillment status = %s, want delivered", stored.Fulfillment.Status)
	}
	if stored.Fulfillment.CompletedAt == nil || stored.Fulfillment.StartedAt == nil {
		t.Error("expected started/completed timestamps")
	}
	var delivery map[string]any
	if err := json.Unmarshal(stored.Fulfillment.Delivery, &delivery); err != nil {
		t.Fatalf("delivery unmarshal: %v", err)
	}
	if delivery["type"] != "api_result" {
		t.Errorf("delivery type = %v, want api_result", delivery["type"])
	}

	if got := env.logs.byStatus(model.LogStatusSuccess); len(got) != 1 {
		t.Errorf("success log entries = %d, want 1", len(got))
	}
	if env.payments.calls != 0 {
		t.Errorf("refund calls = %d, want 0", env.payments.calls)
	}
	if len(env.revenue.credits) != 1 || !env.revenue.credits[0].amount.Equal(money("14.10")) {
		t.Errorf("seller payout credits = %+v, want one credit of 14.10", env.revenue.credits)
	}
	if len(env.notify.sent) != 1 || env.notify.sent[0].typ != model.NotificationTypeDelivered {
		t.Errorf("notifications = %+v, want one delivered notice", env.notify.sent)
	}
}

func TestProcessQueuesManualPlatform(t *testing.T) {
	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "fiverr", "50.00", "25.00")
	listing.Source.SourceURL = "https://fiverr.com/gigs/logo-design"
	txn := paidTxn("txn-1", "lst-1", "50.00")
	env.seed(t, txn, listing)

	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomePendingManual || !res.RequiresManual {
		t.Fatalf("result = %+v, want pending_manual", res)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusProcessing {
		t.Errorf("status = %s, want processing while awaiting operator", stored.Status)
	}
	if stored.Fulfillment.Status != model.FulfillmentStatusPendingManual {
		t.Errorf("fulfillment status = %s, want pending_manual", stored.Fulfillment.Status)
	}

	pending, err := env.svc.ManualQueue(context.Background())
	if err != nil {
		t.Fatalf("ManualQueue: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(pending))
	}
	task := pending[0]
	if task.TransactionID != "txn-1" || task.SourcePlatform != "fiverr" {
		t.Errorf("task = %+v", task)
	}
	if !task.SourcePrice.Equal(money("25.00")) {
		t.Errorf("budget = %s, want 25.00", task.SourcePrice)
	}
	if !strings.Contains(task.Instructions, "$25.00") || !strings.Contains(task.Instructions, "DO NOT exceed") {
		t.Errorf("instructions missing budget line:\n%s", task.Instructions)
	}

	// No terminal log row yet: the transaction is still open.
	if len(env.logs.entries) != 0 {
		t.Errorf("log entries = %d, want 0 before completion", len(env.logs.entries))
	}
}

func TestCompleteManualTaskDelivers(t *testing.T) {
	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "fiverr", "50.00", "25.00")
	listing.Source.SourceURL = "https://fiverr.com/gigs/logo-design"
	txn := paidTxn("txn-1", "lst-1", "50.00")
	env.seed(t, txn, listing)

	if _, err := env.svc.Process(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	delivery := map[string]any{"type": "file", "data": map[string]any{"file_url": "https://example.com/logo.zip"}}
	if err := env.svc.CompleteManualTask(context.Background(), "txn-1", delivery); err != nil {
		t.Fatalf("CompleteManualTask: %v", err)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.Fulfillment.Status != model.FulfillmentStatusDelivered {
		t.Errorf("fulfillment status = %s, want delivered", stored.Fulfillment.Status)
	}

	pending, _ := env.svc.ManualQueue(context.Background())
	if len(pending) != 0 {
		t.Errorf("pending tasks = %d, want 0 after completion", len(pending))
	}
	if got := env.logs.byStatus(model.LogStatusManualComplete); len(got) != 1 {
		t.Errorf("manual_complete log entries = %d, want 1", len(got))
	}
	if len(env.revenue.credits) != 1 || !env.revenue.credits[0].amount.Equal(money("47.00")) {
		t.Errorf("seller payout credits = %+v, want one credit of 47.00", env.revenue.credits)
	}

	// A second completion for the same transaction must not re-deliver.
	if err := env.svc.CompleteManualTask(context.Background(), "txn-1", delivery); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("second completion err = %v, want ErrTaskNotFound", err)
	}
}

func TestProcessFailureRefundsBuyer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "space is down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "huggingface", "10.00", "0.00")
	listing.Source.SourceURL = srv.URL
	txn := paidTxn("txn-1", "lst-1", "10.00")
	env.seed(t, txn, listing)

	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeRefunded || !res.Refunded {
		t.Fatalf("result = %+v, want refunded", res)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusRefunded {
		t.Errorf("status = %s, want refunded", stored.Status)
	}
	if stored.Fulfillment.Status != model.FulfillmentStatusRefunded {
		t.Errorf("fulfillment status = %s, want refunded", stored.Fulfillment.Status)
	}
	if stored.Fulfillment.RefundID != "re_pi_txn-1" {
		t.Errorf("refund id = %q", stored.Fulfillment.RefundID)
	}
	if stored.Fulfillment.LastError == "" {
		t.Error("expected failure cause to be recorded")
	}

	if env.payments.calls != 1 {
		t.Errorf("refund calls = %d, want exactly 1", env.payments.calls)
	}

	failedLogs := env.logs.byStatus(model.LogStatusFailed)
	if len(failedLogs) != 1 {
		t.Fatalf("failed log entries = %d, want 1", len(failedLogs))
	}
	var details map[string]any
	if err := json.Unmarshal(failedLogs[0].Details, &details); err != nil {
		t.Fatalf("details unmarshal: %v", err)
	}
	if details["refunded"] != true {
		t.Errorf("log details = %v, want refunded=true", details)
	}

	if len(env.notify.sent) != 1 || env.notify.sent[0].typ != model.NotificationTypeRefunded {
		t.Errorf("notifications = %+v, want one refunded notice", env.notify.sent)
	}
	if len(env.revenue.credits) != 0 {
		t.Errorf("seller credits = %+v, want none on failure", env.revenue.credits)
	}
}

func TestProcessRefundFailureLeavesTransactionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{err: errors.New("stripe: charge already disputed")})
	listing := arbListing("lst-1", "huggingface", "10.00", "0.00")
	listing.Source.SourceURL = srv.URL
	txn := paidTxn("txn-1", "lst-1", "10.00")
	env.seed(t, txn, listing)

	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeFailed || res.Refunded {
		t.Fatalf("result = %+v, want failed without refund", res)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.Fulfillment.RefundError, "disputed") {
		t.Errorf("refund error = %q, want recorded cause", stored.Fulfillment.RefundError)
	}
	if env.payments.calls != 1 {
		t.Errorf("refund calls = %d, want exactly 1 (no retry)", env.payments.calls)
	}
	if len(env.notify.sent) != 1 || env.notify.sent[0].typ != model.NotificationTypeFailed {
		t.Errorf("notifications = %+v, want one failed notice", env.notify.sent)
	}
}

func TestProcessFailureWithoutPaymentSkipsRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "huggingface", "10.00", "0.00")
	listing.Source.SourceURL = srv.URL
	txn := paidTxn("txn-1", "lst-1", "10.00")
	txn.PaymentIntentID = ""
	env.seed(t, txn, listing)

	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
	if env.payments.calls != 0 {
		t.Errorf("refund calls = %d, want 0 when nothing was captured", env.payments.calls)
	}
}

func TestProcessSkipsNonArbitrageListing(t *testing.T) {
	env := newEngineEnv(t, &fakePayments{})
	listing := &model.Listing{
		ID:            "lst-1",
		SellerAgentID: "seller-1",
		Title:         "First Party Service",
		PriceUSD:      money("20.00"),
	}
	txn := paidTxn("txn-1", "lst-1", "20.00")
	env.seed(t, txn, listing)

	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeSkipped || res.Reason != "not_arbitrage" {
		t.Fatalf("result = %+v, want skipped/not_arbitrage", res)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusPending {
		t.Errorf("status = %s, want untouched pending", stored.Status)
	}
	if len(env.logs.entries) != 0 || len(env.queue.tasks) != 0 {
		t.Error("skip must not write logs or queue tasks")
	}
}

func TestProcessDuplicateTriggerIsNoOp(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "rapidapi", "15.00", "8.00")
	listing.Source.APIEndpoint = srv.URL
	txn := paidTxn("txn-1", "lst-1", "15.00")
	env.seed(t, txn, listing)

	if _, err := env.svc.Process(context.Background(), "txn-1"); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	res, err := env.svc.Process(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if res.Outcome != OutcomeAlreadyHandled {
		t.Fatalf("second outcome = %s, want already_handled", res.Outcome)
	}
	if res.Reason != string(model.TransactionStatusCompleted) {
		t.Errorf("reason = %q, want current status", res.Reason)
	}

	if hits != 1 {
		t.Errorf("source calls = %d, want 1", hits)
	}
	if len(env.logs.entries) != 1 {
		t.Errorf("log entries = %d, want 1", len(env.logs.entries))
	}
	if len(env.revenue.credits) != 1 {
		t.Errorf("credits = %d, want 1", len(env.revenue.credits))
	}
}

func TestProcessUnknownTransaction(t *testing.T) {
	env := newEngineEnv(t, &fakePayments{})
	if _, err := env.svc.Process(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestManualQueueSurvivesUnrelatedCompletions(t *testing.T) {
	env := newEngineEnv(t, &fakePayments{})
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("txn-%d", i)
		listingID := fmt.Sprintf("lst-%d", i)
		listing := arbListing(listingID, "upwork", "30.00", "20.00")
		listing.Source.SourceURL = "https://upwork.com/jobs/" + id
		env.seed(t, paidTxn(id, listingID, "30.00"), listing)
		if _, err := env.svc.Process(context.Background(), id); err != nil {
			t.Fatalf("Process %s: %v", id, err)
		}
	}

	if err := env.svc.CompleteManualTask(context.Background(), "txn-2", map[string]any{"type": "text_result", "data": "done"}); err != nil {
		t.Fatalf("CompleteManualTask: %v", err)
	}

	pending, err := env.svc.ManualQueue(context.Background())
	if err != nil {
		t.Fatalf("ManualQueue: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].TransactionID != "txn-1" || pending[1].TransactionID != "txn-3" {
		t.Errorf("queue order = %s, %s; want txn-1, txn-3", pending[0].TransactionID, pending[1].TransactionID)
	}
	for _, p := range pending {
		if p.Status != model.ManualTaskStatusPending {
			t.Errorf("task %s status = %s, want pending", p.TransactionID, p.Status)
		}
	}
}

func TestHandleSourceCompleteDelivers(t *testing.T) {
	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "fiverr", "50.00", "25.00")
	listing.Source.SourceURL = "https://fiverr.com/gigs/logo-design"
	txn := paidTxn("txn-1", "lst-1", "50.00")
	env.seed(t, txn, listing)

	if _, err := env.svc.Process(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	err := env.svc.HandleSourceComplete(context.Background(), "txn-1", "fiverr", map[string]any{"order_id": "FO-1"})
	if err != nil {
		t.Fatalf("HandleSourceComplete: %v", err)
	}

	stored := env.txns.txns["txn-1"]
	if stored.Status != model.TransactionStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	var delivery map[string]any
	if err := json.Unmarshal(stored.Fulfillment.Delivery, &delivery); err != nil {
		t.Fatalf("delivery unmarshal: %v", err)
	}
	if delivery["type"] != "webhook_delivery" || delivery["platform"] != "fiverr" {
		t.Errorf("delivery = %v", delivery)
	}

	// The webhook supersedes the queued manual task.
	pending, _ := env.svc.ManualQueue(context.Background())
	if len(pending) != 0 {
		t.Errorf("pending tasks = %d, want 0", len(pending))
	}

	// Already-delivered transactions reject a late webhook.
	err = env.svc.HandleSourceComplete(context.Background(), "txn-1", "fiverr", nil)
	if !errors.Is(err, ErrNotAwaitingDelivery) {
		t.Errorf("second webhook err = %v, want ErrNotAwaitingDelivery", err)
	}
}

func TestStatusReflectsLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{})
	listing := arbListing("lst-1", "rapidapi", "15.00", "8.00")
	listing.Source.APIEndpoint = srv.URL
	env.seed(t, paidTxn("txn-1", "lst-1", "15.00"), listing)

	view, err := env.svc.Status(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.TransactionStatus != "pending" || view.FulfillmentStatus != "pending" {
		t.Errorf("initial view = %+v", view)
	}

	if _, err := env.svc.Process(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	view, err = env.svc.Status(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.TransactionStatus != "completed" || view.FulfillmentStatus != "delivered" {
		t.Errorf("post-delivery view = %+v", view)
	}
	if view.RequiresManual {
		t.Error("delivered transaction must not report requiresManual")
	}
	if len(view.Delivery) == 0 {
		t.Error("expected delivery payload in view")
	}

	if _, err := env.svc.Status(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestStatsAggregatesDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	env := newEngineEnv(t, &fakePayments{})

	api := arbListing("lst-api", "rapidapi", "15.00", "8.00")
	api.Source.APIEndpoint = srv.URL
	env.seed(t, paidTxn("txn-api", "lst-api", "15.00"), api)

	manual := arbListing("lst-man", "fiverr", "50.00", "25.00")
	manual.Source.SourceURL = "https://fiverr.com/gigs/logo-design"
	env.seed(t, paidTxn("txn-man", "lst-man", "50.00"), manual)

	waiting := arbListing("lst-wait", "upwork", "30.00", "20.00")
	waiting.Source.SourceURL = "https://upwork.com/jobs/x"
	env.seed(t, paidTxn("txn-wait", "lst-wait", "30.00"), waiting)

	for _, id := range []string{"txn-api", "txn-man", "txn-wait"} {
		if _, err := env.svc.Process(context.Background(), id); err != nil {
			t.Fatalf("Process %s: %v", id, err)
		}
	}
	if err := env.svc.CompleteManualTask(context.Background(), "txn-man", map[string]any{"type": "file"}); err != nil {
		t.Fatalf("CompleteManualTask: %v", err)
	}

	stats, err := env.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalFulfilled != 2 {
		t.Errorf("totalFulfilled = %d, want 2", stats.TotalFulfilled)
	}
	if !stats.TotalRevenue.Equal(money("65.00")) {
		t.Errorf("totalRevenue = %s, want 65.00", stats.TotalRevenue)
	}
	if stats.ByPlatform["rapidapi"] != 1 || stats.ByPlatform["fiverr"] != 1 {
		t.Errorf("byPlatform = %v", stats.ByPlatform)
	}
	if stats.PendingManual != 1 {
		t.Errorf("pendingManual = %d, want 1", stats.PendingManual)
	}
	if stats.ManualCompleted != 1 {
		t.Errorf("manualCompleted = %d, want 1", stats.ManualCompleted)
	}
}
