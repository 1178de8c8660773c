package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sibysi/agent-directory/internal/metrics"
	"github.com/sibysi/agent-directory/internal/model"
	"github.com/sibysi/agent-directory/internal/payment"
	"github.com/sibysi/agent-directory/internal/repository"
	"github.com/sibysi/agent-directory/internal/source"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrTaskNotFound means a manual completion targeted a transaction
	// with no pending queue entry.
	ErrTaskNotFound = errors.New("manual task not found")

	// ErrNotAwaitingDelivery means a completion targeted a transaction
	// that is not in the processing state.
	ErrNotAwaitingDelivery = errors.New("transaction is not awaiting delivery")
)

// Outcome labels reported by Process.
type Outcome string

const (
	OutcomeDelivered     Outcome = "delivered"
	OutcomePendingManual Outcome = "pending_manual"
	OutcomeFailed        Outcome = "failed"
	OutcomeRefunded      Outcome = "refunded"
	OutcomeSkipped       Outcome = "skipped"
	// OutcomeAlreadyHandled is returned for duplicate triggers: the
	// transaction was already claimed or finished, and nothing was done.
	OutcomeAlreadyHandled Outcome = "already_handled"
)

type ProcessResult struct {
	TransactionID  string
	Outcome        Outcome
	Platform       source.Platform
	RequiresManual bool
	Refunded       bool
	Reason         string
}

type FulfillmentStatusView struct {
	TransactionID     string            `json:"transactionId"`
	TransactionStatus string            `json:"transactionStatus"`
	FulfillmentStatus string            `json:"fulfillmentStatus"`
	StartedAt         *time.Time        `json:"startedAt,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	RequiresManual    bool              `json:"requiresManual"`
	Delivery          json.RawMessage   `json:"delivery,omitempty"`
	Error             string            `json:"error,omitempty"`
	RefundID          string            `json:"refundId,omitempty"`
	RefundError       string            `json:"refundError,omitempty"`
}

type FulfillmentStats struct {
	TotalFulfilled  int64            `json:"totalFulfilled"`
	TotalRevenue    decimal.Decimal  `json:"totalRevenue"`
	ByPlatform      map[string]int64 `json:"byPlatform"`
	PendingManual   int              `json:"pendingManual"`
	ManualCompleted int64            `json:"manualCompleted"`
}

// FulfillmentService owns the transaction lifecycle for arbitrage
// fulfillment: claim, dispatch, settle, and compensate on failure.
type FulfillmentService interface {
	// Process runs the full fulfillment flow for one transaction. Safe to
	// call twice for the same id: duplicates observe the claim guard and
	// return without dispatching again.
	Process(ctx context.Context, transactionID string) (*ProcessResult, error)

	// CompleteManualTask is the operator entry point: it records the
	// delivery, completes the transaction, and removes the queue entry.
	CompleteManualTask(ctx context.Context, transactionID string, delivery map[string]any) error

	// HandleSourceComplete handles a source platform's completion webhook,
	// equivalent to a strategy success.
	HandleSourceComplete(ctx context.Context, transactionID, platform string, resultData map[string]any) error

	Status(ctx context.Context, transactionID string) (*FulfillmentStatusView, error)
	ManualQueue(ctx context.Context) ([]model.ManualFulfillmentTask, error)
	Stats(ctx context.Context) (*FulfillmentStats, error)
}

type fulfillmentService struct {
	txRepo      repository.TransactionRepository
	listingRepo repository.ListingRepository
	queueRepo   repository.ManualTaskRepository
	logRepo     repository.FulfillmentLogRepository
	dispatcher  *source.Dispatcher
	payments    payment.Client
	revenue     RevenueService
	notify      NotificationService
}

func NewFulfillmentService(
	txRepo repository.TransactionRepository,
	listingRepo repository.ListingRepository,
	queueRepo repository.ManualTaskRepository,
	logRepo repository.FulfillmentLogRepository,
	dispatcher *source.Dispatcher,
	payments payment.Client,
	revenue RevenueService,
	notify NotificationService,
) FulfillmentService {
	return &fulfillmentService{
		txRepo:      txRepo,
		listingRepo: listingRepo,
		queueRepo:   queueRepo,
		logRepo:     logRepo,
		dispatcher:  dispatcher,
		payments:    payments,
		revenue:     revenue,
		notify:      notify,
	}
}

func (s *fulfillmentService) Process(ctx context.Context, transactionID string) (*ProcessResult, error) {
	txn, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
		}
		return nil, err
	}
	listing, err := s.listingRepo.FindByID(ctx, txn.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: listing %s", ErrNotFound, txn.ListingID)
		}
		return nil, err
	}

	// Benign skip: not a sourced listing. No state is touched.
	if !listing.Source.IsArbitrage {
		return &ProcessResult{
			TransactionID: transactionID,
			Outcome:       OutcomeSkipped,
			Reason:        "not_arbitrage",
		}, nil
	}

	platform := source.ParsePlatform(listing.Source.SourcePlatform)

	// Claim before any external call: a crash mid-call leaves the
	// transaction inspectable in processing/purchasing, never silently
	// lost. The guard also serializes concurrent calls for this id and
	// makes duplicate triggers no-ops.
	rows, err := s.txRepo.ClaimForProcessing(ctx, transactionID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := s.txRepo.FindByID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		return &ProcessResult{
			TransactionID: transactionID,
			Outcome:       OutcomeAlreadyHandled,
			Platform:      platform,
			Reason:        string(current.Status),
		}, nil
	}

	if listing.NegativeMargin() {
		metrics.NegativeMarginTotal.Inc()
		log.Printf("[fulfill] txn=%s stage=dispatch warn=negative_margin listing=%s source_price=%s price=%s",
			transactionID, listing.ID, listing.Source.SourcePrice, listing.PriceUSD)
	}

	log.Printf("[fulfill] txn=%s stage=dispatch platform=%s buyer_paid=%s source_cost=%s",
		transactionID, platform, txn.AmountUSD, listing.Source.SourcePrice)

	start := time.Now()
	result, err := s.executeStrategy(ctx, platform, txn, listing)
	metrics.ProcessingDuration.WithLabelValues(string(platform)).Observe(time.Since(start).Seconds())
	if err != nil {
		return s.handleFailure(ctx, txn, platform, err)
	}

	if result.RequiresManual {
		if err := s.txRepo.MarkPendingManual(ctx, transactionID); err != nil {
			return nil, err
		}
		metrics.FulfillmentsTotal.WithLabelValues(string(platform), string(OutcomePendingManual)).Inc()
		metrics.ManualQueueDepth.Inc()
		log.Printf("[fulfill] txn=%s stage=queued_manual platform=%s", transactionID, platform)
		return &ProcessResult{
			TransactionID:  transactionID,
			Outcome:        OutcomePendingManual,
			Platform:       platform,
			RequiresManual: true,
		}, nil
	}

	deliveryJSON, err := json.Marshal(result.Delivery)
	if err != nil {
		return s.handleFailure(ctx, txn, platform, fmt.Errorf("encode delivery: %w", err))
	}
	rows, err = s.txRepo.CompleteDelivery(ctx, transactionID, deliveryJSON, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: transaction %s left processing mid-flight", ErrNotAwaitingDelivery, transactionID)
	}

	s.settleDelivery(ctx, txn, model.LogStatusSuccess, deliveryJSON)
	metrics.FulfillmentsTotal.WithLabelValues(string(platform), string(OutcomeDelivered)).Inc()
	log.Printf("[fulfill] txn=%s stage=delivered platform=%s", transactionID, platform)

	return &ProcessResult{
		TransactionID: transactionID,
		Outcome:       OutcomeDelivered,
		Platform:      platform,
	}, nil
}

// executeStrategy runs the platform strategy with the state-machine boundary
// guarantee: a panicking strategy is converted into an error and sent down
// the failure path instead of leaving the transaction ambiguous.
func (s *fulfillmentService) executeStrategy(ctx context.Context, platform source.Platform, txn *model.Transaction, listing *model.Listing) (result *source.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return s.dispatcher.StrategyFor(platform).Execute(ctx, txn, listing)
}

// handleFailure drives the compensating path: mark failed, attempt exactly
// one refund when a payment was captured, and append the failure audit row.
func (s *fulfillmentService) handleFailure(ctx context.Context, txn *model.Transaction, platform source.Platform, cause error) (*ProcessResult, error) {
	now := time.Now().UTC()
	log.Printf("[fulfill] txn=%s stage=failed platform=%s err=%v", txn.ID, platform, cause)

	if err := s.txRepo.MarkFailed(ctx, txn.ID, cause.Error(), now); err != nil {
		return nil, err
	}

	res := &ProcessResult{
		TransactionID: txn.ID,
		Outcome:       OutcomeFailed,
		Platform:      platform,
		Reason:        cause.Error(),
	}

	if txn.PaymentIntentID != "" && s.payments != nil {
		refund, refundErr := s.payments.CreateRefund(ctx, txn.PaymentIntentID, "failed_fulfillment")
		if refundErr != nil {
			// Not retried: flagged for operator follow-up, transaction
			// stays failed.
			metrics.RefundsTotal.WithLabelValues("failed").Inc()
			log.Printf("[fulfill] txn=%s stage=refund_failed err=%v", txn.ID, refundErr)
			if err := s.txRepo.RecordRefundError(ctx, txn.ID, refundErr.Error()); err != nil {
				log.Printf("[fulfill] txn=%s stage=refund_error_record err=%v", txn.ID, err)
			}
		} else {
			metrics.RefundsTotal.WithLabelValues("succeeded").Inc()
			if err := s.txRepo.MarkRefunded(ctx, txn.ID, refund.ID, time.Now().UTC()); err != nil {
				return nil, err
			}
			res.Outcome = OutcomeRefunded
			res.Refunded = true
			log.Printf("[fulfill] txn=%s stage=refunded refund=%s", txn.ID, refund.ID)
			if s.notify != nil {
				s.notify.Notify(ctx, txn.BuyerAgentID, model.NotificationTypeRefunded,
					"Purchase refunded",
					"Your purchase could not be fulfilled and has been refunded in full.",
					txn.ID)
			}
		}
	}

	if res.Outcome == OutcomeFailed && s.notify != nil {
		s.notify.Notify(ctx, txn.BuyerAgentID, model.NotificationTypeFailed,
			"Purchase failed",
			"Your purchase could not be fulfilled. Our team is looking into it.",
			txn.ID)
	}

	details, _ := json.Marshal(map[string]any{
		"error":    cause.Error(),
		"refunded": res.Refunded,
	})
	if err := s.logRepo.Append(ctx, txn.ID, model.LogStatusFailed, details); err != nil {
		log.Printf("[fulfill] txn=%s stage=log_append err=%v", txn.ID, err)
	}
	metrics.FulfillmentsTotal.WithLabelValues(string(platform), string(res.Outcome)).Inc()

	return res, nil
}

// settleDelivery performs the bookkeeping shared by all delivery paths:
// audit log, seller payout credit, buyer notification. Best-effort pieces
// log instead of failing a transaction that is already completed.
func (s *fulfillmentService) settleDelivery(ctx context.Context, txn *model.Transaction, logStatus string, delivery datatypes.JSON) {
	if err := s.logRepo.Append(ctx, txn.ID, logStatus, delivery); err != nil {
		log.Printf("[fulfill] txn=%s stage=log_append err=%v", txn.ID, err)
	}
	if s.revenue != nil && txn.SellerPayoutUSD.IsPositive() {
		if err := s.revenue.Credit(ctx, txn.SellerAgentID, txn.SellerPayoutUSD); err != nil {
			log.Printf("[fulfill] txn=%s stage=payout_credit err=%v", txn.ID, err)
		}
	}
	if s.notify != nil {
		s.notify.Notify(ctx, txn.BuyerAgentID, model.NotificationTypeDelivered,
			"Purchase delivered",
			"Your purchase has been fulfilled. The delivery is available on your transaction.",
			txn.ID)
	}
}

func (s *fulfillmentService) CompleteManualTask(ctx context.Context, transactionID string, delivery map[string]any) error {
	txn, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
		}
		return err
	}

	task, err := s.queueRepo.FindPendingByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %s", ErrTaskNotFound, transactionID)
		}
		return err
	}

	deliveryJSON, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	now := time.Now().UTC()
	rows, err := s.queueRepo.Complete(ctx, transactionID, deliveryJSON, now)
	if err != nil {
		return err
	}
	if rows == 0 {
		// Another operator got there first.
		return fmt.Errorf("%w: transaction %s", ErrTaskNotFound, transactionID)
	}
	metrics.ManualQueueDepth.Dec()

	rows, err = s.txRepo.CompleteDelivery(ctx, transactionID, deliveryJSON, now)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: transaction %s", ErrNotAwaitingDelivery, transactionID)
	}

	s.settleDelivery(ctx, txn, model.LogStatusManualComplete, deliveryJSON)
	metrics.FulfillmentsTotal.WithLabelValues(task.SourcePlatform, string(OutcomeDelivered)).Inc()
	log.Printf("[fulfill] txn=%s stage=manual_complete platform=%s", transactionID, task.SourcePlatform)
	return nil
}

func (s *fulfillmentService) HandleSourceComplete(ctx context.Context, transactionID, platform string, resultData map[string]any) error {
	txn, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
		}
		return err
	}

	deliveryJSON, err := json.Marshal(map[string]any{
		"type":     "webhook_delivery",
		"platform": platform,
		"data":     resultData,
	})
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	now := time.Now().UTC()
	rows, err := s.txRepo.CompleteDelivery(ctx, transactionID, deliveryJSON, now)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: transaction %s", ErrNotAwaitingDelivery, transactionID)
	}

	// The source finishing the work supersedes any queued manual task.
	if taskRows, err := s.queueRepo.Complete(ctx, transactionID, deliveryJSON, now); err != nil {
		log.Printf("[fulfill] txn=%s stage=webhook_task_complete err=%v", transactionID, err)
	} else if taskRows > 0 {
		metrics.ManualQueueDepth.Dec()
	}

	s.settleDelivery(ctx, txn, model.LogStatusSuccess, deliveryJSON)
	metrics.FulfillmentsTotal.WithLabelValues(platform, string(OutcomeDelivered)).Inc()
	log.Printf("[fulfill] txn=%s stage=webhook_delivered platform=%s", transactionID, platform)
	return nil
}

func (s *fulfillmentService) Status(ctx context.Context, transactionID string) (*FulfillmentStatusView, error) {
	txn, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
		}
		return nil, err
	}
	f := txn.Fulfillment
	return &FulfillmentStatusView{
		TransactionID:     txn.ID,
		TransactionStatus: string(txn.Status),
		FulfillmentStatus: string(f.Status),
		StartedAt:         f.StartedAt,
		CompletedAt:       f.CompletedAt,
		RequiresManual:    f.Status == model.FulfillmentStatusPendingManual,
		Delivery:          json.RawMessage(f.Delivery),
		Error:             f.LastError,
		RefundID:          f.RefundID,
		RefundError:       f.RefundError,
	}, nil
}

func (s *fulfillmentService) ManualQueue(ctx context.Context) ([]model.ManualFulfillmentTask, error) {
	tasks, err := s.queueRepo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ManualQueueDepth.Set(float64(len(tasks)))
	return tasks, nil
}

func (s *fulfillmentService) Stats(ctx context.Context) (*FulfillmentStats, error) {
	delivered, err := s.txRepo.ListDelivered(ctx)
	if err != nil {
		return nil, err
	}
	stats := &FulfillmentStats{
		TotalFulfilled: int64(len(delivered)),
		TotalRevenue:   decimal.Zero,
		ByPlatform:     map[string]int64{},
	}
	for _, t := range delivered {
		stats.TotalRevenue = stats.TotalRevenue.Add(t.AmountUSD)
		platform := "unknown"
		if listing, err := s.listingRepo.FindByID(ctx, t.ListingID); err == nil && listing.Source.SourcePlatform != "" {
			platform = listing.Source.SourcePlatform
		}
		stats.ByPlatform[platform]++
	}
	if pending, err := s.queueRepo.ListPending(ctx); err == nil {
		stats.PendingManual = len(pending)
	}
	if n, err := s.logRepo.CountByStatus(ctx, model.LogStatusManualComplete); err == nil {
		stats.ManualCompleted = n
	}
	return stats, nil
}
