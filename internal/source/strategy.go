package source

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
)

var (
	// ErrConfigurationMissing means a credential or endpoint the strategy
	// needs is absent. It fails the single transaction, never the process.
	ErrConfigurationMissing = errors.New("source: configuration missing")

	// ErrTimeout is reported when the source platform did not answer
	// within the strategy's deadline.
	ErrTimeout = errors.New("source: call timed out")

	// ErrUnavailable covers non-2xx responses and transport failures.
	ErrUnavailable = errors.New("source: unavailable")
)

// Result is a successful strategy outcome. RequiresManual true means
// "successfully queued for a human", not "delivered": the transaction stays
// open in pending_manual until an operator completes the task.
type Result struct {
	Platform       Platform
	RequiresManual bool
	Delivery       map[string]any
}

// Strategy executes the source-side purchase for one transaction.
// A nil error with a Result is success; any error sends the transaction
// down the failure/refund path.
type Strategy interface {
	Execute(ctx context.Context, txn *model.Transaction, listing *model.Listing) (*Result, error)
}

// TaskEnqueuer persists manual fulfillment tasks. Implemented by the manual
// task repository; strategies never touch the queue store any other way.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *model.ManualFulfillmentTask) error
}

// Config carries the per-platform credentials strategies need.
type Config struct {
	RapidAPIKey      string
	HuggingFaceToken string
}

// Dispatcher owns one strategy per platform variant. The association is
// static: each Platform value carries exactly one behavior.
type Dispatcher struct {
	rapidAPI    *rapidAPIStrategy
	huggingFace *huggingFaceStrategy
	gitHub      *gitHubStrategy
	manual      *manualStrategy
	generic     *genericStrategy
}

func NewDispatcher(cfg Config, queue TaskEnqueuer) *Dispatcher {
	manual := &manualStrategy{queue: queue}
	return &Dispatcher{
		rapidAPI:    &rapidAPIStrategy{apiKey: cfg.RapidAPIKey, client: &http.Client{Timeout: 30 * time.Second}},
		huggingFace: &huggingFaceStrategy{token: cfg.HuggingFaceToken, client: &http.Client{Timeout: 60 * time.Second}},
		gitHub:      &gitHubStrategy{},
		manual:      manual,
		generic:     &genericStrategy{client: &http.Client{Timeout: 30 * time.Second}, manual: manual},
	}
}

// StrategyFor selects the execution strategy for a platform.
func (d *Dispatcher) StrategyFor(p Platform) Strategy {
	switch p {
	case PlatformRapidAPI:
		return d.rapidAPI
	case PlatformHuggingFace:
		return d.huggingFace
	case PlatformGitHub:
		return d.gitHub
	case PlatformFiverr, PlatformUpwork:
		return d.manual
	default:
		return d.generic
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func now() time.Time {
	return time.Now().UTC()
}
