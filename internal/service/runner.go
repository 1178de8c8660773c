package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrRunnerBusy means the fulfillment backlog is full and the trigger
// should be retried later.
var ErrRunnerBusy = errors.New("fulfillment runner backlog full")

// processTimeout bounds one fulfillment run end to end. Strategies carry
// their own shorter HTTP timeouts; this is the outer ceiling.
const processTimeout = 5 * time.Minute

// Runner executes fulfillment runs in the background so the triggering
// request can return immediately. Transactions are independent units: there
// is no cross-transaction ordering, and same-id races are resolved by the
// state machine's claim guard, not here.
type Runner struct {
	svc     FulfillmentService
	jobs    chan string
	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

func NewRunner(svc FulfillmentService, workers, backlog int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if backlog <= 0 {
		backlog = 256
	}
	r := &Runner{
		svc:     svc,
		jobs:    make(chan string, backlog),
		stopped: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

func (r *Runner) work() {
	defer r.wg.Done()
	for id := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		if _, err := r.svc.Process(ctx, id); err != nil {
			log.Printf("[fulfill] txn=%s stage=runner err=%v", id, err)
		}
		cancel()
	}
}

// Enqueue schedules a fulfillment run and returns immediately.
func (r *Runner) Enqueue(transactionID string) error {
	select {
	case <-r.stopped:
		return errors.New("fulfillment runner stopped")
	default:
	}
	select {
	case r.jobs <- transactionID:
		return nil
	default:
		return ErrRunnerBusy
	}
}

// Stop drains queued work and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.once.Do(func() {
		close(r.stopped)
		close(r.jobs)
	})
	r.wg.Wait()
}
