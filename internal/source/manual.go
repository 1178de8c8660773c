package source

import (
	"context"
	"fmt"

	"github.com/sibysi/agent-directory/internal/model"
)

// manualStrategy never touches the network: it queues a task for a human
// operator and reports queued-success. Used for Fiverr, Upwork, and as the
// safety net when automated paths fail.
type manualStrategy struct {
	queue TaskEnqueuer
}

func (s *manualStrategy) Execute(ctx context.Context, txn *model.Transaction, listing *model.Listing) (*Result, error) {
	task := &model.ManualFulfillmentTask{
		TransactionID:  txn.ID,
		BuyerAgentID:   txn.BuyerAgentID,
		ListingID:      listing.ID,
		ServiceName:    listing.Title,
		SourcePlatform: listing.Source.SourcePlatform,
		SourceURL:      listing.Source.SourceURL,
		SourcePrice:    listing.Source.SourcePrice,
		BuyerPaid:      txn.AmountUSD,
		BuyerInput:     txn.InputData,
		Instructions:   RenderInstructions(listing),
		Status:         model.ManualTaskStatusPending,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue manual task: %w", err)
	}

	return &Result{
		Platform:       ParsePlatform(listing.Source.SourcePlatform),
		RequiresManual: true,
	}, nil
}
