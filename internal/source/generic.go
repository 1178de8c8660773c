package source

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
)

// genericStrategy handles unknown platforms: it attempts a plain REST call
// against the listing's endpoint and, on any failure at all, degrades to the
// manual queue instead of failing the transaction.
type genericStrategy struct {
	client *http.Client
	manual *manualStrategy
}

func (s *genericStrategy) Execute(ctx context.Context, txn *model.Transaction, listing *model.Listing) (*Result, error) {
	endpoint := listing.Source.APIEndpoint
	if endpoint == "" {
		endpoint = listing.Source.SourceURL
	}
	if endpoint == "" {
		return s.manual.Execute(ctx, txn, listing)
	}

	result, err := s.tryCall(ctx, txn, endpoint)
	if err != nil {
		log.Printf("[fulfill] txn=%s stage=generic_degrade endpoint=%s err=%v", txn.ID, endpoint, err)
		return s.manual.Execute(ctx, txn, listing)
	}
	return result, nil
}

func (s *genericStrategy) tryCall(ctx context.Context, txn *model.Transaction, endpoint string) (*Result, error) {
	body, err := json.Marshal(txn.InputData)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrUnavailable
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	return &Result{
		Platform: PlatformGeneric,
		Delivery: map[string]any{
			"type":         "api_result",
			"data":         data,
			"delivered_at": now().Format(time.RFC3339),
		},
	}, nil
}
