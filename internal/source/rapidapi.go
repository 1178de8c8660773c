package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
)

// rapidAPIStrategy calls the listing's RapidAPI endpoint directly with the
// buyer's input and returns the API response as the delivery.
type rapidAPIStrategy struct {
	apiKey string
	client *http.Client
}

func (s *rapidAPIStrategy) Execute(ctx context.Context, txn *model.Transaction, listing *model.Listing) (*Result, error) {
	endpoint := listing.Source.APIEndpoint
	if endpoint == "" {
		return nil, fmt.Errorf("%w: rapidapi listing %s has no api endpoint", ErrConfigurationMissing, listing.ID)
	}
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: RAPIDAPI_KEY not set", ErrConfigurationMissing)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad api endpoint %q: %v", ErrConfigurationMissing, endpoint, err)
	}

	method := strings.ToUpper(listing.Source.APIMethod)
	if method == "" {
		method = http.MethodPost
	}

	var req *http.Request
	if method == http.MethodGet {
		q := u.Query()
		for k, v := range txn.InputData {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		var body []byte
		body, err = json.Marshal(txn.InputData)
		if err == nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("rapidapi request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", s.apiKey)
	req.Header.Set("X-RapidAPI-Host", u.Host)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: rapidapi call", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: rapidapi: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: rapidapi status %d: %s", ErrUnavailable, resp.StatusCode, detail)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: rapidapi response decode: %v", ErrUnavailable, err)
	}

	return &Result{
		Platform: PlatformRapidAPI,
		Delivery: map[string]any{
			"type":         "api_result",
			"data":         data,
			"delivered_at": now().Format(time.RFC3339),
		},
	}, nil
}
