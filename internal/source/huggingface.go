package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
)

// huggingFaceStrategy calls a Hugging Face Space's predict endpoint.
// Space inference can be slow to cold-start, hence the longer client timeout.
type huggingFaceStrategy struct {
	token  string
	client *http.Client
}

// PredictURL rewrites a Space page URL to its predict endpoint:
//
//	https://huggingface.co/spaces/<user>/<name>
//	→ https://<user>-<name>.hf.space/api/predict
//
// URLs that are not Space page URLs are returned unchanged so listings can
// point at a predict endpoint directly.
func PredictURL(spaceURL string) string {
	const marker = "/spaces/"
	idx := strings.Index(spaceURL, marker)
	if idx < 0 {
		return spaceURL
	}
	parts := strings.Split(spaceURL[idx+len(marker):], "/")
	user := parts[0]
	name := user
	if len(parts) > 1 && parts[1] != "" {
		name = parts[1]
	}
	return fmt.Sprintf("https://%s-%s.hf.space/api/predict", user, name)
}

func (s *huggingFaceStrategy) Execute(ctx context.Context, txn *model.Transaction, listing *model.Listing) (*Result, error) {
	if listing.Source.SourceURL == "" {
		return nil, fmt.Errorf("%w: huggingface listing %s has no source url", ErrConfigurationMissing, listing.ID)
	}
	apiURL := PredictURL(listing.Source.SourceURL)

	// Spaces expect the input wrapped in a "data" array.
	payload, err := json.Marshal(map[string]any{"data": []any{map[string]any(txn.InputData)}})
	if err != nil {
		return nil, fmt.Errorf("huggingface payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: huggingface call", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: huggingface: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: huggingface status %d", ErrUnavailable, resp.StatusCode)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: huggingface response decode: %v", ErrUnavailable, err)
	}

	return &Result{
		Platform: PlatformHuggingFace,
		Delivery: map[string]any{
			"type":         "api_result",
			"data":         data,
			"delivered_at": now().Format(time.RFC3339),
		},
	}, nil
}
