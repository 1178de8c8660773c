package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
)

// gitHubStrategy delivers repository access. No network call: the delivery
// is synthesized from listing metadata and succeeds unless the source URL
// is missing.
type gitHubStrategy struct{}

func (s *gitHubStrategy) Execute(ctx context.Context, txn *model.Transaction, listing *model.Listing) (*Result, error) {
	repoURL := listing.Source.SourceURL
	if repoURL == "" {
		return nil, fmt.Errorf("%w: github listing %s has no source url", ErrConfigurationMissing, listing.ID)
	}

	instructions := listing.Source.UsageInstructions
	if instructions == "" {
		instructions = "See README.md"
	}

	return &Result{
		Platform: PlatformGitHub,
		Delivery: map[string]any{
			"type":           "repository_access",
			"repository_url": repoURL,
			"clone_command":  "git clone " + repoURL,
			"instructions":   instructions,
			"delivered_at":   now().Format(time.RFC3339),
		},
	}, nil
}
