package source

import (
	"strings"
	"text/template"

	"github.com/sibysi/agent-directory/internal/model"
)

var instructionsTmpl = template.Must(template.New("manual").Parse(strings.TrimSpace(`
MANUAL FULFILLMENT REQUIRED

Platform: {{.Platform}}
Service: {{.Service}}
URL: {{.URL}}
Budget: ${{.Budget}}

STEPS:
1. Visit {{.URL}}
2. Purchase the service (budget: ${{.Budget}})
3. Provide the buyer's requirements (see buyer input)
4. Wait for delivery from the source seller
5. Forward the results to the buyer via the directory
6. Mark the transaction complete

DO NOT exceed the budget of ${{.Budget}}
`)))

// RenderInstructions produces the human-readable operator instructions for a
// manual fulfillment task. Wording aside, it always names the platform, the
// target URL, and the dollar budget ceiling.
func RenderInstructions(listing *model.Listing) string {
	var b strings.Builder
	_ = instructionsTmpl.Execute(&b, struct {
		Platform string
		Service  string
		URL      string
		Budget   string
	}{
		Platform: listing.Source.SourcePlatform,
		Service:  listing.Title,
		URL:      listing.Source.SourceURL,
		Budget:   listing.Source.SourcePrice.StringFixed(2),
	})
	return b.String()
}
