// Package extract is the AI boundary that turns raw disclosure text into
// candidate PlanRules. Candidates are untrusted: nothing from this package
// reaches billing until the disclosure self-consistency check passes it.
package extract

import (
	"context"
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/levenlabs/go-lflag"
	"github.com/wattwise/wattwise/pkg/types"
)

// Candidate is an extractor's best reading of one disclosure.
type Candidate struct {
	Rules      types.PlanRules `json:"rules"`
	Confidence float64         `json:"confidence"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// Extractor produces a candidate from disclosure text. Implementations must
// stamp the given fingerprint onto the returned rules.
type Extractor interface {
	ExtractPlanRules(ctx context.Context, eflText string, fingerprint types.PlanFingerprint) (Candidate, error)
}

// Configured sets up the extractor based on flags.
func Configured() Extractor {
	provider := lflag.String("extractor", "gemini", "Extractor to use (available: gemini)")

	var p struct{ Extractor }

	g := configuredGemini()

	lflag.Do(func() {
		switch *provider {
		case "gemini":
			if err := g.Validate(); err != nil {
				panic(fmt.Sprintf("gemini validation failed: %v", err))
			}
			p.Extractor = g
		default:
			panic(fmt.Sprintf("unknown extractor: %s", *provider))
		}
	})

	return &p
}

// parseCandidate unmarshals model output into a Candidate, repairing the
// JSON first. Models wrap output in markdown fences or emit trailing commas
// often enough that repair is the normal path, not the exception.
func parseCandidate(raw string) (Candidate, error) {
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to repair candidate json: %w", err)
	}

	var c Candidate
	if err := json.Unmarshal([]byte(repaired), &c); err != nil {
		return Candidate{}, fmt.Errorf("failed to unmarshal candidate: %w", err)
	}

	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return c, nil
}
