package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattwise/wattwise/pkg/common"
	"github.com/wattwise/wattwise/pkg/types"
	"google.golang.org/genai"
)

const extractSystemPrompt = `You read retail electricity plan disclosure documents (Electricity Facts Labels) and output the plan's pricing rules as JSON. Respond with a single JSON object:

{
  "rules": {
    "planType": "flat" | "time-of-use" | "free-nights" | "free-weekends" | "solar-buyback" | "other",
    "defaultRateCentsPerKWH": number or null,
    "baseChargePerMonthCents": number or null,
    "timeOfUsePeriods": [
      {"label": string, "startHour": number, "endHour": number,
       "days": [0-6 with 0=Sunday], "rateCentsPerKWH": number or null, "free": bool}
    ],
    "solarBuyback": {"enabled": bool, "creditCentsPerKWH": number or null, "matchesImportRate": bool} or null,
    "billCredits": [{"thresholdKWH": number, "creditDollars": number}],
    "minUsageFee": {"floorKWH": number, "feeCents": number} or null
  },
  "confidence": number between 0 and 1,
  "warnings": [string]
}

Rates are in cents per kWh as printed, energy charge only; do not fold delivery charges in. An endHour lower than startHour means the window crosses midnight. Omit timeOfUsePeriods entirely for flat plans. Add a warning for anything you had to guess.`

// Gemini extracts plan rules with the Gemini API.
type Gemini struct {
	model  string
	apiKey string
}

// configuredGemini sets up the Gemini extractor.
// It registers flags for configuration.
func configuredGemini() *Gemini {
	model := lflag.String("gemini-model", "gemini-2.0-flash", "Gemini model for plan extraction")
	apiKey := lflag.String("gemini-api-key", "", "Gemini API key")

	g := &Gemini{}

	lflag.Do(func() {
		g.model = *model
		g.apiKey = *apiKey
	})

	return g
}

// Validate checks if the extractor is properly configured.
func (g *Gemini) Validate() error {
	if g.apiKey == "" {
		return fmt.Errorf("gemini-api-key is required")
	}
	return nil
}

// ExtractPlanRules sends the disclosure text through the model and parses the
// structured reply. The result carries the given fingerprint regardless of
// anything the model emitted.
func (g *Gemini) ExtractPlanRules(ctx context.Context, eflText string, fingerprint types.PlanFingerprint) (Candidate, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     g.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: common.HTTPClient(2 * time.Minute),
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: extractSystemPrompt},
			},
		},
	}

	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(eflText), config)
	if err != nil {
		return Candidate{}, fmt.Errorf("gemini extraction failed: %w", err)
	}

	candidate, err := parseCandidate(result.Text())
	if err != nil {
		return Candidate{}, err
	}
	candidate.Rules.Fingerprint = fingerprint
	return candidate, nil
}
