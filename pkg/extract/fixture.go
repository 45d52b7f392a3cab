package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/wattwise/wattwise/pkg/types"
)

// Fixture is an Extractor backed by canned candidates, keyed by fingerprint
// content hash. Used in tests and by the seed tool.
type Fixture struct {
	mu         sync.Mutex
	candidates map[string]Candidate
}

var _ Extractor = (*Fixture)(nil)

// NewFixture creates an empty fixture extractor.
func NewFixture() *Fixture {
	return &Fixture{candidates: make(map[string]Candidate)}
}

// Add registers a candidate for a fingerprint content hash.
func (f *Fixture) Add(contentHash string, c Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates[contentHash] = c
}

// ExtractPlanRules returns the canned candidate for the fingerprint, stamped
// with it, or an error when none was registered.
func (f *Fixture) ExtractPlanRules(_ context.Context, _ string, fingerprint types.PlanFingerprint) (Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.candidates[fingerprint.ContentHash]
	if !ok {
		return Candidate{}, fmt.Errorf("no fixture candidate for fingerprint %s", fingerprint.ContentHash)
	}
	c.Rules.Fingerprint = fingerprint
	return c, nil
}
