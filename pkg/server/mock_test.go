package server

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wattwise/wattwise/pkg/extract"
	"github.com/wattwise/wattwise/pkg/types"
)

type mockExtractor struct {
	mock.Mock
}

var _ extract.Extractor = (*mockExtractor)(nil)

func (m *mockExtractor) ExtractPlanRules(ctx context.Context, eflText string, fingerprint types.PlanFingerprint) (extract.Candidate, error) {
	args := m.Called(ctx, eflText, fingerprint)
	if len(args) > 0 {
		c := args.Get(0).(extract.Candidate)
		c.Rules.Fingerprint = fingerprint
		return c, args.Error(1)
	}
	return extract.Candidate{}, nil
}
