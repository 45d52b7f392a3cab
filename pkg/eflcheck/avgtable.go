// Package eflcheck validates an extracted rate model against the plan's own
// disclosed average-price table. It is the accept-or-quarantine gate in front
// of anything money-affecting: candidate rules that fail here route to manual
// review instead of billing. Nothing in this package panics or returns an
// error for malformed input; every failure mode degrades to SKIP or FAIL with
// a reason.
package eflcheck

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wattwise/wattwise/pkg/types"
)

// requiredUsageLevels are the three usage levels every disclosure's
// average-price table must present.
var requiredUsageLevels = []float64{500, 1000, 2000}

var (
	usageLabelRe = regexp.MustCompile(`(?i)average\s+monthly\s+use`)
	priceLabelRe = regexp.MustCompile(`(?i)average\s+price`)

	usageLevelRe = regexp.MustCompile(`\b(500|1,?000|2,?000)\b`)

	// centsTokenRe matches a price with a cents marker. PDF extractions
	// garble "¢" in several ways (raw, double-encoded UTF-8, HTML entity) and
	// some documents just write "c" or "cents".
	centsTokenRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*(?:¢|Â¢|&cent;|cents?\b|c\b)`)
)

const snippetMaxLen = 600

// extractAvgTable locates the disclosed average-price table and parses the
// three usage levels with their cents-per-kWh values. found is false when the
// labels, the three usage levels, or at least three price tokens are absent.
func extractAvgTable(text string) (rows []types.EflAvgPricePoint, snippet string, found bool) {
	lines := strings.Split(text, "\n")

	usageIdx, priceIdx := -1, -1
	for i, line := range lines {
		if usageIdx < 0 && usageLabelRe.MatchString(line) {
			usageIdx = i
		}
		if priceIdx < 0 && priceLabelRe.MatchString(line) {
			priceIdx = i
		}
	}
	if usageIdx < 0 || priceIdx < 0 {
		return nil, "", false
	}

	lo := usageIdx
	if priceIdx < lo {
		lo = priceIdx
	}
	hi := usageIdx
	if priceIdx > hi {
		hi = priceIdx
	}
	// a few lines of context below the labels for wrapped table cells
	hi += 4
	if hi > len(lines) {
		hi = len(lines)
	}
	region := lines[lo:hi]
	snippet = strings.Join(region, "\n")
	if len(snippet) > snippetMaxLen {
		snippet = snippet[:snippetMaxLen]
	}

	levels := make(map[float64]bool)
	for _, line := range region {
		for _, m := range usageLevelRe.FindAllStringSubmatch(line, -1) {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				levels[v] = true
			}
		}
	}
	for _, lvl := range requiredUsageLevels {
		if !levels[lvl] {
			return nil, snippet, false
		}
	}

	// price tokens are read starting from the "Average price" label line
	var prices []float64
	for i := priceIdx; i < hi; i++ {
		for _, m := range centsTokenRe.FindAllStringSubmatch(lines[i], -1) {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				prices = append(prices, v)
			}
		}
	}
	if len(prices) < len(requiredUsageLevels) {
		return nil, snippet, false
	}

	for i, lvl := range requiredUsageLevels {
		rows = append(rows, types.EflAvgPricePoint{
			UsageKWH:          lvl,
			EflAvgCentsPerKWH: prices[i],
		})
	}
	return rows, snippet, true
}

// nightAssumption is a disclosed consumption assumption underlying the
// average-price table, e.g. "estimated 35% consumption during night hours of
// 9 PM to 7 AM".
type nightAssumption struct {
	Percent   float64
	StartHour int
	EndHour   int
	Statement string
}

var (
	// the percentage and the word "night" may be split across wrapped lines,
	// so the gap may contain newlines but not a sentence boundary
	nightPctRe = regexp.MustCompile(`(?i)estimat\w*\s+(\d{1,2}(?:\.\d+)?)\s*%[^.]*?night`)

	nightWindowRe = regexp.MustCompile(`(?i)night\s+hours?\s*(?:of|from|are|between|:)?\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:to|through|until|and|[-–])\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// detectNightAssumption finds an assumption-based table note and parses the
// stated window and percentage so the synthetic profile can mirror the same
// assumption instead of guessing. Returns nil when no usable assumption is
// stated.
func detectNightAssumption(text string, plan types.PlanRules) *nightAssumption {
	pm := nightPctRe.FindStringSubmatch(text)
	if pm == nil {
		return nil
	}
	pct, err := strconv.ParseFloat(pm[1], 64)
	if err != nil || pct <= 0 || pct >= 100 {
		return nil
	}

	a := &nightAssumption{Percent: pct, Statement: strings.TrimSpace(pm[0])}

	if wm := nightWindowRe.FindStringSubmatch(text); wm != nil {
		a.StartHour = clockTo24(wm[1], wm[3])
		a.EndHour = clockTo24(wm[4], wm[6])
		return a
	}

	// no stated window: fall back to the plan's own free period when it has
	// one, otherwise the assumption is unusable
	for _, p := range plan.TOUPeriods {
		if p.Free {
			a.StartHour = int(p.StartHour)
			a.EndHour = int(p.EndHour)
			return a
		}
	}
	return nil
}

func clockTo24(hourStr, meridiem string) int {
	h, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0
	}
	switch strings.ToLower(meridiem) {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h < 0 || h > 23 {
		h = 0
	}
	return h
}
