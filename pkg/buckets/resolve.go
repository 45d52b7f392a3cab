package buckets

import (
	"math"
)

// agreementEpsilon is the maximum absolute difference under which two alias
// rows for the same month are considered the same value.
const agreementEpsilon = 1e-6

// Resolution is a single month's resolved value for one canonical key.
type Resolution struct {
	// DBKeyUsed is the stored spelling the value came from.
	DBKeyUsed string  `json:"dbKeyUsed"`
	KWH       float64 `json:"kwh"`
}

// ResolveMonth resolves one canonical key against a single month's bucket
// map. It returns nil when the key is missing or when aliases disagree:
// silently picking one of two disagreeing historical values could misstate a
// bill, so ambiguity is treated the same as absence.
func ResolveMonth(monthBuckets map[string]float64, canonical Key) *Resolution {
	var found []Resolution
	for _, alias := range Aliases(canonical) {
		v, ok := monthBuckets[alias]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		found = append(found, Resolution{DBKeyUsed: alias, KWH: v})
	}
	if len(found) == 0 {
		return nil
	}

	// every present alias must agree within epsilon
	for i := 1; i < len(found); i++ {
		if math.Abs(found[i].KWH-found[0].KWH) > agreementEpsilon {
			return nil
		}
	}

	// Aliases iterates canonical spelling first, so found[0] is already the
	// preferred key when present.
	r := found[0]
	return &r
}

// WindowResolution is the outcome of resolving a set of canonical keys across
// a multi-month window.
type WindowResolution struct {
	// ByKey maps canonical key -> yearMonth -> resolution for every month
	// that resolved.
	ByKey map[Key]map[string]Resolution

	// Missing maps canonical key -> months with no usable value. A key
	// invalidated for inconsistency lists every month here.
	Missing map[Key][]string

	// Inconsistent lists keys whose resolution was invalidated for the whole
	// window because different months resolved via different spellings.
	Inconsistent []Key
}

// Complete reports whether every required key resolved for every month.
func (w WindowResolution) Complete() bool {
	for _, months := range w.Missing {
		if len(months) > 0 {
			return false
		}
	}
	return true
}

// MissingKeys returns the canonical keys that are missing for at least one
// month, in the order they were required.
func (w WindowResolution) MissingKeys(required []Key) []string {
	var out []string
	for _, k := range required {
		if len(w.Missing[k]) > 0 {
			out = append(out, string(k))
		}
	}
	return out
}

// ResolveWindow resolves the required canonical keys for every month in the
// window. Within one window a canonical key must resolve via the same stored
// spelling in every month: mixing storage generations inside one estimate
// silently changes semantics per month, so any mix invalidates that key for
// the entire window, not just the offending month.
func ResolveWindow(months []string, data map[string]map[string]float64, required []Key) WindowResolution {
	out := WindowResolution{
		ByKey:   make(map[Key]map[string]Resolution, len(required)),
		Missing: make(map[Key][]string),
	}

	for _, key := range required {
		resolved := make(map[string]Resolution, len(months))
		var missing []string
		spellings := make(map[string]bool)

		for _, ym := range months {
			r := ResolveMonth(data[ym], key)
			if r == nil {
				missing = append(missing, ym)
				continue
			}
			resolved[ym] = *r
			spellings[r.DBKeyUsed] = true
		}

		if len(spellings) > 1 {
			out.Inconsistent = append(out.Inconsistent, key)
			out.Missing[key] = append([]string(nil), months...)
			continue
		}

		out.ByKey[key] = resolved
		out.Missing[key] = missing
	}

	return out
}
