// Package buckets resolves heterogeneous historical monthly-usage aggregate
// keys into the canonical set the cost engine requires. Several ingestion
// generations wrote the same semantic bucket under different spellings; this
// package treats those spellings as aliases of one closed canonical key and
// fails closed on any ambiguity or cross-month inconsistency.
package buckets

import (
	"strings"
)

// Key is a canonical monthly usage bucket identifier, encoding
// "kwh.m.<dayType>.<window>". dayType is all, weekday, or weekend; window is
// "total" (or its legacy "0000-2400" spelling) or an explicit hour range like
// "0700-2000" or "2100-0700".
type Key string

const (
	// KeyAllTotal is total kWh for the month across all days and hours.
	KeyAllTotal Key = "kwh.m.all.total"

	// KeyWeekdayTotal and KeyWeekendTotal split the month by day type.
	KeyWeekdayTotal Key = "kwh.m.weekday.total"
	KeyWeekendTotal Key = "kwh.m.weekend.total"

	// KeyAllDay and KeyAllNight are the windows of the common 7am-8pm
	// day/night split. Plans with other windows get keys via WindowKey.
	KeyAllDay   Key = "kwh.m.all.0700-2000"
	KeyAllNight Key = "kwh.m.all.2000-0700"
)

// WindowKey builds the all-days bucket key for an explicit "HH:MM" wall-clock
// window, e.g. ("21:00", "07:00") -> "kwh.m.all.2100-0700".
func WindowKey(start, end string) Key {
	return Key("kwh.m.all." + compactHHMM(start) + "-" + compactHHMM(end))
}

func compactHHMM(s string) string {
	return strings.ReplaceAll(s, ":", "")
}

// Aliases returns every spelling historical rows may carry for a key, the
// requested spelling first. Older ingestion paths upper-cased the day type
// and wrote month totals as an explicit 0000-2400 range, so both variants of
// each are generated. Keys that don't parse resolve only via themselves.
func Aliases(k Key) []string {
	parts := strings.Split(string(k), ".")
	if len(parts) != 4 || parts[0] != "kwh" || parts[1] != "m" {
		return []string{string(k)}
	}
	dayType, window := parts[2], parts[3]

	windows := []string{window}
	switch window {
	case "total":
		windows = append(windows, "0000-2400")
	case "0000-2400":
		windows = append(windows, "total")
	}

	dayTypes := []string{dayType}
	if upper := strings.ToUpper(dayType); upper != dayType {
		dayTypes = append(dayTypes, upper)
	}
	if lower := strings.ToLower(dayType); lower != dayType {
		dayTypes = append(dayTypes, lower)
	}

	var out []string
	seen := make(map[string]bool)
	for _, dt := range dayTypes {
		for _, w := range windows {
			spelling := "kwh.m." + dt + "." + w
			if !seen[spelling] {
				seen[spelling] = true
				out = append(out, spelling)
			}
		}
	}
	return out
}
