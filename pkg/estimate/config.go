package estimate

import (
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattwise/wattwise/pkg/tdu"
)

// Configured sets up the orchestrator based on flags.
func Configured(store BucketStore, agg Aggregator, tariffs tdu.Provider) *Orchestrator {
	backfillTimeout := lflag.Duration("backfill-timeout", DefaultBackfillTimeout, "Max duration of a single bucket backfill attempt")
	cacheTTL := lflag.Duration("estimate-cache-ttl", 5*time.Minute, "How long estimate responses are memoized. 0 disables the cache.")
	cacheSize := lflag.Int("estimate-cache-size", 1024, "Max number of memoized estimate responses")

	o := New(store, Config{Aggregation: agg, Tariffs: tariffs})

	lflag.Do(func() {
		if *backfillTimeout > 0 {
			o.cfg.BackfillTimeout = *backfillTimeout
		}
		if *cacheTTL > 0 {
			o.cfg.Cache = NewCache(*cacheTTL, *cacheSize)
		}
	})

	return o
}
