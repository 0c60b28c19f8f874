package listing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	memoHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_listing_memo_hits_total",
		Help: "Filter results served from the memo.",
	})
	memoMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_listing_memo_misses_total",
		Help: "Filter results recomputed.",
	})
)
