package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics counts how operations are satisfied
type metrics struct {
	cacheReads      *prometheus.CounterVec // result: hit, miss, error
	networkRequests *prometheus.CounterVec // outcome: ok, http_error, graphql_error, error, canceled
}

// newMetrics creates the counters, registering them with reg (if not nil).  If the counters were
// already registered (eg by another client) the existing ones are shared.  The memory func reports
// the counts of the store's memory layer; if another client registered first its store is reported.
func newMetrics(reg prometheus.Registerer, memory func() (hits, misses uint64)) *metrics {
	if reg != nil && memory != nil {
		register(reg, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "ghgql",
			Name:      "memory_cache_hits_total",
			Help:      "Number of records found in the in-memory cache layer.",
		}, func() float64 {
			hits, _ := memory()
			return float64(hits)
		}))
		register(reg, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "ghgql",
			Name:      "memory_cache_misses_total",
			Help:      "Number of records not found in the in-memory cache layer.",
		}, func() float64 {
			_, misses := memory()
			return float64(misses)
		}))
	}
	return &metrics{
		cacheReads: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghgql",
			Name:      "cache_reads_total",
			Help:      "Number of attempts to read an operation's result from the normalized cache.",
		}, []string{"result"})),
		networkRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghgql",
			Name:      "network_requests_total",
			Help:      "Number of GraphQL requests sent to the server.",
		}, []string{"outcome"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic("BUG registering client metrics: " + err.Error())
	}
	return c
}
