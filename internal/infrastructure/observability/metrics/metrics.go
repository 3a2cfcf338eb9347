// Package metrics provides the prometheus observability sink for the content
// pipeline: cache effectiveness, queue pressure, generation latency, and
// validator rejection rates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline reports into. Constructed once
// at startup and injected; tests construct one against a private registry.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheExpired   prometheus.Counter
	CacheDegraded  prometheus.Counter
	StaleFallbacks prometheus.Counter

	QueueDepth         *prometheus.GaugeVec
	TasksSubmitted     *prometheus.CounterVec
	TasksCoalesced     prometheus.Counter
	GenerationLatency  prometheus.Histogram
	GenerationRetries  prometheus.Counter
	GenerationFailures prometheus.Counter

	ValidatorRejections  prometheus.Counter
	ValidatorCorrections prometheus.Counter

	PreloadSubmitted   prometheus.Counter
	TransitionObserved prometheus.Counter

	SessionsActive  prometheus.Gauge
	SessionsExpired prometheus.Counter

	OutcomesApplied   prometheus.Counter
	OutcomesDuplicate prometheus.Counter
}

// New registers all pipeline collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lessonforge_cache_hits_total",
			Help: "Content cache hits by tier.",
		}, []string{"tier"}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_cache_misses_total",
			Help: "Content cache misses across both tiers.",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_cache_evictions_total",
			Help: "Hot tier entries evicted by the LRU sweep.",
		}),
		CacheExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_cache_expired_total",
			Help: "Entries removed because their TTL elapsed.",
		}),
		CacheDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_cache_degraded_total",
			Help: "Operations served hot-tier-only because the durable tier was unavailable.",
		}),
		StaleFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_stale_fallbacks_total",
			Help: "Timed-out interactive requests served a stale cache entry.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lessonforge_generation_queue_depth",
			Help: "Generation tasks waiting in queue by priority.",
		}, []string{"priority"}),
		TasksSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lessonforge_generation_tasks_total",
			Help: "Generation tasks created by priority.",
		}, []string{"priority"}),
		TasksCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_generation_coalesced_total",
			Help: "Submissions attached to an existing in-flight task.",
		}),
		GenerationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lessonforge_generation_latency_seconds",
			Help:    "Backend generation latency per successful task.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		GenerationRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_generation_retries_total",
			Help: "Backend generation attempts beyond the first.",
		}),
		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_generation_failures_total",
			Help: "Generation tasks that exhausted all attempts.",
		}),
		ValidatorRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_validator_rejections_total",
			Help: "Bundles rejected after the correct-and-revalidate cycle.",
		}),
		ValidatorCorrections: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_validator_corrections_total",
			Help: "Bundles auto-corrected to session fixed attributes.",
		}),
		PreloadSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_preload_submitted_total",
			Help: "Speculative generation tasks submitted by the preloader.",
		}),
		TransitionObserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_transitions_observed_total",
			Help: "Navigation transitions reported to the preloader.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lessonforge_sessions_active",
			Help: "Sessions currently resident in the hot session store.",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_sessions_expired_total",
			Help: "Sessions removed after their inactivity TTL elapsed.",
		}),
		OutcomesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_outcomes_applied_total",
			Help: "Answer outcome events applied to mastery ratings.",
		}),
		OutcomesDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonforge_outcomes_duplicate_total",
			Help: "Outcome events ignored by idempotent replay protection.",
		}),
	}
}

// NewNop returns a Metrics wired to a throwaway registry, for tests and
// defaults.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
