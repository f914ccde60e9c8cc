package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zamunda",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "provider_requests_total",
		Help:      "Total tracker queries by query kind and result status.",
	}, []string{"query", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zamunda",
		Name:      "provider_request_duration_seconds",
		Help:      "Tracker query duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"query"})

	TorrentDownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "torrent_downloads_total",
		Help:      "Total .torrent metadata downloads by result status.",
	}, []string{"status"})

	TitleLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "title_lookups_total",
		Help:      "Total title lookups by result status (ok, not_found, error, cached).",
	}, []string{"status"})

	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "episode_matches_total",
		Help:      "Series torrents classified by match kind.",
	}, []string{"kind"})

	StreamsReturned = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zamunda",
		Name:      "streams_returned",
		Help:      "Number of streams returned per resolved request.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"type"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "cache_hits_total",
		Help:      "Total number of stream cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "cache_misses_total",
		Help:      "Total number of stream cache misses.",
	})

	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zamunda",
		Name:      "cache_evictions_total",
		Help:      "Total number of expired stream cache entries removed by the sweep.",
	})

	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zamunda",
		Name:      "cache_entries",
		Help:      "Current number of entries in the in-memory stream cache.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		TorrentDownloadsTotal,
		TitleLookupsTotal,
		MatchesTotal,
		StreamsReturned,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		CacheEntries,
	)
}
