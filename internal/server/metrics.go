package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reqDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "thumbnail_request_duration_ms",
		Help: "HTTP request duration by route and status.",
	}, []string{"route", "status"})
	fetchDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "thumbnail_upstream_fetch_duration_ms",
		Help: "Upstream fetch duration by status.",
	}, []string{"status"})
	pipelineDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "thumbnail_pipeline_duration_ms",
		Help: "Duration of the sniff, plan and transform pipeline.",
	})
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_cache_lookups_total",
		Help: "Rendered thumbnail cache lookups by result.",
	}, []string{"result"})
)

func sinceMS(begin time.Time) float64 {
	return float64(time.Since(begin)) / float64(time.Millisecond)
}
