// Package metrics exposes Prometheus collectors for stream access and viewing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessTotal counts gateway access requests by outcome (granted, denied_*, not_found, error).
	AccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_access_total",
		Help: "Stream access requests by result",
	}, []string{"result"})

	// DisplayStateTotal counts rendered views by derived display state.
	DisplayStateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_display_state_total",
		Help: "Rendered stream views by display state",
	}, []string{"state"})

	// EmbedRejectedTotal counts raw embed markup that was refused.
	EmbedRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_embed_rejected_total",
		Help: "Raw embed markup refused by reason",
	}, []string{"reason"})

	// JobsProcessedTotal counts worker jobs by type and result.
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_jobs_processed_total",
		Help: "Worker jobs processed by type and result",
	}, []string{"type", "result"})

	// ViewersConnected tracks open push connections.
	ViewersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamgate_viewers_connected",
		Help: "Open viewer push connections",
	})
)

// ObserveAccess records one gateway access outcome.
func ObserveAccess(result string) {
	AccessTotal.WithLabelValues(result).Inc()
}

// ObserveDisplayState records one rendered view.
func ObserveDisplayState(state string) {
	DisplayStateTotal.WithLabelValues(state).Inc()
}

// ObserveEmbedRejected records one refused markup embed.
func ObserveEmbedRejected(reason string) {
	EmbedRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveJob records one processed job.
func ObserveJob(jobType, result string) {
	JobsProcessedTotal.WithLabelValues(jobType, result).Inc()
}
