// Package metrics defines Prometheus metrics for the river alert job.
//
// Metrics live on a dedicated registry. A one-shot run pushes it to a
// Pushgateway; daemon mode can also serve it over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every metric in this package
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// RunsTotal counts runs by outcome (alert, no_alert, suppressed, fetch_failed,
	// validation_failed, save_failed).
	RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "riveralert_runs_total",
		Help: "Total number of runs by outcome.",
	}, []string{"outcome"})

	// StrategyFailuresTotal counts failed fetch attempts by strategy name.
	StrategyFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "riveralert_strategy_failures_total",
		Help: "Total failed fetch attempts by strategy.",
	}, []string{"strategy"})

	// ReadingsTotal counts successful acquisitions by strategy kind.
	ReadingsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "riveralert_readings_total",
		Help: "Total readings acquired by strategy kind.",
	}, []string{"source"})

	// AlertsTotal counts notifications sent by triggering rule.
	AlertsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "riveralert_alerts_total",
		Help: "Total alerts sent by triggering rule.",
	}, []string{"rule"})

	NotifyFailuresTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "riveralert_notify_failures_total",
		Help: "Total failed notification attempts.",
	})

	WaterLevelMeters = factory.NewGauge(prometheus.GaugeOpts{
		Name: "riveralert_water_level_meters",
		Help: "Last observed water level in meters.",
	})

	// DistanceToBankMeters is negative while the river is above the bank.
	DistanceToBankMeters = factory.NewGauge(prometheus.GaugeOpts{
		Name: "riveralert_distance_to_bank_meters",
		Help: "Last computed distance from water level to bank level in meters.",
	})

	RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "riveralert_run_duration_seconds",
		Help:    "Duration of runs in seconds.",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 90, 120, 180},
	})

	LastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Name: "riveralert_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})
)

// ObserveRun records the outcome and duration of a finished run
func ObserveRun(outcome string, started, finished time.Time) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDurationSeconds.Observe(finished.Sub(started).Seconds())
	LastRunTimestamp.Set(float64(finished.Unix()))
}

// Push sends the registry to a Pushgateway under the given job name
func Push(url, job string) error {
	return push.New(url, job).Gatherer(Registry).Push()
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
