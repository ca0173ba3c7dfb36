// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesRelayed   prometheus.Counter
	MessagesDropped   prometheus.Counter
	StorageAppendErrs prometheus.Counter
	HistoryLoads      prometheus.Counter
	HistoryLoadErrs   prometheus.Counter
	WelcomesSent      prometheus.Counter

	// Gauges
	ConnectionsGauge prometheus.Gauge
	OperatorsGauge   prometheus.Gauge
	RoomsGauge       prometheus.Gauge

	// Histograms (seconds)
	HistoryLoadDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_relayed_total", Help: "Number of chat messages fanned out to a room"})
		MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_dropped_total", Help: "Number of inbound events dropped by validation or targeting rules"})
		StorageAppendErrs = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_storage_append_errors_total", Help: "Number of failed durable message appends"})
		HistoryLoads = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_history_loads_total", Help: "Number of history merges served"})
		HistoryLoadErrs = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_history_load_errors_total", Help: "Number of durable history reads that failed and degraded to transient-only"})
		WelcomesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_welcomes_sent_total", Help: "Number of synthesized welcome messages"})
		ConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connections", Help: "Current number of live websocket connections"})
		OperatorsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_operator_connections", Help: "Current number of operator connections"})
		RoomsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_rooms", Help: "Number of rooms seen since startup (rooms are never collected)"})
		HistoryLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_history_load_duration_seconds", Help: "History merge duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// IncCounter increments a counter if registered; safe before Init in tests.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetGauge sets a gauge if registered.
func SetGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns the default logger with the correlation id attached, when present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if corr := GetCorrelation(ctx); corr != "" {
		return slog.Default().With(slog.String("corr", corr))
	}
	return slog.Default()
}
