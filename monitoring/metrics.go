package monitoring

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook deliveries by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	paymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Accepted payment state transitions",
		},
		[]string{"from", "to"},
	)

	payoutOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_operations_total",
			Help: "Payout operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	openPayouts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "open_payouts_total",
			Help: "Payouts currently in a non-terminal status",
		},
		[]string{"status"},
	)

	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Latency of provider API calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"operation"},
	)
)

func TrackWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func TrackPaymentTransition(from, to string) {
	paymentTransitions.WithLabelValues(from, to).Inc()
}

func TrackPayoutOperation(operation, outcome string) {
	payoutOperations.WithLabelValues(operation, outcome).Inc()
}

func TrackProviderCall(operation string, duration time.Duration) {
	providerCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Monitor samples open-payout gauges from the database.
type Monitor struct {
	db dbx.Builder
}

func NewMonitor(db dbx.Builder) *Monitor {
	return &Monitor{db: db}
}

// Collect runs until the context is canceled.
func (m *Monitor) Collect(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOpenPayouts(ctx)
		}
	}
}

func (m *Monitor) sampleOpenPayouts(ctx context.Context) {
	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}
	err := m.db.NewQuery(
		`SELECT status, COUNT(*) AS count FROM payouts
		 WHERE status IN ('pending', 'processing', 'processing_error')
		 GROUP BY status`,
	).WithContext(ctx).All(&rows)
	if err != nil {
		return
	}

	for _, s := range []string{"pending", "processing", "processing_error"} {
		openPayouts.WithLabelValues(s).Set(0)
	}
	for _, row := range rows {
		openPayouts.WithLabelValues(row.Status).Set(float64(row.Count))
	}
}
