package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	queueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_waiting_total",
			Help: "Current number of waiting queue entries per event",
		},
		[]string{"event_id"},
	)

	admittedSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admitted_slots_total",
			Help: "Admission slots currently held per event",
		},
		[]string{"event_id"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Queue operations by outcome",
		},
		[]string{"operation", "event_id", "status"},
	)

	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"event_id", "status"},
	)

	oversellRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversell_rejections_total",
			Help: "Purchases rejected by the inventory check",
		},
		[]string{"event_id"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reaper_sweep_duration_seconds",
			Help:    "Duration of expiry reaper sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// Monitor samples Redis-side gauges periodically and offers counters for
// the services to record operation outcomes.
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectQueueGauges(context.Background())
	}
}

// collectQueueGauges reads the per-event gauges the position updater
// maintains in Redis, so sampling never touches the store.
func (m *Monitor) collectQueueGauges(ctx context.Context) {
	eventIDs, err := m.redis.SMembers(ctx, "active_events").Result()
	if err != nil {
		return
	}

	for _, eventID := range eventIDs {
		waiting, err := m.redis.Get(ctx, "queue:waiting_count:"+eventID).Int()
		if err == nil {
			queueWaiting.WithLabelValues(eventID).Set(float64(waiting))
		}
		admitted, err := m.redis.Get(ctx, "queue:admitted_count:"+eventID).Int()
		if err == nil {
			admittedSlots.WithLabelValues(eventID).Set(float64(admitted))
		}
	}
}

func (m *Monitor) TrackQueueOperation(operation, eventID, outcome string) {
	if m == nil {
		return
	}
	queueOperations.WithLabelValues(operation, eventID, outcome).Inc()
}

func (m *Monitor) TrackPurchase(eventID, outcome string) {
	if m == nil {
		return
	}
	purchases.WithLabelValues(eventID, outcome).Inc()
}

func (m *Monitor) TrackOversell(eventID string) {
	if m == nil {
		return
	}
	oversellRejections.WithLabelValues(eventID).Inc()
}

func (m *Monitor) TrackSweep(duration time.Duration) {
	if m == nil {
		return
	}
	sweepDuration.Observe(duration.Seconds())
}
