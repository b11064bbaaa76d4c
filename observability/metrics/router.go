package metrics

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "matchpool/router"

// RouterMetrics tracks dispatch traffic and settlement activity.
type RouterMetrics struct {
	dispatches      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	registryChanges *prometheus.CounterVec
	payouts         *prometheus.CounterVec
	transferFails   prometheus.Counter

	meter           metric.Meter
	dispatchCounter metric.Int64Counter
	volume          metric.Float64Counter
}

var (
	routerOnce     sync.Once
	routerRegistry *RouterMetrics
)

// Router returns the lazily-initialised router metrics registered with the
// default Prometheus registry.
func Router() *RouterMetrics {
	routerOnce.Do(func() {
		routerRegistry = &RouterMetrics{
			dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "matchpool",
				Subsystem: "router",
				Name:      "dispatch_total",
				Help:      "Dispatched operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "matchpool",
				Subsystem: "router",
				Name:      "dispatch_duration_seconds",
				Help:      "Latency distribution of dispatched operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			registryChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "matchpool",
				Subsystem: "router",
				Name:      "registry_changes_total",
				Help:      "Registry mutations segmented by kind.",
			}, []string{"kind"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "matchpool",
				Subsystem: "escrow",
				Name:      "transfers_total",
				Help:      "Value transfers out of the vault segmented by result.",
			}, []string{"result"}),
			transferFails: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "matchpool",
				Subsystem: "escrow",
				Name:      "transfer_rejections_total",
				Help:      "Transfers rejected by the recipient's receive hook.",
			}),
		}
		prometheus.MustRegister(
			routerRegistry.dispatches,
			routerRegistry.latency,
			routerRegistry.registryChanges,
			routerRegistry.payouts,
			routerRegistry.transferFails,
		)
		routerRegistry.initMeter()
	})
	return routerRegistry
}

// initMeter binds the OpenTelemetry instruments. Instruments come from the
// global provider installed by observability/otel; a no-op meter is used when
// creation fails.
func (m *RouterMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter(meterName)
	dispatches, err := meter.Int64Counter("matchpool.router.dispatches")
	if err != nil {
		meter = noop.NewMeterProvider().Meter(meterName)
		dispatches, _ = meter.Int64Counter("matchpool.router.dispatches")
	}
	volume, err := meter.Float64Counter("matchpool.escrow.transferred",
		metric.WithDescription("Value paid out of the vault."))
	if err != nil {
		meter = noop.NewMeterProvider().Meter(meterName)
		volume, _ = meter.Float64Counter("matchpool.escrow.transferred")
	}
	m.meter = meter
	m.dispatchCounter = dispatches
	m.volume = volume
}

func (m *RouterMetrics) ObserveDispatch(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.dispatches.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
	if m.dispatchCounter != nil {
		m.dispatchCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome)))
	}
}

func (m *RouterMetrics) IncRegistryChange(kind string) {
	if m == nil {
		return
	}
	m.registryChanges.WithLabelValues(kind).Inc()
}

// ObserveTransfer records one vault payout attempt. Successful amounts feed
// the transferred-volume instrument.
func (m *RouterMetrics) ObserveTransfer(ctx context.Context, amount *big.Int, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.payouts.WithLabelValues("ok").Inc()
		if m.volume != nil && amount != nil {
			value, _ := new(big.Float).SetInt(amount).Float64()
			m.volume.Add(ctx, value)
		}
		return
	}
	m.payouts.WithLabelValues("failed").Inc()
	m.transferFails.Inc()
}
