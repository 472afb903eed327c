package vault

import (
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dexter-zone/dexvault/internal/types"
)

const metricsNamespace = "dexvault"

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	messages     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	activePools  prometheus.Gauge
	defunctPools prometheus.Gauge
	swapVolume   *prometheus.CounterVec
	feesCharged  *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		messages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "messages_total",
				Help:      "Ledger messages by kind and outcome category",
			},
			[]string{"msg", "result"},
		),
		latency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "message_duration_seconds",
				Help:      "Time from message start to commit or rejection",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"msg"},
		),
		activePools: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_pools",
				Help:      "Number of active pool instances",
			},
		),
		defunctPools: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "defunct_pools",
				Help:      "Number of defunct pool instances",
			},
		),
		swapVolume: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "swap_volume_total",
				Help:      "Raw offer amount swapped per pool and asset",
			},
			[]string{"pool_id", "asset"},
		),
		feesCharged: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fees_charged_total",
				Help:      "Raw fee amounts charged per pool and asset",
			},
			[]string{"pool_id", "asset"},
		),
	}
}

func (m *Metrics) observe(kind types.MsgKind, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if c := Category(err); c != nil {
			result = categoryLabel(c)
		}
	}
	m.messages.WithLabelValues(string(kind), result).Inc()
	m.latency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) setPools(active, defunct int) {
	if m == nil {
		return
	}
	m.activePools.Set(float64(active))
	m.defunctPools.Set(float64(defunct))
}

func (m *Metrics) addSwap(poolID uint64, offer types.Asset) {
	if m == nil {
		return
	}
	m.swapVolume.WithLabelValues(strconv.FormatUint(poolID, 10), offer.Info.ID()).Add(amountFloat(offer.Amount))
}

func (m *Metrics) addFee(poolID uint64, fee types.Asset) {
	if m == nil || !fee.AmountOrZero().IsPositive() {
		return
	}
	m.feesCharged.WithLabelValues(strconv.FormatUint(poolID, 10), fee.Info.ID()).Add(amountFloat(fee.Amount))
}

func categoryLabel(c error) string {
	switch c {
	case ErrValidation:
		return "validation"
	case ErrPoolResponse:
		return "pool_response"
	case ErrSlippage:
		return "slippage"
	case ErrLifecycle:
		return "lifecycle"
	default:
		return "invariant"
	}
}

func amountFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := sdkmath.LegacyNewDecFromInt(v).Float64()
	return f
}
