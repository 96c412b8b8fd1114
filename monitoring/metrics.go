package monitoring

import (
	"context"
	"sync"
	"time"

	"ticket-market/internal/status"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	marketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_operations_total",
			Help: "Total market operations by outcome",
		},
		[]string{"operation", "status"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_settlements_total",
			Help: "Total settled trades",
		},
		[]string{"kind", "currency"},
	)

	feesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_fees_collected_total",
			Help: "Platform fees collected in smallest currency units",
		},
		[]string{"currency"},
	)

	transferFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_transfer_failures_total",
			Help: "Outbound or inbound transfers that failed",
		},
		[]string{"direction", "currency"},
	)

	bids = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_bids_total",
			Help: "Accepted auction bids",
		},
		[]string{"currency"},
	)

	bidRefunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_bid_refunds_total",
			Help: "Escrow returned to outbid or withdrawing bidders",
		},
		[]string{"currency", "reason"},
	)

	escrowDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "market_escrow_drift",
			Help: "Custody balance minus escrowed bids and fee balance per currency",
		},
		[]string{"currency"},
	)

	lockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "market_listing_lock_wait_seconds",
			Help:    "Time spent waiting for a listing lock",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"operation"},
	)
)

// Drift is one currency's reconciliation result as seen by the monitor.
type Drift struct {
	Currency string
	Amount   float64
}

type Monitor struct {
	logger *zap.Logger

	mu       sync.Mutex
	drifting map[string]bool
}

func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{logger: logger, drifting: make(map[string]bool)}
}

// Run reconciles escrow every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, reconcile func(context.Context) ([]Drift, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drifts, err := reconcile(ctx)
			if err != nil {
				m.logger.Warn("escrow reconciliation failed", zap.Error(err))
				continue
			}
			m.TrackDrift(drifts)
		}
	}
}

// TrackDrift records the latest reconciliation. A reconciliation is not a
// consistent snapshot, so operations in flight show up as drift for one run;
// only drift seen in two consecutive runs is reported as an error.
func (m *Monitor) TrackDrift(drifts []Drift) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range drifts {
		escrowDrift.WithLabelValues(d.Currency).Set(d.Amount)
		if d.Amount == 0 {
			delete(m.drifting, d.Currency)
			continue
		}
		if m.drifting[d.Currency] {
			m.logger.Error("escrow drift detected",
				zap.String("currency", d.Currency), zap.Float64("drift", d.Amount))
			continue
		}
		m.drifting[d.Currency] = true
		m.logger.Debug("transient escrow drift",
			zap.String("currency", d.Currency), zap.Float64("drift", d.Amount))
	}
}

// TrackOperation counts a market operation by its outcome: "ok", the
// rejection reason code, or "error" for untyped failures.
func (m *Monitor) TrackOperation(operation string, err error) {
	if m == nil {
		return
	}
	marketOperations.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := status.CodeOf(err); code != "" {
		return code
	}
	return "error"
}

func (m *Monitor) TrackBid(currency string) {
	if m == nil {
		return
	}
	bids.WithLabelValues(currency).Inc()
}

// TrackRefund counts escrow handed back; reason is "outbid" or "withdrawn".
func (m *Monitor) TrackRefund(currency, reason string) {
	if m == nil {
		return
	}
	bidRefunds.WithLabelValues(currency, reason).Inc()
}

func (m *Monitor) TrackSettlement(kind, currency string, fee float64) {
	if m == nil {
		return
	}
	settlements.WithLabelValues(kind, currency).Inc()
	feesCollected.WithLabelValues(currency).Add(fee)
}

func (m *Monitor) TrackTransferFailure(direction, currency string) {
	if m == nil {
		return
	}
	transferFailures.WithLabelValues(direction, currency).Inc()
}

// Track listing lock wait
func (m *Monitor) TrackLockWait(operation string, d time.Duration) {
	if m == nil {
		return
	}
	lockWait.WithLabelValues(operation).Observe(d.Seconds())
}
