package listener

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cbout22/repofetch/internal/transport"
)

// Metrics counts transfers in prometheus collectors.
type Metrics struct {
	transfers *prometheus.CounterVec
	bytes     prometheus.Counter
	debug     prometheus.Counter
	duration  prometheus.Histogram

	mu      sync.Mutex
	started map[string]time.Time
}

var _ transport.Listener = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repofetch_transfers_total",
			Help: "Transfer events by type.",
		}, []string{"event"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repofetch_transferred_bytes_total",
			Help: "Bytes written by completed transfers.",
		}),
		debug: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repofetch_debug_messages_total",
			Help: "Diagnostic messages emitted by transports and fetchers.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repofetch_transfer_duration_seconds",
			Help:    "Time from transfer start to completion.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		started: make(map[string]time.Time),
	}
	for _, c := range []prometheus.Collector{m.transfers, m.bytes, m.debug, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) TransferEvent(ev transport.Event) {
	if ev.Type == transport.TransferProgress {
		return
	}
	m.transfers.WithLabelValues(ev.Type.String()).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Type {
	case transport.TransferStarted:
		m.started[transferKey(ev)] = time.Now()
	case transport.TransferCompleted:
		m.bytes.Add(float64(ev.Transferred))
		if start, ok := m.started[transferKey(ev)]; ok {
			m.duration.Observe(time.Since(start).Seconds())
			delete(m.started, transferKey(ev))
		}
	case transport.TransferFailed:
		delete(m.started, transferKey(ev))
	}
}

func (m *Metrics) Debug(string) {
	m.debug.Inc()
}
