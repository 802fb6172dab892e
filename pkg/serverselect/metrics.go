package serverselect

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connect outcomes
const (
	ConnectResultConnected  = "connected"
	ConnectResultIncomplete = "incomplete"
	ConnectResultMissing    = "missing"
	ConnectResultError      = "error"
)

// Metrics records what the server selection screen did. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	discovered   prometheus.Counter
	connects     *prometheus.CounterVec
	deletes      *prometheus.CounterVec
	loadDuration prometheus.Histogram
}

// NewMetrics registers the screen metrics with registerer, or the default
// registerer when nil
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		discovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "jellyterm_discovered_servers_total",
			Help: "Servers reported by local network discovery",
		}),
		connects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jellyterm_server_connects_total",
				Help: "Connect attempts by outcome",
			},
			[]string{"result"},
		),
		deletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jellyterm_server_deletes_total",
				Help: "Stored server deletions by outcome",
			},
			[]string{"result"},
		),
		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jellyterm_stored_servers_load_seconds",
			Help:    "Time taken to read the stored servers",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) recordDiscovered() {
	if m == nil {
		return
	}
	m.discovered.Inc()
}

func (m *Metrics) recordConnect(result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) recordDelete(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deletes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(d.Seconds())
}
