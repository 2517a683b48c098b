// Package metrics exposes Prometheus collectors for CIFS client activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the client collectors.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// FramesTotal counts SMB frames, labeled by direction ("sent", "received").
	FramesTotal *prometheus.CounterVec

	// BytesTotal counts SMB payload bytes, labeled by direction.
	BytesTotal *prometheus.CounterVec

	// TransactionsTotal counts transactions, labeled by command and result.
	TransactionsTotal *prometheus.CounterVec

	// SetupRetriesTotal counts bad-password retries, labeled by stage.
	SetupRetriesTotal *prometheus.CounterVec

	// ReconnectsTotal counts automatic and explicit reconnects.
	ReconnectsTotal prometheus.Counter

	// ActiveSessions tracks registered sessions.
	ActiveSessions prometheus.Gauge

	// ResolutionsTotal counts name lookups, labeled by method and result.
	ResolutionsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. If reg is nil the
// collectors are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cifs",
			Subsystem: "client",
			Name:      "frames_total",
			Help:      "SMB frames exchanged",
		}, []string{"direction"}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cifs",
			Subsystem: "client",
			Name:      "bytes_total",
			Help:      "SMB bytes exchanged",
		}, []string{"direction"}),
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cifs",
			Subsystem: "client",
			Name:      "transactions_total",
			Help:      "SMB transactions by command and result",
		}, []string{"command", "result"}),
		SetupRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cifs",
			Subsystem: "client",
			Name:      "setup_retries_total",
			Help:      "Bad password retries during session setup and tree connect",
		}, []string{"stage"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cifs",
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Session reconnects",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cifs",
			Subsystem: "client",
			Name:      "active_sessions",
			Help:      "Currently registered sessions",
		}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cifs",
			Subsystem: "netbios",
			Name:      "resolutions_total",
			Help:      "Name lookups by method and result",
		}, []string{"method", "result"}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.FramesTotal,
			m.BytesTotal,
			m.TransactionsTotal,
			m.SetupRetriesTotal,
			m.ReconnectsTotal,
			m.ActiveSessions,
			m.ResolutionsTotal,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

// FrameSent records an outgoing frame of n bytes.
func (m *Metrics) FrameSent(n int) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues("sent").Inc()
	m.BytesTotal.WithLabelValues("sent").Add(float64(n))
}

// FrameReceived records an incoming frame of n bytes.
func (m *Metrics) FrameReceived(n int) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues("received").Inc()
	m.BytesTotal.WithLabelValues("received").Add(float64(n))
}

// Transaction records a finished transaction.
func (m *Metrics) Transaction(command string, err error) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(command, result(err)).Inc()
}

// SetupRetry records a bad-password retry at stage ("setup", "tree").
func (m *Metrics) SetupRetry(stage string) {
	if m == nil {
		return
	}
	m.SetupRetriesTotal.WithLabelValues(stage).Inc()
}

// Reconnect records a reconnect.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// SessionAdded increments the active session gauge.
func (m *Metrics) SessionAdded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionRemoved decrements the active session gauge.
func (m *Metrics) SessionRemoved() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// Resolution records a name lookup through method.
func (m *Metrics) Resolution(method string, err error) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(method, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
