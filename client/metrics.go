package gqlwsclient

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every session built with the same registerer. A nil
// *Metrics records nothing.
type Metrics struct {
	FramesDropped       *prometheus.CounterVec
	Reconnects          prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
}

// drop reasons
const (
	dropUnknownID  = `unknown_id`
	dropMalformed  = `malformed`
	dropStopped    = `stopped`
	dropUnexpected = `unexpected`
)

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: `gqlclient`,
			Subsystem: `session`,
			Name:      `frames_dropped_total`,
			Help:      `Inbound frames that could not be routed to a subscription`,
		}, []string{`reason`}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: `gqlclient`,
			Subsystem: `session`,
			Name:      `reconnects_total`,
			Help:      `Reconnect attempts scheduled after a lost or failed connection`,
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: `gqlclient`,
			Subsystem: `session`,
			Name:      `active_subscriptions`,
			Help:      `Subscriptions currently registered`,
		}),
	}
	var err error
	m.FramesDropped, err = register(reg, m.FramesDropped)
	if err != nil {
		return nil, err
	}
	if m.Reconnects, err = register(reg, m.Reconnects); err != nil {
		return nil, err
	}
	if m.ActiveSubscriptions, err = register(reg, m.ActiveSubscriptions); err != nil {
		return nil, err
	}
	return m, nil
}

// register reuses the collector already registered under the same name
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) reconnected() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) subscriptions(n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Set(float64(n))
}
