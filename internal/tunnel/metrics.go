package tunnel

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the optional Prometheus instruments updated by the
// Supervisor. Nil fields are skipped.
type Metrics struct {
	Operations        *prometheus.CounterVec   // labels: operation, result
	OperationDuration *prometheus.HistogramVec // labels: operation
	State             *prometheus.GaugeVec     // labels: tunnel
	PrunedConfigs     *prometheus.CounterVec   // no labels
}

const (
	opStart  = "start"
	opStop   = "stop"
	opStatus = "status"
	opPrune  = "prune"
)

func (m *Metrics) observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	if m.Operations != nil {
		m.Operations.WithLabelValues(op, resultLabel(err)).Inc()
	}
	if m.OperationDuration != nil {
		m.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) setState(tunnel string, st Status) {
	if m == nil || m.State == nil {
		return
	}
	m.State.WithLabelValues(tunnel).Set(float64(st.Code))
}

func (m *Metrics) incPruned() {
	if m == nil || m.PrunedConfigs == nil {
		return
	}
	m.PrunedConfigs.WithLabelValues().Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrControlNotFound):
		return "not_installed"
	case errors.Is(err, ErrWrite):
		return "write_error"
	case errors.Is(err, ErrInstallFailed):
		return "install_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
