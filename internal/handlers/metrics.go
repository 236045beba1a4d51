package handlers

import "github.com/prometheus/client_golang/prometheus"

type APIMetrics struct {
	TunnelRequests *prometheus.CounterVec
	DeviceRequests *prometheus.CounterVec
	TokenRequests  *prometheus.CounterVec
}

func (m *APIMetrics) IncTunnel(action, result string) {
	if m == nil || m.TunnelRequests == nil {
		return
	}

	m.TunnelRequests.WithLabelValues(action, result).Inc()
}

func (m *APIMetrics) IncDevice(action, result string) {
	if m == nil || m.DeviceRequests == nil {
		return
	}

	m.DeviceRequests.WithLabelValues(action, result).Inc()
}

func (m *APIMetrics) IncToken(result string) {
	if m == nil || m.TokenRequests == nil {
		return
	}

	m.TokenRequests.WithLabelValues(result).Inc()
}
