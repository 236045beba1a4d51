package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"safenet/internal/registry"
	"safenet/internal/tunnel"
	"safenet/pkg/logging"
	"safenet/pkg/middleware"
	"safenet/pkg/validation"
)

// statusClientClosedRequest is the de facto code for a request abandoned by
// its caller.
const statusClientClosedRequest = 499

type tunnelRequest struct {
	Tunnel string `json:"tunnel" validate:"omitempty,tunnel_name"`
}

type statusResponse struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Code    int    `json:"code,omitempty"`
	Tunnel  string `json:"tunnel"`
	Message string `json:"message"`
}

type stopResponse struct {
	Status            string   `json:"status"`
	Tunnel            string   `json:"tunnel"`
	Uninstalled       bool     `json:"uninstalled"`
	UninstallExitCode int      `json:"uninstall_exit_code"`
	ConfigRemoved     bool     `json:"config_removed"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Status reports the service state of a tunnel. It never fails because the
// tunnel is missing; that is reported as inactive.
func (a *API) Status(c *gin.Context) {
	name := c.DefaultQuery("tunnel", a.defaultTunnel)
	if err := validation.TunnelName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := a.tunnels.Status(c.Request.Context(), name)
	if err != nil {
		a.metrics.IncTunnel("status", "cancelled")
		c.JSON(statusClientClosedRequest, gin.H{"error": err.Error()})
		return
	}
	a.metrics.IncTunnel("status", "success")

	resp := statusResponse{
		Status: "inactive",
		State:  st.State.String(),
		Code:   st.Code,
		Tunnel: name,
	}
	switch {
	case st.Running():
		resp.Status = "active"
		resp.Message = "Tunnel is running"
	case st.State == tunnel.StateAbsent:
		resp.Message = "Tunnel is not installed"
	default:
		resp.Message = fmt.Sprintf("Tunnel is not running (%s)", st)
	}
	c.JSON(http.StatusOK, resp)
}

// StartNetwork renders the server config with every enrolled device as a
// peer and installs the tunnel.
func (a *API) StartNetwork(c *gin.Context) {
	log := middleware.GetContextLogger(c, a.logger)
	name, ok := a.bindTunnel(c)
	if !ok {
		return
	}

	spec, err := a.serverSpec(c.Request.Context())
	if err != nil {
		a.metrics.IncTunnel("start", "registry_error")
		log.WithError(err).Error("Failed to load devices for tunnel config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load devices"})
		return
	}

	if err := a.tunnels.Start(c.Request.Context(), spec, name); err != nil {
		a.writeTunnelError(c, log.WithField("tunnel", name), "start", err)
		return
	}

	a.metrics.IncTunnel("start", "success")
	log.WithFields(logging.Fields{
		"tunnel": name,
		"peers":  len(spec.Peers),
	}).Info("Tunnel started")
	c.JSON(http.StatusOK, gin.H{"status": "started", "tunnel": name, "peers": len(spec.Peers)})
}

// StopNetwork uninstalls the tunnel. A tunnel that is already gone still
// counts as stopped.
func (a *API) StopNetwork(c *gin.Context) {
	log := middleware.GetContextLogger(c, a.logger)
	name, ok := a.bindTunnel(c)
	if !ok {
		return
	}

	report, err := a.tunnels.Stop(c.Request.Context(), name)
	if err != nil {
		a.writeTunnelError(c, log.WithField("tunnel", name), "stop", err)
		return
	}

	a.metrics.IncTunnel("stop", "success")
	log.WithFields(logging.Fields{
		"tunnel":      name,
		"uninstalled": report.Uninstalled,
		"warnings":    len(report.Warnings),
	}).Info("Tunnel stopped")
	c.JSON(http.StatusOK, stopResponse{
		Status:            "stopped",
		Tunnel:            report.Tunnel,
		Uninstalled:       report.Uninstalled,
		UninstallExitCode: report.UninstallExitCode,
		ConfigRemoved:     report.ConfigRemoved,
		Warnings:          report.Warnings,
	})
}

// bindTunnel reads the optional {"tunnel": ...} body. An empty body selects
// the default tunnel.
func (a *API) bindTunnel(c *gin.Context) (string, bool) {
	var req tunnelRequest
	if c.Request.ContentLength != 0 {
		// Chunked requests report -1 and may still carry nothing.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
			return "", false
		}
	}
	if err := a.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if req.Tunnel == "" {
		req.Tunnel = a.defaultTunnel
	}
	return req.Tunnel, true
}

func (a *API) serverSpec(ctx context.Context) (tunnel.InterfaceSpec, error) {
	devices, err := a.devices.List(ctx)
	if err != nil {
		return tunnel.InterfaceSpec{}, err
	}

	spec := tunnel.InterfaceSpec{
		PrivateKey: a.server.PrivateKey,
		Address:    a.server.Address,
		ListenPort: a.server.ListenPort,
		Peers:      make([]tunnel.PeerSpec, 0, len(devices)),
	}
	for _, d := range devices {
		spec.Peers = append(spec.Peers, a.devicePeer(d))
	}
	return spec, nil
}

func (a *API) devicePeer(d registry.Device) tunnel.PeerSpec {
	p := tunnel.PeerSpec{
		PublicKey:  d.PublicKey,
		AllowedIPs: d.Address + "/32",
	}
	if a.server.Keepalive > 0 {
		p.Keepalive = tunnel.Keepalive(a.server.Keepalive)
	}
	return p
}

// writeTunnelError maps supervisor errors onto HTTP responses.
func (a *API) writeTunnelError(c *gin.Context, log logging.Entry, action string, err error) {
	var (
		cfgErr   *tunnel.ConfigurationError
		writeErr *tunnel.WriteError
		opErr    *tunnel.OperationalError
	)
	switch {
	case errors.As(err, &cfgErr):
		a.metrics.IncTunnel(action, "not_installed")
		log.WithError(err).Error("WireGuard control executable not found")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":       fmt.Sprintf("%s not found", cfgErr.Executable),
			"remediation": cfgErr.Remediation(),
		})
	case errors.Is(err, tunnel.ErrInvalidName):
		a.metrics.IncTunnel(action, "bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &writeErr):
		a.metrics.IncTunnel(action, "write_error")
		log.WithError(err).Error("Failed to write tunnel config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write tunnel config"})
	case errors.As(err, &opErr):
		a.metrics.IncTunnel(action, "install_failed")
		log.WithFields(logging.Fields{
			"exit_code":   opErr.ExitCode,
			"stderr":      opErr.Stderr,
			"config_path": opErr.ConfigPath,
		}).Error("Tunnel install failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Tunnel install failed",
			"exit_code": opErr.ExitCode,
			"stderr":    opErr.Stderr,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		a.metrics.IncTunnel(action, "cancelled")
		log.WithError(err).Warn("Tunnel request cancelled")
		c.JSON(statusClientClosedRequest, gin.H{"error": "request cancelled"})
	default:
		a.metrics.IncTunnel(action, "error")
		log.WithError(err).Error("Tunnel operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Tunnel operation failed"})
	}
}
