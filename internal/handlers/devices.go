package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"safenet/internal/registry"
	"safenet/internal/tunnel"
	"safenet/pkg/logging"
	"safenet/pkg/middleware"
	"safenet/pkg/validation"
)

type enrollRequest struct {
	DeviceName string `json:"device_name" validate:"required,device_name"`
}

type enrollResponse struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	AssignedIP string `json:"assigned_ip"`
	PublicKey  string `json:"public_key"`
	// Config carries the device private key. It is returned once and not kept.
	Config string `json:"config"`
}

// EnrollDevice registers a device, allocates its tunnel address and returns
// a ready-to-import config. Only the public key is stored. The device becomes
// a peer the next time the network is started.
func (a *API) EnrollDevice(c *gin.Context) {
	log := middleware.GetContextLogger(c, a.logger)
	ctx := c.Request.Context()

	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.metrics.IncDevice("enroll", "bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		a.metrics.IncDevice("enroll", "bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log = log.WithField("device_name", req.DeviceName)

	a.enrollMu.Lock()
	defer a.enrollMu.Unlock()

	if _, err := a.devices.Get(ctx, req.DeviceName); err == nil {
		a.metrics.IncDevice("enroll", "conflict")
		log.Warn("Device already exists")
		c.JSON(http.StatusConflict, gin.H{"error": "Device '" + req.DeviceName + "' already exists"})
		return
	} else if !errors.Is(err, registry.ErrNotFound) {
		a.registryError(c, log, "enroll", err)
		return
	}

	used, err := a.devices.Addresses(ctx)
	if err != nil {
		a.registryError(c, log, "enroll", err)
		return
	}
	addr, err := a.pool.Allocate(used)
	if errors.Is(err, registry.ErrPoolExhausted) {
		a.metrics.IncDevice("enroll", "pool_exhausted")
		log.WithField("pool", a.pool.Network()).Error("Device address pool exhausted")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No free device addresses"})
		return
	}
	if err != nil {
		a.registryError(c, log, "enroll", err)
		return
	}

	pair, err := a.generateKeys()
	if err != nil {
		a.metrics.IncDevice("enroll", "error")
		log.WithError(err).Error("Failed to generate device keys")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate keys"})
		return
	}

	device := &registry.Device{
		Name:      req.DeviceName,
		Address:   addr,
		PublicKey: pair.PublicText(),
	}
	if err := a.devices.Create(ctx, device); err != nil {
		if errors.Is(err, registry.ErrExists) {
			a.metrics.IncDevice("enroll", "conflict")
			c.JSON(http.StatusConflict, gin.H{"error": "Device '" + req.DeviceName + "' already exists"})
			return
		}
		a.registryError(c, log, "enroll", err)
		return
	}

	iface := a.pool.Interface(addr)
	config := tunnel.Render(a.deviceSpec(pair.PrivateText(), iface))

	a.metrics.IncDevice("enroll", "success")
	log.WithFields(logging.Fields{
		"device_id":   device.ID,
		"assigned_ip": iface,
	}).Info("Device enrolled")

	c.JSON(http.StatusOK, enrollResponse{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		AssignedIP: iface,
		PublicKey:  device.PublicKey,
		Config:     config,
	})
}

// deviceSpec is the config a device imports: its own key and address with
// the server as the only peer, routing the whole device network through it.
func (a *API) deviceSpec(privateKey, address string) tunnel.InterfaceSpec {
	server := tunnel.PeerSpec{
		PublicKey:  a.serverPublic,
		AllowedIPs: a.pool.Network(),
		Endpoint:   a.server.Endpoint,
	}
	if a.server.Keepalive > 0 {
		server.Keepalive = tunnel.Keepalive(a.server.Keepalive)
	}
	return tunnel.InterfaceSpec{
		PrivateKey: privateKey,
		Address:    address,
		Peers:      []tunnel.PeerSpec{server},
	}
}

// ListDevices returns every enrolled device.
func (a *API) ListDevices(c *gin.Context) {
	devices, err := a.devices.List(c.Request.Context())
	if err != nil {
		a.registryError(c, middleware.GetContextLogger(c, a.logger), "list", err)
		return
	}
	if devices == nil {
		devices = []registry.Device{}
	}
	a.metrics.IncDevice("list", "success")
	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// DeleteDevice removes a device. It stays a peer of a running tunnel until
// the network is started again.
func (a *API) DeleteDevice(c *gin.Context) {
	log := middleware.GetContextLogger(c, a.logger)
	name := c.Param("name")
	if err := validation.DeviceName(name); err != nil {
		a.metrics.IncDevice("delete", "bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := a.devices.Delete(c.Request.Context(), name)
	if errors.Is(err, registry.ErrNotFound) {
		a.metrics.IncDevice("delete", "not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Device '" + name + "' not found"})
		return
	}
	if err != nil {
		a.registryError(c, log, "delete", err)
		return
	}

	a.metrics.IncDevice("delete", "success")
	log.WithField("device_name", name).Info("Device deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "device_name": name})
}

func (a *API) registryError(c *gin.Context, log logging.Entry, action string, err error) {
	a.metrics.IncDevice(action, "error")
	log.WithError(err).Error("Device registry error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Device registry error"})
}
