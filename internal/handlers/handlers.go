// Package handlers exposes the tunnel supervisor and the device registry
// over an authenticated JSON API.
package handlers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"safenet/internal/keys"
	"safenet/internal/registry"
	"safenet/pkg/auth"
	"safenet/pkg/logging"
	"safenet/pkg/validation"
)

// ServerConfig describes the server side of the tunnel.
type ServerConfig struct {
	PrivateKey string
	// Address is the server's tunnel address in CIDR form, e.g. 10.8.0.1/24.
	Address    string
	ListenPort uint16
	// Endpoint is the host:port devices dial. Empty leaves it out of device configs.
	Endpoint string
	// Keepalive is written for every device peer. Zero disables it.
	Keepalive uint16
}

// AuthConfig holds the single admin credential and token settings.
type AuthConfig struct {
	Secret       []byte
	TokenTTL     time.Duration
	Username     string
	PasswordHash string
}

type Config struct {
	Tunnels       TunnelController
	Devices       registry.Store
	Pool          *registry.AddressPool
	Server        ServerConfig
	Auth          AuthConfig
	DefaultTunnel string
	GenerateKeys  KeyGenerator
	Logger        logging.Logger
	Metrics       *APIMetrics
}

// API serves the /api routes.
type API struct {
	tunnels       TunnelController
	devices       registry.Store
	pool          *registry.AddressPool
	server        ServerConfig
	serverPublic  string
	auth          AuthConfig
	defaultTunnel string
	generateKeys  KeyGenerator
	validate      *validation.Validator
	logger        logging.Logger
	metrics       *APIMetrics

	// enrollMu makes address allocation and insert atomic for this process.
	enrollMu sync.Mutex
}

func New(cfg Config) (*API, error) {
	if cfg.Tunnels == nil || cfg.Devices == nil || cfg.Pool == nil {
		return nil, errors.New("handlers: tunnels, devices and pool are required")
	}
	if len(cfg.Auth.Secret) == 0 {
		return nil, auth.ErrEmptySecret
	}
	pair, err := keys.FromPrivate(cfg.Server.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("server key: %w", err)
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = auth.DefaultTokenTTL
	}
	if cfg.DefaultTunnel == "" {
		cfg.DefaultTunnel = "safenet"
	}
	if cfg.GenerateKeys == nil {
		cfg.GenerateKeys = keys.Generate
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}

	return &API{
		tunnels:       cfg.Tunnels,
		devices:       cfg.Devices,
		pool:          cfg.Pool,
		server:        cfg.Server,
		serverPublic:  pair.PublicText(),
		auth:          cfg.Auth,
		defaultTunnel: cfg.DefaultTunnel,
		generateKeys:  cfg.GenerateKeys,
		validate:      validation.New(),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// Register mounts the API on r. Everything except /api/token requires an
// admin token.
func (a *API) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/token", a.Token)

	protected := api.Group("", auth.JWTAuthMiddleware(a.auth.Secret), auth.RequireRole(auth.RoleAdmin))
	protected.GET("/status", a.Status)
	protected.POST("/network/start", a.StartNetwork)
	protected.POST("/network/stop", a.StopNetwork)
	protected.POST("/devices/enroll", a.EnrollDevice)
	protected.GET("/devices", a.ListDevices)
	protected.DELETE("/devices/:name", a.DeleteDevice)
}
