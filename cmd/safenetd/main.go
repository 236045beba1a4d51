package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"safenet/internal/handlers"
	"safenet/internal/registry"
	"safenet/internal/tunnel"
	"safenet/internal/xexec"
	"safenet/pkg/config"
	"safenet/pkg/database"
	"safenet/pkg/logging"
	"safenet/pkg/monitoring"
	"safenet/pkg/server"
	"safenet/pkg/version"
)

const serviceName = "safenet"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	if dsn := config.GetEnv("SAFENET_SENTRY_DSN", ""); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     dsn,
			Release: version.Version,
		}); err != nil {
			logger.WithError(err).Warn("Sentry disabled: init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)

	runnerOpts := []xexec.Option{xexec.WithLogger(logger)}
	if cp := config.GetEnv("SAFENET_QUERY_CODEPAGE", ""); cp != "" {
		enc, err := xexec.EncodingFor(cp)
		if err != nil {
			logger.WithError(err).Fatal("Invalid SAFENET_QUERY_CODEPAGE")
		}
		runnerOpts = append(runnerOpts, xexec.WithEncoding(enc))
	}

	tunnelCfg := tunnel.DefaultConfig()
	tunnelCfg.ControlExe = config.GetEnv("SAFENET_CONTROL_EXE", tunnel.DefaultControlExe)
	tunnelCfg.QueryExe = config.GetEnv("SAFENET_QUERY_EXE", tunnel.DefaultQueryExe)
	tunnelCfg.ServicePrefix = config.GetEnv("SAFENET_SERVICE_PREFIX", tunnel.DefaultServicePrefix)
	tunnelCfg.ConfigDir = config.GetEnv("SAFENET_CONFIG_DIR", tunnel.DefaultConfigDir)
	tunnelCfg.FailedConfigRetention = config.GetEnvDuration("SAFENET_FAILED_CONFIG_RETENTION", tunnel.DefaultFailedConfigRetention)
	tunnelCfg.CleanupTimeout = config.GetEnvDuration("SAFENET_CLEANUP_TIMEOUT", tunnel.DefaultCleanupTimeout)
	tunnelCfg.Runner = xexec.New(runnerOpts...)
	tunnelCfg.Logger = logger
	tunnelCfg.Metrics = newTunnelMetrics(metricsCollector)

	supervisor, err := tunnel.New(tunnelCfg)
	if err != nil {
		logger.WithError(err).Fatal("Invalid tunnel configuration")
	}

	store := openStore(ctx, logger, healthChecker)

	serverAddress := config.GetEnv("SAFENET_SERVER_ADDRESS", "10.8.0.1/24")
	pool, err := registry.NewAddressPool(config.GetEnv("SAFENET_DEVICE_POOL", "10.8.0.0/24"), serverAddress)
	if err != nil {
		logger.WithError(err).Fatal("Invalid device address pool")
	}

	api, err := handlers.New(handlers.Config{
		Tunnels: supervisor,
		Devices: store,
		Pool:    pool,
		Server: handlers.ServerConfig{
			PrivateKey: config.RequireEnv("SAFENET_SERVER_PRIVATE_KEY"),
			Address:    serverAddress,
			ListenPort: config.GetEnvUint16("SAFENET_SERVER_LISTEN_PORT", tunnel.DefaultListenPort),
			Endpoint:   config.GetEnv("SAFENET_SERVER_ENDPOINT", ""),
			Keepalive:  config.GetEnvUint16("SAFENET_DEVICE_KEEPALIVE", 25),
		},
		Auth: handlers.AuthConfig{
			Secret:       []byte(config.RequireEnv("SAFENET_JWT_SECRET")),
			TokenTTL:     config.GetEnvDuration("SAFENET_TOKEN_TTL", 24*time.Hour),
			Username:     config.GetEnv("SAFENET_ADMIN_USERNAME", "admin"),
			PasswordHash: config.RequireEnv("SAFENET_ADMIN_PASSWORD_HASH"),
		},
		DefaultTunnel: config.GetEnv("SAFENET_TUNNEL_NAME", "safenet"),
		Logger:        logger,
		Metrics: &handlers.APIMetrics{
			TunnelRequests: metricsCollector.NewCounter("api_tunnel_requests_total", "Tunnel API requests by action and result", []string{"action", "result"}),
			DeviceRequests: metricsCollector.NewCounter("api_device_requests_total", "Device API requests by action and result", []string{"action", "result"}),
			TokenRequests:  metricsCollector.NewCounter("api_token_requests_total", "Token requests by result", []string{"result"}),
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("Invalid API configuration")
	}

	healthChecker.AddCheck("control_executable", monitoring.ExecutableHealthCheck(tunnelCfg.ControlExe))
	healthChecker.AddCheck("query_executable", monitoring.ExecutableHealthCheck(tunnelCfg.QueryExe))
	healthChecker.AddCheck("config_dir", monitoring.DirectoryWritableHealthCheck(supervisor.ConfigDir()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"SAFENET_SERVER_ADDRESS": serverAddress,
		"SAFENET_DEVICE_POOL":    pool.Network(),
	}))

	go supervisor.RunPruner(ctx, config.GetEnvDuration("SAFENET_PRUNE_INTERVAL", 10*time.Minute))

	app := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)
	api.Register(app)

	serverConfig := server.DefaultConfig(serviceName, config.GetEnv("SAFENET_PORT", "18090"))
	if err := server.Serve(ctx, serverConfig, app, logger); err != nil {
		logger.WithError(err).Error("HTTP server failed")
	}

	if config.GetEnvBool("SAFENET_STOP_ON_EXIT", true) {
		stopCtx, cancel := context.WithTimeout(context.Background(), tunnelCfg.CleanupTimeout)
		defer cancel()
		name := config.GetEnv("SAFENET_TUNNEL_NAME", "safenet")
		if _, err := supervisor.StopAll(stopCtx, []string{name}); err != nil {
			logger.WithError(err).Warn("Failed to stop tunnel on exit")
		}
	}
}

func newTunnelMetrics(mc *monitoring.MetricsCollector) *tunnel.Metrics {
	return &tunnel.Metrics{
		Operations:        mc.NewCounter("tunnel_operations_total", "Tunnel supervisor operations by result", []string{"operation", "result"}),
		OperationDuration: mc.NewHistogram("tunnel_operation_duration_seconds", "Tunnel supervisor operation latency", []string{"operation"}, nil),
		State:             mc.NewGauge("tunnel_state", "Last observed service state code per tunnel, 0 when absent", []string{"tunnel"}),
		PrunedConfigs:     mc.NewCounter("tunnel_pruned_configs_total", "Configs removed by the failed-install pruner", nil),
	}
}

// openStore connects to Postgres when SAFENET_DATABASE_URL is set and falls
// back to the in-memory registry otherwise.
func openStore(ctx context.Context, logger logging.Logger, hc *monitoring.HealthChecker) registry.Store {
	url := config.GetEnv("SAFENET_DATABASE_URL", "")
	if url == "" {
		logger.Warn("SAFENET_DATABASE_URL not set, enrolled devices are kept in memory only")
		return registry.NewMemoryStore()
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = url
	dbCfg.MaxOpenConns = config.GetEnvInt("SAFENET_DATABASE_MAX_CONNS", dbCfg.MaxOpenConns)
	dbCfg.ConnectRetries = config.GetEnvInt("SAFENET_DATABASE_CONNECT_RETRIES", dbCfg.ConnectRetries)
	db, err := database.Connect(ctx, dbCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	hc.AddCheck("database", monitoring.DatabaseHealthCheck(db))

	store := registry.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to prepare device table")
	}
	return store
}
