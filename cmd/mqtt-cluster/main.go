package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mqtt-cluster/config"
	"mqtt-cluster/internal/api"
	mqttpeer "mqtt-cluster/internal/broker/mqtt"
	natsbridge "mqtt-cluster/internal/broker/nats"
	"mqtt-cluster/internal/coordinator"
	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/metrics"
	"mqtt-cluster/internal/session"
	"mqtt-cluster/internal/storage"
	"mqtt-cluster/internal/storage/bolt"
	"mqtt-cluster/internal/storage/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "mqtt-cluster",
	Short: "Cluster coordinator for MQTT broker processes",
	RunE:  run,
}

var (
	configPath              string
	policyDirOverride       string
	workersOverride         int
	queueSizeOverride       int
	apiAddrOverride         string
	metricsAddrOverride     string
	metricsPathOverride     string
	metricsIntervalOverride time.Duration
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flags.StringVar(&policyDirOverride, "policies", "", "path to session policy directory (empty = use config)")

	// Optional override flags
	flags.IntVar(&workersOverride, "workers", 0, "override number of coordinator mailbox workers (0 = use config)")
	flags.IntVar(&queueSizeOverride, "queue-size", 0, "override size of the coordinator mailbox (0 = use config)")
	flags.StringVar(&apiAddrOverride, "api-addr", "", "override api server address (empty = use config)")
	flags.StringVar(&metricsAddrOverride, "metrics-addr", "", "override metrics server address (empty = use config)")
	flags.StringVar(&metricsPathOverride, "metrics-path", "", "override metrics endpoint path (empty = use config)")
	flags.DurationVar(&metricsIntervalOverride, "metrics-interval", 0, "override metrics collection interval (0 = use config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply any command line overrides
	cfg.ApplyOverrides(
		workersOverride,
		queueSizeOverride,
		apiAddrOverride,
		metricsAddrOverride,
		metricsPathOverride,
		metricsIntervalOverride,
	)
	if policyDirOverride != "" {
		cfg.Sessions.PolicyDir = policyDirOverride
	}

	// Initialize logger
	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsCollector *metrics.MetricsCollector
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector = metrics.NewMetricsCollector(metricsService, updateInterval)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Open history storage
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open storage", "error", err)
	}
	defer store.Close()

	// Load session policy
	users := cfg.Sessions.Users
	if cfg.Sessions.PolicyDir != "" {
		loaded, err := session.NewPolicyLoader(logger).LoadFromDirectory(cfg.Sessions.PolicyDir)
		if err != nil {
			logger.Fatal("failed to load session policies", "error", err)
		}
		users = append(users, loaded...)
	}
	policy, err := session.NewPolicy(users)
	if err != nil {
		logger.Fatal("invalid session policy", "error", err)
	}
	sessions := session.NewRegistry(policy, logger)
	defer sessions.Close()

	publisher, err := mqttpeer.NewPeerPublisher(cfg.Peer, logger, metricsService)
	if err != nil {
		logger.Fatal("failed to create peer publisher", "error", err)
	}

	// Optional NATS bridge for persisted records
	var bridge *natsbridge.EventBridge
	if cfg.NATS.Enabled {
		conn, err := natsbridge.Connect(cfg.NATS, logger)
		if err != nil {
			logger.Fatal("failed to connect to nats", "error", err)
		}
		bridge = natsbridge.NewEventBridge(conn, cfg.NATS.SubjectPrefix, logger)
		defer bridge.Close()
	}

	coordCfg := coordinator.Config{
		Workers:       cfg.Coordinator.Workers,
		QueueSize:     cfg.Coordinator.QueueSize,
		FlushDelay:    cfg.Coordinator.FlushDelayDuration(),
		FlushInterval: cfg.Coordinator.FlushIntervalDuration(),
	}
	repos := coordinator.Repositories{EventLogs: store, PublishMessages: store}

	directory := coordinator.NewDirectory(func(clusterID string) *coordinator.Coordinator {
		c := coordCfg
		c.ClusterID = clusterID

		var opts []coordinator.Option
		if metricsService != nil {
			opts = append(opts, coordinator.WithMetrics(metricsService))
		}
		if bridge != nil {
			opts = append(opts, coordinator.WithNotifier(bridge))
		}
		return coordinator.New(c, sessions, repos, publisher, logger, opts...)
	}, logger, coordinator.WithIdleTimeout(cfg.Coordinator.IdleTimeoutDuration()))

	// The configured cluster is active from startup
	directory.Coordinator(cfg.Cluster.ID)

	if metricsCollector != nil {
		metricsCollector.AddSource(directory.MetricsSource())
		metricsCollector.Start()
		defer metricsCollector.Stop()
	}

	apiServer := &http.Server{
		Addr:    cfg.API.Address,
		Handler: api.NewHandler(directory, logger),
	}
	go func() {
		logger.Info("starting api server", "address", cfg.API.Address)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", "error", err)
		}
	}()

	logger.Info("mqtt-cluster started",
		"cluster", cfg.Cluster.ID,
		"workers", cfg.Coordinator.Workers,
		"storage", cfg.Storage.Driver,
		"users", policy.Len(),
		"natsEnabled", cfg.NATS.Enabled,
		"metricsEnabled", cfg.Metrics.Enabled)

	// Setup signal handlers
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reopening logs")
			logger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown api server", "error", err)
			}

			// Final flush of every active cluster
			if err := directory.Close(shutdownCtx); err != nil {
				logger.Error("failed to persist pending records", "error", err)
			}

			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}

			cancel()
			return nil
		}
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.NewStore(ctx, cfg.Path, log)
	case "bolt":
		return bolt.NewStore(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
