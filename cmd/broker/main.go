// Command broker runs the multi-tenant, time-scheduled event broker: the
// HTTP/SSE API, the background scheduler, and the embedded store, wired
// together as a single process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warrenbroker/pkg/api"
	"github.com/cuemby/warrenbroker/pkg/clock"
	"github.com/cuemby/warrenbroker/pkg/eventlog"
	"github.com/cuemby/warrenbroker/pkg/events"
	"github.com/cuemby/warrenbroker/pkg/identity"
	"github.com/cuemby/warrenbroker/pkg/log"
	"github.com/cuemby/warrenbroker/pkg/metrics"
	"github.com/cuemby/warrenbroker/pkg/projection"
	"github.com/cuemby/warrenbroker/pkg/scheduler"
	"github.com/cuemby/warrenbroker/pkg/session"
	"github.com/cuemby/warrenbroker/pkg/storage"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "broker",
	Short: "Warren Broker - multi-tenant, time-scheduled event broker",
	Long: `Warren Broker enrolls users, accepts future-dated events, schedules
their publication against a network time source, and fans them out to
long-lived per-tenant SSE subscriptions. Every event is persisted in an
embedded key-value store so a restart never loses scheduled or
cancelled state.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"broker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.Flags().Int("port", 8080, "listen port")
	rootCmd.Flags().Int64("expiry", 3600, "bearer token lifetime in seconds")
	rootCmd.Flags().String("origin", "http://localhost:3000", "CORS allow-origin (\"*\" means any)")
	rootCmd.Flags().String("secret", "secret", "token signing key")
	rootCmd.Flags().String("connection", "http", "connection mode: http or https")
	rootCmd.Flags().String("key-path", "./broker.rsa", "TLS key path when connection=https")
	rootCmd.Flags().String("cert-path", "./broker.pem", "TLS cert path when connection=https")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	expiry, _ := cmd.Flags().GetInt64("expiry")
	origin, _ := cmd.Flags().GetString("origin")
	secret, _ := cmd.Flags().GetString("secret")
	connection, _ := cmd.Flags().GetString("connection")
	keyPath, _ := cmd.Flags().GetString("key-path")
	certPath, _ := cmd.Flags().GetString("cert-path")

	dataDir := os.Getenv("SAVE_PATH")
	if dataDir == "" {
		dataDir = "./tmp/broker_data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logger := log.WithComponent("main")

	// Store is opened exactly once per process and shared by every
	// component.
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info().Str("path", dataDir).Msg("store opened")

	netClock := clock.NewNetworkClock()
	bus := events.NewBus()

	identitySvc := identity.New(store)
	eventlogSvc := eventlog.New(store, identitySvc)
	projectionSvc := projection.New(store, identitySvc)
	sessionSvc := session.New(projectionSvc, bus)

	sched := scheduler.New(store, netClock, bus)
	sched.Start()
	logger.Info().Msg("scheduler started")

	collector := metrics.NewCollector(store, bus)
	collector.Start()
	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", true, "open")
	metrics.RegisterComponent("scheduler", true, "running")
	metrics.RegisterComponent("bus", true, "running")

	apiCfg := api.Config{
		Addr:       fmt.Sprintf(":%d", port),
		Origin:     origin,
		Secret:     secret,
		Expiry:     expiry,
		Connection: connection,
		KeyPath:    keyPath,
		CertPath:   certPath,
	}
	server := api.NewServer(apiCfg, identitySvc, eventlogSvc, projectionSvc, sessionSvc)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	metrics.RegisterComponent("api", true, "listening")

	logger.Info().Int("port", port).Str("connection", connection).Msg("broker ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("api server error")
	}

	sched.Stop()
	collector.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	if err := store.Flush(); err != nil {
		logger.Warn().Err(err).Msg("final flush failed")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
