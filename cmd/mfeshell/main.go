// Mfeshell is the micro-frontend shell orchestration daemon.
//
// It loads a module manifest, drives module lifecycles as navigation
// changes, and exposes an HTTP API for health, metrics, and navigation.
//
// Usage:
//
//	# Start with defaults (manifest from ./mfe-manifest.json)
//	mfeshell
//
//	# Explicit config file
//	mfeshell -config /etc/mfeshell/config.yaml
//
//	# Configure via environment
//	MFESHELL_SERVER_PORT=9290 MFESHELL_MANIFEST_SOURCE=/srv/manifest.json mfeshell
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/auth"
	"github.com/fyrsmithlabs/mfeshell/internal/config"
	"github.com/fyrsmithlabs/mfeshell/internal/eventbus"
	"github.com/fyrsmithlabs/mfeshell/internal/loader"
	"github.com/fyrsmithlabs/mfeshell/internal/logging"
	"github.com/fyrsmithlabs/mfeshell/internal/manifest"
	"github.com/fyrsmithlabs/mfeshell/internal/routes"
	"github.com/fyrsmithlabs/mfeshell/internal/sharedstate"
	"github.com/fyrsmithlabs/mfeshell/internal/shell"
	"github.com/fyrsmithlabs/mfeshell/internal/statecache"
	"github.com/fyrsmithlabs/mfeshell/internal/styles"
	"github.com/fyrsmithlabs/mfeshell/internal/telemetry"
	"github.com/fyrsmithlabs/mfeshell/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  mfeshell           Start the shell daemon\n")
			fmt.Fprintf(os.Stderr, "  mfeshell version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("mfeshell by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run initializes everything and blocks until ctx is cancelled:
//  1. Configuration, logger, telemetry
//  2. Infrastructure (NATS bridge, manifest load + watch)
//  3. Shell services (bus, cache, shared state, routes, loader)
//  4. HTTP server
//  5. Graceful shutdown in reverse order
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetry.Version = version
	tel, err := telemetry.New(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "starting mfeshell",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("manifest_source", cfg.Manifest.Source),
	)

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Int("manifest_modules", len(deps.manifests.Current().MFEs)),
	)

	controller := initShell(cfg, deps, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		controller.Shutdown(shutdownCtx)
	}()

	if deps.watcher != nil {
		deps.watcher.OnReload(func(reloadCtx context.Context) {
			if err := controller.Refresh(reloadCtx); err != nil {
				logger.Error(reloadCtx, "post-reload refresh failed", zap.Error(err))
			}
		})
		if err := deps.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start manifest watcher: %w", err)
		}
	}

	srv := server.New(cfg, controller, deps.manifests, logger)
	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("api_prefix", "/api/v1"),
	)

	return srv.Start(ctx)
}

// dependencies holds infrastructure the shell is built on.
type dependencies struct {
	natsConn  *nats.Conn
	bridge    *eventbus.Bridge
	bus       *eventbus.Bus
	manifests *manifest.Store
	watcher   *manifest.Watcher
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.bridge != nil {
		_ = d.bridge.Close()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// initDependencies loads the manifest and connects the event bus to NATS
// when the bridge is enabled.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	bus := eventbus.New(logger)
	bus.SetMetrics(eventbus.NewMetrics())

	manifestLoader := manifest.NewLoader(cfg.Manifest.FetchTimeout, cfg.Manifest.StrictRoutes)
	m, err := manifestLoader.Load(ctx, cfg.Manifest.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	store := manifest.NewStore(m)

	deps := &dependencies{
		bus:       bus,
		manifests: store,
	}

	if cfg.Manifest.Watch && !isHTTPSource(cfg.Manifest.Source) {
		watcher, err := manifest.NewWatcher(cfg.Manifest.Source, manifestLoader, store, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create manifest watcher: %w", err)
		}
		deps.watcher = watcher
	}

	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		logger.Info(ctx, "connected to NATS", zap.String("url", cfg.NATS.URL))

		bridge := eventbus.NewBridge(bus, nc, cfg.NATS.SubjectPrefix, logger)
		bridge.SetMetrics(eventbus.NewMetrics())
		if err := bridge.Start(
			eventbus.EventNotificationShow,
			eventbus.EventAuthChanged,
			eventbus.EventNavigationChanged,
			eventbus.EventRoutesRegistered,
			eventbus.EventRoutesUnregistered,
		); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to start NATS bridge: %w", err)
		}
		deps.natsConn = nc
		deps.bridge = bridge
	}

	return deps, nil
}

// initShell assembles the loader and controller on top of the
// infrastructure.
func initShell(cfg *config.Config, deps *dependencies, logger *logging.Logger) *shell.Controller {
	cache := statecache.NewStore(cfg.Cache.Capacity, cfg.Cache.TTL)
	cache.SetMetrics(statecache.NewMetrics())
	shared := sharedstate.NewStore(cfg.Shell.Theme)
	routeReg := routes.NewRegistry(deps.bus)

	artifactDir := cfg.Loader.ArtifactDir
	if artifactDir == "" {
		artifactDir = filepath.Join(os.TempDir(), "mfeshell-artifacts")
	}
	resolver := loader.NewMultiResolver(
		loader.NewBuiltinRegistry(),
		loader.NewPluginResolver(artifactDir, cfg.Loader.ResolveTimeout, logger),
	)

	ldr := loader.New(resolver, styles.NewManager(nil, logger), routeReg, logger)
	ldr.SetMaxIdle(cfg.Loader.MaxIdle)

	// Local operator identity; a real deployment swaps in its own
	// auth.Provider.
	authProvider := auth.NewStaticProvider(auth.User{
		ID:   "local-operator",
		Name: "Local Operator",
	}, "")

	return shell.New(deps.manifests, ldr, routeReg, deps.bus, authProvider, cache, shared, logger, shell.Options{
		ContainerID:  cfg.Shell.Container,
		Theme:        cfg.Shell.Theme,
		FeatureFlags: cfg.Shell.FeatureFlags,
	})
}

func isHTTPSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
