/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the product engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Build the zap logger
  3. Initialize SQLite store
  4. Load product definition files into the store
  5. Create the runner, API handler and router
  6. Start the event scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides the configuration
  -db      SQLite database path, overrides the configuration
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler after its current tick
  2. Stop accepting new connections
  3. Wait for active requests to complete (shutdown_timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/products.db"

  # Run with a config file and definitions directory
  ./server -config=./config.yaml

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  Every configuration key can be set as PRODUCT_ENGINE_<SECTION>_<KEY>,
  for example PRODUCT_ENGINE_LOG_LEVEL=debug. See config/config.go.

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - host/runner.go: Hook runner
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/product-engine/api"
	"github.com/warp/product-engine/config"
	"github.com/warp/product-engine/factory"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/host"
	"github.com/warp/product-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := host.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()

	if err := loadDefinitions(context.Background(), store, cfg.Products, logger); err != nil {
		logger.Fatal("failed to load product definitions", zap.Error(err))
	}

	runner := host.NewRunner(store,
		host.WithLogger(logger),
		host.WithSettlementAccount(generic.AccountID(cfg.Scheduler.SettlementAccount)),
	)
	handler := api.NewHandler(runner, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins...)

	scheduler := api.NewEventScheduler(runner, logger)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// loadDefinitions stores every definition file named in the configuration.
// A definition that fails validation stops startup.
func loadDefinitions(ctx context.Context, store generic.DefinitionStore, products config.Products, logger *zap.Logger) error {
	files := append([]string(nil), products.DefinitionFiles...)
	if products.DefinitionsDir != "" {
		for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(products.DefinitionsDir, pattern))
			if err != nil {
				return err
			}
			files = append(files, matches...)
		}
	}
	sort.Strings(files)

	f := factory.NewDefinitionFactory()
	for _, path := range files {
		def, err := f.LoadFile(path)
		if err != nil {
			return err
		}
		def.CreatedAt = time.Now()
		if err := store.SaveDefinition(ctx, *def); err != nil {
			return fmt.Errorf("save definition %s: %w", def.ID, err)
		}
		logger.Info("definition loaded",
			zap.String("id", def.ID),
			zap.String("product", string(def.ProductID)),
			zap.String("file", path))
	}
	return nil
}
