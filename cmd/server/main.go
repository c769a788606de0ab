package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/gridplan/internal/config"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/logging"
	"github.com/copyleftdev/gridplan/internal/metrics"
	"github.com/copyleftdev/gridplan/internal/server"
	"github.com/copyleftdev/gridplan/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "gridplan",
		"env":     cfg.Environment,
	})

	ctxLogger := &logging.CtxLogger{Logger: serviceLogger}
	ctx = ctxLogger.WithContext(ctx)

	// Open the run store
	store, err := storage.NewStore(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		serviceLogger.Fatal("Failed to create store", map[string]interface{}{"error": err.Error()})
	}
	if err := store.Init(ctx); err != nil {
		serviceLogger.Fatal("Failed to initialize store", map[string]interface{}{
			"type":  cfg.Database.Type,
			"error": err.Error(),
		})
	}
	defer store.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		serviceLogger.Fatal("Failed to register metrics", map[string]interface{}{"error": err.Error()})
	}

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(apperrors.RecoveryMiddleware(serviceLogger))
	r.Use(apperrors.ErrorHandler(serviceLogger))
	r.Use(middleware.Timeout(60 * time.Second))

	// Add request ID to the request logger
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logging.FromContext(r.Context()).Logger.WithFields(map[string]interface{}{
				"request_id": middleware.GetReqID(r.Context()),
			})
			reqCtx := (&logging.CtxLogger{Logger: reqLogger}).WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(reqCtx))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("Health check")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := server.NewServer(cfg, serviceLogger, store, server.WithMetrics(m))
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address":  httpServer.Addr,
			"db_type":  cfg.Database.Type,
			"max_runs": cfg.Optimization.MaxConcurrentRuns,
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("Server stopped")

	// Running plans are cancelled and their final state recorded
	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("server exited properly")
}
