package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/cellinlab/ipipo/internal/api/rest"
	"github.com/cellinlab/ipipo/internal/config"
	"github.com/cellinlab/ipipo/internal/database"
	"github.com/cellinlab/ipipo/internal/logger"
	"github.com/cellinlab/ipipo/internal/repository"
	"github.com/cellinlab/ipipo/internal/service"
	"github.com/cellinlab/ipipo/internal/store"
)

func main() {
	ctx := context.Background()

	// Load .env when present, then configuration from the environment
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("starting ipipo service",
		zap.String("environment", cfg.App.Environment),
		zap.String("store", cfg.App.StoreBackend))

	// Select the store backend
	var campaignStore store.Store
	var pingStore rest.PingFunc

	switch cfg.App.StoreBackend {
	case "postgres":
		db, err := database.NewDB(ctx, cfg, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zlog.Error("error closing database connections", zap.Error(err))
			}
		}()
		campaignStore = repository.NewPostgresStore(db.Postgres, zlog)
		pingStore = db.Postgres.PingContext
	case "memory":
		campaignStore = store.NewMemoryStore()
	default:
		zlog.Fatal("unknown store backend", zap.String("backend", cfg.App.StoreBackend))
	}

	accounting := service.NewAccountingService(campaignStore, cfg.Redeem.ProofDomains, zlog)

	// Build the router
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if cfg.Server.CORSOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.Server.CORSOrigins}
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Wallet-Address")
	router.Use(cors.New(corsCfg))

	handler := rest.NewHandler(accounting, pingStore, cfg.App.DefaultPageSize, cfg.App.MaxPageSize, zlog)
	rest.SetupRoutes(router, handler)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Serve HTTP/2 without TLS via h2c
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		zlog.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited gracefully")
}
