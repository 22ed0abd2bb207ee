package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/chlear/crm/internal/config"
	"github.com/chlear/crm/internal/db"
	"github.com/chlear/crm/internal/export"
	"github.com/chlear/crm/internal/importer"
	"github.com/chlear/crm/internal/middleware"
	"github.com/chlear/crm/internal/repository"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	leadRepo := repository.NewLeadRepository(conn.Pool)
	stageRepo := repository.NewPipelineStageRepository(conn.Pool)
	importLogRepo := repository.NewImportLogRepository(conn.Pool)

	// Create services
	importService := importer.NewService(
		leadRepo,
		stageRepo,
		importLogRepo,
		importer.WithMaxFileBytes(cfg.Import.MaxFileBytes),
		importer.WithMaxRows(cfg.Import.MaxRows),
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithBatchTimeout(cfg.Import.BatchTimeout),
	)
	exportService := export.NewService(
		leadRepo,
		export.WithPageSize(cfg.Export.PageSize),
		export.WithMaxRows(cfg.Export.MaxRows),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.LoggingMiddleware(middleware.IdentityMiddleware(h)))
	}

	importHandler := wrap(importer.NewHTTPHandler(importService))

	mux := http.NewServeMux()
	mux.Handle("/import/leads", importHandler)
	mux.Handle("/import/leads/", importHandler)
	mux.Handle("/import/headers", importHandler)
	mux.Handle("/import/template", importHandler)
	mux.Handle("/import/history", importHandler)
	mux.Handle("/export/leads", wrap(export.NewHTTPHandler(exportService)))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting CRM import/export server on %s", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
