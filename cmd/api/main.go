// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/approval-engine/internal/approval"
	"github.com/adiadia/approval-engine/internal/auth"
	"github.com/adiadia/approval-engine/internal/config"
	"github.com/adiadia/approval-engine/internal/logging"
	"github.com/adiadia/approval-engine/internal/persistence/postgres"
	"github.com/adiadia/approval-engine/internal/repository"
	httptransport "github.com/adiadia/approval-engine/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	} else if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	if cfg.SessionSecret == "" {
		logger.Warn("session_secret is empty; every approval request will be rejected")
	}
	if cfg.AdminToken == "" {
		logger.Warn("admin_token is empty; approval line administration is disabled")
	}

	documents := repository.NewDocumentRepository(pool, logger)
	boxes := repository.NewBoxRepository(pool, logger)
	lines := repository.NewLineRepository(pool, logger)
	events := repository.NewEventRepository(pool, logger)
	directory := repository.NewDirectoryRepository(pool, logger)

	svc := approval.NewService(documents, boxes, lines, events, directory, logger)
	lineAdmin := approval.NewLineAdmin(lines, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		Approvals:      svc,
		Lines:          lineAdmin,
		Sessions:       auth.NewSessions(cfg.SessionSecret, cfg.SessionIssuer),
		Health:         postgres.NewSchemaHealthChecker(pool),
		Logger:         logger,
		AdminToken:     cfg.AdminToken,
		RequestsPerMin: cfg.RequestsPerMin,
		Version:        Version,
		Commit:         Commit,
		BuildDate:      BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"env", cfg.Env,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
