// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/LendingDesk/services/airtable"
	"github.com/AleutianAI/LendingDesk/services/lending/library"
	"github.com/AleutianAI/LendingDesk/services/lending/routes"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
	"github.com/AleutianAI/LendingDesk/services/lending/telemetry"
	"github.com/AleutianAI/LendingDesk/services/vision"
)

func main() {
	port := os.Getenv("LENDING_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter("lendingdesk"))
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	dbPath := os.Getenv("SESSION_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/sessions"
	}
	store, err := session.OpenBadgerStore(session.DefaultBadgerConfig(dbPath))
	if err != nil {
		log.Fatalf("failed to open session store at %s: %v", dbPath, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("session store close failed", "error", err)
		}
	}()

	airtableClient, err := airtable.NewClient()
	if err != nil {
		log.Fatalf("failed to configure Airtable client: %v", err)
	}
	visionClient, err := vision.NewGoogleClient()
	if err != nil {
		log.Fatalf("failed to configure Vision client: %v", err)
	}
	airtableClient.SetRequestDuration(metrics.AirtableRequestDuration)
	visionClient.SetRequestDuration(metrics.OCRRequestDuration)

	lib := library.New(airtableClient, library.TablesFromEnv())

	router := gin.Default()
	router.MaxMultipartMemory = 10 << 20
	router.Use(otelgin.Middleware("lending-service"))

	routes.SetupRoutes(router, routes.Deps{
		Library:   lib,
		Extractor: visionClient,
		Sessions:  store,
		Metrics:   metrics,
		UIDir:     os.Getenv("UI_DIR"),
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting the lending server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down the lending server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
