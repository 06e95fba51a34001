// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/LendingDesk/services/lending/handlers"
	"github.com/AleutianAI/LendingDesk/services/lending/library"
	"github.com/AleutianAI/LendingDesk/services/lending/middleware"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
	"github.com/AleutianAI/LendingDesk/services/lending/telemetry"
	"github.com/AleutianAI/LendingDesk/services/vision"
)

// uploadRatePerSecond throttles the OCR-backed image endpoints per session.
const (
	uploadRatePerSecond = 0.5
	uploadRateBurst     = 3
)

// Deps carries the collaborators the route handlers need.
type Deps struct {
	Library   library.Service
	Extractor vision.Extractor
	Sessions  session.Store
	Metrics   *telemetry.Metrics

	// UIDir is the directory served under /ui. Empty disables the static UI.
	UIDir string
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.SessionCookie())
	if deps.Metrics != nil {
		router.Use(middleware.RequestMetrics(deps.Metrics))
	}

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	if deps.UIDir != "" {
		router.StaticFS("/ui", http.Dir(deps.UIDir))
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/ui/index.html")
		})
	}

	uploadLimit := middleware.RateLimit(uploadRatePerSecond, uploadRateBurst)

	api := router.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck())
		api.POST("/reset", handlers.Reset(deps.Sessions))

		// Borrow flow
		api.POST("/step1", uploadLimit, handlers.Step1(deps.Extractor, deps.Library, deps.Sessions))
		api.POST("/step2", handlers.Step2(deps.Sessions))
		api.POST("/step3", handlers.Step3(deps.Library, deps.Sessions))
		api.POST("/step4", handlers.Step4(deps.Sessions))
		api.POST("/step5", handlers.Step5(deps.Library, deps.Sessions, deps.Metrics))

		// Return flow
		api.POST("/return-step1", uploadLimit, handlers.ReturnStep1(deps.Extractor, deps.Library, deps.Sessions))
		api.POST("/return-step2", handlers.ReturnStep2(deps.Sessions))
		api.POST("/return-step3", handlers.ReturnStep3(deps.Library, deps.Sessions))
		api.POST("/return-step4", handlers.ReturnStep4(deps.Library, deps.Sessions, deps.Metrics))

		// Extend flow
		api.POST("/extend-step1", handlers.ExtendStep1(deps.Library, deps.Sessions))
		api.POST("/extend-step2", handlers.ExtendStep2(deps.Library, deps.Sessions, deps.Metrics))

		api.GET("/debug/book/:bookId/loans", handlers.DebugBookLoans(deps.Library))
	}

	// Unknown /api/* paths get a JSON 404 instead of the default body.
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			handlers.APINotFound(c)
			return
		}
		c.Status(http.StatusNotFound)
	})
}
