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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/LendingDesk/services/lending/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine() *gin.Engine {
	router := gin.New()
	SetupRoutes(router, Deps{Sessions: session.NewMemoryStore()})
	return router
}

func TestSetupRoutes_RegistersAllEndpoints(t *testing.T) {
	router := newTestEngine()

	want := map[string]string{
		"/api/health":                   http.MethodGet,
		"/api/reset":                    http.MethodPost,
		"/api/step1":                    http.MethodPost,
		"/api/step2":                    http.MethodPost,
		"/api/step3":                    http.MethodPost,
		"/api/step4":                    http.MethodPost,
		"/api/step5":                    http.MethodPost,
		"/api/return-step1":             http.MethodPost,
		"/api/return-step2":             http.MethodPost,
		"/api/return-step3":             http.MethodPost,
		"/api/return-step4":             http.MethodPost,
		"/api/extend-step1":             http.MethodPost,
		"/api/extend-step2":             http.MethodPost,
		"/api/debug/book/:bookId/loans": http.MethodGet,
	}

	registered := make(map[string]string)
	for _, route := range router.Routes() {
		registered[route.Path] = route.Method
	}
	for path, method := range want {
		assert.Equal(t, method, registered[path], "missing route %s", path)
	}
}

func TestSetupRoutes_Health(t *testing.T) {
	router := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
}

func TestSetupRoutes_UnknownAPIPathIsJSON404(t *testing.T) {
	router := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/nope", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestSetupRoutes_SessionCookieIssued(t *testing.T) {
	router := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/health", nil)
	router.ServeHTTP(w, req)

	found := false
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "lending_session" {
			found = true
		}
	}
	assert.True(t, found, "session cookie should be set on every response")
}
