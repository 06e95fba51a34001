// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
	"github.com/AleutianAI/LendingDesk/services/lending/middleware"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
	"github.com/AleutianAI/LendingDesk/services/lending/telemetry"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// testToday pins the clock for deterministic due dates.
var testToday = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func pinClock(t *testing.T) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return testToday }
	t.Cleanup(func() { nowFunc = prev })
}

// newTestMetrics builds a Metrics set backed by a manual reader so tests
// can assert recorded values.
func newTestMetrics(t *testing.T) (*telemetry.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	m, err := telemetry.NewMetrics(provider.Meter("handlers-test"))
	require.NoError(t, err)
	return m, reader
}

// counterValue sums every data point of the named int64 counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, met := range scope.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// mockExtractor implements vision.Extractor for handler testing.
type mockExtractor struct {
	Text string
	Err  error
}

func (m *mockExtractor) ExtractText(_ context.Context, _ []byte) (string, error) {
	return m.Text, m.Err
}

// mockLibrary implements library.Service with canned responses.
type mockLibrary struct {
	Book       datatypes.Book
	BookErr    error
	Available  bool
	Student    datatypes.Student
	StudentErr error
	OpenLoans  []datatypes.Loan
	LoansErr   error
	OpenLoan   datatypes.Loan
	OpenErr    error
	Loan       datatypes.Loan
	GetErr     error
	Created    datatypes.Loan
	CreateErr  error
	ReturnErr  error
	Extended   datatypes.Loan
	ExtendErr  error
	BookLoans  []datatypes.Loan

	CreateCalls int
	ReturnCalls int
	ExtendCalls int
}

func (m *mockLibrary) FindBookByCoverText(_ context.Context, _ string) (datatypes.Book, error) {
	return m.Book, m.BookErr
}

func (m *mockLibrary) FindStudent(_ context.Context, _ string) (datatypes.Student, error) {
	return m.Student, m.StudentErr
}

func (m *mockLibrary) OpenLoansForStudent(_ context.Context, _ string) ([]datatypes.Loan, error) {
	return m.OpenLoans, m.LoansErr
}

func (m *mockLibrary) IsBookAvailable(_ context.Context, _ string) bool {
	return m.Available
}

func (m *mockLibrary) FindOpenLoan(_ context.Context, _, _ string) (datatypes.Loan, error) {
	return m.OpenLoan, m.OpenErr
}

func (m *mockLibrary) GetLoan(_ context.Context, _ string) (datatypes.Loan, error) {
	return m.Loan, m.GetErr
}

func (m *mockLibrary) CreateLoan(_ context.Context, _ datatypes.Book, _ datatypes.Student, _ time.Time) (datatypes.Loan, error) {
	m.CreateCalls++
	return m.Created, m.CreateErr
}

func (m *mockLibrary) CompleteReturn(_ context.Context, _ datatypes.Loan, _ datatypes.Book, _ time.Time) error {
	m.ReturnCalls++
	return m.ReturnErr
}

func (m *mockLibrary) ExtendLoan(_ context.Context, _ datatypes.Loan) (datatypes.Loan, error) {
	m.ExtendCalls++
	return m.Extended, m.ExtendErr
}

func (m *mockLibrary) LoansForBook(_ context.Context, _ string) ([]datatypes.Loan, error) {
	return m.BookLoans, nil
}

// createTestRouter builds a router with the session middleware mounted,
// matching production wiring.
func createTestRouter(register func(r *gin.Engine)) *gin.Engine {
	router := gin.New()
	router.Use(middleware.SessionCookie())
	register(router)
	return router
}

// performJSON posts a JSON body, carrying the given session cookie.
func performJSON(router *gin.Engine, path string, body interface{}, sessionID string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(http.MethodPost, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: sessionID})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// performImage posts a multipart cover photo.
func performImage(router *gin.Engine, path string, image []byte, sessionID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if image != nil {
		part, _ := mw.CreateFormFile(imageFormField, "cover.jpg")
		_, _ = part.Write(image)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: sessionID})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeEnvelope parses the {success, message, data} response body.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func envelopeData(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response should carry a data object")
	return data
}

// seedSession plants state under a fixed session ID.
func seedSession(t *testing.T, store session.Store, id string, st session.State) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), id, st))
}

// Common fixtures.
var (
	testBook    = datatypes.Book{ID: "recBook1", Title: "Sample Book", Author: "A. Writer", Status: datatypes.StatusAvailable}
	testStudent = datatypes.Student{ID: "recStu1", Name: "Alice", StudentID: "S001"}
)
