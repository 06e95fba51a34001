// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the lending service.
//
// Provides standard counters and histograms for HTTP requests, workflow
// completions, and the two external dependencies (Airtable and the OCR
// backend). All metrics use the "lending_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks currently active HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Workflow Metrics ---

	// WorkflowsCompletedTotal counts finished workflows by flow.
	WorkflowsCompletedTotal metric.Int64Counter

	// LoansCreatedTotal counts loan records created.
	LoansCreatedTotal metric.Int64Counter

	// ReturnsCompletedTotal counts loans closed out.
	ReturnsCompletedTotal metric.Int64Counter

	// ExtensionsGrantedTotal counts due-date extensions granted.
	ExtensionsGrantedTotal metric.Int64Counter

	// --- External Dependency Metrics ---

	// AirtableRequestDuration records Airtable API call duration in seconds.
	AirtableRequestDuration metric.Float64Histogram

	// OCRRequestDuration records text extraction call duration in seconds.
	OCRRequestDuration metric.Float64Histogram

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered
// against the provided meter. Returns an error if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"lending_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"lending_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"lending_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	m.WorkflowsCompletedTotal, err = meter.Int64Counter(
		"lending_workflows_completed_total",
		metric.WithDescription("Finished lending workflows by flow"),
		metric.WithUnit("{workflow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create workflows_completed_total: %w", err)
	}

	m.LoansCreatedTotal, err = meter.Int64Counter(
		"lending_loans_created_total",
		metric.WithDescription("Loan records created"),
		metric.WithUnit("{loan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create loans_created_total: %w", err)
	}

	m.ReturnsCompletedTotal, err = meter.Int64Counter(
		"lending_returns_completed_total",
		metric.WithDescription("Loans closed out"),
		metric.WithUnit("{loan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create returns_completed_total: %w", err)
	}

	m.ExtensionsGrantedTotal, err = meter.Int64Counter(
		"lending_extensions_granted_total",
		metric.WithDescription("Due-date extensions granted"),
		metric.WithUnit("{extension}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create extensions_granted_total: %w", err)
	}

	m.AirtableRequestDuration, err = meter.Float64Histogram(
		"lending_airtable_request_duration_seconds",
		metric.WithDescription("Airtable API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create airtable_request_duration: %w", err)
	}

	m.OCRRequestDuration, err = meter.Float64Histogram(
		"lending_ocr_request_duration_seconds",
		metric.WithDescription("Text extraction call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create ocr_request_duration: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"lending_errors_total",
		metric.WithDescription("Total errors by type and component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}
