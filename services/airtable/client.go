// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package airtable is a thin client for the Airtable REST API.
//
// The service treats Airtable as an opaque keyed-record store: filtered
// lookups via filterByFormula, single-record gets, record creation, and
// field-level patches. Nothing here knows about books or loans; the
// lending service layers its schema on top.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("lendingdesk.airtable")

const defaultBaseURL = "https://api.airtable.com/v0"

// ErrNotFound is returned by FindOne and Get when no record matches.
var ErrNotFound = errors.New("airtable: record not found")

// UnprocessableError is returned when Airtable rejects a write payload
// with HTTP 422, typically a select-field value outside the configured
// vocabulary. The workflow surfaces this to the caller instead of
// guessing alternate values at request time.
type UnprocessableError struct {
	Type    string
	Message string
}

func (e *UnprocessableError) Error() string {
	return fmt.Sprintf("airtable: unprocessable entity (%s): %s", e.Type, e.Message)
}

// Record is a single Airtable record. Fields keys are the raw column
// labels as configured in the base; see the datatypes package for
// normalization into canonical DTOs.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

type recordList struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to one Airtable base. The API key is held in a memguard
// enclave and only materialized for the duration of a request.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	baseID      string
	key         *memguard.Enclave
	reqDuration metric.Float64Histogram
}

// SetRequestDuration wires a histogram that observes the wall time of
// every API call, labeled by HTTP method and response status.
func (c *Client) SetRequestDuration(h metric.Float64Histogram) {
	c.reqDuration = h
}

// NewClient builds a client from AIRTABLE_API_KEY and AIRTABLE_BASE_ID.
func NewClient() (*Client, error) {
	key := strings.TrimSpace(os.Getenv("AIRTABLE_API_KEY"))
	baseID := strings.TrimSpace(os.Getenv("AIRTABLE_BASE_ID"))
	if key == "" {
		return nil, fmt.Errorf("AIRTABLE_API_KEY environment variable not set")
	}
	if baseID == "" {
		return nil, fmt.Errorf("AIRTABLE_BASE_ID environment variable not set")
	}
	slog.Info("Initializing Airtable client", "base_id", baseID)
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		baseID:     baseID,
		key:        memguard.NewEnclave([]byte(key)),
	}, nil
}

// NewClientForTesting builds a client pointed at a test server.
func NewClientForTesting(baseURL, baseID, key string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		baseID:     baseID,
		key:        memguard.NewEnclave([]byte(key)),
	}
}

func (c *Client) tableURL(table string) string {
	return c.baseURL + "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(table)
}

// observe records one API call on the wired histogram, if any. A status
// of 0 means the transport failed before a response arrived.
func (c *Client) observe(ctx context.Context, method string, status int, start time.Time) {
	if c.reqDuration == nil {
		return
	}
	c.reqDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.Int("http.status_code", status),
	))
}

// do executes one authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal Airtable request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create Airtable request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	keyBuf, err := c.key.Open()
	if err != nil {
		return fmt.Errorf("failed to open API key enclave: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+keyBuf.String())
	keyBuf.Destroy()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(ctx, method, 0, start)
		return fmt.Errorf("Airtable API call failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(ctx, method, resp.StatusCode, start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Airtable response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var ae apiError
		_ = json.Unmarshal(respBody, &ae)
		slog.Error("Airtable rejected write payload",
			"type", ae.Error.Type, "message", ae.Error.Message)
		return &UnprocessableError{Type: ae.Error.Type, Message: ae.Error.Message}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var ae apiError
		_ = json.Unmarshal(respBody, &ae)
		return fmt.Errorf("Airtable API returned status %d: %s", resp.StatusCode, ae.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode Airtable response: %w", err)
		}
	}
	return nil
}

// List returns records from table matching formula, following the offset
// cursor until the listing is exhausted. Airtable pages at 100 records,
// so a single page is never the whole table. An empty formula matches
// everything; max > 0 caps the total, max <= 0 means no cap.
func (c *Client) List(ctx context.Context, table, formula string, max int) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "airtable.List")
	defer span.End()
	span.SetAttributes(attribute.String("airtable.table", table))

	var records []Record
	offset := ""
	for {
		q := url.Values{}
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		if max > 0 {
			q.Set("maxRecords", strconv.Itoa(max))
		}
		if offset != "" {
			q.Set("offset", offset)
		}
		listURL := c.tableURL(table)
		if enc := q.Encode(); enc != "" {
			listURL += "?" + enc
		}

		var list recordList
		if err := c.do(ctx, http.MethodGet, listURL, nil, &list); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		records = append(records, list.Records...)
		if max > 0 && len(records) >= max {
			return records[:max], nil
		}
		if list.Offset == "" {
			return records, nil
		}
		offset = list.Offset
	}
}

// FindOne returns the first record matching formula, or ErrNotFound.
func (c *Client) FindOne(ctx context.Context, table, formula string) (*Record, error) {
	records, err := c.List(ctx, table, formula, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// Get fetches a single record by ID.
func (c *Client) Get(ctx context.Context, table, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "airtable.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("airtable.table", table),
		attribute.String("airtable.record_id", id),
	)

	var rec Record
	if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"/"+url.PathEscape(id), nil, &rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &rec, nil
}

// Create inserts one record and returns it with its assigned ID.
func (c *Client) Create(ctx context.Context, table string, fields map[string]any) (*Record, error) {
	ctx, span := tracer.Start(ctx, "airtable.Create")
	defer span.End()
	span.SetAttributes(attribute.String("airtable.table", table))

	body := map[string]any{
		"records": []map[string]any{{"fields": fields}},
	}
	var list recordList
	if err := c.do(ctx, http.MethodPost, c.tableURL(table), body, &list); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(list.Records) == 0 {
		return nil, fmt.Errorf("Airtable create returned no records")
	}
	slog.Info("Created Airtable record", "table", table, "id", list.Records[0].ID)
	return &list.Records[0], nil
}

// Patch updates the given fields on one record, leaving others untouched.
func (c *Client) Patch(ctx context.Context, table, id string, fields map[string]any) (*Record, error) {
	ctx, span := tracer.Start(ctx, "airtable.Patch")
	defer span.End()
	span.SetAttributes(
		attribute.String("airtable.table", table),
		attribute.String("airtable.record_id", id),
	)

	body := map[string]any{"fields": fields}
	var rec Record
	if err := c.do(ctx, http.MethodPatch, c.tableURL(table)+"/"+url.PathEscape(id), body, &rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &rec, nil
}
