// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("lendingdesk.vision")

const defaultAnnotateURL = "https://vision.googleapis.com/v1/images:annotate"

// maxAnnotations caps the annotation count requested from the API.
const maxAnnotations = 50

// GoogleClient implements Extractor against the Google Cloud Vision
// images:annotate REST endpoint using TEXT_DETECTION.
type GoogleClient struct {
	httpClient  *http.Client
	annotateURL string
	key         *memguard.Enclave
	reqDuration metric.Float64Histogram
}

// SetRequestDuration wires a histogram that observes the wall time of
// every annotate call.
func (g *GoogleClient) SetRequestDuration(h metric.Float64Histogram) {
	g.reqDuration = h
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// NewGoogleClient builds a client from GOOGLE_CLOUD_API_KEY.
func NewGoogleClient() (*GoogleClient, error) {
	key := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_API_KEY"))
	if key == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_API_KEY environment variable not set")
	}
	slog.Info("Initializing Google Vision client")
	return &GoogleClient{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		annotateURL: defaultAnnotateURL,
		key:         memguard.NewEnclave([]byte(key)),
	}, nil
}

// NewGoogleClientForTesting builds a client pointed at a test server.
func NewGoogleClientForTesting(annotateURL, key string) *GoogleClient {
	return &GoogleClient{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		annotateURL: annotateURL,
		key:         memguard.NewEnclave([]byte(key)),
	}
}

// ExtractText implements the Extractor interface. Returns an empty
// string when the API detects no text in the image.
func (g *GoogleClient) ExtractText(ctx context.Context, image []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "GoogleClient.ExtractText")
	defer span.End()
	span.SetAttributes(attribute.Int("vision.image_bytes", len(image)))

	payload := annotateRequest{
		Requests: []annotateEntry{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []annotateFeature{{Type: "TEXT_DETECTION", MaxResults: maxAnnotations}},
		}},
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to marshal Vision request: %w", err)
	}

	keyBuf, err := g.key.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open API key enclave: %w", err)
	}
	reqURL := g.annotateURL + "?key=" + keyBuf.String()
	keyBuf.Destroy()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to create Vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if g.reqDuration != nil {
		g.reqDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Vision API call failed", "error", err)
		return "", fmt.Errorf("Vision API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("Vision API returned status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var annotated annotateResponse
	if err := json.Unmarshal(respBody, &annotated); err != nil {
		return "", fmt.Errorf("failed to decode Vision response: %w", err)
	}
	if len(annotated.Responses) == 0 {
		return "", nil
	}
	first := annotated.Responses[0]
	if first.Error != nil {
		err := fmt.Errorf("Vision API error %d: %s", first.Error.Code, first.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(first.TextAnnotations) == 0 {
		slog.Debug("Vision API detected no text")
		return "", nil
	}
	return first.TextAnnotations[0].Description, nil
}

// CandidateLines splits OCR output into trimmed non-trivial lines, in
// order. Lines of three characters or fewer are noise (spine marks,
// publisher logos) and are dropped. The threshold counts runes, not
// bytes, so short Japanese lines are noise too.
func CandidateLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > 3 {
			lines = append(lines, line)
		}
	}
	return lines
}
