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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthJSONOutput bool

// healthReport mirrors the server's /api/health payload.
type healthReport struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Config    struct {
		HasVisionKey    bool `json:"hasVisionKey"`
		HasAirtableKey  bool `json:"hasAirtableKey"`
		HasAirtableBase bool `json:"hasAirtableBase"`
	} `json:"config"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the lending server and its external credentials",
	Long: `Queries the server's health endpoint and reports which external
credentials (OCR key, record store key and base) are configured.

Examples:
  lendingdesk health           # Human-readable report
  lendingdesk health --json    # JSON output for scripting`,
	RunE: runHealthCommand,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.AddCommand(healthCmd)
}

func runHealthCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	url := serverURL + "/api/health"
	logger.Debug("checking server health", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	if healthJSONOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server:         %s (%s)\n", report.Status, serverURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Vision key:     %s\n", presence(report.Config.HasVisionKey))
	fmt.Fprintf(cmd.OutOrStdout(), "Airtable key:   %s\n", presence(report.Config.HasAirtableKey))
	fmt.Fprintf(cmd.OutOrStdout(), "Airtable base:  %s\n", presence(report.Config.HasAirtableBase))
	return nil
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "MISSING"
}
