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
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var resetSessionID string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Abandon a wizard session on the server",
	Long: `Posts to the server's reset endpoint. With --session, abandons that
specific session (the value of the browser's lending_session cookie);
without it, the call simply verifies the endpoint is reachable.`,
	RunE: runResetCommand,
}

func init() {
	resetCmd.Flags().StringVar(&resetSessionID, "session", "",
		"Session ID to abandon (from the lending_session cookie)")
	rootCmd.AddCommand(resetCmd)
}

func runResetCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/reset", nil)
	if err != nil {
		return fmt.Errorf("build reset request: %w", err)
	}
	if resetSessionID != "" {
		req.AddCookie(&http.Cookie{Name: "lending_session", Value: resetSessionID})
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	logger.Info("session reset", "session", resetSessionID)
	fmt.Fprintln(cmd.OutOrStdout(), "Reset OK")
	return nil
}
