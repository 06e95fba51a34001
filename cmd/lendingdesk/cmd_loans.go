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

var loansCmd = &cobra.Command{
	Use:   "loans <bookRecordId>",
	Short: "List all loan records for a book",
	Long: `Lists every loan record referencing a book, open or closed, via the
server's debug endpoint. Useful when a book reports as unavailable and the
status flag disagrees with the loan history.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoansCommand,
}

func init() {
	rootCmd.AddCommand(loansCmd)
}

func runLoansCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/debug/book/%s/loans", serverURL, args[0])
	logger.Debug("listing loans", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build loans request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("loans request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var body struct {
		Data struct {
			Count int `json:"count"`
			Loans []struct {
				ID           string `json:"id"`
				Status       string `json:"status"`
				LoanDate     string `json:"loanDate"`
				DueDate      string `json:"dueDate"`
				ReturnedDate string `json:"returnedDate"`
				Extensions   int    `json:"extensions"`
				Open         bool   `json:"open"`
			} `json:"loans"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode loans response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d loan record(s) for %s\n", body.Data.Count, args[0])
	for _, loan := range body.Data.Loans {
		state := "closed"
		if loan.Open {
			state = "OPEN"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-6s  out %s  due %s  ext %d",
			loan.ID, state, loan.LoanDate, loan.DueDate, loan.Extensions)
		if loan.ReturnedDate != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  returned %s", loan.ReturnedDate)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}
