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
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
	"github.com/AleutianAI/LendingDesk/services/lending/library"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
)

// HealthCheck reports liveness plus which external credentials are present,
// so a misconfigured deployment is visible without tailing logs.
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"timestamp": nowFunc().UTC().Format(time.RFC3339),
			"config": gin.H{
				"hasVisionKey":    os.Getenv("GOOGLE_CLOUD_API_KEY") != "",
				"hasAirtableKey":  os.Getenv("AIRTABLE_API_KEY") != "",
				"hasAirtableBase": os.Getenv("AIRTABLE_BASE_ID") != "",
			},
		})
	}
}

// Reset abandons whatever flow the session was in. Deleting an absent
// session is fine; reset always lands on the initial menu.
func Reset(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		cancelSession(c, store)
	}
}

// DebugBookLoans lists every loan record referencing a book, open or not.
// Meant for diagnosing availability disputes against the record store.
func DebugBookLoans(lib library.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "DebugBookLoans")
		defer span.End()

		bookID := c.Param("bookId")
		loans, err := lib.LoansForBook(ctx, bookID)
		if err != nil {
			slog.Error("Loan listing failed", "error", err, "book", bookID)
			internalError(c)
			return
		}

		items := make([]gin.H, 0, len(loans))
		for _, loan := range loans {
			item := gin.H{
				"id":         loan.ID,
				"status":     loan.Status,
				"loanDate":   datatypes.DateString(loan.LoanDate),
				"dueDate":    datatypes.DateString(loan.DueDate),
				"extensions": loan.Extensions,
				"studentIds": loan.StudentIDs,
				"open":       loan.Open(),
			}
			if loan.ReturnedDate != nil {
				item["returnedDate"] = datatypes.DateString(*loan.ReturnedDate)
			}
			items = append(items, item)
		}

		respondOK(c, "", gin.H{
			"bookId": bookID,
			"count":  len(items),
			"loans":  items,
		})
	}
}

// APINotFound keeps unknown /api/* paths from falling through to the
// static-file 404 page.
func APINotFound(c *gin.Context) {
	fail(c, http.StatusNotFound, "Not found.")
}
