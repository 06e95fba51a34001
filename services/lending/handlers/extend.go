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
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
	"github.com/AleutianAI/LendingDesk/services/lending/library"
	"github.com/AleutianAI/LendingDesk/services/lending/middleware"
	"github.com/AleutianAI/LendingDesk/services/lending/rules"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
	"github.com/AleutianAI/LendingDesk/services/lending/telemetry"
)

// ExtendStep1 lists a student's open loans with per-loan extension
// eligibility. Zero open loans is not an error.
func ExtendStep1(lib library.Service, store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ExtendStep1")
		defer span.End()

		var req nameRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please enter your name or student ID.")
			return
		}

		student, err := lib.FindStudent(ctx, req.Name)
		if errors.Is(err, library.ErrStudentNotFound) {
			fail(c, http.StatusNotFound, fmt.Sprintf("No student named %q was found. Please check the spelling.", req.Name))
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Student lookup failed", "error", err)
			internalError(c)
			return
		}

		loans, err := lib.OpenLoansForStudent(ctx, student.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Open loan lookup failed", "error", err, "student", student.ID)
			internalError(c)
			return
		}

		today := nowFunc()
		items := make([]gin.H, 0, len(loans))
		for _, loan := range loans {
			deadline := rules.CheckDeadline(loan.DueDate, today)
			items = append(items, gin.H{
				"id":         loan.ID,
				"title":      loan.BookTitle,
				"dueDate":    datatypes.DateString(loan.DueDate),
				"newDueDate": datatypes.DateString(rules.DueDateAfterExtend(loan.DueDate)),
				"isOverdue":  deadline.Overdue,
				"extensions": loan.Extensions,
				"canExtend":  rules.CanExtend(loan.DueDate, loan.Extensions, today),
			})
		}

		id := middleware.SessionID(c)
		st := session.State{
			Flow:      session.FlowExtend,
			Step:      session.StepLoansListed,
			Student:   &student,
			CreatedAt: today,
		}
		if !saveState(c, store, id, st) {
			return
		}

		message := fmt.Sprintf("%s, you have %d book(s) on loan. Which one would you like to extend?",
			student.Name, len(loans))
		if len(loans) == 0 {
			message = fmt.Sprintf("%s, you have no books on loan right now.", student.Name)
		}
		respondOK(c, message, gin.H{
			"student": studentPayload(student),
			"loans":   items,
			"step":    string(session.StepLoansListed),
		})
	}
}

// ExtendStep2 attempts the extension: the loan must belong to the named
// student, must not have been extended before, and today must be inside
// the extension window. Overdue alone does not block extension.
func ExtendStep2(lib library.Service, store session.Store, m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ExtendStep2")
		defer span.End()

		var req extendRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please select a loan and include your name.")
			return
		}

		student, err := lib.FindStudent(ctx, req.StudentName)
		if errors.Is(err, library.ErrStudentNotFound) {
			fail(c, http.StatusNotFound, fmt.Sprintf("No student named %q was found. Please check the spelling.", req.StudentName))
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Student lookup failed", "error", err)
			internalError(c)
			return
		}

		loan, err := lib.GetLoan(ctx, req.LoanID)
		if errors.Is(err, library.ErrLoanNotFound) {
			fail(c, http.StatusNotFound, "That loan could not be found.")
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Loan lookup failed", "error", err, "loan", req.LoanID)
			internalError(c)
			return
		}

		if !loan.ReferencesStudent(student.ID) {
			fail(c, http.StatusBadRequest, fmt.Sprintf("That loan does not belong to %s.", student.Name))
			return
		}
		if !loan.Open() {
			fail(c, http.StatusBadRequest, "That book has already been returned.")
			return
		}
		if loan.Extensions >= rules.MaxExtensions {
			fail(c, http.StatusBadRequest, "This loan has already been extended once. It cannot be extended again.")
			return
		}
		today := nowFunc()
		if !rules.CanExtendByDate(loan.DueDate, today) {
			windowStart := rules.ExtensionWindowStart(loan.DueDate)
			fail(c, http.StatusBadRequest,
				fmt.Sprintf("Extensions open %d days before the due date, on %s. Please try again then.",
					rules.ExtensionWindowDays, datatypes.FormatDueDate(windowStart)))
			return
		}

		updated, err := lib.ExtendLoan(ctx, loan)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Extension failed", "error", err, "loan", loan.ID)
			internalError(c)
			return
		}

		if id := middleware.SessionID(c); id != "" {
			if err := store.Delete(ctx, id); err != nil {
				slog.Warn("Failed to delete session after extension", "error", err)
			}
		}
		if m != nil {
			m.ExtensionsGrantedTotal.Add(ctx, 1)
			m.WorkflowsCompletedTotal.Add(ctx, 1, flowAttr(session.FlowExtend))
		}

		respondOK(c, fmt.Sprintf("The due date for %q has been extended to %s.",
			updated.BookTitle, datatypes.FormatDueDate(updated.DueDate)), gin.H{
			"step": string(session.StepCompleted),
			"loan": gin.H{
				"id":      updated.ID,
				"dueDate": datatypes.DateString(updated.DueDate),
			},
			"redirectToMain": true,
		})
	}
}
