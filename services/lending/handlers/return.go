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

	"github.com/AleutianAI/LendingDesk/services/airtable"
	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
	"github.com/AleutianAI/LendingDesk/services/lending/library"
	"github.com/AleutianAI/LendingDesk/services/lending/middleware"
	"github.com/AleutianAI/LendingDesk/services/lending/rules"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
	"github.com/AleutianAI/LendingDesk/services/lending/telemetry"
	"github.com/AleutianAI/LendingDesk/services/vision"
)

// ReturnStep1 handles the return flow's cover photo upload. Only a book
// whose status label says it is out on loan can start a return.
func ReturnStep1(ext vision.Extractor, lib library.Service, store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ReturnStep1")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		book, ok := findBookFromUpload(c, ext, lib)
		if !ok {
			return
		}

		if book.Status != datatypes.StatusOnLoan {
			failData(c, http.StatusBadRequest,
				fmt.Sprintf("%q is not currently on loan (status: %s).", book.Title, book.Status),
				gin.H{"book": bookPayload(book)})
			return
		}

		id := middleware.SessionID(c)
		st := session.State{
			Flow:      session.FlowReturn,
			Step:      session.StepBookFound,
			Book:      &book,
			CreatedAt: nowFunc(),
		}
		if !saveState(c, store, id, st) {
			span.SetStatus(codes.Error, "session save failed")
			return
		}

		respondOK(c, fmt.Sprintf("Found %q. Would you like to return it?", book.Title), gin.H{
			"book":       bookPayload(book),
			"step":       string(session.StepBookFound),
			"nextAction": "return_or_cancel",
		})
	}
}

// ReturnStep2 confirms the return intent.
func ReturnStep2(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please choose return or cancel.")
			return
		}
		if req.Action == ActionCancel {
			cancelSession(c, store)
			return
		}
		if req.Action != ActionReturn {
			fail(c, http.StatusBadRequest, "Please choose return or cancel.")
			return
		}

		id, st, ok := currentState(c, store)
		if !ok {
			return
		}
		if st.Flow != session.FlowReturn || !st.HasBook() {
			invalidSession(c)
			return
		}

		st.Step = session.StepNameRequest
		if !saveState(c, store, id, st) {
			return
		}
		respondOK(c, "What is your name or student ID?", gin.H{
			"book": bookPayload(*st.Book),
			"step": string(session.StepNameRequest),
		})
	}
}

// ReturnStep3 resolves the borrower, finds their open loan for the book,
// and reports the deadline status.
func ReturnStep3(lib library.Service, store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ReturnStep3")
		defer span.End()

		var req nameRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please enter your name or student ID.")
			return
		}

		id, st, ok := currentState(c, store)
		if !ok {
			return
		}
		if st.Flow != session.FlowReturn || !st.HasBook() {
			invalidSession(c)
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

		loan, err := lib.FindOpenLoan(ctx, st.Book.ID, student.ID)
		if errors.Is(err, library.ErrLoanNotFound) {
			fail(c, http.StatusNotFound,
				fmt.Sprintf("No open loan of %q was found for %s.", st.Book.Title, student.Name))
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Loan lookup failed", "error", err, "book", st.Book.ID, "student", student.ID)
			internalError(c)
			return
		}

		st.Student = &student
		st.Loan = &loan
		st.Step = session.StepCheckDeadline
		if !saveState(c, store, id, st) {
			return
		}

		deadline := rules.CheckDeadline(loan.DueDate, nowFunc())
		var message string
		switch {
		case deadline.Overdue:
			message = fmt.Sprintf("This book was due on %s, %d days ago. Thank you for bringing it back. Return it now?",
				datatypes.FormatDueDate(loan.DueDate), -deadline.DaysRemaining)
		case deadline.Early:
			message = fmt.Sprintf("This book is not due until %s, but returning early is always welcome. Return it now?",
				datatypes.FormatDueDate(loan.DueDate))
		default:
			message = fmt.Sprintf("This book is due on %s. Return it now?",
				datatypes.FormatDueDate(loan.DueDate))
		}

		respondOK(c, message, gin.H{
			"student":       studentPayload(student),
			"dueDate":       datatypes.DateString(loan.DueDate),
			"daysRemaining": deadline.DaysRemaining,
			"isOverdue":     deadline.Overdue,
			"step":          string(session.StepCheckDeadline),
			"nextAction":    "confirm_or_cancel",
		})
	}
}

// ReturnStep4 is the return flow's terminal step: it closes out the loan
// record and destroys the session. A record-store rejection of the update
// payload surfaces as 422 with the store's message.
func ReturnStep4(lib library.Service, store session.Store, m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ReturnStep4")
		defer span.End()

		var req actionRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please choose confirm or cancel.")
			return
		}
		if req.Action == ActionCancel {
			cancelSession(c, store)
			return
		}
		if req.Action != ActionConfirm {
			fail(c, http.StatusBadRequest, "Please choose confirm or cancel.")
			return
		}

		id, st, ok := currentState(c, store)
		if !ok {
			return
		}
		if st.Flow != session.FlowReturn || !st.HasBook() || !st.HasStudent() || !st.HasLoan() {
			invalidSession(c)
			return
		}

		err := lib.CompleteReturn(ctx, *st.Loan, *st.Book, nowFunc())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if delErr := store.Delete(ctx, id); delErr != nil {
				slog.Warn("Failed to delete session after return failure", "error", delErr)
			}
			var unproc *airtable.UnprocessableError
			if errors.As(err, &unproc) {
				slog.Error("Record store rejected the return update", "error", err, "loan", st.Loan.ID)
				fail(c, http.StatusUnprocessableEntity,
					fmt.Sprintf("The return could not be recorded: %s", unproc.Message))
				return
			}
			slog.Error("Return failed", "error", err, "loan", st.Loan.ID)
			internalError(c)
			return
		}

		if err := store.Delete(ctx, id); err != nil {
			slog.Warn("Failed to delete session after return", "error", err)
		}
		if m != nil {
			m.ReturnsCompletedTotal.Add(ctx, 1)
			m.WorkflowsCompletedTotal.Add(ctx, 1, flowAttr(session.FlowReturn))
		}

		respondOK(c, fmt.Sprintf("%q has been returned. Thank you!", st.Book.Title), gin.H{
			"step":           string(session.StepCompleted),
			"redirectToMain": true,
		})
	}
}
