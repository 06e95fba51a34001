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
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
	"github.com/AleutianAI/LendingDesk/services/lending/library"
	"github.com/AleutianAI/LendingDesk/services/lending/middleware"
	"github.com/AleutianAI/LendingDesk/services/lending/rules"
	"github.com/AleutianAI/LendingDesk/services/lending/session"
	"github.com/AleutianAI/LendingDesk/services/lending/telemetry"
	"github.com/AleutianAI/LendingDesk/services/vision"
)

// imageFormField is the multipart field the browser posts the cover photo in.
const imageFormField = "bookImage"

// maxImageBytes caps cover uploads at 10MB.
const maxImageBytes = 10 << 20

var errImageTooLarge = errors.New("image exceeds size limit")

// readUploadedImage pulls the cover photo out of the multipart form.
func readUploadedImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile(imageFormField)
	if err != nil {
		return nil, err
	}
	if fh.Size > maxImageBytes {
		return nil, errImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxImageBytes+1))
}

// findBookFromUpload runs the shared step1 pipeline: read the image, OCR it,
// and resolve the first candidate line to a catalog record. It writes the
// failure response itself; callers proceed only when ok is true.
func findBookFromUpload(c *gin.Context, ext vision.Extractor, lib library.Service) (datatypes.Book, bool) {
	ctx := c.Request.Context()

	img, err := readUploadedImage(c)
	if errors.Is(err, errImageTooLarge) {
		fail(c, http.StatusBadRequest, "That image is too large. Please use a photo under 10MB.")
		return datatypes.Book{}, false
	}
	if err != nil {
		fail(c, http.StatusBadRequest, "An image of the book cover is required.")
		return datatypes.Book{}, false
	}

	text, err := ext.ExtractText(ctx, img)
	if err != nil {
		slog.Error("Text extraction failed", "error", err)
		internalError(c)
		return datatypes.Book{}, false
	}
	if strings.TrimSpace(text) == "" {
		fail(c, http.StatusBadRequest, "No text could be read from the image. Please try a clearer photo.")
		return datatypes.Book{}, false
	}

	book, err := lib.FindBookByCoverText(ctx, text)
	if errors.Is(err, library.ErrBookNotFound) {
		fail(c, http.StatusNotFound, "Sorry, that book was not found in the catalog.")
		return datatypes.Book{}, false
	}
	if err != nil {
		slog.Error("Book lookup failed", "error", err)
		internalError(c)
		return datatypes.Book{}, false
	}
	return book, true
}

func bookPayload(b datatypes.Book) gin.H {
	return gin.H{"id": b.ID, "title": b.Title, "author": b.Author}
}

func studentPayload(s datatypes.Student) gin.H {
	return gin.H{"id": s.ID, "name": s.Name, "studentId": s.StudentID}
}

// cancelSession destroys the caller's session, tolerating an absent one, and
// returns the client to the initial menu.
func cancelSession(c *gin.Context, store session.Store) {
	if id := middleware.SessionID(c); id != "" {
		if err := store.Delete(c.Request.Context(), id); err != nil {
			slog.Warn("Failed to delete session on cancel", "error", err)
		}
	}
	respondCancelled(c)
}

// currentState loads the caller's session state. On any failure the response
// is already written and ok is false.
func currentState(c *gin.Context, store session.Store) (string, session.State, bool) {
	id := middleware.SessionID(c)
	if id == "" {
		invalidSession(c)
		return "", session.State{}, false
	}
	st, ok, err := store.Get(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to load session", "error", err)
		internalError(c)
		return "", session.State{}, false
	}
	if !ok {
		invalidSession(c)
		return "", session.State{}, false
	}
	return id, st, true
}

// saveState persists the session, writing a 500 on failure.
func saveState(c *gin.Context, store session.Store, id string, st session.State) bool {
	if err := store.Put(c.Request.Context(), id, st); err != nil {
		slog.Error("Failed to save session", "error", err)
		internalError(c)
		return false
	}
	return true
}

// Step1 handles the borrow flow's cover photo upload. A matching, available
// book opens a borrow session; a book with an open loan is refused up front.
func Step1(ext vision.Extractor, lib library.Service, store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "BorrowStep1")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		book, ok := findBookFromUpload(c, ext, lib)
		if !ok {
			return
		}

		if !lib.IsBookAvailable(ctx, book.ID) {
			failData(c, http.StatusBadRequest,
				fmt.Sprintf("%q is currently on loan and cannot be borrowed.", book.Title),
				gin.H{"book": bookPayload(book)})
			return
		}

		id := middleware.SessionID(c)
		st := session.State{
			Flow:      session.FlowBorrow,
			Step:      session.StepBookFound,
			Book:      &book,
			CreatedAt: nowFunc(),
		}
		if !saveState(c, store, id, st) {
			span.SetStatus(codes.Error, "session save failed")
			return
		}

		respondOK(c, fmt.Sprintf("Found %q. This book is available. Would you like to borrow it?", book.Title), gin.H{
			"book":       bookPayload(book),
			"step":       string(session.StepBookFound),
			"nextAction": "borrow_or_cancel",
		})
	}
}

// Step2 confirms the borrow intent.
func Step2(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please choose borrow or cancel.")
			return
		}
		if req.Action == ActionCancel {
			cancelSession(c, store)
			return
		}
		if req.Action != ActionBorrow {
			fail(c, http.StatusBadRequest, "Please choose borrow or cancel.")
			return
		}

		id, st, ok := currentState(c, store)
		if !ok {
			return
		}
		if st.Flow != session.FlowBorrow || !st.HasBook() {
			invalidSession(c)
			return
		}

		st.Step = session.StepNameRequest
		if !saveState(c, store, id, st) {
			return
		}
		respondOK(c, "Great! What is your name or student ID?", gin.H{
			"book": bookPayload(*st.Book),
			"step": string(session.StepNameRequest),
		})
	}
}

// Step3 resolves the borrower and checks the loan limit.
func Step3(lib library.Service, store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "BorrowStep3")
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
		if st.Flow != session.FlowBorrow || !st.HasBook() {
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

		loans, err := lib.OpenLoansForStudent(ctx, student.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Open loan lookup failed", "error", err, "student", student.ID)
			internalError(c)
			return
		}
		if rules.AtLoanLimit(len(loans)) {
			fail(c, http.StatusBadRequest,
				fmt.Sprintf("%s already has %d books on loan. Please return one before borrowing another.",
					student.Name, len(loans)))
			return
		}

		st.Student = &student
		st.Step = session.StepConfirmPeriod
		if !saveState(c, store, id, st) {
			return
		}

		due := rules.DueDateAfterBorrow(nowFunc())
		respondOK(c, fmt.Sprintf("Hello %s! The loan period is %d days, so the book would be due on %s. Shall we continue?",
			student.Name, rules.LoanPeriodDays, datatypes.FormatDueDate(due)), gin.H{
			"student":    studentPayload(student),
			"dueDate":    datatypes.DateString(due),
			"step":       string(session.StepConfirmPeriod),
			"nextAction": "agree_or_cancel",
		})
	}
}

// rulesText is shown at step4 before the loan is finalized.
func rulesText() string {
	return fmt.Sprintf("Library rules: loans run for %d days, you may have up to %d books out at once, and each loan can be extended once by %d days starting %d days before the due date. Do you agree?",
		rules.LoanPeriodDays, rules.MaxOpenLoans, rules.ExtensionDays, rules.ExtensionWindowDays)
}

// Step4 shows the lending rules.
func Step4(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please choose agree or cancel.")
			return
		}
		if req.Action == ActionCancel {
			cancelSession(c, store)
			return
		}
		if req.Action != ActionAgree {
			fail(c, http.StatusBadRequest, "Please choose agree or cancel.")
			return
		}

		id, st, ok := currentState(c, store)
		if !ok {
			return
		}
		if st.Flow != session.FlowBorrow || !st.HasBook() || !st.HasStudent() {
			invalidSession(c)
			return
		}

		st.Step = session.StepShowRules
		if !saveState(c, store, id, st) {
			return
		}
		respondOK(c, rulesText(), gin.H{
			"step":       string(session.StepShowRules),
			"nextAction": "agree_or_cancel",
		})
	}
}

// Step5 is the borrow flow's terminal step: it writes the loan record and
// destroys the session. On a write failure the session survives so the user
// can resubmit.
func Step5(lib library.Service, store session.Store, m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "BorrowStep5")
		defer span.End()

		var req actionRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Please choose agree or cancel.")
			return
		}
		if req.Action == ActionCancel {
			cancelSession(c, store)
			return
		}
		if req.Action != ActionAgree {
			fail(c, http.StatusBadRequest, "Please choose agree or cancel.")
			return
		}

		id, st, ok := currentState(c, store)
		if !ok {
			return
		}
		if st.Flow != session.FlowBorrow || !st.HasBook() || !st.HasStudent() {
			invalidSession(c)
			return
		}

		loan, err := lib.CreateLoan(ctx, *st.Book, *st.Student, nowFunc())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Loan creation failed", "error", err, "book", st.Book.ID, "student", st.Student.ID)
			internalError(c)
			return
		}

		if err := store.Delete(ctx, id); err != nil {
			slog.Warn("Failed to delete session after borrow", "error", err)
		}
		if m != nil {
			m.LoansCreatedTotal.Add(ctx, 1)
			m.WorkflowsCompletedTotal.Add(ctx, 1, flowAttr(session.FlowBorrow))
		}

		respondOK(c, fmt.Sprintf("All done! %q is due back on %s. Enjoy your reading!",
			st.Book.Title, datatypes.FormatDueDate(loan.DueDate)), gin.H{
			"step": string(session.StepCompleted),
			"loan": gin.H{
				"id":      loan.ID,
				"dueDate": datatypes.DateString(loan.DueDate),
			},
			"redirectToMain": true,
		})
	}
}
