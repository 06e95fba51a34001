// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package library

import (
	"context"
	"time"

	"github.com/AleutianAI/LendingDesk/services/airtable"
	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
)

// RecordStore is the slice of the Airtable client the library needs.
// Decoupling on this interface lets unit tests inject mock stores.
type RecordStore interface {
	List(ctx context.Context, table, formula string, max int) ([]airtable.Record, error)
	FindOne(ctx context.Context, table, formula string) (*airtable.Record, error)
	Get(ctx context.Context, table, id string) (*airtable.Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (*airtable.Record, error)
	Patch(ctx context.Context, table, id string, fields map[string]any) (*airtable.Record, error)
}

// Service is the catalog surface the step handlers work against.
type Service interface {
	// FindBookByCoverText tries each non-trivial line of OCR output as
	// a fuzzy title query and returns the first match.
	FindBookByCoverText(ctx context.Context, text string) (datatypes.Book, error)

	// FindStudent looks a student up by display name or student ID.
	FindStudent(ctx context.Context, nameOrID string) (datatypes.Student, error)

	// OpenLoansForStudent returns the student's open loans.
	OpenLoansForStudent(ctx context.Context, studentID string) ([]datatypes.Loan, error)

	// IsBookAvailable derives availability from open loans. Lookup
	// errors report the book as unavailable.
	IsBookAvailable(ctx context.Context, bookID string) bool

	// FindOpenLoan locates the open loan tying a book to a student.
	FindOpenLoan(ctx context.Context, bookID, studentID string) (datatypes.Loan, error)

	// GetLoan fetches one loan record by ID.
	GetLoan(ctx context.Context, loanID string) (datatypes.Loan, error)

	// CreateLoan records a new loan starting today and flips the book's
	// advisory status flag.
	CreateLoan(ctx context.Context, book datatypes.Book, student datatypes.Student, today time.Time) (datatypes.Loan, error)

	// CompleteReturn closes the loan and restores the book's advisory
	// status flag.
	CompleteReturn(ctx context.Context, loan datatypes.Loan, book datatypes.Book, today time.Time) error

	// ExtendLoan moves the due date out and bumps the extension count.
	ExtendLoan(ctx context.Context, loan datatypes.Loan) (datatypes.Loan, error)

	// LoansForBook returns every loan referencing the book, open or not.
	LoansForBook(ctx context.Context, bookID string) ([]datatypes.Loan, error)
}
