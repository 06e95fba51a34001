// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/AleutianAI/LendingDesk/services/airtable"
)

// Book is the read-through view of one Books record.
//
// The Status label is advisory only. Effective availability is always
// derived from open Loans records, because the status flag can desync
// when a terminal step's follow-up patch fails.
type Book struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Status string `json:"status"`
}

// Student is the read-through view of one Students record.
type Student struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
}

// Loan is the read-through view of one Loans record.
type Loan struct {
	ID           string     `json:"id"`
	BookIDs      []string   `json:"bookIds"`
	StudentIDs   []string   `json:"studentIds"`
	BookTitle    string     `json:"bookTitle,omitempty"`
	LoanDate     time.Time  `json:"loanDate"`
	DueDate      time.Time  `json:"dueDate"`
	Status       string     `json:"status"`
	Extensions   int        `json:"extensions"`
	ReturnedDate *time.Time `json:"returnedDate,omitempty"`
}

// Open reports whether the book has not yet been returned.
func (l *Loan) Open() bool {
	return l.Status == StatusOnLoan
}

// ReferencesBook reports whether this loan is for the given book record.
func (l *Loan) ReferencesBook(bookID string) bool {
	for _, id := range l.BookIDs {
		if id == bookID {
			return true
		}
	}
	return false
}

// ReferencesStudent reports whether this loan belongs to the given student.
func (l *Loan) ReferencesStudent(studentID string) bool {
	for _, id := range l.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// BookFromRecord normalizes a raw Books record.
func BookFromRecord(rec *airtable.Record) Book {
	return Book{
		ID:     rec.ID,
		Title:  stringField(rec.Fields, FieldTitle),
		Author: stringField(rec.Fields, FieldAuthor),
		Status: NormalizeStatus(stringField(rec.Fields, FieldStatus)),
	}
}

// StudentFromRecord normalizes a raw Students record.
func StudentFromRecord(rec *airtable.Record) Student {
	return Student{
		ID:        rec.ID,
		Name:      stringField(rec.Fields, FieldName),
		StudentID: stringField(rec.Fields, FieldStudentID),
	}
}

// LoanFromRecord normalizes a raw Loans record.
func LoanFromRecord(rec *airtable.Record) Loan {
	loan := Loan{
		ID:         rec.ID,
		BookIDs:    linkField(rec.Fields, FieldBook),
		StudentIDs: linkField(rec.Fields, FieldStudent),
		BookTitle:  lookupField(rec.Fields, FieldTitleLookup),
		LoanDate:   dateField(rec.Fields, FieldLoanDate),
		DueDate:    dateField(rec.Fields, FieldDueDate),
		Status:     NormalizeStatus(stringField(rec.Fields, FieldStatus)),
		Extensions: intField(rec.Fields, FieldExtensions),
	}
	if returned := dateField(rec.Fields, FieldReturnedDate); !returned.IsZero() {
		loan.ReturnedDate = &returned
	}
	return loan
}

// DateString formats a time as an Airtable date column value.
func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatDueDate renders a due date for user-facing messages.
func FormatDueDate(t time.Time) string {
	return t.Format("Monday, January 2")
}
