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
	"testing"
	"time"

	"github.com/AleutianAI/LendingDesk/services/airtable"
	"github.com/stretchr/testify/assert"
)

func TestBookFromRecord_EnglishLabels(t *testing.T) {
	book := BookFromRecord(&airtable.Record{
		ID: "recB1",
		Fields: map[string]any{
			"Title":  "Sample Book",
			"Author": "A. Writer",
			"status": "Available",
		},
	})
	assert.Equal(t, Book{ID: "recB1", Title: "Sample Book", Author: "A. Writer", Status: StatusAvailable}, book)
}

func TestBookFromRecord_LegacyJapaneseLabels(t *testing.T) {
	book := BookFromRecord(&airtable.Record{
		ID: "recB2",
		Fields: map[string]any{
			"タイトル": "吾輩は猫である",
			"著者":   "夏目漱石",
			"返却状況": "貸出中",
		},
	})
	assert.Equal(t, "吾輩は猫である", book.Title)
	assert.Equal(t, "夏目漱石", book.Author)
	assert.Equal(t, StatusOnLoan, book.Status)
}

func TestStudentFromRecord_BothSchemas(t *testing.T) {
	english := StudentFromRecord(&airtable.Record{
		ID:     "recS1",
		Fields: map[string]any{"Name": "Alice", "StudentID": "S001"},
	})
	assert.Equal(t, Student{ID: "recS1", Name: "Alice", StudentID: "S001"}, english)

	legacy := StudentFromRecord(&airtable.Record{
		ID:     "recS2",
		Fields: map[string]any{"名前": "花子", "生徒ID": "S002"},
	})
	assert.Equal(t, Student{ID: "recS2", Name: "花子", StudentID: "S002"}, legacy)
}

func TestLoanFromRecord_FullRecord(t *testing.T) {
	loan := LoanFromRecord(&airtable.Record{
		ID: "recL1",
		Fields: map[string]any{
			"Book":              []any{"recB1"},
			"Student":           []any{"recS1"},
			"Title (from Book)": []any{"Sample Book"},
			"Loan Date":         "2025-03-10",
			"Due Date":          "2025-03-24",
			"Status":            "On Loan",
			"Extensions":        float64(1),
		},
	})
	assert.Equal(t, []string{"recB1"}, loan.BookIDs)
	assert.Equal(t, []string{"recS1"}, loan.StudentIDs)
	assert.Equal(t, "Sample Book", loan.BookTitle)
	assert.Equal(t, time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), loan.DueDate)
	assert.Equal(t, 1, loan.Extensions)
	assert.True(t, loan.Open())
	assert.True(t, loan.ReferencesBook("recB1"))
	assert.False(t, loan.ReferencesBook("recB9"))
	assert.True(t, loan.ReferencesStudent("recS1"))
	assert.Nil(t, loan.ReturnedDate)
}

func TestLoanFromRecord_LegacyLabelsAndReturnedDate(t *testing.T) {
	loan := LoanFromRecord(&airtable.Record{
		ID: "recL2",
		Fields: map[string]any{
			"本":            []any{"recB2"},
			"生徒":           []any{"recS2"},
			"タイトル (from 本)": []any{"吾輩は猫である"},
			"貸出日":          "2025-02-01",
			"返却期限":         "2025-02-15",
			"返却状況":         "貸出可",
			"実際の返却日":       "2025-02-14",
		},
	})
	assert.Equal(t, []string{"recB2"}, loan.BookIDs)
	assert.Equal(t, "吾輩は猫である", loan.BookTitle)
	assert.Equal(t, StatusAvailable, loan.Status)
	assert.False(t, loan.Open())
	if assert.NotNil(t, loan.ReturnedDate) {
		assert.Equal(t, "2025-02-14", DateString(*loan.ReturnedDate))
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, StatusOnLoan, NormalizeStatus("貸出中"))
	assert.Equal(t, StatusOnLoan, NormalizeStatus("on loan"))
	assert.Equal(t, StatusAvailable, NormalizeStatus("貸出可"))
	assert.Equal(t, StatusAvailable, NormalizeStatus("利用可能"))
	assert.Equal(t, StatusAvailable, NormalizeStatus(" Available "))
	assert.Equal(t, "weird", NormalizeStatus("weird"))
}

func TestFormatDueDate(t *testing.T) {
	due := time.Date(2025, time.March, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Monday, March 24", FormatDueDate(due))
}
