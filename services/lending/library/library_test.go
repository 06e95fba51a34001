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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/LendingDesk/services/airtable"
	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements RecordStore with canned data per table.
type mockStore struct {
	books    []airtable.Record
	loans    []airtable.Record
	students []airtable.Record

	created  []map[string]any
	patches  []patchCall
	listErr  error
	patchErr error
}

type patchCall struct {
	table  string
	id     string
	fields map[string]any
}

func (m *mockStore) recordsFor(table string) []airtable.Record {
	switch table {
	case "Books":
		return m.books
	case "Students":
		return m.students
	case "Loans":
		return m.loans
	}
	return nil
}

func (m *mockStore) List(_ context.Context, table, formula string, max int) ([]airtable.Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.recordsFor(table), nil
}

func (m *mockStore) FindOne(ctx context.Context, table, formula string) (*airtable.Record, error) {
	records, err := m.List(ctx, table, formula, 1)
	if err != nil {
		return nil, err
	}
	// Crude formula evaluation: match any record whose field values
	// appear in the formula text.
	for i := range records {
		for _, v := range records[i].Fields {
			s, ok := v.(string)
			if ok && s != "" && strings.Contains(strings.ToLower(formula), strings.ToLower(s)) {
				return &records[i], nil
			}
		}
	}
	return nil, airtable.ErrNotFound
}

func (m *mockStore) Get(_ context.Context, table, id string) (*airtable.Record, error) {
	for _, rec := range m.recordsFor(table) {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, airtable.ErrNotFound
}

func (m *mockStore) Create(_ context.Context, table string, fields map[string]any) (*airtable.Record, error) {
	m.created = append(m.created, fields)
	return &airtable.Record{ID: "recNewLoan", Fields: fields}, nil
}

func (m *mockStore) Patch(_ context.Context, table, id string, fields map[string]any) (*airtable.Record, error) {
	m.patches = append(m.patches, patchCall{table: table, id: id, fields: fields})
	if m.patchErr != nil {
		return nil, m.patchErr
	}
	return &airtable.Record{ID: id, Fields: fields}, nil
}

func openLoanRecord(id, bookID, studentID string) airtable.Record {
	return airtable.Record{ID: id, Fields: map[string]any{
		"Book":     []any{bookID},
		"Student":  []any{studentID},
		"Due Date": "2025-03-24",
		"Status":   "On Loan",
	}}
}

func newTestLibrary(ms *mockStore) *Library {
	return New(ms, Tables{Books: "Books", Students: "Students", Loans: "Loans"})
}

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestFindBookByCoverText_FirstMatchingLineWins(t *testing.T) {
	ms := &mockStore{books: []airtable.Record{
		{ID: "recB1", Fields: map[string]any{"Title": "Sample Book", "status": "Available"}},
	}}
	lib := newTestLibrary(ms)

	book, err := lib.FindBookByCoverText(context.Background(), "AC\nsample book\nanother line")
	require.NoError(t, err)
	assert.Equal(t, "recB1", book.ID)
}

func TestFindBookByCoverText_NoMatch(t *testing.T) {
	ms := &mockStore{}
	lib := newTestLibrary(ms)

	_, err := lib.FindBookByCoverText(context.Background(), "Unknown Title")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestFindStudent_ByNameOrID(t *testing.T) {
	ms := &mockStore{students: []airtable.Record{
		{ID: "recS1", Fields: map[string]any{"Name": "Alice", "StudentID": "S001"}},
	}}
	lib := newTestLibrary(ms)

	student, err := lib.FindStudent(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, "recS1", student.ID)

	_, err = lib.FindStudent(context.Background(), "Nobody")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestOpenLoansForStudent_FiltersByReferenceAndStatus(t *testing.T) {
	ms := &mockStore{loans: []airtable.Record{
		openLoanRecord("recL1", "recB1", "recS1"),
		openLoanRecord("recL2", "recB2", "recS2"),
		{ID: "recL3", Fields: map[string]any{
			"Book": []any{"recB3"}, "Student": []any{"recS1"}, "Status": "Available",
		}},
	}}
	lib := newTestLibrary(ms)

	loans, err := lib.OpenLoansForStudent(context.Background(), "recS1")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "recL1", loans[0].ID)
}

func TestOpenLoansForStudent_CountsLegacyStatusLabels(t *testing.T) {
	ms := &mockStore{loans: []airtable.Record{
		{ID: "recL1", Fields: map[string]any{
			"本": []any{"recB1"}, "生徒": []any{"recS1"}, "返却状況": "貸出中",
		}},
	}}
	lib := newTestLibrary(ms)

	loans, err := lib.OpenLoansForStudent(context.Background(), "recS1")
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func TestIsBookAvailable(t *testing.T) {
	ms := &mockStore{loans: []airtable.Record{openLoanRecord("recL1", "recB1", "recS1")}}
	lib := newTestLibrary(ms)

	assert.False(t, lib.IsBookAvailable(context.Background(), "recB1"))
	assert.True(t, lib.IsBookAvailable(context.Background(), "recB2"))
}

func TestIsBookAvailable_FailsClosedOnError(t *testing.T) {
	ms := &mockStore{listErr: errors.New("airtable down")}
	lib := newTestLibrary(ms)

	assert.False(t, lib.IsBookAvailable(context.Background(), "recB1"))
}

// The loan table accumulates closed history, so an open loan can sit
// past the first Airtable page. The scan must walk every page or a
// loaned-out book looks available again.
func TestOpenLoanScan_SeesLoansBeyondFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/appBase/Loans", r.URL.Path)
		if r.URL.Query().Get("offset") == "" {
			page := struct {
				Records []airtable.Record `json:"records"`
				Offset  string            `json:"offset"`
			}{Offset: "itrPage2"}
			for i := 0; i < 100; i++ {
				page.Records = append(page.Records, airtable.Record{
					ID: fmt.Sprintf("recClosed%03d", i),
					Fields: map[string]any{
						"本":     []any{"recOldBook"},
						"生徒":    []any{"recOldStu"},
						"返却状況":  "返却済",
						"実際の返却日": "2025-01-15",
					},
				})
			}
			json.NewEncoder(w).Encode(page)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"records": []airtable.Record{{
			ID: "recOpen",
			Fields: map[string]any{
				"本":    []any{"recTarget"},
				"生徒":   []any{"recStu1"},
				"返却状況": "貸出中",
				"返却期限": "2025-03-20",
			},
		}}})
	}))
	t.Cleanup(srv.Close)

	client := airtable.NewClientForTesting(srv.URL, "appBase", "key-test")
	lib := New(client, Tables{Books: "Books", Students: "Students", Loans: "Loans"})

	assert.False(t, lib.IsBookAvailable(context.Background(), "recTarget"))

	loan, err := lib.FindOpenLoan(context.Background(), "recTarget", "recStu1")
	require.NoError(t, err)
	assert.Equal(t, "recOpen", loan.ID)

	mine, err := lib.OpenLoansForStudent(context.Background(), "recStu1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestFindOpenLoan(t *testing.T) {
	ms := &mockStore{loans: []airtable.Record{openLoanRecord("recL1", "recB1", "recS1")}}
	lib := newTestLibrary(ms)

	loan, err := lib.FindOpenLoan(context.Background(), "recB1", "recS1")
	require.NoError(t, err)
	assert.Equal(t, "recL1", loan.ID)

	_, err = lib.FindOpenLoan(context.Background(), "recB1", "recS9")
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func TestCreateLoan_WritesCanonicalFieldsAndAdvisoryFlag(t *testing.T) {
	ms := &mockStore{}
	lib := newTestLibrary(ms)

	book := datatypes.Book{ID: "recB1", Title: "Sample Book"}
	student := datatypes.Student{ID: "recS1", Name: "Alice"}

	loan, err := lib.CreateLoan(context.Background(), book, student, today)
	require.NoError(t, err)
	assert.Equal(t, "recNewLoan", loan.ID)
	assert.Equal(t, time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), loan.DueDate)

	require.Len(t, ms.created, 1)
	assert.Equal(t, []string{"recB1"}, ms.created[0][datatypes.FieldBook])
	assert.Equal(t, "2025-03-10", ms.created[0][datatypes.FieldLoanDate])
	assert.Equal(t, "2025-03-24", ms.created[0][datatypes.FieldDueDate])
	assert.Equal(t, datatypes.StatusOnLoan, ms.created[0][datatypes.FieldStatus])

	require.Len(t, ms.patches, 1)
	assert.Equal(t, "Books", ms.patches[0].table)
	assert.Equal(t, datatypes.StatusOnLoan, ms.patches[0].fields[datatypes.FieldStatus])
}

func TestCreateLoan_AdvisoryFlagFailureIsTolerated(t *testing.T) {
	ms := &mockStore{patchErr: errors.New("flag update rejected")}
	lib := newTestLibrary(ms)

	_, err := lib.CreateLoan(context.Background(), datatypes.Book{ID: "recB1"},
		datatypes.Student{ID: "recS1"}, today)
	assert.NoError(t, err)
}

func TestCompleteReturn_ClosesLoanAndRestoresFlag(t *testing.T) {
	ms := &mockStore{}
	lib := newTestLibrary(ms)

	loan := datatypes.Loan{ID: "recL1", Status: datatypes.StatusOnLoan}
	book := datatypes.Book{ID: "recB1"}
	require.NoError(t, lib.CompleteReturn(context.Background(), loan, book, today))

	require.Len(t, ms.patches, 2)
	assert.Equal(t, "Loans", ms.patches[0].table)
	assert.Equal(t, datatypes.StatusAvailable, ms.patches[0].fields[datatypes.FieldStatus])
	assert.Equal(t, "2025-03-10", ms.patches[0].fields[datatypes.FieldReturnedDate])
	assert.Equal(t, "Books", ms.patches[1].table)
}

func TestCompleteReturn_SurfacesUnprocessable(t *testing.T) {
	ms := &mockStore{patchErr: &airtable.UnprocessableError{Type: "INVALID_VALUE", Message: "bad select"}}
	lib := newTestLibrary(ms)

	err := lib.CompleteReturn(context.Background(), datatypes.Loan{ID: "recL1"},
		datatypes.Book{ID: "recB1"}, today)
	var ue *airtable.UnprocessableError
	assert.True(t, errors.As(err, &ue))
}

func TestExtendLoan_BumpsDueDateAndCount(t *testing.T) {
	ms := &mockStore{}
	lib := newTestLibrary(ms)

	loan := datatypes.Loan{
		ID:      "recL1",
		DueDate: time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC),
	}
	extended, err := lib.ExtendLoan(context.Background(), loan)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), extended.DueDate)

	require.Len(t, ms.patches, 1)
	assert.Equal(t, "2025-03-31", ms.patches[0].fields[datatypes.FieldDueDate])
	assert.Equal(t, 1, ms.patches[0].fields[datatypes.FieldExtensions])
}

func TestLoansForBook_NewestFirst(t *testing.T) {
	ms := &mockStore{loans: []airtable.Record{
		{ID: "recOld", Fields: map[string]any{
			"Book": []any{"recB1"}, "Loan Date": "2025-01-01", "Status": "Available",
		}},
		{ID: "recNew", Fields: map[string]any{
			"Book": []any{"recB1"}, "Loan Date": "2025-03-01", "Status": "On Loan",
		}},
	}}
	lib := newTestLibrary(ms)

	loans, err := lib.LoansForBook(context.Background(), "recB1")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "recNew", loans[0].ID)
}
