// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the canonical DTOs for the lending workflow and
// the normalization layer that maps raw Airtable field labels onto them.
//
// The production base went through a schema migration and still contains
// records keyed by Japanese column labels next to records keyed by English
// ones. All reads funnel through this package so the rest of the service
// only ever sees one schema; all writes use the canonical English labels.
package datatypes

import (
	"strings"
	"time"
)

// Canonical field labels. Writes always use these.
const (
	FieldTitle        = "Title"
	FieldAuthor       = "Author"
	FieldStatus       = "Status"
	FieldName         = "Name"
	FieldStudentID    = "StudentID"
	FieldBook         = "Book"
	FieldStudent      = "Student"
	FieldLoanDate     = "Loan Date"
	FieldDueDate      = "Due Date"
	FieldExtensions   = "Extensions"
	FieldReturnedDate = "Returned Date"
	FieldTitleLookup  = "Title (from Book)"
)

// Canonical status vocabulary for both Book.Status and Loan.Status.
const (
	StatusOnLoan    = "On Loan"
	StatusAvailable = "Available"
)

// DateLayout is the wire format Airtable uses for date columns.
const DateLayout = "2006-01-02"

// fieldAliases maps each canonical label to the raw labels observed in
// the base, in lookup order. The canonical label itself is tried first.
var fieldAliases = map[string][]string{
	FieldTitle:        {"タイトル", "title"},
	FieldAuthor:       {"著者", "author"},
	FieldStatus:       {"status", "ステータス", "返却状況"},
	FieldName:         {"名前", "name"},
	FieldStudentID:    {"生徒ID", "Student ID"},
	FieldBook:         {"本"},
	FieldStudent:      {"生徒"},
	FieldLoanDate:     {"貸出日"},
	FieldDueDate:      {"返却期限"},
	FieldExtensions:   {"延長回数"},
	FieldReturnedDate: {"実際の返却日", "返却日"},
	FieldTitleLookup:  {"タイトル (from 本)", "Title (from 本)"},
}

// statusAliases folds the raw status vocabulary observed across the base
// into the canonical one.
var statusAliases = map[string]string{
	"貸出中":      StatusOnLoan,
	"on loan":  StatusOnLoan,
	"貸出可":      StatusAvailable,
	"利用可能":     StatusAvailable,
	"available": StatusAvailable,
}

// NormalizeStatus maps a raw status label to the canonical vocabulary.
// Unknown labels pass through unchanged so a schema drift is visible in
// logs rather than silently swallowed.
func NormalizeStatus(raw string) string {
	if canonical, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return canonical
	}
	return strings.TrimSpace(raw)
}

// lookupRaw returns the first present value for a canonical label.
func lookupRaw(fields map[string]any, canonical string) (any, bool) {
	if v, ok := fields[canonical]; ok {
		return v, true
	}
	for _, alias := range fieldAliases[canonical] {
		if v, ok := fields[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

// stringField extracts a string-valued field by canonical label.
func stringField(fields map[string]any, canonical string) string {
	v, ok := lookupRaw(fields, canonical)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// intField extracts a numeric field. Airtable numbers decode as float64.
func intField(fields map[string]any, canonical string) int {
	v, ok := lookupRaw(fields, canonical)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// dateField extracts a date column. Returns the zero time when absent or
// malformed.
func dateField(fields map[string]any, canonical string) time.Time {
	s := stringField(fields, canonical)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// linkField extracts a linked-record column ([]string of record IDs).
func linkField(fields map[string]any, canonical string) []string {
	v, ok := lookupRaw(fields, canonical)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids
}

// lookupField extracts the first value of a lookup column (values roll up
// as an array even for single links).
func lookupField(fields map[string]any, canonical string) string {
	v, ok := lookupRaw(fields, canonical)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
