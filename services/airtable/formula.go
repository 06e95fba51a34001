// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package airtable

import (
	"fmt"
	"strings"
)

// Quote wraps a user-supplied value as an Airtable formula string literal,
// escaping embedded quotes and backslashes. Always quote untrusted input
// before splicing it into a filterByFormula expression.
func Quote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return `"` + value + `"`
}

// Eq builds a {field} = "value" comparison.
func Eq(field, value string) string {
	return fmt.Sprintf("{%s} = %s", field, Quote(value))
}

// Or combines clauses with OR().
func Or(clauses ...string) string {
	return "OR(" + strings.Join(clauses, ", ") + ")"
}

// And combines clauses with AND().
func And(clauses ...string) string {
	return "AND(" + strings.Join(clauses, ", ") + ")"
}

// Contains builds a case-insensitive substring match on field.
func Contains(field, value string) string {
	return fmt.Sprintf("SEARCH(%s, LOWER({%s})) > 0", Quote(strings.ToLower(value)), field)
}
