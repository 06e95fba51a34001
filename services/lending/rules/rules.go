// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules implements the lending eligibility policy.
//
// Every function here is pure: given the current date and record snapshots
// it computes the same answer every time. Handlers pass the clock in so
// the policy can be tested against fixed dates.
package rules

import (
	"math"
	"time"
)

const (
	// LoanPeriodDays is the length of a new loan.
	LoanPeriodDays = 14

	// ExtensionDays is added to the due date by a granted extension.
	ExtensionDays = 7

	// MaxOpenLoans is the most books a student may have out at once.
	MaxOpenLoans = 4

	// ExtensionWindowDays is how many days before the due date the
	// extension window opens.
	ExtensionWindowDays = 2

	// MaxExtensions is the number of extensions a single loan may receive.
	MaxExtensions = 1
)

// Deadline describes where a loan's due date sits relative to today.
type Deadline struct {
	// DaysRemaining is ceil((due - today) / 24h). Negative when overdue.
	DaysRemaining int

	// Overdue is true when the due date has passed.
	Overdue bool

	// Early is true when the book is being returned with two or more
	// days to spare.
	Early bool
}

// DueDateAfterBorrow returns the due date for a loan started today.
func DueDateAfterBorrow(today time.Time) time.Time {
	return today.AddDate(0, 0, LoanPeriodDays)
}

// DueDateAfterExtend returns the new due date after a granted extension.
func DueDateAfterExtend(due time.Time) time.Time {
	return due.AddDate(0, 0, ExtensionDays)
}

// CheckDeadline computes the deadline status of a loan.
func CheckDeadline(due, today time.Time) Deadline {
	diff := due.Sub(today)
	days := int(math.Ceil(diff.Hours() / 24))
	return Deadline{
		DaysRemaining: days,
		Overdue:       days < 0,
		Early:         days >= ExtensionWindowDays,
	}
}

// AtLoanLimit reports whether a student with openCount open loans has
// reached the concurrent-loan limit.
func AtLoanLimit(openCount int) bool {
	return openCount >= MaxOpenLoans
}

// ExtensionWindowStart returns the first instant at which an extension
// may be requested for a loan with the given due date.
func ExtensionWindowStart(due time.Time) time.Time {
	return due.AddDate(0, 0, -ExtensionWindowDays)
}

// CanExtendByDate reports whether today falls inside the extension window.
// The window is half-open: it starts two days before the due date and
// never closes. An overdue loan is still inside the window on purpose;
// lateness does not block an extension, only a prior extension does.
func CanExtendByDate(due, today time.Time) bool {
	return !today.Before(ExtensionWindowStart(due))
}

// CanExtend reports whether a loan is eligible for extension.
func CanExtend(due time.Time, extensions int, today time.Time) bool {
	return CanExtendByDate(due, today) && extensions < MaxExtensions
}
