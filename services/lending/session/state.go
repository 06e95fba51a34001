// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds per-browser wizard state.
//
// Each flow (borrow, return, extend) is a fixed sequence of steps. The
// state records which step the session has reached and the selections
// accumulated so far; step handlers check the preconditions before
// acting and destroy the state on completion or cancellation.
package session

import (
	"time"

	"github.com/AleutianAI/LendingDesk/services/lending/datatypes"
)

// TTL is how long an idle session survives before it is treated as
// absent. Flows take a minute or two; a day is generous.
const TTL = 24 * time.Hour

// Flow identifies which wizard a session is running.
type Flow string

const (
	FlowBorrow Flow = "borrow"
	FlowReturn Flow = "return"
	FlowExtend Flow = "extend"
)

// Step identifies the position inside a flow.
type Step string

const (
	StepInitial       Step = "initial"
	StepBookFound     Step = "book_found"
	StepNameRequest   Step = "name_request"
	StepConfirmPeriod Step = "confirm_period"
	StepShowRules     Step = "show_rules"
	StepCheckDeadline Step = "check_deadline"
	StepLoansListed   Step = "loans_listed"
	StepCompleted     Step = "completed"
)

// State is the mutable wizard state for one browser session. It is
// JSON-serialized into the session store between requests.
type State struct {
	Flow      Flow               `json:"flow"`
	Step      Step               `json:"step"`
	Book      *datatypes.Book    `json:"book,omitempty"`
	Student   *datatypes.Student `json:"student,omitempty"`
	Loan      *datatypes.Loan    `json:"loan,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// HasBook reports whether a prior step stored a book selection.
func (s *State) HasBook() bool {
	return s != nil && s.Book != nil
}

// HasStudent reports whether a prior step stored a student selection.
func (s *State) HasStudent() bool {
	return s != nil && s.Student != nil
}

// HasLoan reports whether a prior step stored a loan selection.
func (s *State) HasLoan() bool {
	return s != nil && s.Loan != nil
}
