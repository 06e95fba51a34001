// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the wizard step endpoints for the lending
// service. Each flow (borrow, return, extend) is a short sequence of POST
// handlers that read and advance per-session state; the terminal step of a
// flow performs the durable record mutation exactly once and then destroys
// the session, so a duplicate submission finds no session and fails the
// precondition check instead of double-writing.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/LendingDesk/services/lending/session"
)

var tracer = otel.Tracer("lendingdesk.handlers")

// flowAttr labels a workflow counter increment with its flow.
func flowAttr(flow session.Flow) metric.AddOption {
	return metric.WithAttributes(attribute.String("flow", string(flow)))
}

// nowFunc supplies the current time. Tests override it to pin dates.
var nowFunc = time.Now

// Step action verbs accepted by the wizard endpoints.
const (
	ActionBorrow  = "borrow"
	ActionReturn  = "return"
	ActionAgree   = "agree"
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
)

// actionRequest is the body of the confirm/cancel style steps.
type actionRequest struct {
	Action string `json:"action" binding:"required,stepaction"`
}

// nameRequest is the body of the name-entry steps.
type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

// extendRequest is the body of extend-step2.
type extendRequest struct {
	LoanID      string `json:"loanId" binding:"required"`
	StudentName string `json:"studentName" binding:"required"`
}

// respondOK writes the success envelope.
func respondOK(c *gin.Context, message string, data gin.H) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(http.StatusOK, body)
}

// fail writes the failure envelope with the given status.
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// failData writes the failure envelope with extra payload, for cases where
// the client renders details of the refusal (e.g. which book is on loan).
func failData(c *gin.Context, status int, message string, data gin.H) {
	c.JSON(status, gin.H{"success": false, "message": message, "data": data})
}

// invalidSession rejects a step whose prerequisite selections are missing.
func invalidSession(c *gin.Context) {
	fail(c, http.StatusBadRequest, "Your session has expired or is out of order. Please start over.")
}

// internalError hides the failure detail behind a generic retry message.
// The session is left intact so the user can simply resubmit.
func internalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "Something went wrong on our side. Please try again.")
}

// initialPayload is what cancel and reset return the client to.
func initialPayload() gin.H {
	return gin.H{
		"step":    "initial",
		"options": []string{ActionBorrow, ActionReturn, "extend"},
	}
}

// respondCancelled is the shared cancel response for every step.
func respondCancelled(c *gin.Context) {
	respondOK(c, "Okay, cancelled. What would you like to do next?", initialPayload())
}
