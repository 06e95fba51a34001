// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the lending service.
//
// # Session Flow
//
// The session middleware assigns every browser a stable session ID via an
// HTTP-only cookie. Handlers retrieve the ID with SessionID and use it as
// the key into the session store that holds multi-step workflow state.
//
//	Request
//	   │
//	   ▼
//	SessionCookie
//	   │
//	   ├─► Read "lending_session" cookie
//	   │
//	   ├─► Missing? Mint a UUID and set the cookie
//	   │
//	   └─► Store the ID in the Gin context
//	           │
//	           ▼
//	       Handler (retrieves via SessionID)
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/LendingDesk/services/lending/session"
)

// CookieName is the name of the session cookie issued to browsers.
const CookieName = "lending_session"

// sessionIDKey is the context key for storing the session ID.
// Using a typed key prevents collisions with other context values.
const sessionIDKey = "lending_session_id"

// SessionCookie returns middleware that guarantees every request carries a
// session ID. Existing cookies are reused; new visitors get a fresh UUID.
// The cookie lifetime matches the session store TTL so that browser state
// and server state expire together.
func SessionCookie() gin.HandlerFunc {
	maxAge := int(session.TTL.Seconds())
	return func(c *gin.Context) {
		id, err := c.Cookie(CookieName)
		if err != nil || id == "" {
			id = uuid.NewString()
			c.SetCookie(CookieName, id, maxAge, "/", "", false, true)
		}
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

// SessionID returns the session ID assigned by SessionCookie, or "" when the
// middleware did not run.
func SessionID(c *gin.Context) string {
	id, ok := c.Get(sessionIDKey)
	if !ok {
		return ""
	}
	s, _ := id.(string)
	return s
}
