// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiters tracks one token bucket per session. Entries are created
// lazily and live for the life of the process; the session space is bounded
// by the cookie TTL so this does not grow without limit in practice.
type rateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (r *rateLimiters) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = lim
	}
	return lim
}

// RateLimit returns middleware that rejects requests exceeding the given
// per-session rate with 429. Intended for the image upload endpoints, where
// each request fans out to a paid OCR call.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiters := &rateLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
	return func(c *gin.Context) {
		key := SessionID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiters.get(key).Allow() {
			slog.Warn("Rate limit exceeded", "session", key, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests. Please wait a moment and try again.",
			})
			return
		}
		c.Next()
	}
}
