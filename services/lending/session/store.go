// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "context"

// Store persists wizard state keyed by session ID.
//
// Implementations apply the package TTL: a state older than TTL is
// reported as absent, not returned. Delete of an absent session is not
// an error; cancellation must be idempotent.
type Store interface {
	// Get returns the state for id. The bool is false when no live
	// session exists.
	Get(ctx context.Context, id string) (State, bool, error)

	// Put creates or replaces the state for id and restarts its TTL.
	Put(ctx context.Context, id string, state State) error

	// Delete removes the state for id. Deleting an absent id succeeds.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying storage.
	Close() error
}
