// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vision extracts text from book cover photos.
//
// The OCR backend is treated as an opaque collaborator: image bytes in,
// best-effort text out. An empty string means nothing was recognized and
// is not an error.
package vision

import "context"

// Extractor is the standard interface for any OCR backend.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}
