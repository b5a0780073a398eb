package handler

// RESPONSE HELPERS:
// These functions standardise how the World API sends JSON and errors.
// Handlers call them instead of repeating the header/status/encode dance:
//   writeJSON(w, http.StatusOK, world)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "world abc123 not found"}
//
// The 3D client reads "error" to decide what to show and "message" to show
// it, whatever the status code is.
//
// RATE LIMITS:
// When GitHub's quota is exhausted the body also carries "rateLimitedUntil"
// (RFC 3339) and the response gets a Retry-After header in seconds, so
// clients can back off without parsing the body.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/profileworld/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error            string     `json:"error"`                      // machine-readable kind, e.g. "not_found"
	Message          string     `json:"message"`                    // human-readable detail
	RateLimitedUntil *time.Time `json:"rateLimitedUntil,omitempty"` // only on 429 responses
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers (including Retry-After, see setRetryAfter) have to be set before
// WriteHeader. Once the status line is sent, later header changes are
// silently dropped:
//  1. w.Header().Set(...)     set headers
//  2. w.WriteHeader(status)   send status + headers
//  3. json.Encode(data)       send body
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent, all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// ERROR MAPPING:
// The service and the store return apperror kinds; this is the only place
// they turn into status codes:
//   - ErrValidation → 400 (bad world id)
//   - ErrNotFound   → 404 (unknown world)
//   - ErrForbidden  → 403 (share link not active)
//   - ErrConflict   → 409 (duplicate world or share token)
//
// errors.Is walks the whole Unwrap chain, so a wrapped error such as
//
//	fmt.Errorf("storing world for octocat: %w", apperror.Conflict("world", id))
//
// still matches ErrConflict.
//
// Generation outcomes (rate limited, upstream error) are not errors and
// never reach this function; HandleGenerate maps them itself.
func writeError(w http.ResponseWriter, err error) {
	// errors.As fills appErr if an *AppError is anywhere in the chain.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error: a generic 500. The raw message can carry SQL or
	// upstream details and is only logged, never sent.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// setRetryAfter sets Retry-After in whole seconds until the given time,
// never less than one.
//
// The value is rounded up: a client that waits exactly that long arrives
// after GitHub's reset, not just before it.
func setRetryAfter(w http.ResponseWriter, until, now time.Time) {
	secs := int(math.Ceil(until.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
