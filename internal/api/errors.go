// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// Error variables for common backend errors.
var (
	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrForbidden indicates the conversation belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrAuthFailed indicates the bearer credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotIndexed indicates chat was attempted before ingestion completed.
	ErrNotIndexed = errors.New("repository not indexed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// APIError represents an error response from the backend.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// errorResponse is the backend's error body shape.
type errorResponse struct {
	Detail string `json:"detail"`
}
