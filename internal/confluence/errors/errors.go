package errors

// Package errors provides sentinel errors for remote content API operations.
// These enable consistent classification of fetch failures across the run.

import "errors"

var (
	// ErrNotFound indicates the requested page ID does not exist on the remote.
	ErrNotFound = errors.New("page not found")

	// ErrUnauthorized indicates the credential pair was rejected by the remote API.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the operation was abandoned while waiting out
	// a remote back-off (HTTP 429).
	ErrRateLimited = errors.New("rate limited")

	// ErrRemote indicates a network or API failure that exhausted its retry budget.
	ErrRemote = errors.New("remote request failed")

	// ErrAssetUnavailable indicates a single binary asset could not be downloaded.
	ErrAssetUnavailable = errors.New("asset unavailable")
)
