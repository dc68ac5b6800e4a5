package storage

import "errors"

// Sentinels shared by every repository implementation. Callers match them
// with errors.Is; implementations wrap them with detail.
var (
	// ErrNotFound means no live record exists under the requested ID in the caller's scope.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized means the call carried an empty scope. No data is read or written.
	ErrUnauthorized = errors.New("unauthorized scope")

	// ErrInvalidQuery means a caller passed an unusable argument such as a non-positive limit.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps codec errors for stored units, runs and postings.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTransactionFailed wraps a badger commit that did not go through.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed is returned by every call made after Close.
	ErrStorageClosed = errors.New("storage is closed")
)
