// Package repository defines interfaces for data access operations.
// This package provides abstractions for database operations, allowing
// different backend implementations (SQLite, PostgreSQL) to be swapped
// without changing application code.
//
// The upload engine consumes three stores: artifact metadata, folders, and
// per-owner quota accounts. Listing and searching are deliberately absent.
package repository

import "errors"

// Common errors returned by repository operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrQuotaExceeded is returned when an operation would exceed storage quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilDatabase is returned when a nil database connection is provided.
	ErrNilDatabase = errors.New("nil database connection")
)

// DatabaseType identifies the backend behind a Repositories value.
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
)
