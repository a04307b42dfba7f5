// Package storage defines the on-disk contract of the upload engine: staging files that
// accumulate chunks, and committed artifacts that are served to readers.
// The filesystem package provides the implementation used in production.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a staging file or committed artifact is absent on disk.
var ErrNotFound = errors.New("file not found")

// StagingEntry describes one staging file found while scanning the storage root.
type StagingEntry struct {
	Owner    string
	UploadID string
	Path     string
	Size     int64
	ModTime  time.Time
}

// Artifact is an open read handle on a committed artifact.
// The caller is responsible for closing it.
type Artifact struct {
	io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// Backend defines the storage operations used by the chunk writer, the promoter,
// the range reader and the stale upload sweeper.
type Backend interface {
	// Staging operations

	// WriteChunk writes exactly size bytes from data at offset inside the staging file of
	// (owner, uploadID). The file is created when missing. Only [offset, offset+size) is
	// locked while writing, and the data is flushed to stable storage before returning.
	WriteChunk(ctx context.Context, owner, uploadID string, offset int64, data io.Reader, size int64) error

	// StagedSize returns the current size of the staging file.
	StagedSize(owner, uploadID string) (int64, error)

	// StatStaging describes the staging file as it is now.
	// Returns an error wrapping ErrNotFound when the file is absent.
	StatStaging(owner, uploadID string) (StagingEntry, error)

	// OpenStaging opens the staging file for reading (content sniffing before promotion).
	OpenStaging(owner, uploadID string) (io.ReadCloser, error)

	// RemoveStaging deletes the staging file. Removing a missing file is not an error.
	RemoveStaging(owner, uploadID string) error

	// ListStaging returns every staging file below the storage root.
	ListStaging(ctx context.Context) ([]StagingEntry, error)

	// Commit operations

	// Promote renames the staging file to its permanent artifact path and returns that path.
	// It fails if an artifact with the same id already exists.
	Promote(owner, uploadID, artifactID string) (string, error)

	// Demote reverses Promote. Used when the metadata write after a rename fails.
	Demote(owner, uploadID, artifactID string) error

	// Artifact operations

	// ArtifactExists reports whether a committed artifact is present on disk.
	ArtifactExists(owner, artifactID string) (bool, error)

	// OpenArtifact opens a committed artifact for reading.
	// Returns an error wrapping ErrNotFound when the file is absent.
	OpenArtifact(owner, artifactID string) (*Artifact, error)

	// RemoveArtifact deletes a committed artifact.
	RemoveArtifact(owner, artifactID string) error

	// Space management

	// Probe verifies that the storage root is writable.
	Probe(ctx context.Context) error
}

// StorageError represents errors from storage operations with additional context.
type StorageError struct {
	Op      string // Operation that failed (e.g., "WriteChunk", "Promote")
	Path    string // Path or identifier involved
	Err     error  // Underlying error
	Message string // Human-readable message
}

func (e *StorageError) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Op + " " + e.Path + ": " + e.Message + ": " + e.Err.Error()
		}
		return e.Op + " " + e.Path + ": " + e.Message
	}
	if e.Err == nil {
		return e.Op + " " + e.Path
	}
	if e.Path != "" {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError with the given details.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// NewStorageErrorWithMessage creates a new StorageError with a custom message.
func NewStorageErrorWithMessage(op, path string, err error, message string) *StorageError {
	return &StorageError{
		Op:      op,
		Path:    path,
		Err:     err,
		Message: message,
	}
}

// copyBufferSize bounds the memory used when streaming an artifact range.
const copyBufferSize = 32 * 1024

// CopyRange seeks src to start and copies exactly length bytes to dst through a fixed-size
// buffer. It returns io.ErrUnexpectedEOF if src ends early.
func CopyRange(dst io.Writer, src io.ReadSeeker, start, length int64) (int64, error) {
	if start < 0 || length < 0 {
		return 0, NewStorageErrorWithMessage("CopyRange", "", nil, "negative range")
	}
	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return 0, NewStorageError("CopyRange", "", err)
	}

	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(dst, io.LimitReader(src, length), buf)
	if err != nil {
		return written, err
	}
	if written < length {
		return written, io.ErrUnexpectedEOF
	}
	return written, nil
}
