package uploads

import "errors"

// Errors returned by Service. Handlers map each one to an HTTP status and error code.
var (
	// ErrChunkTooLarge is returned when a chunk is longer than the configured maximum.
	ErrChunkTooLarge = errors.New("chunk exceeds maximum chunk size")

	// ErrMissingUploadID is returned when a chunk arrives without an upload id.
	ErrMissingUploadID = errors.New("upload id is required")

	// ErrInvalidChunk is returned for malformed chunk parameters.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrNameConflict is returned when the destination folder already holds the file name.
	ErrNameConflict = errors.New("a file with this name already exists in the folder")

	// ErrFolderNotFound is returned when the destination folder does not exist for the owner.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrInsufficientStorage is returned when the completed file does not fit the owner's quota.
	// The staged bytes are kept until the sweeper removes them.
	ErrInsufficientStorage = errors.New("insufficient storage")

	// ErrUnknownUpload is returned for chunks of an upload that was already promoted or
	// discarded, and for status requests on an upload the registry does not know.
	ErrUnknownUpload = errors.New("unknown upload")

	// ErrUploadReset is returned when the staging file no longer holds every received chunk.
	// The staged bytes and the session are dropped; every chunk must be sent again.
	ErrUploadReset = errors.New("upload was reset, every chunk must be sent again")

	// ErrFileNotFound is returned when a committed artifact does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrShuttingDown is returned once Shutdown has begun.
	ErrShuttingDown = errors.New("server is shutting down")
)
