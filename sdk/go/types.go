package storageclient

import (
	"net/http"
	"time"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the server address, e.g. "https://files.example.com".
	BaseURL string

	// Owner is the owner id sent with every request.
	Owner string

	// OwnerHeader is the header carrying Owner. Defaults to "X-Owner-ID".
	OwnerHeader string

	// Timeout bounds each HTTP request. Defaults to 5 minutes.
	Timeout time.Duration

	// MaxRetries is how often a chunk is retried after a retryable failure. Defaults to 3.
	MaxRetries int

	// HTTPClient replaces the default HTTP client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// PublicConfig is the server's upload configuration.
type PublicConfig struct {
	MaxChunkSize   int64
	MaxTotalChunks int
}

// File describes a committed file.
type File struct {
	ID        string
	FolderID  string
	Name      string
	Extension string
	MimeType  string
	Size      int64
	CreatedAt time.Time
}

// UploadOptions configures an upload.
type UploadOptions struct {
	// UploadID identifies the upload. A new UUID is generated when empty; pass a previous
	// id together with Resume to continue an interrupted upload.
	UploadID string

	// Resume asks the server which chunks of UploadID it already holds and sends only the
	// missing ones.
	Resume bool

	// Concurrency is the number of chunks in flight. Defaults to 4.
	Concurrency int

	// OnProgress is called after every accepted chunk. Calls may come from several
	// goroutines but never concurrently.
	OnProgress func(UploadProgress)
}

// UploadProgress reports upload progress.
type UploadProgress struct {
	BytesUploaded int64
	TotalBytes    int64
	ChunksDone    int
	TotalChunks   int
	Percentage    int
}

// UploadStatus describes a live upload on the server.
type UploadStatus struct {
	UploadID       string
	FileName       string
	FolderID       string
	ChunksReceived int
	TotalChunks    int
	MissingChunks  []int
	Complete       bool
}

// DownloadOptions configures a download to a file.
type DownloadOptions struct {
	// Overwrite replaces an existing destination file.
	Overwrite bool

	// Resume continues a partial destination file with a Range request.
	Resume bool

	// OnProgress is called as bytes arrive.
	OnProgress func(DownloadProgress)
}

// DownloadProgress reports download progress. TotalBytes is -1 when unknown.
type DownloadProgress struct {
	BytesDownloaded int64
	TotalBytes      int64
	Percentage      int
}

// apiConfigResponse mirrors GET /api/config.
type apiConfigResponse struct {
	MaxChunkSize   int64 `json:"max_chunk_size"`
	MaxTotalChunks int   `json:"max_total_chunks"`
}

// apiFileResponse mirrors the committed file record.
type apiFileResponse struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folder_id"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *apiFileResponse) toFile() *File {
	return &File{
		ID:        f.ID,
		FolderID:  f.FolderID,
		Name:      f.Name,
		Extension: f.Extension,
		MimeType:  f.MimeType,
		Size:      f.Size,
		CreatedAt: f.CreatedAt,
	}
}

// apiChunkResponse mirrors POST /api/files/upload.
type apiChunkResponse struct {
	UploadID       string           `json:"upload_id"`
	ChunkIndex     int              `json:"chunk_index"`
	ChunksReceived int              `json:"chunks_received"`
	TotalChunks    int              `json:"total_chunks"`
	Complete       bool             `json:"complete"`
	File           *apiFileResponse `json:"file,omitempty"`
}

// apiStatusResponse mirrors GET /api/uploads/{uploadId}.
type apiStatusResponse struct {
	UploadID       string `json:"upload_id"`
	FileName       string `json:"file_name"`
	FolderID       string `json:"folder_id"`
	ChunksReceived int    `json:"chunks_received"`
	TotalChunks    int    `json:"total_chunks"`
	MissingChunks  []int  `json:"missing_chunks"`
	Complete       bool   `json:"complete"`
}

// apiErrorResponse mirrors the server's error body.
type apiErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
