package models

import "time"

// Artifact represents a committed file record in the database.
// StoragePath is fixed at promotion time; moving an artifact only changes FolderID.
type Artifact struct {
	ID          string // uuid, also the physical file name
	OwnerID     string
	FolderID    string
	Name        string // display name
	Extension   string // lower-cased, without the dot
	MimeType    string
	Size        int64
	StoragePath string
	Starred     bool
	CreatedAt   time.Time
}

// ArtifactResponse is the JSON representation of an artifact
type ArtifactResponse struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folder_id"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Starred   bool      `json:"starred"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts an artifact to its JSON representation.
func (a *Artifact) ToResponse() *ArtifactResponse {
	return &ArtifactResponse{
		ID:        a.ID,
		FolderID:  a.FolderID,
		Name:      a.Name,
		Extension: a.Extension,
		MimeType:  a.MimeType,
		Size:      a.Size,
		Starred:   a.Starred,
		CreatedAt: a.CreatedAt,
	}
}

// ErrorResponse is the JSON error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the JSON response for the health check endpoint
type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	ActiveUploads int               `json:"active_uploads"`
	Components    map[string]string `json:"components,omitempty"`
	StatusDetails []string          `json:"status_details,omitempty"`
}

// PublicConfigResponse exposes the upload parameters clients need to split files
type PublicConfigResponse struct {
	MaxChunkSize   int64 `json:"max_chunk_size"`
	MaxTotalChunks int   `json:"max_total_chunks"`
}
