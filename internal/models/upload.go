package models

// UploadChunkResponse represents the response after uploading a chunk
type UploadChunkResponse struct {
	UploadID       string            `json:"upload_id"`
	ChunkIndex     int               `json:"chunk_index"`
	ChunksReceived int               `json:"chunks_received"`
	TotalChunks    int               `json:"total_chunks"`
	Complete       bool              `json:"complete"`
	File           *ArtifactResponse `json:"file,omitempty"`
}

// UploadStatusResponse represents the response for upload status requests
type UploadStatusResponse struct {
	UploadID       string `json:"upload_id"`
	FileName       string `json:"file_name"`
	FolderID       string `json:"folder_id"`
	ChunksReceived int    `json:"chunks_received"`
	TotalChunks    int    `json:"total_chunks"`
	MissingChunks  []int  `json:"missing_chunks,omitempty"`
	Complete       bool   `json:"complete"`
}
