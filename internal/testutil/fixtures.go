package testutil

import (
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
)

// SampleOwner returns a test owner with a 1 MiB quota
func SampleOwner() *models.Owner {
	return &models.Owner{
		ID:         "alice",
		LimitBytes: 1 << 20,
		CreatedAt:  time.Now(),
	}
}

// SampleFolder returns the root folder of SampleOwner
func SampleFolder() *models.Folder {
	return &models.Folder{
		ID:        "root",
		OwnerID:   "alice",
		Name:      "root",
		CreatedAt: time.Now(),
	}
}

// SampleArtifact returns a committed artifact record in SampleFolder
func SampleArtifact() *models.Artifact {
	return &models.Artifact{
		ID:          "6f1c4a52-3c1e-4d2a-9b7e-2f0d8c1a5e44",
		OwnerID:     "alice",
		FolderID:    "root",
		Name:        "report.pdf",
		Extension:   "pdf",
		MimeType:    "application/pdf",
		Size:        1024,
		StoragePath: "alice/6f1c4a52-3c1e-4d2a-9b7e-2f0d8c1a5e44",
		CreatedAt:   time.Now(),
	}
}
