package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

func TestFolderRepository(t *testing.T) {
	db := setupTestDB(t)
	owners := NewOwnerRepository(db)
	folders := NewFolderRepository(db)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if err := owners.Create(ctx, &models.Owner{ID: id, LimitBytes: 100}); err != nil {
			t.Fatal(err)
		}
	}

	if err := folders.Create(ctx, &models.Folder{ID: "root", OwnerID: "alice", Name: "root"}); err != nil {
		t.Fatalf("Create root failed: %v", err)
	}

	root := "root"
	if err := folders.Create(ctx, &models.Folder{ID: "docs", OwnerID: "alice", ParentID: &root, Name: "docs"}); err != nil {
		t.Fatalf("Create child failed: %v", err)
	}

	got, err := folders.GetByID(ctx, "alice", "docs")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ParentID == nil || *got.ParentID != "root" {
		t.Errorf("ParentID = %v, want root", got.ParentID)
	}

	tests := []struct {
		owner, id string
		want      bool
	}{
		{"alice", "root", true},
		{"alice", "docs", true},
		{"bob", "root", false},
		{"alice", "missing", false},
	}
	for _, tt := range tests {
		exists, err := folders.Exists(ctx, tt.owner, tt.id)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists != tt.want {
			t.Errorf("Exists(%q, %q) = %v, want %v", tt.owner, tt.id, exists, tt.want)
		}
	}

	if _, err := folders.GetByID(ctx, "bob", "root"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID for another owner error = %v, want ErrNotFound", err)
	}

	// A parent belonging to another owner is rejected.
	if err := folders.Create(ctx, &models.Folder{ID: "evil", OwnerID: "bob", ParentID: &root, Name: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("cross-owner parent error = %v, want ErrNotFound", err)
	}
	if err := folders.Create(ctx, &models.Folder{ID: "root", OwnerID: "alice", Name: "dup"}); !errors.Is(err, repository.ErrDuplicateKey) {
		t.Errorf("duplicate id error = %v, want ErrDuplicateKey", err)
	}
	if err := folders.Create(ctx, &models.Folder{ID: "orphan", OwnerID: "nobody", Name: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown owner error = %v, want ErrNotFound", err)
	}
}
