package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Mikkel102454/storage-selfhosted/internal/config"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository/connect"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage/filesystem"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

// setupTestEnvironment points the configuration at a temporary database and storage root.
func setupTestEnvironment(t *testing.T) (dbPath, storageRoot string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "storage.db")
	storageRoot = filepath.Join(dir, "data")

	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("STORAGE_ROOT", storageRoot)
	return dbPath, storageRoot
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v\noutput: %s", args, err, out)
	}
	return out
}

func TestRun_Version(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.Contains(out, ToolVersion) {
		t.Errorf("output %q does not contain version", out)
	}
}

func TestRun_NoArguments(t *testing.T) {
	out, err := runCmd(t)
	if err == nil {
		t.Error("run() without a command succeeded")
	}
	if !strings.Contains(out, "Usage:") {
		t.Error("usage not printed")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	setupTestEnvironment(t)
	if _, err := runCmd(t, "frobnicate"); err == nil {
		t.Error("unknown command succeeded")
	}
}

func TestRun_MissingRequiredFlags(t *testing.T) {
	setupTestEnvironment(t)

	tests := [][]string{
		{"create-owner"},
		{"set-limit", "-id", "alice"},
		{"show-owner"},
		{"create-folder", "-owner", "alice", "-id", "root"},
		{"delete-file", "-owner", "alice"},
		{"move-file", "-owner", "alice", "-id", "x"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := runCmd(t, args...); err == nil {
				t.Error("command without required flags succeeded")
			}
		})
	}
}

func TestRun_OwnerLifecycle(t *testing.T) {
	setupTestEnvironment(t)

	mustRun(t, "create-owner", "-id", "alice", "-limit", "1000")
	if _, err := runCmd(t, "create-owner", "-id", "alice", "-limit", "1000"); err == nil {
		t.Error("duplicate create-owner succeeded")
	}

	mustRun(t, "set-limit", "-id", "alice", "-limit", "5000")
	if _, err := runCmd(t, "set-limit", "-id", "bob", "-limit", "5"); err == nil {
		t.Error("set-limit for unknown owner succeeded")
	}

	var report ownerReport
	if err := json.Unmarshal([]byte(mustRun(t, "show-owner", "-id", "alice")), &report); err != nil {
		t.Fatalf("failed to decode show-owner output: %v", err)
	}
	if report.LimitBytes != 5000 || report.UsedBytes != 0 || report.AvailableBytes != 5000 {
		t.Errorf("report = %+v, want limit 5000, used 0", report)
	}

	mustRun(t, "create-folder", "-owner", "alice", "-id", "root", "-name", "Home")
	mustRun(t, "create-folder", "-owner", "alice", "-id", "docs", "-name", "Docs", "-parent", "root")
	if _, err := runCmd(t, "create-folder", "-owner", "alice", "-id", "orphan", "-name", "x", "-parent", "missing"); err == nil {
		t.Error("create-folder with unknown parent succeeded")
	}
}

// commitFile uploads data as a single-chunk file using the same database and storage root
// as the CLI.
func commitFile(t *testing.T, dbPath, storageRoot, name string, data []byte) string {
	t.Helper()
	ctx := context.Background()

	repos, err := connect.Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: dbPath})
	if err != nil {
		t.Fatalf("connect.Open() error = %v", err)
	}
	defer repos.Close()

	store, err := filesystem.New(storageRoot)
	if err != nil {
		t.Fatalf("filesystem.New() error = %v", err)
	}
	svc := uploads.NewService(store, repos, uploads.Config{MaxChunkSize: 1 << 20, MaxTotalChunks: 10})

	id := uuid.NewString()
	res, err := svc.UploadChunk(ctx, uploads.Chunk{
		Owner:       "alice",
		UploadID:    id,
		TotalChunks: 1,
		FileName:    name,
		FolderID:    "root",
		Size:        int64(len(data)),
		Data:        bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("UploadChunk() error = %v", err)
	}
	if res.Artifact == nil {
		t.Fatal("upload was not committed")
	}
	return res.Artifact.ID
}

func TestRun_MoveAndDeleteFile(t *testing.T) {
	dbPath, storageRoot := setupTestEnvironment(t)

	mustRun(t, "create-owner", "-id", "alice", "-limit", "1000")
	mustRun(t, "create-folder", "-owner", "alice", "-id", "root", "-name", "Home")
	mustRun(t, "create-folder", "-owner", "alice", "-id", "docs", "-name", "Docs", "-parent", "root")

	id := commitFile(t, dbPath, storageRoot, "notes.txt", []byte("some notes"))

	if _, err := runCmd(t, "move-file", "-owner", "alice", "-id", id, "-folder", "nowhere"); err == nil {
		t.Error("move-file to unknown folder succeeded")
	}
	mustRun(t, "move-file", "-owner", "alice", "-id", id, "-folder", "docs")

	var report ownerReport
	json.Unmarshal([]byte(mustRun(t, "show-owner", "-id", "alice")), &report)
	if report.UsedBytes != 10 {
		t.Errorf("used bytes = %d, want 10", report.UsedBytes)
	}

	out := mustRun(t, "delete-file", "-owner", "alice", "-id", id)
	if !strings.Contains(out, "notes.txt") {
		t.Errorf("delete output %q does not name the file", out)
	}

	json.Unmarshal([]byte(mustRun(t, "show-owner", "-id", "alice")), &report)
	if report.UsedBytes != 0 {
		t.Errorf("used bytes after delete = %d, want 0", report.UsedBytes)
	}

	if _, err := runCmd(t, "delete-file", "-owner", "alice", "-id", id); err == nil {
		t.Error("second delete-file succeeded")
	}
}

func TestRun_Sweep(t *testing.T) {
	setupTestEnvironment(t)

	out := mustRun(t, "sweep")
	if !strings.Contains(out, "scanned 0 staging files") {
		t.Errorf("sweep output = %q", out)
	}
}
