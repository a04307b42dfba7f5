package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Mikkel102454/storage-selfhosted/internal/handlers"
	"github.com/Mikkel102454/storage-selfhosted/internal/middleware"
	"github.com/Mikkel102454/storage-selfhosted/internal/testutil"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

func newServer(t *testing.T) string {
	t.Helper()
	env := testutil.SetupTestEnv(t, uploads.Config{MaxChunkSize: 512, MaxTotalChunks: 100})

	r := chi.NewRouter()
	r.Get("/api/config", handlers.PublicConfigHandler(env.Service.Config()))
	r.Group(func(r chi.Router) {
		r.Use(middleware.OwnerIdentity("X-Owner-ID", env.Repos.Owners))
		r.Post("/api/files/upload", handlers.UploadChunkHandler(env.Service))
		r.Get("/api/uploads/{uploadId}", handlers.UploadStatusHandler(env.Service))
		r.Get("/api/folders/{folderId}/files/{fileId}/download", handlers.DownloadHandler(env.Service))
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMissingConfiguration(t *testing.T) {
	t.Setenv("STORAGE_URL", "")
	t.Setenv("STORAGE_OWNER", "")

	_, err := execute(t, "config")
	if err == nil || !strings.Contains(err.Error(), "server URL is required") {
		t.Errorf("config without URL error = %v", err)
	}

	_, err = execute(t, "config", "--url", "http://localhost:1")
	if err == nil || !strings.Contains(err.Error(), "owner id is required") {
		t.Errorf("config without owner error = %v", err)
	}
}

func TestUploadStatusDownload(t *testing.T) {
	url := newServer(t)
	t.Setenv("STORAGE_URL", url)
	t.Setenv("STORAGE_OWNER", testutil.SampleOwner().ID)

	out, err := execute(t, "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if !strings.Contains(out, "512 B") {
		t.Errorf("config output missing chunk size:\n%s", out)
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "data.bin")
	data := bytes.Repeat([]byte("0123456789"), 300)
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "upload", src, "--folder", "root", "--no-progress")
	if err != nil {
		t.Fatalf("upload error = %v\n%s", err, out)
	}
	m := regexp.MustCompile(`File ID:\s+(\S+)`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("upload output has no file id:\n%s", out)
	}
	fileID := m[1]

	dest := filepath.Join(dir, "copy.bin")
	if out, err := execute(t, "download", "root", fileID, dest, "--no-progress"); err != nil {
		t.Fatalf("download error = %v\n%s", err, out)
	}
	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("downloaded content mismatch (err=%v)", err)
	}

	out, err = execute(t, "download", "root", fileID, "-", "--range", "10-19")
	if err != nil {
		t.Fatalf("range download error = %v", err)
	}
	if out != "0123456789" {
		t.Errorf("range output = %q", out)
	}

	if _, err := execute(t, "status", "00000000-0000-4000-8000-000000000000"); err == nil {
		t.Error("status of an unknown upload succeeded")
	}
}

func TestUploadRequiresFolder(t *testing.T) {
	t.Setenv("STORAGE_URL", "http://localhost:1")
	t.Setenv("STORAGE_OWNER", "alice")

	src := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(src, []byte("a"), 0644)

	if _, err := execute(t, "upload", src); err == nil {
		t.Error("upload without --folder succeeded")
	}
	if _, err := execute(t, "upload", src, "--folder", "root", "--resume"); err == nil {
		t.Error("--resume without --upload-id succeeded")
	}
}

func TestParseByteRange(t *testing.T) {
	tests := []struct {
		in         string
		start, end int64
		wantErr    bool
	}{
		{"0-99", 0, 99, false},
		{"100-", 100, -1, false},
		{"5-5", 5, 5, false},
		{"10-5", 0, 0, true},
		{"-10", 0, 0, true},
		{"abc", 0, 0, true},
		{"1-x", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end, err := parseByteRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseByteRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && (start != tt.start || end != tt.end) {
				t.Errorf("parseByteRange(%q) = %d, %d, want %d, %d", tt.in, start, end, tt.start, tt.end)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	if got := formatBytes(512); got != "512 B" {
		t.Errorf("formatBytes(512) = %q", got)
	}
	if got := formatBytes(1536); got != "1.5 KB" {
		t.Errorf("formatBytes(1536) = %q", got)
	}
	if got := progressBar(150); strings.Contains(got, "░") {
		t.Errorf("progressBar(150) = %q, want full bar", got)
	}
	if got := formatIndexes([]int{1, 2, 3}, 2); got != "1, 2, ... (1 more)" {
		t.Errorf("formatIndexes() = %q", got)
	}
}
