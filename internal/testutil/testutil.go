// Package testutil holds helpers shared by the HTTP and command tests.
package testutil

import (
	"bytes"
	"database/sql"
	"mime/multipart"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/Mikkel102454/storage-selfhosted/internal/config"
	"github.com/Mikkel102454/storage-selfhosted/internal/database"
)

// SetupTestDB creates an in-memory SQLite database with all migrations applied.
// The database is automatically closed when the test completes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupTestConfig loads the default configuration with a temporary storage root and an
// in-memory SQLite database.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	t.Setenv("CONFIG_PATH", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	cfg.StorageRoot = t.TempDir()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = ":memory:"
	cfg.Upload.MaxChunkSize = 1024
	cfg.Upload.MaxTotalChunks = 1000

	return cfg
}

// ChunkForm describes one chunk request body.
type ChunkForm struct {
	UploadID    string
	Index       int
	TotalChunks int
	FileName    string
	FolderID    string
	Data        []byte

	// PartName names the multipart part holding Data. Defaults to "chunk".
	PartName string
}

// CreateChunkForm builds the multipart body of a chunk upload.
// Returns the body buffer and content type for the request.
func CreateChunkForm(t testing.TB, f ChunkForm) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"uploadId":    f.UploadID,
		"chunkIndex":  strconv.Itoa(f.Index),
		"totalChunks": strconv.Itoa(f.TotalChunks),
		"fileName":    f.FileName,
		"folderId":    f.FolderID,
	}
	for key, val := range fields {
		if err := writer.WriteField(key, val); err != nil {
			t.Fatalf("failed to write form field %s: %v", key, err)
		}
	}

	if f.Data != nil {
		partName := f.PartName
		if partName == "" {
			partName = "chunk"
		}
		part, err := writer.CreateFormFile(partName, "blob")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			t.Fatalf("failed to write chunk content: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

// AssertStatusCode checks that the HTTP response status code matches expected
func AssertStatusCode(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int) {
	t.Helper()

	if rr.Code != wantStatus {
		t.Errorf("status code = %d, want %d\nBody: %s", rr.Code, wantStatus, rr.Body.String())
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertContains fails the test if haystack doesn't contain needle
func AssertContains(t *testing.T, haystack, needle string) {
	t.Helper()

	if !bytes.Contains([]byte(haystack), []byte(needle)) {
		t.Errorf("expected %q to contain %q", haystack, needle)
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()

	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
