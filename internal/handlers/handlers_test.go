package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Mikkel102454/storage-selfhosted/internal/middleware"
	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/testutil"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

const testChunkSize = 1024

// testServer mounts the upload and download handlers the way the server does, with the
// sample owner already identified.
type testServer struct {
	env    *testutil.Env
	router chi.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	env := testutil.SetupTestEnv(t, uploads.Config{MaxChunkSize: testChunkSize, MaxTotalChunks: 100})
	owner := testutil.SampleOwner()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithOwner(req.Context(), owner)))
		})
	})
	r.Post("/api/files/upload", UploadChunkHandler(env.Service))
	r.Get("/api/uploads/{uploadId}", UploadStatusHandler(env.Service))
	r.Get("/api/folders/{folderId}/files/{fileId}/download", DownloadHandler(env.Service))
	r.Get("/api/config", PublicConfigHandler(env.Service.Config()))

	return &testServer{env: env, router: r}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) postChunk(t *testing.T, form testutil.ChunkForm) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := testutil.CreateChunkForm(t, form)
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	return s.do(req)
}

// uploadFile sends data in testChunkSize chunks and returns the committed artifact.
func (s *testServer) uploadFile(t *testing.T, name string, data []byte) *models.ArtifactResponse {
	t.Helper()

	id := uuid.NewString()
	total := (len(data) + testChunkSize - 1) / testChunkSize
	var rr *httptest.ResponseRecorder
	for i := 0; i < total; i++ {
		end := min((i+1)*testChunkSize, len(data))
		rr = s.postChunk(t, testutil.ChunkForm{
			UploadID:    id,
			Index:       i,
			TotalChunks: total,
			FileName:    name,
			FolderID:    testutil.SampleFolder().ID,
			Data:        data[i*testChunkSize : end],
		})
	}

	testutil.AssertStatusCode(t, rr, http.StatusCreated)
	var resp models.UploadChunkResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.File == nil {
		t.Fatal("final chunk response has no file")
	}
	return resp.File
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v (body %q)", err, rr.Body.String())
	}
	return resp
}

// sequence returns n bytes where byte i is i mod 251, so ranges can be checked by offset.
func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestPublicConfigHandler(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/config", nil))
	testutil.AssertStatusCode(t, rr, http.StatusOK)

	var resp models.PublicConfigResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.MaxChunkSize != testChunkSize || resp.MaxTotalChunks != 100 {
		t.Errorf("config = %+v, want max_chunk_size %d, max_total_chunks 100", resp, testChunkSize)
	}
}

func TestRequireOwner_NoOwner(t *testing.T) {
	env := testutil.SetupTestEnv(t, uploads.Config{MaxChunkSize: testChunkSize, MaxTotalChunks: 100})
	handler := UploadStatusHandler(env.Service)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/uploads/x", nil))

	testutil.AssertStatusCode(t, rr, http.StatusUnauthorized)
	if code := decodeError(t, rr).Code; code != "UNAUTHORIZED" {
		t.Errorf("code = %q, want UNAUTHORIZED", code)
	}
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{uploads.ErrChunkTooLarge, http.StatusRequestEntityTooLarge, "CHUNK_TOO_LARGE"},
		{uploads.ErrMissingUploadID, http.StatusBadRequest, "MISSING_UPLOAD_ID"},
		{uploads.ErrInvalidChunk, http.StatusBadRequest, "INVALID_CHUNK"},
		{uploads.ErrNameConflict, http.StatusConflict, "NAME_CONFLICT"},
		{uploads.ErrFolderNotFound, http.StatusNotFound, "FOLDER_NOT_FOUND"},
		{uploads.ErrInsufficientStorage, http.StatusInsufficientStorage, "INSUFFICIENT_STORAGE"},
		{uploads.ErrUnknownUpload, http.StatusNotFound, "UPLOAD_NOT_FOUND"},
		{uploads.ErrUploadReset, http.StatusConflict, "UPLOAD_RESET"},
		{uploads.ErrFileNotFound, http.StatusNotFound, "FILE_NOT_FOUND"},
		{uploads.ErrShuttingDown, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{bytes.ErrTooLarge, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code, msg := serviceError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("serviceError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
			if msg == "" {
				t.Error("empty message")
			}
		})
	}
}
