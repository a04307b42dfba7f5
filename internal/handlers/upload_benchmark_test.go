package handlers

import (
	"bytes"
	"fmt"
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

const benchChunkSize = 64 * 1024

// setupBenchmark returns an upload handler for an owner whose quota never runs out.
func setupBenchmark(b *testing.B) (*testutil.Env, http.Handler, *models.Owner) {
	b.Helper()
	env := testutil.SetupTestEnv(b, uploads.Config{MaxChunkSize: benchChunkSize, MaxTotalChunks: 1000})

	owner := testutil.SampleOwner()
	owner.LimitBytes = 1 << 50
	env.Repos.Owners.AddOwner(owner)

	return env, UploadChunkHandler(env.Service), owner
}

func benchUpload(b *testing.B, handler http.Handler, owner *models.Owner, content []byte, chunks int) {
	id := uuid.NewString()
	size := len(content) / chunks
	for i := 0; i < chunks; i++ {
		body, contentType := testutil.CreateChunkForm(b, testutil.ChunkForm{
			UploadID:    id,
			Index:       i,
			TotalChunks: chunks,
			FileName:    id + ".bin",
			FolderID:    testutil.SampleFolder().ID,
			Data:        content[i*size : (i+1)*size],
		})

		req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
		req.Header.Set("Content-Type", contentType)
		req = req.WithContext(middleware.WithOwner(req.Context(), owner))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		want := http.StatusOK
		if i == chunks-1 {
			want = http.StatusCreated
		}
		if rr.Code != want {
			b.Fatalf("chunk %d failed: status = %d, body = %s", i, rr.Code, rr.Body.String())
		}
	}
}

// BenchmarkUploadSingleChunk benchmarks a file that fits in one chunk (64KB)
func BenchmarkUploadSingleChunk(b *testing.B) {
	_, handler, owner := setupBenchmark(b)
	content := bytes.Repeat([]byte("A"), benchChunkSize)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		benchUpload(b, handler, owner, content, 1)
	}
}

// BenchmarkUploadChunked benchmarks a 16-chunk file (1MB)
func BenchmarkUploadChunked(b *testing.B) {
	_, handler, owner := setupBenchmark(b)
	content := bytes.Repeat([]byte("B"), 16*benchChunkSize)

	b.SetBytes(int64(len(content)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		benchUpload(b, handler, owner, content, 16)
	}
}

// BenchmarkConcurrentUploads benchmarks independent uploads running in parallel
func BenchmarkConcurrentUploads(b *testing.B) {
	_, handler, owner := setupBenchmark(b)
	content := bytes.Repeat([]byte("C"), 4*benchChunkSize)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			benchUpload(b, handler, owner, content, 4)
		}
	})
}

// BenchmarkRangeDownload benchmarks 4KB range reads from a 1MB file
func BenchmarkRangeDownload(b *testing.B) {
	env, handler, owner := setupBenchmark(b)
	content := bytes.Repeat([]byte("D"), 16*benchChunkSize)
	benchUpload(b, handler, owner, content, 16)

	artifacts := env.Repos.Artifacts.Artifacts()
	if len(artifacts) != 1 {
		b.Fatalf("stored %d artifacts, want 1", len(artifacts))
	}
	path := fmt.Sprintf("/api/folders/%s/files/%s/download", testutil.SampleFolder().ID, artifacts[0].ID)

	download := chi.NewRouter()
	download.Get("/api/folders/{folderId}/files/{fileId}/download", DownloadHandler(env.Service))

	b.SetBytes(4096)
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		start := (i * 4096) % len(content)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, start+4095))
		req = req.WithContext(middleware.WithOwner(req.Context(), owner))
		rr := httptest.NewRecorder()

		download.ServeHTTP(rr, req)

		if rr.Code != http.StatusPartialContent {
			b.Fatalf("range read failed: status = %d", rr.Code)
		}
	}
}
