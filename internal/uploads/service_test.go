package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository/mock"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage/filesystem"
)

const (
	testOwner     = "alice"
	testFolder    = "root"
	testChunkSize = 16
)

type testEnv struct {
	svc   *Service
	store *filesystem.Store
	repos *mock.Repositories
}

func newTestEnv(t *testing.T, limit int64) *testEnv {
	t.Helper()

	store, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem.New() error = %v", err)
	}

	repos := mock.NewRepositories()
	repos.Owners.AddOwner(&models.Owner{ID: testOwner, LimitBytes: limit})
	if err := repos.Folders.Create(context.Background(), &models.Folder{ID: testFolder, OwnerID: testOwner, Name: "root"}); err != nil {
		t.Fatalf("Folders.Create() error = %v", err)
	}

	svc := NewService(store, repos.Repositories(), Config{MaxChunkSize: testChunkSize, MaxTotalChunks: 100})
	return &testEnv{svc: svc, store: store, repos: repos}
}

// payload returns n deterministic bytes.
func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

// split cuts data into testChunkSize pieces.
func split(data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > testChunkSize {
		chunks = append(chunks, data[:testChunkSize])
		data = data[testChunkSize:]
	}
	return append(chunks, data)
}

func (e *testEnv) send(uploadID, name, folder string, chunks [][]byte, idx int) (*ChunkResult, error) {
	return e.svc.UploadChunk(context.Background(), Chunk{
		Owner:       testOwner,
		UploadID:    uploadID,
		Index:       idx,
		TotalChunks: len(chunks),
		FileName:    name,
		FolderID:    folder,
		Size:        int64(len(chunks[idx])),
		Data:        bytes.NewReader(chunks[idx]),
	})
}

// upload sends every chunk in order and returns the committed artifact.
func (e *testEnv) upload(t *testing.T, name string, data []byte) *models.Artifact {
	t.Helper()
	id := uuid.NewString()
	chunks := split(data)
	var res *ChunkResult
	var err error
	for i := range chunks {
		res, err = e.send(id, name, testFolder, chunks, i)
		if err != nil {
			t.Fatalf("UploadChunk(%d) error = %v", i, err)
		}
	}
	if res.Artifact == nil {
		t.Fatal("last chunk did not commit the upload")
	}
	return res.Artifact
}

func (e *testEnv) readArtifact(t *testing.T, id string) []byte {
	t.Helper()
	f, err := e.store.OpenArtifact(testOwner, id)
	if err != nil {
		t.Fatalf("OpenArtifact() error = %v", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return b
}

func (e *testEnv) stagingExists(t *testing.T, uploadID string) bool {
	t.Helper()
	path, err := e.store.StagingPath(testOwner, uploadID)
	if err != nil {
		t.Fatalf("StagingPath() error = %v", err)
	}
	_, err = os.Stat(path)
	return err == nil
}

func TestUploadChunk_OutOfOrderWithDuplicates(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	data := payload(10*testChunkSize + 5)
	chunks := split(data)
	id := uuid.NewString()

	rng := rand.New(rand.NewSource(42))
	order := rng.Perm(len(chunks))
	last := order[len(order)-1]
	// Re-send some already delivered chunks before the final one.
	order = append(order[:len(order)-1], order[0], order[3], order[3], last)

	var committed *models.Artifact
	for n, idx := range order {
		res, err := env.send(id, "notes.txt", testFolder, chunks, idx)
		if err != nil {
			t.Fatalf("send #%d (chunk %d) error = %v", n, idx, err)
		}
		if res.Artifact != nil {
			if n != len(order)-1 {
				t.Fatalf("upload committed early at send #%d", n)
			}
			committed = res.Artifact
		}
	}

	if committed == nil {
		t.Fatal("upload was not committed")
	}
	if got := env.readArtifact(t, committed.ID); !bytes.Equal(got, data) {
		t.Errorf("committed bytes differ from the original (%d vs %d bytes)", len(got), len(data))
	}
	if committed.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", committed.Size, len(data))
	}
	if committed.Extension != "txt" {
		t.Errorf("Extension = %q, want txt", committed.Extension)
	}
	if committed.MimeType == "" {
		t.Error("MimeType is empty")
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != int64(len(data)) {
		t.Errorf("UsedBytes = %d, want %d", got, len(data))
	}
	if env.stagingExists(t, id) {
		t.Error("staging file still present after commit")
	}
	if env.svc.ActiveUploads() != 0 {
		t.Errorf("ActiveUploads() = %d, want 0", env.svc.ActiveUploads())
	}
}

func TestUploadChunk_DuplicateNotCounted(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(3 * testChunkSize))
	id := uuid.NewString()

	res, err := env.send(id, "a.bin", testFolder, chunks, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Received != 1 || res.Duplicate {
		t.Fatalf("first send: Received=%d Duplicate=%v", res.Received, res.Duplicate)
	}

	res, err = env.send(id, "a.bin", testFolder, chunks, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Received != 1 {
		t.Errorf("Received after duplicate = %d, want 1", res.Received)
	}
	if !res.Duplicate {
		t.Error("Duplicate = false for a re-sent chunk")
	}

	status, err := env.svc.Status(testOwner, id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Received != 1 || status.TotalChunks != 3 {
		t.Errorf("Status = %d/%d, want 1/3", status.Received, status.TotalChunks)
	}
	if len(status.Missing) != 2 || status.Missing[0] != 0 || status.Missing[1] != 2 {
		t.Errorf("Missing = %v, want [0 2]", status.Missing)
	}
}

func TestUploadChunk_ConcurrentDelivery(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	data := payload(8*testChunkSize + 3)
	chunks := split(data)
	id := uuid.NewString()

	const copies = 3
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		commits    int
		start      = make(chan struct{})
		unexpected []error
	)
	for c := 0; c < copies; c++ {
		for i := range chunks {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				res, err := env.send(id, "movie.bin", testFolder, chunks, i)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil && res.Artifact != nil:
					commits++
				case err == nil, errors.Is(err, ErrUnknownUpload):
					// Late duplicates of a committed upload are rejected.
				default:
					unexpected = append(unexpected, err)
				}
			}(i)
		}
	}
	close(start)
	wg.Wait()

	for _, err := range unexpected {
		t.Errorf("unexpected error: %v", err)
	}
	if commits != 1 {
		t.Fatalf("commits = %d, want 1", commits)
	}
	if n := env.repos.Artifacts.CreateCount(); n != 1 {
		t.Errorf("metadata records = %d, want 1", n)
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != int64(len(data)) {
		t.Errorf("UsedBytes = %d, want %d", got, len(data))
	}
	if got := env.readArtifact(t, id); !bytes.Equal(got, data) {
		t.Error("committed bytes differ from the original")
	}
	if env.stagingExists(t, id) {
		t.Error("staging file re-created after commit")
	}
}

func TestUploadChunk_Oversize(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	id := uuid.NewString()
	big := payload(testChunkSize + 1)

	_, err := env.svc.UploadChunk(context.Background(), Chunk{
		Owner: testOwner, UploadID: id, Index: 0, TotalChunks: 1,
		FileName: "big.bin", FolderID: testFolder,
		Size: int64(len(big)), Data: bytes.NewReader(big),
	})
	if !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("error = %v, want ErrChunkTooLarge", err)
	}
	if env.stagingExists(t, id) {
		t.Error("staging file created for an oversize chunk")
	}
	if env.svc.ActiveUploads() != 0 {
		t.Error("session created for an oversize chunk")
	}
}

func TestUploadChunk_InvalidParameters(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	full := payload(testChunkSize)

	valid := func() Chunk {
		return Chunk{
			Owner: testOwner, UploadID: uuid.NewString(), Index: 0, TotalChunks: 2,
			FileName: "a.txt", FolderID: testFolder,
			Size: testChunkSize, Data: bytes.NewReader(full),
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Chunk)
		wantErr error
	}{
		{"missing upload id", func(c *Chunk) { c.UploadID = "" }, ErrMissingUploadID},
		{"upload id not a uuid", func(c *Chunk) { c.UploadID = "../../etc" }, ErrInvalidChunk},
		{"negative index", func(c *Chunk) { c.Index = -1 }, ErrInvalidChunk},
		{"index past total", func(c *Chunk) { c.Index = 2 }, ErrInvalidChunk},
		{"zero total", func(c *Chunk) { c.TotalChunks = 0 }, ErrInvalidChunk},
		{"too many chunks", func(c *Chunk) { c.TotalChunks = 101 }, ErrInvalidChunk},
		{"empty name", func(c *Chunk) { c.FileName = "" }, ErrInvalidChunk},
		{"blank name", func(c *Chunk) { c.FileName = "   " }, ErrInvalidChunk},
		{"name with separator", func(c *Chunk) { c.FileName = "a/b.txt" }, ErrInvalidChunk},
		{"missing folder", func(c *Chunk) { c.FolderID = "" }, ErrInvalidChunk},
		{"short non-final chunk", func(c *Chunk) { c.Size = 4; c.Data = bytes.NewReader(full[:4]) }, ErrInvalidChunk},
		{"nil data", func(c *Chunk) { c.Data = nil }, ErrInvalidChunk},
		{"empty final chunk", func(c *Chunk) { c.Index = 1; c.Size = 0; c.Data = bytes.NewReader(nil) }, ErrInvalidChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			_, err := env.svc.UploadChunk(context.Background(), c)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if env.svc.ActiveUploads() != 0 {
		t.Errorf("ActiveUploads() = %d after rejected chunks, want 0", env.svc.ActiveUploads())
	}
}

func TestUploadChunk_NormalizesNameAndUploadID(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	id := uuid.New()
	data := payload(5)

	res, err := env.svc.UploadChunk(context.Background(), Chunk{
		Owner: testOwner, UploadID: "{" + id.String() + "}", Index: 0, TotalChunks: 1,
		FileName: "  my   report.PDF ", FolderID: testFolder,
		Size: int64(len(data)), Data: bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("UploadChunk() error = %v", err)
	}
	if res.Artifact == nil {
		t.Fatal("single chunk upload was not committed")
	}
	if res.Artifact.ID != id.String() {
		t.Errorf("artifact ID = %q, want %q", res.Artifact.ID, id.String())
	}
	if res.Artifact.Name != "my report.PDF" {
		t.Errorf("Name = %q, want %q", res.Artifact.Name, "my report.PDF")
	}
	if res.Artifact.Extension != "pdf" {
		t.Errorf("Extension = %q, want pdf", res.Artifact.Extension)
	}
}

func TestUploadChunk_NameConflictDuringUpload(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(2 * testChunkSize))
	id := uuid.NewString()

	if _, err := env.send(id, "report.pdf", testFolder, chunks, 0); err != nil {
		t.Fatal(err)
	}

	// Another upload with the same name commits first.
	env.upload(t, "report.pdf", payload(7))

	_, err := env.send(id, "report.pdf", testFolder, chunks, 1)
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("error = %v, want ErrNameConflict", err)
	}
	if n := env.repos.Artifacts.CreateCount(); n != 1 {
		t.Errorf("metadata records = %d, want 1", n)
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != 7 {
		t.Errorf("UsedBytes = %d, want 7", got)
	}
}

func TestUploadChunk_ConflictAtCommit(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(2 * testChunkSize))
	id := uuid.NewString()

	// The name is taken between the last chunk's check and the metadata write.
	env.repos.Artifacts.OnCreateWithQuota = func(ctx context.Context, a *models.Artifact) error {
		return repository.ErrDuplicateKey
	}

	if _, err := env.send(id, "report.pdf", testFolder, chunks, 0); err != nil {
		t.Fatal(err)
	}
	_, err := env.send(id, "report.pdf", testFolder, chunks, 1)
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("error = %v, want ErrNameConflict", err)
	}

	if env.stagingExists(t, id) {
		t.Error("staging file kept after a conflict")
	}
	if exists, _ := env.store.ArtifactExists(testOwner, id); exists {
		t.Error("artifact file kept after a failed metadata write")
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != 0 {
		t.Errorf("UsedBytes = %d, want 0", got)
	}

	env.repos.Artifacts.OnCreateWithQuota = nil
	if _, err := env.send(id, "report.pdf", testFolder, chunks, 0); !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("chunk after conflict error = %v, want ErrUnknownUpload", err)
	}
}

func TestUploadChunk_InsufficientStorage(t *testing.T) {
	data := payload(3 * testChunkSize)
	env := newTestEnv(t, int64(len(data))-1)
	chunks := split(data)
	id := uuid.NewString()

	var err error
	for i := range chunks {
		_, err = env.send(id, "big.bin", testFolder, chunks, i)
	}
	if !errors.Is(err, ErrInsufficientStorage) {
		t.Fatalf("last chunk error = %v, want ErrInsufficientStorage", err)
	}

	if n := env.repos.Artifacts.CreateCount(); n != 0 {
		t.Errorf("metadata records = %d, want 0", n)
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != 0 {
		t.Errorf("UsedBytes = %d, want 0", got)
	}
	if !env.stagingExists(t, id) {
		t.Error("staging file removed after a quota failure")
	}
	if _, err := env.svc.Status(testOwner, id); err != nil {
		t.Errorf("session lost after a quota failure: %v", err)
	}

	// Once the quota is raised, re-sending any chunk commits the upload.
	if err := env.repos.Owners.SetLimit(context.Background(), testOwner, 1<<20); err != nil {
		t.Fatal(err)
	}
	res, err := env.send(id, "big.bin", testFolder, chunks, 0)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if res.Artifact == nil {
		t.Fatal("retry did not commit the upload")
	}
	if got := env.readArtifact(t, id); !bytes.Equal(got, data) {
		t.Error("committed bytes differ from the original")
	}
}

func TestUploadChunk_QuotaRaceAtCommit(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(testChunkSize))
	id := uuid.NewString()

	env.repos.Artifacts.OnCreateWithQuota = func(ctx context.Context, a *models.Artifact) error {
		return repository.ErrQuotaExceeded
	}

	_, err := env.send(id, "a.bin", testFolder, chunks, 0)
	if !errors.Is(err, ErrInsufficientStorage) {
		t.Fatalf("error = %v, want ErrInsufficientStorage", err)
	}
	if !env.stagingExists(t, id) {
		t.Error("promotion was not rolled back")
	}
	if exists, _ := env.store.ArtifactExists(testOwner, id); exists {
		t.Error("artifact file left behind")
	}
}

func TestUploadChunk_FolderNotFound(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(testChunkSize + 2))
	id := uuid.NewString()

	// The first chunk is refused before anything is staged.
	if _, err := env.send(id, "a.txt", "missing-folder", chunks, 0); !errors.Is(err, ErrFolderNotFound) {
		t.Fatalf("first chunk error = %v, want ErrFolderNotFound", err)
	}
	if env.stagingExists(t, id) {
		t.Error("staging file created for a missing folder")
	}
	if env.svc.ActiveUploads() != 0 {
		t.Errorf("ActiveUploads() = %d, want 0", env.svc.ActiveUploads())
	}

	if _, err := env.send(id, "a.txt", "missing-folder", chunks, 1); !errors.Is(err, ErrFolderNotFound) {
		t.Fatalf("last chunk error = %v, want ErrFolderNotFound", err)
	}
	if n := env.repos.Artifacts.CreateCount(); n != 0 {
		t.Errorf("metadata records = %d, want 0", n)
	}
}

func TestUploadChunk_FolderRemovedBeforeCommit(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(testChunkSize + 2))
	id := uuid.NewString()

	if _, err := env.send(id, "a.txt", testFolder, chunks, 0); err != nil {
		t.Fatalf("first chunk error = %v", err)
	}
	env.repos.Folders.Delete(testFolder)

	if _, err := env.send(id, "a.txt", testFolder, chunks, 1); !errors.Is(err, ErrFolderNotFound) {
		t.Fatalf("last chunk error = %v, want ErrFolderNotFound", err)
	}
	if env.stagingExists(t, id) {
		t.Error("staging file kept after the folder disappeared")
	}
	if n := env.repos.Artifacts.CreateCount(); n != 0 {
		t.Errorf("metadata records = %d, want 0", n)
	}
}

func TestUploadChunk_LostStagedBytes(t *testing.T) {
	data := payload(2 * testChunkSize)
	env := newTestEnv(t, 1<<20)
	chunks := split(data)
	id := uuid.NewString()

	if _, err := env.send(id, "a.bin", testFolder, chunks, 1); err != nil {
		t.Fatalf("chunk 1 error = %v", err)
	}

	// The bytes of chunk 1 vanish from disk while the session still counts them.
	path, err := env.store.StagingPath(testOwner, id)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}

	if _, err := env.send(id, "a.bin", testFolder, chunks, 0); !errors.Is(err, ErrUploadReset) {
		t.Fatalf("chunk 0 error = %v, want ErrUploadReset", err)
	}
	if n := env.repos.Artifacts.CreateCount(); n != 0 {
		t.Errorf("metadata records = %d, want 0", n)
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != 0 {
		t.Errorf("UsedBytes = %d, want 0", got)
	}
	if env.stagingExists(t, id) {
		t.Error("short staging file kept")
	}
	if _, err := env.svc.Status(testOwner, id); !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("Status() error = %v, want ErrUnknownUpload", err)
	}

	// The same upload id can be sent again from scratch.
	var res *ChunkResult
	for i := range chunks {
		res, err = env.send(id, "a.bin", testFolder, chunks, i)
		if err != nil {
			t.Fatalf("resend chunk %d error = %v", i, err)
		}
	}
	if res.Artifact == nil {
		t.Fatal("resent upload was not committed")
	}
	if res.Artifact.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", res.Artifact.Size, len(data))
	}
	if got := env.readArtifact(t, id); !bytes.Equal(got, data) {
		t.Error("committed bytes differ from the original")
	}
}

func TestService_StagedSizeBounds(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	tests := []struct {
		total  int
		lo, hi int64
	}{
		{1, 0, testChunkSize},
		{2, testChunkSize + 1, 2 * testChunkSize},
		{5, 4*testChunkSize + 1, 5 * testChunkSize},
	}
	for _, tt := range tests {
		lo, hi := env.svc.stagedSizeBounds(tt.total)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("stagedSizeBounds(%d) = [%d, %d], want [%d, %d]", tt.total, lo, hi, tt.lo, tt.hi)
		}
	}
}

func TestUploadChunk_RedeliveryAfterCommit(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	chunks := split(payload(2 * testChunkSize))
	id := uuid.NewString()

	for i := range chunks {
		if _, err := env.send(id, "a.bin", testFolder, chunks, i); err != nil {
			t.Fatal(err)
		}
	}

	_, err := env.send(id, "a.bin", testFolder, chunks, 1)
	if !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("re-delivered chunk error = %v, want ErrUnknownUpload", err)
	}
	if env.stagingExists(t, id) {
		t.Error("re-delivered chunk re-created the staging file")
	}

	// A restarted service has no registry state but still finds the committed file.
	restarted := NewService(env.store, env.repos.Repositories(), env.svc.Config())
	_, err = restarted.UploadChunk(context.Background(), Chunk{
		Owner: testOwner, UploadID: id, Index: 0, TotalChunks: 2,
		FileName: "other.bin", FolderID: testFolder,
		Size: testChunkSize, Data: bytes.NewReader(chunks[0]),
	})
	if !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("chunk after restart error = %v, want ErrUnknownUpload", err)
	}
	if n := env.repos.Artifacts.CreateCount(); n != 1 {
		t.Errorf("metadata records = %d, want 1", n)
	}
}

func TestStatus_Unknown(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		if _, err := env.svc.Status(testOwner, id); !errors.Is(err, ErrUnknownUpload) {
			t.Errorf("Status(%q) error = %v, want ErrUnknownUpload", id, err)
		}
	}
}

func TestOpenArtifact(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	data := payload(40)
	a := env.upload(t, "a.txt", data)

	meta, f, err := env.svc.OpenArtifact(context.Background(), testOwner, testFolder, a.ID)
	if err != nil {
		t.Fatalf("OpenArtifact() error = %v", err)
	}
	defer f.Close()
	if meta.Name != "a.txt" || f.Size != int64(len(data)) {
		t.Errorf("got name=%q size=%d", meta.Name, f.Size)
	}

	if _, _, err := env.svc.OpenArtifact(context.Background(), testOwner, "other", a.ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("wrong folder error = %v, want ErrFileNotFound", err)
	}
	if _, _, err := env.svc.OpenArtifact(context.Background(), "bob", testFolder, a.ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("wrong owner error = %v, want ErrFileNotFound", err)
	}
}

func TestOpenArtifact_MissingFile(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	a := env.upload(t, "a.txt", payload(10))

	if err := os.Remove(a.StoragePath); err != nil {
		t.Fatal(err)
	}

	if _, _, err := env.svc.OpenArtifact(context.Background(), testOwner, testFolder, a.ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}
}

func TestDeleteArtifact(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	a := env.upload(t, "a.txt", payload(30))

	deleted, err := env.svc.DeleteArtifact(context.Background(), testOwner, a.ID)
	if err != nil {
		t.Fatalf("DeleteArtifact() error = %v", err)
	}
	if deleted.ID != a.ID {
		t.Errorf("deleted ID = %q, want %q", deleted.ID, a.ID)
	}
	if got := env.repos.Owners.UsedBytes(testOwner); got != 0 {
		t.Errorf("UsedBytes = %d, want 0", got)
	}
	if exists, _ := env.store.ArtifactExists(testOwner, a.ID); exists {
		t.Error("artifact file still on disk")
	}
	if _, err := env.svc.DeleteArtifact(context.Background(), testOwner, a.ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("second delete error = %v, want ErrFileNotFound", err)
	}
}

func TestMoveArtifact(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	ctx := context.Background()
	parent := testFolder
	if err := env.repos.Folders.Create(ctx, &models.Folder{ID: "docs", OwnerID: testOwner, ParentID: &parent, Name: "docs"}); err != nil {
		t.Fatal(err)
	}
	a := env.upload(t, "a.txt", payload(12))

	if err := env.svc.MoveArtifact(ctx, testOwner, a.ID, "missing"); !errors.Is(err, ErrFolderNotFound) {
		t.Errorf("move to missing folder error = %v, want ErrFolderNotFound", err)
	}
	if err := env.svc.MoveArtifact(ctx, testOwner, "nope", "docs"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("move of unknown file error = %v, want ErrFileNotFound", err)
	}

	if err := env.svc.MoveArtifact(ctx, testOwner, a.ID, "docs"); err != nil {
		t.Fatalf("MoveArtifact() error = %v", err)
	}
	meta, f, err := env.svc.OpenArtifact(ctx, testOwner, "docs", a.ID)
	if err != nil {
		t.Fatalf("OpenArtifact() after move error = %v", err)
	}
	f.Close()
	if meta.StoragePath != a.StoragePath {
		t.Errorf("StoragePath changed on move: %q -> %q", a.StoragePath, meta.StoragePath)
	}
}

func TestShutdown(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	pr, pw := io.Pipe()
	id := uuid.NewString()

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.UploadChunk(context.Background(), Chunk{
			Owner: testOwner, UploadID: id, Index: 0, TotalChunks: 2,
			FileName: "slow.bin", FolderID: testFolder,
			Size: testChunkSize, Data: pr,
		})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for env.svc.tracker.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("chunk write never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	shutdown := make(chan error, 1)
	go func() { shutdown <- env.svc.Shutdown(context.Background()) }()

	select {
	case <-shutdown:
		t.Fatal("Shutdown returned while a chunk was still being written")
	case <-time.After(50 * time.Millisecond):
	}

	// New chunks are refused while draining.
	chunks := split(payload(testChunkSize))
	if _, err := env.send(uuid.NewString(), "b.bin", testFolder, chunks, 0); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("chunk during shutdown error = %v, want ErrShuttingDown", err)
	}

	pw.Write(payload(testChunkSize))
	pw.Close()

	if err := <-done; err != nil {
		t.Errorf("in-flight chunk error = %v", err)
	}
	if err := <-shutdown; err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestShutdown_Timeout(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	pr, pw := io.Pipe()
	defer pw.Close()

	go env.svc.UploadChunk(context.Background(), Chunk{
		Owner: testOwner, UploadID: uuid.NewString(), Index: 0, TotalChunks: 2,
		FileName: "stuck.bin", FolderID: testFolder,
		Size: testChunkSize, Data: pr,
	})

	deadline := time.Now().Add(2 * time.Second)
	for env.svc.tracker.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("chunk write never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := env.svc.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want context.DeadlineExceeded", err)
	}
}
