// Package uploads implements the chunked upload engine: the session registry, the chunk
// writer, promotion of completed staging files into committed artifacts, and the sweeper
// that removes abandoned staging files.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Mikkel102454/storage-selfhosted/internal/metrics"
	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage"
	"github.com/Mikkel102454/storage-selfhosted/internal/utils"
)

// Config holds the upload limits.
type Config struct {
	MaxChunkSize   int64
	MaxTotalChunks int
}

// Chunk is one piece of an upload as received from a client.
type Chunk struct {
	Owner       string `validate:"required"`
	UploadID    string
	Index       int       `validate:"gte=0"`
	TotalChunks int       `validate:"gte=1"`
	FileName    string    `validate:"required"`
	FolderID    string    `validate:"required"`
	Size        int64     `validate:"gte=0"`
	Data        io.Reader `validate:"required"`
}

// ChunkResult describes the state of an upload after a chunk was accepted.
type ChunkResult struct {
	UploadID    string
	Index       int
	Received    int
	TotalChunks int
	Duplicate   bool

	// Artifact is set when this chunk completed the upload and the file was committed.
	Artifact *models.Artifact
}

// Status is a snapshot of a live upload session.
type Status struct {
	UploadID    string
	FileName    string
	FolderID    string
	Received    int
	TotalChunks int
	Missing     []int
}

// Service accepts chunks, promotes completed uploads, and serves committed artifacts.
type Service struct {
	store     storage.Backend
	artifacts repository.ArtifactRepository
	folders   repository.FolderRepository
	owners    repository.OwnerRepository
	cfg       Config

	registry *Registry
	locks    *ownerLocks
	tracker  *writeTracker
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a Service writing to store and recording metadata in repos.
func NewService(store storage.Backend, repos *repository.Repositories, cfg Config) *Service {
	return &Service{
		store:     store,
		artifacts: repos.Artifacts,
		folders:   repos.Folders,
		owners:    repos.Owners,
		cfg:       cfg,
		registry:  NewRegistry(),
		locks:     newOwnerLocks(),
		tracker:   newWriteTracker(),
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Registry returns the session registry used by this service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Config returns the upload limits.
func (s *Service) Config() Config {
	return s.cfg
}

// ActiveUploads returns the number of live upload sessions.
func (s *Service) ActiveUploads() int {
	return s.registry.Len()
}

// UploadChunk writes one chunk to the upload's staging file and promotes the file once every
// chunk has arrived. Chunk i lands at offset i * MaxChunkSize, so chunks may arrive in any
// order and repeatedly.
func (s *Service) UploadChunk(ctx context.Context, c Chunk) (*ChunkResult, error) {
	if c.UploadID == "" {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, ErrMissingUploadID
	}

	chunk, err := s.validateChunk(c)
	if err != nil {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	key := Key{Owner: chunk.Owner, UploadID: chunk.UploadID}

	id, ok := s.tracker.start(key, chunk.Index)
	if !ok {
		return nil, ErrShuttingDown
	}
	defer s.tracker.finish(id)

	logger := slog.With("owner", key.Owner, "upload_id", key.UploadID, "chunk_index", chunk.Index)

	if s.registry.IsFinished(key) {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, ErrUnknownUpload
	}
	// The artifact id is the upload id, so a committed file means this upload already
	// completed, possibly before a restart.
	committed, err := s.store.ArtifactExists(chunk.Owner, chunk.UploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to check committed file: %w", err)
	}
	if committed {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, ErrUnknownUpload
	}

	// Fail fast when the name is already taken; promotion checks again.
	exists, err := s.artifacts.ExistsByName(ctx, chunk.Owner, chunk.FolderID, chunk.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to check file name: %w", err)
	}
	if exists {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		// The name may belong to this very upload if it was committed since the check above.
		if committed, _ := s.store.ArtifactExists(chunk.Owner, chunk.UploadID); committed {
			return nil, ErrUnknownUpload
		}
		return nil, ErrNameConflict
	}

	folderExists, err := s.folders.Exists(ctx, chunk.Owner, chunk.FolderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check folder: %w", err)
	}
	if !folderExists {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, ErrFolderNotFound
	}

	sess, err := s.registry.GetOrCreate(key, chunk.TotalChunks, chunk.FileName, chunk.FolderID)
	if err != nil {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if !sess.beginWrite() {
		metrics.ChunksTotal.WithLabelValues("rejected").Inc()
		return nil, ErrUnknownUpload
	}
	offset := int64(chunk.Index) * s.cfg.MaxChunkSize
	if err := s.store.WriteChunk(ctx, chunk.Owner, chunk.UploadID, offset, chunk.Data, chunk.Size); err != nil {
		sess.endWrite()
		metrics.ChunksTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to write chunk: %w", err)
	}
	fresh := sess.MarkReceived(chunk.Index)
	sess.endWrite()

	metrics.ChunkBytesTotal.Add(float64(chunk.Size))
	if fresh {
		metrics.ChunksTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.ChunksTotal.WithLabelValues("duplicate").Inc()
		logger.Debug("duplicate chunk received")
	}

	result := &ChunkResult{
		UploadID:    chunk.UploadID,
		Index:       chunk.Index,
		Received:    sess.Received(),
		TotalChunks: sess.TotalChunks,
		Duplicate:   !fresh,
	}

	if !sess.IsComplete() || !sess.promoting.CompareAndSwap(false, true) {
		return result, nil
	}

	// A completed upload is committed even if the client that sent the last chunk goes away.
	artifact, err := s.promote(context.WithoutCancel(ctx), sess)
	if err != nil {
		return nil, err
	}
	result.Artifact = artifact
	return result, nil
}

// validateChunk checks the chunk parameters and returns a copy with the upload id in
// canonical form and the file name normalized.
func (s *Service) validateChunk(c Chunk) (Chunk, error) {
	parsed, err := uuid.Parse(c.UploadID)
	if err != nil {
		return c, fmt.Errorf("%w: upload id must be a UUID", ErrInvalidChunk)
	}
	c.UploadID = parsed.String()

	// Size is checked before anything touches the disk.
	if c.Size > s.cfg.MaxChunkSize {
		return c, fmt.Errorf("%w: %d bytes, maximum is %d", ErrChunkTooLarge, c.Size, s.cfg.MaxChunkSize)
	}

	if err := s.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return c, fmt.Errorf("%w: %s failed %q check", ErrInvalidChunk, verrs[0].Field(), verrs[0].Tag())
		}
		return c, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
	}

	if c.TotalChunks > s.cfg.MaxTotalChunks {
		return c, fmt.Errorf("%w: total chunks %d exceeds maximum %d", ErrInvalidChunk, c.TotalChunks, s.cfg.MaxTotalChunks)
	}
	if c.Index >= c.TotalChunks {
		return c, fmt.Errorf("%w: chunk index %d out of range [0, %d)", ErrInvalidChunk, c.Index, c.TotalChunks)
	}
	// Every chunk but the last must be full, otherwise the committed file has holes.
	if c.Index < c.TotalChunks-1 && c.Size != s.cfg.MaxChunkSize {
		return c, fmt.Errorf("%w: chunk %d has %d bytes, non-final chunks must be %d bytes",
			ErrInvalidChunk, c.Index, c.Size, s.cfg.MaxChunkSize)
	}
	if c.TotalChunks > 1 && c.Index == c.TotalChunks-1 && c.Size == 0 {
		return c, fmt.Errorf("%w: final chunk of a %d-chunk upload is empty", ErrInvalidChunk, c.TotalChunks)
	}

	name, err := utils.NormalizeFileName(c.FileName)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
	}
	c.FileName = name
	return c, nil
}

// promote turns a complete staging file into a committed artifact. The caller must have
// claimed the session's promoting flag. On success, and on failures that make the upload
// unrecoverable, the session is finished and closed; on retryable failures it is reopened
// with its staging file intact.
func (s *Service) promote(ctx context.Context, sess *Session) (artifact *models.Artifact, err error) {
	key := sess.Key
	logger := slog.With("owner", key.Owner, "upload_id", key.UploadID, "file_name", sess.FileName)

	// Waits for duplicate chunk writes still in flight and holds off new ones.
	sess.gate.Lock()
	finished := false
	defer func() {
		if finished {
			sess.closed = true
		} else {
			sess.promoting.Store(false)
		}
		sess.gate.Unlock()
	}()

	unlock := s.locks.lock(key.Owner)
	defer unlock()

	start := time.Now()

	exists, err := s.artifacts.ExistsByName(ctx, key.Owner, sess.FolderID, sess.FileName)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to check file name: %w", err)
	}
	if exists {
		finished = s.discard(sess, "conflict")
		return nil, ErrNameConflict
	}

	folderExists, err := s.folders.Exists(ctx, key.Owner, sess.FolderID)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to check folder: %w", err)
	}
	if !folderExists {
		finished = s.discard(sess, "folder_not_found")
		return nil, ErrFolderNotFound
	}

	size, err := s.store.StagedSize(key.Owner, key.UploadID)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to stat staging file: %w", err)
	}
	if minSize, maxSize := s.stagedSizeBounds(sess.TotalChunks); size < minSize || size > maxSize {
		metrics.PromotionsTotal.WithLabelValues("reset").Inc()
		logger.Error("staging file does not hold every received chunk",
			"size", size,
			"min_size", minSize,
			"max_size", maxSize,
		)
		if err := s.store.RemoveStaging(key.Owner, key.UploadID); err != nil {
			logger.Error("failed to remove staging file", "error", err)
		}
		// Not finished: the client may start the same upload over.
		s.registry.Remove(key)
		finished = true
		return nil, ErrUploadReset
	}

	owner, err := s.owners.GetByID(ctx, key.Owner)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	if !owner.CanStore(size) {
		metrics.PromotionsTotal.WithLabelValues("insufficient_storage").Inc()
		logger.Warn("upload exceeds storage quota",
			"size", size,
			"used_bytes", owner.UsedBytes,
			"limit_bytes", owner.LimitBytes,
		)
		return nil, fmt.Errorf("%w: %d bytes needed, %d available", ErrInsufficientStorage, size, owner.AvailableBytes())
	}

	mimeType := s.detectMimeType(key, logger)

	storagePath, err := s.store.Promote(key.Owner, key.UploadID, key.UploadID)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to promote staging file: %w", err)
	}

	artifact = &models.Artifact{
		ID:          key.UploadID,
		OwnerID:     key.Owner,
		FolderID:    sess.FolderID,
		Name:        sess.FileName,
		Extension:   utils.FileExtension(sess.FileName),
		MimeType:    mimeType,
		Size:        size,
		StoragePath: storagePath,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.artifacts.CreateWithQuota(ctx, artifact); err != nil {
		// The rename is rolled back so the staged bytes are where the next attempt expects them.
		if derr := s.store.Demote(key.Owner, key.UploadID, key.UploadID); derr != nil {
			logger.Error("failed to roll back promotion", "error", derr, "path", storagePath)
		}

		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			finished = s.discard(sess, "conflict")
			return nil, ErrNameConflict
		case errors.Is(err, repository.ErrQuotaExceeded):
			metrics.PromotionsTotal.WithLabelValues("insufficient_storage").Inc()
			return nil, fmt.Errorf("%w: %d bytes needed", ErrInsufficientStorage, size)
		default:
			metrics.PromotionsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to record file: %w", err)
		}
	}

	s.registry.Finish(key)
	finished = true

	metrics.PromotionsTotal.WithLabelValues("success").Inc()
	metrics.CommittedSizeBytes.Observe(float64(size))
	logger.Info("upload committed",
		"file_id", artifact.ID,
		"folder_id", artifact.FolderID,
		"size", size,
		"mime_type", mimeType,
		"chunks", sess.TotalChunks,
		"duration", time.Since(start),
	)
	return artifact, nil
}

// stagedSizeBounds returns the smallest and largest staging file that can hold totalChunks
// chunks. Every chunk but the last is full and the last one is not empty.
func (s *Service) stagedSizeBounds(totalChunks int) (int64, int64) {
	full := int64(totalChunks-1) * s.cfg.MaxChunkSize
	if totalChunks == 1 {
		return 0, s.cfg.MaxChunkSize
	}
	return full + 1, full + s.cfg.MaxChunkSize
}

// discard removes the staging file of an upload that can never be committed and finishes
// its session. It returns true so callers can mark the session closed.
func (s *Service) discard(sess *Session, reason string) bool {
	metrics.PromotionsTotal.WithLabelValues(reason).Inc()
	if err := s.store.RemoveStaging(sess.Key.Owner, sess.Key.UploadID); err != nil {
		slog.Error("failed to remove staging file",
			"owner", sess.Key.Owner,
			"upload_id", sess.Key.UploadID,
			"error", err,
		)
	}
	s.registry.Finish(sess.Key)
	slog.Info("upload discarded",
		"owner", sess.Key.Owner,
		"upload_id", sess.Key.UploadID,
		"reason", reason,
	)
	return true
}

func (s *Service) detectMimeType(key Key, logger *slog.Logger) string {
	r, err := s.store.OpenStaging(key.Owner, key.UploadID)
	if err != nil {
		logger.Warn("failed to open staging file for content detection", "error", err)
		return utils.DefaultMimeType
	}
	defer r.Close()
	return utils.DetectMimeTypeReader(r)
}

// Status returns the progress of a live upload session.
func (s *Service) Status(owner, uploadID string) (*Status, error) {
	parsed, err := uuid.Parse(uploadID)
	if err != nil {
		return nil, ErrUnknownUpload
	}
	sess := s.registry.Get(Key{Owner: owner, UploadID: parsed.String()})
	if sess == nil {
		return nil, ErrUnknownUpload
	}
	return &Status{
		UploadID:    sess.Key.UploadID,
		FileName:    sess.FileName,
		FolderID:    sess.FolderID,
		Received:    sess.Received(),
		TotalChunks: sess.TotalChunks,
		Missing:     sess.Missing(),
	}, nil
}

// OpenArtifact looks up a committed artifact and opens its file. The caller must close the
// returned handle.
func (s *Service) OpenArtifact(ctx context.Context, owner, folderID, id string) (*models.Artifact, *storage.Artifact, error) {
	artifact, err := s.artifacts.GetByID(ctx, owner, folderID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("failed to get file: %w", err)
	}

	f, err := s.store.OpenArtifact(owner, artifact.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Error("file record exists but file is missing on disk",
				"owner", owner,
				"file_id", artifact.ID,
				"folder_id", folderID,
				"path", artifact.StoragePath,
			)
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return artifact, f, nil
}

// DeleteArtifact removes an artifact's record, returns its bytes to the owner's quota, and
// deletes the file.
func (s *Service) DeleteArtifact(ctx context.Context, owner, id string) (*models.Artifact, error) {
	unlock := s.locks.lock(owner)
	defer unlock()

	artifact, err := s.artifacts.DeleteWithQuota(ctx, owner, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to delete file record: %w", err)
	}

	if err := s.store.RemoveArtifact(owner, artifact.ID); err != nil {
		// The record is gone; the orphaned file no longer counts against the quota.
		slog.Error("failed to remove file from disk",
			"owner", owner,
			"file_id", artifact.ID,
			"path", artifact.StoragePath,
			"error", err,
		)
	}

	slog.Info("file deleted", "owner", owner, "file_id", artifact.ID, "size", artifact.Size)
	return artifact, nil
}

// MoveArtifact changes the folder an artifact belongs to. The file on disk is not touched.
func (s *Service) MoveArtifact(ctx context.Context, owner, id, folderID string) error {
	exists, err := s.folders.Exists(ctx, owner, folderID)
	if err != nil {
		return fmt.Errorf("failed to check folder: %w", err)
	}
	if !exists {
		return ErrFolderNotFound
	}

	if err := s.artifacts.UpdateFolder(ctx, owner, id, folderID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrFileNotFound
		case errors.Is(err, repository.ErrDuplicateKey):
			return ErrNameConflict
		default:
			return fmt.Errorf("failed to move file: %w", err)
		}
	}
	return nil
}

// Shutdown rejects new chunks and waits for in-flight chunk requests, including any
// promotion they trigger, until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.tracker.wait(ctx)
}
