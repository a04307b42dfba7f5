// Package filesystem implements storage.Backend on a local directory tree laid out as
//
//	<root>/<owner>/storage/<uploadId>.lock   staging file
//	<root>/<owner>/storage/<artifactId>      committed artifact
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mikkel102454/storage-selfhosted/internal/storage"
)

const (
	// storageDir is the per-owner subdirectory holding staging files and artifacts.
	storageDir = "storage"

	// StagingSuffix marks a file as an in-progress upload.
	StagingSuffix = ".lock"

	probeFile = ".probe"
)

// Store implements storage.Backend for local filesystem storage.
type Store struct {
	root    string // Base directory for all storage operations
	absRoot string // Absolute path of root for path validation
	locker  rangeLocker
}

var _ storage.Backend = (*Store)(nil)

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, storage.NewStorageError("New", root, err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, storage.NewStorageError("New", root, err)
	}

	return &Store{
		root:    root,
		absRoot: absRoot,
		locker:  newPlatformRangeLocker(),
	}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// validateSegment rejects identifiers that could escape their directory.
func validateSegment(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if strings.ContainsAny(value, `/\`) || strings.Contains(value, "..") {
		return fmt.Errorf("%s contains a path separator or traversal sequence: %q", kind, value)
	}
	if strings.HasPrefix(value, ".") {
		return fmt.Errorf("%s cannot start with a dot: %q", kind, value)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s contains a null byte", kind)
	}
	return nil
}

// ownerDir returns <root>/<owner>/storage after validating owner.
func (s *Store) ownerDir(owner string) (string, error) {
	if err := validateSegment("owner", owner); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, owner, storageDir)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasPrefix(absDir, s.absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escape attempt: %s", owner)
	}
	return dir, nil
}

// StagingPath returns the staging file path for an upload.
func (s *Store) StagingPath(owner, uploadID string) (string, error) {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return "", err
	}
	if err := validateSegment("upload id", uploadID); err != nil {
		return "", err
	}
	return filepath.Join(dir, uploadID+StagingSuffix), nil
}

// ArtifactPath returns the permanent path of a committed artifact.
func (s *Store) ArtifactPath(owner, artifactID string) (string, error) {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return "", err
	}
	if err := validateSegment("artifact id", artifactID); err != nil {
		return "", err
	}
	if strings.HasSuffix(artifactID, StagingSuffix) {
		return "", fmt.Errorf("artifact id cannot carry the staging suffix: %q", artifactID)
	}
	return filepath.Join(dir, artifactID), nil
}

// WriteChunk writes size bytes from data at offset inside the staging file.
func (s *Store) WriteChunk(ctx context.Context, owner, uploadID string, offset int64, data io.Reader, size int64) error {
	if offset < 0 || size < 0 {
		return storage.NewStorageErrorWithMessage("WriteChunk", uploadID, nil,
			fmt.Sprintf("invalid chunk bounds: offset=%d, size=%d", offset, size))
	}

	path, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return storage.NewStorageErrorWithMessage("WriteChunk", uploadID, err, "path validation failed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return storage.NewStorageError("WriteChunk", path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return storage.NewStorageError("WriteChunk", path, err)
	}
	defer f.Close()

	// A zero-length chunk still takes a one-byte lock so that it orders against writers of
	// the same offset.
	lockLen := size
	if lockLen < 1 {
		lockLen = 1
	}

	unlock, err := s.locker.lock(f, path, offset, lockLen)
	if err != nil {
		return storage.NewStorageErrorWithMessage("WriteChunk", path, err, "failed to acquire range lock")
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	written, err := io.CopyN(io.NewOffsetWriter(f, offset), data, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return storage.NewStorageErrorWithMessage("WriteChunk", path, io.ErrUnexpectedEOF,
				fmt.Sprintf("chunk truncated: wrote %d of %d bytes", written, size))
		}
		return storage.NewStorageError("WriteChunk", path, err)
	}

	if err := f.Sync(); err != nil {
		return storage.NewStorageErrorWithMessage("WriteChunk", path, err, "failed to flush chunk")
	}

	slog.Debug("chunk written to staging file",
		"owner_id", owner,
		"upload_id", uploadID,
		"offset", offset,
		"bytes", written,
	)

	return nil
}

// StagedSize returns the current size of the staging file.
func (s *Store) StagedSize(owner, uploadID string) (int64, error) {
	path, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return 0, storage.NewStorageErrorWithMessage("StagedSize", uploadID, err, "path validation failed")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storage.NewStorageError("StagedSize", path, storage.ErrNotFound)
		}
		return 0, storage.NewStorageError("StagedSize", path, err)
	}
	return info.Size(), nil
}

// StatStaging describes the staging file as it is now.
func (s *Store) StatStaging(owner, uploadID string) (storage.StagingEntry, error) {
	path, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return storage.StagingEntry{}, storage.NewStorageErrorWithMessage("StatStaging", uploadID, err, "path validation failed")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.StagingEntry{}, storage.NewStorageError("StatStaging", path, storage.ErrNotFound)
		}
		return storage.StagingEntry{}, storage.NewStorageError("StatStaging", path, err)
	}
	return storage.StagingEntry{
		Owner:    owner,
		UploadID: uploadID,
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

// OpenStaging opens the staging file for reading.
func (s *Store) OpenStaging(owner, uploadID string) (io.ReadCloser, error) {
	path, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return nil, storage.NewStorageErrorWithMessage("OpenStaging", uploadID, err, "path validation failed")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewStorageError("OpenStaging", path, storage.ErrNotFound)
		}
		return nil, storage.NewStorageError("OpenStaging", path, err)
	}
	return f, nil
}

// RemoveStaging deletes the staging file.
func (s *Store) RemoveStaging(owner, uploadID string) error {
	path, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return storage.NewStorageErrorWithMessage("RemoveStaging", uploadID, err, "path validation failed")
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return storage.NewStorageError("RemoveStaging", path, err)
	}
	return nil
}

// ListStaging scans <root>/*/storage/*.lock.
// Unreadable owner directories are logged and skipped.
func (s *Store) ListStaging(ctx context.Context) ([]storage.StagingEntry, error) {
	owners, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, storage.NewStorageError("ListStaging", s.root, err)
	}

	var entries []storage.StagingEntry
	for _, ownerEntry := range owners {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		if !ownerEntry.IsDir() || validateSegment("owner", ownerEntry.Name()) != nil {
			continue
		}

		dir := filepath.Join(s.root, ownerEntry.Name(), storageDir)
		files, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to read owner storage directory",
					"path", dir,
					"error", err,
				)
			}
			continue
		}

		for _, file := range files {
			name := file.Name()
			if file.IsDir() || !strings.HasSuffix(name, StagingSuffix) {
				continue
			}

			info, err := file.Info()
			if err != nil {
				// Removed between ReadDir and Info.
				if !errors.Is(err, fs.ErrNotExist) {
					slog.Warn("failed to stat staging file",
						"path", filepath.Join(dir, name),
						"error", err,
					)
				}
				continue
			}

			entries = append(entries, storage.StagingEntry{
				Owner:    ownerEntry.Name(),
				UploadID: strings.TrimSuffix(name, StagingSuffix),
				Path:     filepath.Join(dir, name),
				Size:     info.Size(),
				ModTime:  info.ModTime(),
			})
		}
	}

	return entries, nil
}

// Promote renames the staging file to the artifact path.
func (s *Store) Promote(owner, uploadID, artifactID string) (string, error) {
	stagingPath, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return "", storage.NewStorageErrorWithMessage("Promote", uploadID, err, "path validation failed")
	}
	artifactPath, err := s.ArtifactPath(owner, artifactID)
	if err != nil {
		return "", storage.NewStorageErrorWithMessage("Promote", artifactID, err, "path validation failed")
	}

	if _, err := os.Lstat(artifactPath); err == nil {
		return "", storage.NewStorageErrorWithMessage("Promote", artifactPath, fs.ErrExist, "artifact already exists")
	} else if !os.IsNotExist(err) {
		return "", storage.NewStorageError("Promote", artifactPath, err)
	}

	if err := os.Rename(stagingPath, artifactPath); err != nil {
		if os.IsNotExist(err) {
			return "", storage.NewStorageError("Promote", stagingPath, storage.ErrNotFound)
		}
		return "", storage.NewStorageError("Promote", stagingPath, err)
	}

	syncDir(filepath.Dir(artifactPath))
	return artifactPath, nil
}

// Demote moves a promoted artifact back to its staging path.
func (s *Store) Demote(owner, uploadID, artifactID string) error {
	stagingPath, err := s.StagingPath(owner, uploadID)
	if err != nil {
		return storage.NewStorageErrorWithMessage("Demote", uploadID, err, "path validation failed")
	}
	artifactPath, err := s.ArtifactPath(owner, artifactID)
	if err != nil {
		return storage.NewStorageErrorWithMessage("Demote", artifactID, err, "path validation failed")
	}

	if err := os.Rename(artifactPath, stagingPath); err != nil {
		return storage.NewStorageError("Demote", artifactPath, err)
	}
	syncDir(filepath.Dir(stagingPath))
	return nil
}

// ArtifactExists reports whether the artifact file exists.
func (s *Store) ArtifactExists(owner, artifactID string) (bool, error) {
	path, err := s.ArtifactPath(owner, artifactID)
	if err != nil {
		return false, storage.NewStorageErrorWithMessage("ArtifactExists", artifactID, err, "path validation failed")
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, storage.NewStorageError("ArtifactExists", path, err)
}

// OpenArtifact opens a committed artifact for reading.
func (s *Store) OpenArtifact(owner, artifactID string) (*storage.Artifact, error) {
	path, err := s.ArtifactPath(owner, artifactID)
	if err != nil {
		return nil, storage.NewStorageErrorWithMessage("OpenArtifact", artifactID, err, "path validation failed")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewStorageError("OpenArtifact", path, storage.ErrNotFound)
		}
		return nil, storage.NewStorageError("OpenArtifact", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storage.NewStorageError("OpenArtifact", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, storage.NewStorageErrorWithMessage("OpenArtifact", path, storage.ErrNotFound, "artifact path is a directory")
	}

	return &storage.Artifact{
		ReadSeekCloser: f,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
	}, nil
}

// RemoveArtifact deletes a committed artifact.
func (s *Store) RemoveArtifact(owner, artifactID string) error {
	path, err := s.ArtifactPath(owner, artifactID)
	if err != nil {
		return storage.NewStorageErrorWithMessage("RemoveArtifact", artifactID, err, "path validation failed")
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return storage.NewStorageError("RemoveArtifact", path, storage.ErrNotFound)
		}
		return storage.NewStorageError("RemoveArtifact", path, err)
	}
	return nil
}

// Probe writes and removes a small file in the storage root.
func (s *Store) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.root, probeFile)
	if err := os.WriteFile(path, []byte("ok"), 0644); err != nil {
		return storage.NewStorageError("Probe", path, err)
	}
	if err := os.Remove(path); err != nil {
		return storage.NewStorageError("Probe", path, err)
	}
	return nil
}

// syncDir flushes a directory entry change. Failures are logged only: the rename itself
// already happened and cannot be reported as failed.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		slog.Debug("failed to open directory for sync", "path", dir, "error", err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		slog.Debug("failed to sync directory", "path", dir, "error", err)
	}
}
