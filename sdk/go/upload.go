package storageclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	retryBaseDelay     = 250 * time.Millisecond
)

// UploadFile uploads the file at filePath into folderID under its base name.
//
// Example:
//
//	file, err := client.UploadFile(ctx, "/path/to/report.pdf", "root", &storageclient.UploadOptions{
//	    OnProgress: func(p storageclient.UploadProgress) {
//	        fmt.Printf("Upload: %d%%\n", p.Percentage)
//	    },
//	})
func (c *Client) UploadFile(ctx context.Context, filePath, folderID string, opts *UploadOptions) (*File, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Field: "filePath", Message: "must be a regular file"}
	}

	return c.Upload(ctx, f, info.Size(), folderID, filepath.Base(filePath), opts)
}

// Upload splits the first size bytes of r into chunks of the server's maximum chunk size
// and uploads them in parallel. Chunks that fail with a transport error or a temporary
// server error are retried with exponential backoff.
//
// On failure the returned error is a *ChunkedUploadError carrying the upload id, which can
// be passed back with UploadOptions.Resume to send only the missing chunks.
func (c *Client) Upload(ctx context.Context, r io.ReaderAt, size int64, folderID, name string, opts *UploadOptions) (*File, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}
	if size < 0 {
		return nil, &ValidationError{Field: "size", Message: "cannot be negative"}
	}
	if err := validateFilename(name); err != nil {
		return nil, err
	}
	if err := validateID("folderID", folderID); err != nil {
		return nil, err
	}

	uploadID := opts.UploadID
	if uploadID == "" {
		uploadID = uuid.NewString()
	} else if err := validateUploadID(uploadID); err != nil {
		return nil, err
	}

	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting config: %w", err)
	}

	chunkSize := cfg.MaxChunkSize
	totalChunks := int((size + chunkSize - 1) / chunkSize)
	if totalChunks == 0 {
		// An empty file is one empty chunk.
		totalChunks = 1
	}
	if totalChunks > cfg.MaxTotalChunks {
		return nil, &ValidationError{
			Field:   "size",
			Message: fmt.Sprintf("needs %d chunks, server allows %d", totalChunks, cfg.MaxTotalChunks),
		}
	}

	pending, err := c.pendingChunks(ctx, uploadID, totalChunks, opts.Resume)
	if err != nil {
		return nil, &ChunkedUploadError{UploadID: uploadID, ChunkIndex: -1, Err: err}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	progress := &uploadProgress{
		total:       size,
		totalChunks: totalChunks,
		done:        totalChunks - len(pending),
		onProgress:  opts.OnProgress,
	}
	progress.uploaded = min(int64(progress.done)*chunkSize, size)

	var (
		mu        sync.Mutex
		committed *File
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, index := range pending {
		g.Go(func() error {
			offset := int64(index) * chunkSize
			length := min(chunkSize, size-offset)

			buf := make([]byte, length)
			if n, err := r.ReadAt(buf, offset); err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
				return &ChunkedUploadError{UploadID: uploadID, ChunkIndex: index, Err: fmt.Errorf("reading chunk: %w", err)}
			}

			resp, err := c.sendChunkWithRetry(gctx, chunkRequest{
				uploadID:    uploadID,
				index:       index,
				totalChunks: totalChunks,
				name:        name,
				folderID:    folderID,
				data:        buf,
			})
			if err != nil {
				return &ChunkedUploadError{UploadID: uploadID, ChunkIndex: index, Err: err}
			}

			if resp.File != nil {
				mu.Lock()
				committed = resp.File.toFile()
				mu.Unlock()
			}
			progress.add(length)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if committed == nil {
		// Every chunk was accepted but the committing response was lost or went elsewhere.
		return nil, &ChunkedUploadError{
			UploadID:   uploadID,
			ChunkIndex: -1,
			Err:        errors.New("all chunks accepted but the server did not report a committed file"),
		}
	}
	return committed, nil
}

// pendingChunks returns the chunk indexes still to send. Without resume that is every
// chunk; with resume it is what the server reports missing, or every chunk if the server
// does not know the upload.
func (c *Client) pendingChunks(ctx context.Context, uploadID string, totalChunks int, resume bool) ([]int, error) {
	all := make([]int, totalChunks)
	for i := range all {
		all[i] = i
	}
	if !resume {
		return all, nil
	}

	status, err := c.GetUploadStatus(ctx, uploadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return all, nil
		}
		return nil, fmt.Errorf("getting upload status: %w", err)
	}
	if status.TotalChunks != totalChunks {
		return nil, fmt.Errorf("server expects %d chunks for this upload, file has %d", status.TotalChunks, totalChunks)
	}
	if len(status.MissingChunks) == 0 {
		// Every chunk arrived but promotion was refused; resend the last to retry it.
		return []int{totalChunks - 1}, nil
	}
	return status.MissingChunks, nil
}

type chunkRequest struct {
	uploadID    string
	index       int
	totalChunks int
	name        string
	folderID    string
	data        []byte
}

func (c *Client) sendChunkWithRetry(ctx context.Context, req chunkRequest) (*apiChunkResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.sendChunk(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) sendChunk(ctx context.Context, req chunkRequest) (*apiChunkResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := []struct{ key, value string }{
		{"uploadId", req.uploadID},
		{"chunkIndex", strconv.Itoa(req.index)},
		{"totalChunks", strconv.Itoa(req.totalChunks)},
		{"fileName", req.name},
		{"folderId", req.folderID},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", f.key, err)
		}
	}

	part, err := writer.CreateFormFile("chunk", "chunk")
	if err != nil {
		return nil, fmt.Errorf("creating chunk form: %w", err)
	}
	if _, err := part.Write(req.data); err != nil {
		return nil, fmt.Errorf("writing chunk: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing chunk writer: %w", err)
	}

	resp, err := c.request(ctx, http.MethodPost, "/api/files/upload", &buf, http.Header{
		"Content-Type": {writer.FormDataContentType()},
	})
	if err != nil {
		return nil, err
	}

	var apiResp apiChunkResponse
	if err := handleResponse(resp, &apiResp); err != nil {
		return nil, err
	}
	return &apiResp, nil
}

// GetUploadStatus retrieves the chunks the server holds for a live upload.
func (c *Client) GetUploadStatus(ctx context.Context, uploadID string) (*UploadStatus, error) {
	if err := validateUploadID(uploadID); err != nil {
		return nil, err
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/uploads/"+uploadID, nil, nil)
	if err != nil {
		return nil, err
	}

	var apiResp apiStatusResponse
	if err := handleResponse(resp, &apiResp); err != nil {
		return nil, err
	}

	return &UploadStatus{
		UploadID:       apiResp.UploadID,
		FileName:       apiResp.FileName,
		FolderID:       apiResp.FolderID,
		ChunksReceived: apiResp.ChunksReceived,
		TotalChunks:    apiResp.TotalChunks,
		MissingChunks:  apiResp.MissingChunks,
		Complete:       apiResp.Complete,
	}, nil
}

// uploadProgress serializes progress callbacks from the chunk goroutines.
type uploadProgress struct {
	mu          sync.Mutex
	uploaded    int64
	total       int64
	done        int
	totalChunks int
	onProgress  func(UploadProgress)
}

func (p *uploadProgress) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uploaded += n
	p.done++
	if p.onProgress == nil {
		return
	}

	percentage := 100
	if p.total > 0 {
		percentage = int(float64(p.uploaded) / float64(p.total) * 100)
	}
	p.onProgress(UploadProgress{
		BytesUploaded: p.uploaded,
		TotalBytes:    p.total,
		ChunksDone:    p.done,
		TotalChunks:   p.totalChunks,
		Percentage:    percentage,
	})
}
