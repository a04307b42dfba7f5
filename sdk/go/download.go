package storageclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func downloadPath(folderID, fileID string) string {
	return "/api/folders/" + folderID + "/files/" + fileID + "/download"
}

// Download downloads a file and saves it to destination.
//
// With Resume set and a partial destination present, only the missing tail is requested
// and appended; a destination that is already complete is left untouched.
//
// Example:
//
//	err := client.Download(ctx, "root", fileID, "/path/to/output.pdf", &storageclient.DownloadOptions{
//	    Resume: true,
//	    OnProgress: func(p storageclient.DownloadProgress) {
//	        fmt.Printf("Download: %d%%\n", p.Percentage)
//	    },
//	})
func (c *Client) Download(ctx context.Context, folderID, fileID, destination string, opts *DownloadOptions) error {
	if err := validateID("folderID", folderID); err != nil {
		return err
	}
	if err := validateID("fileID", fileID); err != nil {
		return err
	}
	if opts == nil {
		opts = &DownloadOptions{}
	}

	// Resolve destination path
	destPath, err := filepath.Abs(destination)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	var offset int64
	if info, err := os.Lstat(destPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("destination is a symbolic link, refusing to overwrite for security")
		}
		switch {
		case opts.Resume:
			offset = info.Size()
		case !opts.Overwrite:
			return fmt.Errorf("destination file already exists, set Overwrite or Resume to continue")
		}
	}

	header := http.Header{}
	if offset > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.request(ctx, http.MethodGet, downloadPath(folderID, fileID), nil, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	var total int64 = -1

	switch resp.StatusCode {
	case http.StatusOK:
		// Full content, either requested or because the server ignored the range.
		flags |= os.O_TRUNC
		offset = 0
		total = resp.ContentLength

	case http.StatusPartialContent:
		start, size, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return err
		}
		if start != offset {
			return fmt.Errorf("server returned range starting at %d, requested %d", start, offset)
		}
		flags |= os.O_APPEND
		total = size

	case http.StatusRequestedRangeNotSatisfiable:
		// A range starting at the end of the file means the file is already complete.
		if size, err := parseUnsatisfiedRange(resp.Header.Get("Content-Range")); err == nil && size == offset {
			return nil
		}
		return decodeError(resp)

	default:
		return decodeError(resp)
	}

	file, err := os.OpenFile(destPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("opening destination file: %w", err)
	}

	var reader io.Reader = resp.Body
	if opts.OnProgress != nil {
		reader = &progressDownloadReader{
			reader:     resp.Body,
			downloaded: offset,
			totalBytes: total,
			onProgress: opts.OnProgress,
		}
	}

	_, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		if !opts.Resume {
			// Clean up partial file on error
			os.Remove(destPath)
		}
		return fmt.Errorf("downloading file: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing destination file: %w", closeErr)
	}
	return nil
}

// DownloadToWriter streams a whole file to w and returns the number of bytes written.
func (c *Client) DownloadToWriter(ctx context.Context, folderID, fileID string, w io.Writer) (int64, error) {
	return c.download(ctx, folderID, fileID, "", w)
}

// DownloadRange streams bytes start through end (inclusive) of a file to w. A negative
// end reads to the end of the file. The server clamps an end past the file size.
func (c *Client) DownloadRange(ctx context.Context, folderID, fileID string, start, end int64, w io.Writer) (int64, error) {
	if start < 0 {
		return 0, &ValidationError{Field: "start", Message: "cannot be negative"}
	}
	if end >= 0 && end < start {
		return 0, &ValidationError{Field: "end", Message: "must not be before start"}
	}

	rangeHeader := fmt.Sprintf("bytes=%d-", start)
	if end >= 0 {
		rangeHeader += strconv.FormatInt(end, 10)
	}
	return c.download(ctx, folderID, fileID, rangeHeader, w)
}

func (c *Client) download(ctx context.Context, folderID, fileID, rangeHeader string, w io.Writer) (int64, error) {
	if err := validateID("folderID", folderID); err != nil {
		return 0, err
	}
	if err := validateID("fileID", fileID); err != nil {
		return 0, err
	}

	header := http.Header{}
	want := http.StatusOK
	if rangeHeader != "" {
		header.Set("Range", rangeHeader)
		want = http.StatusPartialContent
	}

	resp, err := c.request(ctx, http.MethodGet, downloadPath(folderID, fileID), nil, header)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, decodeError(resp)
	}
	if resp.StatusCode != want {
		return 0, fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, want)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("downloading file: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("downloading file: got %d of %d bytes: %w", n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	return n, nil
}

// parseContentRange parses "bytes start-end/size".
func parseContentRange(v string) (start, size int64, err error) {
	spec, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	rng, total, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	startStr, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	if start, err = strconv.ParseInt(startStr, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	if size, err = strconv.ParseInt(total, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	return start, size, nil
}

// parseUnsatisfiedRange parses "bytes */size".
func parseUnsatisfiedRange(v string) (int64, error) {
	total, ok := strings.CutPrefix(v, "bytes */")
	if !ok {
		return 0, errors.New("not an unsatisfied range")
	}
	return strconv.ParseInt(total, 10, 64)
}

// progressDownloadReader wraps an io.Reader to track download progress.
type progressDownloadReader struct {
	reader     io.Reader
	totalBytes int64
	downloaded int64
	onProgress func(DownloadProgress)
}

func (pr *progressDownloadReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		percentage := -1
		if pr.totalBytes > 0 {
			percentage = int(float64(pr.downloaded) / float64(pr.totalBytes) * 100)
		}
		pr.onProgress(DownloadProgress{
			BytesDownloaded: pr.downloaded,
			TotalBytes:      pr.totalBytes,
			Percentage:      percentage,
		})
	}
	return n, err
}
