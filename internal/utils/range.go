package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Range parsing errors. Handlers answer all of them with 416.
var (
	ErrInvalidRange        = errors.New("invalid range header")
	ErrMultiRange          = errors.New("multi-range requests are not supported")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// HTTPRange represents a parsed HTTP Range request. End is inclusive.
type HTTPRange struct {
	Start int64
	End   int64
}

// ParseRange parses an HTTP Range header value against a resource of fileSize bytes.
// Supports RFC 7233 single-range forms:
//   - "bytes=0-1023" (specific range)
//   - "bytes=1024-" (from offset to end)
//   - "bytes=-500" (last 500 bytes)
//
// An end past the resource is clamped to fileSize-1.
func ParseRange(rangeHeader string, fileSize int64) (*HTTPRange, error) {
	if fileSize < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidRange, fileSize)
	}

	const bytesPrefix = "bytes="
	if !strings.HasPrefix(rangeHeader, bytesPrefix) {
		return nil, fmt.Errorf("%w: missing 'bytes=' prefix", ErrInvalidRange)
	}

	rangeSpec := strings.TrimSpace(strings.TrimPrefix(rangeHeader, bytesPrefix))
	if strings.Contains(rangeSpec, ",") {
		return nil, ErrMultiRange
	}

	startStr, endStr, ok := strings.Cut(rangeSpec, "-")
	if !ok {
		return nil, fmt.Errorf("%w: expected 'start-end'", ErrInvalidRange)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	var start, end int64

	if startStr == "" {
		// Suffix form: the last N bytes.
		if endStr == "" {
			return nil, fmt.Errorf("%w: both start and end are empty", ErrInvalidRange)
		}
		suffixLen, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffixLen < 0 {
			return nil, fmt.Errorf("%w: invalid suffix length %q", ErrInvalidRange, endStr)
		}
		if suffixLen == 0 || fileSize == 0 {
			return nil, ErrRangeNotSatisfiable
		}
		start = max(fileSize-suffixLen, 0)
		end = fileSize - 1
	} else {
		var err error
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return nil, fmt.Errorf("%w: invalid start position %q", ErrInvalidRange, startStr)
		}

		if endStr == "" {
			end = fileSize - 1
		} else {
			end, err = strconv.ParseInt(endStr, 10, 64)
			if err != nil || end < 0 {
				return nil, fmt.Errorf("%w: invalid end position %q", ErrInvalidRange, endStr)
			}
			if start > end {
				return nil, fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, start, end)
			}
		}
	}

	if start >= fileSize {
		return nil, fmt.Errorf("%w: start %d >= size %d", ErrRangeNotSatisfiable, start, fileSize)
	}

	if end >= fileSize {
		end = fileSize - 1
	}

	return &HTTPRange{Start: start, End: end}, nil
}

// ContentLength returns the number of bytes in this range
func (r *HTTPRange) ContentLength() int64 {
	return r.End - r.Start + 1
}

// ContentRangeHeader returns the Content-Range header value for this range
// Format: "bytes start-end/total"
func (r *HTTPRange) ContentRangeHeader(fileSize int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, fileSize)
}

// UnsatisfiedContentRange returns the Content-Range value sent with a 416 response.
func UnsatisfiedContentRange(fileSize int64) string {
	return fmt.Sprintf("bytes */%d", fileSize)
}
