package utils

import (
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMimeType is used when content sniffing fails.
const DefaultMimeType = "application/octet-stream"

// DetectMimeType detects the MIME type from file content
func DetectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

// DetectMimeTypeReader sniffs the MIME type from the head of r. Read errors fall back to
// DefaultMimeType rather than failing the caller.
func DetectMimeTypeReader(r io.Reader) string {
	mtype, err := mimetype.DetectReader(r)
	if err != nil || mtype == nil {
		return DefaultMimeType
	}
	return mtype.String()
}
