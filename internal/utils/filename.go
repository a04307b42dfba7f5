package utils

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameLength is the longest display name accepted, in bytes.
const MaxFileNameLength = 255

// ErrInvalidFileName is returned for names that are empty after normalization, too long,
// or contain path separators or control characters.
var ErrInvalidFileName = errors.New("invalid file name")

// NormalizeFileName collapses every run of whitespace to a single space and trims the
// ends. The result is the display name stored for the artifact.
func NormalizeFileName(name string) (string, error) {
	normalized := strings.Join(strings.Fields(name), " ")

	if normalized == "" || normalized == "." || normalized == ".." {
		return "", ErrInvalidFileName
	}
	if len(normalized) > MaxFileNameLength || !utf8.ValidString(normalized) {
		return "", ErrInvalidFileName
	}
	if strings.ContainsAny(normalized, `/\`) {
		return "", ErrInvalidFileName
	}
	for _, r := range normalized {
		if unicode.IsControl(r) {
			return "", ErrInvalidFileName
		}
	}
	return normalized, nil
}

// FileExtension returns the lower-cased text after the last dot, without the dot.
// Names without a dot, or ending in one, have no extension.
func FileExtension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// ContentDisposition builds an attachment Content-Disposition value. The quoted filename
// is an ASCII fallback; non-ASCII names also get an RFC 5987 filename* parameter.
func ContentDisposition(name string) string {
	fallback := asciiFallback(name)
	value := `attachment; filename="` + fallback + `"`
	if fallback != name {
		value += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return value
}

// asciiFallback replaces anything that is not printable ASCII, plus quotes and
// backslashes, with an underscore.
func asciiFallback(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "download"
	}
	return b.String()
}
