package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxStemLen = 64
	maxExtLen  = 10
)

// BuildKey returns YYYY/MM/<owner>/<name><ext> with filesystem-safe segments.
func BuildKey(now time.Time, owner, filename string) string {
	return fmt.Sprintf("%04d/%02d/%s/%s", now.Year(), int(now.Month()), SanitizeSegment(owner), SanitizeFilename(filename))
}

// ThumbnailKey places a content-addressed thumbnail next to its owner's uploads.
func ThumbnailKey(now time.Time, owner, digest string) string {
	return fmt.Sprintf("%04d/%02d/%s/thumbs/%s.jpg", now.Year(), int(now.Month()), SanitizeSegment(owner), SanitizeSegment(digest))
}

// IsThumbnailKey reports whether key was produced by ThumbnailKey.
func IsThumbnailKey(key string) bool {
	return path.Base(path.Dir(key)) == "thumbs"
}

// SanitizeFilename keeps letters, digits, '-' and '_' in the stem and
// alphanumerics in the extension. Whitespace and symbols collapse to '-'.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)

	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	stem = collapse(stem, maxStemLen)
	if stem == "" {
		stem = "file"
	}

	ext = strings.ToLower(keepAlnum(strings.TrimPrefix(ext, ".")))
	if len(ext) > maxExtLen {
		ext = ext[:maxExtLen]
	}
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

// SanitizeSegment makes an arbitrary identifier usable as one key segment.
func SanitizeSegment(s string) string {
	s = collapse(s, maxStemLen)
	if s == "" {
		return "unknown"
	}
	return s
}

func collapse(s string, limit int) string {
	var b strings.Builder
	dash := false
	for _, r := range s {
		if isSafeRune(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-_")
	if len(out) > limit {
		out = strings.Trim(out[:limit], "-_")
	}
	return out
}

func keepAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSafeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// withSuffix turns dir/name.ext into dir/name-1a2b3c4d.ext.
func withSuffix(key string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + "-" + suffix + ext
}

// candidateKey returns key for the first attempt and suffixed variants after.
func candidateKey(key string, attempt int) string {
	if attempt == 0 {
		return key
	}
	return withSuffix(key)
}

// ValidateKey rejects keys that could escape the storage namespace.
func ValidateKey(key string) error {
	switch {
	case key == "",
		strings.Contains(key, ".."),
		strings.Contains(key, "~"),
		strings.Contains(key, "\\"),
		strings.ContainsRune(key, 0),
		strings.HasPrefix(key, "/"),
		path.Clean(key) != key:
		return ErrInvalidKey
	}
	return nil
}
