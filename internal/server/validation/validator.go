// Package validation checks upload candidates against the size/type policy.
package validation

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// Policy is the upload policy. AllowedTypes accepts exact MIME types and
// wildcard subtypes ("image/*"). DeniedExtensions are compared case-insensitively.
type Policy struct {
	MaxSizeBytes     int64
	AllowedTypes     []string
	DeniedExtensions []string
}

// Validate runs every check and collects every violation. It has no side effects.
func Validate(req models.UploadRequest, policy Policy) models.ValidationResult {
	var errs []string
	sizeExceeded := false

	if req.Size > policy.MaxSizeBytes {
		sizeExceeded = true
		errs = append(errs, fmt.Sprintf("File size %s exceeds the maximum allowed size of %s",
			FormatBytes(req.Size), FormatBytes(policy.MaxSizeBytes)))
	}

	if !TypeAllowed(req.ContentType, policy.AllowedTypes) {
		declared := req.ContentType
		if declared == "" {
			declared = "unknown"
		}
		errs = append(errs, fmt.Sprintf("File type %s is not allowed", declared))
	}

	if ext := strings.ToLower(filepath.Ext(req.Filename)); ext != "" && extensionDenied(ext, policy.DeniedExtensions) {
		errs = append(errs, fmt.Sprintf("File extension %s is not allowed", ext))
	}

	return models.ValidationResult{
		IsValid:      len(errs) == 0,
		Errors:       errs,
		SizeExceeded: sizeExceeded,
	}
}

// TypeAllowed matches a declared MIME type against exact and wildcard patterns.
// Parameters such as "; charset=utf-8" are ignored.
func TypeAllowed(contentType string, patterns []string) bool {
	mediaType := normalizeType(contentType)
	if mediaType == "" {
		return false
	}
	major, _, _ := strings.Cut(mediaType, "/")

	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "*/*":
			return true
		case strings.HasSuffix(p, "/*"):
			if strings.TrimSuffix(p, "/*") == major {
				return true
			}
		case p == mediaType:
			return true
		}
	}
	return false
}

func normalizeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

func extensionDenied(ext string, denied []string) bool {
	for _, d := range denied {
		d = strings.ToLower(strings.TrimSpace(d))
		if !strings.HasPrefix(d, ".") {
			d = "." + d
		}
		if d == ext {
			return true
		}
	}
	return false
}

// FormatBytes renders a byte count for people: 512 B, 1.5 KB, 50 MB.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := []string{"KB", "MB", "GB", "TB", "PB", "EB"}[exp]
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d %s", int64(value), suffix)
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}
