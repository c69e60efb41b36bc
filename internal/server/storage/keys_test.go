package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	now := time.Date(2025, time.March, 7, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		owner    string
		filename string
		want     string
	}{
		{"plain", "t1", "lesson.pdf", "2025/03/t1/lesson.pdf"},
		{"spaces and case", "t1", "My Lesson Plan.PDF", "2025/03/t1/My-Lesson-Plan.pdf"},
		{"traversal in name", "t1", "../../etc/passwd", "2025/03/t1/passwd"},
		{"windows path", "t1", `C:\Users\x\notes.txt`, "2025/03/t1/notes.txt"},
		{"dots in stem", "t1", "a..b.docx", "2025/03/t1/a-b.docx"},
		{"no stem", "t1", ".pdf", "2025/03/t1/file.pdf"},
		{"unsafe owner", "../t2", "x.png", "2025/03/t2/x.png"},
		{"empty owner", "", "x.png", "2025/03/unknown/x.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildKey(now, tt.owner, tt.filename)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, ValidateKey(got))
		})
	}
}

func TestSanitizeFilename_Limits(t *testing.T) {
	name := strings.Repeat("a", 200) + ".abcdefghijklmnop"
	got := SanitizeFilename(name)
	assert.Equal(t, strings.Repeat("a", maxStemLen)+".abcdefghij", got)

	assert.Equal(t, "file", SanitizeFilename("???"))
}

func TestThumbnailKey(t *testing.T) {
	now := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	k := ThumbnailKey(now, "t1", "deadbeef")
	assert.Equal(t, "2025/11/t1/thumbs/deadbeef.jpg", k)
	assert.True(t, IsThumbnailKey(k))
	assert.False(t, IsThumbnailKey("2025/11/t1/lesson.pdf"))
}

func TestCandidateKey(t *testing.T) {
	key := "2025/03/t1/lesson.pdf"
	assert.Equal(t, key, candidateKey(key, 0))

	next := candidateKey(key, 1)
	require.NotEqual(t, key, next)
	assert.True(t, strings.HasPrefix(next, "2025/03/t1/lesson-"))
	assert.True(t, strings.HasSuffix(next, ".pdf"))
	assert.Len(t, next, len(key)+9)
}

func TestValidateKey(t *testing.T) {
	bad := []string{
		"",
		"../secret",
		"2025/03/t1/../../x",
		"~/x",
		"/etc/passwd",
		`2025\03\x`,
		"a//b",
		"a/./b",
		"a\x00b",
	}
	for _, k := range bad {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, k)
	}
	assert.NoError(t, ValidateKey("2025/03/t1/lesson.pdf"))
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeForKey("a/b/lesson.pdf"))
	assert.Equal(t, "image/jpeg", ContentTypeForKey("a/thumbs/x.JPG"))
	assert.Equal(t, DefaultContentType, ContentTypeForKey("a/b/page.html"))
	assert.Equal(t, DefaultContentType, ContentTypeForKey("a/b/noext"))
}
