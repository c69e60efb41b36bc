package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// LocalAdapter stores objects as files under a root directory.
type LocalAdapter struct {
	root    string
	baseURL string
}

// NewLocalAdapter creates root if needed. baseURL is the public prefix the
// files are served under (e.g. "/api/files").
func NewLocalAdapter(root, baseURL string) (*LocalAdapter, error) {
	if root == "" {
		return nil, &Error{Op: "init", Backend: BackendLocal, Err: ErrConfig}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &Error{Op: "init", Key: root, Backend: BackendLocal, Err: classifyLocalError(err)}
	}
	return &LocalAdapter{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (a *LocalAdapter) Backend() string { return BackendLocal }

func (a *LocalAdapter) Capabilities() Capabilities { return Capabilities{SignedURLs: false} }

func (a *LocalAdapter) fullPath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(a.root, filepath.FromSlash(key)), nil
}

func (a *LocalAdapter) url(key string) string {
	return a.baseURL + "/" + key
}

// Save creates the file exclusively, so two uploads can never share a key.
func (a *LocalAdapter) Save(ctx context.Context, key string, data []byte, contentType string) (*models.StoredFileDescriptor, error) {
	if _, err := a.fullPath(key); err != nil {
		return nil, &Error{Op: "save", Key: key, Backend: BackendLocal, Err: err}
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Op: "save", Key: key, Backend: BackendLocal, Err: err}
		}

		k := candidateKey(key, attempt)
		full, _ := a.fullPath(k)

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, &Error{Op: "save", Key: k, Backend: BackendLocal, Err: classifyLocalError(err)}
		}

		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, &Error{Op: "save", Key: k, Backend: BackendLocal, Err: classifyLocalError(err)}
		}

		n, werr := f.Write(data)
		cerr := f.Close()
		if werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = os.Remove(full)
			return nil, &Error{Op: "save", Key: k, Backend: BackendLocal, Err: classifyLocalError(werr)}
		}

		modified := time.Now()
		if st, err := os.Stat(full); err == nil {
			modified = st.ModTime()
		}

		return &models.StoredFileDescriptor{
			Key:         k,
			URL:         a.url(k),
			Backend:     BackendLocal,
			Size:        int64(n),
			ContentType: contentType,
			CreatedAt:   modified,
			ModifiedAt:  modified,
		}, nil
	}

	return nil, &Error{Op: "save", Key: key, Backend: BackendLocal, Err: ErrAlreadyExists}
}

func (a *LocalAdapter) Read(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	full, err := a.fullPath(key)
	if err != nil {
		return nil, nil, &Error{Op: "read", Key: key, Backend: BackendLocal, Err: err}
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, nil, &Error{Op: "read", Key: key, Backend: BackendLocal, Err: classifyLocalError(err)}
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, &Error{Op: "read", Key: key, Backend: BackendLocal, Err: classifyLocalError(err)}
	}
	if st.IsDir() {
		f.Close()
		return nil, nil, &Error{Op: "read", Key: key, Backend: BackendLocal, Err: ErrNotFound}
	}

	return f, a.info(key, st), nil
}

func (a *LocalAdapter) Delete(ctx context.Context, key string) error {
	full, err := a.fullPath(key)
	if err != nil {
		return &Error{Op: "delete", Key: key, Backend: BackendLocal, Err: err}
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "delete", Key: key, Backend: BackendLocal, Err: classifyLocalError(err)}
	}
	return nil
}

// SignedURL has nothing to sign locally: the URL is served by our own
// file endpoint, which applies the ownership check itself.
func (a *LocalAdapter) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &Error{Op: "signed-url", Key: key, Backend: BackendLocal, Err: err}
	}
	return a.url(key), nil
}

func (a *LocalAdapter) Info(ctx context.Context, key string) (*ObjectInfo, error) {
	full, err := a.fullPath(key)
	if err != nil {
		return nil, &Error{Op: "info", Key: key, Backend: BackendLocal, Err: err}
	}

	st, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "info", Key: key, Backend: BackendLocal, Err: classifyLocalError(err)}
	}
	if st.IsDir() {
		return nil, nil
	}
	return a.info(key, st), nil
}

func (a *LocalAdapter) info(key string, st fs.FileInfo) *ObjectInfo {
	return &ObjectInfo{
		Key:         key,
		Backend:     BackendLocal,
		Size:        st.Size(),
		ContentType: ContentTypeForKey(key),
		ModifiedAt:  st.ModTime(),
	}
}

func classifyLocalError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	}
	return err
}
