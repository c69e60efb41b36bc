// Package processing derives text, metadata and thumbnails from uploaded
// files. Nothing here fails an upload: every problem is reported in
// ProcessingResult.Errors and the caller carries on.
package processing

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
)

// Kind is the pipeline a file is dispatched to.
type Kind string

const (
	KindImage       Kind = "image"
	KindPDF         Kind = "pdf"
	KindWord        Kind = "word"
	KindLegacyWord  Kind = "legacy-word"
	KindText        Kind = "text"
	KindUnsupported Kind = "unsupported"
)

const (
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDoc  = "application/msword"
)

// maxTextBytes caps extracted text kept on a record.
const maxTextBytes = 1 << 20

// Options switch the optional outputs on or off.
type Options struct {
	ExtractText       bool
	GenerateThumbnail bool
}

// Input is one file handed to Process.
type Input struct {
	Data        []byte
	ContentType string
	Filename    string
	Owner       string
}

type Processor struct {
	adapter      storage.Adapter
	logger       logging.Logger
	timeout      time.Duration
	thumbMaxSize int
	now          func() time.Time
}

// New returns a Processor that stores thumbnails through adapter.
// A non-positive timeout disables the deadline.
func New(adapter storage.Adapter, logger logging.Logger, timeout time.Duration, thumbMaxSize int) *Processor {
	if thumbMaxSize <= 0 {
		thumbMaxSize = 200
	}
	return &Processor{
		adapter:      adapter,
		logger:       logger.With("module", "processing"),
		timeout:      timeout,
		thumbMaxSize: thumbMaxSize,
		now:          time.Now,
	}
}

// Detect picks the pipeline from the declared type, falling back to the
// extension when the type is missing or generic.
func Detect(contentType, filename string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" || mt == "application/octet-stream" {
		mt = mime.TypeByExtension(strings.ToLower(path.Ext(filename)))
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
	}
	mt = strings.ToLower(mt)

	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case mt == "application/pdf":
		return KindPDF
	case mt == mimeDocx:
		return KindWord
	case mt == mimeDoc:
		return KindLegacyWord
	case strings.HasPrefix(mt, "text/"), mt == "application/json":
		return KindText
	}
	return KindUnsupported
}

// partial is what one pipeline task contributes.
type partial struct {
	text      string
	metadata  map[string]any
	thumbnail *models.StoredFileDescriptor
	errs      []string
}

func (p *partial) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Sprintf(format, args...))
}

func (p *partial) set(key string, v any) {
	if p.metadata == nil {
		p.metadata = map[string]any{}
	}
	p.metadata[key] = v
}

// Process runs the pipeline for in under the configured timeout. When the
// deadline passes the result is marked TimedOut and anything the abandoned
// run stores afterwards is removed again.
func (p *Processor) Process(ctx context.Context, in Input, opts Options) *models.ProcessingResult {
	kind := Detect(in.ContentType, in.Filename)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	done := make(chan *models.ProcessingResult, 1)
	go func() {
		done <- p.run(runCtx, kind, in, opts)
	}()

	select {
	case res := <-done:
		cancel()
		return res
	case <-runCtx.Done():
		cancel()
		go p.discardLate(done)

		res := &models.ProcessingResult{
			Metadata: map[string]any{"kind": string(kind)},
			TimedOut: true,
		}
		if ctx.Err() != nil {
			res.Errors = []string{"processing canceled"}
		} else {
			res.Errors = []string{fmt.Sprintf("processing timed out after %s", p.timeout)}
		}
		p.logger.Warn(ctx, "processing abandoned", "filename", in.Filename, "kind", kind, "timeout", p.timeout)
		return res
	}
}

// discardLate waits for an abandoned run and deletes its thumbnail, which
// no record will ever reference.
func (p *Processor) discardLate(done <-chan *models.ProcessingResult) {
	res := <-done
	if res == nil || res.Thumbnail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.adapter.Delete(ctx, res.Thumbnail.Key); err != nil {
		p.logger.Error(ctx, "failed to delete late thumbnail", "key", res.Thumbnail.Key, "error", err)
	}
}

func (p *Processor) run(ctx context.Context, kind Kind, in Input, opts Options) *models.ProcessingResult {
	var (
		mu    sync.Mutex
		parts []*partial
	)
	collect := func(pt *partial) {
		mu.Lock()
		parts = append(parts, pt)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pt := &partial{}
		pt.set("kind", string(kind))
		switch kind {
		case KindImage:
			describeImage(in.Data, pt)
		case KindPDF:
			extractPDF(gctx, in.Data, opts.ExtractText, pt)
		case KindWord:
			if opts.ExtractText {
				extractDocx(gctx, in.Data, pt)
			}
		case KindLegacyWord:
			pt.fail("legacy Word format (.doc) is not supported; no text extracted")
		case KindText:
			extractText(in.Data, opts.ExtractText, pt)
		}
		collect(pt)
		return gctx.Err()
	})

	if kind == KindImage && opts.GenerateThumbnail && p.adapter != nil {
		g.Go(func() error {
			pt := &partial{}
			p.thumbnail(gctx, in, pt)
			collect(pt)
			return gctx.Err()
		})
	}

	_ = g.Wait()

	res := &models.ProcessingResult{Metadata: map[string]any{}}
	for _, pt := range parts {
		if pt.text != "" {
			res.ExtractedText = pt.text
		}
		for k, v := range pt.metadata {
			res.Metadata[k] = v
		}
		if pt.thumbnail != nil {
			res.Thumbnail = pt.thumbnail
		}
		res.Errors = append(res.Errors, pt.errs...)
	}
	return res
}

// keepText truncates s to maxTextBytes on a rune boundary.
func keepText(s string, pt *partial) string {
	if len(s) <= maxTextBytes {
		return s
	}
	cut := maxTextBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	pt.set("textTruncated", true)
	return s[:cut]
}
