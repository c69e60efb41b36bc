package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func extractPDF(ctx context.Context, data []byte, withText bool, pt *partial) {
	err := safely(func() error {
		r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return err
		}

		pages := r.NumPage()
		pt.set("pageCount", pages)
		if !withText {
			return nil
		}

		var b strings.Builder
		for i := 1; i <= pages; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			page := r.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			b.WriteString(text)
			if b.Len() > maxTextBytes {
				break
			}
			b.WriteByte('\n')
		}

		text := strings.TrimSpace(b.String())
		pt.text = keepText(text, pt)
		pt.set("wordCount", len(strings.Fields(pt.text)))
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, pdf.ErrInvalidPassword):
		pt.text = ""
		pt.fail("PDF is encrypted; no text extracted")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		pt.text = ""
		pt.fail("PDF text extraction failed: %v", err)
	}
}

// safely converts a panic inside a third-party parser into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()
	return fn()
}
