package processing

import (
	"bytes"
	"context"
	"encoding/hex"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/classfiles/internal/server/storage"
)

// maxDecodePixels refuses full decodes of images whose header promises
// more pixels than this.
const maxDecodePixels = 40_000_000

const thumbnailQuality = 82

func describeImage(data []byte, pt *partial) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		pt.fail("could not read image header: %v", err)
		return
	}
	pt.set("width", cfg.Width)
	pt.set("height", cfg.Height)
	pt.set("format", format)
}

// thumbnail renders a JPEG no larger than thumbMaxSize on either side and
// stores it under a key derived from its own bytes.
func (p *Processor) thumbnail(ctx context.Context, in Input, pt *partial) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		pt.fail("thumbnail skipped: %v", err)
		return
	}
	if cfg.Width*cfg.Height > maxDecodePixels {
		pt.fail("thumbnail skipped: image is %dx%d, too large to decode", cfg.Width, cfg.Height)
		return
	}

	src, _, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		pt.fail("thumbnail skipped: %v", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), p.thumbMaxSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha channel; transparent areas become white.
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		pt.fail("thumbnail encoding failed: %v", err)
		return
	}

	sum := blake2b.Sum256(buf.Bytes())
	key := storage.ThumbnailKey(p.now(), in.Owner, hex.EncodeToString(sum[:16]))

	d, err := p.adapter.Save(ctx, key, buf.Bytes(), "image/jpeg")
	if err != nil {
		p.logger.Warn(ctx, "thumbnail not stored", "key", key, "error", err)
		pt.fail("thumbnail could not be stored")
		return
	}
	pt.thumbnail = d
	pt.set("thumbnailWidth", w)
	pt.set("thumbnailHeight", h)
}

// fitWithin scales w×h down to fit a limit×limit box, keeping the aspect
// ratio. Images already inside the box are left as they are.
func fitWithin(w, h, limit int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
