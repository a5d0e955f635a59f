// Package imaging renders the blurred previews shown for locked processed photos.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/gift"
	_ "golang.org/x/image/webp"
)

const defaultQuality = 80

// PreviewOptions controls preview rendering
type PreviewOptions struct {
	// Width caps the preview width; smaller images keep their size.
	Width   int
	Blur    float32
	Quality int
}

// BlurredPreview decodes an image, downsizes and blurs it, and encodes the result as JPEG
func BlurredPreview(data []byte, opts PreviewOptions) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var filters []gift.Filter
	if opts.Width > 0 && src.Bounds().Dx() > opts.Width {
		filters = append(filters, gift.Resize(opts.Width, 0, gift.LanczosResampling))
	}
	if opts.Blur > 0 {
		filters = append(filters, gift.GaussianBlur(opts.Blur))
	}

	g := gift.New(filters...)
	dst := image.NewRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
