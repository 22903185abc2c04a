// Package imageutil holds the image handling around reconstruction: decoding
// uploads, the crop/composite/pad preprocessing and the synthetic test input.
package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/botforge/forge3d/internal/apperr"
)

// AlphaThreshold is the opacity at which a pixel counts as foreground when
// computing the subject bounding box
const AlphaThreshold = 204

// DefaultPadRatio is the margin added around the subject on each side,
// relative to its larger dimension
const DefaultPadRatio = 0.1

// Decode reads a PNG, JPEG, GIF, BMP or WEBP image
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalid, err, "cannot decode image")
	}
	return imaging.Clone(img), nil
}

// DecodeBytes is Decode over an in-memory buffer
func DecodeBytes(data []byte) (*image.NRGBA, error) {
	return Decode(bytes.NewReader(data))
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// PNGBytes encodes img as PNG into memory
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes img to path, format chosen by extension
func Save(img image.Image, path string) error {
	return imaging.Save(img, path)
}

// HasTransparency reports whether any pixel is not fully opaque, meaning the
// background has already been removed
func HasTransparency(img image.Image) bool {
	n := imaging.Clone(img)
	for i := 3; i < len(n.Pix); i += 4 {
		if n.Pix[i] < 255 {
			return true
		}
	}
	return false
}

// SubjectBounds returns the bounding box of pixels whose alpha reaches the
// threshold. An image with no such pixel yields its full bounds.
func SubjectBounds(img *image.NRGBA, threshold uint8) image.Rectangle {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A < threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX || maxY < minY {
		return b
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Prepare turns a segmented foreground into reconstruction input: crop to
// the subject, composite onto a solid background and pad to a centered square
func Prepare(fg image.Image, bg color.Color, padRatio float64) *image.NRGBA {
	src := imaging.Clone(fg)
	subject := imaging.Crop(src, SubjectBounds(src, AlphaThreshold))

	w, h := subject.Bounds().Dx(), subject.Bounds().Dy()
	side := w
	if h > side {
		side = h
	}
	side += 2 * int(float64(side)*padRatio)

	canvas := imaging.New(side, side, bg)
	return imaging.OverlayCenter(canvas, subject, 1.0)
}

// TestRobot draws a flat robot silhouette on a transparent square canvas
func TestRobot(size int) *image.NRGBA {
	img := imaging.New(size, size, color.NRGBA{255, 255, 255, 0})
	cx, cy := size/2, size/2

	const (
		bodyW, bodyH = 120, 160
		headW, headH = 80, 60
		armW, armH   = 30, 100
		legW, legH   = 40, 80
	)

	fill := func(x0, y0, x1, y1 int, c color.NRGBA) {
		block := imaging.New(x1-x0, y1-y0, c)
		img = imaging.Paste(img, block, image.Pt(x0, y0))
	}

	// body
	fill(cx-bodyW/2, cy-bodyH/2, cx+bodyW/2, cy+bodyH/2, color.NRGBA{180, 50, 50, 255})

	// head
	headTop := cy - bodyH/2 - headH
	fill(cx-headW/2, headTop, cx+headW/2, cy-bodyH/2, color.NRGBA{200, 60, 60, 255})

	// eyes
	for _, off := range []int{-20, 20} {
		fill(cx+off-8, headTop+15, cx+off+8, headTop+30, color.NRGBA{0, 255, 100, 255})
	}

	// arms
	for _, off := range []int{-(bodyW/2 + armW), bodyW / 2} {
		fill(cx+off, cy-30, cx+off+armW, cy-30+armH, color.NRGBA{150, 40, 40, 255})
	}

	// legs
	for _, off := range []int{-30, 30} {
		fill(cx+off-legW/2, cy+bodyH/2, cx+off+legW/2, cy+bodyH/2+legH, color.NRGBA{160, 45, 45, 255})
	}

	return img
}
