package imgproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1024 // Maximum width or height in pixels sent to the thinking tier
	jpegQuality         = 85

	// MaxPixels bounds width*height of any frame decoded in process
	MaxPixels = 64_000_000
)

// ErrImageTooLarge is returned for frames whose declared dimensions exceed MaxPixels
var ErrImageTooLarge = errors.New("image dimensions exceed pixel budget")

// CheckDimensions reads only the image header and rejects frames above MaxPixels
func CheckDimensions(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return cfg, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// Orientation extracts the EXIF orientation from image data, 1 when absent
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Reorient returns img transformed so that it displays upright for the given EXIF orientation
func Reorient(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			out.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Compress normalizes a frame before it is sent to a multimodal model: EXIF orientation is applied,
// the image is downscaled to fit maxDimension and re-encoded as JPEG.
// Upright JPEGs already within bounds are returned unchanged.
func Compress(data []byte, maxDimension int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	if _, err := CheckDimensions(data); err != nil {
		return nil, err
	}

	orientation := Orientation(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if orientation != 1 {
		img = Reorient(img, orientation)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= maxDimension && height <= maxDimension {
		if format == "jpeg" && orientation == 1 {
			return data, nil
		}
		return encode(img)
	}

	scale := float64(maxDimension) / float64(width)
	if s := float64(maxDimension) / float64(height); s < scale {
		scale = s
	}
	newWidth := max(1, min(maxDimension, int(float64(width)*scale)))
	newHeight := max(1, min(maxDimension, int(float64(height)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	out, err := encode(dst)
	if err != nil {
		return nil, err
	}
	log.Debugf("Frame compressed: %d bytes -> %d bytes (%dx%d -> %dx%d, orientation: %d)",
		len(data), len(out), width, height, newWidth, newHeight, orientation)
	return out, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
