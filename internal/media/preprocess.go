package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxClassifierDimension = 1024
	ClassifierJPEGQuality  = 85
)

// Dimensions decodes only the image header at path.
func Dimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// JPEGDataURL loads the image at path, applies EXIF orientation, flattens any
// transparency onto white, bounds the longest side to 1024px and re-encodes it
// as a base64 JPEG data URL.
func JPEGDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	encoded, err := NormalizeJPEG(data, MaxClassifierDimension, ClassifierJPEGQuality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(encoded), nil
}

func NormalizeJPEG(data []byte, maxDimension, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = applyOrientation(img, orientation(data))
	rgb := flattenOnWhite(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func flattenOnWhite(img image.Image, maxDimension int) *image.RGBA {
	bounds := img.Bounds()
	width, height := scaledSize(bounds.Dx(), bounds.Dy(), maxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func scaledSize(width, height, maxDimension int) (int, int) {
	longest := width
	if height > longest {
		longest = height
	}
	if maxDimension <= 0 || longest <= maxDimension {
		return width, height
	}

	scale := float64(maxDimension) / float64(longest)
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation maps EXIF orientations 2-8 onto an upright image.
func applyOrientation(img image.Image, orient int) image.Image {
	if orient < 2 || orient > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	swap := orient >= 5

	dw, dh := w, h
	if swap {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orient {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
