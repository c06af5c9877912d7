// Package images normalizes uploaded photos for storage: decode, downscale,
// re-encode as JPEG.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	MaxSize      = 1200
	JpegQuality  = 80
	MaxInputSize = 10 * 1024 * 1024
)

// Process validates and normalizes an image. Returns nil for oversized or
// undecodable input: the caller treats nil as "not a valid photo", not as an
// error.
func Process(imageBytes []byte) []byte {
	if len(imageBytes) > MaxInputSize {
		log.Warn().Msgf("Image too large: %d bytes", len(imageBytes))
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))

	if err != nil {
		log.Warn().Err(err).Msg("Invalid image")
		return nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > MaxSize || height > MaxSize {
		// Scale the longest side down to MaxSize, keeping aspect ratio
		scale := float64(MaxSize) / float64(width)
		if height > width {
			scale = float64(MaxSize) / float64(height)
		}

		scaled := image.NewRGBA(image.Rect(
			0, 0,
			int(float64(width)*scale), int(float64(height)*scale),
		))

		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
	}

	output := bytes.Buffer{}
	err = jpeg.Encode(&output, img, &jpeg.Options{Quality: JpegQuality})

	if err != nil {
		log.Warn().Err(err).Msg("Re-encoding image failed")
		return nil
	}

	return output.Bytes()
}
