package dispatch

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
)

// monochromeCopy renders a grayscale copy of a raster payload into a
// temporary file and returns its path together with the converted bytes.
// The caller must remove the file when done, whatever the outcome.
func monochromeCopy(payload []byte) (string, []byte, error) {
	src, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}

	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return "", nil, fmt.Errorf("encode grayscale copy: %w", err)
	}

	tmp, err := os.CreateTemp("", "relay-gray-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("create temp copy: %w", err)
	}
	defer tmp.Close()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write temp copy: %w", err)
	}

	return tmp.Name(), buf.Bytes(), nil
}
