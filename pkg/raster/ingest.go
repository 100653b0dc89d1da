package raster

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
)

// FromImage converts a decoded image into a (H, W, 3) uint8 array, or
// (H, W, 4) when the image carries transparency.
func FromImage(img image.Image) *Array {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	channels := 3
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		channels = 4
	}

	a := &Array{DType: Uint8, Shape: []int{h, w, channels}, Data: make([]byte, w*h*channels)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * channels
			a.Data[i] = c.R
			a.Data[i+1] = c.G
			a.Data[i+2] = c.B
			if channels == 4 {
				a.Data[i+3] = c.A
			}
		}
	}
	return a
}

// DecodeImage reads a PNG or JPEG stream into an array.
func DecodeImage(r io.Reader) (*Array, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), format, nil
}
