package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
)

// ThumbnailSize is the edge length of thumbnails produced by Thumbnail.
const ThumbnailSize = 64

// To8Bit maps the array into the 0..255 range. uint8 arrays are returned as-is;
// anything else is min-max normalized over the whole array with rounding.
// A constant array maps to zero.
func To8Bit(a *Array) (*Array, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.DType == Uint8 {
		return a, nil
	}

	n := a.Len()
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		v := a.At(i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := &Array{DType: Uint8, Shape: append([]int(nil), a.Shape...), Data: make([]byte, n)}
	span := hi - lo
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return out, nil
	}
	for i := 0; i < n; i++ {
		out.Data[i] = uint8(math.Round((a.At(i) - lo) / span * 255))
	}
	return out, nil
}

// Image converts the array to a displayable image: the first three channels
// become RGB, fewer than three channels render the first channel as gray.
func Image(a *Array) (image.Image, error) {
	h, w, c, err := a.Dims()
	if err != nil {
		return nil, err
	}
	a8, err := To8Bit(a)
	if err != nil {
		return nil, err
	}

	if c < 3 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Pix[y*img.Stride+x] = a8.Data[(y*w+x)*c]
			}
		}
		return img, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * c
			dst := y*img.Stride + x*4
			img.Pix[dst] = a8.Data[src]
			img.Pix[dst+1] = a8.Data[src+1]
			img.Pix[dst+2] = a8.Data[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	return img, nil
}

// EncodePNG renders the array to PNG bytes.
func EncodePNG(a *Array) ([]byte, error) {
	img, err := Image(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail renders a ThumbnailSize square JPEG preview using box sampling.
func Thumbnail(a *Array) ([]byte, error) {
	img, err := Image(a)
	if err != nil {
		return nil, err
	}
	small := resizeBox(img, ThumbnailSize, ThumbnailSize)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resizeBox averages every source pixel that falls into each destination cell.
// When upscaling a cell covers a single source pixel.
func resizeBox(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		y0 := y * sh / h
		y1 := max((y+1)*sh/h, y0+1)
		for x := 0; x < w; x++ {
			x0 := x * sw / w
			x1 := max((x+1)*sw/w, x0+1)

			var r, g, bl, n uint64
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					c := color.RGBAModel.Convert(src.At(b.Min.X+sx, b.Min.Y+sy)).(color.RGBA)
					r += uint64(c.R)
					g += uint64(c.G)
					bl += uint64(c.B)
					n++
				}
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: uint8(r / n),
				G: uint8(g / n),
				B: uint8(bl / n),
				A: 0xff,
			})
		}
	}
	return dst
}
