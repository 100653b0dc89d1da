package raster_test

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/aretw0/strata/pkg/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Lossless(t *testing.T) {
	for _, dtype := range []raster.DType{raster.Uint8, raster.Uint16, raster.Int16, raster.Int32, raster.Float32, raster.Float64} {
		t.Run(string(dtype), func(t *testing.T) {
			a, err := raster.New(dtype, 3, 2, 4)
			require.NoError(t, err)
			for i := 0; i < a.Len(); i++ {
				a.Set(i, float64(i*7%100))
			}

			data, err := raster.Marshal(a)
			require.NoError(t, err)

			got, err := raster.Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, a.DType, got.DType)
			assert.Equal(t, a.Shape, got.Shape)
			assert.Equal(t, a.Data, got.Data)
		})
	}
}

func TestCodec_Rejects(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		_, err := raster.Unmarshal([]byte("NOPE\x01"))
		assert.ErrorIs(t, err, raster.ErrInvalidArray)
	})

	t.Run("truncated payload", func(t *testing.T) {
		a, _ := raster.New(raster.Uint8, 4, 4)
		data, err := raster.Marshal(a)
		require.NoError(t, err)
		_, err = raster.Unmarshal(data[:len(data)-3])
		assert.ErrorIs(t, err, raster.ErrInvalidArray)
	})

	t.Run("payload mismatch on encode", func(t *testing.T) {
		a := &raster.Array{DType: raster.Uint16, Shape: []int{2, 2}, Data: make([]byte, 3)}
		_, err := raster.Marshal(a)
		assert.ErrorIs(t, err, raster.ErrInvalidArray)
	})

	t.Run("huge dimensions", func(t *testing.T) {
		header := []byte("STRA\x01\x05uint8\x03")
		for i := 0; i < 3; i++ {
			header = append(header, 0xFF, 0xFF, 0xFF, 0xFF)
		}
		_, err := raster.Unmarshal(header)
		assert.ErrorIs(t, err, raster.ErrInvalidArray)
	})

	t.Run("header larger than payload", func(t *testing.T) {
		// 1 GiB declared, three bytes present.
		header := []byte("STRA\x01\x05uint8\x02")
		header = binary.LittleEndian.AppendUint32(header, 1<<15)
		header = binary.LittleEndian.AppendUint32(header, 1<<15)
		_, err := raster.Unmarshal(append(header, 1, 2, 3))
		assert.ErrorIs(t, err, raster.ErrInvalidArray)
	})

	t.Run("shape overflow", func(t *testing.T) {
		_, err := raster.New(raster.Float64, math.MaxInt/2, 4)
		assert.ErrorIs(t, err, raster.ErrInvalidArray)
	})

	t.Run("unknown dtype", func(t *testing.T) {
		a := &raster.Array{DType: "complex128", Shape: []int{1}, Data: make([]byte, 16)}
		assert.ErrorIs(t, a.Validate(), raster.ErrInvalidArray)
	})
}

func TestTo8Bit(t *testing.T) {
	t.Run("uint8 is identity", func(t *testing.T) {
		a := &raster.Array{DType: raster.Uint8, Shape: []int{1, 3}, Data: []byte{3, 9, 200}}
		got, err := raster.To8Bit(a)
		require.NoError(t, err)
		assert.Equal(t, []byte{3, 9, 200}, got.Data)
	})

	t.Run("min-max with rounding", func(t *testing.T) {
		a, _ := raster.New(raster.Float32, 1, 3)
		a.Set(0, -1)
		a.Set(1, 0)
		a.Set(2, 1)
		got, err := raster.To8Bit(a)
		require.NoError(t, err)
		// 0.5 * 255 = 127.5 rounds half away from zero.
		assert.Equal(t, []byte{0, 128, 255}, got.Data)
	})

	t.Run("constant array", func(t *testing.T) {
		a, _ := raster.New(raster.Uint16, 2, 2)
		for i := 0; i < 4; i++ {
			a.Set(i, 500)
		}
		got, err := raster.To8Bit(a)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 0}, got.Data)
	})
}

func TestEncodePNG_UsesFirstThreeChannels(t *testing.T) {
	// 1x1 pixel with 4 bands; the fourth band must not leak into alpha.
	a := &raster.Array{DType: raster.Uint8, Shape: []int{1, 1, 4}, Data: []byte{10, 20, 30, 0}}

	data, err := raster.EncodePNG(a)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, alpha := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(10), r>>8)
	assert.Equal(t, uint32(20), g>>8)
	assert.Equal(t, uint32(30), b>>8)
	assert.Equal(t, uint32(0xff), alpha>>8)
}

func TestEncodePNG_Grayscale(t *testing.T) {
	a := &raster.Array{DType: raster.Uint8, Shape: []int{2, 2}, Data: []byte{0, 64, 128, 255}}
	data, err := raster.EncodePNG(a)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, color.Gray{Y: 128}, color.GrayModel.Convert(img.At(0, 1)))
}

func TestThumbnail(t *testing.T) {
	a, _ := raster.New(raster.Uint8, 100, 200, 3)
	data, err := raster.Thumbnail(a)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, raster.ThumbnailSize, img.Bounds().Dx())
	assert.Equal(t, raster.ThumbnailSize, img.Bounds().Dy())
}

func TestDecodeImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	src.SetRGBA(1, 1, color.RGBA{R: 1, G: 2, B: 3, A: 0xff})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	a, format, err := raster.DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, []int{2, 3, 3}, a.Shape)
	i := (1*3 + 1) * 3
	assert.Equal(t, []byte{1, 2, 3}, a.Data[i:i+3])
}
