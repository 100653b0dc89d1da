package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DType names the element type of an Array.
type DType string

const (
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// ErrInvalidArray is returned when an Array's shape, dtype and payload disagree.
var ErrInvalidArray = errors.New("invalid array")

// Size returns the width in bytes of one element, or 0 for unknown types.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Array is a dense n-dimensional image array stored row-major with
// little-endian elements. Images are (H, W) or (H, W, C).
type Array struct {
	DType DType
	Shape []int
	Data  []byte
}

// New allocates a zeroed array of the given type and shape.
func New(dtype DType, shape ...int) (*Array, error) {
	a := &Array{DType: dtype, Shape: append([]int(nil), shape...)}
	n, err := a.elements()
	if err != nil {
		return nil, err
	}
	a.Data = make([]byte, n*dtype.Size())
	return a, nil
}

// Len returns the number of elements.
func (a *Array) Len() int {
	n, _ := a.elements()
	return n
}

func (a *Array) elements() (int, error) {
	if a.DType.Size() == 0 {
		return 0, fmt.Errorf("%w: unsupported dtype %q", ErrInvalidArray, a.DType)
	}
	if len(a.Shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrInvalidArray)
	}
	n := 1
	for _, d := range a.Shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive dimension in %v", ErrInvalidArray, a.Shape)
		}
		if n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrInvalidArray, a.Shape)
		}
		n *= d
	}
	if n > math.MaxInt/a.DType.Size() {
		return 0, fmt.Errorf("%w: shape %v of %s overflows", ErrInvalidArray, a.Shape, a.DType)
	}
	return n, nil
}

// Validate checks that the payload length matches shape and dtype.
func (a *Array) Validate() error {
	n, err := a.elements()
	if err != nil {
		return err
	}
	if want := n * a.DType.Size(); len(a.Data) != want {
		return fmt.Errorf("%w: payload is %d bytes, shape %v of %s needs %d",
			ErrInvalidArray, len(a.Data), a.Shape, a.DType, want)
	}
	return nil
}

// Dims returns height, width and channel count. A 2-D array has one channel.
func (a *Array) Dims() (h, w, c int, err error) {
	switch len(a.Shape) {
	case 2:
		return a.Shape[0], a.Shape[1], 1, nil
	case 3:
		return a.Shape[0], a.Shape[1], a.Shape[2], nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: image arrays are 2-D or 3-D, got shape %v", ErrInvalidArray, a.Shape)
	}
}

// At returns the i-th element (row-major) as float64.
func (a *Array) At(i int) float64 {
	switch a.DType {
	case Uint8:
		return float64(a.Data[i])
	case Uint16:
		return float64(binary.LittleEndian.Uint16(a.Data[i*2:]))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(a.Data[i*2:])))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(a.Data[i*4:])))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(a.Data[i*8:]))
	}
	return 0
}

// Set stores v at index i, converting to the array's dtype.
func (a *Array) Set(i int, v float64) {
	switch a.DType {
	case Uint8:
		a.Data[i] = uint8(v)
	case Uint16:
		binary.LittleEndian.PutUint16(a.Data[i*2:], uint16(v))
	case Int16:
		binary.LittleEndian.PutUint16(a.Data[i*2:], uint16(int16(v)))
	case Int32:
		binary.LittleEndian.PutUint32(a.Data[i*4:], uint32(int32(v)))
	case Float32:
		binary.LittleEndian.PutUint32(a.Data[i*4:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(a.Data[i*8:], math.Float64bits(v))
	}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		DType: a.DType,
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]byte(nil), a.Data...),
	}
}
