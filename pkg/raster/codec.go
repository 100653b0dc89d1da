package raster

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FormatVersion is the current version of the on-disk array encoding.
const FormatVersion = 1

var magic = [4]byte{'S', 'T', 'R', 'A'}

const maxRank = 8

// MaxPayload bounds the payload Decode accepts, in bytes.
const MaxPayload = 1 << 31

// Encode writes a to w in the lossless array format:
//
//	magic "STRA" | version u8 | dtype len u8 | dtype | rank u8 | dims u32... | payload
func Encode(w io.Writer, a *Array) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if len(a.Shape) > maxRank {
		return fmt.Errorf("%w: rank %d exceeds %d", ErrInvalidArray, len(a.Shape), maxRank)
	}

	bw := bufio.NewWriter(w)
	bw.Write(magic[:])
	bw.WriteByte(FormatVersion)
	bw.WriteByte(byte(len(a.DType)))
	bw.WriteString(string(a.DType))
	bw.WriteByte(byte(len(a.Shape)))
	var dim [4]byte
	for _, d := range a.Shape {
		binary.LittleEndian.PutUint32(dim[:], uint32(d))
		bw.Write(dim[:])
	}
	bw.Write(a.Data)
	return bw.Flush()
}

// Decode reads an array written by Encode.
func Decode(r io.Reader) (*Array, error) {
	br := bufio.NewReader(r)

	var head [5]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidArray, err)
	}
	if !bytes.Equal(head[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidArray)
	}
	if head[4] != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrInvalidArray, head[4])
	}

	n, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: reading dtype: %v", ErrInvalidArray, err)
	}
	dtype := make([]byte, n)
	if _, err := io.ReadFull(br, dtype); err != nil {
		return nil, fmt.Errorf("%w: reading dtype: %v", ErrInvalidArray, err)
	}

	rank, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: reading rank: %v", ErrInvalidArray, err)
	}
	if rank == 0 || rank > maxRank {
		return nil, fmt.Errorf("%w: rank %d", ErrInvalidArray, rank)
	}

	a := &Array{DType: DType(dtype), Shape: make([]int, rank)}
	var dim [4]byte
	for i := range a.Shape {
		if _, err := io.ReadFull(br, dim[:]); err != nil {
			return nil, fmt.Errorf("%w: reading shape: %v", ErrInvalidArray, err)
		}
		a.Shape[i] = int(binary.LittleEndian.Uint32(dim[:]))
	}

	elems, err := a.elements()
	if err != nil {
		return nil, err
	}
	size := int64(elems) * int64(a.DType.Size())
	if size > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidArray, size, MaxPayload)
	}

	// Grows with the bytes read; the declared size is only an upper bound.
	var payload bytes.Buffer
	if _, err := payload.ReadFrom(io.LimitReader(br, size)); err != nil {
		return nil, fmt.Errorf("%w: reading payload: %v", ErrInvalidArray, err)
	}
	if int64(payload.Len()) != size {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrInvalidArray, payload.Len(), size)
	}
	a.Data = payload.Bytes()
	return a, nil
}

// Marshal encodes a into a byte slice.
func Marshal(a *Array) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a byte slice produced by Marshal.
func Unmarshal(data []byte) (*Array, error) {
	return Decode(bytes.NewReader(data))
}
