// Package storage provides buffered binary-reading helpers used by the
// binary-trailer image parser.
package storage

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Reader wraps an io.ReadSeeker with byte/short/long helpers and peek
// support, the way the image parsers need to look ahead before committing
// to a read.
type Reader struct {
	src io.ReadSeeker
	buf *bufio.Reader
	pos int64
}

// NewReader builds a Reader over src, which must support Seek.
func NewReader(src io.ReadSeeker) *Reader {
	pos, _ := src.Seek(0, io.SeekCurrent)
	return &Reader{src: src, buf: bufio.NewReader(src), pos: pos}
}

// Read implements io.Reader so *Reader can be passed straight to
// encoding/binary.Read.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.buf.Read(p)
	r.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker, resetting the internal buffer on any jump.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.src.Seek(offset, whence)
	if err != nil {
		return pos, errors.Wrap(err, "storage: seek")
	}
	r.buf.Reset(r.src)
	r.pos = pos
	return pos, nil
}

// Pos reports the current logical offset.
func (r *Reader) Pos() int64 {
	return r.pos
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return 0, errors.Wrap(err, "storage: read byte")
	}
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	b, err := r.buf.Peek(1)
	if err != nil {
		return 0, errors.Wrap(err, "storage: peek byte")
	}
	return b[0], nil
}

// ReadShort reads a little-endian uint16.
func (r *Reader) ReadShort() (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, errors.Wrap(err, "storage: read short")
	}
	return v, nil
}

// PeekShort returns the next little-endian uint16 without consuming it.
func (r *Reader) PeekShort() (uint16, error) {
	b, err := r.buf.Peek(2)
	if err != nil {
		return 0, errors.Wrap(err, "storage: peek short")
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadLong reads a little-endian uint32.
func (r *Reader) ReadLong() (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, errors.Wrap(err, "storage: read long")
	}
	return v, nil
}

// ReadLongBE reads a big-endian uint32, used by the binary-trailer parser
// for the 32-bit NERO trailer offset.
func (r *Reader) ReadLongBE() (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, errors.Wrap(err, "storage: read long be")
	}
	return v, nil
}

// ReadQuadBE reads a big-endian uint64, used by the binary-trailer
// parser's 64-bit offset variant.
func (r *Reader) ReadQuadBE() (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, errors.Wrap(err, "storage: read quad be")
	}
	return v, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "storage: read bytes")
	}
	return buf, nil
}

// Len returns the total size of the underlying stream.
func (r *Reader) Len() (int64, error) {
	cur, err := r.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "storage: len")
	}
	end, err := r.src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "storage: len")
	}
	if _, err := r.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// BCDToBinary decodes one packed-BCD byte.
func BCDToBinary(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// BinaryToBCD encodes a 0-99 value as packed BCD.
func BinaryToBCD(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}
