package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback is an io.ReadWriter backed by two independent buffers, one for
// each direction, so a single goroutine can drive both sides of a Bridge.
type loopback struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func encodeRequest(tag uint32, cdb, data []byte) []byte {
	hdr := make([]byte, requestHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], tag)
	copy(hdr[8:24], cdb)
	hdr[24] = byte(len(cdb))
	binary.LittleEndian.PutUint32(hdr[25:29], uint32(len(data)))
	return append(hdr, data...)
}

func decodeResponse(t *testing.T, buf *bytes.Buffer) (tag, status uint32, data []byte) {
	t.Helper()
	hdr := buf.Next(responseHeaderSize)
	require.Len(t, hdr, responseHeaderSize)
	tag = binary.LittleEndian.Uint32(hdr[0:4])
	status = binary.LittleEndian.Uint32(hdr[4:8])
	dataLen := binary.LittleEndian.Uint32(hdr[8:12])
	data = buf.Next(int(dataLen))
	return
}

func TestServeDispatchesAndMirrorsTag(t *testing.T) {
	cdb := []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	lb := &loopback{in: bytes.NewBuffer(encodeRequest(0xDEAD, cdb, nil)), out: &bytes.Buffer{}}
	b := NewBridge(lb)

	var gotCDB []byte
	err := b.Serve(func(req Request) Response {
		gotCDB = req.CDB
		b.Stop()
		return Response{Status: StatusGood, Data: []byte{1, 2, 3}}
	})
	require.NoError(t, err)

	// The 10-byte CDB arrives padded to 12.
	require.Len(t, gotCDB, 12)
	assert.Equal(t, cdb, gotCDB[:10])
	assert.Equal(t, []byte{0, 0}, gotCDB[10:])

	tag, status, data := decodeResponse(t, lb.out)
	assert.Equal(t, uint32(0xDEAD), tag)
	assert.Equal(t, StatusGood, status)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestServeCarriesDataInToHandler(t *testing.T) {
	cdb := []byte{0x15, 0, 0, 0, 0, 0}
	params := []byte{0, 0, 0, 0, 0x01, 0x0A, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	lb := &loopback{in: bytes.NewBuffer(encodeRequest(7, cdb, params)), out: &bytes.Buffer{}}
	b := NewBridge(lb)

	var gotData []byte
	err := b.Serve(func(req Request) Response {
		gotData = req.Data
		b.Stop()
		return Response{}
	})
	require.NoError(t, err)
	assert.Equal(t, params, gotData)
}

func TestScratchFlushedAtCommandEntry(t *testing.T) {
	lb := &loopback{
		in:  bytes.NewBuffer(append(encodeRequest(1, []byte{0x00, 0, 0, 0, 0, 0}, nil), encodeRequest(2, []byte{0x00, 0, 0, 0, 0, 0}, nil)...)),
		out: &bytes.Buffer{},
	}
	b := NewBridge(lb)

	calls := 0
	err := b.Serve(func(req Request) Response {
		calls++
		if calls == 1 {
			b.Scratch()[0] = 0xFF
		} else {
			assert.Equal(t, byte(0), b.Scratch()[0])
			b.Stop()
		}
		return Response{}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestServeReturnsNilOnCleanEOF(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	b := NewBridge(lb)
	err := b.Serve(func(req Request) Response { return Response{} })
	assert.NoError(t, err)
}

func TestReadRequestRejectsOversizedCDBLength(t *testing.T) {
	hdr := make([]byte, requestHeaderSize)
	hdr[24] = 17
	lb := &loopback{in: bytes.NewBuffer(hdr), out: &bytes.Buffer{}}
	b := NewBridge(lb)
	_, err := b.readRequest()
	require.Error(t, err)
}

func TestReadRequestPropagatesUnderlyingError(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	b := NewBridge(lb)
	_, err := b.readRequest()
	assert.ErrorIs(t, errOrEOF(err), io.EOF)
}

func errOrEOF(err error) error {
	type causer interface{ Cause() error }
	if c, ok := err.(causer); ok {
		return c.Cause()
	}
	return err
}
