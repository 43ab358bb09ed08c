// Package transport frames CDB requests and responses over the character
// device a kernel-side virtual HBA exposes: fixed-layout request/response
// headers sharing one I/O buffer, with a small scratch buffer backing
// per-command data assembly.
package transport

import (
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Wire-format constants, shared with the kernel module.
const (
	maxCommandSize = 16
	maxSense       = 256
	maxSectors     = 256

	requestHeaderSize  = 4 + 4 + maxCommandSize + 1 + 4
	responseHeaderSize = 4 + 4 + 4

	// BufSize is the kernel I/O buffer size: room for a full-sized data
	// transfer plus sense and the response header, rounded up to 512-byte
	// sectors.
	BufSize = 512 * (maxSectors + (maxSense+responseHeaderSize+511)/512)

	// scratchSize is the per-command assembly ("cache") buffer.
	scratchSize = 4096
)

// Status values carried in the response header.
const (
	StatusGood           uint32 = 0
	StatusCheckCondition uint32 = 2
)

// Request is one incoming command frame. The CDB arrives padded to 12
// bytes; DataLen is the frame header's byte count of the payload that
// follows, and Data holds those bytes (MODE SELECT's parameter list).
type Request struct {
	Tag     uint32
	LUN     uint32
	CDB     []byte
	DataLen uint32
	Data    []byte
}

// Response mirrors the request tag and carries the IN-phase data.
type Response struct {
	Tag    uint32
	Status uint32
	Data   []byte
}

// Handler processes one Request into a Response. On CheckCondition the
// sense payload travels in Response.Data.
type Handler func(Request) Response

// Bridge runs the single-threaded read-dispatch-write loop over conn.
type Bridge struct {
	conn    io.ReadWriter
	ioBuf   []byte
	scratch []byte
	stopped int32
}

// NewBridge wraps conn with the fixed kernel I/O buffer and scratch buffer.
func NewBridge(conn io.ReadWriter) *Bridge {
	return &Bridge{
		conn:    conn,
		ioBuf:   make([]byte, BufSize),
		scratch: make([]byte, scratchSize),
	}
}

// Scratch returns the per-command assembly buffer, zeroed at every command
// entry.
func (b *Bridge) Scratch() []byte {
	return b.scratch
}

// Stop requests the Serve loop exit after its current iteration.
func (b *Bridge) Stop() {
	atomic.StoreInt32(&b.stopped, 1)
}

func (b *Bridge) stopRequested() bool {
	return atomic.LoadInt32(&b.stopped) != 0
}

// Serve reads one request, flushes the scratch buffer, invokes handler,
// writes the response, and repeats until Stop is called or the connection
// returns an error (io.EOF is a clean shutdown).
func (b *Bridge) Serve(handler Handler) error {
	for !b.stopRequested() {
		req, err := b.readRequest()
		if err != nil {
			if errors.Cause(err) == io.EOF {
				return nil
			}
			return err
		}
		for i := range b.scratch {
			b.scratch[i] = 0
		}
		resp := handler(req)
		resp.Tag = req.Tag
		if err := b.writeResponse(resp); err != nil {
			return err
		}
	}
	return nil
}

// readRequest decodes one request frame: tag, lun, a fixed 16-byte CDB
// field with its cdb_len, the data length, then that many data-in bytes.
// The CDB handed to the handler is padded out to 12 bytes.
func (b *Bridge) readRequest() (Request, error) {
	hdr := b.ioBuf[:requestHeaderSize]
	if _, err := io.ReadFull(b.conn, hdr); err != nil {
		return Request{}, errors.Wrap(err, "transport: read request header")
	}

	req := Request{
		Tag: binary.LittleEndian.Uint32(hdr[0:4]),
		LUN: binary.LittleEndian.Uint32(hdr[4:8]),
	}
	cdbLen := int(hdr[24])
	if cdbLen == 0 || cdbLen > maxCommandSize {
		return Request{}, errors.Errorf("transport: invalid CDB length %d", cdbLen)
	}
	padded := cdbLen
	if padded < 12 {
		padded = 12
	}
	cdb := make([]byte, padded)
	copy(cdb, hdr[8:8+cdbLen])
	req.CDB = cdb

	req.DataLen = binary.LittleEndian.Uint32(hdr[25:29])
	if int64(req.DataLen) > int64(BufSize-requestHeaderSize) {
		return Request{}, errors.Errorf("transport: data length %d exceeds buffer", req.DataLen)
	}
	if req.DataLen > 0 {
		data := b.ioBuf[requestHeaderSize : requestHeaderSize+int(req.DataLen)]
		if _, err := io.ReadFull(b.conn, data); err != nil {
			return Request{}, errors.Wrap(err, "transport: read data-in")
		}
		req.Data = append([]byte(nil), data...)
	}
	return req, nil
}

// writeResponse encodes one response frame: tag, status, data length, then
// the data-out bytes, capped to the buffer space left after the header.
func (b *Bridge) writeResponse(r Response) error {
	data := r.Data
	if len(data) > BufSize-responseHeaderSize {
		data = data[:BufSize-responseHeaderSize]
	}

	out := b.ioBuf[:responseHeaderSize+len(data)]
	binary.LittleEndian.PutUint32(out[0:4], r.Tag)
	binary.LittleEndian.PutUint32(out[4:8], r.Status)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(data)))
	copy(out[responseHeaderSize:], data)

	if _, err := b.conn.Write(out); err != nil {
		return errors.Wrap(err, "transport: write response")
	}
	return nil
}
