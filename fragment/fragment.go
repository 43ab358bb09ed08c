// Package fragment implements the lazy, typed windows over backing data
// sources — binary file slices, decoded audio streams, and synthetic
// zero-fill — that tracks stitch together into a sector stream.
package fragment

import (
	"github.com/pkg/errors"
)

// MainFormat distinguishes how a Binary fragment's main-channel bytes are
// laid out on the backing stream.
type MainFormat int

const (
	FormatData MainFormat = iota
	FormatAudio
	FormatAudioByteSwapped
)

// SubFormat bits describe how a fragment's subchannel bytes, if any, are
// interleaved on the backing stream.
type SubFormat int

const (
	SubNone SubFormat = 0
	SubPW96Interleaved SubFormat = 1 << iota
	SubPW96Linear
	SubRW96
	SubInternal
	SubExternal
)

// ErrRead is returned when a backing stream fails to produce the requested
// bytes — truncated files, decode failures, and the like.
var ErrRead = errors.New("fragment: read failure")

// Stream is a read-only, seekable handle to fragment backing data. Binary
// and Audio fragments share whatever stream their image parser opened for
// them; Go's garbage collector keeps the stream alive as long as a fragment
// references it; no manual refcounting is needed.
type Stream interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() (int64, error)
}

// Fragment is the contract every fragment variant satisfies.
type Fragment interface {
	// Length reports the fragment's extent in sectors.
	Length() int
	// MainChannelSize reports how many main-channel bytes the fragment
	// stores per sector: 2352 for raw sectors, the cooked user-data size
	// for data-only images, 0 for synthetic fragments.
	MainChannelSize() int
	// ReadMain fills out[:MainChannelSize()] with the main-channel bytes
	// of the sector at sectorOffset (relative to the fragment's start).
	ReadMain(sectorOffset int, out []byte) error
	// ReadSub fills out with the subchannel bytes of the sector at
	// sectorOffset, or zeroes it if the fragment carries no subchannel.
	ReadSub(sectorOffset int, out []byte) error
}

// Null is a synthetic zero-fill fragment, used for pregaps and gaps.
type Null struct {
	Len int
}

func (n *Null) Length() int { return n.Len }

func (n *Null) MainChannelSize() int { return 0 }

func (n *Null) ReadMain(sectorOffset int, out []byte) error {
	if sectorOffset < 0 || sectorOffset >= n.Len {
		return errors.Wrapf(ErrRead, "null fragment: sector %d out of range [0,%d)", sectorOffset, n.Len)
	}
	for i := range out {
		out[i] = 0
	}
	return nil
}

func (n *Null) ReadSub(sectorOffset int, out []byte) error {
	return n.ReadMain(sectorOffset, out)
}
