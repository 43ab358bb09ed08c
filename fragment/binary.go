package fragment

import (
	"github.com/pkg/errors"
)

// Binary is a fragment backed by a byte range of a data stream: CD-ROM data
// tracks, and image formats that interleave main+sub per sector.
type Binary struct {
	Stream Stream

	MainOffset int64 // byte offset of sector 0's main channel
	MainSize   int   // bytes of main channel per sector
	MainFormat MainFormat

	SubOffset int64 // byte offset of sector 0's subchannel, if any
	SubSize   int   // bytes of subchannel per sector (0 if none)
	SubFormat SubFormat

	Len int // length in sectors
}

func (b *Binary) Length() int { return b.Len }

func (b *Binary) MainChannelSize() int { return b.MainSize }

func (b *Binary) stride() int64 {
	return int64(b.MainSize + b.SubSize)
}

func (b *Binary) ReadMain(sectorOffset int, out []byte) error {
	if sectorOffset < 0 || sectorOffset >= b.Len {
		return errors.Wrapf(ErrRead, "binary fragment: sector %d out of range [0,%d)", sectorOffset, b.Len)
	}
	off := b.MainOffset + int64(sectorOffset)*b.stride()
	n, err := b.Stream.ReadAt(out[:b.MainSize], off)
	if err != nil || n != b.MainSize {
		return errors.Wrapf(ErrRead, "binary fragment: short main read at sector %d", sectorOffset)
	}
	if b.MainFormat == FormatAudioByteSwapped {
		swapBytePairs(out[:b.MainSize])
	}
	return nil
}

func (b *Binary) ReadSub(sectorOffset int, out []byte) error {
	if b.SubSize == 0 {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	if sectorOffset < 0 || sectorOffset >= b.Len {
		return errors.Wrapf(ErrRead, "binary fragment: sector %d out of range [0,%d)", sectorOffset, b.Len)
	}
	off := b.SubOffset + int64(sectorOffset)*b.stride()
	n, err := b.Stream.ReadAt(out[:b.SubSize], off)
	if err != nil || n != b.SubSize {
		return errors.Wrapf(ErrRead, "binary fragment: short sub read at sector %d", sectorOffset)
	}
	return nil
}

func swapBytePairs(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}
