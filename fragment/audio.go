package fragment

import (
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

const bytesPerSector = 2352

// AudioStream decodes an audio file lazily, exposing it as a flat
// interleaved 16-bit-stereo-at-44100Hz byte stream. Two decode paths are
// supported: a WAV container (via go-audio/wav) and a raw interleaved PCM
// file, fixed at construction by NewAudioStream's raw flag. A file the WAV
// decoder rejects is reported as a read error, not re-read as raw PCM.
type AudioStream struct {
	path string
	raw  bool

	mu      sync.Mutex
	decoded []byte // fully materialized PCM, decoded on first touch
	err     error
}

// NewAudioStream opens path lazily; raw selects reading the file as
// headerless interleaved PCM instead of decoding a WAV container.
func NewAudioStream(path string, raw bool) *AudioStream {
	return &AudioStream{path: path, raw: raw}
}

func (a *AudioStream) ensureDecoded() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decoded != nil || a.err != nil {
		return a.err
	}

	f, err := os.Open(a.path)
	if err != nil {
		a.err = errors.Wrapf(ErrRead, "audio stream: open %s: %v", a.path, err)
		return a.err
	}
	defer f.Close()

	if a.raw {
		data, err := io.ReadAll(f)
		if err != nil {
			a.err = errors.Wrapf(ErrRead, "audio stream: read raw %s: %v", a.path, err)
			return a.err
		}
		a.decoded = data
		return nil
	}

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil || buf == nil {
		a.err = errors.Wrapf(ErrRead, "audio stream: decode wav %s: %v", a.path, err)
		return a.err
	}
	a.decoded = pcmToInterleaved16(buf)
	return nil
}

// pcmToInterleaved16 renders a go-audio PCM buffer as interleaved
// little-endian 16-bit stereo samples, resampling channel count when the
// source isn't already stereo by duplicating or dropping channels.
func pcmToInterleaved16(buf *audio.IntBuffer) []byte {
	ch := buf.Format.NumChannels
	if ch < 1 {
		ch = 1
	}
	n := len(buf.Data)
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i += ch {
		l := buf.Data[i]
		r := l
		if ch > 1 && i+1 < n {
			r = buf.Data[i+1]
		}
		out = append(out, byte(l), byte(l>>8), byte(r), byte(r>>8))
	}
	return out
}

func (a *AudioStream) Size() (int64, error) {
	if err := a.ensureDecoded(); err != nil {
		return 0, err
	}
	return int64(len(a.decoded)), nil
}

func (a *AudioStream) ReadAt(p []byte, off int64) (int, error) {
	if err := a.ensureDecoded(); err != nil {
		return 0, err
	}
	if off < 0 || off >= int64(len(a.decoded)) {
		return 0, errors.Wrapf(ErrRead, "audio stream: offset %d out of range", off)
	}
	n := copy(p, a.decoded[off:])
	if n < len(p) {
		return n, errors.Wrap(ErrRead, "audio stream: short read")
	}
	return n, nil
}

// Audio is a fragment backed by a decoded audio stream; it carries no
// subchannel of its own.
type Audio struct {
	Source     *AudioStream
	ByteOffset int64
	Len        int
}

func (a *Audio) Length() int { return a.Len }

func (a *Audio) MainChannelSize() int { return bytesPerSector }

func (a *Audio) ReadMain(sectorOffset int, out []byte) error {
	if sectorOffset < 0 || sectorOffset >= a.Len {
		return errors.Wrapf(ErrRead, "audio fragment: sector %d out of range [0,%d)", sectorOffset, a.Len)
	}
	off := a.ByteOffset + int64(sectorOffset)*bytesPerSector
	n, err := a.Source.ReadAt(out[:bytesPerSector], off)
	if err != nil || n != bytesPerSector {
		return errors.Wrapf(ErrRead, "audio fragment: decode error at sector %d", sectorOffset)
	}
	return nil
}

func (a *Audio) ReadSub(sectorOffset int, out []byte) error {
	if sectorOffset < 0 || sectorOffset >= a.Len {
		return errors.Wrapf(ErrRead, "audio fragment: sector %d out of range [0,%d)", sectorOffset, a.Len)
	}
	for i := range out {
		out[i] = 0
	}
	return nil
}
