package disc

import (
	"github.com/pkg/errors"

	"cdemu/fragment"
	"cdemu/sector"
)

// TrackMode maps a TOC/cue track mode onto the sector type and control
// nibble it implies.
type TrackMode int

const (
	TrackModeAudio TrackMode = iota
	TrackModeMode1
	TrackModeMode2Formless
	TrackModeMode2Form1
	TrackModeMode2Form2
	TrackModeMode2Mixed
)

// SectorType returns the sector.Type this track mode builds.
func (m TrackMode) SectorType() sector.Type {
	switch m {
	case TrackModeAudio:
		return sector.Audio
	case TrackModeMode1:
		return sector.Mode1
	case TrackModeMode2Formless:
		return sector.Mode2Formless
	case TrackModeMode2Form1:
		return sector.Mode2Form1
	case TrackModeMode2Form2:
		return sector.Mode2Form2
	case TrackModeMode2Mixed:
		return sector.Mode2Mixed
	}
	return sector.Mode1
}

// CTL bit flags packed into the 4-bit control nibble.
const (
	CTLAudio       byte = 0x00
	CTLData        byte = 0x04
	CTLCopyPermit  byte = 0x02
	CTLPreemphasis byte = 0x01
	CTLFourChannel byte = 0x08
)

// TrackIndex is one INDEX entry, address relative to track_start (the
// point where the pregap ends and index 1 begins).
type TrackIndex struct {
	Number         int
	RelativeSector int
}

// Track owns an ordered list of fragments contributing its sector range.
type Track struct {
	Number        int
	SessionNumber int
	Mode          TrackMode
	CTL           byte
	ISRC          string
	Fragments     []fragment.Fragment
	TrackStart    int // pregap length in sectors
	Indices       []TrackIndex
	CDText        map[int][]CDTextPack

	startSector int
}

var ErrFragmentRead = errors.New("disc: fragment read failed")

// AddFragment appends a fragment to the track's layout.
func (t *Track) AddFragment(f fragment.Fragment) {
	t.Fragments = append(t.Fragments, f)
}

// LayoutLength is the sum of all fragment lengths.
func (t *Track) LayoutLength() int {
	total := 0
	for _, f := range t.Fragments {
		total += f.Length()
	}
	return total
}

// Length is an alias for LayoutLength, matching the address-range sense
// used by GetTrackByAddress.
func (t *Track) Length() int {
	return t.LayoutLength()
}

// StartSector is the absolute address assigned by the containing Session's
// Layout pass.
func (t *Track) StartSector() int {
	return t.startSector
}

// fragmentFor resolves an absolute lba to the owning fragment and the
// sector offset within it.
func (t *Track) fragmentFor(lba int) (fragment.Fragment, int, error) {
	rel := lba - t.startSector
	if rel < 0 {
		return nil, 0, errors.Wrap(ErrNoTrack, "disc: address before track start")
	}
	for _, f := range t.Fragments {
		if rel < f.Length() {
			return f, rel, nil
		}
		rel -= f.Length()
	}
	return nil, 0, errors.Wrap(ErrNoTrack, "disc: address beyond track end")
}

// GetSector materializes the sector at lba from the owning fragment's main
// and subchannel bytes, synthesizing Q if the fragment carries no
// subchannel of its own. Raw (2352-byte) fragments are used verbatim;
// cooked fragments supply only user data, and the sync/header/EDC/ECC
// framing is rebuilt around it.
func (t *Track) GetSector(lba int) (*sector.Sector, error) {
	f, rel, err := t.fragmentFor(lba)
	if err != nil {
		return nil, err
	}

	st := t.Mode.SectorType()
	ms := f.MainChannelSize()

	var s *sector.Sector
	if ms == sector.MainSize {
		main := make([]byte, sector.MainSize)
		if err := f.ReadMain(rel, main); err != nil {
			return nil, errors.Wrap(ErrFragmentRead, err.Error())
		}
		s = &sector.Sector{Type: st, LBA: lba}
		copy(s.Main[:], main)
	} else {
		data := make([]byte, ms)
		if ms > 0 {
			if err := f.ReadMain(rel, data); err != nil {
				return nil, errors.Wrap(ErrFragmentRead, err.Error())
			}
		}
		s, err = sector.BuildSector(st, lba, cookedPayload(st, data))
		if err != nil {
			return nil, errors.Wrap(ErrFragmentRead, err.Error())
		}
	}

	sub := make([]byte, sector.SubSize)
	if err := f.ReadSub(rel, sub); err != nil {
		return nil, errors.Wrap(ErrFragmentRead, err.Error())
	}
	if hasNonZero(sub) {
		copy(s.Sub[:], sub)
		s.HasSub = true
	} else {
		idx := t.indexAt(lba - t.startSector)
		q := sector.SynthesizeSubchannelQ(t.CTL, t.Number, idx, lba-t.startSector-t.TrackStart, lba)
		s.Sub = sector.SynthesizeSubchannelPW(q)
		s.HasSub = true
	}
	return s, nil
}

// cookedPayload pads cooked user data out to the payload BuildSector
// expects, synthesizing the XA subheader submode flags when the image
// stores Form 1/Form 2 data without one.
func cookedPayload(st sector.Type, data []byte) []byte {
	need := sector.BuildPayloadSize(st)
	if len(data) >= need {
		return data[:need]
	}
	out := make([]byte, need)
	switch st {
	case sector.Mode2Form1:
		out[2], out[6] = 0x08, 0x08
	case sector.Mode2Form2:
		out[2], out[6] = 0x20, 0x20
	}
	copy(out[need-len(data):], data)
	return out
}

// indexAt maps a sector offset within the track to its index number: 0
// inside the pregap, 1 from track start, higher as INDEX entries (whose
// addresses are relative to track start) are passed.
func (t *Track) indexAt(relativeSector int) int {
	if relativeSector < t.TrackStart {
		return 0
	}
	rel := relativeSector - t.TrackStart
	idx := 1
	for _, i := range t.Indices {
		if rel >= i.RelativeSector {
			idx = i.Number
		}
	}
	return idx
}

func hasNonZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}
