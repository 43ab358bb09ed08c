// Package disc models the Session/Track/Fragment tree that image parsers
// populate and the command engine reads sectors from.
package disc

import (
	"github.com/pkg/errors"

	"cdemu/sector"
)

// MediumType identifies the physical medium a Disc represents.
type MediumType int

const (
	MediumCD MediumType = iota
	MediumDVD
	MediumBD
	MediumHD
)

// Profile is the MMC feature-set identity currently simulated — a separate
// concept from MediumType (a loaded CD is always MediumCD, but its profile
// tracks CDROM vs CDR).
type Profile int

const (
	ProfileNone Profile = iota
	ProfileCDROM
	ProfileCDR
	ProfileDVDROM
)

// StructureKey addresses a disc structure (DVD physical info, BCA, etc.) by
// layer and format code.
type StructureKey struct {
	Layer  int
	Format int
}

// ErrNoTrack is returned when an address does not resolve to a track.
var ErrNoTrack = errors.New("disc: address does not resolve to a track")

// Disc is the root of the owned tree: it exclusively owns its Sessions.
type Disc struct {
	Medium       MediumType
	Profile      Profile
	LayoutStart  int // default -150 for CD so LBA 0 aligns with user area
	Sessions     []*Session
	Structures   map[StructureKey][]byte
	DPM          *DPMCurve
}

// NewDisc returns a Disc with CD defaults (layout start -150, no profile).
func NewDisc() *Disc {
	return &Disc{
		Medium:      MediumCD,
		Profile:     ProfileNone,
		LayoutStart: -150,
		Structures:  make(map[StructureKey][]byte),
	}
}

// AddSession appends a new session, assigning it the next session number.
func (d *Disc) AddSession(sessionType SessionType) *Session {
	num := 1
	if len(d.Sessions) > 0 {
		num = d.Sessions[len(d.Sessions)-1].Number + 1
	}
	s := &Session{Number: num, Type: sessionType}
	d.Sessions = append(d.Sessions, s)
	return s
}

// GetSessionByIndex returns the session at position i, or the last session
// when i == -1, or nil if out of range. i is 0-based positional index, not
// a session number.
func (d *Disc) GetSessionByIndex(i int) *Session {
	if i == -1 {
		if len(d.Sessions) == 0 {
			return nil
		}
		return d.Sessions[len(d.Sessions)-1]
	}
	if i < 0 || i >= len(d.Sessions) {
		return nil
	}
	return d.Sessions[i]
}

// LayoutLength is the sum of every session's length (tracks + leadin/leadout).
func (d *Disc) LayoutLength() int {
	total := 0
	for _, s := range d.Sessions {
		total += s.Length()
	}
	return total
}

// Layout assigns absolute start sectors to every session, materializing
// the leadin/leadout pseudo-tracks. Sessions whose parser left the leadout
// length unset get the position-dependent default: 6750 sectors after the
// first of several sessions, 2250 after a middle one, 150 after the last —
// which, combined with the 4500-sector lead-in of every later session,
// yields the fixed 11250/6750-sector inter-session gaps.
func (d *Disc) Layout() {
	for i, s := range d.Sessions {
		if s.LeadoutLen == 0 {
			switch {
			case i == len(d.Sessions)-1:
				s.LeadoutLen = lastLeadout
			case i == 0:
				s.LeadoutLen = firstLeadout
			default:
				s.LeadoutLen = middleLeadout
			}
		}
	}
	cursor := d.LayoutStart
	for _, s := range d.Sessions {
		s.startSector = cursor
		s.layoutFrom(cursor)
		cursor += s.Length()
	}
}

// GetTrackByAddress resolves an absolute LBA to its containing track —
// leadin/leadout pseudo-tracks included — or ErrNoTrack if none claims it.
func (d *Disc) GetTrackByAddress(lba int) (*Session, *Track, error) {
	for _, s := range d.Sessions {
		if lba < s.startSector || lba >= s.startSector+s.Length() {
			continue
		}
		for _, t := range s.allTracks() {
			if lba >= t.startSector && lba < t.startSector+t.Length() {
				return s, t, nil
			}
		}
	}
	return nil, nil, ErrNoTrack
}

// GetSector resolves lba to a fragment and materializes a sector of the
// owning track's mode.
func (d *Disc) GetSector(lba int) (*sector.Sector, error) {
	_, t, err := d.GetTrackByAddress(lba)
	if err != nil {
		return nil, err
	}
	return t.GetSector(lba)
}

// SetDiscStructure stores raw structure bytes for (layer, format).
func (d *Disc) SetDiscStructure(layer, format int, data []byte) {
	d.Structures[StructureKey{layer, format}] = data
}

// GetDiscStructure retrieves previously stored structure bytes.
func (d *Disc) GetDiscStructure(layer, format int) ([]byte, bool) {
	b, ok := d.Structures[StructureKey{layer, format}]
	return b, ok
}

// DPMCurve is a sparse table of (angle, density) samples keyed by sector
// address, used by the timing engine.
type DPMCurve struct {
	Samples map[int]DPMSample
}

// DPMSample is one angle/density data point.
type DPMSample struct {
	AngleTurns     float64
	DensitySectors float64 // sectors per 360 degrees
}

// Lookup returns the sample nearest to lba at or before it, and whether any
// sample exists at all.
func (c *DPMCurve) Lookup(lba int) (DPMSample, bool) {
	if c == nil || len(c.Samples) == 0 {
		return DPMSample{}, false
	}
	best, ok := 0, false
	for k := range c.Samples {
		if k <= lba && (!ok || k > best) {
			best, ok = k, true
		}
	}
	if !ok {
		return DPMSample{}, false
	}
	return c.Samples[best], true
}
