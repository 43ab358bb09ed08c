// Package feature implements the ordered GET CONFIGURATION feature list
// and the profile-bound "current" bit rules.
package feature

import "sort"

// Entry is one feature record.
type Entry struct {
	Code       uint16
	Version    byte
	Persistent bool
	Current    bool
	Payload    []byte
}

// Bytes renders the feature header (4 bytes) plus payload, in the form
// GET CONFIGURATION copies directly into its response.
func (e *Entry) Bytes() []byte {
	out := make([]byte, 4+len(e.Payload))
	out[0] = byte(e.Code >> 8)
	out[1] = byte(e.Code)
	out[2] = e.Version << 2
	if e.Persistent {
		out[2] |= 0x02
	}
	if e.Current {
		out[2] |= 0x01
	}
	out[3] = byte(len(e.Payload))
	copy(out[4:], e.Payload)
	return out
}

// Profile names the feature sets SetCurrentFeatures knows how to activate.
type Profile int

const (
	ProfileNone Profile = iota
	ProfileCDROM
	ProfileCDR
	ProfileDVDROM
)

// DB is the ordered-by-code feature list, owned by the Device for its
// entire lifecycle.
type DB struct {
	entries map[uint16]*Entry
}

// NewDB returns an empty feature database.
func NewDB() *DB {
	return &DB{entries: make(map[uint16]*Entry)}
}

// Register adds or replaces a feature entry, keyed by code.
func (d *DB) Register(e *Entry) {
	d.entries[e.Code] = e
}

// Get returns the entry for code, or nil.
func (d *DB) Get(code uint16) *Entry {
	return d.entries[code]
}

// Codes returns every registered code in ascending order.
func (d *DB) Codes() []uint16 {
	out := make([]uint16, 0, len(d.entries))
	for c := range d.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// persistentCodes never get their Current bit reset by a profile switch.
var persistentCodes = map[uint16]bool{
	0x0000: true, 0x0001: true, 0x0002: true, 0x0003: true, 0x0100: true,
}

// profileFeatureSets names which codes are "current" for each profile.
// CDR implicitly carries the CDROM bit.
var profileFeatureSets = map[Profile][]uint16{
	ProfileCDROM: {0x0010, 0x001D, 0x001E},
	ProfileCDR:   {0x0010, 0x001D, 0x001E, 0x0021, 0x002D},
	ProfileDVDROM: {0x0010, 0x001F},
}

// SetCurrentFeatures resets every non-persistent feature's current bit then
// sets the bits named by the profile's feature set (plus CDROM's set when
// the profile is CDR).
func (d *DB) SetCurrentFeatures(p Profile) {
	for code, e := range d.entries {
		if !persistentCodes[code] {
			e.Current = false
		}
	}
	set := append([]uint16(nil), profileFeatureSets[p]...)
	if p == ProfileCDR {
		set = append(set, profileFeatureSets[ProfileCDROM]...)
	}
	for _, code := range set {
		if e, ok := d.entries[code]; ok {
			e.Current = true
		}
	}
	if e, ok := d.entries[0x0000]; ok {
		e.Current = true
	}
	d.setProfileListCurrent(p)
}
