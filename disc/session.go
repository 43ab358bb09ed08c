package disc

import "cdemu/fragment"

// SessionType identifies the recording format of a session.
type SessionType int

const (
	SessionCDDA SessionType = iota
	SessionCDROM
	SessionCDROMXA
	SessionCDI
)

// Track numbers reserved for the lead-in/lead-out pseudo-tracks.
const (
	LeadinNumber  = 0x00
	LeadoutNumber = 0xAA
)

// Lead-in/lead-out lengths in sectors. The first session's lead-in covers
// the 150-sector offset before LBA 0; later sessions carry a 4500-sector
// lead-in, so that together with the preceding session's lead-out the
// fixed inter-session gaps come out to 11250 sectors before session 2 and
// 6750 before any later one.
const (
	firstLeadin   = 150
	laterLeadin   = 4500
	lastLeadout   = 150
	firstLeadout  = 6750
	middleLeadout = 2250
)

// Session owns an ordered list of tracks plus the implicit leadin/leadout
// pseudo-tracks materialized by the layout pass.
type Session struct {
	Number      int
	Type        SessionType
	Tracks      []*Track
	LeadoutLen  int // 0 means "use the position-dependent default"
	MCN         string
	LanguageMap map[int]int // index -> language code
	CDText      map[int][]CDTextPack

	Leadin  *Track
	Leadout *Track

	startSector int
}

// CDTextPack is one raw CD-TEXT pack (18 bytes) accumulated for a language.
type CDTextPack struct {
	Type byte
	Data [18]byte
}

// AddTrack appends a track, assigning it the next sequential number.
func (s *Session) AddTrack(mode TrackMode) *Track {
	num := 1
	if len(s.Tracks) > 0 {
		num = s.Tracks[len(s.Tracks)-1].Number + 1
	}
	t := &Track{Number: num, SessionNumber: s.Number, Mode: mode}
	s.Tracks = append(s.Tracks, t)
	return t
}

func (s *Session) leadinLen() int {
	if s.Number == 1 {
		return firstLeadin
	}
	return laterLeadin
}

// leadoutLen returns the effective leadout length; the layout pass fills
// LeadoutLen in when the parser left it zero.
func (s *Session) leadoutLen() int {
	if s.LeadoutLen != 0 {
		return s.LeadoutLen
	}
	return lastLeadout
}

// Length is leadin + Σ track layout lengths + leadout.
func (s *Session) Length() int {
	total := s.leadinLen()
	for _, t := range s.Tracks {
		total += t.LayoutLength()
	}
	total += s.leadoutLen()
	return total
}

// pseudoTrackMode picks the sector type lead-in/lead-out sectors carry.
func (s *Session) pseudoTrackMode() (TrackMode, byte) {
	if s.Type == SessionCDDA {
		return TrackModeAudio, CTLAudio
	}
	return TrackModeMode1, CTLData
}

// layoutFrom assigns absolute start sectors to this session's leadin,
// tracks, and leadout, beginning at start.
func (s *Session) layoutFrom(start int) {
	mode, ctl := s.pseudoTrackMode()

	cursor := start
	s.Leadin = &Track{
		Number:        LeadinNumber,
		SessionNumber: s.Number,
		Mode:          mode,
		CTL:           ctl,
		Fragments:     []fragment.Fragment{&fragment.Null{Len: s.leadinLen()}},
		startSector:   cursor,
	}
	cursor += s.leadinLen()

	for _, t := range s.Tracks {
		t.startSector = cursor
		cursor += t.LayoutLength()
	}

	s.Leadout = &Track{
		Number:        LeadoutNumber,
		SessionNumber: s.Number,
		Mode:          mode,
		CTL:           ctl,
		Fragments:     []fragment.Fragment{&fragment.Null{Len: s.leadoutLen()}},
		startSector:   cursor,
	}
}

// allTracks returns the session's address-resolvable tracks: leadin, the
// real tracks, leadout. Valid only after a layout pass.
func (s *Session) allTracks() []*Track {
	out := make([]*Track, 0, len(s.Tracks)+2)
	if s.Leadin != nil {
		out = append(out, s.Leadin)
	}
	out = append(out, s.Tracks...)
	if s.Leadout != nil {
		out = append(out, s.Leadout)
	}
	return out
}

// FirstTrackNumber and LastTrackNumber support READ DISC INFORMATION.
func (s *Session) FirstTrackNumber() int {
	if len(s.Tracks) == 0 {
		return 0
	}
	return s.Tracks[0].Number
}

func (s *Session) LastTrackNumber() int {
	if len(s.Tracks) == 0 {
		return 0
	}
	return s.Tracks[len(s.Tracks)-1].Number
}
