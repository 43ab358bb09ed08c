package mmc

import (
	"cdemu/disc"
	"cdemu/feature"
	"cdemu/modepage"
	"cdemu/sector"
	"cdemu/sense"
)

const (
	opReadCapacity       = 0x25
	opRead10             = 0x28
	opSeek10             = 0x2B
	opReadSubchannel     = 0x42
	opReadTOCPMAATIP     = 0x43
	opReadTrackInfo      = 0x52
	opReadDiscInfo       = 0x51
	opRead12             = 0xA8
	opReadDVDStructure   = 0xAD
	opReadCDMSF          = 0xB9
	opReadCD             = 0xBE
)

func init() {
	register(opReadCapacity, "READ CAPACITY", false, readCapacity)
	register(opRead10, "READ(10)", false, read10)
	register(opRead12, "READ(12)", false, read12)
	register(opSeek10, "SEEK(10)", true, seek10)
	register(opReadSubchannel, "READ SUBCHANNEL", false, readSubchannel)
	register(opReadTOCPMAATIP, "READ TOC/PMA/ATIP", false, readTOC)
	register(opReadTrackInfo, "READ TRACK INFORMATION", false, readTrackInformation)
	register(opReadDiscInfo, "READ DISC INFORMATION", false, readDiscInformation)
	register(opReadDVDStructure, "READ DVD STRUCTURE", false, readDVDStructure)
	register(opReadCDMSF, "READ CD MSF", false, readCDMSF)
	register(opReadCD, "READ CD", false, readCD)
}

func lastAddressableLBA(d *disc.Disc) int {
	last := 0
	for _, s := range d.Sessions {
		for _, t := range s.Tracks {
			end := t.StartSector() + t.Length() - 1
			if end > last {
				last = end
			}
		}
	}
	return last
}

func readCapacity(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	out := make([]byte, 8)
	putBE32(out[0:4], lastAddressableLBA(ctx.Disc))
	putBE32(out[4:8], 2048)
	return out, nil
}

// dcrEnabled reports mode page 0x01's DCR bit (byte 2, bit 0): when set, the
// drive is told to suppress its own error-correction/retry behavior, which
// this emulation interprets as skipping the EDC bad-sector check.
func dcrEnabled(ctx *Context) bool {
	p := ctx.ModePages.Get(0x01, modepage.Current)
	return len(p) > 2 && p[2]&0x01 != 0
}

// checkBadSector verifies EDC for CD Mode1/Mode2Form1 sectors when DCR is
// clear.
func checkBadSector(ctx *Context, s *sector.Sector) *sense.Sense {
	if ctx.Disc.Medium != disc.MediumCD {
		return nil
	}
	if s.Type != sector.Mode1 && s.Type != sector.Mode2Form1 {
		return nil
	}
	if dcrEnabled(ctx) {
		return nil
	}
	if !s.VerifyEDC() {
		return sense.New(sense.MediumError, sense.UnrecoveredReadError)
	}
	return nil
}

// beginDelay brackets a sector-read command with the simulated
// seek/transfer sleep; the returned func is deferred so the sleep covers
// the handler's own processing time.
func beginDelay(ctx *Context, lba, count int) func() {
	if ctx.Delay == nil {
		return func() {}
	}
	ctx.Delay.Begin(ctx.Disc, lba, count)
	return ctx.Delay.Finalize
}

// readUserData reads count cooked-2048-byte sectors starting at lba, the
// payload shape READ(10)/READ(12) deliver. Only sector types that carry a
// genuine 2048-byte user-data channel (Mode1, Mode2Form1) are readable this
// way; anything else fails IllegalModeForThisTrack. The head position is
// left on the last sector read.
func readUserData(ctx *Context, lba, count int) ([]byte, *sense.Sense) {
	defer beginDelay(ctx, lba, count)()

	out := make([]byte, 0, count*2048)
	for i := 0; i < count; i++ {
		s, err := ctx.Disc.GetSector(lba + i)
		if err != nil {
			return nil, sense.New(sense.IllegalRequest, sense.IllegalModeForThisTrack)
		}
		if sector.UserDataSize(s.Type) != 2048 {
			return nil, sense.New(sense.IllegalRequest, sense.IllegalModeForThisTrack)
		}
		if sn := checkBadSector(ctx, s); sn != nil {
			return nil, sn
		}
		out = append(out, s.GetChannel(sector.ChanData)...)
		ctx.CurrentAddress = lba + i
	}
	return out, nil
}

func read10(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	lba := be32(cdb[2:6])
	count := be16(cdb[7:9])
	return readUserData(ctx, lba, count)
}

func read12(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 12); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	lba := be32(cdb[2:6])
	count := be32(cdb[6:10])
	return readUserData(ctx, lba, count)
}

func seek10(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	// No seek actually happens; the head position just follows the request.
	ctx.CurrentAddress = be32(cdb[2:6])
	return nil, nil
}

// readSubchannel supports formats 0x01 (current position), 0x02 (MCN) and
// 0x03 (ISRC). The header's audio-status byte is reported regardless of
// format; when SubQ is clear only the header is returned.
func readSubchannel(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	wantQ := cdb[2]&0x40 != 0
	format := cdb[3]
	msf := cdb[1]&0x02 != 0

	header := make([]byte, 4)
	header[1] = byte(ctx.Audio.Status())
	if !wantQ {
		return truncate(header, be16(cdb[7:9])), nil
	}

	var body []byte
	switch format {
	case 0x01:
		body = currentPositionBody(ctx, msf)
	case 0x02:
		body = make([]byte, 20)
		body[0] = 0x02
		if s := ctx.Disc.GetSessionByIndex(-1); s != nil && s.MCN != "" {
			body[4] = 0x80 // MCVal
			copy(body[5:18], []byte(s.MCN))
		}
	case 0x03:
		body = make([]byte, 20)
		body[0] = 0x03
		trackNum := int(cdb[6])
		for _, s := range ctx.Disc.Sessions {
			for _, t := range s.Tracks {
				if t.Number != trackNum {
					continue
				}
				body[1] = 0x10 | (t.CTL & 0x0F)
				body[2] = byte(t.Number)
				if t.ISRC != "" {
					body[4] = 0x80 // TCVal
					copy(body[5:17], []byte(t.ISRC))
				}
			}
		}
	default:
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}

	out := append(header, body...)
	putBE16(out[2:4], len(out)-4)
	return truncate(out, be16(cdb[7:9])), nil
}

// currentPositionBody reads the Q subchannel at the head's current address.
// If the Q there is not a Mode-1 (position) packet, it steps forward one
// sector at a time, up to 99 times, until one is found, then subtracts the
// steps taken from the reported addresses. BCD Q fields are converted to
// binary on return.
func currentPositionBody(ctx *Context, msf bool) []byte {
	body := make([]byte, 12)
	body[0] = 0x01

	addr := ctx.CurrentAddress
	var q [12]byte
	found := false
	steps := 0
	for ; steps < 100; steps++ {
		s, err := ctx.Disc.GetSector(addr + steps)
		if err != nil {
			break
		}
		q = sector.ExtractQ(s.Sub)
		if q[0]&0x0F == 0x01 {
			found = true
			break
		}
	}
	if !found {
		return body
	}

	body[1] = (q[0] << 4) | (q[0] >> 4) // raw Q is CTL|ADR; the report wants ADR|CTL
	body[2] = byte(sector.UnBCD(q[1]))
	body[3] = byte(sector.UnBCD(q[2]))

	absLBA := sector.MSFToLBA(sector.UnBCD(q[7]), sector.UnBCD(q[8]), sector.UnBCD(q[9]), true) - steps
	relLBA := sector.MSFToLBA(sector.UnBCD(q[3]), sector.UnBCD(q[4]), sector.UnBCD(q[5]), false) - steps
	putAddress(body[4:8], absLBA, msf, true)
	putAddress(body[8:12], relLBA, msf, false)
	return body
}

// putAddress renders lba as either a 4-byte BE LBA or a (reserved,M,S,F)
// quad, matching the TOC/subchannel address-field convention.
func putAddress(out []byte, lba int, msf bool, withLeadIn bool) {
	if !msf {
		putBE32(out, lba)
		return
	}
	m, s, f := sector.LBAToMSF(lba, withLeadIn)
	out[0] = 0
	out[1] = byte(m)
	out[2] = byte(s)
	out[3] = byte(f)
}

func readTOC(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	msf := cdb[1]&0x02 != 0
	format := cdb[2] & 0x0F
	if format == 0 {
		// INF-8020 compatibility: old initiators request formats 1 and 2
		// through control-byte bits instead of the format field.
		switch cdb[9] >> 6 {
		case 1:
			format = 1
		case 2:
			format = 2
		}
	}

	s := ctx.Disc.GetSessionByIndex(-1)
	if s == nil || len(s.Tracks) == 0 {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}

	switch format {
	case 0: // formatted TOC
		var body []byte
		for _, t := range s.Tracks {
			d := make([]byte, 8)
			d[1] = 0x10 | (t.CTL & 0x0F) // ADR 1, track CTL
			d[2] = byte(t.Number)
			putAddress(d[4:8], t.StartSector(), msf, true)
			body = append(body, d...)
		}
		leadOut := make([]byte, 8)
		leadOut[1] = 0x10
		leadOut[2] = 0xAA
		putAddress(leadOut[4:8], s.Tracks[len(s.Tracks)-1].StartSector()+s.Tracks[len(s.Tracks)-1].Length(), msf, true)
		body = append(body, leadOut...)

		header := make([]byte, 4)
		header[2] = byte(s.FirstTrackNumber())
		header[3] = byte(s.LastTrackNumber())
		out := append(header, body...)
		putBE16(out[0:2], len(out)-2)
		return truncate(out, be16(cdb[7:9])), nil

	case 1: // multi-session info: first/last complete session plus the last
		// session's first-track descriptor, per MMC-3 "Multi-session Information".
		header := make([]byte, 4)
		header[2] = byte(1)
		header[3] = byte(len(ctx.Disc.Sessions))
		d := make([]byte, 8)
		firstTrack := s.Tracks[0]
		d[1] = 0x10 | (firstTrack.CTL & 0x0F)
		d[2] = byte(firstTrack.Number)
		putAddress(d[4:8], firstTrack.StartSector(), msf, true)
		out := append(header, d...)
		putBE16(out[0:2], len(out)-2)
		return truncate(out, be16(cdb[7:9])), nil

	case 2: // raw TOC: A0/A1/A2 + one descriptor per track per session, plus
		// B0/C0 bridging descriptors when the disc has more than one session.
		return rawTOC(ctx, msf, be16(cdb[7:9])), nil

	case 4: // ATIP: header only, no disc actually carries writable-media ATIP data.
		header := make([]byte, 4)
		putBE16(header[0:2], len(header)-2)
		return truncate(header, be16(cdb[7:9])), nil

	case 5: // CD-TEXT: first session's raw pack bytes, language 0 first.
		return cdTextTOC(ctx.Disc.GetSessionByIndex(0), be16(cdb[7:9])), nil

	default:
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
}

// rawTocDescriptor renders one 11-byte raw-TOC point descriptor: session
// number, ADR/CTL, reserved TNO, POINT, a (min,sec,frame) field left zero
// for every descriptor, reserved zero, and the PMIN:PSEC:PFRAME address
// field, always rendered as MSF whatever the msf argument.
func rawTocDescriptor(sessionNum int, adr, ctl byte, point byte, addr int, msf bool) []byte {
	d := make([]byte, 11)
	d[0] = byte(sessionNum)
	d[1] = adr<<4 | (ctl & 0x0F)
	d[3] = point
	m, s, f := sector.LBAToMSF(addr, true)
	d[8], d[9], d[10] = byte(m), byte(s), byte(f)
	_ = msf
	return d
}

func rawTOC(ctx *Context, msf bool, allocLen int) []byte {
	var body []byte
	sessions := ctx.Disc.Sessions
	discTypeCode := byte(0x00)
	if len(sessions) > 0 {
		switch sessions[0].Type {
		case disc.SessionCDI:
			discTypeCode = 0x10
		case disc.SessionCDROMXA:
			discTypeCode = 0x20
		}
	}

	for si, s := range sessions {
		if len(s.Tracks) == 0 {
			continue
		}
		a0 := rawTocDescriptor(s.Number, 1, s.Tracks[0].CTL, 0xA0, 0, msf)
		a0[9] = discTypeCode
		a0[8] = byte(s.FirstTrackNumber())
		body = append(body, a0...)

		a1 := rawTocDescriptor(s.Number, 1, s.Tracks[0].CTL, 0xA1, 0, msf)
		a1[8] = byte(s.LastTrackNumber())
		body = append(body, a1...)

		leadoutAddr := s.Tracks[len(s.Tracks)-1].StartSector() + s.Tracks[len(s.Tracks)-1].Length()
		body = append(body, rawTocDescriptor(s.Number, 1, s.Tracks[0].CTL, 0xA2, leadoutAddr, msf)...)

		for _, t := range s.Tracks {
			body = append(body, rawTocDescriptor(s.Number, 1, t.CTL, byte(t.Number), t.StartSector(), msf)...)
		}

		// Multi-session bridging descriptors carry ADR 5.
		if len(sessions) > 1 && si < len(sessions)-1 {
			next := sessions[si+1]
			b0 := rawTocDescriptor(s.Number, 5, s.Tracks[0].CTL, 0xB0, next.Tracks[0].StartSector(), msf)
			b0[9] = byte(len(sessions))
			body = append(body, b0...)
		}
		if si == 0 && len(sessions) > 1 {
			body = append(body, rawTocDescriptor(s.Number, 5, s.Tracks[0].CTL, 0xC0, 0, msf)...)
		}
	}

	header := make([]byte, 4)
	header[2] = 1
	if len(sessions) > 0 {
		header[3] = byte(len(sessions))
	}
	out := append(header, body...)
	putBE16(out[0:2], len(out)-2)
	return truncate(out, allocLen)
}

func cdTextTOC(s *disc.Session, allocLen int) []byte {
	header := make([]byte, 4)
	var body []byte
	if s != nil {
		for _, lang := range sortedLangKeys(s.CDText) {
			for _, pack := range s.CDText[lang] {
				// Data[0] duplicates Type for packs sourced from a raw 18-byte
				// blob (see nrg.applyCDText); skip it so the pack type is
				// never emitted twice.
				body = append(body, pack.Type)
				body = append(body, pack.Data[1:]...)
			}
		}
	}
	out := append(header, body...)
	putBE16(out[0:2], len(out)-2)
	return truncate(out, allocLen)
}

func sortedLangKeys(m map[int][]disc.CDTextPack) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func readTrackInformation(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	addrType := cdb[1] & 0x03
	num := be32(cdb[2:6])

	var t *disc.Track
	switch addrType {
	case 0: // LBA
		_, tt, err := ctx.Disc.GetTrackByAddress(num)
		if err != nil {
			return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		}
		t = tt
	case 1: // track number; 0 and 0xFF address no real track
		if num == 0 || num == 0xFF {
			return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		}
		for _, s := range ctx.Disc.Sessions {
			for _, tt := range s.Tracks {
				if tt.Number == num {
					t = tt
				}
			}
		}
		if t == nil {
			return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		}
	case 2: // session number: report its first track
		for _, s := range ctx.Disc.Sessions {
			if s.Number == num && len(s.Tracks) > 0 {
				t = s.Tracks[0]
			}
		}
		if t == nil {
			return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		}
	default:
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}

	out := make([]byte, 36)
	putBE16(out[0:2], len(out)-2)
	out[2] = byte(t.Number)
	out[3] = byte(t.SessionNumber)
	out[5] = 0x10 | (t.CTL & 0x0F) // track mode: ADR 1 + CTL nibble
	out[6] = dataModeCode(t.Mode)
	putBE32(out[8:12], t.StartSector())
	putBE32(out[24:28], t.Length())
	return truncate(out, be16(cdb[7:9])), nil
}

// dataModeCode is READ TRACK INFORMATION's data-mode field: 1 for Mode 1
// and audio, 2 for Mode 2 in any form, 0x0F otherwise.
func dataModeCode(m disc.TrackMode) byte {
	switch m {
	case disc.TrackModeMode1, disc.TrackModeAudio:
		return 0x01
	case disc.TrackModeMode2Formless, disc.TrackModeMode2Form1, disc.TrackModeMode2Form2, disc.TrackModeMode2Mixed:
		return 0x02
	default:
		return 0x0F
	}
}

func readDiscInformation(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if cdb[1]&0x07 != 0 { // only the standard disc-information type
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}

	out := make([]byte, 34)
	putBE16(out[0:2], len(out)-2)
	out[2] = 0x0E // last session complete, disc complete
	first := ctx.Disc.GetSessionByIndex(0)
	last := ctx.Disc.GetSessionByIndex(-1)
	if first != nil {
		out[3] = byte(first.FirstTrackNumber())
		switch first.Type {
		case disc.SessionCDI:
			out[8] = 0x10
		case disc.SessionCDROMXA:
			out[8] = 0x20
		}
	}
	out[4] = byte(len(ctx.Disc.Sessions))
	if last != nil {
		out[5] = byte(last.FirstTrackNumber())
		out[6] = byte(last.LastTrackNumber())
		if len(last.Tracks) > 0 {
			// Last session lead-in start: the gap before the session's
			// first track.
			leadinStart := last.Tracks[0].StartSector()
			if last.Leadin != nil {
				leadinStart = last.Leadin.StartSector()
			}
			putAddress(out[16:20], leadinStart, true, true)
			lastTrack := last.Tracks[len(last.Tracks)-1]
			putAddress(out[20:24], lastTrack.StartSector()+lastTrack.Length(), true, true)
		}
	}
	return truncate(out, be16(cdb[7:9])), nil
}

func readDVDStructure(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if ctx.Profile != feature.ProfileDVDROM {
		return nil, sense.New(sense.IllegalRequest, sense.CannotReadMediumIncompatFormat)
	}
	layer := int(cdb[6])
	format := int(cdb[7])
	data, ok := ctx.Disc.GetDiscStructure(layer, format)
	if !ok {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	header := make([]byte, 4)
	putBE16(header[0:2], len(header)-2+len(data))
	out := append(header, data...)
	return truncate(out, be16(cdb[8:10])), nil
}

// expectedTypeMatches implements READ CD's Expected Sector Type field
// (cdb[1] bits 2-4): 0 accepts any type, 1-5 require the named family.
// Mode2Mixed tracks (the only representation of mixed-form Mode2 data in
// this model) satisfy either Form1 or Form2 requests, since this
// implementation does not distinguish Form1/Form2 on a per-sector basis
// within one track.
func expectedTypeMatches(code byte, t sector.Type) bool {
	switch code {
	case 0:
		return true
	case 1:
		return t == sector.Audio
	case 2:
		return t == sector.Mode1
	case 3:
		return t == sector.Mode2Formless
	case 4:
		return t == sector.Mode2Form1 || t == sector.Mode2Mixed
	case 5:
		return t == sector.Mode2Form2 || t == sector.Mode2Mixed
	default:
		return true
	}
}

// sectorFamily groups sector types for the expected_type=0 "stop at the
// transition" rule: Audio, Mode1, and everything Mode2-shaped are distinct
// families; Form1/Form2 alternation within one Mode2Mixed track is not a
// family change.
func sectorFamily(t sector.Type) int {
	switch t {
	case sector.Audio:
		return 0
	case sector.Mode1:
		return 1
	default:
		return 2
	}
}

// mcsbSectorBytes assembles one sector's READ CD payload per the MCSB
// (Main Channel Selection Bits) byte9/byte10 request. Combinations the
// sector's type cannot satisfy are rendered as their documented zero-fill
// rather than rejected.
func mcsbSectorBytes(s *sector.Sector, cdb9, cdb10 byte) []byte {
	var out []byte
	if cdb9&0x80 != 0 {
		out = append(out, s.GetChannel(sector.ChanSync)...)
	}
	switch (cdb9 >> 5) & 0x03 {
	case 1:
		out = append(out, s.GetChannel(sector.ChanHeader)...)
	case 2:
		out = append(out, s.GetChannel(sector.ChanSubheader)...)
	case 3:
		out = append(out, s.GetChannel(sector.ChanHeader)...)
		out = append(out, s.GetChannel(sector.ChanSubheader)...)
	}
	if cdb9&0x10 != 0 {
		out = append(out, s.GetChannel(sector.ChanData)...)
	}
	if cdb9&0x08 != 0 {
		out = append(out, s.GetChannel(sector.ChanEDCECC)...)
	}
	switch cdb10 & 0x07 {
	case 1: // raw interleaved P-W
		out = append(out, s.Sub[:]...)
	case 2: // formatted Q, padded to its 16-byte block
		q := sector.ExtractQ(s.Sub)
		out = append(out, q[:]...)
		out = append(out, 0, 0, 0, 0)
	}
	return out
}

// readCDRange implements the shared body of READ CD and READ CD MSF: reject
// DVD media and the R-W subchannel form outright, then walk each sector
// applying the expected-type check, the family-transition stop rule (for
// expected_type=0), and the bad-sector policy before assembling its MCSB
// payload.
func readCDRange(ctx *Context, lba, count int, cdb1, cdb9, cdb10 byte) ([]byte, *sense.Sense) {
	if ctx.Profile == feature.ProfileDVDROM {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if cdb10&0x07 == 0x04 { // R-W subchannel form: not implemented
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	expected := (cdb1 >> 2) & 0x07

	defer beginDelay(ctx, lba, count)()

	var out []byte
	prevFamily := -1
	for i := 0; i < count; i++ {
		s, err := ctx.Disc.GetSector(lba + i)
		if err != nil {
			return nil, sense.New(sense.IllegalRequest, sense.IllegalModeForThisTrack)
		}
		if !expectedTypeMatches(expected, s.Type) {
			return nil, sense.New(sense.IllegalRequest, sense.IllegalModeForThisTrack)
		}
		if expected == 0 {
			fam := sectorFamily(s.Type)
			if prevFamily != -1 && fam != prevFamily {
				return nil, sense.New(sense.IllegalRequest, sense.IllegalModeForThisTrack)
			}
			prevFamily = fam
		}
		if sn := checkBadSector(ctx, s); sn != nil {
			return nil, sn
		}
		out = append(out, mcsbSectorBytes(s, cdb9, cdb10)...)
		ctx.CurrentAddress = lba + i
	}
	return out, nil
}

func readCD(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 12); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	lba := be32(cdb[2:6])
	count := int(cdb[6])<<16 | int(cdb[7])<<8 | int(cdb[8])
	return readCDRange(ctx, lba, count, cdb[1], cdb[9], cdb[10])
}

func readCDMSF(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 12); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	startLBA := sector.MSFToLBA(int(cdb[3]), int(cdb[4]), int(cdb[5]), true)
	endLBA := sector.MSFToLBA(int(cdb[6]), int(cdb[7]), int(cdb[8]), true)
	return readCDRange(ctx, startLBA, endLBA-startLBA, cdb[1], cdb[9], cdb[10])
}
