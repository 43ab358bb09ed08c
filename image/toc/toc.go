// Package toc parses the cue-sheet-style .toc text image format: a list of
// ordered regex rules drive a small state machine that populates a
// disc.Disc, plus a CD-TEXT sub-grammar accumulated with partial-match
// block parsing.
package toc

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"cdemu/disc"
	"cdemu/fragment"
	"cdemu/image"
)

// Parser implements image.Parser for the cue-text format.
type Parser struct{}

func (Parser) Name() string { return "toc" }

func init() {
	image.Register(Parser{})
}

// rule is one (pattern, handler) pair in the ordered regex rule table.
type rule struct {
	name    string
	re      *regexp.Regexp
	handler func(st *state, m []string) error
}

var rules []rule

func addRule(name, pattern string, handler func(st *state, m []string) error) {
	rules = append(rules, rule{name: name, re: regexp.MustCompile(pattern), handler: handler})
}

func init() {
	addRule("blank", `^\s*$`, func(st *state, m []string) error { return nil })
	addRule("comment", `^\s*//.*$`, func(st *state, m []string) error { return nil })
	addRule("session", `^\s*(CD_DA|CD_ROM_XA|CD_ROM|CD_I)\b`, handleSessionType)
	addRule("catalog", `^\s*CATALOG\s+"(\d{13})"`, handleCatalog)
	addRule("track", `^\s*TRACK\s+(AUDIO|MODE1_RAW|MODE1|MODE2_FORM_MIX|MODE2_FORM1|MODE2_FORM2|MODE2_RAW|MODE2)(?:\s+(RW_RAW|RW))?`, handleTrack)
	addRule("no_copy", `^\s*NO\s+COPY\s*$`, handleNoCopy)
	addRule("copy", `^\s*COPY\s*$`, handleCopy)
	addRule("no_preemphasis", `^\s*NO\s+PRE_EMPHASIS\s*$`, handleNoPreemphasis)
	addRule("preemphasis", `^\s*PRE_EMPHASIS\s*$`, handlePreemphasis)
	addRule("channels", `^\s*(TWO|FOUR)_CHANNEL_AUDIO\s*$`, handleChannels)
	addRule("isrc", `^\s*ISRC\s+"([A-Z0-9]{5}[0-9]{7})"`, handleISRC)
	addRule("index", `^\s*INDEX\s+(\d+):(\d+):(\d+)`, handleIndex)
	addRule("start", `^\s*START(?:\s+(\d+):(\d+):(\d+))?\s*$`, handleStart)
	addRule("pregap", `^\s*PREGAP\s+(\d+):(\d+):(\d+)`, handlePregap)
	addRule("silence", `^\s*(?:ZERO|SILENCE)\s+(\d+):(\d+):(\d+)`, handleSilence)
	addRule("audiofile", `^\s*(AUDIO)?FILE\s+"([^"]+)"\s*(?:#(\d+))?\s*(?:(\d+):(\d+):(\d+)|(\d+))\s*(?:(\d+):(\d+):(\d+))?\s*$`, handleFile)
	addRule("datafile", `^\s*DATAFILE\s+"([^"]+)"\s*(?:#(\d+))?\s*(?:(\d+):(\d+):(\d+)|(\d+))?\s*$`, handleDatafile)
	addRule("cdtext_open", `^\s*CD_TEXT\s*\{\s*$`, handleCDTextOpen)
}

var (
	reLangMapOpen = regexp.MustCompile(`^\s*LANGUAGE_MAP\s*\{\s*$`)
	reLangOpen    = regexp.MustCompile(`^\s*LANGUAGE\s+(\d+)\s*\{\s*$`)
	reClose       = regexp.MustCompile(`^\s*\}\s*$`)
	reLangMapLine = regexp.MustCompile(`^\s*(\d+)\s*:\s*(\w+)\s*$`)
	reCDTextStr   = regexp.MustCompile(`^\s*(\w+)\s+((?:"[^"]*"\s*)+)$`)
	reQuoted      = regexp.MustCompile(`"([^"]*)"`)
	reCDTextBin   = regexp.MustCompile(`^\s*(\w+)\s*\{([^}]*)\}\s*$`)
)

// cdTextPackTypes maps a TOC field keyword to its Red Book pack type code.
var cdTextPackTypes = map[string]byte{
	"TITLE": 0x80, "PERFORMER": 0x81, "SONGWRITER": 0x82, "COMPOSER": 0x83,
	"ARRANGER": 0x84, "MESSAGE": 0x85, "DISC_ID": 0x86, "GENRE": 0x87,
	"TOC_INFO1": 0x88, "TOC_INFO2": 0x89, "UPC_EAN": 0x8E, "SIZE_INFO": 0x8F,
}

// state carries the parser's working context across lines: only coordinates
// into the disc, no parent back-pointers.
type state struct {
	d          *disc.Disc
	baseDir    string
	sessionNum int

	curSession *disc.Session
	curTrack   *disc.Track
	curMainSize int // main-channel bytes per sector of the current track's files
	pendingPregap int // sectors accumulated via PREGAP in the current track (ZERO/SILENCE do not count)

	fileOffsets map[string]int64              // running byte offset per filename, for shared mixed-mode files
	streams     map[string]*image.FileStream  // one shared FileStream per filename
	curSubFormat fragment.SubFormat
	curSubSize   int

	inCDText   bool
	inLangMap  bool
	cdTextDepth int
	langIdx    int
	langMap    map[int]int
}

func newState(d *disc.Disc) *state {
	return &state{
		d:           d,
		fileOffsets: make(map[string]int64),
		streams:     make(map[string]*image.FileStream),
		langMap:     make(map[int]int),
	}
}

func (st *state) stream(filename string) (*image.FileStream, error) {
	if s, ok := st.streams[filename]; ok {
		return s, nil
	}
	s, err := image.OpenFileStream(resolvePath(st.baseDir, filename))
	if err != nil {
		return nil, err
	}
	st.streams[filename] = s
	return s, nil
}

// Load parses filenames, one session per file, into a fresh disc.Disc.
func (Parser) Load(filenames []string) (*disc.Disc, error) {
	if len(filenames) == 0 {
		return nil, errors.Wrap(image.ErrCannotHandle, "toc: no filenames")
	}
	for _, fn := range filenames {
		ext := strings.ToLower(filepath.Ext(fn))
		if ext != ".toc" && ext != ".cue" {
			return nil, errors.Wrap(image.ErrCannotHandle, "toc: unrecognized extension")
		}
	}

	d := disc.NewDisc()
	st := newState(d)

	for _, fn := range filenames {
		if err := st.loadFile(fn); err != nil {
			return nil, err
		}
	}

	// Red Book: track 1 carries a 150-sector pregap even when the sheet
	// doesn't spell one out.
	if d.Medium == disc.MediumCD && len(d.Sessions) > 0 {
		if s := d.Sessions[0]; len(s.Tracks) > 0 {
			if t := s.Tracks[0]; t.TrackStart == 0 {
				t.Fragments = append([]fragment.Fragment{&fragment.Null{Len: 150}}, t.Fragments...)
				t.TrackStart = 150
			}
		}
	}

	d.Layout()
	return d, nil
}

func (st *state) loadFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(image.ErrCannotHandle, "toc: open %s: %v", filename, err)
	}
	defer f.Close()

	st.baseDir = filepath.Dir(filename)
	st.sessionNum++
	st.curSession = st.d.AddSession(disc.SessionCDROM)
	st.curTrack = nil
	st.pendingPregap = 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := st.processLine(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(image.ErrParse, "toc: read %s: %v", filename, err)
	}
	return nil
}

func (st *state) processLine(line string) error {
	if st.inCDText {
		return st.processCDTextLine(line)
	}
	for _, r := range rules {
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return r.handler(st, m)
	}
	// Unrecognized directives are ignored; no match just means "nothing
	// to do here".
	return nil
}

func handleSessionType(st *state, m []string) error {
	switch m[1] {
	case "CD_DA":
		st.curSession.Type = disc.SessionCDDA
	case "CD_ROM_XA":
		st.curSession.Type = disc.SessionCDROMXA
	case "CD_ROM":
		st.curSession.Type = disc.SessionCDROM
	case "CD_I":
		st.curSession.Type = disc.SessionCDI
	}
	return nil
}

func handleCatalog(st *state, m []string) error {
	st.curSession.MCN = m[1]
	return nil
}

var trackModeTable = map[string]struct {
	mode    disc.TrackMode
	mainSize int
}{
	"AUDIO":          {disc.TrackModeAudio, 2352},
	"MODE1":          {disc.TrackModeMode1, 2048},
	"MODE1_RAW":      {disc.TrackModeMode1, 2352},
	"MODE2":          {disc.TrackModeMode2Formless, 2336},
	"MODE2_FORM1":    {disc.TrackModeMode2Form1, 2048},
	"MODE2_FORM2":    {disc.TrackModeMode2Form2, 2324},
	"MODE2_FORM_MIX": {disc.TrackModeMode2Mixed, 2336},
	"MODE2_RAW":      {disc.TrackModeMode2Mixed, 2352},
}

func handleTrack(st *state, m []string) error {
	entry, ok := trackModeTable[m[1]]
	if !ok {
		return errors.Wrapf(image.ErrParse, "toc: unknown track mode %q", m[1])
	}
	t := st.curSession.AddTrack(entry.mode)
	t.CTL = disc.CTLData
	if entry.mode == disc.TrackModeAudio {
		t.CTL = disc.CTLAudio
	}
	st.curTrack = t
	st.curMainSize = entry.mainSize
	st.pendingPregap = 0

	switch m[2] {
	case "RW_RAW":
		st.curSubFormat, st.curSubSize = fragment.SubPW96Interleaved, 96
	case "RW":
		st.curSubFormat, st.curSubSize = fragment.SubPW96Linear, 96
	default:
		st.curSubFormat, st.curSubSize = fragment.SubNone, 0
	}
	return nil
}

func handleNoCopy(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	st.curTrack.CTL &^= disc.CTLCopyPermit
	return nil
}

func handleCopy(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	st.curTrack.CTL |= disc.CTLCopyPermit
	return nil
}

func handleNoPreemphasis(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	st.curTrack.CTL &^= disc.CTLPreemphasis
	return nil
}

func handlePreemphasis(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	st.curTrack.CTL |= disc.CTLPreemphasis
	return nil
}

func handleChannels(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	if m[1] == "FOUR" {
		st.curTrack.CTL |= disc.CTLFourChannel
	} else {
		st.curTrack.CTL &^= disc.CTLFourChannel
	}
	return nil
}

func handleISRC(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	st.curTrack.ISRC = m[1]
	return nil
}

func msfToSectors(mm, ss, ff string) int {
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	f, _ := strconv.Atoi(ff)
	return m*60*75 + s*75 + f
}

func handleIndex(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	addr := msfToSectors(m[1], m[2], m[3])
	// Indices 0 (pregap) and 1 (track start) are implicit; the first INDEX
	// statement adds index 2.
	num := 2
	if len(st.curTrack.Indices) > 0 {
		num = st.curTrack.Indices[len(st.curTrack.Indices)-1].Number + 1
	}
	st.curTrack.Indices = append(st.curTrack.Indices, disc.TrackIndex{Number: num, RelativeSector: addr})
	return nil
}

func handleStart(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	if m[1] == "" {
		// Bare START: index 1 begins where pregap accumulated so far ends.
		st.curTrack.TrackStart = st.pendingPregap
		return nil
	}
	st.curTrack.TrackStart = msfToSectors(m[1], m[2], m[3])
	return nil
}

func handlePregap(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	n := msfToSectors(m[1], m[2], m[3])
	st.curTrack.AddFragment(&fragment.Null{Len: n})
	st.pendingPregap += n
	st.curTrack.TrackStart = st.pendingPregap
	return nil
}

func handleSilence(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	n := msfToSectors(m[1], m[2], m[3])
	st.curTrack.AddFragment(&fragment.Null{Len: n})
	return nil
}

func handleFile(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	isAudio := m[1] == "AUDIO" || st.curTrack.Mode == disc.TrackModeAudio
	filename := m[2]
	baseOffset := int64(0)
	if m[3] != "" {
		v, _ := strconv.ParseInt(m[3], 10, 64)
		baseOffset = v
	}

	var startByte int64
	switch {
	case m[4] != "": // MSF start
		sectors := msfToSectors(m[4], m[5], m[6])
		startByte = int64(sectors) * 2352
	case m[7] != "": // plain numeric byte offset
		v, _ := strconv.ParseInt(m[7], 10, 64)
		startByte = v
	}

	stream, err := st.stream(filename)
	if err != nil {
		return err
	}
	size, _ := stream.Size()

	mainSize := int64(st.curMainSize)
	if mainSize == 0 {
		mainSize = 2352
	}
	stride := mainSize + int64(st.curSubSize)

	offset := baseOffset + startByte
	if offset == baseOffset {
		offset = st.fileOffsets[filename] + baseOffset
	}

	avail := size - offset
	length := int(avail / stride)
	if m[8] != "" {
		length = msfToSectors(m[8], m[9], m[10])
	}
	if length < 0 {
		length = 0
	}

	if isAudio {
		if strings.HasSuffix(strings.ToLower(filename), ".bin") {
			st.curTrack.AddFragment(&fragment.Binary{
				Stream: stream, MainOffset: offset, MainSize: 2352,
				MainFormat: fragment.FormatAudio,
				SubOffset: offset + 2352, SubSize: st.curSubSize, SubFormat: st.curSubFormat,
				Len: length,
			})
		} else {
			as := fragment.NewAudioStream(resolvePath(st.baseDir, filename), false)
			st.curTrack.AddFragment(&fragment.Audio{Source: as, ByteOffset: offset, Len: length})
		}
	} else {
		st.curTrack.AddFragment(&fragment.Binary{
			Stream: stream, MainOffset: offset, MainSize: int(mainSize),
			MainFormat: fragment.FormatData,
			SubOffset: offset + mainSize, SubSize: st.curSubSize, SubFormat: st.curSubFormat,
			Len: length,
		})
	}

	st.fileOffsets[filename] = offset + int64(length)*stride
	return nil
}

func handleDatafile(st *state, m []string) error {
	if st.curTrack == nil {
		return errors.Wrap(image.ErrParse, "toc: directive outside TRACK")
	}
	filename := m[1]
	baseOffset := int64(0)
	if m[2] != "" {
		v, _ := strconv.ParseInt(m[2], 10, 64)
		baseOffset = v
	}

	stream, err := st.stream(filename)
	if err != nil {
		return err
	}
	size, _ := stream.Size()

	mainSize := int64(st.curMainSize)
	if mainSize == 0 {
		mainSize = 2352
	}
	stride := mainSize + int64(st.curSubSize)

	offset := st.fileOffsets[filename] + baseOffset
	avail := size - offset
	length := int(avail / stride)
	switch {
	case m[3] != "": // MSF length
		length = msfToSectors(m[3], m[4], m[5])
	case m[6] != "" && m[6] != "0": // plain sector count; 0 means rest-of-file
		v, _ := strconv.Atoi(m[6])
		length = v
	}
	if length < 0 {
		length = 0
	}

	st.curTrack.AddFragment(&fragment.Binary{
		Stream: stream, MainOffset: offset, MainSize: int(mainSize),
		MainFormat: fragment.FormatData,
		SubOffset: offset + mainSize, SubSize: st.curSubSize, SubFormat: st.curSubFormat,
		Len: length,
	})
	st.fileOffsets[filename] = offset + int64(length)*stride
	return nil
}

func resolvePath(baseDir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(baseDir, name)
}

// CD-TEXT sub-grammar: partial-match accumulation until the block's
// closing brace.

func handleCDTextOpen(st *state, m []string) error {
	st.inCDText = true
	st.cdTextDepth = 1
	st.langMap = make(map[int]int)
	return nil
}

// processCDTextLine tracks nested LANGUAGE_MAP{}/LANGUAGE n{} blocks with a
// brace-depth counter so a bare "}" closes the innermost open block, not
// necessarily the outer CD_TEXT block.
func (st *state) processCDTextLine(line string) error {
	switch {
	case reLangMapOpen.MatchString(line):
		st.inLangMap = true
		st.cdTextDepth++
		return nil
	case reClose.MatchString(line):
		st.inLangMap = false
		st.cdTextDepth--
		if st.cdTextDepth <= 0 {
			st.inCDText = false
		}
		return nil
	case st.inLangMap:
		if m := reLangMapLine.FindStringSubmatch(line); m != nil {
			idx, _ := strconv.Atoi(m[1])
			st.langMap[idx] = languageCode(m[2])
		}
		return nil
	case reLangOpen.MatchString(line):
		m := reLangOpen.FindStringSubmatch(line)
		st.langIdx, _ = strconv.Atoi(m[1])
		st.cdTextDepth++
		if st.curSession.LanguageMap == nil {
			st.curSession.LanguageMap = map[int]int{}
		}
		for k, v := range st.langMap {
			st.curSession.LanguageMap[k] = v
		}
		return nil
	}
	if m := reCDTextStr.FindStringSubmatch(line); m != nil {
		return st.appendCDTextStrings(m[1], m[2])
	}
	if m := reCDTextBin.FindStringSubmatch(line); m != nil {
		return st.appendCDTextBinary(m[1], m[2])
	}
	return nil
}

// languageCode maps a TOC LANGUAGE_MAP symbolic code (or numeric string) to
// its numeric CD-TEXT language code; EN and bare numbers both pass through.
func languageCode(s string) int {
	if s == "EN" {
		return 9
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return 0
}

// appendCDTextStrings distributes one quoted-string-per-entity field line
// across disc (index 0) then each track of the current session, in order.
func (st *state) appendCDTextStrings(field, quoted string) error {
	typ, ok := cdTextPackTypes[field]
	if !ok {
		return nil
	}
	matches := reQuoted.FindAllStringSubmatch(quoted, -1)
	entities := []*packTarget{{session: st.curSession}}
	for _, t := range st.curSession.Tracks {
		entities = append(entities, &packTarget{track: t})
	}
	for i, m := range matches {
		if i >= len(entities) {
			break
		}
		entities[i].assign(st.langIdx, typ, packsFromString(typ, m[1]))
	}
	return nil
}

func (st *state) appendCDTextBinary(field, hexList string) error {
	typ, ok := cdTextPackTypes[field]
	if !ok {
		return nil
	}
	parts := strings.Split(hexList, ",")
	data := make([]byte, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 0, 8)
		if err != nil {
			continue
		}
		data = append(data, byte(v))
	}
	pack := disc.CDTextPack{Type: typ}
	copy(pack.Data[:], data)
	if st.curSession.CDText == nil {
		st.curSession.CDText = map[int][]disc.CDTextPack{}
	}
	st.curSession.CDText[st.langIdx] = append(st.curSession.CDText[st.langIdx], pack)
	return nil
}

// packTarget is either the session (disc-level, index 0) or one track.
type packTarget struct {
	session *disc.Session
	track   *disc.Track
}

func (p *packTarget) assign(lang int, typ byte, packs []disc.CDTextPack) {
	if p.session != nil {
		if p.session.CDText == nil {
			p.session.CDText = map[int][]disc.CDTextPack{}
		}
		p.session.CDText[lang] = append(p.session.CDText[lang], packs...)
		return
	}
	if p.track.CDText == nil {
		p.track.CDText = map[int][]disc.CDTextPack{}
	}
	p.track.CDText[lang] = append(p.track.CDText[lang], packs...)
}

// packsFromString chunks s (plus a trailing NUL) into 18-byte CD-TEXT packs.
func packsFromString(typ byte, s string) []disc.CDTextPack {
	b := append([]byte(s), 0x00)
	var out []disc.CDTextPack
	for i := 0; i < len(b); i += 18 {
		end := i + 18
		if end > len(b) {
			end = len(b)
		}
		pack := disc.CDTextPack{Type: typ}
		copy(pack.Data[:], b[i:end])
		out = append(out, pack)
	}
	return out
}
