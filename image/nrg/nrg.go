// Package nrg parses the Nero binary-trailer image format: a fixed tag at
// end-of-file points at a TLV block index describing one or more sessions'
// cue points, track-at-once entries, disc-at-once records, CD-TEXT, and
// medium type.
package nrg

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"cdemu/disc"
	"cdemu/fragment"
	"cdemu/image"
	"cdemu/sector"
	"cdemu/storage"
)

// Parser implements image.Parser for the .nrg binary-trailer format.
type Parser struct{}

func (Parser) Name() string { return "nrg" }

func init() {
	image.Register(Parser{})
}

// blockSpec gives the (headerSize, entrySize) split used to decode a
// block's payload into a fixed header plus an array of fixed-size
// records; blocks not listed here (CDTX, SINF, MTYP, END!) are passed
// through as a single raw payload.
var blockSpec = map[string][2]int{
	"CUEX": {0, 8},
	"CUES": {0, 8},
	"ETN2": {0, 32},
	"ETNF": {0, 20},
	"DAOX": {22, 42},
	"DAOI": {22, 30},
}

// block is one decoded TLV entry from the trailer.
type block struct {
	id      string
	header  []byte
	entries [][]byte
	raw     []byte // for header/entry-size-0 blocks
}

func (Parser) Load(filenames []string) (*disc.Disc, error) {
	if len(filenames) == 0 {
		return nil, errors.Wrap(image.ErrCannotHandle, "nrg: no filenames")
	}
	if len(filenames) > 1 {
		return nil, errors.Wrap(image.ErrCannotHandle, "nrg: single-file format only")
	}
	filename := filenames[0]
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".nrg" {
		return nil, errors.Wrap(image.ErrCannotHandle, "nrg: unrecognized extension")
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(image.ErrCannotHandle, "nrg: open %s: %v", filename, err)
	}
	defer f.Close()

	r := storage.NewReader(f)
	size, err := r.Len()
	if err != nil {
		return nil, errors.Wrap(image.ErrCannotHandle, "nrg: seek end")
	}

	trailerOffset, err := readTrailerOffset(r, size)
	if err != nil {
		return nil, err
	}

	blocks, err := readBlocks(r, trailerOffset, size)
	if err != nil {
		return nil, err
	}

	stream, err := image.OpenFileStream(filename)
	if err != nil {
		return nil, err
	}

	d := disc.NewDisc()
	applyMediumType(d, blocks)

	cueID, daoID, etnID := pickFamily(blocks)
	cues := blocksOf(blocks, cueID)
	daos := blocksOf(blocks, daoID)
	etns := blocksOf(blocks, etnID)

	sessionCount := maxLen(len(cues), len(daos), len(etns))
	if sessionCount == 0 {
		return nil, errors.Wrap(image.ErrParse, "nrg: no CUE/DAO/ETN blocks found")
	}

	type pendingCue struct {
		s *disc.Session
		b *block
	}
	var cuesToApply []pendingCue

	for i := 0; i < sessionCount; i++ {
		s := d.AddSession(disc.SessionCDROM)
		var dao *block
		if i < len(daos) {
			dao = daos[i]
		}
		var etn *block
		if i < len(etns) {
			etn = etns[i]
		}
		var cue *block
		if i < len(cues) {
			cue = cues[i]
		}

		switch {
		case dao != nil:
			if err := buildFromDAO(s, dao, daoID, stream); err != nil {
				return nil, err
			}
		case etn != nil:
			if err := buildFromETN(s, etn, etnID, stream); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Wrap(image.ErrParse, "nrg: session has no DAO or ETN block")
		}

		if cue != nil {
			cuesToApply = append(cuesToApply, pendingCue{s, cue})
		}
	}

	applyCDText(d, blocks)
	applyDPM(d, blocks)

	// Index placement needs the absolute track addresses the layout pass
	// assigns, so CUE blocks are applied last.
	d.Layout()
	for _, pc := range cuesToApply {
		applyCueIndices(pc.s, pc.b, cueID)
	}
	return d, nil
}

func readTrailerOffset(r *storage.Reader, size int64) (int64, error) {
	if size < 12 {
		return 0, errors.Wrap(image.ErrCannotHandle, "nrg: file too small")
	}

	if _, err := r.Seek(size-12, io.SeekStart); err != nil {
		return 0, errors.Wrap(image.ErrCannotHandle, "nrg: seek NER5 tag")
	}
	tag, err := r.ReadBytes(4)
	if err != nil {
		return 0, errors.Wrap(image.ErrCannotHandle, "nrg: read NER5 tag")
	}
	if string(tag) == "NER5" {
		off, err := r.ReadQuadBE()
		if err != nil {
			return 0, errors.Wrap(image.ErrCannotHandle, "nrg: read NER5 offset")
		}
		return int64(off), nil
	}

	// The second half of the NER5 window holds the old tag: NERO at
	// EOF-8, its 32-bit offset at EOF-4.
	tag, err = r.ReadBytes(4)
	if err != nil {
		return 0, errors.Wrap(image.ErrCannotHandle, "nrg: read NERO tag")
	}
	if string(tag) == "NERO" {
		off, err := r.ReadLongBE()
		if err != nil {
			return 0, errors.Wrap(image.ErrCannotHandle, "nrg: read NERO offset")
		}
		return int64(off), nil
	}

	return 0, errors.Wrap(image.ErrCannotHandle, "nrg: no NERO/NER5 tag found")
}

func readBlocks(r *storage.Reader, pos, size int64) ([]*block, error) {
	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		return nil, errors.Wrap(image.ErrParse, "nrg: seek trailer")
	}

	var blocks []*block
	for pos+8 <= size {
		hdr, err := r.ReadBytes(8)
		if err != nil {
			return nil, errors.Wrap(image.ErrParse, "nrg: read block header")
		}
		id := string(hdr[0:4])
		length := binary.BigEndian.Uint32(hdr[4:8])
		pos += 8

		var payload []byte
		if length > 0 {
			payload, err = r.ReadBytes(int(length))
			if err != nil {
				return nil, errors.Wrapf(image.ErrParse, "nrg: read block %s payload: %v", id, err)
			}
		} else {
			payload = []byte{}
		}
		pos += int64(length)

		b := &block{id: id}
		if spec, ok := blockSpec[id]; ok {
			hSize, eSize := spec[0], spec[1]
			if hSize <= len(payload) {
				b.header = payload[:hSize]
			}
			if eSize > 0 {
				for off := hSize; off+eSize <= len(payload); off += eSize {
					b.entries = append(b.entries, payload[off:off+eSize])
				}
			}
		} else {
			b.raw = payload
		}
		blocks = append(blocks, b)

		if id == "END!" {
			break
		}
	}
	return blocks, nil
}

func blocksOf(blocks []*block, id string) []*block {
	var out []*block
	for _, b := range blocks {
		if b.id == id {
			out = append(out, b)
		}
	}
	return out
}

func findBlock(blocks []*block, id string) *block {
	for _, b := range blocks {
		if b.id == id {
			return b
		}
	}
	return nil
}

func maxLen(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// pickFamily prefers the new (64-bit-offset) block IDs over the old ones,
// matching the source's CUEX-before-CUES / DAOX-before-DAOI / ETN2-before-ETNF
// lookup order.
func pickFamily(blocks []*block) (cueID, daoID, etnID string) {
	cueID = "CUES"
	if len(blocksOf(blocks, "CUEX")) > 0 {
		cueID = "CUEX"
	}
	daoID = "DAOI"
	if len(blocksOf(blocks, "DAOX")) > 0 {
		daoID = "DAOX"
	}
	etnID = "ETNF"
	if len(blocksOf(blocks, "ETN2")) > 0 {
		etnID = "ETN2"
	}
	return
}

func applyMediumType(d *disc.Disc, blocks []*block) {
	b := findBlock(blocks, "MTYP")
	if b == nil || len(b.raw) < 4 {
		return
	}
	mask := binary.BigEndian.Uint32(b.raw[0:4])
	switch {
	case mask&0x00000F00 != 0: // DVD family bits
		d.Medium = disc.MediumDVD
	case mask&0x000F0000 != 0: // BD family bits
		d.Medium = disc.MediumBD
	case mask&0x00F00000 != 0: // HD-DVD family bits
		d.Medium = disc.MediumHD
	default:
		d.Medium = disc.MediumCD
	}
}

func applyCDText(d *disc.Disc, blocks []*block) {
	b := findBlock(blocks, "CDTX")
	if b == nil || len(b.raw) == 0 || len(d.Sessions) == 0 {
		return
	}
	// Raw packs are passed through verbatim, 18 bytes per pack, type byte
	// in the first byte of each pack per the Red Book layout.
	s := d.GetSessionByIndex(0)
	if s == nil {
		return
	}
	if s.CDText == nil {
		s.CDText = map[int][]disc.CDTextPack{}
	}
	for off := 0; off+18 <= len(b.raw); off += 18 {
		var pack disc.CDTextPack
		pack.Type = b.raw[off]
		copy(pack.Data[:], b.raw[off:off+18])
		s.CDText[0] = append(s.CDText[0], pack)
	}
}

// applyDPM decodes a "DPM " block into the disc's timing curve. The block
// payload is a 16-byte header (block number, start sector, resolution,
// entry count, all big-endian u32) followed by one u32 density value per
// interval; the head angle is accumulated by integrating resolution/density
// across intervals.
func applyDPM(d *disc.Disc, blocks []*block) {
	b := findBlock(blocks, "DPM ")
	if b == nil || len(b.raw) < 16 {
		return
	}
	start := int(binary.BigEndian.Uint32(b.raw[4:8]))
	resolution := int(binary.BigEndian.Uint32(b.raw[8:12]))
	numEntries := int(binary.BigEndian.Uint32(b.raw[12:16]))
	if resolution <= 0 || numEntries <= 0 || len(b.raw) < 16+4*numEntries {
		return
	}

	samples := make(map[int]disc.DPMSample, numEntries)
	angle := 0.0
	for i := 0; i < numEntries; i++ {
		density := float64(binary.BigEndian.Uint32(b.raw[16+4*i : 20+4*i]))
		if density <= 0 {
			continue
		}
		samples[start+i*resolution] = disc.DPMSample{AngleTurns: angle, DensitySectors: density}
		angle += float64(resolution) / density
	}
	if len(samples) > 0 {
		d.DPM = &disc.DPMCurve{Samples: samples}
	}
}

// daoTrackRecord decodes one DAOX/DAOI per-track record: ISRC(12) +
// mode_code(1) + reserved(1) + sector_size BE u16(2) + pregap/start/end
// offsets (u64 BE for DAOX, u32 BE for DAOI) + 2 reserved trailing bytes.
type daoTrackRecord struct {
	ISRC       string
	ModeCode   byte
	SectorSize int
	Pregap     int64
	Start      int64
	End        int64
}

func decodeDAOEntry(e []byte, wide bool) daoTrackRecord {
	var r daoTrackRecord
	r.ISRC = strings.TrimRight(string(e[0:12]), "\x00")
	r.ModeCode = e[12]
	r.SectorSize = int(binary.BigEndian.Uint16(e[14:16]))
	if wide {
		r.Pregap = int64(binary.BigEndian.Uint64(e[16:24]))
		r.Start = int64(binary.BigEndian.Uint64(e[24:32]))
		r.End = int64(binary.BigEndian.Uint64(e[32:40]))
	} else {
		r.Pregap = int64(binary.BigEndian.Uint32(e[16:20]))
		r.Start = int64(binary.BigEndian.Uint32(e[20:24]))
		r.End = int64(binary.BigEndian.Uint32(e[24:28]))
	}
	return r
}

func buildFromDAO(s *disc.Session, b *block, daoID string, stream *image.FileStream) error {
	if len(b.header) >= 13 {
		s.MCN = strings.TrimRight(string(b.header[0:13]), "\x00")
	}
	wide := daoID == "DAOX"
	for _, e := range b.entries {
		if len(e) < 28 {
			continue
		}
		rec := decodeDAOEntry(e, wide)
		entry, ok := image.ModeCodeTable[rec.ModeCode]
		if !ok {
			return errors.Wrapf(image.ErrParse, "nrg: unknown DAO mode code 0x%02X", rec.ModeCode)
		}
		mainSize := entry.Main
		subSize := entry.Sub
		if rec.SectorSize > 0 && rec.SectorSize != mainSize+subSize {
			mainSize = rec.SectorSize - subSize
		}
		stride := int64(mainSize + subSize)

		t := s.AddTrack(trackModeFromEntry(entry))
		t.ISRC = rec.ISRC
		t.CTL = ctlFor(entry.Mode)

		length := int((rec.End - rec.Pregap) / stride)
		t.AddFragment(&fragment.Binary{
			Stream: stream, MainOffset: rec.Pregap, MainSize: mainSize,
			MainFormat: mainFormatFor(entry.Mode),
			SubOffset:  rec.Pregap + int64(mainSize), SubSize: subSize, SubFormat: subFormatFor(subSize),
			Len: length,
		})
		t.TrackStart = int((rec.Start - rec.Pregap) / stride)
	}
	return nil
}

// etnEntry decodes one ETN2/ETNF track-at-once entry: offset + size + mode
// + start sector, using u64 fields for ETN2 and u32 for ETNF.
type etnEntry struct {
	Offset      int64
	Size        int64
	Mode        uint32
	StartSector uint32
}

func decodeETNEntry(e []byte, wide bool) etnEntry {
	var v etnEntry
	if wide {
		v.Offset = int64(binary.BigEndian.Uint64(e[0:8]))
		v.Size = int64(binary.BigEndian.Uint64(e[8:16]))
		v.Mode = binary.BigEndian.Uint32(e[16:20])
		v.StartSector = binary.BigEndian.Uint32(e[20:24])
	} else {
		v.Offset = int64(binary.BigEndian.Uint32(e[0:4]))
		v.Size = int64(binary.BigEndian.Uint32(e[4:8]))
		v.Mode = binary.BigEndian.Uint32(e[8:12])
		v.StartSector = binary.BigEndian.Uint32(e[12:16])
	}
	return v
}

func buildFromETN(s *disc.Session, b *block, etnID string, stream *image.FileStream) error {
	wide := etnID == "ETN2"
	var running int64
	for _, e := range b.entries {
		v := decodeETNEntry(e, wide)
		entry, ok := image.ModeCodeTable[byte(v.Mode)]
		if !ok {
			entry = image.ModeCodeTable[0x02] // default to Mode1 cooked, matching the source's fallback
		}
		stride := int64(entry.Main + entry.Sub)

		offset := v.Offset
		if offset == 0 && running != 0 {
			offset = running
		}
		length := int(v.Size / stride)

		t := s.AddTrack(trackModeFromEntry(entry))
		t.CTL = ctlFor(entry.Mode)
		t.AddFragment(&fragment.Binary{
			Stream: stream, MainOffset: offset, MainSize: entry.Main,
			MainFormat: mainFormatFor(entry.Mode),
			SubOffset:  offset + int64(entry.Main), SubSize: entry.Sub, SubFormat: subFormatFor(entry.Sub),
			Len: length,
		})
		running = offset + int64(length)*stride
	}
	return nil
}

// applyCueIndices walks a CUEX/CUES block's Q-point entries, adding a
// TrackIndex to the matching track for each index>1 entry; adr/ctl and
// track/index numbers are carried in byte 0-2, the address in bytes 4-7
// (BE LBA for CUEX, BCD MSF for CUES).
func applyCueIndices(s *disc.Session, b *block, cueID string) {
	wide := cueID == "CUEX"
	for _, e := range b.entries {
		if len(e) < 8 {
			continue
		}
		trackNum := int(e[1])
		indexNum := int(e[2])
		if trackNum == 0 || trackNum == 0xAA {
			continue // lead-in/lead-out pseudo-entries
		}
		var addr int
		if wide {
			addr = int(binary.BigEndian.Uint32(e[4:8]))
		} else {
			// Old-format entries carry a BCD MSF address.
			addr = sector.MSFToLBA(sector.UnBCD(e[4]), sector.UnBCD(e[5]), sector.UnBCD(e[6]), true)
		}
		var t *disc.Track
		for _, tr := range s.Tracks {
			if tr.Number == trackNum {
				t = tr
				break
			}
		}
		if t == nil || indexNum < 2 {
			continue
		}
		t.Indices = append(t.Indices, disc.TrackIndex{Number: indexNum, RelativeSector: addr - t.StartSector() - t.TrackStart})
	}
}

func trackModeFromEntry(e image.ModeCodeEntry) disc.TrackMode { return e.Mode }

func ctlFor(m disc.TrackMode) byte {
	if m == disc.TrackModeAudio {
		return disc.CTLAudio
	}
	return disc.CTLData
}

func mainFormatFor(m disc.TrackMode) fragment.MainFormat {
	if m == disc.TrackModeAudio {
		return fragment.FormatAudio
	}
	return fragment.FormatData
}

func subFormatFor(subSize int) fragment.SubFormat {
	if subSize == 0 {
		return fragment.SubNone
	}
	return fragment.SubPW96Interleaved
}
