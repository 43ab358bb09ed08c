// Package sector builds and decodes CD-ROM sectors: sync/header/subheader
// framing, EDC/ECC computation, BCD addressing, and subchannel synthesis.
package sector

import "fmt"

// Type identifies the sector class, which determines the main-channel
// layout and which of EDC/ECC apply.
type Type int

const (
	Audio Type = iota
	Mode1
	Mode2Formless
	Mode2Form1
	Mode2Form2
	Mode2Mixed
)

func (t Type) String() string {
	switch t {
	case Audio:
		return "Audio"
	case Mode1:
		return "Mode1"
	case Mode2Formless:
		return "Mode2Formless"
	case Mode2Form1:
		return "Mode2Form1"
	case Mode2Form2:
		return "Mode2Form2"
	case Mode2Mixed:
		return "Mode2Mixed"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Channel selects which part of a sector's bytes to extract.
type Channel int

const (
	ChanSync Channel = iota
	ChanHeader
	ChanSubheader
	ChanData
	ChanEDCECC
	ChanAll // full 2352-byte main channel
)

const (
	MainSize = 2352
	SubSize  = 96

	syncSize     = 12
	headerSize   = 4
	subheaderSize = 8
	edcEccSize1  = 288 // Mode1 trailer: 4 EDC + 8 zero + 172 P + 104 Q
	edcEccSizeF1 = 280 // Mode2Form1 trailer: 4 EDC + 172 P + 104 Q
)

var syncPattern = [syncSize]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// UserDataSize returns the number of payload bytes a sector of type t carries.
func UserDataSize(t Type) int {
	switch t {
	case Audio:
		return 2352
	case Mode1:
		return 2048
	case Mode2Formless:
		return 2336
	case Mode2Form1:
		return 2048
	case Mode2Form2:
		return 2324
	case Mode2Mixed:
		return 2336 // formless view; Form1/Form2 distinguished by subheader
	default:
		return 0
	}
}

// BuildPayloadSize returns the number of payload bytes BuildSector consumes
// for a sector of type t. For the Mode 2 forms this includes the 8-byte
// subheader, which UserDataSize does not count.
func BuildPayloadSize(t Type) int {
	switch t {
	case Mode2Form1:
		return 2056
	case Mode2Form2:
		return 2332
	default:
		return UserDataSize(t)
	}
}

// Sector holds a fully assembled 2352-byte main channel plus optional
// 96-byte subchannel, along with its address and declared type.
type Sector struct {
	Type    Type
	LBA     int
	Main    [MainSize]byte
	Sub     [SubSize]byte
	HasSub  bool
}

// BuildSector assembles a sector of the given type at lba from payload,
// computing sync, header, subheader (Mode2) and EDC/ECC as applicable.
// payload must be exactly BuildPayloadSize(t) bytes; for the Mode 2 forms
// the first 8 bytes are the subheader.
func BuildSector(t Type, lba int, payload []byte) (*Sector, error) {
	want := BuildPayloadSize(t)
	if len(payload) != want {
		return nil, fmt.Errorf("sector: build %s: want %d payload bytes, got %d", t, want, len(payload))
	}

	s := &Sector{Type: t, LBA: lba}

	switch t {
	case Audio:
		copy(s.Main[:], payload)
		return s, nil

	case Mode2Formless, Mode2Mixed:
		copy(s.Main[:], syncPattern[:])
		m, sc, f := lbaToMSFBCD(lba)
		s.Main[12], s.Main[13], s.Main[14], s.Main[15] = m, sc, f, 0x02
		copy(s.Main[16:24], payload[:8]) // subheader carried at front of payload by convention
		copy(s.Main[24:], payload[8:])
		return s, nil

	case Mode1:
		copy(s.Main[:], syncPattern[:])
		m, sc, f := lbaToMSFBCD(lba)
		s.Main[12], s.Main[13], s.Main[14], s.Main[15] = m, sc, f, 0x01
		copy(s.Main[16:2064], payload)

		edc := computeEDC(s.Main[0:2064])
		copy(s.Main[2064:2068], edc[:])
		for i := range s.Main[2068:2076] {
			s.Main[2068+i] = 0
		}

		// Mode 1 ECC covers the header, so the windows start at byte 12
		// with the real header bytes in place.
		p := pParityLFSR(s.Main[12:2076])
		copy(s.Main[2076:2248], p)
		q := qParityLFSR(s.Main[12:2248])
		copy(s.Main[2248:2352], q)
		return s, nil

	case Mode2Form1:
		copy(s.Main[:], syncPattern[:])
		m, sc, f := lbaToMSFBCD(lba)
		s.Main[12], s.Main[13], s.Main[14], s.Main[15] = m, sc, f, 0x02
		copy(s.Main[16:24], payload[:8])
		copy(s.Main[24:2072], payload[8:])

		edc := computeEDC(s.Main[16:2072])
		copy(s.Main[2072:2076], edc[:])

		pIn := make([]byte, 2064)
		copy(pIn, s.Main[12:2076])
		pIn[0], pIn[1], pIn[2], pIn[3] = 0, 0, 0, 0
		p := pParityLFSR(pIn)
		copy(s.Main[2076:2248], p)

		qIn := make([]byte, 2236)
		copy(qIn, s.Main[12:2248])
		qIn[0], qIn[1], qIn[2], qIn[3] = 0, 0, 0, 0
		q := qParityLFSR(qIn)
		copy(s.Main[2248:2352], q)
		return s, nil

	case Mode2Form2:
		copy(s.Main[:], syncPattern[:])
		m, sc, f := lbaToMSFBCD(lba)
		s.Main[12], s.Main[13], s.Main[14], s.Main[15] = m, sc, f, 0x02
		copy(s.Main[16:24], payload[:8])
		copy(s.Main[24:2348], payload[8:2332])
		edc := computeEDC(s.Main[16:2348])
		copy(s.Main[2348:2352], edc[:])
		return s, nil
	}

	return nil, fmt.Errorf("sector: build: unknown type %s", t)
}

// GetChannel extracts a sub-range of the main or sub channel. Requesting a
// channel the sector's type does not carry returns a deterministic zero-fill
// of the correct length rather than an error.
func (s *Sector) GetChannel(ch Channel) []byte {
	switch ch {
	case ChanSync:
		return zeroOrSlice(s.Type != Audio, s.Main[0:12], 12)
	case ChanHeader:
		return zeroOrSlice(s.Type != Audio, s.Main[12:16], 4)
	case ChanSubheader:
		isMode2 := s.Type == Mode2Formless || s.Type == Mode2Form1 || s.Type == Mode2Form2 || s.Type == Mode2Mixed
		return zeroOrSlice(isMode2, s.Main[16:24], 8)
	case ChanData:
		return dataChannel(s)
	case ChanEDCECC:
		return edcEccChannel(s)
	case ChanAll:
		out := make([]byte, MainSize)
		copy(out, s.Main[:])
		return out
	}
	return nil
}

func zeroOrSlice(have bool, b []byte, n int) []byte {
	out := make([]byte, n)
	if have {
		copy(out, b)
	}
	return out
}

func dataChannel(s *Sector) []byte {
	switch s.Type {
	case Audio:
		out := make([]byte, 2352)
		copy(out, s.Main[:])
		return out
	case Mode1:
		out := make([]byte, 2048)
		copy(out, s.Main[16:2064])
		return out
	case Mode2Formless, Mode2Mixed:
		out := make([]byte, 2336)
		copy(out, s.Main[16:2352])
		return out
	case Mode2Form1:
		out := make([]byte, 2048)
		copy(out, s.Main[24:2072])
		return out
	case Mode2Form2:
		out := make([]byte, 2324)
		copy(out, s.Main[24:2348])
		return out
	}
	return nil
}

func edcEccChannel(s *Sector) []byte {
	switch s.Type {
	case Mode1:
		out := make([]byte, edcEccSize1)
		copy(out, s.Main[2064:2352])
		return out
	case Mode2Form1:
		out := make([]byte, edcEccSizeF1)
		copy(out, s.Main[2072:2352])
		return out
	case Mode2Form2:
		out := make([]byte, 4)
		copy(out, s.Main[2348:2352])
		return out
	default:
		return make([]byte, 0)
	}
}

// VerifyEDC recomputes EDC over the main channel bytes applicable to the
// sector's type and compares it against the stored value. Types without an
// EDC field (Audio, Mode2Formless, Mode2Mixed) always verify true.
func (s *Sector) VerifyEDC() bool {
	switch s.Type {
	case Mode1:
		got := computeEDC(s.Main[0:2064])
		return got == [4]byte(s.Main[2064:2068])
	case Mode2Form1:
		got := computeEDC(s.Main[16:2072])
		return got == [4]byte(s.Main[2072:2076])
	case Mode2Form2:
		got := computeEDC(s.Main[16:2348])
		return got == [4]byte(s.Main[2348:2352])
	default:
		return true
	}
}
