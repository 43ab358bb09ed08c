package modepage

// WriteType is recorded by page 0x05's validator hook. Write emulation
// itself is out of scope; the page still accepts and remembers the
// requested write_type so the mode-page contract is fully testable.
type WriteType struct {
	Value byte
}

// RegisterDefaults populates the six mandatory pages with their default,
// current (= default at init) and changeable-mask triples.
func RegisterDefaults(db *DB, wt *WriteType) {
	// 0x01 Read/write error recovery: read_retry=1, DCR bit changeable.
	p01 := []byte{0x01, 0x0A, 0x00, 0x03, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	m01 := make([]byte, len(p01))
	m01[2] = 0x01 // DCR bit (bit 0 of byte 2) changeable
	db.Register(&Page{
		Code:    0x01,
		Current: append([]byte(nil), p01...),
		Default: append([]byte(nil), p01...),
		Mask:    m01,
	})

	// 0x05 Write parameters.
	p05 := make([]byte, 32)
	p05[0], p05[1] = 0x05, 0x1E
	m05 := make([]byte, 32)
	m05[2] = 0x0F // write_type nibble changeable
	db.Register(&Page{
		Code:    0x05,
		Current: append([]byte(nil), p05...),
		Default: append([]byte(nil), p05...),
		Mask:    m05,
		Validator: func(newBytes []byte) error {
			if wt != nil {
				wt.Value = newBytes[2] & 0x0F
			}
			return nil
		},
	})

	// 0x0D CD device parameters: fixed 60 s/min, 75 f/s.
	p0D := make([]byte, 8)
	p0D[0], p0D[1] = 0x0D, 0x06
	p0D[5] = 60 // seconds per minute
	p0D[6], p0D[7] = 0x00, 75
	db.Register(&Page{
		Code:    0x0D,
		Current: append([]byte(nil), p0D...),
		Default: append([]byte(nil), p0D...),
		Mask:    make([]byte, 8),
	})

	// 0x0E Audio control: SOTC and all port volumes changeable.
	p0E := make([]byte, 16)
	p0E[0], p0E[1] = 0x0E, 0x0E
	p0E[8], p0E[10], p0E[12], p0E[14] = 1, 2, 3, 4 // port channel selection
	for i := 9; i <= 15; i += 2 {
		p0E[i] = 0xFF // max volume
	}
	m0E := make([]byte, 16)
	m0E[2] = 0x01 // SOTC bit
	for i := 9; i <= 15; i += 2 {
		m0E[i] = 0xFF
	}
	db.Register(&Page{
		Code:    0x0E,
		Current: append([]byte(nil), p0E...),
		Default: append([]byte(nil), p0E...),
		Mask:    m0E,
	})

	// 0x1A Power condition.
	p1A := make([]byte, 12)
	p1A[0], p1A[1] = 0x1A, 0x0A
	db.Register(&Page{
		Code:    0x1A,
		Current: append([]byte(nil), p1A...),
		Default: append([]byte(nil), p1A...),
		Mask:    make([]byte, 12),
	})

	// 0x2A Capabilities: profile bit flags plus six zeroed write-speed
	// descriptors appended to the current page buffer only.
	base := capabilitiesPage()
	wsp := make([]byte, 6*4)
	cur := append(append([]byte(nil), base...), wsp...)
	cur[1] = byte(len(cur) - 2)
	def := append([]byte(nil), base...)
	mask := make([]byte, len(cur))
	mask[4] = 0xFF // current read speed, changeable via SET CD SPEED
	mask[5] = 0xFF
	db.Register(&Page{
		Code:    0x2A,
		Current: cur,
		Default: def,
		Mask:    mask,
	})
}

// capabilitiesPage builds the fixed portion of page 0x2A: profile
// capability bits plus current speed defaulted to max.
func capabilitiesPage() []byte {
	b := make([]byte, 20)
	b[0], b[1] = 0x2A, 0x12
	b[2] = 0x03 // CD-R read, CD-ROM read
	b[3] = 0x01 // CD-DA supported
	b[4], b[5] = 0xFF, 0xFF // max current read speed placeholder, set by caller
	b[6] = 0x29 // tray loader, eject, lock
	return b
}
