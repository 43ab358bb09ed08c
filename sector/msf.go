package sector

// MSF/LBA and BCD conversions, per the fixed 75 frames/sec, 60 sec/min
// addressing scheme used throughout the Q subchannel and TOC.

const (
	FramesPerSecond = 75
	SecondsPerMin   = 60
	LeadInOffset    = 150
)

// MSFToLBA converts an (m,s,f) triple to an LBA. When withLeadIn is true the
// conversion subtracts the 150-frame lead-in offset, matching the address
// space used by absolute disc addresses.
func MSFToLBA(m, s, f int, withLeadIn bool) int {
	lba := m*SecondsPerMin*FramesPerSecond + s*FramesPerSecond + f
	if withLeadIn {
		lba -= LeadInOffset
	}
	return lba
}

// LBAToMSF is the inverse of MSFToLBA.
func LBAToMSF(lba int, withLeadIn bool) (m, s, f int) {
	if withLeadIn {
		lba += LeadInOffset
	}
	m = lba / (SecondsPerMin * FramesPerSecond)
	rem := lba % (SecondsPerMin * FramesPerSecond)
	s = rem / FramesPerSecond
	f = rem % FramesPerSecond
	return
}

// lbaToMSFBCD renders an absolute (lead-in-relative) address as BCD bytes,
// the form sector headers and Q subchannel MSF fields require.
func lbaToMSFBCD(lba int) (m, s, f byte) {
	mm, ss, ff := LBAToMSF(lba, true)
	return BCD(mm), BCD(ss), BCD(ff)
}

// BCD packs a 0-99 value into one packed-BCD byte.
func BCD(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}

// UnBCD unpacks one packed-BCD byte.
func UnBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}
