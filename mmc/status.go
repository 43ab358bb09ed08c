package mmc

import "cdemu/sense"

const (
	opTestUnitReady     = 0x00
	opRequestSense      = 0x03
	opInquiry           = 0x12
	opStartStopUnit     = 0x1B
	opPreventAllow      = 0x1E
	opSetCDSpeed        = 0xBB
)

func init() {
	register(opTestUnitReady, "TEST UNIT READY", false, testUnitReady)
	register(opRequestSense, "REQUEST SENSE", false, requestSense)
	register(opInquiry, "INQUIRY", false, inquiry)
	register(opStartStopUnit, "START STOP UNIT", true, startStopUnit)
	register(opPreventAllow, "PREVENT ALLOW MEDIUM REMOVAL", true, preventAllow)
	register(opSetCDSpeed, "SET CD SPEED", true, setCDSpeed)
}

// testUnitReady reports NotReady/MediumNotPresent with no disc loaded;
// otherwise, the first poll after a NewMedia event reports one
// UnitAttention/NotReadyToReadyChange and resets the latch, after which
// subsequent polls succeed.
func testUnitReady(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if ctx.UnitAttentionPending {
		ctx.UnitAttentionPending = false
		return nil, sense.New(sense.UnitAttention, sense.NotReadyToReadyChange)
	}
	return nil, nil
}

// requestSense returns a synthetic "no sense" payload with ASCQ set to the
// current audio status byte, matching the MMC-3 audio status reporting
// contract for this command: it does not echo the previous command's
// failure, since CheckCondition responses carry their own sense inline.
func requestSense(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	var audioStatus byte
	if ctx.Audio != nil {
		audioStatus = byte(ctx.Audio.Status())
	}
	s := sense.New(sense.NoSense, sense.ASCASCQ{ASC: 0x00, ASCQ: audioStatus})
	b := s.Bytes()
	allocLen := 18
	if err := cdbLen(cdb, 5); err == nil {
		allocLen = int(cdb[4])
	}
	return truncate(b[:], allocLen), nil
}

// inquiry returns a fixed standard INQUIRY payload identifying a CD-ROM
// peripheral device with a removable medium. The structure carries a
// version-descriptor table (offset 58: 0x02A0, MMC-3) beyond the 36 bytes
// its own additional-length field reports — a legacy ATAPI quirk real
// drives exhibit, preserved here so a host requesting a longer allocation
// length still observes the descriptor.
func inquiry(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 5); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if cdb[1]&0x01 != 0 { // EVPD — not supported, no vital product pages registered
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	id := ctx.DeviceID
	if id == (DeviceID{}) {
		id = DefaultDeviceID()
	}
	out := make([]byte, 74)
	out[0] = 0x05 // peripheral device type: CD-ROM
	out[1] = 0x80 // removable
	out[2] = 0x00
	out[3] = 0x02 // response data format
	out[4] = 31   // additional length: the 36-byte standard-data convention
	copy(out[8:16], padField(id.Vendor, 8))
	copy(out[16:32], padField(id.Product, 16))
	copy(out[32:36], padField(id.Revision, 4))
	copy(out[36:56], padField(id.VendorSpecific, 20))
	out[58], out[59] = 0x02, 0xA0 // version descriptor: MMC-3
	return truncate(out, int(cdb[4])), nil
}

func startStopUnit(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 5); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	loEj := cdb[4]&0x02 != 0
	start := cdb[4]&0x01 != 0
	if loEj && !start {
		if ctx.Locked {
			return nil, sense.New(sense.NotReady, sense.MediumRemovalPrevented)
		}
		if ctx.Unloader != nil {
			if err := ctx.Unloader(); err != nil {
				return nil, sense.New(sense.NotReady, sense.MediumRemovalPrevented)
			}
			ctx.Disc = nil
		}
	}
	// Spin up/down is not simulated; everything else succeeds as a no-op.
	return nil, nil
}

func preventAllow(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 5); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	ctx.Locked = cdb[4]&0x01 != 0
	// Mirror the lock into page 0x2A's lock-state bit.
	if cur := ctx.ModePages.Get(0x2A, 0); len(cur) > 6 {
		if ctx.Locked {
			cur[6] |= 0x02
		} else {
			cur[6] &^= 0x02
		}
	}
	return nil, nil
}

func setCDSpeed(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 6); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	wanted := be16(cdb[2:4])
	if wanted == 0xFFFF || wanted == 0 {
		ctx.CurrentSpeedKB = ctx.MaxSpeedKB
	} else if wanted > ctx.MaxSpeedKB {
		ctx.CurrentSpeedKB = ctx.MaxSpeedKB
	} else {
		ctx.CurrentSpeedKB = wanted
	}
	cur := ctx.ModePages.Get(0x2A, 0)
	if len(cur) >= 6 {
		putBE16(cur[4:6], ctx.CurrentSpeedKB)
	}
	return nil, nil
}
