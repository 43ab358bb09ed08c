package mmc

import (
	"cdemu/feature"
	"cdemu/modepage"
	"cdemu/sense"
)

const (
	opModeSelect6           = 0x15
	opModeSense6            = 0x1A
	opModeSelect10          = 0x55
	opModeSense10           = 0x5A
	opGetConfiguration      = 0x46
	opGetEventStatusNotify  = 0x4A
)

func init() {
	register(opModeSelect6, "MODE SELECT(6)", true, modeSelect6)
	register(opModeSense6, "MODE SENSE(6)", true, modeSense6)
	register(opModeSelect10, "MODE SELECT(10)", true, modeSelect10)
	register(opModeSense10, "MODE SENSE(10)", true, modeSense10)
	register(opGetConfiguration, "GET CONFIGURATION", true, getConfiguration)
	register(opGetEventStatusNotify, "GET EVENT/STATUS NOTIFICATION", false, getEventStatus)
}

func modeSenseHeader6(pages []byte) []byte {
	out := make([]byte, 4+len(pages))
	out[0] = byte(len(out) - 1)
	copy(out[4:], pages)
	return out
}

func modeSenseHeader10(pages []byte) []byte {
	out := make([]byte, 8+len(pages))
	putBE16(out[0:2], len(out)-2)
	copy(out[8:], pages)
	return out
}

func selectorFor(pc byte) modepage.Selector {
	switch pc >> 6 {
	case 0:
		return modepage.Current
	case 1:
		return modepage.ChangeableMask
	case 2:
		return modepage.Default
	default:
		return modepage.Current
	}
}

func modeSense6(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 5); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if cdb[2]>>6 == 3 {
		return nil, sense.New(sense.IllegalRequest, sense.SavingParametersNotSupported)
	}
	pageCode := cdb[2] & 0x3F
	sel := selectorFor(cdb[2])
	var pages []byte
	if pageCode == 0x3F {
		pages = ctx.ModePages.AllBytes(sel)
	} else {
		pages = ctx.ModePages.Get(pageCode, sel)
		if pages == nil {
			return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		}
	}
	out := modeSenseHeader6(pages)
	return truncate(out, int(cdb[4])), nil
}

func modeSense10(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if cdb[2]>>6 == 3 {
		return nil, sense.New(sense.IllegalRequest, sense.SavingParametersNotSupported)
	}
	pageCode := cdb[2] & 0x3F
	sel := selectorFor(cdb[2])
	var pages []byte
	if pageCode == 0x3F {
		pages = ctx.ModePages.AllBytes(sel)
	} else {
		pages = ctx.ModePages.Get(pageCode, sel)
		if pages == nil {
			return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		}
	}
	out := modeSenseHeader10(pages)
	return truncate(out, be16(cdb[7:9])), nil
}

// applyModeSelectPages walks a concatenated page list (after the mode
// parameter header the caller has already stripped) applying each page in
// turn via its own declared length byte.
func applyModeSelectPages(ctx *Context, pages []byte) *sense.Sense {
	for len(pages) > 0 {
		if len(pages) < 2 {
			return sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
		}
		code := pages[0] & 0x3F
		declLen := int(pages[1]) + 2
		if declLen > len(pages) {
			return sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
		}
		if err := ctx.ModePages.Modify(code, pages[:declLen]); err != nil {
			return sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
		}
		pages = pages[declLen:]
	}
	return nil
}

func modeSelect6(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if len(dataIn) < 4 {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
	}
	if dataIn[3] != 0 { // block descriptor length
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
	}
	return nil, applyModeSelectPages(ctx, dataIn[4:])
}

func modeSelect10(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if len(dataIn) < 8 {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
	}
	if be16(dataIn[6:8]) != 0 { // block descriptor length
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInParameterList)
	}
	return nil, applyModeSelectPages(ctx, dataIn[8:])
}

// getConfiguration emits the feature header followed by every feature whose
// inclusion condition is satisfied by the requested RT (Request Type) value:
// 0 = all features from the starting feature code on, 1 = only current
// features from that code on, 2 = only the single feature named by the
// starting feature code.
func getConfiguration(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	rt := cdb[1] & 0x03
	startCode := uint16(be16(cdb[2:4]))
	if rt > 2 {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}

	var body []byte
	for _, code := range ctx.Features.Codes() {
		if code < startCode {
			continue
		}
		e := ctx.Features.Get(code)
		if rt == 1 && !e.Current {
			continue
		}
		if rt == 2 && code != startCode {
			continue
		}
		body = append(body, e.Bytes()...)
		if rt == 2 {
			break
		}
	}

	header := make([]byte, 8)
	putBE32(header[0:4], len(header)-4+len(body))
	putBE16(header[6:8], int(currentProfileNumber(ctx)))
	out := append(header, body...)
	return truncate(out, be16(cdb[7:9])), nil
}

func currentProfileNumber(ctx *Context) uint16 {
	switch ctx.Profile {
	case feature.ProfileNone:
		return 0x0000
	case feature.ProfileCDR:
		return feature.ProfileNumberCDR
	case feature.ProfileDVDROM:
		return feature.ProfileNumberDVDROM
	default:
		return feature.ProfileNumberCDROM
	}
}

// getEventStatus reports the latched media event. Only the polled form is
// supported, and only the media event class is advertised; reading the
// event resets the latch to NoChange.
func getEventStatus(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if cdb[1]&0x01 == 0 { // IMMED clear: caller wants the asynchronous form
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}

	if cdb[4]&0x10 == 0 {
		// Media class not requested: report "no event available" with the
		// supported-class bitmask.
		out := make([]byte, 4)
		putBE16(out[0:2], 2)
		out[2] = 0x80 // NEA
		out[3] = 0x10 // supported event classes: media
		return truncate(out, be16(cdb[7:9])), nil
	}

	out := make([]byte, 8)
	putBE16(out[0:2], 6)
	out[2] = 0x04 // notification class: media
	out[3] = 0x10 // supported event classes: media
	if ctx.EventPending {
		out[4] = ctx.EventCode
		ctx.EventPending = false
		ctx.EventCode = EventNoChange
	}
	if ctx.Disc != nil {
		out[5] = 0x02 // media present
	}
	return truncate(out, be16(cdb[7:9])), nil
}
