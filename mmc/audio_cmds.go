package mmc

import (
	"cdemu/feature"
	"cdemu/sector"
	"cdemu/sense"
)

const (
	opPlayAudio10  = 0x45
	opPlayAudioMSF = 0x47
	opPauseResume  = 0x4B
	opReportKey    = 0xA4
	opPlayAudio12  = 0xA5
)

func init() {
	register(opPlayAudio10, "PLAY AUDIO(10)", true, playAudio10)
	register(opPlayAudioMSF, "PLAY AUDIO MSF", true, playAudioMSF)
	register(opPauseResume, "PAUSE/RESUME", false, pauseResume)
	register(opReportKey, "REPORT KEY", true, reportKey)
	register(opPlayAudio12, "PLAY AUDIO(12)", true, playAudio12)
}

func startPlayback(ctx *Context, start, length int) *sense.Sense {
	if length <= 0 {
		return nil
	}
	if _, _, err := ctx.Disc.GetTrackByAddress(start); err != nil {
		return sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	if err := ctx.Audio.Start(start, start+length); err != nil {
		return sense.New(sense.IllegalRequest, sense.CommandSequenceError)
	}
	return nil
}

func playAudio10(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	start := be32(cdb[2:6])
	length := be16(cdb[7:9])
	return nil, startPlayback(ctx, start, length)
}

func playAudio12(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 12); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	start := be32(cdb[2:6])
	length := be32(cdb[6:10])
	return nil, startPlayback(ctx, start, length)
}

func playAudioMSF(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if sn := requireDisc(ctx); sn != nil {
		return nil, sn
	}
	if err := cdbLen(cdb, 10); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	start := sector.MSFToLBA(int(cdb[3]), int(cdb[4]), int(cdb[5]), true)
	end := sector.MSFToLBA(int(cdb[6]), int(cdb[7]), int(cdb[8]), true)
	return nil, startPlayback(ctx, start, end-start)
}

func pauseResume(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 9); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	resume := cdb[8]&0x01 != 0
	var err error
	if resume {
		err = ctx.Audio.Resume()
	} else {
		err = ctx.Audio.Pause()
	}
	if err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.CommandSequenceError)
	}
	return nil, nil
}

// reportKey implements only key format 0x08 (RPC state): a fixed response
// reporting region-free, scheme 1 (CSS/CPPM). Any other format fails
// CannotReadMediumIncompatibleFormat on non-DVD media (there is no
// content-protection scheme to report on) or InvalidFieldInCDB on DVD media
// (format not implemented here).
func reportKey(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if err := cdbLen(cdb, 12); err != nil {
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	keyFormat := cdb[10] & 0x3F
	if keyFormat != 0x08 {
		if ctx.Profile != feature.ProfileDVDROM {
			return nil, sense.New(sense.IllegalRequest, sense.CannotReadMediumIncompatFormat)
		}
		return nil, sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
	}
	out := make([]byte, 8)
	putBE16(out[0:2], len(out)-2)
	out[4] = 0<<6 | 4<<3 | 5 // no region setting, 4 vendor resets, 5 user changes
	out[5] = 0xFF            // region mask: all regions allowed
	out[6] = 1               // RPC scheme
	return truncate(out, be16(cdb[8:10])), nil
}
