package mmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdemu/audio"
	"cdemu/disc"
	"cdemu/feature"
	"cdemu/fragment"
	"cdemu/modepage"
	"cdemu/sector"
	"cdemu/sense"
)

func buildTestContext(t *testing.T) *Context {
	t.Helper()
	d := disc.NewDisc()
	s := d.AddSession(disc.SessionCDROM)
	tr := s.AddTrack(disc.TrackModeMode1)
	tr.CTL = disc.CTLData
	tr.AddFragment(&fragment.Null{Len: 300})
	d.Layout()

	mp := modepage.NewDB()
	modepage.RegisterDefaults(mp, &modepage.WriteType{})
	fd := feature.NewDB()
	feature.RegisterDefaults(fd)
	fd.SetCurrentFeatures(feature.ProfileCDROM)

	return &Context{
		Disc:           d,
		ModePages:      mp,
		Features:       fd,
		Audio:          audio.NewEngine(),
		WriteType:      &modepage.WriteType{},
		Profile:        feature.ProfileCDROM,
		MaxSpeedKB:     5650,
		CurrentSpeedKB: 5650,
	}
}

func TestDispatchUnknownOpcodeFails(t *testing.T) {
	ctx := buildTestContext(t)
	_, sn := Dispatch(ctx, []byte{0xFF}, nil)
	require.NotNil(t, sn)
	assert.Equal(t, sense.IllegalRequest, sn.Key)
	assert.Equal(t, sense.InvalidCommandOperationCode, sn.Code)
}

func TestDispatchEmptyCDBFails(t *testing.T) {
	ctx := buildTestContext(t)
	_, sn := Dispatch(ctx, nil, nil)
	require.NotNil(t, sn)
}

func TestTestUnitReadyRequiresDisc(t *testing.T) {
	ctx := buildTestContext(t)
	ctx.Disc = nil
	_, sn := Dispatch(ctx, []byte{opTestUnitReady, 0, 0, 0, 0, 0}, nil)
	require.NotNil(t, sn)
	assert.Equal(t, sense.NotReady, sn.Key)
}

func TestRead10ReturnsCookedUserData(t *testing.T) {
	ctx := buildTestContext(t)
	cdb := make([]byte, 10)
	cdb[0] = opRead10
	putBE32(cdb[2:6], ctx.Disc.Sessions[0].Tracks[0].StartSector())
	putBE16(cdb[7:9], 2)

	data, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	assert.Equal(t, 2*2048, len(data))
}

func TestModeSense6AllPagesMatchesDBConcatenation(t *testing.T) {
	ctx := buildTestContext(t)
	cdb := []byte{opModeSense6, 0, 0x3F, 0, 0xFF, 0}
	data, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	assert.Equal(t, ctx.ModePages.AllBytes(modepage.Current), data[4:])
}

func TestModeSelect6AppliesWithinMask(t *testing.T) {
	ctx := buildTestContext(t)
	page := append([]byte(nil), ctx.ModePages.Get(0x01, modepage.Current)...)
	page[2] ^= 0x01 // DCR bit, changeable

	dataIn := append([]byte{0, 0, 0, 0}, page...)
	cdb := []byte{opModeSelect6, 0x10, 0, 0, byte(len(dataIn)), 0}

	_, sn := Dispatch(ctx, cdb, dataIn)
	require.Nil(t, sn)
	assert.Equal(t, page, ctx.ModePages.Get(0x01, modepage.Current))
}

func TestGetConfigurationCurrentProfileIsReported(t *testing.T) {
	ctx := buildTestContext(t)
	cdb := make([]byte, 10)
	cdb[0] = opGetConfiguration
	putBE16(cdb[7:9], 200)

	data, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	require.GreaterOrEqual(t, len(data), 8)
	assert.Equal(t, feature.ProfileNumberCDROM, uint16(be16(data[6:8])))
}

func TestPlayAudioThenPauseResumeRoundTrips(t *testing.T) {
	ctx := buildTestContext(t)
	start := ctx.Disc.Sessions[0].Tracks[0].StartSector()

	playCDB := make([]byte, 10)
	playCDB[0] = opPlayAudio10
	putBE32(playCDB[2:6], start)
	putBE16(playCDB[7:9], 10)
	_, sn := Dispatch(ctx, playCDB, nil)
	require.Nil(t, sn)
	assert.Equal(t, audio.Playing, ctx.Audio.Status())

	pauseCDB := make([]byte, 9)
	pauseCDB[0] = opPauseResume
	_, sn = Dispatch(ctx, pauseCDB, nil)
	require.Nil(t, sn)
	assert.Equal(t, audio.Paused, ctx.Audio.Status())

	pauseCDB[8] = 0x01 // Resume bit
	_, sn = Dispatch(ctx, pauseCDB, nil)
	require.Nil(t, sn)
	assert.Equal(t, audio.Playing, ctx.Audio.Status())
}

func TestSeekDisturbsActiveAudioPlayback(t *testing.T) {
	ctx := buildTestContext(t)
	start := ctx.Disc.Sessions[0].Tracks[0].StartSector()
	require.NoError(t, ctx.Audio.Start(start, start+50))

	cdb := make([]byte, 10)
	cdb[0] = opSeek10
	putBE32(cdb[2:6], start)
	_, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	assert.Equal(t, audio.Stopped, ctx.Audio.Status())
}

func TestInquiryStandardData(t *testing.T) {
	ctx := buildTestContext(t)
	data, sn := Dispatch(ctx, []byte{opInquiry, 0, 0, 0, 0x24, 0}, nil)
	require.Nil(t, sn)
	require.Len(t, data, 36)
	assert.Equal(t, byte(0x05), data[0]) // CD-ROM peripheral
	assert.Equal(t, byte(0x80), data[1]) // removable
	assert.Equal(t, byte(0x00), data[2])
	assert.Equal(t, byte(0x02), data[3]) // response data format
	assert.Equal(t, byte(0x1F), data[4])

	// A longer allocation exposes the MMC-3 version descriptor at 58.
	full, sn := Dispatch(ctx, []byte{opInquiry, 0, 0, 0, 74, 0}, nil)
	require.Nil(t, sn)
	require.GreaterOrEqual(t, len(full), 60)
	assert.Equal(t, byte(0x02), full[58])
	assert.Equal(t, byte(0xA0), full[59])
}

func TestInquiryRejectsEVPD(t *testing.T) {
	ctx := buildTestContext(t)
	_, sn := Dispatch(ctx, []byte{opInquiry, 0x01, 0, 0, 36, 0}, nil)
	require.NotNil(t, sn)
	assert.Equal(t, sense.InvalidFieldInCDB, sn.Code)
}

// TestReadCapacityCDDAWithPregap loads a 150-sector-pregap, 30-second
// audio disc: capacity reports the last addressable sector before the
// lead-out and a fixed 2048-byte block size.
func TestReadCapacityCDDAWithPregap(t *testing.T) {
	d := disc.NewDisc()
	s := d.AddSession(disc.SessionCDDA)
	tr := s.AddTrack(disc.TrackModeAudio)
	tr.CTL = disc.CTLAudio
	tr.AddFragment(&fragment.Null{Len: 150})
	tr.AddFragment(&fragment.Null{Len: 2250})
	tr.TrackStart = 150
	d.Layout()

	ctx := buildTestContext(t)
	ctx.Disc = d

	data, sn := Dispatch(ctx, []byte{opReadCapacity, 0, 0, 0, 0, 0, 0, 0, 0, 0}, nil)
	require.Nil(t, sn)
	require.Len(t, data, 8)
	assert.Equal(t, 2399, be32(data[0:4]))
	assert.Equal(t, 2048, be32(data[4:8]))
}

func TestModeSense10AllPagesHeaderLength(t *testing.T) {
	ctx := buildTestContext(t)
	cdb := make([]byte, 10)
	cdb[0] = opModeSense10
	cdb[2] = 0x3F
	putBE16(cdb[7:9], 0x200)

	data, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	assert.Equal(t, len(data)-2, be16(data[0:2]))
	assert.Equal(t, ctx.ModePages.AllBytes(modepage.Current), data[8:])
}

// TestGetConfigurationOneShotReturnsSingleFeature covers RT=0x02: exactly
// the named feature and nothing after it.
func TestGetConfigurationOneShotReturnsSingleFeature(t *testing.T) {
	ctx := buildTestContext(t)
	cdb := make([]byte, 10)
	cdb[0] = opGetConfiguration
	cdb[1] = 0x02
	putBE16(cdb[2:4], 0x0000)
	putBE16(cdb[7:9], 0x200)

	data, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	require.GreaterOrEqual(t, len(data), 12)
	assert.Equal(t, len(data)-4, be32(data[0:4]))
	assert.Equal(t, int(feature.ProfileNumberCDROM), be16(data[6:8]))
	// One feature header follows: code 0x0000, then its payload and
	// nothing else.
	assert.Equal(t, 0x0000, be16(data[8:10]))
	featLen := int(data[11])
	assert.Equal(t, 8+4+featLen, len(data))
}

// TestReadSubchannelCurrentPosition drives format 0x01 after the head was
// left inside an audio track: the synthesized Q reports the track, index,
// and both address forms.
func TestReadSubchannelCurrentPosition(t *testing.T) {
	d := disc.NewDisc()
	s := d.AddSession(disc.SessionCDROM)
	t1 := s.AddTrack(disc.TrackModeMode1)
	t1.CTL = disc.CTLData
	t1.AddFragment(&fragment.Null{Len: 10000})
	t2 := s.AddTrack(disc.TrackModeAudio)
	t2.CTL = disc.CTLAudio
	t2.AddFragment(&fragment.Null{Len: 3000})
	d.Layout()
	require.Equal(t, 10000, t2.StartSector())

	ctx := buildTestContext(t)
	ctx.Disc = d
	ctx.CurrentAddress = 10016

	cdb := make([]byte, 10)
	cdb[0] = opReadSubchannel
	cdb[1] = 0x02 // time: MSF
	cdb[2] = 0x40 // SubQ
	cdb[3] = 0x01 // current position
	putBE16(cdb[7:9], 48)

	data, sn := Dispatch(ctx, cdb, nil)
	require.Nil(t, sn)
	require.GreaterOrEqual(t, len(data), 16)
	assert.Equal(t, byte(0x10), data[5]) // ADR 1, CTL 0 (audio)
	assert.Equal(t, byte(2), data[6])    // track
	assert.Equal(t, byte(1), data[7])    // index

	am, as, af := sector.LBAToMSF(10016, true)
	assert.Equal(t, []byte{0, byte(am), byte(as), byte(af)}, data[8:12])
	rm, rs, rf := sector.LBAToMSF(16, false)
	assert.Equal(t, []byte{0, byte(rm), byte(rs), byte(rf)}, data[12:16])
}

// TestReadCDStopsAtTrackTypeBoundary crosses a data→audio transition with
// expected type 0: the read must stop at the family change.
func TestReadCDStopsAtTrackTypeBoundary(t *testing.T) {
	d := disc.NewDisc()
	s := d.AddSession(disc.SessionCDROM)
	t1 := s.AddTrack(disc.TrackModeMode1)
	t1.CTL = disc.CTLData
	t1.AddFragment(&fragment.Null{Len: 10})
	t2 := s.AddTrack(disc.TrackModeAudio)
	t2.CTL = disc.CTLAudio
	t2.AddFragment(&fragment.Null{Len: 10})
	d.Layout()

	ctx := buildTestContext(t)
	ctx.Disc = d

	cdb := make([]byte, 12)
	cdb[0] = opReadCD
	putBE32(cdb[2:6], t1.StartSector()+8)
	cdb[8] = 4    // crosses into track 2
	cdb[9] = 0x10 // user data only

	_, sn := Dispatch(ctx, cdb, nil)
	require.NotNil(t, sn)
	assert.Equal(t, sense.IllegalModeForThisTrack, sn.Code)
}

func TestReadCDRejectsRWSubchannelForm(t *testing.T) {
	ctx := buildTestContext(t)
	cdb := make([]byte, 12)
	cdb[0] = opReadCD
	putBE32(cdb[2:6], ctx.Disc.Sessions[0].Tracks[0].StartSector())
	cdb[8] = 1
	cdb[9] = 0x10
	cdb[10] = 0x04 // corrected R-W form

	_, sn := Dispatch(ctx, cdb, nil)
	require.NotNil(t, sn)
	assert.Equal(t, sense.InvalidFieldInCDB, sn.Code)
}

func TestReadOutsideLayoutFailsIllegalMode(t *testing.T) {
	ctx := buildTestContext(t)
	end := ctx.Disc.LayoutStart + ctx.Disc.LayoutLength()

	cdb := make([]byte, 10)
	cdb[0] = opRead10
	putBE32(cdb[2:6], end)
	putBE16(cdb[7:9], 1)

	_, sn := Dispatch(ctx, cdb, nil)
	require.NotNil(t, sn)
	assert.Equal(t, sense.IllegalModeForThisTrack, sn.Code)
}

func TestRequestSenseReportsAudioStatusNotPreviousFailure(t *testing.T) {
	ctx := buildTestContext(t)
	_, sn := Dispatch(ctx, []byte{0xFF}, nil)
	require.NotNil(t, sn)

	data, sn2 := Dispatch(ctx, []byte{opRequestSense, 0, 0, 0, 18, 0}, nil)
	require.Nil(t, sn2)
	assert.Equal(t, byte(sense.NoSense), data[2])
	assert.Equal(t, byte(audio.Stopped), data[13])
}
