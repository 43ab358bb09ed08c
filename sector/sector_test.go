package sector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMSFRoundTrip(t *testing.T) {
	for m := 0; m < 5; m++ {
		for s := 0; s < 60; s += 7 {
			for f := 0; f < 75; f += 11 {
				lba := MSFToLBA(m, s, f, true)
				gm, gs, gf := LBAToMSF(lba, true)
				assert.Equal(t, m, gm)
				assert.Equal(t, s, gs)
				assert.Equal(t, f, gf)
			}
		}
	}
}

func TestMSFBoundary(t *testing.T) {
	lba := MSFToLBA(99, 59, 74, true)
	m, s, f := LBAToMSF(lba, true)
	assert.Equal(t, 99, m)
	assert.Equal(t, 59, s)
	assert.Equal(t, 74, f)
}

func TestBCDRoundTrip(t *testing.T) {
	for v := 0; v < 100; v++ {
		assert.Equal(t, v, UnBCD(BCD(v)))
	}
}

func TestBuildSectorMode1EDCVerifies(t *testing.T) {
	payload := make([]byte, 2048)
	rand.New(rand.NewSource(1)).Read(payload)

	s, err := BuildSector(Mode1, 100, payload)
	require.NoError(t, err)
	assert.True(t, s.VerifyEDC())

	s.Main[2064] ^= 0xFF
	assert.False(t, s.VerifyEDC())
}

func TestBuildSectorMode2Form1EDCVerifies(t *testing.T) {
	payload := make([]byte, 2048+8)
	rand.New(rand.NewSource(2)).Read(payload)

	s, err := BuildSector(Mode2Form1, 200, payload)
	require.NoError(t, err)
	assert.True(t, s.VerifyEDC())
}

func TestGetChannelZeroFillForAbsentChannel(t *testing.T) {
	payload := make([]byte, 2352)
	s, err := BuildSector(Audio, 0, payload)
	require.NoError(t, err)

	sub := s.GetChannel(ChanSubheader)
	assert.Len(t, sub, 8)
	for _, b := range sub {
		assert.Equal(t, byte(0), b)
	}
}

func TestGetChannelDataSizesPerType(t *testing.T) {
	cases := []struct {
		t    Type
		size int
	}{
		{Audio, 2352},
		{Mode1, 2048},
		{Mode2Formless, 2336},
		{Mode2Form1, 2048},
		{Mode2Form2, 2324},
	}
	for _, c := range cases {
		payload := make([]byte, BuildPayloadSize(c.t))
		s, err := BuildSector(c.t, 0, payload)
		require.NoError(t, err)
		assert.Len(t, s.GetChannel(ChanData), c.size)
	}
}

func TestSynthesizeSubchannelQCurrentPosition(t *testing.T) {
	q := SynthesizeSubchannelQ(0x04, 1, 1, 2250, 10000)
	assert.Equal(t, byte(1), q.ADR)
	assert.Equal(t, BCD(1), q.TrackNumber)
	am, as, af := LBAToMSF(10000, true)
	assert.Equal(t, BCD(am), q.AbsoluteM)
	assert.Equal(t, BCD(as), q.AbsoluteS)
	assert.Equal(t, BCD(af), q.AbsoluteF)
}
