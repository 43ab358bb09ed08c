package disc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdemu/fragment"
)

func buildSimpleDisc(t *testing.T) *Disc {
	t.Helper()
	d := NewDisc()
	s := d.AddSession(SessionCDDA)
	tr := s.AddTrack(TrackModeAudio)
	tr.CTL = CTLAudio
	tr.AddFragment(&fragment.Null{Len: 2250}) // 30 seconds of audio
	d.Layout()
	return d
}

func TestLayoutLengthInvariant(t *testing.T) {
	d := buildSimpleDisc(t)
	s := d.Sessions[0]
	tr := s.Tracks[0]

	assert.Equal(t, tr.LayoutLength(), tr.Length())

	sum := 0
	for _, trk := range s.Tracks {
		sum += trk.LayoutLength()
	}
	assert.Equal(t, sum+s.leadinLen()+s.leadoutLen(), s.Length())
}

func TestGetTrackByAddressResolvesEveryLBA(t *testing.T) {
	d := buildSimpleDisc(t)

	start := d.LayoutStart
	end := start + d.LayoutLength()
	for lba := start; lba < end; lba += 97 {
		_, tr, err := d.GetTrackByAddress(lba)
		require.NoError(t, err, "lba %d should resolve", lba)
		assert.True(t, lba >= tr.StartSector() && lba < tr.StartSector()+tr.Length())
	}
}

func TestGetSectorAddressMatchesLBA(t *testing.T) {
	d := buildSimpleDisc(t)
	s := d.Sessions[0]
	lba := s.Tracks[0].StartSector() + 10

	sec, err := d.GetSector(lba)
	require.NoError(t, err)
	assert.Equal(t, lba, sec.LBA)
}

func TestMultiSessionGapRule(t *testing.T) {
	d := NewDisc()
	for i := 0; i < 3; i++ {
		s := d.AddSession(SessionCDROM)
		tr := s.AddTrack(TrackModeMode1)
		tr.AddFragment(&fragment.Null{Len: 1000})
	}
	d.Layout()

	end1 := d.Sessions[0].Tracks[0].StartSector() + 1000
	start2 := d.Sessions[1].Tracks[0].StartSector()
	assert.Equal(t, 11250, start2-end1)

	end2 := start2 + 1000
	start3 := d.Sessions[2].Tracks[0].StartSector()
	assert.Equal(t, 6750, start3-end2)
}

func TestLeadinAndLeadoutResolveAsPseudoTracks(t *testing.T) {
	d := buildSimpleDisc(t)

	_, tr, err := d.GetTrackByAddress(d.LayoutStart)
	require.NoError(t, err)
	assert.Equal(t, LeadinNumber, tr.Number)

	s := d.Sessions[0]
	_, tr, err = d.GetTrackByAddress(s.Tracks[0].StartSector() + s.Tracks[0].Length())
	require.NoError(t, err)
	assert.Equal(t, LeadoutNumber, tr.Number)
}

func TestGetTrackByAddressOutOfRange(t *testing.T) {
	d := buildSimpleDisc(t)
	_, _, err := d.GetTrackByAddress(d.LayoutStart + d.LayoutLength() + 1000)
	assert.ErrorIs(t, err, ErrNoTrack)
}
