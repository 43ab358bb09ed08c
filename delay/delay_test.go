package delay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cdemu/disc"
)

func discWithDPM(samples map[int]disc.DPMSample) *disc.Disc {
	d := disc.NewDisc()
	d.DPM = &disc.DPMCurve{Samples: samples}
	return d
}

func TestNoDelayWithoutDPMData(t *testing.T) {
	e := &Emulator{DPMEnabled: true, TransferEnabled: true}
	e.Begin(disc.NewDisc(), 100, 10)
	assert.Equal(t, time.Duration(0), e.amount)
}

func TestSeekDelayFollowsAngleDifference(t *testing.T) {
	d := discWithDPM(map[int]disc.DPMSample{
		0:    {AngleTurns: 0, DensitySectors: 10},
		1000: {AngleTurns: 5, DensitySectors: 10},
	})

	e := &Emulator{DPMEnabled: true}
	e.Begin(d, 1000, 1)
	// 5 rotations at 200 rps: 25 ms, no shortcut.
	assert.InDelta(t, float64(25*time.Millisecond), float64(e.amount), float64(time.Millisecond))
}

func TestLongSeekTakesShortcut(t *testing.T) {
	d := discWithDPM(map[int]disc.DPMSample{
		0: {AngleTurns: 27.5, DensitySectors: 10},
	})

	e := &Emulator{DPMEnabled: true}
	e.Begin(d, 0, 1)
	// 27.5 rotations: two 20 ms shortcut steps plus 7.5 rotations at 200 rps
	// (37.5 ms).
	want := 40*time.Millisecond + 37500*time.Microsecond
	assert.InDelta(t, float64(want), float64(e.amount), float64(time.Millisecond))
}

func TestSeekDelayTracksHeadAcrossCommands(t *testing.T) {
	d := discWithDPM(map[int]disc.DPMSample{
		0:    {AngleTurns: 2, DensitySectors: 10},
		1000: {AngleTurns: 6, DensitySectors: 10},
	})

	e := &Emulator{DPMEnabled: true}
	e.Begin(d, 0, 1)
	first := e.amount
	e.Begin(d, 1000, 1)
	// Second seek covers |6-2| = 4 rotations, not 6.
	assert.InDelta(t, float64(20*time.Millisecond), float64(e.amount), float64(time.Millisecond))
	assert.Greater(t, e.amount, first)
}

func TestTransferDelayScalesWithCount(t *testing.T) {
	d := discWithDPM(map[int]disc.DPMSample{
		0: {AngleTurns: 0, DensitySectors: 10},
	})

	one := &Emulator{TransferEnabled: true}
	one.Begin(d, 0, 1)
	ten := &Emulator{TransferEnabled: true}
	ten.Begin(d, 0, 10)
	assert.InDelta(t, float64(10*one.amount), float64(ten.amount), float64(time.Millisecond))
}

func TestFinalizeSleepsRemainder(t *testing.T) {
	d := discWithDPM(map[int]disc.DPMSample{
		0: {AngleTurns: 1, DensitySectors: 10},
	})

	e := &Emulator{DPMEnabled: true}
	start := time.Now()
	e.Begin(d, 0, 1) // 1 rotation: 5 ms
	e.Finalize()
	assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond)
}

func TestFinalizeNoopWhenProcessingExceededDelay(t *testing.T) {
	e := &Emulator{}
	e.Begin(disc.NewDisc(), 0, 1)
	start := time.Now()
	e.Finalize()
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
