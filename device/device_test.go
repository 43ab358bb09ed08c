package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "cdemu/image/toc"
	"cdemu/sense"
	"cdemu/transport"
)

// writeTestImage lays down a minimal single-track MODE1 .toc plus its
// backing .bin payload, mirroring the toc package's own fixture.
func writeTestImage(t *testing.T, numSectors int) string {
	t.Helper()
	dir := t.TempDir()
	binPath := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(binPath, make([]byte, numSectors*2048), 0o644))

	tocPath := filepath.Join(dir, "image.toc")
	content := "CD_ROM\n\nTRACK MODE1\nDATAFILE \"data.bin\"\n"
	require.NoError(t, os.WriteFile(tocPath, []byte(content), 0o644))
	return tocPath
}

type fakeObserver struct {
	statusChanges []bool
	optionChanges []string
}

func (f *fakeObserver) StatusChanged(loaded bool) {
	f.statusChanges = append(f.statusChanges, loaded)
}

func (f *fakeObserver) OptionChanged(name string) {
	f.optionChanges = append(f.optionChanges, name)
}

func TestNewDeviceStartsUnloadedAndUnlocked(t *testing.T) {
	d := NewDevice()
	assert.False(t, d.IsLoaded())
	assert.False(t, d.locked)
	assert.Nil(t, d.Filenames())
}

func TestLoadThenUnloadCyclesLoadedState(t *testing.T) {
	d := NewDevice()
	obs := &fakeObserver{}
	d.Subscribe(obs)

	path := writeTestImage(t, 4)
	require.NoError(t, d.Load([]string{path}))
	assert.True(t, d.IsLoaded())
	assert.Equal(t, []string{path}, d.Filenames())

	require.NoError(t, d.Unload(false))
	assert.False(t, d.IsLoaded())
	assert.Equal(t, []bool{true, false}, obs.statusChanges)
}

func TestUnloadRefusesWhenLocked(t *testing.T) {
	d := NewDevice()
	path := writeTestImage(t, 2)
	require.NoError(t, d.Load([]string{path}))
	d.Lock(true)

	err := d.Unload(false)
	assert.ErrorIs(t, err, ErrDeviceLocked)
	assert.True(t, d.IsLoaded())

	require.NoError(t, d.Unload(true))
	assert.False(t, d.IsLoaded())
}

func TestLoadRefusesWhileDiscMounted(t *testing.T) {
	d := NewDevice()
	path := writeTestImage(t, 2)
	require.NoError(t, d.Load([]string{path}))

	err := d.Load([]string{path})
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
}

func TestSetOptionRejectsUnknownName(t *testing.T) {
	d := NewDevice()
	err := d.SetOption("bogus", "true")
	assert.Error(t, err)
}

func TestSetOptionAndGetOptionRoundTrip(t *testing.T) {
	d := NewDevice()
	obs := &fakeObserver{}
	d.Subscribe(obs)

	require.NoError(t, d.SetOption("dpm-emulation", "true"))
	v, ok := d.GetOption("dpm-emulation")
	require.True(t, ok)
	assert.Equal(t, "true", v)
	assert.Equal(t, []string{"dpm-emulation"}, obs.optionChanges)

	_, ok = d.GetOption("bogus")
	assert.False(t, ok)
}

// TestHandleCDBWithoutDiscFailsNotReady covers the bare-drive READ: status
// CheckCondition with sense key NotReady and ASC/ASCQ MediumNotPresent
// carried in the response data.
func TestHandleCDBWithoutDiscFailsNotReady(t *testing.T) {
	d := NewDevice()
	cdb := make([]byte, 10)
	cdb[0] = 0x28 // READ(10), LBA 0, one block
	cdb[8] = 1
	resp := d.HandleCDB(transport.Request{CDB: cdb})
	assert.Equal(t, transport.StatusCheckCondition, resp.Status)
	require.Len(t, resp.Data, 18)
	assert.Equal(t, byte(sense.NotReady), resp.Data[2])
	assert.Equal(t, byte(0x3A), resp.Data[12])
	assert.Equal(t, byte(0x00), resp.Data[13])
}

func TestHandleCDBReadsUserDataOnceLoaded(t *testing.T) {
	d := NewDevice()
	require.NoError(t, d.SetOption("tr-emulation", "false"))
	path := writeTestImage(t, 2)
	require.NoError(t, d.Load([]string{path}))

	cdb := make([]byte, 10)
	cdb[0] = 0x28 // READ(10)
	cdb[8] = 1    // one block

	resp := d.HandleCDB(transport.Request{CDB: cdb})
	assert.Equal(t, transport.StatusGood, resp.Status)
	assert.Equal(t, 2048, len(resp.Data))
}

// TestMediaEventLatchClearsAfterOneUnitAttention checks that the first TEST
// UNIT READY after a load reports UnitAttention/NotReadyToReadyChange, and
// the next one succeeds; GET EVENT/STATUS NOTIFICATION reports NewMedia
// once then NoChange.
func TestMediaEventLatchClearsAfterOneUnitAttention(t *testing.T) {
	d := NewDevice()
	path := writeTestImage(t, 2)
	require.NoError(t, d.Load([]string{path}))

	tur := []byte{0x00, 0, 0, 0, 0, 0}
	resp := d.HandleCDB(transport.Request{CDB: tur})
	require.Equal(t, transport.StatusCheckCondition, resp.Status)
	require.Len(t, resp.Data, 18)
	assert.Equal(t, byte(sense.UnitAttention), resp.Data[2])

	resp = d.HandleCDB(transport.Request{CDB: tur})
	assert.Equal(t, transport.StatusGood, resp.Status)

	gesn := make([]byte, 10)
	gesn[0] = 0x4A
	gesn[1] = 0x01 // polled
	gesn[4] = 0x10 // request media class
	gesn[7], gesn[8] = 0, 8

	resp = d.HandleCDB(transport.Request{CDB: gesn})
	require.Equal(t, transport.StatusGood, resp.Status)
	require.GreaterOrEqual(t, len(resp.Data), 6)
	assert.Equal(t, byte(0x02), resp.Data[4]) // NewMedia
	assert.Equal(t, byte(0x02), resp.Data[5]) // media present

	resp = d.HandleCDB(transport.Request{CDB: gesn})
	require.Equal(t, transport.StatusGood, resp.Status)
	assert.Equal(t, byte(0x00), resp.Data[4]) // NoChange, latch cleared
}
