package toc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdemu/disc"
	"cdemu/image"
)

// writeTestImage lays down a minimal single-track MODE1 .toc plus its backing
// .bin payload (all zero sectors) and returns the .toc path.
func writeTestImage(t *testing.T, numSectors int) string {
	t.Helper()
	dir := t.TempDir()
	binPath := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(binPath, make([]byte, numSectors*2048), 0o644))

	tocPath := filepath.Join(dir, "image.toc")
	content := "CD_ROM\n\nTRACK MODE1\nNO COPY\nDATAFILE \"data.bin\" 0\n"
	require.NoError(t, os.WriteFile(tocPath, []byte(content), 0o644))
	return tocPath
}

func TestParserRejectsUnknownExtension(t *testing.T) {
	_, err := Parser{}.Load([]string{"image.iso"})
	require.Error(t, err)
	assert.Equal(t, image.ErrCannotHandle, errors.Cause(err))
}

func TestLoadParsesSingleTrackDataDisc(t *testing.T) {
	tocPath := writeTestImage(t, 10)
	d, err := Parser{}.Load([]string{tocPath})
	require.NoError(t, err)
	require.Len(t, d.Sessions, 1)
	require.Len(t, d.Sessions[0].Tracks, 1)

	tr := d.Sessions[0].Tracks[0]
	assert.Equal(t, disc.TrackModeMode1, tr.Mode)
	assert.Equal(t, disc.CTLData, tr.CTL)
	// 10 data sectors plus the implicit 150-sector Red Book pregap.
	assert.Equal(t, 160, tr.Length())
	assert.Equal(t, 150, tr.TrackStart)
}

func TestLoadViaImageDispatchesToThisParser(t *testing.T) {
	tocPath := writeTestImage(t, 5)
	d, err := image.Load([]string{tocPath})
	require.NoError(t, err)
	assert.Equal(t, 155, d.Sessions[0].Tracks[0].Length())
}

func TestMsfToSectorsConvertsMinutesSecondsFrames(t *testing.T) {
	assert.Equal(t, 1*60*75+30*75+10, msfToSectors("1", "30", "10"))
}

