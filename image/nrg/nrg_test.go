package nrg

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdemu/disc"
	"cdemu/image"
)

// writeETNFImage builds a minimal single-track Mode1 .nrg: a flat data
// region, one ETNF track-at-once block, an END! terminator, and a classic
// (32-bit offset) NERO trailer tag.
func writeETNFImage(t *testing.T, numSectors int) string {
	t.Helper()
	dataLen := numSectors * 2048
	data := make([]byte, dataLen)

	entry := make([]byte, 20)
	binary.BigEndian.PutUint32(entry[0:4], 0)               // offset
	binary.BigEndian.PutUint32(entry[4:8], uint32(dataLen)) // size
	binary.BigEndian.PutUint32(entry[8:12], 0x02)           // mode code: Mode1 cooked
	binary.BigEndian.PutUint32(entry[12:16], 0)             // start sector

	etnfHeader := make([]byte, 8)
	copy(etnfHeader[0:4], "ETNF")
	binary.BigEndian.PutUint32(etnfHeader[4:8], uint32(len(entry)))

	endHeader := make([]byte, 8)
	copy(endHeader[0:4], "END!")

	trailerOffset := uint32(dataLen)

	var buf []byte
	buf = append(buf, data...)
	buf = append(buf, etnfHeader...)
	buf = append(buf, entry...)
	buf = append(buf, endHeader...)

	tag := make([]byte, 8)
	copy(tag[0:4], "NERO")
	binary.BigEndian.PutUint32(tag[4:8], trailerOffset)
	buf = append(buf, tag...)

	dir := t.TempDir()
	path := filepath.Join(dir, "image.nrg")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestParserRejectsUnrecognizedExtension(t *testing.T) {
	_, err := Parser{}.Load([]string{"image.iso"})
	require.Error(t, err)
	assert.Equal(t, image.ErrCannotHandle, errors.Cause(err))
}

func TestParserRejectsMultipleFiles(t *testing.T) {
	_, err := Parser{}.Load([]string{"a.nrg", "b.nrg"})
	require.Error(t, err)
	assert.Equal(t, image.ErrCannotHandle, errors.Cause(err))
}

func TestLoadParsesSingleTrackFromETNFBlock(t *testing.T) {
	path := writeETNFImage(t, 5)
	d, err := Parser{}.Load([]string{path})
	require.NoError(t, err)
	require.Len(t, d.Sessions, 1)
	require.Len(t, d.Sessions[0].Tracks, 1)

	tr := d.Sessions[0].Tracks[0]
	assert.Equal(t, disc.TrackModeMode1, tr.Mode)
	assert.Equal(t, disc.CTLData, tr.CTL)
	assert.Equal(t, 5, tr.Length())
}

func TestLoadViaImageDispatchesToNRGParser(t *testing.T) {
	path := writeETNFImage(t, 3)
	d, err := image.Load([]string{path})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Sessions[0].Tracks[0].Length())
}

func TestLoadFailsWithoutTrailerTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.nrg")
	require.NoError(t, os.WriteFile(path, make([]byte, 32), 0o644))
	_, err := Parser{}.Load([]string{path})
	require.Error(t, err)
}

func TestPickFamilyPrefersWideBlockIDs(t *testing.T) {
	blocks := []*block{{id: "DAOI"}, {id: "DAOX"}, {id: "ETNF"}, {id: "CUES"}}
	cueID, daoID, etnID := pickFamily(blocks)
	assert.Equal(t, "CUES", cueID)
	assert.Equal(t, "DAOX", daoID)
	assert.Equal(t, "ETNF", etnID)
}
