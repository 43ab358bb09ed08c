package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d := NewDB()
	RegisterDefaults(d)
	return d
}

func cdBitFor(t *testing.T, d *DB, profileNumber uint16) bool {
	t.Helper()
	e := d.Get(0x0000)
	require.NotNil(t, e)
	for i := 0; i+3 < len(e.Payload); i += 4 {
		num := uint16(e.Payload[i])<<8 | uint16(e.Payload[i+1])
		if num == profileNumber {
			return e.Payload[i+2]&0x01 != 0
		}
	}
	t.Fatalf("profile number 0x%04X not found in profile list", profileNumber)
	return false
}

func TestSetCurrentFeaturesCDR(t *testing.T) {
	d := newTestDB(t)
	d.SetCurrentFeatures(ProfileCDR)

	assert.True(t, cdBitFor(t, d, ProfileNumberCDR))
	assert.True(t, cdBitFor(t, d, ProfileNumberCDROM))
	assert.False(t, cdBitFor(t, d, ProfileNumberDVDROM))
}

func TestSetCurrentFeaturesDVDROM(t *testing.T) {
	d := newTestDB(t)
	d.SetCurrentFeatures(ProfileDVDROM)

	assert.False(t, cdBitFor(t, d, ProfileNumberCDROM))
	assert.False(t, cdBitFor(t, d, ProfileNumberCDR))
	assert.True(t, cdBitFor(t, d, ProfileNumberDVDROM))
}

func TestPersistentFeaturesSurviveProfileSwitch(t *testing.T) {
	d := newTestDB(t)
	d.SetCurrentFeatures(ProfileDVDROM)

	assert.True(t, d.Get(0x0001).Current)
	assert.True(t, d.Get(0x0003).Current)
}

func TestCodesAscending(t *testing.T) {
	d := newTestDB(t)
	codes := d.Codes()
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
}
