package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStream struct {
	data []byte
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, ErrRead
	}
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memStream) Size() (int64, error) {
	return int64(len(m.data)), nil
}

func TestNullFragmentZeroFill(t *testing.T) {
	n := &Null{Len: 4}
	assert.Equal(t, 4, n.Length())

	out := make([]byte, 16)
	for i := range out {
		out[i] = 0xAA
	}
	require.NoError(t, n.ReadMain(2, out))
	for _, b := range out {
		assert.Equal(t, byte(0), b)
	}

	err := n.ReadMain(10, out)
	assert.ErrorIs(t, err, ErrRead)
}

func TestBinaryFragmentReadsMainAndSub(t *testing.T) {
	main := 2352
	sub := 96
	stride := main + sub
	data := make([]byte, stride*3)
	for s := 0; s < 3; s++ {
		for i := 0; i < main; i++ {
			data[s*stride+i] = byte(s)
		}
		for i := 0; i < sub; i++ {
			data[s*stride+main+i] = byte(0x80 + s)
		}
	}

	frag := &Binary{
		Stream:     &memStream{data: data},
		MainOffset: 0,
		MainSize:   main,
		SubOffset:  int64(main),
		SubSize:    sub,
		Len:        3,
	}

	out := make([]byte, main)
	require.NoError(t, frag.ReadMain(1, out))
	assert.Equal(t, byte(1), out[0])

	subOut := make([]byte, sub)
	require.NoError(t, frag.ReadSub(2, subOut))
	assert.Equal(t, byte(0x82), subOut[0])
}

func TestBinaryFragmentNoSubchannelZeroFills(t *testing.T) {
	data := make([]byte, 2352*2)
	frag := &Binary{Stream: &memStream{data: data}, MainOffset: 0, MainSize: 2352, Len: 2}

	out := make([]byte, 96)
	for i := range out {
		out[i] = 0xFF
	}
	require.NoError(t, frag.ReadSub(0, out))
	for _, b := range out {
		assert.Equal(t, byte(0), b)
	}
}

func TestBinaryFragmentByteSwap(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	frag := &Binary{
		Stream:     &memStream{data: data},
		MainOffset: 0,
		MainSize:   4,
		MainFormat: FormatAudioByteSwapped,
		Len:        1,
	}
	out := make([]byte, 4)
	require.NoError(t, frag.ReadMain(0, out))
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, out)
}
