package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFromStoppedCompletedErrorStopped(t *testing.T) {
	for _, from := range []Status{Stopped, Completed, ErrorStopped} {
		e := NewEngine()
		e.status = from
		require.NoError(t, e.Start(100, 200))
		assert.Equal(t, Playing, e.Status())
	}
}

func TestStartWhilePlayingIsSequenceError(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Start(0, 100))
	err := e.Start(50, 150)
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestPauseResumeCycle(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Start(0, 100))
	require.NoError(t, e.Pause())
	assert.Equal(t, Paused, e.Status())
	require.NoError(t, e.Resume())
	assert.Equal(t, Playing, e.Status())
}

func TestPauseFromStoppedIsSequenceError(t *testing.T) {
	e := NewEngine()
	assert.ErrorIs(t, e.Pause(), ErrBadTransition)
	assert.ErrorIs(t, e.Resume(), ErrBadTransition)
}

func TestStopIsValidFromAnyState(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Start(0, 100))
	e.Stop()
	assert.Equal(t, Stopped, e.Status())
	e.Stop()
	assert.Equal(t, Stopped, e.Status())
}

func TestAdvanceToEndCompletes(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Start(0, 10))
	e.Advance(5)
	assert.Equal(t, Playing, e.Status())
	e.Advance(5)
	assert.Equal(t, Completed, e.Status())

	// Completed is a valid restart point.
	require.NoError(t, e.Start(10, 20))
	assert.Equal(t, Playing, e.Status())
}

func TestFailEntersErrorStopped(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Start(0, 10))
	e.Fail()
	assert.Equal(t, ErrorStopped, e.Status())
	require.NoError(t, e.Start(0, 10))
}
