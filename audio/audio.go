// Package audio implements the Playing/Paused/Stopped/Completed/
// ErrorStopped playback state machine.
package audio

import (
	"sync"

	"github.com/pkg/errors"
)

// Status is the MMC audio status byte.
type Status byte

const (
	Stopped      Status = 0x00
	Playing      Status = 0x11
	Paused       Status = 0x12
	Completed    Status = 0x13
	ErrorStopped Status = 0x14
)

// ErrBadTransition marks an attempted transition the state machine does not
// allow from the current state.
var ErrBadTransition = errors.New("audio: command sequence error")

// Engine tracks playback status and the active [start,end) sector range.
// All mutating calls must run under the caller's device mutex; this type
// has no lock of its own beyond guarding its own fields against concurrent
// reads from the command dispatcher and the playback goroutine.
type Engine struct {
	mu     sync.Mutex
	status Status
	start  int
	end    int
	pos    int
}

// NewEngine returns an Engine in the Stopped state.
func NewEngine() *Engine {
	return &Engine{status: Stopped}
}

// Status returns the current status byte; cheap enough to call from
// REQUEST SENSE and READ SUBCHANNEL on every command.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start begins playback of [lba, end). Valid from Stopped, Completed, or
// ErrorStopped; the dispatcher is responsible for stopping Playing/Paused
// audio before commands marked disturbs_audio run.
func (e *Engine) Start(lba, end int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.status {
	case Stopped, Completed, ErrorStopped:
		e.status = Playing
		e.start, e.end, e.pos = lba, end, lba
		return nil
	default:
		return errors.Wrapf(ErrBadTransition, "start: invalid from %v", e.status)
	}
}

// Pause transitions Playing -> Paused; pausing while already Paused is a
// harmless no-op. Any other source state is a sequence error.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Playing && e.status != Paused {
		return errors.Wrapf(ErrBadTransition, "pause: invalid from %v", e.status)
	}
	e.status = Paused
	return nil
}

// Resume transitions Paused -> Playing; resuming while already Playing is a
// harmless no-op. Any other source state is a sequence error.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Playing && e.status != Paused {
		return errors.Wrapf(ErrBadTransition, "resume: invalid from %v", e.status)
	}
	e.status = Playing
	return nil
}

// Stop transitions to Stopped from any state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = Stopped
}

// Advance moves playback forward n sectors, transitioning to Completed if
// it reaches the end of the requested range. A no-op outside Playing.
func (e *Engine) Advance(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Playing {
		return
	}
	e.pos += n
	if e.pos >= e.end {
		e.status = Completed
	}
}

// Fail transitions to ErrorStopped, used when the playback backend reports
// a failure.
func (e *Engine) Fail() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = ErrorStopped
}

// Range reports the active playback range and current position.
func (e *Engine) Range() (start, end, pos int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start, e.end, e.pos
}

// IsDisturbable reports whether the current status requires a stop before
// a disturbs_audio command runs.
func (e *Engine) IsDisturbable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == Playing || e.status == Paused
}
