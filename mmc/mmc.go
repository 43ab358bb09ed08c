// Package mmc implements the CDB command dispatcher: one entry per opcode,
// each producing either a data-out buffer or a sense.Sense failure.
package mmc

import (
	"github.com/pkg/errors"

	"cdemu/audio"
	"cdemu/delay"
	"cdemu/disc"
	"cdemu/feature"
	"cdemu/modepage"
	"cdemu/sense"
)

// Context is the per-device state every command handler reads or mutates.
// It holds no lock of its own: the caller (the device's I/O loop) serializes
// every Dispatch call under its own mutex.
type Context struct {
	Disc      *disc.Disc
	ModePages *modepage.DB
	Features  *feature.DB
	Audio     *audio.Engine
	WriteType *modepage.WriteType

	Profile feature.Profile
	Locked  bool

	MaxSpeedKB     int
	CurrentSpeedKB int

	// CurrentAddress is the head position: the last sector a READ-family
	// command touched or SEEK(10) targeted, consulted by READ SUBCHANNEL's
	// current-position report.
	CurrentAddress int

	// Delay, when set, brackets READ-family commands with the simulated
	// seek/transfer sleep.
	Delay *delay.Emulator

	// Unloader, when set, is invoked by START STOP UNIT's eject path.
	Unloader func() error

	// DeviceID supplies INQUIRY's vendor/product/revision/vendor-specific
	// strings, sourced from the device-id option.
	DeviceID DeviceID

	// EventPending latches a media event (disc inserted/removed) until the
	// next GET EVENT/STATUS NOTIFICATION clears it.
	EventPending bool
	EventCode    byte

	// UnitAttentionPending latches a one-shot NotReadyToReadyChange that
	// TEST UNIT READY reports once after a successful load.
	UnitAttentionPending bool

	LastSense *sense.Sense
}

// DeviceID holds the fixed-width vendor/product/revision/vendor-specific
// fields INQUIRY copies verbatim into its standard data, per the
// device-id option's (vendor8, product16, revision4, vendor_specific20)
// shape.
type DeviceID struct {
	Vendor         string // padded/truncated to 8 bytes
	Product        string // padded/truncated to 16 bytes
	Revision       string // padded/truncated to 4 bytes
	VendorSpecific string // padded/truncated to 20 bytes
}

// DefaultDeviceID is the power-on device identity before any control
// client sets device-id.
func DefaultDeviceID() DeviceID {
	return DeviceID{Vendor: "cdemu", Product: "Virtual CD/DVD-ROM", Revision: "1.0"}
}

func padField(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, []byte(s))
	for i := len(s); i < n; i++ {
		out[i] = ' '
	}
	return out
}

// Media event codes reported by GET EVENT/STATUS NOTIFICATION's media event
// descriptor.
const (
	EventNoChange     byte = 0x00
	EventEjectRequest byte = 0x01
	EventNewMedia     byte = 0x02
	EventMediaRemoval byte = 0x03
	EventMediaChanged byte = 0x04
)

// Handler executes one CDB. dataIn carries the parameter list for commands
// with an OUT data phase (MODE SELECT); the returned dataOut is the IN data
// phase payload, already truncated to the CDB's allocation length.
type Handler func(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense)

// Command is one dispatch table entry.
type Command struct {
	Opcode        byte
	Name          string
	Handler       Handler
	DisturbsAudio bool
}

var table = make(map[byte]*Command)

func register(opcode byte, name string, disturbsAudio bool, h Handler) {
	table[opcode] = &Command{Opcode: opcode, Name: name, Handler: h, DisturbsAudio: disturbsAudio}
}

// Lookup returns the registered command for opcode, if any.
func Lookup(opcode byte) (*Command, bool) {
	c, ok := table[opcode]
	return c, ok
}

// Dispatch resolves cdb[0] to its command, stops disturbable audio playback
// first if the command requires it, runs the handler, and records the
// resulting sense in ctx.LastSense. REQUEST SENSE does not read it: it
// reports the audio status instead.
func Dispatch(ctx *Context, cdb []byte, dataIn []byte) ([]byte, *sense.Sense) {
	if len(cdb) == 0 {
		sn := sense.New(sense.IllegalRequest, sense.InvalidFieldInCDB)
		ctx.LastSense = sn
		return nil, sn
	}

	cmd, ok := table[cdb[0]]
	if !ok {
		sn := sense.New(sense.IllegalRequest, sense.InvalidCommandOperationCode)
		ctx.LastSense = sn
		return nil, sn
	}

	if cmd.DisturbsAudio && ctx.Audio != nil && ctx.Audio.IsDisturbable() {
		ctx.Audio.Stop()
	}

	out, sn := cmd.Handler(ctx, cdb, dataIn)
	if sn != nil {
		ctx.LastSense = sn
	} else {
		ctx.LastSense = sense.New(sense.NoSense, sense.NoAdditionalSenseInformation)
	}
	return out, sn
}

// requireDisc returns NotReady/MediumNotPresent when no disc is loaded.
func requireDisc(ctx *Context) *sense.Sense {
	if ctx.Disc == nil {
		return sense.New(sense.NotReady, sense.MediumNotPresent)
	}
	return nil
}

var errShortCDB = errors.New("mmc: CDB too short for this opcode")

func cdbLen(cdb []byte, n int) error {
	if len(cdb) < n {
		return errors.Wrapf(errShortCDB, "want >= %d bytes, got %d", n, len(cdb))
	}
	return nil
}

func be16(b []byte) int { return int(b[0])<<8 | int(b[1]) }
func be32(b []byte) int {
	return int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
}

func putBE16(b []byte, v int) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putBE32(b []byte, v int) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func truncate(b []byte, allocLen int) []byte {
	if allocLen >= 0 && allocLen < len(b) {
		return b[:allocLen]
	}
	return b
}
