// Package device wires the sector, fragment, disc, image, mode-page,
// feature, sense, mmc, audio, and delay packages into one addressable unit,
// and owns the load/unload/lock lifecycle and option state a control
// interface manipulates.
package device

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"cdemu/audio"
	"cdemu/delay"
	"cdemu/disc"
	"cdemu/feature"
	"cdemu/image"
	"cdemu/mmc"
	"cdemu/modepage"
	"cdemu/transport"
)

// ErrDeviceLocked is returned by Unload when PREVENT ALLOW MEDIUM REMOVAL
// has latched the tray shut and force is false.
var ErrDeviceLocked = errors.New("device: medium removal prevented")

// ErrAlreadyLoaded is returned by Load while a disc is mounted; callers
// must Unload first.
var ErrAlreadyLoaded = errors.New("device: disc already loaded")

// Observer receives lifecycle notifications, replacing the source's GObject
// "status-changed"/"option-changed" signals with a plain Go interface.
type Observer interface {
	StatusChanged(loaded bool)
	OptionChanged(name string)
}

// Options holds the user-configurable knobs a control client can read and
// write between (or even during) load cycles.
type Options struct {
	DPMEmulation          bool
	TransferRateEmulation bool
	DeviceID              mmc.DeviceID
	DaemonDebugMask       int32
	LibraryDebugMask      int32
}

// Device is the single stateful unit a transport bridge drives. Every
// mutating method and every CDB dispatch runs under mu, matching the
// source's single-mutex-per-device concurrency model.
type Device struct {
	mu sync.Mutex

	disc      *disc.Disc
	modePages *modepage.DB
	features  *feature.DB
	audioEng  *audio.Engine
	writeType *modepage.WriteType

	profile        feature.Profile
	locked         bool
	loaded         bool
	currentAddress int
	delayEng       *delay.Emulator
	options        Options
	filenames      []string

	// eventPending/eventCode latch a media event until the next GET
	// EVENT/STATUS NOTIFICATION clears it; unitAttentionPending is the
	// separate one-shot latch that TEST UNIT READY clears.
	eventPending         bool
	eventCode            byte
	unitAttentionPending bool

	observers []Observer
}

// NewDevice returns an empty, unloaded device with its mode-page and
// feature databases populated to their power-on defaults.
func NewDevice() *Device {
	d := &Device{
		modePages: modepage.NewDB(),
		features:  feature.NewDB(),
		audioEng:  audio.NewEngine(),
		writeType: &modepage.WriteType{},
		delayEng:  &delay.Emulator{TransferEnabled: true},
		options:   Options{TransferRateEmulation: true, DeviceID: mmc.DefaultDeviceID()},
		profile:   feature.ProfileNone,
	}
	modepage.RegisterDefaults(d.modePages, d.writeType)
	feature.RegisterDefaults(d.features)
	d.features.SetCurrentFeatures(feature.ProfileNone)
	return d
}

// Subscribe registers o to receive future lifecycle notifications.
func (d *Device) Subscribe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

func (d *Device) notifyStatus(loaded bool) {
	for _, o := range d.observers {
		o.StatusChanged(loaded)
	}
}

func (d *Device) notifyOption(name string) {
	for _, o := range d.observers {
		o.OptionChanged(name)
	}
}

// Load parses filenames into a fresh disc.Disc and mounts it. A device
// holds at most one disc: loading over a mounted one fails with
// ErrAlreadyLoaded, and the caller must Unload first.
func (d *Device) Load(filenames []string) error {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return ErrAlreadyLoaded
	}
	d.mu.Unlock()

	loaded, err := image.Load(filenames)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return ErrAlreadyLoaded
	}

	if loaded.Medium == disc.MediumDVD {
		if _, ok := loaded.GetDiscStructure(0, 0x00); !ok {
			loaded.SetDiscStructure(0, 0x00, dvdPhysicalInfo(loaded))
		}
	}

	d.disc = loaded
	d.filenames = filenames
	d.profile = profileForMedium(loaded)
	d.features.SetCurrentFeatures(d.profile)
	d.audioEng.Stop()
	d.loaded = true
	d.eventPending = true
	d.eventCode = mmc.EventNewMedia
	d.unitAttentionPending = true
	d.mu.Unlock()

	d.notifyStatus(true)
	return nil
}

// dvdPhysicalInfo synthesizes a physical-format-information structure
// (layer 0, format 0x00) for DVD images whose index carries none: a
// single-layer 120 mm DVD-ROM whose data zone spans the image's layout.
func dvdPhysicalInfo(d *disc.Disc) []byte {
	b := make([]byte, 2048)
	b[0] = 0x01 // book type DVD-ROM, part version 1
	b[1] = 0x02 // 120 mm, maximum rate 10.08 Mbps
	b[2] = 0x01 // one layer, embossed data

	// Physical sector numbers: the data zone starts at 0x030000.
	start := 0x030000
	end := start + d.LayoutLength()
	b[5], b[6], b[7] = byte(start>>16), byte(start>>8), byte(start)
	b[9], b[10], b[11] = byte(end>>16), byte(end>>8), byte(end)
	return b
}

// profileForMedium collapses DVD/BD/HD media onto the DVD-ROM feature set;
// only CD media gets the CDROM/CDR distinction, decided by the image parser
// via disc.Profile when present.
func profileForMedium(loaded *disc.Disc) feature.Profile {
	switch loaded.Medium {
	case disc.MediumDVD, disc.MediumBD, disc.MediumHD:
		return feature.ProfileDVDROM
	default:
		return feature.ProfileCDROM
	}
}

// Unload clears the loaded disc. force=true bypasses the PREVENT ALLOW
// MEDIUM REMOVAL lock, matching a privileged control-client eject.
func (d *Device) Unload(force bool) error {
	d.mu.Lock()
	was, err := d.unloadLocked(force)
	d.mu.Unlock()

	if was {
		d.notifyStatus(false)
	}
	return err
}

// unloadLocked is the unload path proper; the caller holds d.mu. It reports
// whether a loaded disc was actually released, so the caller can emit the
// status-changed notification outside the lock.
func (d *Device) unloadLocked(force bool) (bool, error) {
	if d.locked && !force {
		// An EjectRequest is latched even on a rejected unload, so a host
		// daemon observing it can release the lock and retry.
		d.eventPending = true
		d.eventCode = mmc.EventEjectRequest
		return false, ErrDeviceLocked
	}
	was := d.loaded
	d.disc = nil
	d.filenames = nil
	d.loaded = false
	d.locked = false
	d.audioEng.Stop()
	if was {
		d.eventPending = true
		d.eventCode = mmc.EventMediaRemoval
	}
	d.profile = feature.ProfileNone
	d.features.SetCurrentFeatures(feature.ProfileNone)
	return was, nil
}

// Lock sets or clears the medium-removal-prevented latch directly, for a
// control client that wants to lock/unlock without issuing a CDB.
func (d *Device) Lock(locked bool) {
	d.mu.Lock()
	d.locked = locked
	d.mu.Unlock()
}

// IsLoaded reports whether a disc is currently mounted.
func (d *Device) IsLoaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// Filenames returns the image filenames the currently loaded disc was built
// from, or nil if no disc is loaded.
func (d *Device) Filenames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.filenames...)
}

// SetOption updates one named option. Unknown names fail rather than
// silently succeeding. device-id accepts "vendor|product|revision|vendor_specific"
// (any field may be empty); the debug masks accept a base-10 or "0x"-prefixed
// 32-bit integer.
func (d *Device) SetOption(name, value string) error {
	d.mu.Lock()
	switch name {
	case "dpm-emulation":
		d.options.DPMEmulation = value == "true"
	case "tr-emulation":
		d.options.TransferRateEmulation = value == "true"
	case "device-id":
		id, err := parseDeviceID(value)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		d.options.DeviceID = id
	case "daemon-debug-mask":
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			d.mu.Unlock()
			return errors.Wrap(err, "device: invalid daemon-debug-mask")
		}
		d.options.DaemonDebugMask = int32(v)
	case "library-debug-mask":
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			d.mu.Unlock()
			return errors.Wrap(err, "device: invalid library-debug-mask")
		}
		d.options.LibraryDebugMask = int32(v)
	default:
		d.mu.Unlock()
		return errors.Errorf("device: unknown option %q", name)
	}
	d.mu.Unlock()
	d.notifyOption(name)
	return nil
}

func parseDeviceID(value string) (mmc.DeviceID, error) {
	parts := strings.SplitN(value, "|", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return mmc.DeviceID{Vendor: parts[0], Product: parts[1], Revision: parts[2], VendorSpecific: parts[3]}, nil
}

func formatDeviceID(id mmc.DeviceID) string {
	return strings.Join([]string{id.Vendor, id.Product, id.Revision, id.VendorSpecific}, "|")
}

// GetOption returns the current value of a named option.
func (d *Device) GetOption(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case "dpm-emulation":
		return boolStr(d.options.DPMEmulation), true
	case "tr-emulation":
		return boolStr(d.options.TransferRateEmulation), true
	case "device-id":
		return formatDeviceID(d.options.DeviceID), true
	case "daemon-debug-mask":
		return strconv.FormatInt(int64(d.options.DaemonDebugMask), 10), true
	case "library-debug-mask":
		return strconv.FormatInt(int64(d.options.LibraryDebugMask), 10), true
	default:
		return "", false
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// HandleCDB dispatches one transport request under the device mutex. On
// CheckCondition the sense payload replaces the response data, per the
// kernel bridge contract.
func (d *Device) HandleCDB(req transport.Request) transport.Response {
	d.mu.Lock()

	d.delayEng.DPMEnabled = d.options.DPMEmulation
	d.delayEng.TransferEnabled = d.options.TransferRateEmulation

	unloaded := false
	ctx := &mmc.Context{
		Disc:                 d.disc,
		ModePages:            d.modePages,
		Features:             d.features,
		Audio:                d.audioEng,
		WriteType:            d.writeType,
		Profile:              d.profile,
		Locked:               d.locked,
		MaxSpeedKB:           706 * 8, // 5648 KB/s, about 32x CD-ROM
		CurrentSpeedKB:       706 * 8,
		CurrentAddress:       d.currentAddress,
		Delay:                d.delayEng,
		DeviceID:             d.options.DeviceID,
		EventPending:         d.eventPending,
		EventCode:            d.eventCode,
		UnitAttentionPending: d.unitAttentionPending,
	}
	ctx.Unloader = func() error {
		was, err := d.unloadLocked(false)
		unloaded = unloaded || was
		// The unload path latched its own media event; carry it into the
		// context so the post-dispatch write-back doesn't clobber it.
		ctx.EventPending = d.eventPending
		ctx.EventCode = d.eventCode
		ctx.Locked = d.locked
		return err
	}

	data, sn := mmc.Dispatch(ctx, req.CDB, req.Data)
	d.locked = ctx.Locked
	d.currentAddress = ctx.CurrentAddress
	d.eventPending = ctx.EventPending
	d.eventCode = ctx.EventCode
	d.unitAttentionPending = ctx.UnitAttentionPending
	d.mu.Unlock()

	if unloaded {
		d.notifyStatus(false)
	}

	resp := transport.Response{Tag: req.Tag, Data: data}
	if sn != nil {
		sb := sn.Bytes()
		resp.Status = transport.StatusCheckCondition
		resp.Data = sb[:]
	}
	return resp
}

// Serve runs a transport bridge against this device until it stops or the
// connection closes.
func (d *Device) Serve(b *transport.Bridge) error {
	return b.Serve(d.HandleCDB)
}
