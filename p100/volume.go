package p100

import (
	"context"
	"sync"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// DefaultVolumeStep is the device's own step for a bare VOL+ or VOL-.
const DefaultVolumeStep = 0.5

// MuteAction is a mute command issued through the facade.
type MuteAction int

const (
	MuteActionNone MuteAction = iota
	MuteActionOn
	MuteActionOff
	MuteActionToggle
)

func (a MuteAction) String() string {
	switch a {
	case MuteActionOn:
		return "on"
	case MuteActionOff:
		return "off"
	case MuteActionToggle:
		return "toggle"
	default:
		return "none"
	}
}

// VolumeControl reads and changes volume and mute per zone.
type VolumeControl struct {
	dev *Device

	mu       sync.Mutex
	lastMute [2]MuteAction
}

// Limits returns the settable range in dB.
func (v *VolumeControl) Limits() (min, max float64) {
	return p100protocol.MinVolumeDB, p100protocol.MaxVolumeDB
}

// Get returns the zone volume in dB.
func (v *VolumeControl) Get(ctx context.Context, zone Zone) (float64, error) {
	resp, err := v.dev.query(ctx, p100protocol.NewVolumeQueryCommand(zone))
	if err != nil {
		return 0, err
	}
	return p100protocol.ParseVolume(zone, resp)
}

// Set sets the zone volume in dB. Values outside Limits are rejected
// without contacting the device.
func (v *VolumeControl) Set(ctx context.Context, zone Zone, db float64) error {
	cmd, err := p100protocol.NewVolumeSetCommand(zone, db)
	if err != nil {
		return err
	}
	return v.dev.send(ctx, cmd)
}

// Up raises the volume by step dB. A step of 0 or DefaultVolumeStep uses
// the device's own step.
func (v *VolumeControl) Up(ctx context.Context, zone Zone, step float64) error {
	cmd, err := p100protocol.NewVolumeUpCommand(zone, normalizeStep(step))
	if err != nil {
		return err
	}
	return v.dev.send(ctx, cmd)
}

// Down lowers the volume by step dB. A step of 0 or DefaultVolumeStep uses
// the device's own step.
func (v *VolumeControl) Down(ctx context.Context, zone Zone, step float64) error {
	cmd, err := p100protocol.NewVolumeDownCommand(zone, normalizeStep(step))
	if err != nil {
		return err
	}
	return v.dev.send(ctx, cmd)
}

func normalizeStep(step float64) float64 {
	if step == DefaultVolumeStep {
		return 0
	}
	return step
}

// Mute mutes the zone.
func (v *VolumeControl) Mute(ctx context.Context, zone Zone) error {
	return v.mute(ctx, zone, MuteActionOn, p100protocol.NewMuteOnCommand(zone))
}

// Unmute unmutes the zone.
func (v *VolumeControl) Unmute(ctx context.Context, zone Zone) error {
	return v.mute(ctx, zone, MuteActionOff, p100protocol.NewMuteOffCommand(zone))
}

// ToggleMute flips the zone's mute state.
func (v *VolumeControl) ToggleMute(ctx context.Context, zone Zone) error {
	return v.mute(ctx, zone, MuteActionToggle, p100protocol.NewMuteToggleCommand(zone))
}

func (v *VolumeControl) mute(ctx context.Context, zone Zone, action MuteAction, cmd p100protocol.Command) error {
	if err := v.dev.send(ctx, cmd); err != nil {
		return err
	}
	v.mu.Lock()
	v.lastMute[zone] = action
	v.mu.Unlock()
	return nil
}

// IsMuted asks the device whether the zone is muted.
func (v *VolumeControl) IsMuted(ctx context.Context, zone Zone) (bool, error) {
	resp, err := v.dev.query(ctx, p100protocol.NewMuteQueryCommand(zone))
	if err != nil {
		return false, err
	}
	return p100protocol.ParseMute(zone, resp)
}

// LastMuteCommand returns the last mute command sent for the zone through
// this facade. It is a record of intent, not device state.
func (v *VolumeControl) LastMuteCommand(zone Zone) MuteAction {
	if zone != ZoneMain && zone != Zone2 {
		return MuteActionNone
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastMute[zone]
}
