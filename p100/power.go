package p100

import (
	"context"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// PowerControl switches zones on and off.
type PowerControl struct {
	dev *Device
}

// On powers the zone on.
func (p *PowerControl) On(ctx context.Context, zone Zone) error {
	return p.dev.send(ctx, p100protocol.NewPowerOnCommand(zone))
}

// Off puts the zone in standby.
func (p *PowerControl) Off(ctx context.Context, zone Zone) error {
	return p.dev.send(ctx, p100protocol.NewPowerOffCommand(zone))
}

// State queries the zone's power state.
func (p *PowerControl) State(ctx context.Context, zone Zone) (PowerState, error) {
	resp, err := p.dev.query(ctx, p100protocol.NewPowerQueryCommand(zone))
	if err != nil {
		return p100protocol.PowerOff, err
	}
	return p100protocol.ParsePower(zone, resp)
}

// IsOn reports whether the zone is powered on.
func (p *PowerControl) IsOn(ctx context.Context, zone Zone) (bool, error) {
	state, err := p.State(ctx, zone)
	return state == p100protocol.PowerOn, err
}

// Toggle flips the zone's power state and returns the new state.
func (p *PowerControl) Toggle(ctx context.Context, zone Zone) (PowerState, error) {
	state, err := p.State(ctx, zone)
	if err != nil {
		return state, err
	}
	if state == p100protocol.PowerOn {
		return p100protocol.PowerOff, p.Off(ctx, zone)
	}
	return p100protocol.PowerOn, p.On(ctx, zone)
}
