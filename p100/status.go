package p100

import (
	"context"
	"fmt"
	"strings"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// Status is a snapshot of the device. The optional fields are nil when the
// main zone is off or the device did not answer.
type Status struct {
	MainPower  PowerState
	Zone2Power PowerState

	Volume    *float64
	Muted     *bool
	Source    *Source
	AudioMode *AudioMode
	AudioType string
}

// Status queries the power of both zones and, when the main zone is on,
// its volume, mute, source and audio processing state. Failures of the
// extended fields are logged and leave them empty.
func (d *Device) Status(ctx context.Context) (Status, error) {
	var st Status
	var err error

	if st.MainPower, err = d.Power.State(ctx, ZoneMain); err != nil {
		return st, fmt.Errorf("main power: %w", err)
	}
	if st.Zone2Power, err = d.Power.State(ctx, Zone2); err != nil {
		return st, fmt.Errorf("zone 2 power: %w", err)
	}
	if st.MainPower != p100protocol.PowerOn {
		return st, nil
	}

	if vol, err := d.Volume.Get(ctx, ZoneMain); err == nil {
		st.Volume = &vol
	} else {
		d.logger.Debug("status: volume", "error", err)
	}
	if muted, err := d.Volume.IsMuted(ctx, ZoneMain); err == nil {
		st.Muted = &muted
	} else {
		d.logger.Debug("status: mute", "error", err)
	}
	if src, err := d.Sources.Current(ctx); err == nil {
		st.Source = &src
	} else {
		d.logger.Debug("status: source", "error", err)
	}
	if mode, err := d.AudioMode.Current(ctx); err == nil {
		st.AudioMode = &mode
	} else {
		d.logger.Debug("status: audio mode", "error", err)
	}
	if typ, err := d.AudioMode.AudioType(ctx); err == nil {
		st.AudioType = typ
	} else {
		d.logger.Debug("status: audio type", "error", err)
	}
	return st, nil
}

// String renders the snapshot as "key: value" lines.
func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main zone: %s\n", s.MainPower)
	fmt.Fprintf(&b, "Zone 2:    %s\n", s.Zone2Power)
	if s.Volume != nil {
		fmt.Fprintf(&b, "Volume:    %.1f dB\n", *s.Volume)
	}
	if s.Muted != nil {
		fmt.Fprintf(&b, "Muted:     %t\n", *s.Muted)
	}
	if s.Source != nil {
		fmt.Fprintf(&b, "Source:    %s\n", s.Source.Name)
	}
	if s.AudioMode != nil {
		fmt.Fprintf(&b, "Mode:      %s\n", s.AudioMode.Name)
	}
	if s.AudioType != "" {
		fmt.Fprintf(&b, "Audio:     %s\n", s.AudioType)
	}
	return b.String()
}
