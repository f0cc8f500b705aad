package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/siegeld/steinway-lyngdorf/p100"
	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// app carries what every subcommand needs.
type app struct {
	cfg    *Config
	logger *slog.Logger
	out    io.Writer
}

// command runs one subcommand against a connected device.
type command func(ctx context.Context, dev *p100.Device, args []string) error

// dispatch runs the named subcommand.
func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	// Commands that do not need a device connection.
	switch name {
	case "ports":
		return a.runPorts(args)
	case "media":
		return a.runMedia(ctx, args)
	case "help":
		printUsage(a.out)
		return nil
	}

	commands := map[string]command{
		"on":      a.runPowerOn,
		"off":     a.runPowerOff,
		"toggle":  a.runToggle,
		"status":  a.runStatus,
		"zone2":   a.runZone2,
		"volume":  a.runVolume,
		"mute":    a.runMute,
		"source":  a.runSource,
		"mode":    a.runMode,
		"monitor": a.runMonitor,
		"repl":    a.runREPL,
		"bridge":  a.runBridge,
	}
	fn, ok := commands[name]
	if !ok {
		return usageError("unknown command: %s", name)
	}

	dev, err := a.newDevice(name)
	if err != nil {
		return err
	}
	return dev.Session(ctx, func(dev *p100.Device) error {
		return fn(ctx, dev, args)
	})
}

// newDevice builds a Device from the configuration. The monitor and the
// bridge default to status feedback so they see pushes; one-shot commands
// default to minimal feedback.
func (a *app) newDevice(name string) (*p100.Device, error) {
	feedback, err := a.cfg.feedbackLevel()
	if err != nil {
		return nil, err
	}
	if feedback == nil {
		level := p100protocol.FeedbackMinimal
		switch name {
		case "monitor", "bridge", "repl":
			level = p100protocol.FeedbackStatus
		}
		feedback = &level
	}

	opts := p100.Options{
		FeedbackLevel: feedback,
		Timeout:       a.cfg.timeout(),
		Logger:        a.logger,
	}
	if name == "bridge" {
		policy := p100.DefaultReconnectPolicy
		opts.AutoReconnect = &policy
	}

	switch {
	case a.cfg.Device.Serial != "":
		return p100.NewSerial(a.cfg.Device.Serial, a.cfg.Device.Baud, opts), nil
	case a.cfg.Device.Host != "":
		return p100.NewTCP(a.cfg.Device.Host, a.cfg.Device.Port, opts), nil
	default:
		return nil, usageError("no device: use --host or --serial, or set device.host in the config file")
	}
}

// =============================================================================
// Power
// =============================================================================

func (a *app) runPowerOn(ctx context.Context, dev *p100.Device, _ []string) error {
	if err := dev.Power.On(ctx, p100.ZoneMain); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Main zone: ON")
	return nil
}

func (a *app) runPowerOff(ctx context.Context, dev *p100.Device, _ []string) error {
	if err := dev.Power.Off(ctx, p100.ZoneMain); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Main zone: OFF")
	return nil
}

func (a *app) runToggle(ctx context.Context, dev *p100.Device, _ []string) error {
	state, err := dev.Power.Toggle(ctx, p100.ZoneMain)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Main zone: %s\n", state)
	return nil
}

func (a *app) runStatus(ctx context.Context, dev *p100.Device, _ []string) error {
	st, err := dev.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, st.String())
	return nil
}

func (a *app) runZone2(ctx context.Context, dev *p100.Device, args []string) error {
	action := "status"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "on":
		if err := dev.Power.On(ctx, p100.Zone2); err != nil {
			return err
		}
	case "off":
		if err := dev.Power.Off(ctx, p100.Zone2); err != nil {
			return err
		}
	case "status":
	default:
		return usageError("zone2 expects on, off or status, got %q", action)
	}
	state, err := dev.Power.State(ctx, p100.Zone2)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Zone 2: %s\n", state)
	return nil
}

// =============================================================================
// Volume and Mute
// =============================================================================

func (a *app) runVolume(ctx context.Context, dev *p100.Device, args []string) error {
	action := "get"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	switch action {
	case "get":
	case "set":
		if len(args) != 1 {
			return usageError("volume set expects a level in dB")
		}
		db, err := parseDB(args[0])
		if err != nil {
			return err
		}
		if err := dev.Volume.Set(ctx, p100.ZoneMain, db); err != nil {
			return err
		}
	case "up", "down":
		step := p100.DefaultVolumeStep
		if len(args) > 0 {
			var err error
			if step, err = parseDB(args[0]); err != nil {
				return err
			}
		}
		var err error
		if action == "up" {
			err = dev.Volume.Up(ctx, p100.ZoneMain, step)
		} else {
			err = dev.Volume.Down(ctx, p100.ZoneMain, step)
		}
		if err != nil {
			return err
		}
	default:
		return usageError("volume expects get, set, up or down, got %q", action)
	}

	db, err := dev.Volume.Get(ctx, p100.ZoneMain)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Volume: %.1f dB\n", db)
	return nil
}

func parseDB(s string) (float64, error) {
	db, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, usageError("not a dB value: %q", s)
	}
	return db, nil
}

func (a *app) runMute(ctx context.Context, dev *p100.Device, args []string) error {
	action := "toggle"
	if len(args) > 0 {
		action = args[0]
	}

	var err error
	switch action {
	case "on":
		err = dev.Volume.Mute(ctx, p100.ZoneMain)
	case "off":
		err = dev.Volume.Unmute(ctx, p100.ZoneMain)
	case "toggle":
		err = dev.Volume.ToggleMute(ctx, p100.ZoneMain)
	case "status":
	default:
		return usageError("mute expects on, off, toggle or status, got %q", action)
	}
	if err != nil {
		return err
	}

	muted, err := dev.Volume.IsMuted(ctx, p100.ZoneMain)
	if err != nil {
		return err
	}
	if muted {
		fmt.Fprintln(a.out, "Muted")
	} else {
		fmt.Fprintln(a.out, "Not muted")
	}
	return nil
}

// =============================================================================
// Sources and Audio Modes
// =============================================================================

func (a *app) runSource(ctx context.Context, dev *p100.Device, args []string) error {
	action := "current"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	switch action {
	case "list":
		sources, err := dev.Sources.List(ctx, true)
		if err != nil {
			return err
		}
		current, _ := dev.Sources.Current(ctx)
		for _, s := range sources {
			fmt.Fprintln(a.out, listEntry(s.Index, s.Name, s.Index == current.Index))
		}
		return nil
	case "current":
	case "select":
		if len(args) == 0 {
			return usageError("source select expects an index or a name")
		}
		if err := selectIndexOrName(ctx, strings.Join(args, " "), dev.Sources.Select, func(ctx context.Context, name string) error {
			_, err := dev.Sources.SelectByName(ctx, name)
			return err
		}); err != nil {
			return err
		}
	case "next":
		if _, err := dev.Sources.Next(ctx); err != nil {
			return err
		}
	case "prev", "previous":
		if _, err := dev.Sources.Previous(ctx); err != nil {
			return err
		}
	default:
		return usageError("source expects list, current, select, next or prev, got %q", action)
	}

	current, err := dev.Sources.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Source: %s\n", current)
	return nil
}

func (a *app) runMode(ctx context.Context, dev *p100.Device, args []string) error {
	action := "current"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	switch action {
	case "list":
		modes, err := dev.AudioMode.List(ctx, true)
		if err != nil {
			return err
		}
		current, _ := dev.AudioMode.Current(ctx)
		for _, m := range modes {
			fmt.Fprintln(a.out, listEntry(m.Index, m.Name, m.Index == current.Index))
		}
		return nil
	case "type":
		typ, err := dev.AudioMode.AudioType(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Audio: %s\n", typ)
		return nil
	case "current":
	case "select":
		if len(args) == 0 {
			return usageError("mode select expects an index or a name")
		}
		if err := selectIndexOrName(ctx, strings.Join(args, " "), dev.AudioMode.Select, func(ctx context.Context, name string) error {
			_, err := dev.AudioMode.SelectByName(ctx, name)
			return err
		}); err != nil {
			return err
		}
	case "next":
		if err := dev.AudioMode.Next(ctx); err != nil {
			return err
		}
	case "prev", "previous":
		if err := dev.AudioMode.Previous(ctx); err != nil {
			return err
		}
	default:
		return usageError("mode expects list, current, select, next, prev or type, got %q", action)
	}

	current, err := dev.AudioMode.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Mode: %s\n", current)
	return nil
}

// selectIndexOrName selects by index when arg is a number, by name otherwise.
func selectIndexOrName(ctx context.Context, arg string,
	byIndex func(context.Context, int) error,
	byName func(context.Context, string) error) error {
	if n, err := strconv.Atoi(arg); err == nil {
		return byIndex(ctx, n)
	}
	return byName(ctx, arg)
}

func listEntry(index int, name string, current bool) string {
	marker := " "
	if current {
		marker = "*"
	}
	return fmt.Sprintf("%s %2d  %s", marker, index, name)
}
