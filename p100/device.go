// Package p100 is a high-level client for the Steinway Lyngdorf P100.
//
// A Device wraps a p100protocol.Connection and groups the typed controls by
// concern:
//
//	dev := p100.NewTCP("192.168.1.20", 0, p100.Options{})
//	err := dev.Session(ctx, func(dev *p100.Device) error {
//	    if err := dev.Power.On(ctx, p100.ZoneMain); err != nil {
//	        return err
//	    }
//	    return dev.Volume.Set(ctx, p100.ZoneMain, -35)
//	})
package p100

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// Re-exported protocol types used throughout the facade.
type (
	Zone          = p100protocol.Zone
	PowerState    = p100protocol.PowerState
	FeedbackLevel = p100protocol.FeedbackLevel
	Source        = p100protocol.Source
	AudioMode     = p100protocol.AudioMode
	Reply         = p100protocol.Reply
)

const (
	ZoneMain = p100protocol.ZoneMain
	Zone2    = p100protocol.Zone2
)

// Options configures a Device. The zero value is usable.
type Options struct {
	// FeedbackLevel is sent to the device on every connect.
	// Defaults to FeedbackStatus.
	FeedbackLevel *FeedbackLevel

	// Timeout bounds each query. Defaults to p100protocol.DefaultTimeout.
	Timeout time.Duration

	// Logger receives structured logs. Defaults to a discard logger.
	Logger *slog.Logger

	// AutoReconnect, when set, makes the device reconnect with this policy
	// after the connection is lost.
	AutoReconnect *ReconnectPolicy
}

// Device is a P100 with its typed controls.
type Device struct {
	conn    *p100protocol.Connection
	logger  *slog.Logger
	timeout time.Duration

	Power     *PowerControl
	Volume    *VolumeControl
	Sources   *SourceControl
	AudioMode *AudioModeControl

	mu              sync.Mutex
	autoReconnect   *ReconnectPolicy
	reconnectCancel context.CancelFunc
	statusHandler   p100protocol.StatusHandler
}

// New creates a Device that reaches the hardware through opener.
func New(opener p100protocol.Opener, opts Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	feedback := p100protocol.FeedbackStatus
	if opts.FeedbackLevel != nil {
		feedback = *opts.FeedbackLevel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p100protocol.DefaultTimeout
	}

	d := &Device{
		conn:          p100protocol.NewConnection(opener),
		logger:        logger.With("device", opener.String()),
		timeout:       timeout,
		autoReconnect: opts.AutoReconnect,
	}
	d.conn.SetLogger(logger)
	if err := d.conn.SetFeedbackLevel(feedback); err != nil {
		d.logger.Warn("ignoring feedback level option", "error", err)
	}
	d.conn.SetDisconnectHandler(d.onConnectionLost)
	d.conn.SetStatusHandler(d.onStatus)

	d.Power = &PowerControl{dev: d}
	d.Volume = &VolumeControl{dev: d}
	d.Sources = &SourceControl{dev: d}
	d.AudioMode = &AudioModeControl{dev: d}
	return d
}

// NewTCP creates a Device reached over TCP. Port 0 means DefaultTCPPort.
func NewTCP(host string, port int, opts Options) *Device {
	return New(p100protocol.NewTCPOpener(host, port), opts)
}

// NewSerial creates a Device reached over RS-232. Baud 0 means DefaultBaudRate.
func NewSerial(port string, baudRate int, opts Options) *Device {
	return New(p100protocol.NewSerialOpener(port, baudRate), opts)
}

// Conn returns the underlying connection, for raw commands and monitoring.
func (d *Device) Conn() *p100protocol.Connection {
	return d.conn
}

// Target describes the device endpoint.
func (d *Device) Target() string {
	return d.conn.Target()
}

// IsConnected returns true if the device is ready for commands.
func (d *Device) IsConnected() bool {
	return d.conn.IsConnected()
}

// SetStatusHandler sets the callback for unsolicited status pushes.
func (d *Device) SetStatusHandler(handler p100protocol.StatusHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusHandler = handler
}

// SetMonitor installs a monitor tap on the connection.
func (d *Device) SetMonitor(fn p100protocol.MonitorFunc) {
	d.conn.SetMonitor(fn)
}

// Connect opens the connection and sets the feedback level. The device is
// not reported ready until the feedback level command has been written.
func (d *Device) Connect(ctx context.Context) error {
	if err := d.conn.Connect(ctx); err != nil {
		return err
	}

	level := d.conn.FeedbackLevel()
	if err := d.sendFeedbackLevel(ctx, level); err != nil {
		d.conn.Disconnect()
		return fmt.Errorf("feedback level handshake: %w", err)
	}
	d.logger.Info("device ready", "feedback", level)
	return nil
}

// Disconnect closes the connection and stops any automatic reconnect.
// It is safe to call more than once.
func (d *Device) Disconnect() {
	d.mu.Lock()
	if d.reconnectCancel != nil {
		d.reconnectCancel()
		d.reconnectCancel = nil
	}
	d.mu.Unlock()
	d.conn.Disconnect()
}

// Session connects, runs fn and disconnects on every exit path, including
// errors and panics from fn.
func (d *Device) Session(ctx context.Context, fn func(*Device) error) error {
	if err := d.Connect(ctx); err != nil {
		return err
	}
	defer d.Disconnect()
	return fn(d)
}

// SetFeedbackLevel changes the feedback level. When connected it is sent
// to the device immediately; otherwise it is used on the next connect.
func (d *Device) SetFeedbackLevel(ctx context.Context, level FeedbackLevel) error {
	if err := d.conn.SetFeedbackLevel(level); err != nil {
		return err
	}
	if !d.conn.IsConnected() {
		return nil
	}
	return d.sendFeedbackLevel(ctx, level)
}

// FeedbackLevel returns the configured feedback level.
func (d *Device) FeedbackLevel() FeedbackLevel {
	return d.conn.FeedbackLevel()
}

// QueryFeedbackLevel asks the device for its current feedback level.
func (d *Device) QueryFeedbackLevel(ctx context.Context) (FeedbackLevel, error) {
	resp, err := d.query(ctx, p100protocol.NewFeedbackQueryCommand())
	if err != nil {
		return 0, err
	}
	return p100protocol.ParseFeedbackLevel(resp)
}

func (d *Device) sendFeedbackLevel(ctx context.Context, level FeedbackLevel) error {
	cmd, err := p100protocol.NewFeedbackLevelCommand(level)
	if err != nil {
		return err
	}
	return d.send(ctx, cmd)
}

// SendRaw sends an arbitrary command string and returns the response for
// queries.
func (d *Device) SendRaw(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.conn.SendRawWithContext(ctx, command)
}

// query sends a query bounded by the device timeout.
func (d *Device) query(ctx context.Context, cmd p100protocol.Command) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.conn.SendWithContext(ctx, cmd)
}

// send writes a command that has no response.
func (d *Device) send(ctx context.Context, cmd p100protocol.Command) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.conn.SendWithContext(ctx, cmd)
	return err
}

func (d *Device) onStatus(reply Reply) {
	d.mu.Lock()
	handler := d.statusHandler
	d.mu.Unlock()

	d.logger.Debug("status push", "token", reply.Token, "value", reply.Value)
	if handler != nil {
		handler(reply)
	}
}

func (d *Device) onConnectionLost(err error) {
	d.logger.Warn("connection lost", "error", err)

	d.mu.Lock()
	policy := d.autoReconnect
	if policy == nil || d.reconnectCancel != nil {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.reconnectCancel = cancel
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			d.reconnectCancel = nil
			d.mu.Unlock()
			cancel()
		}()
		if err := d.Reconnect(ctx, *policy); err != nil {
			d.logger.Error("automatic reconnect failed", "error", err)
		}
	}()
}
