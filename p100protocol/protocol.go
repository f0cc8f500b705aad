package p100protocol

import (
	"fmt"
	"strings"
	"time"
)

// Protocol constants.
const (
	// CommandPrefix is the prefix for commands sent to the device.
	CommandPrefix = "!"

	// ResponsePrefix is the prefix for responses and status pushes from the device.
	ResponsePrefix = "!"

	// EchoPrefix is the prefix for command echoes (feedback level Echo only).
	EchoPrefix = "#"

	// Terminator ends every line in both directions.
	Terminator = "\r"

	// QueryMarker is the trailing character of query commands.
	QueryMarker = "?"

	// DefaultTCPPort is the device's control port.
	DefaultTCPPort = 84

	// DefaultBaudRate is the RS-232 speed of the device (8-N-1, no flow control).
	DefaultBaudRate = 115200

	// MaxLineLength bounds the receive buffer while waiting for a terminator.
	MaxLineLength = 4096

	// DefaultTimeout is the default time to wait for a query response.
	DefaultTimeout = 5 * time.Second

	// ConnectTimeout is the default bound on opening the transport.
	ConnectTimeout = 10 * time.Second

	// DefaultDisconnectGrace bounds how long Disconnect waits for the
	// receive loop to stop after the stream is closed.
	DefaultDisconnectGrace = 2 * time.Second
)

// Volume limits in decidecibels (tenths of a dB).
const (
	MinVolumeDecidB = -999
	MaxVolumeDecidB = 240
)

// Volume limits in dB.
const (
	MinVolumeDB = -99.9
	MaxVolumeDB = 24.0
)

// Zone identifies an independently controlled output.
type Zone int

const (
	// ZoneMain is the main zone.
	ZoneMain Zone = iota
	// Zone2 is the second zone.
	Zone2
)

func (z Zone) String() string {
	switch z {
	case ZoneMain:
		return "MAIN"
	case Zone2:
		return "ZONE2"
	default:
		return fmt.Sprintf("Zone(%d)", int(z))
	}
}

func (z Zone) valid() bool {
	return z == ZoneMain || z == Zone2
}

// PowerState is the power state of a zone.
type PowerState int

const (
	PowerOff PowerState = 0
	PowerOn  PowerState = 1
)

func (p PowerState) String() string {
	if p == PowerOn {
		return "ON"
	}
	return "OFF"
}

// FeedbackLevel controls how much unsolicited traffic the device emits.
type FeedbackLevel int

const (
	// FeedbackMinimal only answers queries.
	FeedbackMinimal FeedbackLevel = 0
	// FeedbackStatus adds automatic status pushes.
	FeedbackStatus FeedbackLevel = 1
	// FeedbackEcho adds command echoes on top of status pushes.
	FeedbackEcho FeedbackLevel = 2
)

func (f FeedbackLevel) String() string {
	switch f {
	case FeedbackMinimal:
		return "MINIMAL"
	case FeedbackStatus:
		return "STATUS"
	case FeedbackEcho:
		return "ECHO"
	default:
		return fmt.Sprintf("FeedbackLevel(%d)", int(f))
	}
}

func (f FeedbackLevel) valid() bool {
	return f >= FeedbackMinimal && f <= FeedbackEcho
}

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Direction tags a monitored line.
type Direction string

const (
	DirectionTX Direction = "TX"
	DirectionRX Direction = "RX"
)

// LineKind classifies a received line by its leading character.
type LineKind int

const (
	LineUnrecognized LineKind = iota
	LineResponse
	LineEcho
)

// ClassifyLine returns the kind of a received, already trimmed line.
func ClassifyLine(line string) LineKind {
	switch {
	case strings.HasPrefix(line, ResponsePrefix):
		return LineResponse
	case strings.HasPrefix(line, EchoPrefix):
		return LineEcho
	default:
		return LineUnrecognized
	}
}

// IsQuery reports whether a command string is a query.
func IsQuery(command string) bool {
	return strings.HasSuffix(command, QueryMarker)
}

// FrameCommand returns the wire form of a command.
func FrameCommand(command string) string {
	return CommandPrefix + command + Terminator
}
