package p100protocol

import (
	"fmt"
	"math"
)

// CommandType represents the type of device command.
type CommandType int

const (
	// Power
	CmdPowerOn CommandType = iota
	CmdPowerOff
	CmdPowerQuery

	// Volume
	CmdVolumeSet
	CmdVolumeUp
	CmdVolumeDown
	CmdVolumeQuery

	// Mute
	CmdMuteOn
	CmdMuteOff
	CmdMuteToggle
	CmdMuteQuery

	// Source
	CmdSourceSelect
	CmdSourceQuery
	CmdSourceListQuery

	// Audio processing mode
	CmdAudioModeSelect
	CmdAudioModeNext
	CmdAudioModePrevious
	CmdAudioModeQuery
	CmdAudioModeListQuery
	CmdAudioTypeQuery

	// Feedback
	CmdFeedbackLevel
	CmdFeedbackQuery
)

// zoneTokens maps every zone-qualified command to its token for each zone,
// indexed by Zone.
var zoneTokens = map[CommandType][2]string{
	CmdPowerOn:     {"POWERONMAIN", "POWERONZONE2"},
	CmdPowerOff:    {"POWEROFFMAIN", "POWEROFFZONE2"},
	CmdPowerQuery:  {"POWER?", "POWERZONE2?"},
	CmdVolumeSet:   {"VOL", "ZVOL"},
	CmdVolumeUp:    {"VOL+", "ZVOL+"},
	CmdVolumeDown:  {"VOL-", "ZVOL-"},
	CmdVolumeQuery: {"VOL?", "ZVOL?"},
	CmdMuteOn:      {"MUTEON", "ZMUTEON"},
	CmdMuteOff:     {"MUTEOFF", "ZMUTEOFF"},
	CmdMuteToggle:  {"MUTE", "ZMUTE"},
	CmdMuteQuery:   {"MUTE?", "ZMUTE?"},
}

// Command represents a device command with its parameters.
// Use the constructor functions (NewPowerOnCommand, NewVolumeSetCommand,
// etc.) to create Command instances.
type Command struct {
	Type CommandType

	Zone    Zone          // For power, volume and mute
	DecidB  int           // For volume set, or the step of volume up/down
	StepSet bool          // Whether volume up/down carries an explicit step
	Index   int           // For source and audio mode select
	Level   FeedbackLevel // For feedback level
}

// DBToDecidB converts a dB value to the protocol's decidecibel integer,
// rejecting values outside [MinVolumeDB, MaxVolumeDB].
func DBToDecidB(db float64) (int, error) {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return 0, newInvalidParameterError("volume", db, "not a number")
	}
	if db < MinVolumeDB || db > MaxVolumeDB {
		return 0, newInvalidParameterError("volume", db,
			fmt.Sprintf("out of range (%.1f to %.1f dB)", MinVolumeDB, MaxVolumeDB))
	}
	return int(math.Round(db * 10)), nil
}

// DecidBToDB converts a decidecibel integer to dB.
func DecidBToDB(decidB int) float64 {
	return float64(decidB) / 10
}

// NewPowerOnCommand creates a power on command for the zone.
func NewPowerOnCommand(zone Zone) Command {
	return Command{Type: CmdPowerOn, Zone: zone}
}

// NewPowerOffCommand creates a power off command for the zone.
func NewPowerOffCommand(zone Zone) Command {
	return Command{Type: CmdPowerOff, Zone: zone}
}

// NewPowerQueryCommand creates a power status query for the zone.
func NewPowerQueryCommand(zone Zone) Command {
	return Command{Type: CmdPowerQuery, Zone: zone}
}

// NewVolumeSetCommand creates a command setting the zone volume in dB.
// The value is validated against the representable range here, before
// anything is written to the device.
func NewVolumeSetCommand(zone Zone, db float64) (Command, error) {
	decidB, err := DBToDecidB(db)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: CmdVolumeSet, Zone: zone, DecidB: decidB}, nil
}

// NewVolumeUpCommand creates a volume up command. A zero step uses the
// device's default step.
func NewVolumeUpCommand(zone Zone, stepDB float64) (Command, error) {
	return newVolumeStepCommand(CmdVolumeUp, zone, stepDB)
}

// NewVolumeDownCommand creates a volume down command. A zero step uses the
// device's default step.
func NewVolumeDownCommand(zone Zone, stepDB float64) (Command, error) {
	return newVolumeStepCommand(CmdVolumeDown, zone, stepDB)
}

func newVolumeStepCommand(t CommandType, zone Zone, stepDB float64) (Command, error) {
	if stepDB == 0 {
		return Command{Type: t, Zone: zone}, nil
	}
	if math.IsNaN(stepDB) || stepDB < 0 {
		return Command{}, newInvalidParameterError("volume step", stepDB, "must be positive")
	}
	step := math.Round(stepDB * 10)
	if step < 1 || step > MaxVolumeDecidB-MinVolumeDecidB {
		return Command{}, newInvalidParameterError("volume step", stepDB, "out of range")
	}
	return Command{Type: t, Zone: zone, DecidB: int(step), StepSet: true}, nil
}

// NewVolumeQueryCommand creates a volume query for the zone.
func NewVolumeQueryCommand(zone Zone) Command {
	return Command{Type: CmdVolumeQuery, Zone: zone}
}

// NewMuteOnCommand creates a mute command for the zone.
func NewMuteOnCommand(zone Zone) Command {
	return Command{Type: CmdMuteOn, Zone: zone}
}

// NewMuteOffCommand creates an unmute command for the zone.
func NewMuteOffCommand(zone Zone) Command {
	return Command{Type: CmdMuteOff, Zone: zone}
}

// NewMuteToggleCommand creates a mute toggle command for the zone.
func NewMuteToggleCommand(zone Zone) Command {
	return Command{Type: CmdMuteToggle, Zone: zone}
}

// NewMuteQueryCommand creates a mute status query for the zone.
func NewMuteQueryCommand(zone Zone) Command {
	return Command{Type: CmdMuteQuery, Zone: zone}
}

// NewSourceSelectCommand creates a command selecting a source by index.
func NewSourceSelectCommand(index int) (Command, error) {
	if index < 0 {
		return Command{}, newInvalidParameterError("source index", index, "must not be negative")
	}
	return Command{Type: CmdSourceSelect, Index: index}, nil
}

// NewSourceQueryCommand creates a current source query.
func NewSourceQueryCommand() Command {
	return Command{Type: CmdSourceQuery}
}

// NewSourceListQueryCommand creates a query for the full source list.
func NewSourceListQueryCommand() Command {
	return Command{Type: CmdSourceListQuery}
}

// NewAudioModeSelectCommand creates a command selecting an audio mode by index.
func NewAudioModeSelectCommand(index int) (Command, error) {
	if index < 0 {
		return Command{}, newInvalidParameterError("audio mode index", index, "must not be negative")
	}
	return Command{Type: CmdAudioModeSelect, Index: index}, nil
}

// NewAudioModeNextCommand selects the next audio mode.
func NewAudioModeNextCommand() Command {
	return Command{Type: CmdAudioModeNext}
}

// NewAudioModePreviousCommand selects the previous audio mode.
func NewAudioModePreviousCommand() Command {
	return Command{Type: CmdAudioModePrevious}
}

// NewAudioModeQueryCommand creates a current audio mode query.
func NewAudioModeQueryCommand() Command {
	return Command{Type: CmdAudioModeQuery}
}

// NewAudioModeListQueryCommand creates a query for the full audio mode list.
func NewAudioModeListQueryCommand() Command {
	return Command{Type: CmdAudioModeListQuery}
}

// NewAudioTypeQueryCommand creates a query for the incoming audio format.
func NewAudioTypeQueryCommand() Command {
	return Command{Type: CmdAudioTypeQuery}
}

// NewFeedbackLevelCommand creates a command setting the feedback level.
func NewFeedbackLevelCommand(level FeedbackLevel) (Command, error) {
	if !level.valid() {
		return Command{}, newInvalidParameterError("feedback level", int(level), "must be 0, 1 or 2")
	}
	return Command{Type: CmdFeedbackLevel, Level: level}, nil
}

// NewFeedbackQueryCommand creates a feedback level query.
func NewFeedbackQueryCommand() Command {
	return Command{Type: CmdFeedbackQuery}
}

// Validate checks the command's parameters. Connection.Send calls it
// before writing anything.
func (c Command) Validate() error {
	if _, ok := zoneTokens[c.Type]; ok && !c.Zone.valid() {
		return newInvalidParameterError("zone", c.Zone, "must be MAIN or ZONE2")
	}
	switch c.Type {
	case CmdVolumeSet:
		if c.DecidB < MinVolumeDecidB || c.DecidB > MaxVolumeDecidB {
			return newInvalidParameterError("volume", DecidBToDB(c.DecidB), "out of range")
		}
	case CmdVolumeUp, CmdVolumeDown:
		if c.StepSet && c.DecidB < 1 {
			return newInvalidParameterError("volume step", DecidBToDB(c.DecidB), "must be positive")
		}
	case CmdSourceSelect, CmdAudioModeSelect:
		if c.Index < 0 {
			return newInvalidParameterError("index", c.Index, "must not be negative")
		}
	case CmdFeedbackLevel:
		if !c.Level.valid() {
			return newInvalidParameterError("feedback level", int(c.Level), "must be 0, 1 or 2")
		}
	}
	return nil
}

// Format returns the command string without prefix or terminator.
func (c Command) Format() string {
	if tokens, ok := zoneTokens[c.Type]; ok {
		if !c.Zone.valid() {
			return ""
		}
		token := tokens[c.Zone]
		switch c.Type {
		case CmdVolumeSet:
			return fmt.Sprintf("%s(%d)", token, c.DecidB)
		case CmdVolumeUp, CmdVolumeDown:
			if c.StepSet {
				return fmt.Sprintf("%s(%d)", token, c.DecidB)
			}
		}
		return token
	}

	switch c.Type {
	case CmdSourceSelect:
		return fmt.Sprintf("SRC(%d)", c.Index)
	case CmdSourceQuery:
		return "SRC?"
	case CmdSourceListQuery:
		return "SRCS?"
	case CmdAudioModeSelect:
		return fmt.Sprintf("AUDMODE(%d)", c.Index)
	case CmdAudioModeNext:
		return "AUDMODE+"
	case CmdAudioModePrevious:
		return "AUDMODE-"
	case CmdAudioModeQuery:
		return "AUDMODE?"
	case CmdAudioModeListQuery:
		return "AUDMODEL?"
	case CmdAudioTypeQuery:
		return "AUDTYPE?"
	case CmdFeedbackLevel:
		return fmt.Sprintf("VERB(%d)", int(c.Level))
	case CmdFeedbackQuery:
		return "VERB?"
	default:
		return ""
	}
}

// IsQuery reports whether the command expects a response.
func (c Command) IsQuery() bool {
	return IsQuery(c.Format())
}

// FormatLine returns the command as a complete protocol line.
func (c Command) FormatLine() string {
	return FrameCommand(c.Format())
}

func (c Command) String() string {
	return c.Format()
}
