package p100protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// replyRegex matches <prefix><TOKEN>(<value>) with an optional "<text>".
var replyRegex = regexp.MustCompile(`^!(\w+)\(([^)]*)\)(?:"([^"]*)")?$`)

// Response tokens.
const (
	TokenPower        = "POWER"
	TokenPowerZone2   = "POWERZONE2"
	TokenVolume       = "VOL"
	TokenVolumeZone2  = "ZVOL"
	TokenMute         = "MUTE"
	TokenMuteZone2    = "ZMUTE"
	TokenSource       = "SRC"
	TokenSourceCount  = "SRCCOUNT"
	TokenAudioMode    = "AUDMODE"
	TokenAudioModeCnt = "AUDMODECOUNT"
	TokenAudioType    = "AUDTYPE"
	TokenFeedback     = "VERB"
)

var (
	powerTokens  = [2]string{TokenPower, TokenPowerZone2}
	volumeTokens = [2]string{TokenVolume, TokenVolumeZone2}
	muteTokens   = [2]string{TokenMute, TokenMuteZone2}
)

// ParseReply splits a single response line into its grammar parts.
func ParseReply(line string) (Reply, error) {
	trimmed := strings.TrimSpace(line)
	match := replyRegex.FindStringSubmatchIndex(trimmed)
	if match == nil {
		return Reply{}, newMalformedError(trimmed)
	}
	r := Reply{
		Token: trimmed[match[2]:match[3]],
		Value: trimmed[match[4]:match[5]],
		Raw:   trimmed,
	}
	if match[6] >= 0 {
		r.Text = trimmed[match[6]:match[7]]
		r.HasText = true
	}
	return r, nil
}

func parseToken(line, token string) (Reply, error) {
	r, err := ParseReply(line)
	if err != nil {
		return Reply{}, err
	}
	if r.Token != token {
		return Reply{}, newUnexpectedTokenError(r.Raw, token)
	}
	return r, nil
}

func zoneToken(tokens [2]string, zone Zone) (string, error) {
	if !zone.valid() {
		return "", newInvalidParameterError("zone", zone, "must be MAIN or ZONE2")
	}
	return tokens[zone], nil
}

func parseInt(r Reply) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.Value))
	if err != nil {
		return 0, newInvalidValueError(r.Raw, "not an integer")
	}
	return n, nil
}

func parseFlag(r Reply) (bool, error) {
	switch strings.TrimSpace(r.Value) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, newInvalidValueError(r.Raw, "want 0 or 1")
	}
}

// ParsePower parses !POWER(n) or !POWERZONE2(n).
func ParsePower(zone Zone, line string) (PowerState, error) {
	token, err := zoneToken(powerTokens, zone)
	if err != nil {
		return PowerOff, err
	}
	r, err := parseToken(line, token)
	if err != nil {
		return PowerOff, err
	}
	on, err := parseFlag(r)
	if err != nil {
		return PowerOff, err
	}
	if on {
		return PowerOn, nil
	}
	return PowerOff, nil
}

// ParseVolumeDecidB parses !VOL(n) or !ZVOL(n) into decidecibels.
func ParseVolumeDecidB(zone Zone, line string) (int, error) {
	token, err := zoneToken(volumeTokens, zone)
	if err != nil {
		return 0, err
	}
	r, err := parseToken(line, token)
	if err != nil {
		return 0, err
	}
	return parseInt(r)
}

// ParseVolume parses !VOL(n) or !ZVOL(n) into dB with one decimal digit.
func ParseVolume(zone Zone, line string) (float64, error) {
	decidB, err := ParseVolumeDecidB(zone, line)
	if err != nil {
		return 0, err
	}
	return DecidBToDB(decidB), nil
}

// ParseMute parses !MUTE(n) or !ZMUTE(n).
func ParseMute(zone Zone, line string) (bool, error) {
	token, err := zoneToken(muteTokens, zone)
	if err != nil {
		return false, err
	}
	r, err := parseToken(line, token)
	if err != nil {
		return false, err
	}
	return parseFlag(r)
}

// ParseSource parses !SRC(n) with an optional "name".
func ParseSource(line string) (Source, error) {
	r, err := parseToken(line, TokenSource)
	if err != nil {
		return Source{}, err
	}
	index, err := parseIndex(r)
	if err != nil {
		return Source{}, err
	}
	return Source{Index: index, Name: r.Text}, nil
}

// ParseSourceIndex parses the index of a !SRC(n) reply.
func ParseSourceIndex(line string) (int, error) {
	s, err := ParseSource(line)
	if err != nil {
		return 0, err
	}
	return s.Index, nil
}

// ParseSourceList parses a joined !SRCCOUNT(n) + n × !SRC(i)"name" block.
func ParseSourceList(block string) ([]Source, error) {
	entries, err := parseList(block, TokenSourceCount, TokenSource)
	if err != nil {
		return nil, err
	}
	sources := make([]Source, len(entries))
	for i, e := range entries {
		sources[i] = Source{Index: e.index, Name: e.name}
	}
	return sources, nil
}

// ParseAudioMode parses !AUDMODE(n) with an optional "name".
func ParseAudioMode(line string) (AudioMode, error) {
	r, err := parseToken(line, TokenAudioMode)
	if err != nil {
		return AudioMode{}, err
	}
	index, err := parseIndex(r)
	if err != nil {
		return AudioMode{}, err
	}
	return AudioMode{Index: index, Name: r.Text}, nil
}

// ParseAudioModeList parses a joined !AUDMODECOUNT(n) + n × !AUDMODE(i)"name" block.
func ParseAudioModeList(block string) ([]AudioMode, error) {
	entries, err := parseList(block, TokenAudioModeCnt, TokenAudioMode)
	if err != nil {
		return nil, err
	}
	modes := make([]AudioMode, len(entries))
	for i, e := range entries {
		modes[i] = AudioMode{Index: e.index, Name: e.name}
	}
	return modes, nil
}

// ParseAudioType parses !AUDTYPE(...) and returns the quoted description,
// or the parenthesized value when the device sends no quoted text.
func ParseAudioType(line string) (string, error) {
	r, err := parseToken(line, TokenAudioType)
	if err != nil {
		return "", err
	}
	if r.HasText {
		return r.Text, nil
	}
	return strings.Trim(r.Value, `" `), nil
}

// ParseFeedbackLevel parses !VERB(n).
func ParseFeedbackLevel(line string) (FeedbackLevel, error) {
	r, err := parseToken(line, TokenFeedback)
	if err != nil {
		return FeedbackMinimal, err
	}
	n, err := parseInt(r)
	if err != nil {
		return FeedbackMinimal, err
	}
	level := FeedbackLevel(n)
	if !level.valid() {
		return FeedbackMinimal, newInvalidValueError(r.Raw, "want 0, 1 or 2")
	}
	return level, nil
}

func parseIndex(r Reply) (int, error) {
	n, err := parseInt(r)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, newInvalidValueError(r.Raw, "negative index")
	}
	return n, nil
}

// parseCount parses a list header such as !SRCCOUNT(n).
func parseCount(line, token string) (int, error) {
	r, err := parseToken(line, token)
	if err != nil {
		return 0, err
	}
	n, err := parseInt(r)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, newInvalidValueError(r.Raw, "negative count")
	}
	return n, nil
}

type listEntry struct {
	index int
	name  string
}

func parseList(block, countToken, entryToken string) ([]listEntry, error) {
	lines := SplitAggregate(strings.TrimSpace(block))
	if len(lines) == 0 {
		return nil, newMalformedError(block)
	}
	count, err := parseCount(lines[0], countToken)
	if err != nil {
		return nil, err
	}
	if len(lines)-1 != count {
		return nil, newCountMismatchError(block, count, len(lines)-1)
	}

	entries := make([]listEntry, 0, count)
	for _, line := range lines[1:] {
		r, err := parseToken(line, entryToken)
		if err != nil {
			return nil, err
		}
		index, err := parseIndex(r)
		if err != nil {
			return nil, err
		}
		if !r.HasText {
			return nil, newInvalidValueError(r.Raw, "missing name")
		}
		entries = append(entries, listEntry{index: index, name: r.Text})
	}
	return entries, nil
}
