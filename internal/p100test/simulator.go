package p100test

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Simulator is a stateful Handler modelled on a P100 with two zones.
//
// At feedback level 1 and above it follows every state change with a
// status push; at level 2 it also echoes each command with "#".
type Simulator struct {
	mu sync.Mutex

	Power     [2]bool
	Volume    [2]int // decidecibels
	Mute      [2]bool
	Source    int
	Sources   []string
	Mode      int
	Modes     []string
	AudioType string
	Feedback  int
}

// NewSimulator returns a simulator with the main zone on at -30.0 dB.
func NewSimulator() *Simulator {
	return &Simulator{
		Power:     [2]bool{true, false},
		Volume:    [2]int{-300, -400},
		Sources:   []string{"DVD player", "Blu-ray player", "Streaming", "TV"},
		Modes:     []string{"Bypass", "Dolby Upmixer", "Neural:X", "Lyngdorf"},
		AudioType: "Dolby Digital 5.1",
		Feedback:  1,
	}
}

var (
	powerTokens  = [2]string{"POWER", "POWERZONE2"}
	volumeTokens = [2]string{"VOL", "ZVOL"}
	muteTokens   = [2]string{"MUTE", "ZMUTE"}
)

// Handle implements Handler.
func (s *Simulator) Handle(cmd string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	if s.Feedback >= 2 {
		out = append(out, "#"+cmd)
	}
	reply, push := s.apply(cmd)
	out = append(out, reply...)
	if s.Feedback >= 1 {
		out = append(out, push...)
	}
	return out
}

// apply executes cmd and returns its query reply and any status push.
func (s *Simulator) apply(cmd string) (reply, push []string) {
	switch cmd {
	case "POWER?":
		return []string{s.power(0)}, nil
	case "POWERZONE2?":
		return []string{s.power(1)}, nil
	case "POWERONMAIN", "POWEROFFMAIN":
		s.Power[0] = cmd == "POWERONMAIN"
		return nil, []string{s.power(0)}
	case "POWERONZONE2", "POWEROFFZONE2":
		s.Power[1] = cmd == "POWERONZONE2"
		return nil, []string{s.power(1)}
	case "VOL?":
		return []string{s.volume(0)}, nil
	case "ZVOL?":
		return []string{s.volume(1)}, nil
	case "MUTE?":
		return []string{s.mute(0)}, nil
	case "ZMUTE?":
		return []string{s.mute(1)}, nil
	case "MUTEON", "MUTEOFF", "MUTE":
		s.Mute[0] = cmd == "MUTEON" || (cmd == "MUTE" && !s.Mute[0])
		return nil, []string{s.mute(0)}
	case "ZMUTEON", "ZMUTEOFF", "ZMUTE":
		s.Mute[1] = cmd == "ZMUTEON" || (cmd == "ZMUTE" && !s.Mute[1])
		return nil, []string{s.mute(1)}
	case "SRC?":
		return []string{s.source()}, nil
	case "SRCS?":
		return list("SRCCOUNT", "SRC", s.Sources), nil
	case "AUDMODE?":
		return []string{s.mode()}, nil
	case "AUDMODEL?":
		return list("AUDMODECOUNT", "AUDMODE", s.Modes), nil
	case "AUDMODE+":
		s.Mode = (s.Mode + 1) % len(s.Modes)
		return nil, []string{s.mode()}
	case "AUDMODE-":
		s.Mode = (s.Mode + len(s.Modes) - 1) % len(s.Modes)
		return nil, []string{s.mode()}
	case "AUDTYPE?":
		return []string{fmt.Sprintf("!AUDTYPE(0)%q", s.AudioType)}, nil
	case "VERB?":
		return []string{fmt.Sprintf("!VERB(%d)", s.Feedback)}, nil
	}

	for zone, token := range volumeTokens {
		if n, ok := arg(cmd, token); ok {
			s.Volume[zone] = clamp(n)
			return nil, []string{s.volume(zone)}
		}
		for _, dir := range []int{1, -1} {
			stepToken := token + "+"
			if dir < 0 {
				stepToken = token + "-"
			}
			step := 5
			if cmd == stepToken {
				s.Volume[zone] = clamp(s.Volume[zone] + dir*step)
				return nil, []string{s.volume(zone)}
			}
			if n, ok := arg(cmd, stepToken); ok {
				s.Volume[zone] = clamp(s.Volume[zone] + dir*n)
				return nil, []string{s.volume(zone)}
			}
		}
	}
	if n, ok := arg(cmd, "SRC"); ok && n >= 0 && n < len(s.Sources) {
		s.Source = n
		return nil, []string{s.source()}
	}
	if n, ok := arg(cmd, "AUDMODE"); ok && n >= 0 && n < len(s.Modes) {
		s.Mode = n
		return nil, []string{s.mode()}
	}
	if n, ok := arg(cmd, "VERB"); ok && n >= 0 && n <= 2 {
		s.Feedback = n
		return nil, nil
	}
	return nil, nil
}

func (s *Simulator) power(zone int) string {
	return fmt.Sprintf("!%s(%d)", powerTokens[zone], b2i(s.Power[zone]))
}

func (s *Simulator) volume(zone int) string {
	return fmt.Sprintf("!%s(%d)", volumeTokens[zone], s.Volume[zone])
}

func (s *Simulator) mute(zone int) string {
	return fmt.Sprintf("!%s(%d)", muteTokens[zone], b2i(s.Mute[zone]))
}

func (s *Simulator) source() string {
	return fmt.Sprintf("!SRC(%d)%q", s.Source, s.Sources[s.Source])
}

func (s *Simulator) mode() string {
	return fmt.Sprintf("!AUDMODE(%d)%q", s.Mode, s.Modes[s.Mode])
}

func list(countToken, entryToken string, names []string) []string {
	out := []string{fmt.Sprintf("!%s(%d)", countToken, len(names))}
	for i, name := range names {
		out = append(out, fmt.Sprintf("!%s(%d)%q", entryToken, i, name))
	}
	return out
}

// arg parses "TOKEN(n)" and returns n.
func arg(cmd, token string) (int, bool) {
	if !strings.HasPrefix(cmd, token+"(") || !strings.HasSuffix(cmd, ")") {
		return 0, false
	}
	n, err := strconv.Atoi(cmd[len(token)+1 : len(cmd)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func clamp(n int) int {
	return max(-999, min(240, n))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
