package p100protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Reply
		wantErr bool
	}{
		{"power", "!POWER(1)", Reply{Token: "POWER", Value: "1", Raw: "!POWER(1)"}, false},
		{"negative value", "!VOL(-550)", Reply{Token: "VOL", Value: "-550", Raw: "!VOL(-550)"}, false},
		{"with text", `!SRC(0)"DVD player"`,
			Reply{Token: "SRC", Value: "0", Text: "DVD player", HasText: true, Raw: `!SRC(0)"DVD player"`}, false},
		{"empty text", `!SRC(3)""`,
			Reply{Token: "SRC", Value: "3", HasText: true, Raw: `!SRC(3)""`}, false},
		{"digits in token", "!POWERZONE2(0)",
			Reply{Token: "POWERZONE2", Value: "0", Raw: "!POWERZONE2(0)"}, false},
		{"surrounding whitespace", " !MUTE(0)\r\n", Reply{Token: "MUTE", Value: "0", Raw: "!MUTE(0)"}, false},
		{"echo", "#VOL?", Reply{}, true},
		{"no parens", "!POWER", Reply{}, true},
		{"trailing junk", "!POWER(1)x", Reply{}, true},
		{"empty", "", Reply{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.line)
			if tt.wantErr {
				var fe *ResponseFormatError
				if !errors.As(err, &fe) || fe.Kind != ErrKindMalformed {
					t.Fatalf("expected malformed error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Format() != tt.want.Raw {
				t.Errorf("Format: got %q, want %q", got.Format(), tt.want.Raw)
			}
		})
	}
}

func TestParsePower(t *testing.T) {
	tests := []struct {
		name    string
		zone    Zone
		line    string
		want    PowerState
		wantErr bool
	}{
		{"main on", ZoneMain, "!POWER(1)", PowerOn, false},
		{"main off", ZoneMain, "!POWER(0)", PowerOff, false},
		{"zone2 on", Zone2, "!POWERZONE2(1)", PowerOn, false},
		{"zone mismatch", ZoneMain, "!POWERZONE2(1)", PowerOff, true},
		{"bad value", ZoneMain, "!POWER(2)", PowerOff, true},
		{"garbage", ZoneMain, "hello", PowerOff, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePower(tt.zone, tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrResponseFormat) {
					t.Fatalf("expected ErrResponseFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseVolume(t *testing.T) {
	tests := []struct {
		name    string
		zone    Zone
		line    string
		want    float64
		wantErr bool
	}{
		{"main", ZoneMain, "!VOL(-550)", -55.0, false},
		{"zone2", Zone2, "!ZVOL(-123)", -12.3, false},
		{"positive", ZoneMain, "!VOL(240)", 24.0, false},
		{"zero", ZoneMain, "!VOL(0)", 0, false},
		{"wrong zone", Zone2, "!VOL(-550)", 0, true},
		{"not a number", ZoneMain, "!VOL(loud)", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVolume(tt.zone, tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrResponseFormat) {
					t.Fatalf("expected ErrResponseFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseVolumeInvalidZone(t *testing.T) {
	if _, err := ParseVolume(Zone(7), "!VOL(0)"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestParseMute(t *testing.T) {
	tests := []struct {
		zone    Zone
		line    string
		want    bool
		wantErr bool
	}{
		{ZoneMain, "!MUTE(1)", true, false},
		{ZoneMain, "!MUTE(0)", false, false},
		{Zone2, "!ZMUTE(1)", true, false},
		{ZoneMain, "!ZMUTE(1)", false, true},
		{ZoneMain, "!MUTE(yes)", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseMute(tt.zone, tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrResponseFormat) {
					t.Fatalf("expected ErrResponseFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource(`!SRC(2)"Streaming"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != (Source{Index: 2, Name: "Streaming"}) {
		t.Errorf("got %+v", s)
	}
	if s.String() != "2: Streaming" {
		t.Errorf("String: got %q", s.String())
	}

	idx, err := ParseSourceIndex("!SRC(4)")
	if err != nil || idx != 4 {
		t.Errorf("ParseSourceIndex: got %d, %v", idx, err)
	}

	if _, err := ParseSource("!SRC(-1)"); !errors.Is(err, ErrResponseFormat) {
		t.Errorf("expected error for negative index, got %v", err)
	}
	var fe *ResponseFormatError
	if _, err := ParseSource("!VOL(1)"); !errors.As(err, &fe) || fe.Kind != ErrKindUnexpectedToken {
		t.Errorf("expected unexpected token error, got %v", err)
	}
}

func TestParseSourceList(t *testing.T) {
	block := JoinAggregate([]string{
		"!SRCCOUNT(3)",
		`!SRC(0)"DVD player"`,
		`!SRC(1)"Blu-ray player"`,
		`!SRC(2)"Streaming"`,
	})
	got, err := ParseSourceList(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Source{{0, "DVD player"}, {1, "Blu-ray player"}, {2, "Streaming"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	empty, err := ParseSourceList("!SRCCOUNT(0)")
	if err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %+v", empty)
	}
}

func TestParseListErrors(t *testing.T) {
	tests := []struct {
		name  string
		block string
		kind  ResponseFormatErrorKind
	}{
		{"empty", "", ErrKindMalformed},
		{"wrong header", `!SRC(0)"A"`, ErrKindUnexpectedToken},
		{"bad count", "!SRCCOUNT(many)", ErrKindInvalidValue},
		{"negative count", "!SRCCOUNT(-1)", ErrKindInvalidValue},
		{"too few", "!SRCCOUNT(2)\n!SRC(0)\"A\"", ErrKindCountMismatch},
		{"too many", "!SRCCOUNT(1)\n!SRC(0)\"A\"\n!SRC(1)\"B\"", ErrKindCountMismatch},
		{"missing name", "!SRCCOUNT(1)\n!SRC(0)", ErrKindInvalidValue},
		{"foreign entry", "!SRCCOUNT(1)\n!AUDMODE(0)\"A\"", ErrKindUnexpectedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSourceList(tt.block)
			var fe *ResponseFormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected ResponseFormatError, got %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("got kind %d, want %d (%v)", fe.Kind, tt.kind, err)
			}
		})
	}
}

func TestParseAudioMode(t *testing.T) {
	m, err := ParseAudioMode(`!AUDMODE(1)"Dolby Upmixer"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != (AudioMode{Index: 1, Name: "Dolby Upmixer"}) {
		t.Errorf("got %+v", m)
	}

	list, err := ParseAudioModeList("!AUDMODECOUNT(2)\n!AUDMODE(0)\"Bypass\"\n!AUDMODE(1)\"Neural:X\"")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []AudioMode{{0, "Bypass"}, {1, "Neural:X"}}
	if !reflect.DeepEqual(list, want) {
		t.Errorf("got %+v, want %+v", list, want)
	}
}

func TestParseAudioType(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`!AUDTYPE(0)"Dolby Digital 5.1"`, "Dolby Digital 5.1"},
		{`!AUDTYPE("PCM 2.0")`, "PCM 2.0"},
		{`!AUDTYPE(PCM)`, "PCM"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseAudioType(tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFeedbackLevel(t *testing.T) {
	level, err := ParseFeedbackLevel("!VERB(2)")
	if err != nil || level != FeedbackEcho {
		t.Errorf("got %v, %v", level, err)
	}
	if _, err := ParseFeedbackLevel("!VERB(5)"); !errors.Is(err, ErrResponseFormat) {
		t.Errorf("expected ErrResponseFormat, got %v", err)
	}
}
