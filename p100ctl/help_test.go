package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestHelpOverviewListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	if err := printHelp(&buf, ""); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for name := range replHelp {
		if !strings.Contains(out, "."+name) {
			t.Errorf("overview missing .%s", name)
		}
	}
	if !strings.Contains(out, "AUDMODEL?") {
		t.Error("overview missing raw command examples")
	}
}

func TestHelpTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"feedback", "adds status pushes"},
		{".quit", "Ctrl-D"},
		{"STATUS", "audio type"},
		{".Pushes", "on|off"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printHelp(&buf, tt.topic); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("help %s: %q does not contain %q", tt.topic, buf.String(), tt.want)
			}
		})
	}
}

func TestHelpTopicUnknown(t *testing.T) {
	var buf bytes.Buffer
	err := printHelp(&buf, ".teleport")
	if err == nil || !strings.Contains(err.Error(), "'.teleport'") {
		t.Errorf("got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}

// Every entry must start with its own usage line so the overview renders.
func TestHelpEntriesStartWithUsage(t *testing.T) {
	for name, text := range replHelp {
		if !strings.HasPrefix(text, "."+name) {
			t.Errorf("help for %s starts with %q", name, strings.SplitN(text, "\n", 2)[0])
		}
	}
}
