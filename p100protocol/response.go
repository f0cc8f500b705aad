package p100protocol

import (
	"fmt"
	"strings"
)

// AggregateSeparator joins the lines of a list reply into one response unit.
const AggregateSeparator = "\n"

// Reply is one response line split into its grammar parts:
//
//	<prefix><TOKEN>(<value>)["<text>"]
type Reply struct {
	Token   string
	Value   string
	Text    string
	HasText bool
	Raw     string
}

// Format returns the reply in wire form without the terminator.
func (r Reply) Format() string {
	s := fmt.Sprintf("%s%s(%s)", ResponsePrefix, r.Token, r.Value)
	if r.HasText {
		s += `"` + r.Text + `"`
	}
	return s
}

// Source is a selectable input.
type Source struct {
	Index int
	Name  string
}

func (s Source) String() string {
	return fmt.Sprintf("%d: %s", s.Index, s.Name)
}

// AudioMode is an audio processing mode.
type AudioMode struct {
	Index int
	Name  string
}

func (m AudioMode) String() string {
	return fmt.Sprintf("%d: %s", m.Index, m.Name)
}

// JoinAggregate joins the lines of a list reply.
func JoinAggregate(lines []string) string {
	return strings.Join(lines, AggregateSeparator)
}

// SplitAggregate splits a joined list reply back into lines.
func SplitAggregate(block string) []string {
	if block == "" {
		return nil
	}
	return strings.Split(block, AggregateSeparator)
}
