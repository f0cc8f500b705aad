package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// replHelp holds the detailed help for each REPL dot-command, keyed by the
// command name without its dot.
var replHelp = map[string]string{
	"help": `.help [command]
  Show the command overview, or the detailed help for one command.`,

	"quit": `.quit
  Leave the REPL and disconnect. Ctrl-D does the same.`,

	"status": `.status
  Show power, volume, mute, source, audio mode and audio type.`,

	"feedback": `.feedback [0|1|2]
  Show or set the feedback level.
    0  answers to queries only
    1  adds status pushes after every change
    2  adds "#" echoes of every command`,

	"pushes": `.pushes on|off
  Show or hide unsolicited status pushes between prompts.`,

	"sources": `.sources
  List the device's sources, refreshing the cached list.`,

	"modes": `.modes
  List the device's audio modes, refreshing the cached list.`,
}

// rawCommandHelp describes what can be typed at the prompt besides
// dot-commands.
const rawCommandHelp = `Anything else is sent to the device as a raw command; a leading "!" is
optional. Queries (ending in "?") print the device's reply.

Examples:
  POWER?          Main zone power
  POWERONMAIN     Main zone on
  VOL(-350)       Volume to -35.0 dB
  VOL+ / VOL-     Volume step
  MUTE            Toggle mute
  SRCS?           List sources
  SRC(2)          Select source 2
  AUDMODEL?       List audio modes
  AUDTYPE?        Incoming audio format
`

// printHelp writes the overview, or the help for topic. A leading dot and
// letter case are ignored.
func printHelp(w io.Writer, topic string) error {
	if topic == "" {
		printHelpOverview(w)
		return nil
	}

	key := strings.TrimPrefix(strings.ToLower(topic), ".")
	text, ok := replHelp[key]
	if !ok {
		return fmt.Errorf("no help for '%s', type .help to see available commands", topic)
	}
	fmt.Fprintln(w, text)
	return nil
}

func printHelpOverview(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(replHelp))
	for name := range replHelp {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		usage, summary, _ := strings.Cut(replHelp[name], "\n")
		fmt.Fprintf(w, "  %-20s %s\n", usage, strings.TrimSpace(summary))
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, rawCommandHelp)
}
