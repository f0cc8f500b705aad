// =============================================================================
// main.go - p100ctl Entry Point
// =============================================================================
//
// p100ctl controls a Steinway Lyngdorf P100 surround processor over its
// line-based control protocol, either on TCP port 84 or on the RS-232 port.
//
// Usage:
//
//	p100ctl [options] <command> [args...]
//
//	p100ctl --host 192.168.1.20 status
//	p100ctl --serial /dev/ttyUSB0 volume set -35
//	p100ctl monitor --feedback 2 --ws :8090
//	p100ctl repl
//
// Settings come from a YAML config file, then STEINWAY_* environment
// variables, then command-line flags; later sources win.
//
// =============================================================================

// GO CONCEPT: Packages
// --------------------
// The package name "main" marks this directory as an executable. Every file
// in the directory shares the package and can call each other's unexported
// functions, which is how the subcommands below are split across files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

// =============================================================================
// Version Information
// =============================================================================

const (
	// version is the p100ctl release.
	version = "0.3.0"

	// appName is the application name.
	appName = "p100ctl"
)

// fullTitle returns the application name with version.
func fullTitle() string {
	return fmt.Sprintf("%s v%s", appName, version)
}

// =============================================================================
// Command-Line Arguments
// =============================================================================

// arguments holds the parsed global options and the subcommand.
//
// GO CONCEPT: Zero Values
// -----------------------
// Unset options keep their zero value ("" or 0), which later means "use the
// config file or the built-in default". No optional types are needed.
type arguments struct {
	host       string
	port       int
	serialPort string
	baudRate   int
	configPath string
	debug      bool

	showHelp    bool
	showVersion bool

	// command is the first non-option argument; commandArgs follow it.
	command     string
	commandArgs []string
}

// errUsage marks errors that should be followed by the usage text.
var errUsage = errors.New("usage")

// usageError wraps a message so errors.Is(err, errUsage) is true.
func usageError(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
}

// parseArguments parses the global options that precede the subcommand.
//
// A hand-written loop keeps the option set small and lets each subcommand
// parse its own arguments, the same way the REPL parses its input.
func parseArguments(argv []string) (arguments, error) {
	var args arguments
	remaining := argv

	// value consumes the option argument following flag.
	value := func(flag string) (string, error) {
		if len(remaining) == 0 {
			return "", usageError("%s requires an argument", flag)
		}
		v := remaining[0]
		remaining = remaining[1:]
		return v, nil
	}
	number := func(flag string) (int, error) {
		v, err := value(flag)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, usageError("%s expects a positive number, got %q", flag, v)
		}
		return n, nil
	}

	for len(remaining) > 0 {
		arg := remaining[0]
		remaining = remaining[1:]

		var err error
		switch arg {
		case "--host":
			args.host, err = value(arg)
		case "--port":
			args.port, err = number(arg)
		case "--serial":
			args.serialPort, err = value(arg)
		case "--baud":
			args.baudRate, err = number(arg)
		case "--config":
			args.configPath, err = value(arg)
		case "--debug":
			args.debug = true
		case "--help", "-h":
			args.showHelp = true
		case "--version", "-v":
			args.showVersion = true
		default:
			if len(arg) > 1 && arg[0] == '-' {
				return args, usageError("unknown option: %s", arg)
			}
			args.command = arg
			args.commandArgs = remaining
			return args, nil
		}
		if err != nil {
			return args, err
		}
	}
	return args, nil
}

// =============================================================================
// Help and Usage
// =============================================================================

// printUsage writes the usage text.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `USAGE: p100ctl [options] <command> [args...]

OPTIONS:
  --host <addr>       Device address (TCP)
  --port <n>          TCP port (default: 84)
  --serial <path>     Serial port instead of TCP, e.g. /dev/ttyUSB0
  --baud <n>          Serial speed (default: 115200)
  --config <path>     Config file (default: ~/.config/p100ctl/config.yaml)
  --debug             Debug logging
  --help, -h          Show this help
  --version, -v       Show version

COMMANDS:
  on | off | toggle                     Main zone power
  status                                Power, volume, source and mode
  zone2 on|off|status                   Zone 2 power
  volume [get|set <dB>|up [dB]|down [dB]]
  mute [on|off|toggle|status]
  source [list|current|select <n|name>|next|prev]
  mode [list|current|select <n|name>|next|prev|type]
  monitor [--duration <s>] [--feedback 0|1|2] [--ws <addr>]
  repl                                  Interactive raw command prompt
  ports                                 List serial ports
  media [info|playpause|play|pause|next|prev]
  bridge                                Run the MQTT bridge

ENVIRONMENT:
  STEINWAY_HOST, STEINWAY_PORT, STEINWAY_SERIAL, STEINWAY_LOG_LEVEL
`)
}

// =============================================================================
// Signal Handling
// =============================================================================

// GO CONCEPT: Contexts for Cancellation
// -------------------------------------
// signal.NotifyContext returns a context that is cancelled on SIGINT or
// SIGTERM. Every blocking call below takes this context, so ^C unwinds the
// program through its normal return paths and deferred disconnects run.

// =============================================================================
// Main Entry Point
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without os.Exit, returning the process exit code.
func run(argv []string, stdout, stderr io.Writer) int {
	args, err := parseArguments(argv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		printUsage(stderr)
		return 2
	}
	if args.showHelp || (args.command == "" && !args.showVersion) {
		printUsage(stdout)
		return 0
	}
	if args.showVersion {
		fmt.Fprintln(stdout, fullTitle())
		return 0
	}

	cfg, err := loadConfig(args.configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg.applyArguments(args)

	logger := setupLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, logger: logger, out: stdout}
	if err := a.dispatch(ctx, args.command, args.commandArgs); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}
