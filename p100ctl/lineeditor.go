// =============================================================================
// lineeditor.go - Line Input for the REPL
// =============================================================================
//
// The REPL reads from a terminal or from a pipe:
//
//   - Interactive: ergochat/readline gives Emacs keybindings, persistent
//     history in ~/.p100ctl_history and Ctrl-R search.
//   - Non-interactive (piped input, or running under Emacs): bufio.Scanner
//     reads one line at a time and the prompt is printed by hand, so scripts
//     like `printf 'VOL?\nSRC?\n' | p100ctl repl` work.
//
// =============================================================================

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	// historyFileName is the history file in the user's home directory.
	historyFileName = ".p100ctl_history"

	// historySize is the maximum number of history entries kept.
	historySize = 500
)

// lineReader is what the REPL needs from a line editor.
type lineReader interface {
	GetLine(prompt string) (string, error)
}

// LineEditor reads lines from stdin with or without readline support.
type LineEditor struct {
	// interactive is true when readline is in use.
	interactive bool

	rl      *readline.Instance
	scanner *bufio.Scanner
}

// NewLineEditor picks readline for a terminal and a scanner otherwise.
//
// GO CONCEPT: Graceful Fallback
// -----------------------------
// readline.NewFromConfig can fail (no terminal capabilities, unreadable
// history file). Rather than aborting, the editor drops back to the
// scanner, which works everywhere.
func NewLineEditor() *LineEditor {
	isInteractive := term.IsTerminal(int(os.Stdin.Fd())) &&
		os.Getenv("INSIDE_EMACS") == ""

	if !isInteractive {
		return &LineEditor{scanner: bufio.NewScanner(os.Stdin)}
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            filepath.Join(homeDir(), historyFileName),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
		Prompt:                 "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return &LineEditor{scanner: bufio.NewScanner(os.Stdin)}
	}

	return &LineEditor{interactive: true, rl: rl}
}

// GetLine shows prompt and returns the next line without its newline.
// It returns io.EOF at end of input and on Ctrl-C.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getNonInteractiveLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)

	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	// Blank lines are not worth remembering.
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (le *LineEditor) getNonInteractiveLine(prompt string) (string, error) {
	fmt.Print(prompt)

	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// Close releases the terminal. It is safe to call more than once.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}

// homeDir returns the user's home directory, or "" if unknown.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
