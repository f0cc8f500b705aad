package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/siegeld/steinway-lyngdorf/p100"
)

// replPrompt is shown before every line.
const replPrompt = "p100> "

// repl is an interactive raw-command session on a connected device.
type repl struct {
	dev *p100.Device
	out io.Writer

	mu         sync.Mutex // serializes writes to out
	showPushes bool
}

// runREPL reads commands until .quit, end of input or interruption.
func (a *app) runREPL(ctx context.Context, dev *p100.Device, _ []string) error {
	editor := NewLineEditor()
	defer editor.Close()

	r := &repl{dev: dev, out: a.out, showPushes: true}
	r.printf("Connected to %s. Type .help for help, .quit to exit.\n", dev.Target())
	return r.loop(ctx, editor)
}

func (r *repl) loop(ctx context.Context, editor lineReader) error {
	r.dev.SetStatusHandler(r.onPush)
	defer r.dev.SetStatusHandler(nil)

	for {
		line, err := readLine(ctx, editor, replPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				r.printf("\n")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ".quit" || line == ".exit" {
			return nil
		}
		if strings.HasPrefix(line, ".") {
			if err := r.dotCommand(ctx, line); err != nil {
				r.printf("Error: %v\n", err)
			}
			continue
		}

		resp, err := r.dev.SendRaw(ctx, line)
		if err != nil {
			r.printf("Error: %v\n", err)
			continue
		}
		if resp != "" {
			r.printf("%s\n", resp)
		}
	}
}

// readLine waits for the next line or for ctx, whichever comes first.
func readLine(ctx context.Context, editor lineReader, prompt string) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := editor.GetLine(prompt)
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *repl) dotCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case ".help":
		topic := ""
		if len(args) > 0 {
			topic = args[0]
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return printHelp(r.out, topic)

	case ".status":
		st, err := r.dev.Status(ctx)
		if err != nil {
			return err
		}
		r.printf("%s", st)
		return nil

	case ".feedback":
		if len(args) == 0 {
			level, err := r.dev.QueryFeedbackLevel(ctx)
			if err != nil {
				return err
			}
			r.printf("Feedback level: %d (%s)\n", int(level), level)
			return nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("feedback level must be 0, 1 or 2")
		}
		if err := r.dev.SetFeedbackLevel(ctx, p100.FeedbackLevel(n)); err != nil {
			return err
		}
		r.printf("Feedback level: %d (%s)\n", n, p100.FeedbackLevel(n))
		return nil

	case ".pushes":
		if len(args) > 0 {
			switch args[0] {
			case "on":
				r.setShowPushes(true)
			case "off":
				r.setShowPushes(false)
			default:
				return fmt.Errorf(".pushes expects on or off")
			}
		}
		r.mu.Lock()
		show := r.showPushes
		r.mu.Unlock()
		r.printf("Status pushes: %s\n", onOff(show))
		return nil

	case ".sources":
		sources, err := r.dev.Sources.List(ctx, true)
		if err != nil {
			return err
		}
		for _, s := range sources {
			r.printf("%s\n", listEntry(s.Index, s.Name, false))
		}
		return nil

	case ".modes":
		modes, err := r.dev.AudioMode.List(ctx, true)
		if err != nil {
			return err
		}
		for _, m := range modes {
			r.printf("%s\n", listEntry(m.Index, m.Name, false))
		}
		return nil
	}
	return fmt.Errorf("unknown command %s, type .help for help", name)
}

func (r *repl) onPush(reply p100.Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.showPushes {
		fmt.Fprintf(r.out, "* %s\n", reply.Raw)
	}
}

func (r *repl) setShowPushes(show bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.showPushes = show
}

func (r *repl) printf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, a...)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
