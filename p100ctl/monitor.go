package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/siegeld/steinway-lyngdorf/p100"
	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// ANSI colours for the terminal monitor.
const (
	colorTX    = "\033[32m"
	colorRX    = "\033[34m"
	colorReset = "\033[0m"
)

// monitorPrinter writes one line per monitor event:
//
//	12:34:56.789 → VOL?
//	12:34:56.801 ← !VOL(-300)
type monitorPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func newMonitorPrinter(w io.Writer) *monitorPrinter {
	return &monitorPrinter{w: w, color: isTerminal(w)}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *monitorPrinter) print(ev p100protocol.MonitorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, formatEvent(ev, p.color))
}

func formatEvent(ev p100protocol.MonitorEvent, color bool) string {
	arrow, c := "←", colorRX
	if ev.Direction == p100protocol.DirectionTX {
		arrow, c = "→", colorTX
	}
	ts := ev.Time.Format("15:04:05.000")
	if !color {
		return fmt.Sprintf("%s %s %s", ts, arrow, ev.Line)
	}
	return fmt.Sprintf("%s %s%s %s%s", ts, c, arrow, ev.Line, colorReset)
}

// =============================================================================
// WebSocket Stream
// =============================================================================

// monitorMessage is the JSON form of a monitor event.
type monitorMessage struct {
	Time      string `json:"time"`
	Direction string `json:"direction"`
	Line      string `json:"line"`
}

func newMonitorMessage(ev p100protocol.MonitorEvent) monitorMessage {
	return monitorMessage{
		Time:      ev.Time.Format(time.RFC3339Nano),
		Direction: string(ev.Direction),
		Line:      ev.Line,
	}
}

// wsHub fans monitor events out to websocket clients.
type wsHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// goes away.
func (h *wsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
	h.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *wsHub) broadcast(ev p100protocol.MonitorEvent) {
	msg := newMonitorMessage(ev)

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// =============================================================================
// monitor Command
// =============================================================================

type monitorOptions struct {
	duration time.Duration
	feedback *p100.FeedbackLevel
	wsAddr   string
}

func parseMonitorArgs(args []string, defaultWS string) (monitorOptions, error) {
	opts := monitorOptions{wsAddr: defaultWS}
	for len(args) > 0 {
		arg := args[0]
		args = args[1:]
		if len(args) == 0 {
			return opts, usageError("monitor: %s requires an argument", arg)
		}
		v := args[0]
		args = args[1:]

		switch arg {
		case "--duration":
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil || secs <= 0 {
				return opts, usageError("monitor: --duration expects seconds, got %q", v)
			}
			opts.duration = time.Duration(secs * float64(time.Second))
		case "--feedback":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 2 {
				return opts, usageError("monitor: --feedback expects 0, 1 or 2, got %q", v)
			}
			level := p100.FeedbackLevel(n)
			opts.feedback = &level
		case "--ws":
			opts.wsAddr = v
		default:
			return opts, usageError("monitor: unknown option %s", arg)
		}
	}
	return opts, nil
}

// runMonitor prints every line on the connection until interrupted or
// until --duration has passed.
func (a *app) runMonitor(ctx context.Context, dev *p100.Device, args []string) error {
	opts, err := parseMonitorArgs(args, a.cfg.Monitor.WSAddr)
	if err != nil {
		return err
	}

	printer := newMonitorPrinter(a.out)
	var hub *wsHub
	if opts.wsAddr != "" {
		hub = newWSHub(a.logger)
		addr, shutdown, err := serveHub(opts.wsAddr, hub)
		if err != nil {
			return err
		}
		defer shutdown()
		fmt.Fprintf(a.out, "WebSocket stream on ws://%s/ws\n", addr)
	}

	dev.SetMonitor(func(ev p100protocol.MonitorEvent) {
		printer.print(ev)
		if hub != nil {
			hub.broadcast(ev)
		}
	})
	defer dev.SetMonitor(nil)

	if opts.feedback != nil {
		if err := dev.SetFeedbackLevel(ctx, *opts.feedback); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "Monitoring %s (feedback %s), press Ctrl-C to stop\n", dev.Target(), dev.FeedbackLevel())

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	<-ctx.Done()
	return nil
}

// serveHub starts an HTTP server with the hub on /ws. It returns the bound
// address and a shutdown function.
func serveHub(addr string, hub *wsHub) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("websocket listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hub.logger.Error("websocket server", "error", err)
		}
	}()

	shutdown := func() {
		hub.closeAll()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	return ln.Addr().String(), shutdown, nil
}
