package p100protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// readChunkSize is the size of a single read from the stream.
const readChunkSize = 1024

// Opener establishes the byte stream a Connection runs over.
type Opener interface {
	// Open returns a ready stream or fails. It must honour ctx.
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	// String describes the target for logs.
	String() string
}

// StatusHandler receives response lines that no pending query consumed,
// such as unsolicited status pushes at FeedbackStatus or FeedbackEcho.
// It runs on its own goroutine, so a slow handler never delays the receive
// loop; when it falls behind, pushes are dropped.
type StatusHandler func(reply Reply)

// statusQueueSize bounds the number of undelivered status pushes.
const statusQueueSize = 256

// DisconnectHandler is called when the receive loop loses the stream.
type DisconnectHandler func(err error)

// Connection is a single line-protocol stream to a device.
//
// It owns the stream, the background receive loop, line framing, response
// correlation and the monitor tap. Queries are serialized internally: a
// second Send waits until the first query has resolved.
//
// Thread Safety:
// All methods are safe for concurrent use. The receive loop is the only
// goroutine that feeds lines to the pending query.
type Connection struct {
	mu sync.Mutex

	opener     Opener
	state      State
	gen        uint64 // incremented on every connect attempt
	stream     io.ReadWriteCloser
	readerDone chan struct{}
	pending    *pendingQuery

	// openCancel and openDone belong to the Open of the Connect in flight.
	openCancel context.CancelFunc
	openDone   chan struct{}

	feedback        FeedbackLevel
	connectTimeout  time.Duration
	disconnectGrace time.Duration
	writeTimeout    time.Duration

	monitor           *monitorTap
	status            *eventQueue[Reply]
	disconnectHandler DisconnectHandler
	logger            *slog.Logger

	// sendSem serializes sends; a slot is held for the write and, for
	// queries, until the response arrives.
	sendSem chan struct{}
}

// NewConnection creates a disconnected Connection for the given opener.
func NewConnection(opener Opener) *Connection {
	return &Connection{
		opener:          opener,
		feedback:        FeedbackStatus,
		connectTimeout:  ConnectTimeout,
		disconnectGrace: DefaultDisconnectGrace,
		writeTimeout:    DefaultTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		sendSem:         make(chan struct{}, 1),
	}
}

// SetLogger sets the structured logger. A nil logger silences logging.
func (c *Connection) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger.With("target", c.opener.String())
}

// SetMonitor installs the monitor tap, replacing any previous one.
// A nil function removes it.
func (c *Connection) SetMonitor(fn MonitorFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monitor != nil {
		c.monitor.stop()
		c.monitor = nil
	}
	if fn != nil {
		c.monitor = newMonitorTap(fn)
	}
}

// SetStatusHandler sets the callback for unsolicited response lines.
func (c *Connection) SetStatusHandler(handler StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != nil {
		c.status.stop()
		c.status = nil
	}
	if handler != nil {
		c.status = newEventQueue[Reply](handler, statusQueueSize)
	}
}

// SetDisconnectHandler sets the callback for lost connections.
func (c *Connection) SetDisconnectHandler(handler DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHandler = handler
}

// SetConnectTimeout overrides ConnectTimeout for later Connect calls.
func (c *Connection) SetConnectTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectTimeout = d
}

// SetDisconnectGrace overrides DefaultDisconnectGrace.
func (c *Connection) SetDisconnectGrace(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectGrace = d
}

// SetFeedbackLevel records the feedback level the device was asked for.
// It does not talk to the device; the device facade sends VERB(n). Echo
// lines are expected only at FeedbackEcho.
func (c *Connection) SetFeedbackLevel(level FeedbackLevel) error {
	if !level.valid() {
		return newInvalidParameterError("feedback level", int(level), "must be 0, 1 or 2")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback = level
	return nil
}

// FeedbackLevel returns the recorded feedback level.
func (c *Connection) FeedbackLevel() FeedbackLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedback
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if the connection is ready for commands.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Target describes the device endpoint.
func (c *Connection) Target() string {
	return c.opener.String()
}

// Connect opens the stream and starts the receive loop. Calling Connect on
// a connected Connection is a no-op; calling it while another Connect or a
// Disconnect is in flight fails with ErrConnectInProgress.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateDisconnecting:
		state := c.state
		c.mu.Unlock()
		return NewConnectionError(state.String(), ErrConnectInProgress)
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	openCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	opened := make(chan struct{})
	c.openCancel = cancel
	c.openDone = opened
	logger := c.logger
	c.mu.Unlock()

	stream, err := c.opener.Open(openCtx)

	c.mu.Lock()
	aborted := c.state == StateDisconnecting
	if err == nil && !aborted {
		done := make(chan struct{})
		c.stream = stream
		c.readerDone = done
		c.state = StateConnected
		c.openCancel = nil
		c.openDone = nil
		c.mu.Unlock()
		close(opened)

		go c.readLoop(gen, stream, done)
		logger.Info("connected")
		return nil
	}
	c.mu.Unlock()

	// The state stays Connecting or Disconnecting until a late stream is
	// closed, so no second Open can overlap this one.
	if err == nil {
		stream.Close()
	}
	c.mu.Lock()
	c.state = StateDisconnected
	c.openCancel = nil
	c.openDone = nil
	c.mu.Unlock()
	close(opened)

	if aborted {
		return NewConnectionError("connect aborted", err)
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return NewConnectionError("failed to open "+c.opener.String(), err)
}

// Disconnect stops the receive loop and closes the stream. A pending query
// fails with a ConnectionError. Calling Disconnect when not connected is a
// no-op.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected, StateDisconnecting:
		c.mu.Unlock()
		return
	case StateConnecting:
		c.abortConnectLocked()
		return
	}
	c.state = StateDisconnecting
	gen := c.gen
	stream := c.stream
	done := c.readerDone
	p := c.pending
	c.pending = nil
	grace := c.disconnectGrace
	logger := c.logger
	c.mu.Unlock()

	if p != nil {
		p.complete(queryResult{err: NewConnectionError("disconnected", nil)})
	}

	if err := stream.Close(); err != nil {
		logger.Debug("close stream", "error", err)
	}

	timer := time.NewTimer(grace)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		logger.Warn("receive loop did not stop", "grace", grace)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.state = StateDisconnected
		c.stream = nil
		c.readerDone = nil
	}
	c.mu.Unlock()
	logger.Info("disconnected")
}

// abortConnectLocked cancels the Open of the Connect in flight and waits up
// to the grace period for it to return. c.mu must be held; it is released.
func (c *Connection) abortConnectLocked() {
	c.state = StateDisconnecting
	cancel := c.openCancel
	opened := c.openDone
	grace := c.disconnectGrace
	logger := c.logger
	c.mu.Unlock()

	cancel()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-opened:
		logger.Info("connect aborted")
	case <-timer.C:
		logger.Warn("open did not return after cancel", "grace", grace)
	}
}

// Send sends a command and, for queries, waits up to DefaultTimeout for
// its response. Non-query commands return an empty response.
func (c *Connection) Send(cmd Command) (string, error) {
	return c.SendWithTimeout(cmd, DefaultTimeout)
}

// SendWithTimeout sends a command with a custom response timeout.
func (c *Connection) SendWithTimeout(cmd Command, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.SendWithContext(ctx, cmd)
}

// SendWithContext sends a command, waiting for a query response until ctx
// is done. The command is validated before anything is written.
func (c *Connection) SendWithContext(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	command := cmd.Format()
	if command == "" {
		return "", newInvalidParameterError("command", int(cmd.Type), "unknown command type")
	}
	return c.send(ctx, command)
}

// SendRaw sends a raw command string such as "VOL?" or "SRC(2)".
// The string must not include the prefix or terminator.
func (c *Connection) SendRaw(command string) (string, error) {
	return c.SendRawWithTimeout(command, DefaultTimeout)
}

// SendRawWithTimeout sends a raw command string with a custom timeout.
func (c *Connection) SendRawWithTimeout(command string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.SendRawWithContext(ctx, command)
}

// SendRawWithContext sends a raw command string with a context.
func (c *Connection) SendRawWithContext(ctx context.Context, command string) (string, error) {
	command = strings.TrimPrefix(strings.TrimSpace(command), CommandPrefix)
	if command == "" {
		return "", newInvalidParameterError("command", command, "empty")
	}
	if strings.ContainsAny(command, "\r\n") {
		return "", newInvalidParameterError("command", command, "contains a line terminator")
	}
	return c.send(ctx, command)
}

func (c *Connection) send(ctx context.Context, command string) (string, error) {
	start := time.Now()

	select {
	case c.sendSem <- struct{}{}:
	case <-ctx.Done():
		return "", waitError(ctx, command, start)
	}
	defer func() { <-c.sendSem }()

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return "", NewConnectionError("not connected", ErrNotConnected)
	}
	stream := c.stream
	var p *pendingQuery
	if IsQuery(command) {
		p = newPendingQuery(command)
		c.pending = p
	}
	c.emitLocked(DirectionTX, command)
	logger := c.logger
	writeTimeout := c.writeTimeout
	c.mu.Unlock()

	logger.Debug("tx", "line", command)
	if err := writeLine(stream, FrameCommand(command), writeTimeout); err != nil {
		if p != nil {
			c.clearPending(p)
		}
		return "", NewConnectionError("failed to send command", err)
	}
	if p == nil {
		return "", nil
	}

	select {
	case r := <-p.done:
		c.clearPending(p)
		return r.response, r.err
	case <-ctx.Done():
		c.clearPending(p)
		return "", waitError(ctx, command, start)
	}
}

// waitError converts a finished context into the error a caller sees.
func waitError(ctx context.Context, command string, start time.Time) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	timeout := time.Since(start)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = deadline.Sub(start)
	}
	return &TimeoutError{Command: command, Timeout: timeout.Round(time.Millisecond)}
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func writeLine(w io.Writer, line string, timeout time.Duration) error {
	if d, ok := w.(writeDeadliner); ok && timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err == nil {
			defer d.SetWriteDeadline(time.Time{})
		}
	}
	_, err := io.WriteString(w, line)
	return err
}

func (c *Connection) clearPending(p *pendingQuery) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
}

// emitLocked hands a line to the monitor tap. c.mu must be held.
func (c *Connection) emitLocked(dir Direction, line string) {
	if c.monitor == nil {
		return
	}
	if !c.monitor.emit(dir, line) {
		c.logger.Debug("monitor queue full, event dropped", "direction", dir)
	}
}

// readLoop drains the stream until it fails or is closed.
func (c *Connection) readLoop(gen uint64, stream io.ReadCloser, done chan struct{}) {
	defer close(done)

	framer := newLineFramer(MaxLineLength)
	buf := make([]byte, readChunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			lines, dropped := framer.push(buf[:n])
			if dropped > 0 {
				c.log().Warn("receive buffer overflow, discarding partial line", "bytes", dropped)
			}
			for _, line := range lines {
				c.handleLine(line)
			}
		}
		if err != nil {
			c.handleReadError(gen, stream, err)
			return
		}
	}
}

func (c *Connection) log() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// handleLine routes one received line.
func (c *Connection) handleLine(line string) {
	c.mu.Lock()
	c.emitLocked(DirectionRX, line)
	p := c.pending
	feedback := c.feedback
	logger := c.logger
	c.mu.Unlock()

	logger.Debug("rx", "line", line)

	switch ClassifyLine(line) {
	case LineEcho:
		if feedback < FeedbackEcho {
			logger.Debug("unexpected echo", "line", line, "feedback", feedback)
		}
		return
	case LineUnrecognized:
		logger.Debug("discarding unrecognized line", "line", line)
		return
	}

	if p != nil && p.offer(line) {
		if p.resolved {
			c.clearPending(p)
		}
		return
	}

	reply, err := ParseReply(line)
	if err != nil {
		logger.Debug("discarding unparseable line", "line", line, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.status == nil:
		logger.Debug("discarding unsolicited line", "line", line)
	case !c.status.push(reply):
		logger.Debug("status queue full, push dropped", "line", line)
	}
}

// handleReadError tears the connection down after the stream failed.
// It does nothing when Disconnect caused the failure.
func (c *Connection) handleReadError(gen uint64, stream io.Closer, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.stream = nil
	c.readerDone = nil
	p := c.pending
	c.pending = nil
	handler := c.disconnectHandler
	logger := c.logger
	c.mu.Unlock()

	stream.Close()

	cause := ErrConnectionLost
	if !errors.Is(err, io.EOF) {
		cause = fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	logger.Warn("connection lost", "error", err)

	if p != nil {
		p.complete(queryResult{err: NewConnectionError("connection lost", cause)})
	}
	if handler != nil {
		handler(cause)
	}
}
