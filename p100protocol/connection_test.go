package p100protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/siegeld/steinway-lyngdorf/internal/p100test"
)

// startConnection connects to a fake device and disconnects on cleanup.
func startConnection(t *testing.T, handler p100test.Handler) (*Connection, *p100test.Device) {
	t.Helper()
	dev := p100test.NewDevice(t, handler)
	conn := NewConnection(NewTCPOpener(dev.Host(), dev.Port()))
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(conn.Disconnect)
	return conn, dev
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func received(dev *p100test.Device, cmd string) func() bool {
	return func() bool {
		for _, c := range dev.Received() {
			if c == cmd {
				return true
			}
		}
		return false
	}
}

// recorder collects monitor events.
type recorder struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (r *recorder) record(ev MonitorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []MonitorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MonitorEvent(nil), r.events...)
}

func TestSendNotConnected(t *testing.T) {
	conn := NewConnection(NewTCPOpener("127.0.0.1", 1))
	_, err := conn.Send(NewPowerQueryCommand(ZoneMain))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Errorf("expected *ConnectionError, got %T", err)
	}
}

func TestQueryIgnoresUnrelatedLines(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		if cmd == "POWER?" {
			return []string{"!ZVOL(-200)", "!POWERZONE2(0)", "!POWER(1)"}
		}
		return nil
	})

	var mu sync.Mutex
	var pushes []Reply
	conn.SetStatusHandler(func(r Reply) {
		mu.Lock()
		defer mu.Unlock()
		pushes = append(pushes, r)
	})

	resp, err := conn.Send(NewPowerQueryCommand(ZoneMain))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "!POWER(1)" {
		t.Errorf("got %q, want %q", resp, "!POWER(1)")
	}
	state, err := ParsePower(ZoneMain, resp)
	if err != nil || state != PowerOn {
		t.Errorf("ParsePower: %v, %v", state, err)
	}

	waitFor(t, "status pushes", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(pushes) >= 2
	})
	mu.Lock()
	defer mu.Unlock()
	if len(pushes) != 2 || pushes[0].Token != "ZVOL" || pushes[1].Token != "POWERZONE2" {
		t.Errorf("unexpected status pushes: %+v", pushes)
	}
}

func TestSlowStatusHandlerDoesNotDelayQuery(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		if cmd == "POWER?" {
			return []string{"!ZVOL(-200)", "!POWER(1)"}
		}
		return nil
	})

	release := make(chan struct{})
	defer close(release)
	handled := make(chan Reply, 1)
	conn.SetStatusHandler(func(r Reply) {
		handled <- r
		<-release
	})

	resp, err := conn.SendWithTimeout(NewPowerQueryCommand(ZoneMain), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("query blocked behind the status handler: %v", err)
	}
	if resp != "!POWER(1)" {
		t.Errorf("got %q, want %q", resp, "!POWER(1)")
	}
	select {
	case r := <-handled:
		if r.Token != "ZVOL" {
			t.Errorf("push: got %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status handler never ran")
	}
}

func TestAggregateQueryWithInterleavedPush(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		if cmd == "SRCS?" {
			return []string{
				"!SRCCOUNT(2)",
				`!SRC(0)"DVD player"`,
				"!VOL(-300)",
				`!SRC(1)"Blu-ray player"`,
			}
		}
		return nil
	})

	resp, err := conn.Send(NewSourceListQueryCommand())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "!SRCCOUNT(2)\n!SRC(0)\"DVD player\"\n!SRC(1)\"Blu-ray player\""
	if resp != want {
		t.Errorf("got %q, want %q", resp, want)
	}
	sources, err := ParseSourceList(resp)
	if err != nil {
		t.Fatalf("ParseSourceList: %v", err)
	}
	if len(sources) != 2 || sources[1].Name != "Blu-ray player" {
		t.Errorf("got %+v", sources)
	}
}

func TestAggregateBadCount(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		return []string{"!SRCCOUNT(lots)"}
	})
	_, err := conn.Send(NewSourceListQueryCommand())
	if !errors.Is(err, ErrResponseFormat) {
		t.Fatalf("expected ErrResponseFormat, got %v", err)
	}
	if !conn.IsConnected() {
		t.Error("connection dropped after a format error")
	}
}

func TestEchoLinesAreSkipped(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		return []string{"#" + cmd, "!VOL(-100)"}
	})
	resp, err := conn.SendRaw("VOL?")
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if resp != "!VOL(-100)" {
		t.Errorf("got %q", resp)
	}
}

func TestQueryTimeoutKeepsConnection(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		if cmd == "VOL?" {
			return []string{"!VOL(-250)"}
		}
		return nil
	})

	start := time.Now()
	_, err := conn.SendWithTimeout(NewPowerQueryCommand(ZoneMain), 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
	if te.Command != "POWER?" {
		t.Errorf("Command: got %q", te.Command)
	}
	if te.Timeout <= 0 || te.Timeout > 100*time.Millisecond {
		t.Errorf("Timeout: got %v", te.Timeout)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	if conn.State() != StateConnected {
		t.Fatalf("state after timeout: %v", conn.State())
	}
	resp, err := conn.Send(NewVolumeQueryCommand(ZoneMain))
	if err != nil {
		t.Fatalf("follow-up query: %v", err)
	}
	if resp != "!VOL(-250)" {
		t.Errorf("got %q", resp)
	}
}

func TestSendWithCancelledContext(t *testing.T) {
	conn, dev := startConnection(t, func(cmd string) []string { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sent := received(dev, "VOL?")
		for !sent() {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()
	_, err := conn.SendWithContext(ctx, NewVolumeQueryCommand(ZoneMain))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNonQueryReturnsImmediately(t *testing.T) {
	conn, dev := startConnection(t, nil)

	resp, err := conn.Send(NewPowerOffCommand(Zone2))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "" {
		t.Errorf("got %q, want empty response", resp)
	}
	waitFor(t, "POWEROFFZONE2", received(dev, "POWEROFFZONE2"))
}

func TestDisconnectWhilePending(t *testing.T) {
	conn, dev := startConnection(t, func(cmd string) []string { return nil })

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.SendWithTimeout(NewPowerQueryCommand(ZoneMain), 10*time.Second)
		errCh <- err
	}()
	waitFor(t, "query", received(dev, "POWER?"))

	conn.Disconnect()

	select {
	case err := <-errCh:
		var ce *ConnectionError
		if !errors.As(err, &ce) {
			t.Fatalf("expected *ConnectionError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending query not resolved by Disconnect")
	}

	if conn.State() != StateDisconnected {
		t.Errorf("state: got %v", conn.State())
	}

	// A second Disconnect is a no-op.
	conn.Disconnect()
	if conn.State() != StateDisconnected {
		t.Errorf("state after second Disconnect: got %v", conn.State())
	}
}

func TestStreamLossFailsPending(t *testing.T) {
	conn, dev := startConnection(t, func(cmd string) []string { return nil })

	lost := make(chan error, 1)
	conn.SetDisconnectHandler(func(err error) { lost <- err })

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.SendWithTimeout(NewSourceListQueryCommand(), 10*time.Second)
		errCh <- err
	}()
	waitFor(t, "query", received(dev, "SRCS?"))

	dev.DropConnections()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("expected ErrConnectionLost, got %v", err)
		}
		var ce *ConnectionError
		if !errors.As(err, &ce) {
			t.Errorf("expected *ConnectionError, got %T", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending query not failed on stream loss")
	}

	select {
	case err := <-lost:
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("disconnect handler got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler not called")
	}

	waitFor(t, "disconnected state", func() bool { return conn.State() == StateDisconnected })
	if _, err := conn.Send(NewPowerQueryCommand(ZoneMain)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after loss, got %v", err)
	}
}

func TestReconnectAfterLoss(t *testing.T) {
	conn, dev := startConnection(t, nil)
	dev.DropConnections()
	waitFor(t, "disconnected state", func() bool { return conn.State() == StateDisconnected })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	resp, err := conn.Send(NewVolumeQueryCommand(ZoneMain))
	if err != nil || resp != "!VOL(-300)" {
		t.Errorf("got %q, %v", resp, err)
	}
}

func TestInvalidVolumeWritesNothing(t *testing.T) {
	conn, dev := startConnection(t, nil)
	rec := &recorder{}
	conn.SetMonitor(rec.record)

	if _, err := NewVolumeSetCommand(ZoneMain, 24.5); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	_, err := conn.Send(Command{Type: CmdVolumeSet, Zone: ZoneMain, DecidB: -1000})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter from Send, got %v", err)
	}

	// A later query proves the monitor was live.
	if _, err := conn.Send(NewVolumeQueryCommand(ZoneMain)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "monitor events", func() bool { return len(rec.snapshot()) >= 2 })

	for _, ev := range rec.snapshot() {
		if ev.Direction == DirectionTX && ev.Line != "VOL?" {
			t.Errorf("unexpected TX event %q", ev.Line)
		}
	}
	for _, cmd := range dev.Received() {
		if cmd != "VOL?" {
			t.Errorf("device received %q", cmd)
		}
	}
}

func TestMonitorSeesTrafficInOrder(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		return []string{"#" + cmd, "!MUTE(0)"}
	})
	rec := &recorder{}
	conn.SetMonitor(rec.record)

	if _, err := conn.Send(NewMuteQueryCommand(ZoneMain)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "monitor events", func() bool { return len(rec.snapshot()) >= 3 })

	events := rec.snapshot()
	want := []struct {
		dir  Direction
		line string
	}{
		{DirectionTX, "MUTE?"},
		{DirectionRX, "#MUTE?"},
		{DirectionRX, "!MUTE(0)"},
	}
	for i, w := range want {
		if events[i].Direction != w.dir || events[i].Line != w.line {
			t.Errorf("event %d: got %s %q, want %s %q",
				i, events[i].Direction, events[i].Line, w.dir, w.line)
		}
	}

	conn.SetMonitor(nil)
}

func TestConcurrentQueriesAreSerialized(t *testing.T) {
	conn, _ := startConnection(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := conn.Send(NewVolumeQueryCommand(ZoneMain))
			if err == nil && resp != "!VOL(-300)" {
				err = errors.New("VOL? got " + resp)
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			resp, err := conn.Send(NewAudioModeListQueryCommand())
			if err == nil {
				_, err = ParseAudioModeList(resp)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	conn, dev := startConnection(t, nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if dev.Accepted() != 1 {
		t.Errorf("accepted %d connections, want 1", dev.Accepted())
	}
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	conn := NewConnection(NewTCPOpener("127.0.0.1", port))
	err = conn.Connect(context.Background())
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state: got %v", conn.State())
	}
}

// blockingOpener blocks until released or ctx is done.
type blockingOpener struct {
	release chan io.ReadWriteCloser
	calls   int
	mu      sync.Mutex
}

func (o *blockingOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	select {
	case s := <-o.release:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *blockingOpener) String() string { return "blocking" }

func TestConnectTimeout(t *testing.T) {
	conn := NewConnection(&blockingOpener{release: make(chan io.ReadWriteCloser)})
	conn.SetConnectTimeout(50 * time.Millisecond)

	err := conn.Connect(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Errorf("expected *ConnectionError, got %T", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state: got %v", conn.State())
	}
}

func TestConnectWhileConnecting(t *testing.T) {
	opener := &blockingOpener{release: make(chan io.ReadWriteCloser)}
	conn := NewConnection(opener)

	first := make(chan error, 1)
	go func() { first <- conn.Connect(context.Background()) }()
	waitFor(t, "connecting state", func() bool { return conn.State() == StateConnecting })

	if err := conn.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("expected ErrConnectInProgress, got %v", err)
	}

	client, server := net.Pipe()
	defer server.Close()
	opener.release <- client
	if err := <-first; err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if opener.calls != 1 {
		t.Errorf("opened %d streams, want 1", opener.calls)
	}
	conn.Disconnect()
}

func TestDisconnectDuringConnectCancelsOpen(t *testing.T) {
	opener := &blockingOpener{release: make(chan io.ReadWriteCloser)}
	conn := NewConnection(opener)

	result := make(chan error, 1)
	go func() { result <- conn.Connect(context.Background()) }()
	waitFor(t, "connecting state", func() bool { return conn.State() == StateConnecting })

	conn.Disconnect()
	if conn.State() != StateDisconnected {
		t.Errorf("state after Disconnect: got %v", conn.State())
	}

	err := <-result
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the open to be cancelled, got %v", err)
	}
}

// lateOpener ignores ctx and returns whatever stream it is handed.
type lateOpener struct {
	release chan io.ReadWriteCloser

	mu    sync.Mutex
	calls int
}

func (o *lateOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	return <-o.release, nil
}

func (o *lateOpener) String() string { return "late" }

func (o *lateOpener) opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func TestDisconnectDuringConnectClosesStream(t *testing.T) {
	opener := &lateOpener{release: make(chan io.ReadWriteCloser)}
	conn := NewConnection(opener)
	conn.SetDisconnectGrace(20 * time.Millisecond)

	result := make(chan error, 1)
	go func() { result <- conn.Connect(context.Background()) }()
	waitFor(t, "connecting state", func() bool { return conn.State() == StateConnecting })

	// The open ignores cancellation, so Disconnect gives up waiting and the
	// connection stays busy until the open returns.
	conn.Disconnect()
	if conn.State() != StateDisconnecting {
		t.Fatalf("state after Disconnect: got %v", conn.State())
	}
	if err := conn.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("second Connect: expected ErrConnectInProgress, got %v", err)
	}
	if n := opener.opens(); n != 1 {
		t.Errorf("opened %d streams while the first open was running, want 1", n)
	}

	client, server := net.Pipe()
	defer server.Close()
	opener.release <- client

	var ce *ConnectionError
	if err := <-result; !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if _, err := client.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("stream left open: write returned %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state: got %v", conn.State())
	}

	// Once the late stream is closed a fresh Connect is accepted.
	client2, server2 := net.Pipe()
	defer server2.Close()
	go func() { opener.release <- client2 }()
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect after abort: %v", err)
	}
	if n := opener.opens(); n != 2 {
		t.Errorf("opens: got %d, want 2", n)
	}
	conn.Disconnect()
}

func TestSendRawRejectsTerminators(t *testing.T) {
	conn, _ := startConnection(t, nil)
	if _, err := conn.SendRaw("VOL?\rPOWEROFFMAIN"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := conn.SendRaw("  "); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
	resp, err := conn.SendRaw("!VOL?")
	if err != nil || resp != "!VOL(-300)" {
		t.Errorf("prefixed raw command: got %q, %v", resp, err)
	}
}

func TestEchoesAtLowerFeedbackAreLogged(t *testing.T) {
	conn, _ := startConnection(t, func(cmd string) []string {
		if cmd == "VOL?" {
			return []string{"#VOL?", "!VOL(-300)"}
		}
		return nil
	})
	var buf syncBuffer
	conn.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	if err := conn.SetFeedbackLevel(FeedbackEcho); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.SendRaw("VOL?"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "unexpected echo") {
		t.Errorf("echo at FeedbackEcho logged as unexpected:\n%s", buf.String())
	}

	if err := conn.SetFeedbackLevel(FeedbackMinimal); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.SendRaw("VOL?"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "unexpected echo") {
		t.Errorf("echo at FeedbackMinimal not reported:\n%s", buf.String())
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFeedbackLevelSetting(t *testing.T) {
	conn := NewConnection(NewTCPOpener("127.0.0.1", 1))
	if conn.FeedbackLevel() != FeedbackStatus {
		t.Errorf("default: got %v", conn.FeedbackLevel())
	}
	if err := conn.SetFeedbackLevel(FeedbackEcho); err != nil {
		t.Fatal(err)
	}
	if conn.FeedbackLevel() != FeedbackEcho {
		t.Errorf("got %v", conn.FeedbackLevel())
	}
	if err := conn.SetFeedbackLevel(FeedbackLevel(9)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}
