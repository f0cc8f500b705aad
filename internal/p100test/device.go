// Package p100test provides a fake P100 control port for tests.
//
// Device listens on a real TCP socket on 127.0.0.1, so clients exercise
// the same dialing, framing and teardown paths they use against hardware.
// Responses come from a Handler; Simulator is a stateful Handler that
// behaves like a small P100.
package p100test

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Handler receives a command without its "!" prefix and terminator and
// returns the lines to send back, each without the terminator. Returning
// nil sends nothing.
type Handler func(cmd string) []string

// Device is a fake device control port.
type Device struct {
	listener net.Listener
	handler  Handler

	mu       sync.Mutex
	conns    []net.Conn
	received []string
	accepted int

	wg sync.WaitGroup
}

// NewDevice starts a fake device and registers its shutdown with t.Cleanup.
// A nil handler uses a fresh Simulator.
func NewDevice(t testing.TB, handler Handler) *Device {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	if handler == nil {
		handler = NewSimulator().Handle
	}

	d := &Device{listener: listener, handler: handler}
	d.wg.Add(1)
	go d.acceptLoop()

	t.Cleanup(d.Close)
	return d
}

// Host returns the listening host.
func (d *Device) Host() string {
	return d.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (d *Device) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns host:port.
func (d *Device) Addr() string {
	return net.JoinHostPort(d.Host(), strconv.Itoa(d.Port()))
}

// Received returns every command received so far, in order.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Accepted returns the number of connections accepted so far.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// Push writes raw lines to every connected client, as unsolicited traffic.
func (d *Device) Push(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		writeLines(conn, lines)
	}
}

// DropConnections closes every client connection, as if the device went
// away, while the listener keeps accepting.
func (d *Device) DropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		conn.Close()
	}
	d.conns = nil
}

// Close stops the device and waits for its goroutines.
func (d *Device) Close() {
	d.listener.Close()
	d.DropConnections()
	d.wg.Wait()
}

func (d *Device) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.accepted++
		d.mu.Unlock()

		d.wg.Add(1)
		go d.serve(conn)
	}
}

func (d *Device) serve(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimPrefix(strings.TrimSpace(line), "!")
		if cmd == "" {
			continue
		}

		d.mu.Lock()
		d.received = append(d.received, cmd)
		d.mu.Unlock()

		reply := d.handler(cmd)

		d.mu.Lock()
		writeLines(conn, reply)
		d.mu.Unlock()
	}
}

func writeLines(conn net.Conn, lines []string) {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r")
	}
	if b.Len() > 0 {
		conn.Write([]byte(b.String()))
	}
}
