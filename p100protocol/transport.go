package p100protocol

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"go.bug.st/serial"
)

// TCPOpener opens a TCP stream to the device's control port.
type TCPOpener struct {
	Host string
	Port int // DefaultTCPPort when zero
}

// NewTCPOpener returns an opener for host:port.
func NewTCPOpener(host string, port int) *TCPOpener {
	return &TCPOpener{Host: host, Port: port}
}

func (o *TCPOpener) address() string {
	port := o.Port
	if port == 0 {
		port = DefaultTCPPort
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

// Open dials the device. The dial is bounded by ctx.
func (o *TCPOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", o.address())
	if err != nil {
		return nil, NewConnectionError("failed to connect to "+o.address(), err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

func (o *TCPOpener) String() string {
	return "tcp://" + o.address()
}

// SerialOpener opens an RS-232 port at 8-N-1 with no flow control.
type SerialOpener struct {
	Port     string
	BaudRate int // DefaultBaudRate when zero

	// open is serial.Open unless replaced in tests.
	open func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialOpener returns an opener for the named port.
func NewSerialOpener(port string, baudRate int) *SerialOpener {
	return &SerialOpener{Port: port, BaudRate: baudRate}
}

func (o *SerialOpener) mode() *serial.Mode {
	baud := o.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

type openResult struct {
	port serial.Port
	err  error
}

// Open opens the port. serial.Open cannot be cancelled, so it runs on its
// own goroutine; a port that opens after ctx is done is closed.
func (o *SerialOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	open := o.open
	if open == nil {
		open = serial.Open
	}
	mode := o.mode()

	result := make(chan openResult, 1)
	go func() {
		port, err := open(o.Port, mode)
		result <- openResult{port: port, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, NewConnectionError("failed to open "+o.Port, r.err)
		}
		return r.port, nil
	case <-ctx.Done():
		go func() {
			if r := <-result; r.err == nil {
				r.port.Close()
			}
		}()
		return nil, NewConnectionError("failed to open "+o.Port, ctx.Err())
	}
}

func (o *SerialOpener) String() string {
	return fmt.Sprintf("serial://%s@%d", o.Port, o.mode().BaudRate)
}
