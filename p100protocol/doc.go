// Package p100protocol implements the text control protocol spoken by the
// Steinway Lyngdorf P100 surround processor over TCP or RS-232.
//
// # Protocol Overview
//
// The protocol is line oriented. Every line in either direction ends with a
// carriage return.
//
//	Command (client -> device):   !<command>\r
//	Response (device -> client):  !<TOKEN>(<value>)["<text>"]\r
//	Echo (feedback level 2):      #<command>\r
//	List reply:                   !<COUNT-TOKEN>(<n>)\r, then n entry lines
//
// Commands ending in "?" are queries and are answered by a response whose
// token is the command without the "?", for example:
//
//	CLI: !POWER?
//	DEV: !POWER(1)
//	CLI: !SRCS?
//	DEV: !SRCCOUNT(2)
//	DEV: !SRC(0)"DVD player"
//	DEV: !SRC(1)"Blu-ray player"
//
// List replies are returned to the caller as a single string with the lines
// joined by AggregateSeparator; ParseSourceList and ParseAudioModeList turn
// them into typed values.
//
// At feedback levels 1 and 2 the device also pushes status lines on its own.
// Lines that do not answer the pending query are handed to the status
// handler, if one is set, and are otherwise dropped.
//
// # Basic Usage
//
//	conn := p100protocol.NewConnection(p100protocol.NewTCPOpener("192.168.1.20", 0))
//	if err := conn.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Disconnect()
//
//	resp, err := conn.Send(p100protocol.NewVolumeQueryCommand(p100protocol.ZoneMain))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := p100protocol.ParseVolume(p100protocol.ZoneMain, resp)
//
// # Errors
//
// Transport failures are *ConnectionError, missing responses are
// *TimeoutError, unexpected text is *ResponseFormatError and rejected
// arguments are *InvalidParameterError. Each matches a sentinel with
// errors.Is: ErrNotConnected or ErrConnectionLost (as causes), ErrTimeout,
// ErrResponseFormat and ErrInvalidParameter.
//
// # Thread Safety
//
// A Connection is safe for concurrent use. Queries are serialized, so at
// most one response is awaited at any time.
package p100protocol
