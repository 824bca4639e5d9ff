package device

import (
	"context"
	"io"
)

//go:generate go tool mockgen -destination=mock_transport.go -package=device . Transport,Dialer

// Transport represents an established, bidirectional byte stream to a
// Bluetooth serial module in AT command mode.
//
// A Transport is assumed to be already connected and ready for use. Read
// follows the serial port convention of returning 0, nil once the read
// timeout elapses without data. Both reset methods discard bytes buffered by
// the driver; go.bug.st/serial ports satisfy the interface directly.
type Transport interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Dialer opens a Transport to a module.
//
// Dialer abstracts how the connection is created (serial port or test
// double) and is used by Open only. Once a Transport is obtained, the Dialer
// is no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It
	// may perform blocking operations and should respect cancellation
	// provided by the context. Dial returns an error if the transport cannot
	// be established.
	Dial(ctx context.Context) (Transport, error)
}
