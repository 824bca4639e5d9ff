package device

import "errors"

var (
	// ErrNoDialer is returned when a Connection is opened without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotOpen is returned when an operation is attempted on a Connection
	// that has been closed, or on a Session with no open connection.
	ErrNotOpen = errors.New("connection not open")

	// ErrAlreadyClosed is returned when Close is called on a Connection that
	// has already been closed.
	ErrAlreadyClosed = errors.New("connection already closed")

	// ErrBatchInProgress is returned when a batch or an edit commit is
	// attempted while a read or write batch is running on the same
	// connection. Callers retry once the batch completes.
	ErrBatchInProgress = errors.New("batch in progress")

	// ErrIndexOutOfRange is returned when a parameter index does not exist
	// in the connection's catalog.
	ErrIndexOutOfRange = errors.New("parameter index out of range")

	// ErrReadOnly is returned when an edit targets a None-typed parameter.
	ErrReadOnly = errors.New("parameter is read-only")

	// ErrTimeout is returned by the line reader when no complete line
	// arrived within the exchange timeout. Inside a batch it only marks the
	// current parameter as failed.
	ErrTimeout = errors.New("response timeout")

	// ErrLineTooLong is returned when a module response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates a wrong baud rate, unexpected binary data,
	// or a module that is not in AT command mode.
	ErrLineTooLong = errors.New("response line too long")
)
