package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command module responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings. A lone LF is also accepted as a
// terminator since some HC-05 firmware revisions drop the CR after the
// status line.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte("\r")), nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of a response line
func Classify(line string) ResponseType {
	switch line {
	case "":
		return TypeEmpty
	case OK, ERROR, Fail:
		return TypeFinal
	}

	if strings.HasPrefix(line, ErrorTag) {
		return TypeFinal
	}
	return TypeData
}

// Query builds the read request for a command token, without the line
// terminator: "AT+NAME?".
func Query(command string) string {
	return Prefix + command + QuerySuffix
}

// Set builds the write request for a command token and an already encoded
// value, without the line terminator: `AT+NAME="HC-05"`.
func Set(command, encoded string) string {
	return Prefix + command + SetOperator + encoded
}
