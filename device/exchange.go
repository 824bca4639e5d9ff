package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/btconf/at"
)

// maxLineLength caps a buffered response line. HC-05 payloads stay far below.
const maxLineLength = 1024

// lineReader splits transport input into response lines. It keeps bytes that
// arrived after a line so the next read continues where the last one ended.
type lineReader struct {
	r     io.Reader
	buf   []byte
	chunk [256]byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r}
}

// discard drops buffered input.
func (lr *lineReader) discard() {
	lr.buf = lr.buf[:0]
}

// readLine returns the next non-empty line without its terminator. It returns
// ErrTimeout when no full line arrives before timeout elapses; a zero byte
// read from the transport counts as an elapsed timeout.
func (lr *lineReader) readLine(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if advance, token, _ := at.Splitter(lr.buf, false); advance > 0 {
			line := string(token)
			lr.buf = append(lr.buf[:0], lr.buf[advance:]...)
			if at.Classify(line) == at.TypeEmpty {
				continue
			}
			return line, nil
		}
		if len(lr.buf) > maxLineLength {
			lr.discard()
			return "", ErrLineTooLong
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", ErrTimeout
		}

		n, err := lr.r.Read(lr.chunk[:])
		lr.buf = append(lr.buf, lr.chunk[:n]...)
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
		if n == 0 {
			return "", ErrTimeout
		}
	}
}

// exchange writes one request and reads up to lines response lines. Lines
// not received are left empty; reading stops at the first failure, which is
// returned alongside the partial result.
func (c *Connection) exchange(ctx context.Context, request string, lines int) ([]string, error) {
	resp := make([]string, lines)

	wire := request + at.CRLF
	if _, err := c.transport.Write([]byte(wire)); err != nil {
		return resp, fmt.Errorf("write request %q: %w", request, err)
	}

	for i := range resp {
		line, err := c.reader.readLine(ctx, c.config.Timeout)
		if err != nil {
			c.logger.Debug("Exchange incomplete",
				zap.String("request", request),
				zap.Strings("lines", resp[:i]),
				zap.Error(err),
			)
			return resp, err
		}
		resp[i] = line
	}

	c.logger.Debug("Exchange completed",
		zap.String("request", request),
		zap.Strings("lines", resp),
	)
	return resp, nil
}
