package device

import (
	"context"
	"io"
	"strings"
	"sync"

	"i4.energy/across/btconf/at"
)

// TestTransport is a test helper that simulates a module answering AT
// requests from a script. Each request written to it queues the scripted
// response for reading; a request without a script queues nothing, so the
// following reads time out the way a silent serial port does.
type TestTransport struct {
	mu          sync.Mutex
	replies     map[string]string
	pending     []byte
	requests    []string
	inputResets int
	closed      bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		replies: make(map[string]string),
	}
}

// Reply scripts the raw response (CRLF included) for a request line given
// without its terminator, e.g. Reply("AT+ROLE?", "+ROLE:1\r\nOK\r\n").
func (t *TestTransport) Reply(request, response string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[request] = response
	return t
}

// Silence removes the script for a request so it times out.
func (t *TestTransport) Silence(request string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.replies, request)
	return t
}

// SendData queues unsolicited bytes to be read by the transport.
// This simulates stale output left on the line by the module.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.pending = append(t.pending, data...)
	}
}

// Requests returns the request lines written so far, without terminators.
func (t *TestTransport) Requests() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.requests))
	copy(out, t.requests)
	return out
}

// InputResets counts ResetInputBuffer calls.
func (t *TestTransport) InputResets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputResets
}

// Closed reports whether Close was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	for _, line := range strings.Split(string(p), at.CRLF) {
		if line == "" {
			continue
		}
		t.requests = append(t.requests, line)
		if resp, ok := t.replies[line]; ok {
			t.pending = append(t.pending, resp...)
		}
	}
	return len(p), nil
}

// Read returns queued bytes, or 0, nil like a serial port whose read
// timeout elapsed.
func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputResets++
	t.pending = nil
	return nil
}

func (t *TestTransport) ResetOutputBuffer() error {
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
	return nil
}

// TestDialer hands out a fixed Transport, or Err when set.
type TestDialer struct {
	Transport Transport
	Err       error
}

func (d TestDialer) Dial(ctx context.Context) (Transport, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Transport, nil
}
