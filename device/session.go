package device

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Session holds at most one open Connection. Opening a new connection first
// closes the current one, so two connections never share a line.
type Session struct {
	mu   sync.Mutex
	conn *Connection
}

// Open closes the current connection, if any, and opens a new one from
// config. When the new connection fails to open the session is left empty.
func (s *Session) Open(ctx context.Context, config Config) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		prev := s.conn
		s.conn = nil
		if err := prev.Close(); err != nil && !errors.Is(err, ErrAlreadyClosed) {
			prev.logger.Warn("Closing previous connection failed", zap.Error(err))
		}
	}

	conn, err := Open(ctx, config)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// Current returns the open connection or ErrNotOpen.
func (s *Session) Current() (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.Closed() {
		return nil, ErrNotOpen
	}
	return s.conn, nil
}

// Close closes the open connection. Closing an empty session returns
// ErrNotOpen.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotOpen
	}
	conn := s.conn
	s.conn = nil
	return conn.Close()
}
