package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"i4.energy/across/btconf/at"
	"i4.energy/across/btconf/param"
)

// Connection is an open line to one module together with the runtime state
// of every catalog parameter. The state slice is indexed by catalog index and
// lives exactly as long as the connection: Close discards it, and a new
// connection starts every parameter at ClassUnread.
//
// Read and Write batches run one at a time over the half-duplex line. While a
// batch runs, CommitEdit and other batches fail with ErrBatchInProgress;
// snapshots remain available.
type Connection struct {
	// id tags log lines and API responses for this connection
	id string
	// transport provides the physical connection to the module
	transport Transport
	// reader splits transport input into response lines
	reader *lineReader
	// config contains the connection configuration settings
	config  Config
	catalog *param.Catalog
	logger  *zap.Logger

	// mu guards the fields below
	mu     sync.Mutex
	states []ParameterState
	busy   bool
	closed bool
}

// Open dials the transport described by config and returns a connection
// with every parameter unread.
//
// Returns an error if the configuration is invalid or the transport cannot be
// opened; no parameter state exists in that case.
func Open(ctx context.Context, config Config) (*Connection, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	if transport == nil {
		return nil, fmt.Errorf("open transport: %w", ErrNotOpen)
	}

	id := uuid.NewString()
	c := &Connection{
		id:        id,
		transport: transport,
		reader:    newLineReader(transport),
		config:    config,
		catalog:   config.Catalog,
		logger:    config.Logger.With(zap.String("connection_id", id)),
		states:    make([]ParameterState, config.Catalog.Len()),
	}

	c.logger.Info("Connection opened", zap.Int("parameters", c.catalog.Len()))
	return c, nil
}

// ID returns the identifier assigned when the connection opened.
func (c *Connection) ID() string {
	return c.id
}

// Catalog returns the catalog the connection synchronizes.
func (c *Connection) Catalog() *param.Catalog {
	return c.catalog
}

// Close releases the transport and discards all parameter state. After
// Close the connection cannot be reused.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.closed = true
	c.states = nil
	c.mu.Unlock()

	c.logger.Info("Connection closed")
	return c.transport.Close()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Read queries every parameter in catalog order and merges the results.
//
// A timeout or a non-OK status only marks that parameter as failed; the
// batch always continues with the next definition. The context is checked
// between exchanges, and a canceled batch returns the context error with
// the remaining parameters untouched.
func (c *Connection) Read(ctx context.Context) (Report, error) {
	if err := c.beginBatch(); err != nil {
		return Report{}, err
	}
	defer c.endBatch()

	report := Report{Batch: "read"}
	start := time.Now()

	if err := c.transport.ResetInputBuffer(); err != nil {
		c.logger.Warn("Failed to discard stale input", zap.Error(err))
	}
	c.reader.discard()

	for i, def := range c.catalog.Definitions() {
		if err := ctx.Err(); err != nil {
			return c.finish(report, start, err)
		}

		request := at.Query(def.Command)
		lines, err := c.exchange(ctx, request, 2)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return c.finish(report, start, ctxErr)
		}
		payload, status := lines[0], lines[1]

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return c.finish(report, start, ErrNotOpen)
		}
		s := &c.states[i]
		s.Request = request
		s.Response = payload
		s.Status = status
		if status == at.OK {
			s.merge(def, param.Decode(payload, def, true), param.Decode(payload, def, false))
			report.OK++
		} else {
			s.failRead(diagnostic(err, payload, status))
			report.Failed++
		}
		class := s.Class
		c.mu.Unlock()

		c.logger.Debug("Parameter read",
			zap.String("command", def.Command),
			zap.Stringer("class", class),
		)
	}

	return c.finish(report, start, nil)
}

// Write sends the pending value of every writable parameter.
//
// Pending text is converted to the parameter's typed value first; a value
// that does not parse or lies outside the declared range marks the
// parameter failed without sending anything. Parameters that never held a
// value are skipped, as are synced ones when SkipUnchanged is set.
func (c *Connection) Write(ctx context.Context) (Report, error) {
	if err := c.beginBatch(); err != nil {
		return Report{}, err
	}
	defer c.endBatch()

	report := Report{Batch: "write"}
	start := time.Now()

	if err := c.transport.ResetInputBuffer(); err != nil {
		c.logger.Warn("Failed to discard stale input", zap.Error(err))
	}
	if err := c.transport.ResetOutputBuffer(); err != nil {
		c.logger.Warn("Failed to discard pending output", zap.Error(err))
	}
	c.reader.discard()

	for i, def := range c.catalog.Definitions() {
		if !def.Writable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.finish(report, start, err)
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return c.finish(report, start, ErrNotOpen)
		}
		s := c.states[i]
		c.mu.Unlock()

		if !s.seeded || (c.config.SkipUnchanged && s.Class == ClassSynced) {
			report.Skipped++
			continue
		}

		value, err := def.Value(s.Pending)
		if err != nil {
			c.update(i, func(s *ParameterState) { s.failWrite(err.Error()) })
			report.Failed++
			c.logger.Warn("Pending value rejected",
				zap.String("command", def.Command),
				zap.String("pending", s.Pending),
				zap.Error(err),
			)
			continue
		}

		request := at.Set(def.Command, value.Encode())
		lines, err := c.exchange(ctx, request, 1)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return c.finish(report, start, ctxErr)
		}
		status := lines[0]

		ok := c.update(i, func(s *ParameterState) {
			s.Request = request
			s.Status = status
			if status == at.OK {
				s.Class = ClassWriteConfirmed
				s.Diagnostic = ""
			} else {
				s.failWrite(diagnostic(err, status))
			}
		})
		if !ok {
			return c.finish(report, start, ErrNotOpen)
		}
		if status == at.OK {
			report.OK++
		} else {
			report.Failed++
		}
	}

	return c.finish(report, start, nil)
}

// BeginEdit returns the pending value an edit surface should start from.
func (c *Connection) BeginEdit(index int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editable(index); err != nil {
		return "", err
	}
	return c.states[index].Pending, nil
}

// CommitEdit stores text as the pending value of the parameter at index.
// The parameter is synced when text equals the last value read, diverged
// otherwise; a diverged value survives later reads until it is written or
// edited back.
func (c *Connection) CommitEdit(index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editable(index); err != nil {
		return err
	}
	if c.busy {
		return ErrBatchInProgress
	}

	s := &c.states[index]
	s.commit(text)

	c.logger.Debug("Edit committed",
		zap.String("command", c.catalog.At(index).Command),
		zap.Stringer("class", s.Class),
	)
	return nil
}

// States returns a copy of every parameter state in catalog order.
func (c *Connection) States() []ParameterState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ParameterState, len(c.states))
	copy(out, c.states)
	return out
}

// Snapshot returns the render feed for every parameter in catalog order.
func (c *Connection) Snapshot() []ParameterView {
	states := c.States()
	views := make([]ParameterView, len(states))
	for i, s := range states {
		def := c.catalog.At(i)
		views[i] = ParameterView{
			Index:      i,
			Label:      def.Label,
			Command:    def.Command,
			Type:       def.Type.String(),
			Writable:   def.Writable(),
			Display:    s.Display,
			Current:    s.Current,
			Pending:    s.Pending,
			Class:      s.Class,
			Diagnostic: s.Diagnostic,
		}
	}
	return views
}

func (c *Connection) editable(index int) error {
	if c.closed {
		return ErrNotOpen
	}
	if index < 0 || index >= len(c.states) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	if !c.catalog.At(index).Writable() {
		return fmt.Errorf("%w: %s", ErrReadOnly, c.catalog.At(index).Command)
	}
	return nil
}

func (c *Connection) beginBatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotOpen
	}
	if c.busy {
		return ErrBatchInProgress
	}
	c.busy = true
	return nil
}

func (c *Connection) endBatch() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// update applies fn to the state at index unless the connection closed
// meanwhile.
func (c *Connection) update(index int, fn func(*ParameterState)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	fn(&c.states[index])
	return true
}

func (c *Connection) finish(report Report, start time.Time, err error) (Report, error) {
	report.Duration = time.Since(start)
	fields := []zap.Field{
		zap.String("batch", report.Batch),
		zap.Int("ok", report.OK),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration),
	}
	if err != nil {
		c.logger.Warn("Batch aborted", append(fields, zap.Error(err))...)
		return report, err
	}
	c.logger.Info("Batch completed", fields...)
	return report, nil
}

// diagnostic picks the first non-empty response text, falling back to the
// exchange error.
func diagnostic(err error, texts ...string) string {
	for _, t := range texts {
		if t != "" {
			return t
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
