package device

import (
	"fmt"
	"time"

	"i4.energy/across/btconf/param"
)

// Class summarizes how a parameter's pending value relates to the device.
type Class int

const (
	// ClassUnread means no read has succeeded since the connection opened.
	ClassUnread Class = iota
	// ClassSynced means the pending value equals the last value read.
	ClassSynced
	// ClassDiverged means the pending value holds an unwritten edit.
	ClassDiverged
	// ClassError means the last exchange for the parameter failed.
	ClassError
	// ClassWriteConfirmed means the device acknowledged the last write.
	ClassWriteConfirmed
)

var classNames = [...]string{
	ClassUnread:         "unread",
	ClassSynced:         "synced",
	ClassDiverged:       "diverged",
	ClassError:          "error",
	ClassWriteConfirmed: "write-confirmed",
}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(text []byte) error {
	for i, name := range classNames {
		if name == string(text) {
			*c = Class(i)
			return nil
		}
	}
	return fmt.Errorf("unknown class %q", text)
}

// ParameterState is the runtime state of one catalog entry on an open
// connection.
type ParameterState struct {
	// Request is the last request line sent for the parameter.
	Request string
	// Response is the raw payload line of the last read.
	Response string
	// Status is the last status line received.
	Status string
	// Current is the fully decoded value of the last successful read.
	Current string
	// Display is the single-line decoding of the last successful read.
	Display string
	// Pending is the value the next write batch sends.
	Pending string
	// Class classifies Pending against the device.
	Class Class
	// Diagnostic keeps the failing response or status text verbatim.
	Diagnostic string

	// seeded is set once Pending holds a value from a read or an edit.
	seeded bool
}

// merge applies a successful read. Pending follows the device only while it
// still equals the value read before; an unwritten edit is kept.
func (s *ParameterState) merge(def param.Definition, current, display string) {
	if !def.Writable() || s.Pending == s.Current {
		s.Pending = current
	}
	s.Current = current
	s.Display = display
	s.Diagnostic = ""
	s.seeded = true
	s.reclassify()
}

// failRead records a failed read. The device value is no longer known.
func (s *ParameterState) failRead(diagnostic string) {
	s.Current = ""
	s.Display = ""
	s.Diagnostic = diagnostic
	s.Class = ClassError
}

// failWrite records a rejected or unanswered write.
func (s *ParameterState) failWrite(diagnostic string) {
	s.Diagnostic = diagnostic
	s.Class = ClassError
}

func (s *ParameterState) commit(text string) {
	s.Pending = text
	s.seeded = true
	s.reclassify()
}

func (s *ParameterState) reclassify() {
	if s.Pending == s.Current {
		s.Class = ClassSynced
	} else {
		s.Class = ClassDiverged
	}
}

// ParameterView is the render feed for one parameter: what a caller shows
// in a row of its parameter table.
type ParameterView struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	Command    string `json:"command"`
	Type       string `json:"type"`
	Writable   bool   `json:"writable"`
	Display    string `json:"display"`
	Current    string `json:"current"`
	Pending    string `json:"pending"`
	Class      Class  `json:"class"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Report summarizes one batch.
type Report struct {
	Batch    string        `json:"batch"`
	OK       int           `json:"ok"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}
