// Package param describes the configurable settings of an HC-05 class
// Bluetooth serial module: the ordered parameter catalog, the typed values
// written back to the device and the decoding of query responses.
package param

import (
	"fmt"
	"strings"
)

// Type is the encoding a parameter uses on the wire.
type Type int

const (
	// None marks a read-only identity or status field.
	None Type = iota
	Integer
	String
	QuotedString
	Boolean
)

var typeNames = map[Type]string{
	None:         "none",
	Integer:      "integer",
	String:       "string",
	QuotedString: "quoted",
	Boolean:      "boolean",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps a configuration name ("none", "integer", "string",
// "quoted", "boolean") to its Type.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return None, fmt.Errorf("%w: unknown type %q", ErrInvalidCatalog, name)
}

// Range bounds the values accepted by an Integer parameter, inclusive.
type Range struct {
	Min int
	Max int
}

// Definition identifies one device parameter. Definitions are immutable once
// a Catalog holds them.
type Definition struct {
	// Label is the human readable name ("Name", "PIN").
	Label string
	// Command is the protocol token placed after "AT+".
	Command string
	// Replace is an alternate prefix some firmware echoes instead of
	// Command, e.g. PSWD answers with +PIN:"1234".
	Replace string
	// Type selects the encoding of written values.
	Type Type
	// Range is only meaningful for Integer parameters.
	Range *Range
}

// Writable reports whether the parameter accepts a write request.
func (d Definition) Writable() bool {
	return d.Type != None
}

// Catalog is an ordered, validated list of definitions.
type Catalog struct {
	defs []Definition
}

// NewCatalog validates defs and returns a catalog holding a private copy.
func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no definitions", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Command == "" {
			return nil, fmt.Errorf("%w: definition %d has no command", ErrInvalidCatalog, i)
		}
		if strings.ContainsAny(d.Command, "+?=:\" \r\n") {
			return nil, fmt.Errorf("%w: command %q contains framing characters", ErrInvalidCatalog, d.Command)
		}
		if seen[d.Command] {
			return nil, fmt.Errorf("%w: duplicate command %q", ErrInvalidCatalog, d.Command)
		}
		seen[d.Command] = true
		if _, ok := typeNames[d.Type]; !ok {
			return nil, fmt.Errorf("%w: %s has unknown type %d", ErrInvalidCatalog, d.Command, int(d.Type))
		}
		if d.Range != nil {
			if d.Type != Integer {
				return nil, fmt.Errorf("%w: %s declares a range but is %s", ErrInvalidCatalog, d.Command, d.Type)
			}
			if d.Range.Min > d.Range.Max {
				return nil, fmt.Errorf("%w: %s range %d..%d is empty", ErrInvalidCatalog, d.Command, d.Range.Min, d.Range.Max)
			}
		}
	}

	c := &Catalog{defs: make([]Definition, len(defs))}
	for i, d := range defs {
		if d.Label == "" {
			d.Label = d.Command
		}
		if d.Range != nil {
			r := *d.Range
			d.Range = &r
		}
		c.defs[i] = d
	}
	return c, nil
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// At returns the definition at index i. It panics when i is out of range,
// like a slice index.
func (c *Catalog) At(i int) Definition {
	return c.defs[i]
}

// Definitions returns the definitions in catalog order. The slice is a copy.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

var defaultCatalog = mustCatalog([]Definition{
	{Label: "State", Command: "STATE", Type: None},
	{Label: "Version", Command: "VERSION", Type: None},
	{Label: "Address", Command: "ADDR", Type: None},
	{Label: "Name", Command: "NAME", Type: QuotedString},
	{Label: "PIN", Command: "PSWD", Replace: "PIN", Type: QuotedString},
	{Label: "Speed", Command: "UART", Type: String},
	{Label: "Role", Command: "ROLE", Type: Integer, Range: &Range{Min: 0, Max: 2}},
	{Label: "Connection Mode", Command: "CMODE", Type: Integer, Range: &Range{Min: 0, Max: 2}},
	{Label: "Binding Address", Command: "BIND", Type: String},
	{Label: "Device Class", Command: "CLASS", Type: String},
	{Label: "Inquiry Access Code", Command: "IAC", Type: String},
	{Label: "Inquiry Mode", Command: "INQM", Type: String},
	{Label: "LED Polarity", Command: "POLAR", Type: String},
})

func mustCatalog(defs []Definition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the built-in HC-05 catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Definitions returns the built-in catalog's definitions in order.
func Definitions() []Definition {
	return defaultCatalog.Definitions()
}
