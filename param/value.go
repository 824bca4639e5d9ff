package param

import (
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/btconf/at"
)

// Value is a typed parameter value ready to be written to the device. The
// concrete type fixes the wire encoding, so an Integer can never be sent
// quoted and a QuotedString never bare.
type Value interface {
	// Encode returns the text placed after "AT+<command>=".
	Encode() string
	// Type reports the parameter type the value belongs to.
	Type() Type

	value()
}

// Text is a bare String value, e.g. a UART setting "38400,0,0".
type Text string

// Quoted is a QuotedString value, written between double quotes.
type Quoted string

// Int is an Integer value.
type Int int

// Bool is a Boolean value, written as 1 or 0.
type Bool bool

func (v Text) Encode() string   { return string(v) }
func (v Quoted) Encode() string { return at.Quote + string(v) + at.Quote }
func (v Int) Encode() string    { return strconv.Itoa(int(v)) }
func (v Bool) Encode() string {
	if v {
		return "1"
	}
	return "0"
}

func (Text) Type() Type   { return String }
func (Quoted) Type() Type { return QuotedString }
func (Int) Type() Type    { return Integer }
func (Bool) Type() Type   { return Boolean }

func (Text) value()   {}
func (Quoted) value() {}
func (Int) value()    {}
func (Bool) value()   {}

// Value converts pending text into the typed value for this definition.
// Integer values are checked against the declared range.
func (d Definition) Value(text string) (Value, error) {
	if strings.ContainsAny(text, "\r\n") {
		return nil, fmt.Errorf("%w: %s value contains a line break", ErrInvalidValue, d.Command)
	}

	switch d.Type {
	case String:
		return Text(text), nil

	case QuotedString:
		if strings.Contains(text, at.Quote) {
			return nil, fmt.Errorf("%w: %s value %q contains a quote", ErrInvalidValue, d.Command, text)
		}
		return Quoted(text), nil

	case Integer:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %q is not an integer", ErrInvalidValue, d.Command, text)
		}
		if d.Range != nil && (n < d.Range.Min || n > d.Range.Max) {
			return nil, fmt.Errorf("%w: %s value %d not in %d..%d", ErrOutOfRange, d.Command, n, d.Range.Min, d.Range.Max)
		}
		return Int(n), nil

	case Boolean:
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %q is not a boolean", ErrInvalidValue, d.Command, text)
		}
		return Bool(b), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, d.Command)
	}
}
