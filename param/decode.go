package param

import (
	"strings"

	"i4.energy/across/btconf/at"
)

// Decode strips the protocol framing from a query payload line.
//
// The "<command>:" prefix, every '+' marker and every '"' quote are removed,
// then the "<replace>:" prefix when the definition declares one. With full
// set, remaining ':' field separators become ',' so a multi-field payload such
// as an address (98d3:31:fb1234) reads as 98d3,31,fb1234, the form the BIND
// command accepts. Unknown text passes through unchanged.
func Decode(raw string, def Definition, full bool) string {
	v := strings.ReplaceAll(raw, def.Command+at.FieldSeparator, "")
	v = strings.ReplaceAll(v, at.Marker, "")
	v = strings.ReplaceAll(v, at.Quote, "")

	if def.Replace != "" {
		v = strings.ReplaceAll(v, def.Replace+at.FieldSeparator, "")
	}

	if full {
		v = strings.ReplaceAll(v, at.FieldSeparator, ",")
	}
	return v
}
