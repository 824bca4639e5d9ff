package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Request framing
	Prefix      = "AT+"
	QuerySuffix = "?"
	SetOperator = "="

	// Response framing
	FieldSeparator = ":"
	Marker         = "+"
	Quote          = `"`

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	Fail     = "FAIL"
	ErrorTag = "ERROR:"
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR, FAIL, ERROR:(n)
	TypeData                      // Payload line (+NAME:"HC-05")
	TypeEmpty                     // Nothing received before the timeout
)
