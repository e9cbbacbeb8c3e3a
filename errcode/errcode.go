package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable). These appear verbatim in bus payloads and
// in serialized run reports, so renaming one is a wire change.
const (
	OK Code = "ok"

	// Transport-level failure on the shared I2C bus: NACK, arbitration loss,
	// transaction timeout. Recoverable at the run level, never fatal.
	BusError Code = "bus_error"
	// No sensor answered at the expected address. Ambiguous between "channel
	// is empty" and "sensor was already programmed off the default address".
	NoResponse Code = "no_response"
	// A sensor answered at the new address but the identity readback did not
	// match. Needs operator attention; never silently accepted.
	VerifyMismatch Code = "verify_mismatch"

	Busy          Code = "busy"
	InvalidConfig Code = "invalid_config"
	InvalidTopic  Code = "invalid_topic"
	Timeout       Code = "timeout"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
