package record

import "fmt"

// MalformedRecordError reports a structurally invalid line.
type MalformedRecordError struct {
	Line   string
	Field  string // "fields", "timestamp" or "value"
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record (%s: %s): %q", e.Field, e.Reason, e.Line)
}

// UnknownEventError reports a well-formed line whose event token is not new/snd/rcv.
// It is recoverable: callers normally skip the record and continue.
type UnknownEventError struct {
	Token  string
	Record LogRecord
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q at %.3f", e.Token, e.Record.TimestampMs)
}
