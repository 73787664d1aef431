package record

import (
	"math"
	"strconv"
	"strings"
)

// Event is the kind of server activity a log line describes.
type Event int

const (
	EventUnknown Event = iota
	EventNew
	EventSend
	EventReceive
)

// tokens as written by the servers' logAcc/logSnd/logRcv
const (
	TokenNew     = "new"
	TokenSend    = "snd"
	TokenReceive = "rcv"
)

func (e Event) String() string {
	switch e {
	case EventNew:
		return TokenNew
	case EventSend:
		return TokenSend
	case EventReceive:
		return TokenReceive
	}
	return "unknown"
}

// EventFromToken maps a raw event token to an Event. Unrecognised tokens map to EventUnknown.
func EventFromToken(tok string) Event {
	switch tok {
	case TokenNew:
		return EventNew
	case TokenSend:
		return EventSend
	case TokenReceive:
		return EventReceive
	}
	return EventUnknown
}

// LogRecord is one parsed server log line.
type LogRecord struct {
	Socket      string
	TimestampMs float64
	Event       Event
	Token       string // raw event token, kept for skip reporting
	Value       int64
}

const (
	colSocket = iota
	colTimestamp
	colEvent
	colValue
	numCols
)

// Parser turns raw lines into LogRecords.
//
// AllowShortNew accepts "sock,ts,new" lines without a value column; the
// accept logger in the servers never wrote one. Strict parsing rejects them.
type Parser struct {
	AllowShortNew bool
}

// Parse parses a line strictly (exactly four fields).
func Parse(line string) (LogRecord, error) {
	return Parser{}.Parse(line)
}

// Parse converts one line into a LogRecord. A line with a recognised
// structure but an unknown event token returns the record (Event ==
// EventUnknown) together with an *UnknownEventError so callers can log it.
func (p Parser) Parse(line string) (LogRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if len(fields) == numCols-1 && p.AllowShortNew && fields[colEvent] == TokenNew {
		fields = append(fields, "0")
	}
	if len(fields) != numCols {
		return LogRecord{}, &MalformedRecordError{Line: line, Field: "fields", Reason: "expected 4 comma-separated fields, got " + strconv.Itoa(len(fields))}
	}

	ts, err := strconv.ParseFloat(fields[colTimestamp], 64)
	if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return LogRecord{}, &MalformedRecordError{Line: line, Field: "timestamp", Reason: "not a number: " + strconv.Quote(fields[colTimestamp])}
	}
	if ts < 0 {
		return LogRecord{}, &MalformedRecordError{Line: line, Field: "timestamp", Reason: "negative"}
	}

	val, err := strconv.ParseInt(fields[colValue], 10, 64)
	if err != nil {
		return LogRecord{}, &MalformedRecordError{Line: line, Field: "value", Reason: "not an integer: " + strconv.Quote(fields[colValue])}
	}

	rec := LogRecord{
		Socket:      fields[colSocket],
		TimestampMs: ts,
		Event:       EventFromToken(fields[colEvent]),
		Token:       fields[colEvent],
		Value:       val,
	}
	if rec.Event == EventUnknown {
		return rec, &UnknownEventError{Token: rec.Token, Record: rec}
	}
	return rec, nil
}
