package aggregators

import (
	"fmt"
	"strconv"
	"strings"
)

// EventClass indexes the five counters tracked per window.
type EventClass int

const (
	ClassNew EventClass = iota
	ClassSend
	ClassSendBytes
	ClassReceive
	ClassReceiveBytes
	NumClasses
)

// Classes lists every EventClass in index order.
var Classes = [NumClasses]EventClass{ClassNew, ClassSend, ClassSendBytes, ClassReceive, ClassReceiveBytes}

var classNames = [NumClasses]string{"new", "snd", "snd-data", "rcv", "rcv-data"}

func (c EventClass) String() string {
	if c < 0 || c >= NumClasses {
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
	return classNames[c]
}

// ParseClass is the inverse of EventClass.String.
func ParseClass(name string) (EventClass, error) {
	for i, n := range classNames {
		if n == name {
			return EventClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event class %q", name)
}

// Counters holds one value per EventClass.
type Counters struct {
	New          int64
	Send         int64
	SendBytes    int64
	Receive      int64
	ReceiveBytes int64
}

// Get returns the counter for c.
func (k *Counters) Get(c EventClass) int64 {
	switch c {
	case ClassNew:
		return k.New
	case ClassSend:
		return k.Send
	case ClassSendBytes:
		return k.SendBytes
	case ClassReceive:
		return k.Receive
	case ClassReceiveBytes:
		return k.ReceiveBytes
	}
	return 0
}

// Add folds o into k.
func (k *Counters) Add(o Counters) {
	k.New += o.New
	k.Send += o.Send
	k.SendBytes += o.SendBytes
	k.Receive += o.Receive
	k.ReceiveBytes += o.ReceiveBytes
}

// IsZero reports whether every counter is zero.
func (k Counters) IsZero() bool {
	return k == Counters{}
}

// Map renders counters keyed by class name.
func (k Counters) Map() map[string]int64 {
	out := make(map[string]int64, NumClasses)
	for _, c := range Classes {
		out[c.String()] = k.Get(c)
	}
	return out
}

// SeriesPoint is one closed window of one class. It marshals as [window_start, value].
type SeriesPoint struct {
	WindowStart float64
	Value       int64
}

func (p SeriesPoint) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 32)
	b = append(b, '[')
	b = strconv.AppendFloat(b, p.WindowStart, 'f', -1, 64)
	b = append(b, ',')
	b = strconv.AppendInt(b, p.Value, 10)
	b = append(b, ']')
	return b, nil
}

func (p *SeriesPoint) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return fmt.Errorf("series point: want [timestamp, value], got %s", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return fmt.Errorf("series point: want 2 elements, got %d", len(parts))
	}
	ts, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("series point timestamp: %w", err)
	}
	val, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return fmt.Errorf("series point value: %w", err)
	}
	p.WindowStart = ts
	p.Value = val
	return nil
}

// Result is the outcome of one aggregation pass.
type Result struct {
	Totals Counters
	Series [NumClasses][]SeriesPoint

	Records int64 // records consumed, skipped ones included
	Skipped int64 // records with an unknown event
	Windows int64 // windows closed, suppressed ones included
}

// SeriesOf returns the series for class c.
func (r *Result) SeriesOf(c EventClass) []SeriesPoint {
	if c < 0 || c >= NumClasses {
		return nil
	}
	return r.Series[c]
}

// SeriesMap renders the series keyed by class name. Empty series render as empty slices.
func (r *Result) SeriesMap() map[string][]SeriesPoint {
	out := make(map[string][]SeriesPoint, NumClasses)
	for _, c := range Classes {
		s := r.Series[c]
		if s == nil {
			s = []SeriesPoint{}
		}
		out[c.String()] = s
	}
	return out
}
