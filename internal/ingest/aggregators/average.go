package aggregators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/Krixium/scalable-server/internal/record"
)

// Field selects which numeric part of a LogRecord the Averager sums.
type Field int

const (
	FieldValue Field = iota
	FieldTimestamp
)

func (f Field) String() string {
	if f == FieldTimestamp {
		return "timestamp"
	}
	return "value"
}

// ParseField accepts "value" or "timestamp".
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "value", "":
		return FieldValue, nil
	case "timestamp", "ts":
		return FieldTimestamp, nil
	}
	return 0, fmt.Errorf("unknown field %q (use value or timestamp)", s)
}

// NoDataError is reported for a group that received no values.
type NoDataError struct {
	Group string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("group %q: no data", e.Group)
}

type groupSum struct {
	sum apd.Decimal
	n   int64
}

// Averager keeps an exact running sum and count per group label.
// Means are only computed by Results, after all input has been added.
type Averager struct {
	ctx    *apd.Context
	groups map[string]*groupSum
}

func NewAverager() *Averager {
	return &Averager{
		ctx:    apd.BaseContext.WithPrecision(34),
		groups: make(map[string]*groupSum),
	}
}

func (a *Averager) group(label string) *groupSum {
	g, ok := a.groups[label]
	if !ok {
		g = &groupSum{}
		a.groups[label] = g
	}
	return g
}

// Declare registers a group so that it is reported even if nothing is added to it.
func (a *Averager) Declare(label string) {
	a.group(label)
}

func (a *Averager) add(label string, d *apd.Decimal) error {
	if d.Form != apd.Finite {
		return fmt.Errorf("group %q: non-finite value %s", label, d.String())
	}
	g := a.group(label)
	var t apd.Decimal
	if _, err := a.ctx.Add(&t, &g.sum, d); err != nil {
		return fmt.Errorf("group %q: %w", label, err)
	}
	g.sum.Set(&t)
	g.n++
	return nil
}

// AddRecord adds the selected field of r to label's group.
func (a *Averager) AddRecord(label string, r record.LogRecord, f Field) error {
	var d apd.Decimal
	if f == FieldTimestamp {
		if _, err := d.SetFloat64(r.TimestampMs); err != nil {
			return fmt.Errorf("group %q: %w", label, err)
		}
	} else {
		d.SetInt64(r.Value)
	}
	return a.add(label, &d)
}

// AddDecimal parses s as a decimal number and adds it to label's group.
func (a *Averager) AddDecimal(label, s string) error {
	var d apd.Decimal
	if _, _, err := d.SetString(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return a.add(label, &d)
}

// Groups returns the known group labels, sorted.
func (a *Averager) Groups() []string {
	out := make([]string, 0, len(a.groups))
	for k := range a.groups {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Count returns how many values label's group received.
func (a *Averager) Count(label string) int64 {
	if g, ok := a.groups[label]; ok {
		return g.n
	}
	return 0
}

// Results divides each group's sum by its count. Groups without data are
// reported in errs as *NoDataError and are absent from means.
func (a *Averager) Results() (means map[string]float64, errs map[string]error) {
	means = make(map[string]float64, len(a.groups))
	errs = make(map[string]error)
	for label, g := range a.groups {
		if g.n == 0 {
			errs[label] = &NoDataError{Group: label}
			continue
		}
		var q apd.Decimal
		if _, err := a.ctx.Quo(&q, &g.sum, apd.New(g.n, 0)); err != nil {
			errs[label] = fmt.Errorf("group %q: %w", label, err)
			continue
		}
		f, err := q.Float64()
		if err != nil {
			errs[label] = fmt.Errorf("group %q: %w", label, err)
			continue
		}
		means[label] = f
	}
	return means, errs
}

// Average computes the mean of field f per group.
func Average(groups map[string][]record.LogRecord, f Field) (map[string]float64, map[string]error) {
	a := NewAverager()
	failed := make(map[string]error)
	for label, recs := range groups {
		a.Declare(label)
		for _, r := range recs {
			if err := a.AddRecord(label, r, f); err != nil {
				failed[label] = err
				break
			}
		}
	}
	means, errs := a.Results()
	for label, err := range failed {
		delete(means, label)
		errs[label] = err
	}
	return means, errs
}
