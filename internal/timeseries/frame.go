// Package timeseries provides the hourly, time-indexed table that raw
// forecast channels, engineered features and rating targets live in.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frame is a time-indexed table: one row per timestamp, named float64
// columns of equal length. Gaps are NaN. The index is kept strictly
// increasing with unique timestamps (see Normalize).
type Frame struct {
	times []time.Time
	cols  map[string][]float64
	order []string // column order, stable across copies
}

// New returns an empty frame.
func New() *Frame {
	return &Frame{cols: make(map[string][]float64)}
}

// NewWithTimes returns a frame with the given index and no columns.
func NewWithTimes(times []time.Time) *Frame {
	f := New()
	f.times = append(f.times, times...)
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.times)
}

// Times returns the row timestamps. The returned slice must not be mutated.
func (f *Frame) Times() []time.Time {
	return f.times
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.order...)
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns the values of a column. The returned slice must not be
// mutated; use SetColumn to replace values.
func (f *Frame) Column(name string) ([]float64, bool) {
	vals, ok := f.cols[name]
	return vals, ok
}

// Value returns a single cell, NaN if the column is missing.
func (f *Frame) Value(name string, row int) float64 {
	vals, ok := f.cols[name]
	if !ok || row < 0 || row >= len(vals) {
		return math.NaN()
	}
	return vals[row]
}

// SetColumn adds or replaces a column. The value slice is copied.
func (f *Frame) SetColumn(name string, vals []float64) error {
	if len(vals) != len(f.times) {
		return fmt.Errorf("column %s has %d values, frame has %d rows", name, len(vals), len(f.times))
	}
	if _, exists := f.cols[name]; !exists {
		f.order = append(f.order, name)
	}
	f.cols[name] = append([]float64(nil), vals...)
	return nil
}

// SetConstant adds or replaces a column holding a single repeated value.
func (f *Frame) SetConstant(name string, v float64) {
	vals := make([]float64, len(f.times))
	for i := range vals {
		vals[i] = v
	}
	// Length always matches, error impossible.
	_ = f.SetColumn(name, vals)
}

// SetCell writes one value into an existing column.
func (f *Frame) SetCell(name string, row int, v float64) error {
	vals, ok := f.cols[name]
	if !ok {
		return fmt.Errorf("column %s does not exist", name)
	}
	if row < 0 || row >= len(vals) {
		return fmt.Errorf("row %d out of range for column %s", row, name)
	}
	vals[row] = v
	return nil
}

// Select returns a new frame restricted to the given columns, preserving
// their requested order. Missing columns are an error naming the column.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := NewWithTimes(f.times)
	for _, name := range names {
		vals, ok := f.cols[name]
		if !ok {
			return nil, fmt.Errorf("column %s not present in frame", name)
		}
		if err := out.SetColumn(name, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Copy returns a deep copy. Enrichment and rating always work on copies so
// the input frame is never aliased.
func (f *Frame) Copy() *Frame {
	out := NewWithTimes(f.times)
	for _, name := range f.order {
		_ = out.SetColumn(name, f.cols[name])
	}
	return out
}

// Diff returns the first difference of a column; the first element is NaN.
func (f *Frame) Diff(name string) ([]float64, error) {
	vals, ok := f.cols[name]
	if !ok {
		return nil, fmt.Errorf("column %s not present in frame", name)
	}

	out := make([]float64, len(vals))
	if len(out) > 0 {
		out[0] = math.NaN()
	}
	for i := 1; i < len(vals); i++ {
		out[i] = vals[i] - vals[i-1]
	}
	return out, nil
}

// Normalize sorts rows by timestamp and drops duplicate timestamps keeping
// the first occurrence. Upstream data quality is known to be imperfect, so
// this is applied at ingestion rather than treated as an error.
func (f *Frame) Normalize() {
	n := len(f.times)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return f.times[idx[a]].Before(f.times[idx[b]])
	})

	keep := idx[:0]
	var prev time.Time
	for i, j := range idx {
		if i > 0 && f.times[j].Equal(prev) {
			continue
		}
		prev = f.times[j]
		keep = append(keep, j)
	}

	times := make([]time.Time, len(keep))
	for i, j := range keep {
		times[i] = f.times[j]
	}

	cols := make(map[string][]float64, len(f.cols))
	for name, vals := range f.cols {
		nv := make([]float64, len(keep))
		for i, j := range keep {
			nv[i] = vals[j]
		}
		cols[name] = nv
	}

	f.times = times
	f.cols = cols
}

// Slice returns the rows with from <= t <= to as a new frame.
func (f *Frame) Slice(from, to time.Time) *Frame {
	lo := sort.Search(len(f.times), func(i int) bool { return !f.times[i].Before(from) })
	hi := sort.Search(len(f.times), func(i int) bool { return f.times[i].After(to) })

	out := NewWithTimes(f.times[lo:hi])
	for _, name := range f.order {
		_ = out.SetColumn(name, f.cols[name][lo:hi])
	}
	return out
}

// Merge unions other into f on the time index, column by column. For each
// column the value comes from whichever frame carries that column; where
// both frames carry it, other wins at shared timestamps. Cells covered by
// neither frame are NaN. The result is normalized.
func (f *Frame) Merge(other *Frame) *Frame {
	names := make([]string, 0, len(f.order)+len(other.order))
	names = append(names, f.order...)
	for _, name := range other.order {
		if _, ok := f.cols[name]; !ok {
			names = append(names, name)
		}
	}

	rowF := make(map[int64]int, f.Len())
	rowO := make(map[int64]int, other.Len())
	var order []int64
	for i, t := range f.times {
		key := t.Unix()
		if _, seen := rowF[key]; !seen {
			order = append(order, key)
		}
		rowF[key] = i
	}
	for i, t := range other.times {
		key := t.Unix()
		_, inF := rowF[key]
		_, seen := rowO[key]
		if !inF && !seen {
			order = append(order, key)
		}
		rowO[key] = i
	}

	times := make([]time.Time, len(order))
	for i, key := range order {
		times[i] = time.Unix(key, 0).UTC()
	}
	out := NewWithTimes(times)

	for _, name := range names {
		fv, inF := f.cols[name]
		ov, inO := other.cols[name]
		vals := make([]float64, len(order))
		for i, key := range order {
			v := math.NaN()
			if inF {
				if row, ok := rowF[key]; ok {
					v = fv[row]
				}
			}
			if inO {
				if row, ok := rowO[key]; ok {
					v = ov[row]
				}
			}
			vals[i] = v
		}
		_ = out.SetColumn(name, vals)
	}

	out.Normalize()
	return out
}

// Covers reports whether the frame has a row for every whole hour in
// [from, to].
func (f *Frame) Covers(from, to time.Time) bool {
	if len(f.times) == 0 {
		return false
	}

	have := make(map[int64]struct{}, len(f.times))
	for _, t := range f.times {
		have[t.Truncate(time.Hour).Unix()] = struct{}{}
	}

	for t := from.Truncate(time.Hour); !t.After(to); t = t.Add(time.Hour) {
		if _, ok := have[t.Unix()]; !ok {
			return false
		}
	}
	return true
}
