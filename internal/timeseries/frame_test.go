package timeseries

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hours(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestSetColumnLengthMismatch(t *testing.T) {
	f := NewWithTimes(hours(t0, 3))
	err := f.SetColumn("waveHeight", []float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waveHeight")
}

func TestSelectMissingColumnNamesIt(t *testing.T) {
	f := NewWithTimes(hours(t0, 2))
	require.NoError(t, f.SetColumn("waveHeight", []float64{1, 2}))

	_, err := f.Select("waveHeight", "windMagOnShore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "windMagOnShore")
}

func TestSelectPreservesRequestedOrder(t *testing.T) {
	f := NewWithTimes(hours(t0, 2))
	require.NoError(t, f.SetColumn("a", []float64{1, 2}))
	require.NoError(t, f.SetColumn("b", []float64{3, 4}))

	sub, err := f.Select("b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, sub.Columns())
}

func TestNormalizeSortsAndDedupesKeepingFirst(t *testing.T) {
	times := []time.Time{
		t0.Add(2 * time.Hour),
		t0,
		t0.Add(time.Hour),
		t0, // duplicate, later occurrence must be dropped
	}
	f := NewWithTimes(times)
	require.NoError(t, f.SetColumn("v", []float64{30, 10, 20, 99}))

	f.Normalize()

	require.Equal(t, 3, f.Len())
	assert.Equal(t, t0, f.Times()[0])
	vals, _ := f.Column("v")
	// First occurrence of the duplicated timestamp wins.
	assert.Equal(t, []float64{10, 20, 30}, vals)
}

func TestDiffLeadingNaN(t *testing.T) {
	f := NewWithTimes(hours(t0, 4))
	require.NoError(t, f.SetColumn("NAP", []float64{0.5, 0.8, 0.6, 0.6}))

	diff, err := f.Diff("NAP")
	require.NoError(t, err)

	assert.True(t, math.IsNaN(diff[0]))
	assert.InDelta(t, 0.3, diff[1], 1e-9)
	assert.InDelta(t, -0.2, diff[2], 1e-9)
	assert.InDelta(t, 0.0, diff[3], 1e-9)
}

func TestCopyIsDeep(t *testing.T) {
	f := NewWithTimes(hours(t0, 2))
	require.NoError(t, f.SetColumn("v", []float64{1, 2}))

	c := f.Copy()
	require.NoError(t, c.SetCell("v", 0, 42))

	orig, _ := f.Column("v")
	assert.Equal(t, 1.0, orig[0])
}

func TestMergeOverwritesAndUnionsColumns(t *testing.T) {
	old := NewWithTimes(hours(t0, 3))
	require.NoError(t, old.SetColumn("waveHeight", []float64{1, 1, 1}))

	newer := NewWithTimes(hours(t0.Add(2*time.Hour), 2))
	require.NoError(t, newer.SetColumn("waveHeight", []float64{2, 2}))
	require.NoError(t, newer.SetColumn("NAP", []float64{0.1, 0.2}))

	merged := old.Merge(newer)

	require.Equal(t, 4, merged.Len())
	wh, _ := merged.Column("waveHeight")
	assert.Equal(t, []float64{1, 1, 2, 2}, wh)

	nap, _ := merged.Column("NAP")
	assert.True(t, math.IsNaN(nap[0]))
	assert.True(t, math.IsNaN(nap[1]))
	assert.Equal(t, 0.1, nap[2])
}

func TestMergeKeepsReceiverOnlyColumnsOnSharedHours(t *testing.T) {
	weather := NewWithTimes(hours(t0, 2))
	require.NoError(t, weather.SetColumn("waveHeight", []float64{1.5, 1.6}))
	require.NoError(t, weather.SetColumn("windSpeed", []float64{7, 8}))

	tide := NewWithTimes(hours(t0, 2))
	require.NoError(t, tide.SetColumn("NAP", []float64{0.3, 0.4}))

	merged := weather.Merge(tide)

	require.Equal(t, 2, merged.Len())
	wh, ok := merged.Column("waveHeight")
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, 1.6}, wh)

	ws, ok := merged.Column("windSpeed")
	require.True(t, ok)
	assert.Equal(t, []float64{7, 8}, ws)

	nap, ok := merged.Column("NAP")
	require.True(t, ok)
	assert.Equal(t, []float64{0.3, 0.4}, nap)
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	f := NewWithTimes(hours(t0, 2))
	require.NoError(t, f.SetColumn("waveHeight", []float64{1, 2}))

	g := NewWithTimes(hours(t0, 2))
	require.NoError(t, g.SetColumn("NAP", []float64{0.1, 0.2}))
	require.NoError(t, g.SetColumn("currentSpeed", []float64{0.5, 0.6}))

	_ = f.Merge(g)

	assert.Equal(t, []string{"waveHeight"}, f.Columns())
	assert.False(t, f.HasColumn("NAP"))
}

func TestSlice(t *testing.T) {
	f := NewWithTimes(hours(t0, 5))
	require.NoError(t, f.SetColumn("v", []float64{0, 1, 2, 3, 4}))

	s := f.Slice(t0.Add(time.Hour), t0.Add(3*time.Hour))
	require.Equal(t, 3, s.Len())
	vals, _ := s.Column("v")
	assert.Equal(t, []float64{1, 2, 3}, vals)
}

func TestCovers(t *testing.T) {
	f := NewWithTimes(hours(t0, 5))

	assert.True(t, f.Covers(t0, t0.Add(4*time.Hour)))
	assert.False(t, f.Covers(t0, t0.Add(5*time.Hour)))
	assert.False(t, New().Covers(t0, t0))
}

func TestJSONRoundTripPreservesNaN(t *testing.T) {
	f := NewWithTimes(hours(t0, 3))
	require.NoError(t, f.SetColumn("seaRise", []float64{math.NaN(), 0.3, -0.2}))
	require.NoError(t, f.SetColumn("rating", []float64{5, 6, 7}))

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var back Frame
	require.NoError(t, json.Unmarshal(data, &back))

	require.Equal(t, 3, back.Len())
	assert.Equal(t, []string{"seaRise", "rating"}, back.Columns())

	sr, _ := back.Column("seaRise")
	assert.True(t, math.IsNaN(sr[0]))
	assert.Equal(t, 0.3, sr[1])

	r, _ := back.Column("rating")
	assert.Equal(t, []float64{5, 6, 7}, r)
}
