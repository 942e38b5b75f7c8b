package models

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// stubPredictor returns a fixed value per row.
type stubPredictor struct {
	value float64
	err   error
	calls int
}

func (s *stubPredictor) Predict(frame *timeseries.Frame) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, frame.Len())
	for i := range out {
		out[i] = s.value
	}
	return out, nil
}

func testFrame(t *testing.T, n int, cols map[string]float64) *timeseries.Frame {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	f := timeseries.NewWithTimes(times)
	for name, v := range cols {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = v
		}
		require.NoError(t, f.SetColumn(name, vals))
	}
	return f
}

func TestPredictMissingFeatureError(t *testing.T) {
	m := New("rating", []string{"waveHeight", "windMagOnShore"}, &stubPredictor{value: 5})
	frame := testFrame(t, 3, map[string]float64{"waveHeight": 2})

	_, err := m.Predict(frame)
	require.Error(t, err)

	var mfe *MissingFeatureError
	require.True(t, errors.As(err, &mfe), "want MissingFeatureError, got %T", err)
	assert.Equal(t, "windMagOnShore", mfe.Column)
	assert.Equal(t, "rating", mfe.Target)
	assert.Contains(t, mfe.Error(), "windMagOnShore")
}

func TestEnsembleRejectsDuplicateTargets(t *testing.T) {
	a := New("rating", []string{"waveHeight"}, &stubPredictor{})
	b := New("rating", []string{"wavePeriod"}, &stubPredictor{})

	_, err := NewEnsemble([]RatingModel{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rating")
}

func TestEnsembleApplyAddsTargetColumns(t *testing.T) {
	rating := New("rating", []string{"waveHeight"}, &stubPredictor{value: 7})
	hoog := New("hoog", []string{"waveHeight"}, &stubPredictor{value: 2})
	ens, err := NewEnsemble([]RatingModel{rating, hoog})
	require.NoError(t, err)

	frame := testFrame(t, 4, map[string]float64{"waveHeight": 1.5})
	rated, err := ens.Apply(frame)
	require.NoError(t, err)

	r, ok := rated.Column("rating")
	require.True(t, ok)
	assert.Equal(t, []float64{7, 7, 7, 7}, r)

	h, ok := rated.Column("hoog")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 2, 2, 2}, h)

	// Input frame untouched
	assert.False(t, frame.HasColumn("rating"))
}

func TestEnsembleApplyOrderIndependent(t *testing.T) {
	frame := testFrame(t, 3, map[string]float64{"waveHeight": 1.5, "wavePeriod": 8})

	a := New("rating", []string{"waveHeight"}, &stubPredictor{value: 7})
	b := New("hoog", []string{"wavePeriod"}, &stubPredictor{value: 2})

	e1, err := NewEnsemble([]RatingModel{a, b})
	require.NoError(t, err)
	e2, err := NewEnsemble([]RatingModel{b, a})
	require.NoError(t, err)

	r1, err := e1.Apply(frame)
	require.NoError(t, err)
	r2, err := e2.Apply(frame)
	require.NoError(t, err)

	for _, target := range []string{"rating", "hoog"} {
		v1, _ := r1.Column(target)
		v2, _ := r2.Column(target)
		assert.Equal(t, v1, v2, "target %s differs across application order", target)
	}
}

func TestEnsembleApplyStrictOnPredictorFailure(t *testing.T) {
	good := New("rating", []string{"waveHeight"}, &stubPredictor{value: 7})
	bad := New("hoog", []string{"waveHeight"}, &stubPredictor{err: errors.New("boom")})
	ens, err := NewEnsemble([]RatingModel{good, bad})
	require.NoError(t, err)

	frame := testFrame(t, 2, map[string]float64{"waveHeight": 1})
	_, err = ens.Apply(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hoog")
}

func TestGBTreeEvaluate(t *testing.T) {
	// waveHeight < 1.0 -> 0.5, else wavePeriod < 8 -> 1.5 else 3.0
	tree := &node{
		Feature:   "waveHeight",
		Threshold: 1.0,
		Left:      &node{Value: 0.5},
		Right: &node{
			Feature:   "wavePeriod",
			Threshold: 8,
			Left:      &node{Value: 1.5},
			Right:     &node{Value: 3.0},
		},
	}
	g := &GBTree{BaseScore: 1.0, Trees: []*node{tree}}

	frame := testFrame(t, 1, map[string]float64{"waveHeight": 2.0, "wavePeriod": 10.0})
	preds, err := g.Predict(frame)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, preds[0], 1e-9)

	low := testFrame(t, 1, map[string]float64{"waveHeight": 0.3, "wavePeriod": 10.0})
	preds, err = g.Predict(low)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, preds[0], 1e-9)
}

func TestGBTreeNaNFollowsDefaultDirection(t *testing.T) {
	left := &node{
		Feature:   "waveHeight",
		Threshold: 1.0,
		Left:      &node{Value: -1},
		Right:     &node{Value: 1},
	}
	right := &node{
		Feature:      "waveHeight",
		Threshold:    1.0,
		DefaultRight: true,
		Left:         &node{Value: -1},
		Right:        &node{Value: 1},
	}

	frame := testFrame(t, 1, map[string]float64{"waveHeight": math.NaN()})

	preds, err := (&GBTree{Trees: []*node{left}}).Predict(frame)
	require.NoError(t, err)
	assert.Equal(t, -1.0, preds[0])

	preds, err = (&GBTree{Trees: []*node{right}}).Predict(frame)
	require.NoError(t, err)
	assert.Equal(t, 1.0, preds[0])
}

func writeArtifact(t *testing.T, dir, target string, a artifact) string {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	path := filepath.Join(dir, ArtifactFile(target))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadGBTree(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "rating", artifact{
		Target:   "rating",
		Features: []string{"waveHeight"},
		Model: GBTree{
			BaseScore: 5,
			Trees: []*node{{
				Feature:   "waveHeight",
				Threshold: 1,
				Left:      &node{Value: -2},
				Right:     &node{Value: 2},
			}},
		},
	})

	m, err := LoadGBTree(path)
	require.NoError(t, err)
	assert.Equal(t, "rating", m.Target)
	assert.Equal(t, []string{"waveHeight"}, m.Features)

	frame := testFrame(t, 2, map[string]float64{"waveHeight": 2})
	preds, err := m.Predict(frame)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7}, preds)
}

func TestLoadGBTreeRejectsUnknownSplitFeature(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "rating", artifact{
		Target:   "rating",
		Features: []string{"waveHeight"},
		Model: GBTree{
			Trees: []*node{{
				Feature:   "mystery",
				Threshold: 1,
				Left:      &node{Value: 0},
				Right:     &node{Value: 1},
			}},
		},
	})

	_, err := LoadGBTree(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestLoadEnsembleDirRequiresEveryTarget(t *testing.T) {
	dir := t.TempDir()

	// Only one of the seven targets present.
	writeArtifact(t, dir, "rating", artifact{
		Target:   "rating",
		Features: []string{"waveHeight"},
		Model:    GBTree{Trees: []*node{{Value: 1}}},
	})

	_, err := LoadEnsembleDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hoog")
}

// The artifacts shipped under data/models must always load: a fresh
// checkout points DATA_DIR at data/ and starts from them.
func TestLoadEnsembleDirShippedDefaults(t *testing.T) {
	ens, err := LoadEnsembleDir(filepath.Join("..", "..", "data", "models"))
	require.NoError(t, err)
	assert.Equal(t, ForecastTargets, ens.Targets())

	cols := make(map[string]float64, len(FeatureColumns()))
	for _, name := range FeatureColumns() {
		cols[name] = 1.0
	}
	rated, err := ens.Apply(testFrame(t, 2, cols))
	require.NoError(t, err)

	for _, target := range ForecastTargets {
		require.True(t, rated.HasColumn(target))
		for row := 0; row < rated.Len(); row++ {
			v := rated.Value(target, row)
			assert.False(t, math.IsNaN(v), "target %s row %d", target, row)
		}
	}
}

func TestLoadEnsembleDirComplete(t *testing.T) {
	dir := t.TempDir()
	for _, target := range ForecastTargets {
		writeArtifact(t, dir, target, artifact{
			Target:   target,
			Features: FeatureColumns(),
			Model:    GBTree{Trees: []*node{{Value: 1}}},
		})
	}

	ens, err := LoadEnsembleDir(dir)
	require.NoError(t, err)
	assert.Equal(t, ForecastTargets, ens.Targets())
}
