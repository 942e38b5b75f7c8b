// Package models applies the pre-trained per-target regressors to an
// enriched forecast frame. Training happens offline; this package only
// loads and evaluates the exported artifacts.
package models

import (
	"fmt"

	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// Predictor produces one scalar per row from a frame already restricted to
// the model's feature columns.
type Predictor interface {
	Predict(frame *timeseries.Frame) ([]float64, error)
}

// MissingFeatureError signals a configuration mismatch between training and
// serving: a model's required feature column is absent from the enriched
// frame. Never tolerated silently.
type MissingFeatureError struct {
	Target string
	Column string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("model %s requires feature column %s which is not present", e.Target, e.Column)
}

// RatingModel is one independently trained single-target regressor.
type RatingModel struct {
	// Target is the rating column this model writes, e.g. "rating", "hoog".
	Target string

	// Features are the ordered feature columns the model was trained on and
	// that must be present at inference time.
	Features []string

	predictor Predictor
}

// New builds a rating model around a predictor.
func New(target string, features []string, p Predictor) RatingModel {
	return RatingModel{
		Target:    target,
		Features:  append([]string(nil), features...),
		predictor: p,
	}
}

// Predict selects the model's feature columns from the enriched frame and
// runs the predictor on the exact sub-frame.
func (m RatingModel) Predict(enriched *timeseries.Frame) ([]float64, error) {
	for _, col := range m.Features {
		if !enriched.HasColumn(col) {
			return nil, &MissingFeatureError{Target: m.Target, Column: col}
		}
	}

	sub, err := enriched.Select(m.Features...)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Target, err)
	}

	preds, err := m.predictor.Predict(sub)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Target, err)
	}
	if len(preds) != enriched.Len() {
		return nil, fmt.Errorf("model %s: predictor returned %d values for %d rows", m.Target, len(preds), enriched.Len())
	}

	return preds, nil
}

// Ensemble is the named collection of rating models. Read-only after load.
type Ensemble struct {
	models []RatingModel
}

// NewEnsemble validates target uniqueness at load time and fails fast on
// duplicates.
func NewEnsemble(models []RatingModel) (*Ensemble, error) {
	seen := make(map[string]struct{}, len(models))
	for _, m := range models {
		if _, dup := seen[m.Target]; dup {
			return nil, fmt.Errorf("duplicate rating target %q in ensemble", m.Target)
		}
		seen[m.Target] = struct{}{}
	}
	return &Ensemble{models: models}, nil
}

// Targets returns the target column names in ensemble order.
func (e *Ensemble) Targets() []string {
	out := make([]string, len(e.models))
	for i, m := range e.models {
		out[i] = m.Target
	}
	return out
}

// Models returns the models in ensemble order.
func (e *Ensemble) Models() []RatingModel {
	return append([]RatingModel(nil), e.models...)
}

// Apply runs every model against the enriched frame and returns a copy with
// one new column per target. The models are independent and only read the
// shared input, so order does not affect the result. If any model fails the
// whole rating fails: downstream consumers index target columns by name and
// a silently missing column is the worse failure mode.
func (e *Ensemble) Apply(enriched *timeseries.Frame) (*timeseries.Frame, error) {
	out := enriched.Copy()

	for _, m := range e.models {
		preds, err := m.Predict(enriched)
		if err != nil {
			return nil, err
		}
		if err := out.SetColumn(m.Target, preds); err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Target, err)
		}
	}

	return out, nil
}
