package models

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// GBTree is a gradient-boosted regression tree ensemble evaluated at
// inference time. Artifacts are exported by the offline trainer as JSON:
// one file per rating target.
type GBTree struct {
	BaseScore float64 `json:"base_score"`
	Trees     []*node `json:"trees"`
}

// node is one split or leaf in a regression tree. A node without children
// is a leaf carrying its value.
type node struct {
	Feature      string  `json:"feature,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	DefaultRight bool    `json:"default_right,omitempty"`
	Left         *node   `json:"left,omitempty"`
	Right        *node   `json:"right,omitempty"`
	Value        float64 `json:"value"`
}

func (n *node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// evaluate walks the tree for one row. NaN feature values follow the
// recorded default direction, mirroring how the trees were trained with
// missing data present.
func (n *node) evaluate(frame *timeseries.Frame, row int) float64 {
	cur := n
	for !cur.leaf() {
		v := frame.Value(cur.Feature, row)
		switch {
		case math.IsNaN(v):
			if cur.DefaultRight {
				cur = cur.Right
			} else {
				cur = cur.Left
			}
		case v < cur.Threshold:
			cur = cur.Left
		default:
			cur = cur.Right
		}
	}
	return cur.Value
}

// Predict implements Predictor.
func (g *GBTree) Predict(frame *timeseries.Frame) ([]float64, error) {
	if len(g.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}

	out := make([]float64, frame.Len())
	for row := range out {
		sum := g.BaseScore
		for _, tree := range g.Trees {
			sum += tree.evaluate(frame, row)
		}
		out[row] = sum
	}
	return out, nil
}

// validate checks that every split references a known feature column, so a
// corrupt or mismatched artifact fails at load rather than at inference.
func (g *GBTree) validate(features map[string]struct{}) error {
	var walk func(n *node) error
	walk = func(n *node) error {
		if n == nil || n.leaf() {
			return nil
		}
		if _, ok := features[n.Feature]; !ok {
			return fmt.Errorf("tree splits on unknown feature %q", n.Feature)
		}
		if n.Left == nil || n.Right == nil {
			return fmt.Errorf("split node on %q is missing a child", n.Feature)
		}
		if err := walk(n.Left); err != nil {
			return err
		}
		return walk(n.Right)
	}

	for _, tree := range g.Trees {
		if err := walk(tree); err != nil {
			return err
		}
	}
	return nil
}

// artifact is the on-disk form of one trained model.
type artifact struct {
	Target   string   `json:"target"`
	Features []string `json:"features"`
	Model    GBTree   `json:"model"`
}

// LoadGBTree reads a model artifact and returns the rating model it
// describes. The artifact's feature list defines the required columns.
func LoadGBTree(path string) (RatingModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RatingModel{}, fmt.Errorf("read model artifact: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return RatingModel{}, fmt.Errorf("parse model artifact %s: %w", path, err)
	}

	if a.Target == "" {
		return RatingModel{}, fmt.Errorf("model artifact %s has no target", path)
	}
	if len(a.Features) == 0 {
		return RatingModel{}, fmt.Errorf("model artifact %s has no feature columns", path)
	}

	known := make(map[string]struct{}, len(a.Features))
	for _, f := range a.Features {
		known[f] = struct{}{}
	}
	if err := a.Model.validate(known); err != nil {
		return RatingModel{}, fmt.Errorf("model artifact %s: %w", path, err)
	}

	model := a.Model
	return New(a.Target, a.Features, &model), nil
}
