package models

import (
	"fmt"
	"path/filepath"

	"github.com/mkalwtb/magicnorthseaweed/internal/features"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// ForecastTargets are the rating dimensions served to the frontend, in
// render order. Each has its own independently trained model.
var ForecastTargets = []string{
	"rating",   // overall quality
	"hoog",     // wave height experience
	"clean",    // choppiness (inverse)
	"krachtig", // power
	"stijl",    // steepness
	"stroming", // current
	"windy",    // windiness
}

// FeatureColumns is the full model input set: raw channels plus everything
// the feature engine derives.
func FeatureColumns() []string {
	return []string{
		timeseries.ChanWaveHeight,
		timeseries.ChanWavePeriod,
		timeseries.ChanWindSpeed,
		timeseries.ChanCurrentSpeed,
		timeseries.ChanWindWaveHeight,
		timeseries.ChanTideLevel,
		features.ColWaveOnshore,
		features.ColWaveSideshore,
		features.ColWindOnshore,
		features.ColWindSideshore,
		features.ColWindMagOnshore,
		features.ColWindMagSideshore,
		features.ColShelterWind,
		features.ColWaveEnergyOnshore,
		features.ColSeaRise,
		features.ColPier,
	}
}

// ArtifactFile returns the artifact filename for a target.
func ArtifactFile(target string) string {
	return fmt.Sprintf("model_XGBRegressor_%s.json", target)
}

// LoadEnsembleDir loads one artifact per forecast target from dir and
// assembles the ensemble. A missing or unreadable artifact fails the whole
// load: serving with a silently reduced target set would break renderers
// that index columns by name.
func LoadEnsembleDir(dir string) (*Ensemble, error) {
	ratingModels := make([]RatingModel, 0, len(ForecastTargets))

	for _, target := range ForecastTargets {
		path := filepath.Join(dir, ArtifactFile(target))
		m, err := LoadGBTree(path)
		if err != nil {
			return nil, fmt.Errorf("load target %s: %w", target, err)
		}
		if m.Target != target {
			return nil, fmt.Errorf("artifact %s declares target %q, expected %q", path, m.Target, target)
		}
		ratingModels = append(ratingModels, m)
	}

	return NewEnsemble(ratingModels)
}
