// Package features derives model-ready feature columns from raw forecast
// channels. All functions are pure; enrichment never mutates its input.
//
// Sign convention (the one the shipped models were trained under): the
// onshore axis uses facing+90 as reference bearing and is signed positive
// toward land, the sideshore axis uses the facing direction itself. Wave
// energy keeps its sign; negative values mean offshore-travelling energy.
package features

import (
	"fmt"
	"math"

	"github.com/mkalwtb/magicnorthseaweed/internal/spots"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// Derived feature columns added by Enrich.
const (
	ColWaveOnshore       = "waveOnshore"
	ColWaveSideshore     = "waveSideshore"
	ColWindOnshore       = "windOnshore"
	ColWindSideshore     = "windSideshore"
	ColWindMagOnshore    = "windMagOnShore"
	ColWindMagSideshore  = "windMagSideShore"
	ColShelterWind       = "shelterWind"
	ColWaveEnergyOnshore = "waveEnergyOnshore"
	ColSeaRise           = "seaRise"
	ColPier              = "pier"
)

// AngleRelative maps a direction onto [0, 360) relative to a reference
// bearing. The double mod guarantees a non-negative residue; NaN input
// propagates to NaN output.
func AngleRelative(direction, reference float64) float64 {
	return math.Mod(math.Mod(direction-reference, 360)+360, 360)
}

// OnshoreComponent projects a direction onto the shore-normal axis:
// +1 straight onshore, -1 straight offshore, 0 travelling along the shore.
func OnshoreComponent(direction, facing float64) float64 {
	return -math.Sin(AngleRelative(direction, facing+90) * math.Pi / 180)
}

// SideshoreComponent projects a direction onto the shore-parallel axis.
func SideshoreComponent(direction, facing float64) float64 {
	return math.Sin(AngleRelative(direction, facing) * math.Pi / 180)
}

// ShelterFactor is the 0-1 wind damping from the spot's obstruction. The
// shelter angle is taken relative to facing+90; a right-side structure
// mirrors the angle so one shaping curve serves both sides.
func ShelterFactor(windDirection float64, spot spots.Spot) float64 {
	switch spot.Obstruction {
	case spots.JettyLeft:
		return shelterCurve(AngleRelative(windDirection, spot.Facing+90))
	case spots.JettyRight:
		return shelterCurve(AngleRelative(-windDirection, -(spot.Facing + 90)))
	default:
		return 0
	}
}

// shelterCurve is the piecewise-linear damping profile of a structure
// blocking wind from one angular side: 0 at 0°, 0.4 at 20°, 0.7 at 90°,
// 0.4 at 160°, 0 at 180° and beyond.
func shelterCurve(angle float64) float64 {
	if math.IsNaN(angle) {
		return math.NaN()
	}

	xs := []float64{0, 20, 90, 160, 180}
	ys := []float64{0, 0.4, 0.7, 0.4, 0}

	if angle <= 0 || angle >= 180 {
		return 0
	}
	for i := 1; i < len(xs); i++ {
		if angle <= xs[i] {
			frac := (angle - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + frac*(ys[i]-ys[i-1])
		}
	}
	return 0
}

// WaveEnergyOnshore is the height² × period² × onshore-component proxy.
// Deliberately not clamped: the sign carries onshore/offshore information
// into the models.
func WaveEnergyOnshore(height, period, onshore float64) float64 {
	return height * height * period * period * onshore
}

// requiredChannels are the raw channels enrichment reads. A missing channel
// is a configuration mismatch, not a data gap, and fails loudly.
var requiredChannels = []string{
	timeseries.ChanWaveHeight,
	timeseries.ChanWavePeriod,
	timeseries.ChanWaveDirection,
	timeseries.ChanWindSpeed,
	timeseries.ChanWindDirection,
	timeseries.ChanTideLevel,
}

// Enrich returns a copy of raw with all derived feature columns and the
// constant pier column added. Calling it twice with the same inputs yields
// identical columns.
func Enrich(raw *timeseries.Frame, spot spots.Spot) (*timeseries.Frame, error) {
	for _, ch := range requiredChannels {
		if !raw.HasColumn(ch) {
			return nil, fmt.Errorf("enrich %s: raw frame missing channel %s", spot.Name, ch)
		}
	}

	out := raw.Copy()
	n := out.Len()

	waveDir, _ := out.Column(timeseries.ChanWaveDirection)
	windDir, _ := out.Column(timeseries.ChanWindDirection)
	windSpeed, _ := out.Column(timeseries.ChanWindSpeed)
	waveHeight, _ := out.Column(timeseries.ChanWaveHeight)
	wavePeriod, _ := out.Column(timeseries.ChanWavePeriod)

	waveOn := make([]float64, n)
	waveSide := make([]float64, n)
	windOn := make([]float64, n)
	windSide := make([]float64, n)
	windMagOn := make([]float64, n)
	windMagSide := make([]float64, n)
	shelter := make([]float64, n)
	energy := make([]float64, n)

	for i := 0; i < n; i++ {
		waveOn[i] = OnshoreComponent(waveDir[i], spot.Facing)
		waveSide[i] = SideshoreComponent(waveDir[i], spot.Facing)
		windOn[i] = OnshoreComponent(windDir[i], spot.Facing)
		windSide[i] = SideshoreComponent(windDir[i], spot.Facing)
		windMagOn[i] = windOn[i] * windSpeed[i]
		windMagSide[i] = windSide[i] * windSpeed[i]
		shelter[i] = ShelterFactor(windDir[i], spot)
		energy[i] = WaveEnergyOnshore(waveHeight[i], wavePeriod[i], waveOn[i])
	}

	seaRise, err := out.Diff(timeseries.ChanTideLevel)
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", spot.Name, err)
	}

	derived := []struct {
		name string
		vals []float64
	}{
		{ColWaveOnshore, waveOn},
		{ColWaveSideshore, waveSide},
		{ColWindOnshore, windOn},
		{ColWindSideshore, windSide},
		{ColWindMagOnshore, windMagOn},
		{ColWindMagSideshore, windMagSide},
		{ColShelterWind, shelter},
		{ColWaveEnergyOnshore, energy},
		{ColSeaRise, seaRise},
	}
	for _, d := range derived {
		if err := out.SetColumn(d.name, d.vals); err != nil {
			return nil, fmt.Errorf("enrich %s: %w", spot.Name, err)
		}
	}

	out.SetConstant(ColPier, spot.Obstruction.PierValue())

	return out, nil
}
