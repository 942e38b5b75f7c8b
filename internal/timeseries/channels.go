package timeseries

// Raw forecast channels as delivered by the upstream provider. NAP is the
// tide level relative to the Dutch reference datum.
const (
	ChanWaveHeight     = "waveHeight"
	ChanWavePeriod     = "wavePeriod"
	ChanWaveDirection  = "waveDirection"
	ChanWindSpeed      = "windSpeed"
	ChanWindDirection  = "windDirection"
	ChanCurrentSpeed   = "currentSpeed"
	ChanWindWaveHeight = "windWaveHeight"
	ChanTideLevel      = "NAP"
)

// WeatherChannels are the channels requested from the weather endpoint.
// Tide comes from its own endpoint and is merged afterwards.
var WeatherChannels = []string{
	ChanWaveHeight,
	ChanWavePeriod,
	ChanWaveDirection,
	ChanWindSpeed,
	ChanWindDirection,
	ChanCurrentSpeed,
	ChanWindWaveHeight,
}
