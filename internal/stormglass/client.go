// Package stormglass is the quota-aware client for the Stormglass weather
// API: credential rotation, per-channel source pinning, tide merging and a
// durable per-location history that avoids network calls for windows
// already observed.
package stormglass

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/internal/observability"
	"github.com/mkalwtb/magicnorthseaweed/internal/spots"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
	"github.com/mkalwtb/magicnorthseaweed/pkg/httputil"
)

// Meta is the usage block Stormglass echoes with every response. Its view
// of cost and quota is authoritative over local assumptions.
type Meta struct {
	Cost         int `json:"cost"`
	DailyQuota   int `json:"dailyQuota"`
	RequestCount int `json:"requestCount"`
}

// Sentinel bounds: values outside are provider glitches, not observations.
const (
	sentinelLow  = -900.0
	sentinelHigh = 9000.0
)

// Client fetches raw forecast frames for a coordinate, rotating credentials
// through the keyring and consulting the history store before the network.
type Client struct {
	http    *httputil.Client
	keyring *Keyring
	history *History
	metrics *observability.Metrics

	baseURL string
	// sources pins one provider model source per channel.
	sources map[string]string

	clock clockwork.Clock
	log   zerolog.Logger
}

// NewClient builds a client. history and metrics may be nil.
func NewClient(httpClient *httputil.Client, keyring *Keyring, history *History, metrics *observability.Metrics,
	baseURL string, sources map[string]string, clock clockwork.Clock, log zerolog.Logger) *Client {
	return &Client{
		http:    httpClient,
		keyring: keyring,
		history: history,
		metrics: metrics,
		baseURL: strings.TrimRight(baseURL, "/"),
		sources: sources,
		clock:   clock,
		log:     log.With().Str("component", "stormglass.client").Logger(),
	}
}

// Fetch returns the raw forecast frame for [from, to]. Windows fully
// covered by persisted history are served without a network call; after a
// network fetch, the already-elapsed portion is merged into history.
// Forecast-only future rows are never persisted as history.
func (c *Client) Fetch(ctx context.Context, spot spots.Spot, from, to time.Time) (*timeseries.Frame, error) {
	if c.history != nil {
		hist, err := c.history.Load(spot.DBName)
		if err != nil {
			c.log.Warn().Err(err).Str("db_name", spot.DBName).Msg("could not load history")
		} else if hist.Covers(from, to) {
			c.log.Debug().Str("db_name", spot.DBName).Msg("window served from history")
			if c.metrics != nil {
				c.metrics.HistoryHits.Inc()
			}
			return hist.Slice(from, to), nil
		}
	}

	weather, err := c.fetchWeather(ctx, spot, from, to)
	if err != nil {
		return nil, err
	}

	tide, err := c.fetchTide(ctx, spot, from, to)
	if err != nil {
		return nil, err
	}

	frame := weather.Merge(tide)

	if c.history != nil {
		now := c.clock.Now()
		if !from.After(now) {
			// Only the elapsed portion is historical fact.
			elapsedEnd := to
			if now.Before(to) {
				elapsedEnd = now
			}
			elapsed := frame.Slice(from, elapsedEnd)
			if elapsed.Len() > 0 {
				if err := c.history.Merge(spot.DBName, elapsed); err != nil {
					c.log.Warn().Err(err).Str("db_name", spot.DBName).Msg("could not merge history")
				}
			}
		}
	}

	return frame, nil
}

// weatherResponse is the shape of /weather/point. Each hour maps a channel
// to a per-source value object.
type weatherResponse struct {
	Hours  []map[string]json.RawMessage `json:"hours"`
	Meta   Meta                         `json:"meta"`
	Errors json.RawMessage              `json:"errors"`
}

func (c *Client) fetchWeather(ctx context.Context, spot spots.Spot, from, to time.Time) (*timeseries.Frame, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(spot.Lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(spot.Long, 'f', -1, 64))
	params.Set("params", strings.Join(timeseries.WeatherChannels, ","))
	params.Set("start", strconv.FormatInt(from.Unix(), 10))
	params.Set("end", strconv.FormatInt(to.Unix(), 10))

	var resp weatherResponse
	if err := c.call(ctx, "weather", c.baseURL+"/weather/point?"+params.Encode(), &resp, func() (json.RawMessage, Meta) {
		return resp.Errors, resp.Meta
	}); err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, len(resp.Hours))
	cols := make(map[string][]float64, len(timeseries.WeatherChannels))
	for _, ch := range timeseries.WeatherChannels {
		cols[ch] = make([]float64, 0, len(resp.Hours))
	}

	for _, hour := range resp.Hours {
		ts, err := parseHourTime(hour["time"])
		if err != nil {
			return nil, fmt.Errorf("parse weather response: %w", err)
		}
		times = append(times, ts)
		for _, ch := range timeseries.WeatherChannels {
			cols[ch] = append(cols[ch], c.channelValue(hour[ch], ch))
		}
	}

	frame := timeseries.NewWithTimes(times)
	for _, ch := range timeseries.WeatherChannels {
		if err := frame.SetColumn(ch, cols[ch]); err != nil {
			return nil, fmt.Errorf("build weather frame: %w", err)
		}
	}
	frame.Normalize()
	return frame, nil
}

// tideResponse is the shape of /tide/sea-level/point.
type tideResponse struct {
	Data []struct {
		Time time.Time `json:"time"`
		SG   *float64  `json:"sg"`
	} `json:"data"`
	Meta   Meta            `json:"meta"`
	Errors json.RawMessage `json:"errors"`
}

func (c *Client) fetchTide(ctx context.Context, spot spots.Spot, from, to time.Time) (*timeseries.Frame, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(spot.Lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(spot.Long, 'f', -1, 64))
	params.Set("start", strconv.FormatInt(from.Unix(), 10))
	params.Set("end", strconv.FormatInt(to.Unix(), 10))

	var resp tideResponse
	if err := c.call(ctx, "tide", c.baseURL+"/tide/sea-level/point?"+params.Encode(), &resp, func() (json.RawMessage, Meta) {
		return resp.Errors, resp.Meta
	}); err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, len(resp.Data))
	vals := make([]float64, 0, len(resp.Data))
	for _, rec := range resp.Data {
		times = append(times, rec.Time)
		if rec.SG == nil {
			vals = append(vals, math.NaN())
		} else {
			vals = append(vals, cleanValue(*rec.SG))
		}
	}

	frame := timeseries.NewWithTimes(times)
	if err := frame.SetColumn(timeseries.ChanTideLevel, vals); err != nil {
		return nil, fmt.Errorf("build tide frame: %w", err)
	}
	frame.Normalize()
	return frame, nil
}

// call selects a credential, performs the request, surfaces provider-side
// rejections as hard failures and records successful usage.
func (c *Client) call(ctx context.Context, endpoint, fullURL string, out interface{}, respMeta func() (json.RawMessage, Meta)) error {
	keyID, apiKey, err := c.keyring.Select()
	if err != nil {
		return err
	}

	resp, err := c.http.Get(ctx, fullURL, map[string]string{"Authorization": apiKey})
	if err != nil {
		return fmt.Errorf("stormglass %s request with %s: %w", endpoint, keyID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stormglass %s request with %s: unexpected status %d", endpoint, keyID, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stormglass %s response: %w", endpoint, err)
	}

	// An errors field is a provider-side rejection (quota included) and is
	// never parsed as data.
	errRaw, meta := respMeta()
	if len(errRaw) > 0 && string(errRaw) != "null" {
		return fmt.Errorf("stormglass %s error: %s", endpoint, string(errRaw))
	}

	c.keyring.RecordSuccess(keyID, meta)
	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, keyID).Inc()
	}

	return nil
}

// channelValue extracts the pinned source's value from a channel object,
// NaN when the channel, source or value is missing or a sentinel.
func (c *Client) channelValue(raw json.RawMessage, channel string) float64 {
	if len(raw) == 0 {
		return math.NaN()
	}

	var bySource map[string]*float64
	if err := json.Unmarshal(raw, &bySource); err != nil {
		return math.NaN()
	}

	source := c.sources[channel]
	if source == "" {
		source = "sg"
	}

	v, ok := bySource[source]
	if !ok || v == nil {
		// Fall back to the provider's own blend rather than dropping the hour.
		if v, ok = bySource["sg"]; !ok || v == nil {
			return math.NaN()
		}
	}
	return cleanValue(*v)
}

// cleanValue maps known sentinel values to NaN.
func cleanValue(v float64) float64 {
	if v <= sentinelLow || v >= sentinelHigh {
		return math.NaN()
	}
	return v
}

func parseHourTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("hour has no time field")
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad hour timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
