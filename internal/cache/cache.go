// Package cache is the time-boxed store of rated forecast frames. Readers
// are served from memory; a full batch refresh replaces the whole payload
// at most once per max-age window, and the payload plus its timestamp are
// persisted so a restart resumes where the process left off.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/internal/observability"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
	"github.com/mkalwtb/magicnorthseaweed/pkg/atomicfile"
)

const (
	payloadFile = "forecasts.json"
	stateFile   = "cache_state.json"
)

// Producer computes a fresh batch of rated frames, one per spot.
// *rater.Rater is the production implementation.
type Producer interface {
	RateAll(ctx context.Context) (map[string]*timeseries.Frame, error)
}

// Info is a snapshot of the cache's freshness state.
type Info struct {
	LastUpdate      time.Time `json:"last_update"`
	AgeSeconds      float64   `json:"age_seconds"`
	Fresh           bool      `json:"fresh"`
	Spots           []string  `json:"spots"`
	RefreshInFlight bool      `json:"refresh_in_flight"`
}

// state is the persisted sidecar next to the payload. It is written strictly
// after the payload so its timestamp never describes data that is not on
// disk yet.
type state struct {
	LastUpdate time.Time `json:"last_update"`
}

// Cache serves rated frames with a bounded staleness. A read inside the
// max-age window returns the stored payload untouched. A read past the
// window still returns the stored payload immediately but triggers one
// background refresh; only a cold cache blocks the caller.
type Cache struct {
	producer Producer
	maxAge   time.Duration
	dir      string
	clock    clockwork.Clock
	metrics  *observability.Metrics
	log      zerolog.Logger

	mu         sync.Mutex
	frames     map[string]*timeseries.Frame
	lastUpdate time.Time
	refreshing bool
}

// New builds a cache rooted at dir and loads any persisted payload.
// metrics may be nil.
func New(producer Producer, dir string, maxAge time.Duration, clock clockwork.Clock,
	metrics *observability.Metrics, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		producer: producer,
		maxAge:   maxAge,
		dir:      dir,
		clock:    clock,
		metrics:  metrics,
		log:      log.With().Str("component", "cache").Logger(),
	}
	c.load()
	return c, nil
}

// load restores the persisted payload. Any corruption just means a cold
// start, never a startup failure.
func (c *Cache) load() {
	stateData, err := os.ReadFile(filepath.Join(c.dir, stateFile))
	if err != nil {
		return
	}
	var st state
	if err := json.Unmarshal(stateData, &st); err != nil {
		c.log.Warn().Err(err).Msg("could not parse cache state, starting cold")
		return
	}

	payloadData, err := os.ReadFile(filepath.Join(c.dir, payloadFile))
	if err != nil {
		c.log.Warn().Err(err).Msg("cache state present but payload unreadable, starting cold")
		return
	}
	var frames map[string]*timeseries.Frame
	if err := json.Unmarshal(payloadData, &frames); err != nil {
		c.log.Warn().Err(err).Msg("could not parse cache payload, starting cold")
		return
	}

	c.frames = frames
	c.lastUpdate = st.LastUpdate
	c.log.Info().
		Time("last_update", st.LastUpdate).
		Int("spots", len(frames)).
		Msg("cache restored from disk")
}

// Get returns the cached rated frame for one spot name.
func (c *Cache) Get(ctx context.Context, spotName string) (*timeseries.Frame, error) {
	frames, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	frame, ok := frames[spotName]
	if !ok {
		return nil, fmt.Errorf("no cached forecast for spot %s", spotName)
	}
	return frame, nil
}

// GetAll returns the whole cached batch. A cold cache refreshes
// synchronously; a stale one is served as-is while a single background
// refresh runs.
func (c *Cache) GetAll(ctx context.Context) (map[string]*timeseries.Frame, error) {
	c.mu.Lock()
	frames := c.frames
	observed := c.lastUpdate
	age := c.clock.Now().Sub(observed)
	c.mu.Unlock()

	switch {
	case len(frames) == 0:
		c.readRecorded("cold", 0)
		if err := c.refresh(ctx, "cold"); err != nil {
			return nil, err
		}
		c.mu.Lock()
		frames = c.frames
		c.mu.Unlock()
		if len(frames) == 0 {
			return nil, fmt.Errorf("cache is still warming up")
		}
	case age > c.maxAge:
		// The stale reader gets the captured payload right away; the
		// replacement runs detached so it is not cancelled with the caller.
		// The slot is claimed here, not in the goroutine, so concurrent
		// stale readers cannot stack replacements.
		c.readRecorded("stale", age)
		if c.claimStaleRefresh(observed) {
			go func() {
				if err := c.runRefresh(context.Background(), "background"); err != nil {
					c.log.Error().Err(err).Msg("background refresh failed, keeping stale payload")
				}
			}()
		}
	default:
		c.readRecorded("fresh", age)
	}

	return frames, nil
}

func (c *Cache) readRecorded(result string, age time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.CacheReads.WithLabelValues(result).Inc()
	c.metrics.CacheAgeSeconds.Set(age.Seconds())
}

// ForceRefresh replaces the payload now, regardless of age.
func (c *Cache) ForceRefresh(ctx context.Context) error {
	return c.refresh(ctx, "forced")
}

// refresh runs one producer batch and installs the result. At most one
// refresh is in flight at any time; a second trigger while one runs is a
// no-op. A failed or empty batch leaves the previous payload untouched.
func (c *Cache) refresh(ctx context.Context, trigger string) error {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return nil
	}
	c.refreshing = true
	c.mu.Unlock()

	return c.runRefresh(ctx, trigger)
}

// claimStaleRefresh takes the refresh slot on behalf of a stale reader. It
// refuses when a refresh is already in flight, or when the payload the
// reader saw has been replaced since, so one stale window produces exactly
// one refresh no matter how many readers observe it.
func (c *Cache) claimStaleRefresh(observed time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshing || !c.lastUpdate.Equal(observed) {
		return false
	}
	c.refreshing = true
	return true
}

// runRefresh executes a refresh whose slot the caller already holds.
func (c *Cache) runRefresh(ctx context.Context, trigger string) error {
	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	c.log.Info().Str("trigger", trigger).Msg("cache refresh started")

	frames, err := c.producer.RateAll(ctx)
	if err != nil {
		c.refreshRecorded(trigger, "error")
		return fmt.Errorf("cache refresh: %w", err)
	}
	if len(frames) == 0 {
		c.refreshRecorded(trigger, "rejected")
		return fmt.Errorf("cache refresh produced no spots, keeping previous payload")
	}

	now := c.clock.Now()

	c.mu.Lock()
	c.frames = frames
	c.lastUpdate = now
	c.mu.Unlock()

	if err := c.persist(frames, now); err != nil {
		// The in-memory payload is already installed; persistence failure
		// only costs durability across a restart.
		c.log.Error().Err(err).Msg("could not persist cache payload")
	}

	c.refreshRecorded(trigger, "success")
	c.log.Info().
		Str("trigger", trigger).
		Int("spots", len(frames)).
		Msg("cache refresh completed")
	return nil
}

func (c *Cache) refreshRecorded(trigger, outcome string) {
	if c.metrics != nil {
		c.metrics.CacheRefreshes.WithLabelValues(trigger, outcome).Inc()
	}
}

// persist writes the payload first and the timestamped state second.
func (c *Cache) persist(frames map[string]*timeseries.Frame, at time.Time) error {
	payload, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	if err := atomicfile.WriteFile(filepath.Join(c.dir, payloadFile), payload, 0o644); err != nil {
		return fmt.Errorf("write cache payload: %w", err)
	}

	stateData, err := json.Marshal(state{LastUpdate: at})
	if err != nil {
		return fmt.Errorf("marshal cache state: %w", err)
	}
	if err := atomicfile.WriteFile(filepath.Join(c.dir, stateFile), stateData, 0o644); err != nil {
		return fmt.Errorf("write cache state: %w", err)
	}
	return nil
}

// Info reports the freshness state without triggering any refresh.
func (c *Cache) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.frames))
	for name := range c.frames {
		names = append(names, name)
	}
	sort.Strings(names)

	var age time.Duration
	if !c.lastUpdate.IsZero() {
		age = c.clock.Now().Sub(c.lastUpdate)
	}

	return Info{
		LastUpdate:      c.lastUpdate,
		AgeSeconds:      age.Seconds(),
		Fresh:           len(c.frames) > 0 && age <= c.maxAge,
		Spots:           names,
		RefreshInFlight: c.refreshing,
	}
}
