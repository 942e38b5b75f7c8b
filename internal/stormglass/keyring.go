package stormglass

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/pkg/atomicfile"
)

// ErrQuotaExhausted is terminal for the current day: every credential has
// hit its daily cap. Callers must stop issuing upstream calls for the
// cycle rather than retry with backoff.
var ErrQuotaExhausted = errors.New("all API keys have reached their daily quota")

// CredentialUsage tracks one API key's daily and lifetime usage. Persisted
// after every mutation so usage survives restarts.
type CredentialUsage struct {
	Key           string    `json:"key"`
	DailyQuota    int       `json:"daily_quota"`
	RequestsToday int       `json:"requests_today"`
	LastResetDate string    `json:"last_reset_date"` // YYYY-MM-DD
	LastUsed      time.Time `json:"last_used"`
	TotalRequests int       `json:"total_requests"`
}

// resetIfNewDay zeroes the daily counter exactly once when the wall-clock
// date advances past LastResetDate.
func (u *CredentialUsage) resetIfNewDay(today string) {
	if u.LastResetDate != today {
		u.RequestsToday = 0
		u.LastResetDate = today
	}
}

func (u *CredentialUsage) available() bool {
	return u.RequestsToday < u.DailyQuota
}

// CredentialStatus is a read-only usage snapshot for introspection.
type CredentialStatus struct {
	ID            string    `json:"id"`
	RequestsToday int       `json:"requests_today"`
	DailyQuota    int       `json:"daily_quota"`
	Available     bool      `json:"available"`
	LastUsed      time.Time `json:"last_used"`
	TotalRequests int       `json:"total_requests"`
}

// Keyring rotates among upstream API credentials, preferring the least-used
// available one. The usage ledger lives in a JSON file next to the other
// service state and is rewritten (write-then-rename) after every recorded
// call.
type Keyring struct {
	mu    sync.Mutex
	file  string
	clock clockwork.Clock
	log   zerolog.Logger

	usage map[string]*CredentialUsage
	order []string // stable credential IDs: key_0, key_1, ...
}

// NewKeyring loads the persisted ledger (if any) and registers every
// configured key that is not in it yet.
func NewKeyring(file string, keys []string, defaultQuota int, clock clockwork.Clock, log zerolog.Logger) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no API keys configured")
	}

	k := &Keyring{
		file:  file,
		clock: clock,
		log:   log.With().Str("component", "stormglass.keyring").Logger(),
		usage: make(map[string]*CredentialUsage, len(keys)),
	}

	if data, err := os.ReadFile(file); err == nil {
		if err := json.Unmarshal(data, &k.usage); err != nil {
			// A corrupt ledger is recoverable: start counting from zero
			// rather than refusing to serve.
			k.log.Warn().Err(err).Str("file", file).Msg("could not parse usage ledger, starting fresh")
			k.usage = make(map[string]*CredentialUsage, len(keys))
		}
	}

	for i, key := range keys {
		id := fmt.Sprintf("key_%d", i)
		k.order = append(k.order, id)
		if _, ok := k.usage[id]; !ok {
			k.usage[id] = &CredentialUsage{
				Key:        key,
				DailyQuota: defaultQuota,
			}
		} else {
			// The configured key wins over whatever the ledger recorded.
			k.usage[id].Key = key
		}
	}

	return k, nil
}

// Select returns the credential to use for the next call: the available one
// with the fewest requests today, tie-broken by least-recently-used. When
// every credential is saturated it re-applies the date rollover once (the
// clock may have crossed midnight) before giving up with ErrQuotaExhausted.
func (k *Keyring) Select() (id, key string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	candidates := k.availableLocked()
	if len(candidates) == 0 {
		// Second chance: rollover again in case the date advanced.
		candidates = k.availableLocked()
	}
	if len(candidates) == 0 {
		return "", "", ErrQuotaExhausted
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ua, ub := k.usage[candidates[a]], k.usage[candidates[b]]
		if ua.RequestsToday != ub.RequestsToday {
			return ua.RequestsToday < ub.RequestsToday
		}
		return ua.LastUsed.Before(ub.LastUsed)
	})

	chosen := candidates[0]
	return chosen, k.usage[chosen].Key, nil
}

// availableLocked applies date rollover to every credential and returns the
// IDs that still have quota. Caller holds the lock.
func (k *Keyring) availableLocked() []string {
	today := k.clock.Now().Format("2006-01-02")

	var out []string
	for _, id := range k.order {
		u := k.usage[id]
		u.resetIfNewDay(today)
		if u.available() {
			out = append(out, id)
		}
	}
	return out
}

// RecordSuccess updates counters after a confirmed upstream call. The
// provider's echoed cost / dailyQuota / requestCount are authoritative when
// present; cost defaults to 1 otherwise. The ledger is persisted before
// returning so a crash between calls cannot lose usage.
func (k *Keyring) RecordSuccess(id string, meta Meta) {
	k.mu.Lock()
	defer k.mu.Unlock()

	u, ok := k.usage[id]
	if !ok {
		k.log.Warn().Str("key_id", id).Msg("recorded call for unknown credential")
		return
	}

	now := k.clock.Now()
	u.resetIfNewDay(now.Format("2006-01-02"))

	cost := 1
	if meta.Cost > 0 {
		cost = meta.Cost
	}
	if meta.DailyQuota > 0 {
		u.DailyQuota = meta.DailyQuota
	}

	u.RequestsToday += cost
	u.TotalRequests += cost
	u.LastUsed = now

	// Provider-side request count wins over the local tally when echoed.
	if meta.RequestCount > 0 {
		u.RequestsToday = meta.RequestCount
	}

	if err := k.persistLocked(); err != nil {
		k.log.Error().Err(err).Msg("could not persist usage ledger")
	}

	k.log.Info().
		Str("key_id", id).
		Int("cost", cost).
		Int("requests_today", u.RequestsToday).
		Int("daily_quota", u.DailyQuota).
		Msg("upstream call recorded")
}

// Summary returns the usage of every credential, for the status command and
// the usage endpoint.
func (k *Keyring) Summary() []CredentialStatus {
	k.mu.Lock()
	defer k.mu.Unlock()

	today := k.clock.Now().Format("2006-01-02")
	out := make([]CredentialStatus, 0, len(k.order))
	for _, id := range k.order {
		u := k.usage[id]
		u.resetIfNewDay(today)
		out = append(out, CredentialStatus{
			ID:            id,
			RequestsToday: u.RequestsToday,
			DailyQuota:    u.DailyQuota,
			Available:     u.available(),
			LastUsed:      u.LastUsed,
			TotalRequests: u.TotalRequests,
		})
	}
	return out
}

func (k *Keyring) persistLocked() error {
	data, err := json.MarshalIndent(k.usage, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage ledger: %w", err)
	}
	return atomicfile.WriteFile(k.file, data, 0o600)
}
