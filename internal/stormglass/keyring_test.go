package stormglass

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyring(t *testing.T, keys []string, quota int, clock clockwork.Clock) *Keyring {
	t.Helper()
	file := filepath.Join(t.TempDir(), "api_usage.json")
	k, err := NewKeyring(file, keys, quota, clock, zerolog.Nop())
	require.NoError(t, err)
	return k
}

func TestSelectPrefersLeastUsed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := newTestKeyring(t, []string{"a", "b"}, 10, clock)

	// key_0 at 9/10, key_1 at 2/10
	for i := 0; i < 9; i++ {
		k.RecordSuccess("key_0", Meta{})
	}
	for i := 0; i < 2; i++ {
		k.RecordSuccess("key_1", Meta{})
	}

	id, key, err := k.Select()
	require.NoError(t, err)
	assert.Equal(t, "key_1", id)
	assert.Equal(t, "b", key)
}

func TestSelectTieBreaksLeastRecentlyUsed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := newTestKeyring(t, []string{"a", "b"}, 10, clock)

	k.RecordSuccess("key_0", Meta{})
	clock.Advance(time.Minute)
	k.RecordSuccess("key_1", Meta{})

	// Equal usage; key_0 was used longer ago.
	id, _, err := k.Select()
	require.NoError(t, err)
	assert.Equal(t, "key_0", id)
}

func TestSelectExhaustionIsTerminal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := newTestKeyring(t, []string{"a", "b"}, 2, clock)

	for i := 0; i < 2; i++ {
		k.RecordSuccess("key_0", Meta{})
		k.RecordSuccess("key_1", Meta{})
	}

	_, _, err := k.Select()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExhausted))
}

func TestSelectResetsAcrossMidnight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := newTestKeyring(t, []string{"a"}, 1, clock)

	k.RecordSuccess("key_0", Meta{})
	_, _, err := k.Select()
	require.True(t, errors.Is(err, ErrQuotaExhausted))

	// Cross the date boundary: quota resets exactly once.
	clock.Advance(24 * time.Hour)
	id, _, err := k.Select()
	require.NoError(t, err)
	assert.Equal(t, "key_0", id)

	status := k.Summary()
	assert.Equal(t, 0, status[0].RequestsToday)
	assert.Equal(t, 1, status[0].TotalRequests)
}

func TestRecordSuccessHonorsProviderMeta(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := newTestKeyring(t, []string{"a"}, 10, clock)

	k.RecordSuccess("key_0", Meta{Cost: 2, DailyQuota: 50, RequestCount: 7})

	status := k.Summary()
	// Provider-echoed values are authoritative.
	assert.Equal(t, 7, status[0].RequestsToday)
	assert.Equal(t, 50, status[0].DailyQuota)
	assert.Equal(t, 2, status[0].TotalRequests)
}

func TestUsageSurvivesRestart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	file := filepath.Join(t.TempDir(), "api_usage.json")

	k1, err := NewKeyring(file, []string{"a", "b"}, 10, clock, zerolog.Nop())
	require.NoError(t, err)
	k1.RecordSuccess("key_0", Meta{Cost: 3})

	// Fresh keyring over the same ledger file.
	k2, err := NewKeyring(file, []string{"a", "b"}, 10, clock, zerolog.Nop())
	require.NoError(t, err)

	status := k2.Summary()
	assert.Equal(t, 3, status[0].RequestsToday)
	assert.Equal(t, 3, status[0].TotalRequests)
	assert.Equal(t, 0, status[1].RequestsToday)
}

func TestNewKeyringRequiresKeys(t *testing.T) {
	file := filepath.Join(t.TempDir(), "api_usage.json")
	_, err := NewKeyring(file, nil, 10, clockwork.NewFakeClock(), zerolog.Nop())
	assert.Error(t, err)
}
