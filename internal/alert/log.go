package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/pkg/atomicfile"
)

// Cooldown is the minimum interval between two alerts for the same
// (spot, email) pair.
const Cooldown = 24 * time.Hour

// Log is the durable record of sent alerts, keyed by spot and recipient.
// It survives restarts so a process bounce cannot re-send today's alert.
type Log struct {
	mu   sync.Mutex
	file string
	zlog zerolog.Logger

	// sent maps "spot|email" to the time of the last alert.
	sent map[string]time.Time
}

// OpenLog loads the alert log, tolerating a missing or corrupt file.
func OpenLog(file string, zlog zerolog.Logger) *Log {
	l := &Log{
		file: file,
		zlog: zlog.With().Str("component", "alert.log").Logger(),
		sent: make(map[string]time.Time),
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return l
	}
	if err := json.Unmarshal(data, &l.sent); err != nil {
		l.zlog.Warn().Err(err).Str("file", file).Msg("could not parse alert log, starting fresh")
		l.sent = make(map[string]time.Time)
	}
	return l
}

// ShouldSend reports whether the cooldown for (spot, email) has elapsed.
func (l *Log) ShouldSend(spot, email string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.sent[logKey(spot, email)]
	return !ok || now.Sub(last) >= Cooldown
}

// Record notes that an alert was sent now and persists the log.
func (l *Log) Record(spot, email string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sent[logKey(spot, email)] = now

	data, err := json.MarshalIndent(l.sent, "", "  ")
	if err != nil {
		l.zlog.Error().Err(err).Msg("could not marshal alert log")
		return
	}
	if err := atomicfile.WriteFile(l.file, data, 0o644); err != nil {
		l.zlog.Error().Err(err).Msg("could not persist alert log")
	}
}

func logKey(spot, email string) string {
	return fmt.Sprintf("%s|%s", spot, email)
}
