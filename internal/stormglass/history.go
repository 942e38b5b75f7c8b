package stormglass

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// History is the durable per-location dataset of already-observed hours.
// Locations close to the same buoy share one db_name, so the store is keyed
// by db_name rather than spot name.
type History struct {
	mu  sync.Mutex
	db  *sql.DB
	log zerolog.Logger
}

// OpenHistory opens (and if needed creates) the history database.
func OpenHistory(path string, log zerolog.Logger) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// Pragmas for concurrent reader/writer behavior.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA synchronous=NORMAL")

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			db_name TEXT NOT NULL,
			ts      INTEGER NOT NULL,
			channel TEXT NOT NULL,
			value   REAL NOT NULL,
			PRIMARY KEY (db_name, ts, channel)
		);
		CREATE INDEX IF NOT EXISTS idx_history_name_ts ON history(db_name, ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &History{
		db:  db,
		log: log.With().Str("component", "stormglass.history").Logger(),
	}, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Load returns the full persisted frame for one location dataset.
func (h *History) Load(dbName string) (*timeseries.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.Query(
		`SELECT ts, channel, value FROM history WHERE db_name = ? ORDER BY ts`, dbName)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", dbName, err)
	}
	defer rows.Close()

	type cell struct {
		ts      int64
		channel string
		value   float64
	}

	var cells []cell
	rowIndex := make(map[int64]int)
	var times []time.Time
	channels := make(map[string]struct{})

	for rows.Next() {
		var c cell
		if err := rows.Scan(&c.ts, &c.channel, &c.value); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if _, seen := rowIndex[c.ts]; !seen {
			rowIndex[c.ts] = len(times)
			times = append(times, time.Unix(c.ts, 0).UTC())
		}
		channels[c.channel] = struct{}{}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	frame := timeseries.NewWithTimes(times)
	for ch := range channels {
		vals := make([]float64, len(times))
		for i := range vals {
			vals[i] = math.NaN()
		}
		if err := frame.SetColumn(ch, vals); err != nil {
			return nil, err
		}
	}
	for _, c := range cells {
		_ = frame.SetCell(c.channel, rowIndex[c.ts], c.value)
	}

	frame.Normalize()
	return frame, nil
}

// Merge upserts the frame's non-NaN cells into the location dataset. Rows
// at an existing timestamp are overwritten: a later fetch of the same hour
// is the better observation.
func (h *History) Merge(dbName string, frame *timeseries.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history merge: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO history (db_name, ts, channel, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare history merge: %w", err)
	}
	defer stmt.Close()

	times := frame.Times()
	for _, ch := range frame.Columns() {
		vals, _ := frame.Column(ch)
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			if _, err := stmt.Exec(dbName, times[i].Unix(), ch, v); err != nil {
				return fmt.Errorf("merge history cell: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history merge: %w", err)
	}

	h.log.Debug().Str("db_name", dbName).Int("rows", frame.Len()).Msg("history merged")
	return nil
}
