// Package persistence keeps the host's run log in SQLite: one row per run,
// the events and operating history it produced, and a small key/value
// table for values that outlive a run such as operating hours.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/engine"
)

// Meta keys.
const (
	MetaOperatingHours = "operating_hours"
	MetaLastRun        = "last_run"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		map_name TEXT NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		values_json TEXT
	);

	CREATE TABLE IF NOT EXISTS history (
		run_id TEXT NOT NULL,
		sim_time REAL NOT NULL,
		state INTEGER NOT NULL,
		speed REAL NOT NULL,
		flow REAL NOT NULL,
		head REAL NOT NULL,
		power REAL NOT NULL,
		surge_margin REAL,
		PRIMARY KEY (run_id, sim_time)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, sim_time);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one simulation session.
type Run struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	StartedAt  string         `json:"started_at" db:"started_at"`
	EndedAt    sql.NullString `json:"-" db:"ended_at"`
	MapName    string         `json:"map_name" db:"map_name"`
	ConfigJSON string         `json:"-" db:"config_json"`
}

// StartRun records a new run with its configuration.
func (db *DB) StartRun(id uuid.UUID, mapName string, config any) error {
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT INTO runs (id, started_at, map_name, config_json) VALUES (?, ?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), mapName, string(cfgJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return db.SaveMeta(MetaLastRun, id.String())
}

// EndRun stamps the run's end time.
func (db *DB) EndRun(id uuid.UUID) error {
	_, err := db.conn.Exec("UPDATE runs SET ended_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, started_at, ended_at, map_name, config_json FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

type eventRow struct {
	ID          uuid.UUID      `db:"id"`
	RunID       uuid.UUID      `db:"run_id"`
	Tick        uint64         `db:"tick"`
	Time        float64        `db:"sim_time"`
	Kind        string         `db:"kind"`
	Category    string         `db:"category"`
	Description string         `db:"description"`
	ValuesJSON  sql.NullString `db:"values_json"`
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		var values sql.NullString
		if len(e.Values) > 0 {
			b, err := json.Marshal(finiteValues(e.Values))
			if err != nil {
				return fmt.Errorf("encode event %s values: %w", e.ID, err)
			}
			values = sql.NullString{String: string(b), Valid: true}
		}
		_, err := tx.Exec(`INSERT OR IGNORE INTO events
			(id, run_id, tick, sim_time, kind, category, description, values_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.RunID, e.Tick, e.Time, e.Kind, e.Category, e.Description, values,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func finiteValues(v map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(v))
	for k, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out[k] = x
		}
	}
	return out
}

// RecentEvents returns the most recent events of a run, newest first. A
// nil run ID selects across all runs.
func (db *DB) RecentEvents(runID uuid.UUID, limit int) ([]engine.Event, error) {
	var rows []eventRow
	var err error
	const cols = "SELECT id, run_id, tick, sim_time, kind, category, description, values_json FROM events"
	if runID == uuid.Nil {
		err = db.conn.Select(&rows, cols+" ORDER BY rowid DESC LIMIT ?", limit)
	} else {
		err = db.conn.Select(&rows, cols+" WHERE run_id = ? ORDER BY rowid DESC LIMIT ?", runID, limit)
	}
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		e := engine.Event{
			ID: r.ID, RunID: r.RunID, Tick: r.Tick, Time: r.Time,
			Kind: r.Kind, Category: r.Category, Description: r.Description,
		}
		if r.ValuesJSON.Valid {
			if err := json.Unmarshal([]byte(r.ValuesJSON.String), &e.Values); err != nil {
				return nil, fmt.Errorf("decode event %s values: %w", r.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, nil
}

type historyRow struct {
	Time        float64         `db:"sim_time"`
	State       int             `db:"state"`
	Speed       float64         `db:"speed"`
	Flow        float64         `db:"flow"`
	Head        float64         `db:"head"`
	Power       float64         `db:"power"`
	SurgeMargin sql.NullFloat64 `db:"surge_margin"`
}

// SaveHistory appends operating history for a run.
func (db *DB) SaveHistory(runID uuid.UUID, points []compressor.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO history
		(run_id, sim_time, state, speed, flow, head, power, surge_margin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		margin := sql.NullFloat64{Float64: p.SurgeMargin, Valid: !math.IsNaN(p.SurgeMargin) && !math.IsInf(p.SurgeMargin, 0)}
		if _, err := stmt.Exec(runID, p.Time, int(p.State), p.Speed, p.Flow, p.Head, p.Power, margin); err != nil {
			return fmt.Errorf("insert history t=%g: %w", p.Time, err)
		}
	}

	return tx.Commit()
}

// History returns the last limit history points of a run, oldest first.
// A missing surge margin reads back as NaN.
func (db *DB) History(runID uuid.UUID, limit int) ([]compressor.HistoryPoint, error) {
	var rows []historyRow
	err := db.conn.Select(&rows, `SELECT sim_time, state, speed, flow, head, power, surge_margin FROM (
		SELECT * FROM history WHERE run_id = ? ORDER BY sim_time DESC LIMIT ?
	) ORDER BY sim_time`, runID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]compressor.HistoryPoint, len(rows))
	for i, r := range rows {
		margin := math.NaN()
		if r.SurgeMargin.Valid {
			margin = r.SurgeMargin.Float64
		}
		out[i] = compressor.HistoryPoint{
			Time: r.Time, State: compressor.State(r.State), Speed: r.Speed,
			Flow: r.Flow, Head: r.Head, Power: r.Power, SurgeMargin: margin,
		}
	}
	return out, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// OperatingHours returns the stored running-hours counter, 0 if none.
func (db *DB) OperatingHours() (float64, error) {
	v, err := db.GetMeta(MetaOperatingHours)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse operating hours %q: %w", v, err)
	}
	return h, nil
}

// Saver flushes a simulation's new events and history to the database.
type Saver struct {
	DB          *DB
	Sim         *engine.Simulation
	lastHistory float64
}

// Save writes everything recorded since the previous Save, plus the
// operating hours.
func (s *Saver) Save() error {
	events := s.Sim.DrainEvents()
	if err := s.DB.SaveEvents(events); err != nil {
		s.Sim.RequeueEvents(events)
		return fmt.Errorf("save events: %w", err)
	}
	points := s.Sim.History(s.lastHistory)
	if err := s.DB.SaveHistory(s.Sim.RunID, points); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if len(points) > 0 {
		s.lastHistory = points[len(points)-1].Time
	}
	hours := strconv.FormatFloat(s.Sim.OperatingHours(), 'f', -1, 64)
	if err := s.DB.SaveMeta(MetaOperatingHours, hours); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Debug("run state saved", "events", len(events), "history", len(points))
	return nil
}
