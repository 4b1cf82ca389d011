package sink

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/coalescence-sim/coalescence-sim/sim"
)

// SQLiteSink stores every realization of a run in one SQLite database.
// Writers buffer their events and commit them in a single transaction on
// Close; commits are serialized.
type SQLiteSink struct {
	mu   sync.Mutex
	conn *sqlx.DB
}

// EventRow is one persisted merge event.
type EventRow struct {
	RunID    string  `db:"run_id"`
	Step     int     `db:"step"`
	Node1    int     `db:"node1"`
	Node2    int     `db:"node2"`
	Time     float64 `db:"time"`
	Internal bool    `db:"internal"`
}

// RealizationRow is one persisted realization header.
type RealizationRow struct {
	RunID         string  `db:"run_id"`
	Index         int     `db:"idx"`
	Seed          int64   `db:"seed"`
	Dimension     int     `db:"dimension"`
	Agents        int     `db:"agents"`
	Selectivity   float64 `db:"selectivity"`
	InternalLinks bool    `db:"internal_links"`
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteSink{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.conn.Close()
}

func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS realizations (
		run_id TEXT PRIMARY KEY,
		idx INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		dimension INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		selectivity REAL NOT NULL,
		internal_links INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		agent INTEGER NOT NULL,
		features_json TEXT NOT NULL,
		PRIMARY KEY (run_id, agent)
	);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		node1 INTEGER NOT NULL,
		node2 INTEGER NOT NULL,
		time REAL NOT NULL,
		internal INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Open stores the realization header and the agents' feature vectors.
func (s *SQLiteSink) Open(meta RealizationMeta, features [][]float64) (RealizationWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	runID := meta.RunID.String()
	_, err = tx.NamedExec(`INSERT INTO realizations (run_id, idx, seed, dimension, agents, selectivity, internal_links)
		VALUES (:run_id, :idx, :seed, :dimension, :agents, :selectivity, :internal_links)`,
		RealizationRow{
			RunID:         runID,
			Index:         meta.Index,
			Seed:          meta.Seed,
			Dimension:     meta.Config.Dimension,
			Agents:        meta.Config.Agents,
			Selectivity:   meta.Config.Selectivity,
			InternalLinks: meta.Config.InternalLinks,
		})
	if err != nil {
		return nil, fmt.Errorf("insert realization: %w", err)
	}

	stmt, err := tx.Preparex(`INSERT INTO agents (run_id, agent, features_json) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for i, v := range features {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.Exec(runID, i, string(data)); err != nil {
			return nil, fmt.Errorf("insert agent %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sqliteWriter{sink: s, runID: runID}, nil
}

// Realizations returns every stored realization header ordered by index.
func (s *SQLiteSink) Realizations() ([]RealizationRow, error) {
	var rows []RealizationRow
	err := s.conn.Select(&rows, `SELECT run_id, idx, seed, dimension, agents, selectivity, internal_links
		FROM realizations ORDER BY idx`)
	return rows, err
}

// Events returns the events of one realization in step order.
func (s *SQLiteSink) Events(runID string) ([]EventRow, error) {
	var rows []EventRow
	err := s.conn.Select(&rows, `SELECT run_id, step, node1, node2, time, internal
		FROM events WHERE run_id = ? ORDER BY step`, runID)
	return rows, err
}

// AgentFeatures returns the stored feature vectors of one realization.
func (s *SQLiteSink) AgentFeatures(runID string) ([][]float64, error) {
	var raw []string
	if err := s.conn.Select(&raw, `SELECT features_json FROM agents WHERE run_id = ? ORDER BY agent`, runID); err != nil {
		return nil, err
	}
	out := make([][]float64, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &out[i]); err != nil {
			return nil, fmt.Errorf("decode agent %d: %w", i, err)
		}
	}
	return out, nil
}

type sqliteWriter struct {
	sink   *SQLiteSink
	runID  string
	events []EventRow
}

func (w *sqliteWriter) WriteEvent(ev sim.MergeEvent) error {
	w.events = append(w.events, EventRow{
		RunID:    w.runID,
		Step:     ev.Step,
		Node1:    ev.Agent1,
		Node2:    ev.Agent2,
		Time:     ev.Time,
		Internal: ev.Internal,
	})
	return nil
}

func (w *sqliteWriter) Close() error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()

	tx, err := w.sink.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`INSERT INTO events (run_id, step, node1, node2, time, internal)
		VALUES (:run_id, :step, :node1, :node2, :time, :internal)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ev := range w.events {
		if _, err := stmt.Exec(ev); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Step, err)
		}
	}
	w.events = nil
	return tx.Commit()
}

// Abort drops the buffered events and removes the rows Open stored, so a
// failed realization leaves nothing behind.
func (w *sqliteWriter) Abort() error {
	w.events = nil

	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()

	tx, err := w.sink.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM agents WHERE run_id = ?`, w.runID); err != nil {
		return fmt.Errorf("delete agents: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM realizations WHERE run_id = ?`, w.runID); err != nil {
		return fmt.Errorf("delete realization: %w", err)
	}
	return tx.Commit()
}
