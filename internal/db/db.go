// Package db stores texture results in sqlite.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/texture"
)

// DB is the result store.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the sqlite database at path and applies
// the embedded migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }

// Run describes one process run.
type Run struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	ModelName string    `json:"model_name"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// RecordRun stores the metadata of a run. Recording the same id twice
// replaces the earlier row.
func (db *DB) RecordRun(run Run) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, started_unix_nanos, model_name, source, version)
		 VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UnixNano(), run.ModelName, run.Source, run.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecordResult inserts one cycle result, including its grid.
func (db *DB) RecordResult(res texture.Result) error {
	var (
		rows, cols int
		gridJSON   sql.NullString
	)
	if res.Grid != nil {
		rows, cols = res.Grid.Dims()
		data, err := json.Marshal(mat.DenseCopyOf(res.Grid).RawMatrix().Data)
		if err != nil {
			return fmt.Errorf("failed to encode grid: %w", err)
		}
		gridJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO texture_results (
			run_id, seq, recorded_unix_nanos, score, label, inference_ns,
			grid_rows, grid_cols, grid_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, int64(res.Seq), res.Timestamp.UnixNano(), res.Score, string(res.Label),
		res.Inference.Nanoseconds(), rows, cols, gridJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// Observe records res, logging failures instead of returning them so the
// store can sit in a cycle's observer list.
func (db *DB) Observe(res texture.Result) {
	if err := db.RecordResult(res); err != nil {
		monitoring.Opsf("result store: %v", err)
	}
}

// RecentResults returns up to limit results, newest first.
func (db *DB) RecentResults(limit int) ([]texture.Result, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := db.Query(
		`SELECT run_id, seq, recorded_unix_nanos, score, label, inference_ns,
		        grid_rows, grid_cols, grid_json
		   FROM texture_results
		  ORDER BY result_id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []texture.Result
	for rows.Next() {
		var (
			res                texture.Result
			seq, nanos, infNs  int64
			label              string
			gridRows, gridCols int
			gridJSON           sql.NullString
		)
		if err := rows.Scan(&res.RunID, &seq, &nanos, &res.Score, &label, &infNs,
			&gridRows, &gridCols, &gridJSON); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Seq = uint64(seq)
		res.Timestamp = time.Unix(0, nanos).UTC()
		res.Label = texture.Label(label)
		res.Inference = time.Duration(infNs)

		if gridJSON.Valid && gridRows > 0 && gridCols > 0 {
			var data []float64
			if err := json.Unmarshal([]byte(gridJSON.String), &data); err != nil {
				return nil, fmt.Errorf("failed to decode grid of result %d: %w", seq, err)
			}
			if len(data) != gridRows*gridCols {
				return nil, fmt.Errorf("grid of result %d has %d values, want %d", seq, len(data), gridRows*gridCols)
			}
			res.Grid = mat.NewDense(gridRows, gridCols, data)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// LabelCounts returns how many results carry each label.
func (db *DB) LabelCounts() (map[texture.Label]int, error) {
	rows, err := db.Query(`SELECT label, COUNT(*) FROM texture_results GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	defer rows.Close()

	counts := map[texture.Label]int{texture.Plain: 0, texture.Rough: 0}
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[texture.Label(label)] = n
	}
	return counts, rows.Err()
}
