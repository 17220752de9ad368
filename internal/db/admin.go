package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/texture.report/internal/monitoring"
)

// Stats summarises the store for the db-stats debug page.
type Stats struct {
	Results    int            `json:"results"`
	Runs       int            `json:"runs"`
	Labels     map[string]int `json:"labels"`
	Migration  uint           `json:"migration_version"`
	Dirty      bool           `json:"migration_dirty"`
	DatabaseAt string         `json:"path"`
}

// GetStats collects row counts and the schema version.
func (db *DB) GetStats() (Stats, error) {
	s := Stats{DatabaseAt: db.path, Labels: map[string]int{}}
	if err := db.QueryRow(`SELECT COUNT(*) FROM texture_results`).Scan(&s.Results); err != nil {
		return s, fmt.Errorf("failed to count results: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&s.Runs); err != nil {
		return s, fmt.Errorf("failed to count runs: %w", err)
	}
	counts, err := db.LabelCounts()
	if err != nil {
		return s, err
	}
	for label, n := range counts {
		s.Labels[string(label)] = n
	}
	s.Migration, s.Dirty, err = db.MigrateVersion()
	return s, err
}

// AttachAdminRoutes mounts tailsql, a stats page and a backup download
// under /debug/ on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Texture results",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("db-stats", "Result store statistics", func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetStats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir, err := os.MkdirTemp("", "texture-backup-")
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				monitoring.Opsf("failed to remove backup dir: %v", err)
			}
		}()

		name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		backupPath := filepath.Join(dir, name)
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			monitoring.Opsf("backup stream failed: %v", err)
		}
	}))
	return nil
}
