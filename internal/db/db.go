// Package db persists fade activity to SQLite: one row per daemon run,
// one per registered source, and one per detected verdict transition.
// The schema is owned entirely by the migrations under db/migrations;
// nothing here creates tables.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps the SQLite handle shared by the transition worker, the HTTP
// API, and the admin routes.
type DB struct {
	*sql.DB
}

// startupPragmas are applied once per open. WAL keeps the SQL browser
// and API reads live while the transition worker writes.
var startupPragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA temp_store = MEMORY",
}

// NewDB opens (creating if necessary) the SQLite database at path and
// applies the startup pragmas. The schema is not touched; callers run
// MigrateUp separately.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	for _, pragma := range startupPragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// Transition is one persisted verdict-type change on a source.
// StartedAt is the capture time of the first frame in the episode;
// DetectedAt is the frame that fired the change. The pixel statistics
// are those of the detecting frame.
type Transition struct {
	ID          int64   `json:"id"`
	RunID       string  `json:"run_id"`
	SourceID    string  `json:"source_id"`
	Label       string  `json:"label"`
	Verdict     string  `json:"verdict"`
	Confidence  float64 `json:"confidence"`
	AverageRate float64 `json:"average_rate"`
	Luminance   float64 `json:"luminance"`
	Variance    float64 `json:"variance"`
	EdgeDensity float64 `json:"edge_density"`
	StartedAt   float64 `json:"started_at"`
	DetectedAt  float64 `json:"detected_at"`
	FrameCount  int     `json:"frame_count"`
}

// SourceRow is one persisted source registration. EvictedAt is nil while
// the source is live.
type SourceRow struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	FirstSeen float64  `json:"first_seen"`
	LastSeen  float64  `json:"last_seen"`
	EvictedAt *float64 `json:"evicted_at,omitempty"`
}

// RecordRun inserts the run row for this daemon invocation.
func (db *DB) RecordRun(ctx context.Context, id string, startedAt float64, version string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, version) VALUES (?, ?, ?)`,
		id, startedAt, version)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", id, err)
	}
	return nil
}

// UpsertSource inserts or refreshes a source row. first_seen survives
// from the original insert; label and last_seen follow the latest call.
func (db *DB) UpsertSource(ctx context.Context, id, label string, seenAt float64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sources (id, label, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			label = excluded.label,
			last_seen = excluded.last_seen`,
		id, label, seenAt, seenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", id, err)
	}
	return nil
}

// MarkSourceEvicted stamps the eviction time on a source row. A source
// that idled out before its first flush has no row yet; that miss is
// not an error.
func (db *DB) MarkSourceEvicted(ctx context.Context, id string, evictedAt float64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sources SET evicted_at = ? WHERE id = ?`, evictedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark source %s evicted: %w", id, err)
	}
	return nil
}

// RecordTransition inserts a single transition row.
func (db *DB) RecordTransition(ctx context.Context, tr Transition) error {
	return db.RecordTransitions(ctx, []Transition{tr})
}

// RecordTransitions inserts a batch of transition rows in one
// transaction.
func (db *DB) RecordTransitions(ctx context.Context, transitions []Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transitions (run_id, source_id, label, verdict, confidence, avg_rate,
			luminance, variance, edge_density, started_at, detected_at, frame_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transition insert: %w", err)
	}
	defer stmt.Close()

	for _, tr := range transitions {
		if _, err := stmt.ExecContext(ctx,
			tr.RunID, tr.SourceID, tr.Label, tr.Verdict, tr.Confidence, tr.AverageRate,
			tr.Luminance, tr.Variance, tr.EdgeDensity, tr.StartedAt, tr.DetectedAt,
			tr.FrameCount); err != nil {
			return fmt.Errorf("failed to insert transition for source %s: %w", tr.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition batch: %w", err)
	}
	return nil
}

// Transitions returns recorded transitions, newest first. sourceID and
// since are optional filters (empty string and zero disable them).
// limit caps the result and defaults to 100 when non-positive.
func (db *DB) Transitions(ctx context.Context, sourceID string, since float64, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, run_id, source_id, label, verdict, confidence, avg_rate,
		luminance, variance, edge_density, started_at, detected_at, frame_count
		FROM transitions WHERE 1=1`
	args := []any{}
	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	if since > 0 {
		query += ` AND detected_at >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY detected_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.SourceID, &tr.Label, &tr.Verdict,
			&tr.Confidence, &tr.AverageRate, &tr.Luminance, &tr.Variance, &tr.EdgeDensity,
			&tr.StartedAt, &tr.DetectedAt, &tr.FrameCount); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// TransitionCounts returns the number of recorded transitions per
// verdict type.
func (db *DB) TransitionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT verdict, COUNT(*) FROM transitions GROUP BY verdict`)
	if err != nil {
		return nil, fmt.Errorf("failed to count transitions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, fmt.Errorf("failed to scan transition count: %w", err)
		}
		counts[verdict] = n
	}
	return counts, rows.Err()
}

// Sources returns every persisted source, most recently seen first.
func (db *DB) Sources(ctx context.Context) ([]SourceRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, label, first_seen, last_seen, evicted_at
		FROM sources ORDER BY last_seen DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var src SourceRow
		var evictedAt sql.NullFloat64
		if err := rows.Scan(&src.ID, &src.Label, &src.FirstSeen, &src.LastSeen, &evictedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		if evictedAt.Valid {
			src.EvictedAt = &evictedAt.Float64
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DatabaseStats summarizes on-disk size and per-table row counts for
// the db-stats admin endpoint.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// TableStats is the row count for one user table.
type TableStats struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// GetDatabaseStats reports the database file size and the row count of
// every user table.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page_size: %w", err)
	}
	stats := &DatabaseStats{
		TotalSizeMB: float64(pageCount*pageSize) / (1024 * 1024),
	}

	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		var count int64
		// Table names come from sqlite_master, not user input.
		if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: name, RowCount: count})
	}
	return stats, nil
}

// AttachAdminRoutes mounts the tsweb debug index plus a live SQL
// browser, a stats endpoint, and an on-demand backup download under
// /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://fade.db", db.DB, &tailsql.DBOptions{
		Label: "Fade DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Database size and per-table row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to collect database stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Printf("Failed to encode database stats: %v", err)
		}
	}))

	debug.Handle("db-backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("fade-backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to stream backup file: %v", err)
		}
	}))
}
