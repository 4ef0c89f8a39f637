package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"circuitsync/internal/domain"
	"circuitsync/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.ResultStore using SQLite
type Repository struct {
	db           *sql.DB
	historyLimit int
}

var _ repository.ResultStore = (*Repository)(nil)

// New creates a new SQLite repository. ":memory:" opens a private in-memory
// database on a single connection.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// SetHistoryLimit caps the stored passes per device; 0 keeps everything
func (r *Repository) SetHistoryLimit(n int) {
	r.historyLimit = n
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		circuit_id TEXT NOT NULL,
		device_ref TEXT NOT NULL,
		vendor TEXT,
		started_ns INTEGER NOT NULL,
		finished_ns INTEGER NOT NULL,
		clean INTEGER NOT NULL DEFAULT 0,
		remediation_attempted INTEGER NOT NULL DEFAULT 0,
		remediation_status TEXT,
		device JSON,
		initial_diff JSON,
		final_diff JSON,
		remediation JSON,
		errors JSON,
		states JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS last_results (
		device_ref TEXT PRIMARY KEY,
		result_id TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (result_id) REFERENCES results(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_device ON results(device_ref, finished_ns);
	CREATE INDEX IF NOT EXISTS idx_results_circuit ON results(circuit_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveResult stores a pass result and makes it the device's last result
func (r *Repository) SaveResult(ctx context.Context, res *domain.ReconciliationResult) error {
	if res == nil || res.ID == "" || res.DeviceRef == "" {
		return errors.New("result needs an id and a device ref")
	}
	args, err := resultInsertArgs(res)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO results (`+resultColumns+`) VALUES (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to insert result %s: %w", res.ID, err)
	}

	// A result that finished earlier than the stored one never replaces it
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO last_results (device_ref, result_id, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_ref) DO UPDATE SET result_id = excluded.result_id, updated_at = CURRENT_TIMESTAMP
		WHERE (SELECT finished_ns FROM results WHERE id = last_results.result_id) <= ?
	`, res.DeviceRef, res.ID, timeToNanos(res.FinishedAt)); err != nil {
		return fmt.Errorf("failed to update last result for %s: %w", res.DeviceRef, err)
	}

	if r.historyLimit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM results WHERE device_ref = ? AND id NOT IN (
				SELECT id FROM results WHERE device_ref = ?
				ORDER BY finished_ns DESC, rowid DESC LIMIT ?
			) AND id NOT IN (SELECT result_id FROM last_results)
		`, res.DeviceRef, res.DeviceRef, r.historyLimit); err != nil {
			return fmt.Errorf("failed to trim history for %s: %w", res.DeviceRef, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Report implements service.Reporter
func (r *Repository) Report(ctx context.Context, res *domain.ReconciliationResult) error {
	return r.SaveResult(ctx, res)
}

// GetResult retrieves a single result by ID; nil when not found
func (r *Repository) GetResult(ctx context.Context, id string) (*domain.ReconciliationResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = ?`, id)
	return scanResult(row)
}

// LastResult returns the most recent result for a device; nil when none exists
func (r *Repository) LastResult(ctx context.Context, deviceRef string) (*domain.ReconciliationResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+prefixed("r", resultColumns)+`
		FROM last_results l JOIN results r ON r.id = l.result_id
		WHERE l.device_ref = ? COLLATE NOCASE
	`, deviceRef)
	return scanResult(row)
}

// ListLastResults returns the last result of every device, sorted by device
func (r *Repository) ListLastResults(ctx context.Context, filter repository.ResultFilter) ([]*domain.ReconciliationResult, error) {
	query := `
		SELECT ` + prefixed("r", resultColumns) + `
		FROM last_results l JOIN results r ON r.id = l.result_id
		WHERE 1=1`
	var args []interface{}
	if filter.CircuitID != "" {
		query += ` AND r.circuit_id = ?`
		args = append(args, filter.CircuitID)
	}
	if filter.DirtyOnly {
		query += ` AND r.clean = 0`
	}
	query += ` ORDER BY l.device_ref`

	return r.queryResults(ctx, query, args...)
}

// History returns up to limit results for a device, newest first
func (r *Repository) History(ctx context.Context, deviceRef string, limit int) ([]*domain.ReconciliationResult, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryResults(ctx, `
		SELECT `+resultColumns+` FROM results WHERE device_ref = ? COLLATE NOCASE
		ORDER BY finished_ns DESC, rowid DESC LIMIT ?
	`, deviceRef, limit)
}

func (r *Repository) queryResults(ctx context.Context, query string, args ...interface{}) ([]*domain.ReconciliationResult, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*domain.ReconciliationResult
	for rows.Next() {
		var row resultRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func scanResult(row *sql.Row) (*domain.ReconciliationResult, error) {
	var rr resultRow
	if err := row.Scan(rr.scanArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan result: %w", err)
	}
	return rr.toDomain()
}

// prefixed qualifies every column in a column list with a table alias
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
