package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/restraint"
)

var ErrNotConnected = errors.New("store is not connected")

// Rows are replaced by delete and insert inside one transaction; the tables
// carry no unique constraints because DuckDB checks them eagerly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS restraint_checkpoints (
		restraint   VARCHAR NOT NULL,
		rotation    UBIGINT NOT NULL,
		sim_time    DOUBLE NOT NULL,
		next_update DOUBLE NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS restraint_windows (
		restraint VARCHAR NOT NULL,
		slot      INTEGER NOT NULL,
		bin       INTEGER NOT NULL,
		value     DOUBLE NOT NULL
	)`,
}

// Store keeps the latest window history of every named restraint in a
// DuckDB database. An empty data source name opens an in-memory database.
type Store struct {
	dataSourceName string
	db             *sql.DB
}

func NewStore(dataSourceName string) *Store {
	return &Store{
		dataSourceName: dataSourceName,
	}
}

func (s *Store) Connect() error {
	db, err := sql.Open("duckdb", s.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %q: %w", s.dataSourceName, err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return ErrNotConnected
	}
	for _, statement := range schema {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("error migrating schema: %w", err)
		}
	}
	return nil
}

// SaveWindows replaces the stored history of name with checkpoint.
func (s *Store) SaveWindows(ctx context.Context, name string, checkpoint restraint.Checkpoint) error {
	if s.db == nil {
		return ErrNotConnected
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM restraint_windows WHERE restraint = ?`, name); err != nil {
		return fmt.Errorf("error clearing windows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM restraint_checkpoints WHERE restraint = ?`, name); err != nil {
		return fmt.Errorf("error clearing checkpoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO restraint_checkpoints (restraint, rotation, sim_time, next_update, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, checkpoint.Rotation, checkpoint.SimTime, checkpoint.NextWindowUpdateTime, time.Now().UTC()); err != nil {
		return fmt.Errorf("error inserting checkpoint: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO restraint_windows (restraint, slot, bin, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmt)

	for slot, window := range checkpoint.Windows {
		for bin, value := range window {
			if _, err := stmt.ExecContext(ctx, name, slot, bin, value); err != nil {
				return fmt.Errorf("error inserting window %d: %w", slot, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing checkpoint: %w", err)
	}
	return nil
}

// SaveRotation stores the history carried by a rotation event.
func (s *Store) SaveRotation(ctx context.Context, ev common.WindowRotated) error {
	return s.SaveWindows(ctx, ev.Restraint, restraint.Checkpoint{
		Rotation:             ev.Rotation,
		SimTime:              ev.SimTime,
		NextWindowUpdateTime: ev.NextTime,
		Windows:              ev.Windows,
	})
}

// LoadWindows returns the stored history of name. The boolean is false when
// nothing was saved under that name.
func (s *Store) LoadWindows(ctx context.Context, name string) (restraint.Checkpoint, bool, error) {
	var checkpoint restraint.Checkpoint
	if s.db == nil {
		return checkpoint, false, ErrNotConnected
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT rotation, sim_time, next_update FROM restraint_checkpoints WHERE restraint = ?`, name).
		Scan(&checkpoint.Rotation, &checkpoint.SimTime, &checkpoint.NextWindowUpdateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint, false, nil
	}
	if err != nil {
		return checkpoint, false, fmt.Errorf("error loading checkpoint: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, bin, value FROM restraint_windows WHERE restraint = ? ORDER BY slot, bin`, name)
	if err != nil {
		return checkpoint, false, fmt.Errorf("error preparing query: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var slot, bin int
		var value float64
		if err := rows.Scan(&slot, &bin, &value); err != nil {
			return checkpoint, false, fmt.Errorf("error scanning row: %w", err)
		}
		for len(checkpoint.Windows) <= slot {
			checkpoint.Windows = append(checkpoint.Windows, nil)
		}
		window := checkpoint.Windows[slot]
		if bin != len(window) {
			return checkpoint, false, fmt.Errorf("window %d of %q is missing bin %d", slot, name, len(window))
		}
		checkpoint.Windows[slot] = append(window, value)
	}
	if err := rows.Err(); err != nil {
		return checkpoint, false, fmt.Errorf("error scanning rows: %w", err)
	}

	return checkpoint, true, nil
}

// Restraints lists the names with a stored checkpoint.
func (s *Store) Restraints(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	rows, err := s.db.QueryContext(ctx, `SELECT restraint FROM restraint_checkpoints ORDER BY restraint`)
	if err != nil {
		return nil, fmt.Errorf("error preparing query: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
