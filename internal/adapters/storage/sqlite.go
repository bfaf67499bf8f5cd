package storage

// sqlite.go: histórico de ejecuciones.
//
// Estrategia:
//   - `runs`: una fila por ejecución (tipo, etiqueta, parámetros, contadores).
//   - `points`: una fila por (run, serie, fecha). Las series rolling tienen
//     miles de puntos, así que se insertan con un statement preparado en una
//     única transacción.
//   - `grid_cells`: tabla phoenix (plazo × sigma) de las ejecuciones phoenix.
//   - Prune automático al arrancar: ejecuciones de más de 90 días.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/volbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    kind       TEXT     NOT NULL,
    label      TEXT     NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    params     TEXT     NOT NULL DEFAULT '',
    failures   INTEGER  NOT NULL DEFAULT 0,
    fallbacks  INTEGER  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS points (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    series TEXT NOT NULL,
    date   TEXT NOT NULL,
    value  REAL NOT NULL,
    PRIMARY KEY (run_id, series, date)
);

CREATE TABLE IF NOT EXISTS grid_cells (
    run_id TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    months INTEGER NOT NULL,
    sigma  REAL    NOT NULL,
    value  REAL    NOT NULL,
    delta  REAL    NOT NULL,
    PRIMARY KEY (run_id, months, sigma)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_kind    ON runs(kind);
`

const retentionRuns = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia ejecuciones antiguas.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveRun persiste la ejecución, sus series y su tabla en una transacción.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return errors.New("storage.SaveRun: empty run id")
	}
	params, err := yaml.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: marshal params: %w", err)
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, label, created_at, params, failures, fallbacks) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Label, created.UTC(), string(params), run.Failures, run.Fallbacks,
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run %s: %w", run.ID, err)
	}

	if len(run.Series) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO points (run_id, series, date, value) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("storage.SaveRun: prepare points: %w", err)
		}
		defer stmt.Close()

		for _, series := range run.Series {
			for _, p := range series.Points {
				if _, err := stmt.ExecContext(ctx, run.ID, series.Name, p.Date.Format(time.DateOnly), p.Value); err != nil {
					return fmt.Errorf("storage.SaveRun: insert point %s/%s: %w",
						series.Name, p.Date.Format(time.DateOnly), err)
				}
			}
		}
	}

	for _, c := range run.Grid {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grid_cells (run_id, months, sigma, value, delta) VALUES (?, ?, ?, ?, ?)`,
			run.ID, c.Months, c.Sigma, c.Value, c.Delta,
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert cell %dm/%g: %w", c.Months, c.Sigma, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// GetRun recupera una ejecución con sus series (ordenadas por nombre y fecha)
// y su tabla.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, label, created_at, params, failures, fallbacks FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("storage.GetRun: %s: %w", id, domain.ErrRunNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("storage.GetRun: %w", err)
	}

	if run.Series, err = s.loadSeries(ctx, id); err != nil {
		return domain.Run{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	if run.Grid, err = s.loadGrid(ctx, id); err != nil {
		return domain.Run{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	return run, nil
}

// ListRuns devuelve las últimas ejecuciones sin puntos. kind vacío no filtra.
func (s *SQLiteStorage) ListRuns(ctx context.Context, kind domain.RunKind, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, label, created_at, params, failures, fallbacks
		FROM runs
		WHERE ? = '' OR kind = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListRuns: scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var run domain.Run
	var kind, params string
	if err := row.Scan(&run.ID, &kind, &run.Label, &run.CreatedAt, &params, &run.Failures, &run.Fallbacks); err != nil {
		return domain.Run{}, err
	}
	run.Kind = domain.RunKind(kind)
	if params != "" {
		if err := yaml.Unmarshal([]byte(params), &run.Params); err != nil {
			return domain.Run{}, fmt.Errorf("unmarshal params of %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func (s *SQLiteStorage) loadSeries(ctx context.Context, id string) ([]domain.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT series, date, value FROM points WHERE run_id = ? ORDER BY series, date`, id)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []domain.Series
	for rows.Next() {
		var name, date string
		var value float64
		if err := rows.Scan(&name, &date, &value); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		d, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, fmt.Errorf("parse point date %q: %w", date, err)
		}
		if len(out) == 0 || out[len(out)-1].Name != name {
			out = append(out, domain.Series{Name: name})
		}
		last := &out[len(out)-1]
		last.Points = append(last.Points, domain.Point{Date: d, Value: value})
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadGrid(ctx context.Context, id string) ([]domain.GridCell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT months, sigma, value, delta FROM grid_cells WHERE run_id = ? ORDER BY months, sigma`, id)
	if err != nil {
		return nil, fmt.Errorf("query grid: %w", err)
	}
	defer rows.Close()

	var cells []domain.GridCell
	for rows.Next() {
		var c domain.GridCell
		if err := rows.Scan(&c.Months, &c.Sigma, &c.Value, &c.Delta); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// pruneOld elimina ejecuciones antiguas (y en cascada sus puntos) para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns)
	s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
}
