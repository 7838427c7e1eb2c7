package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okian/draftboard/internal/domain/model"
)

// PGStore persists datasets in Postgres, one row per (group, format).
type PGStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

var _ DatasetStore = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB, opts ...Option) *PGStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &PGStore{db: db, table: pq.QuoteIdentifier(o.table), now: o.now}
}

// Migrate creates the datasets table when absent.
func (s *PGStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			grp        TEXT        NOT NULL,
			format     TEXT        NOT NULL,
			players    JSONB       NOT NULL DEFAULT '[]',
			source     TEXT        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (grp, format)
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate datasets: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PGStore) upsert(ctx context.Context, ex execer, d Dataset) error {
	payload, err := json.Marshal(d.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (grp, format, players, source, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (grp, format) DO UPDATE
		SET players = EXCLUDED.players, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := ex.ExecContext(ctx, query, string(d.Group), string(d.Format), payload, string(d.Source), d.UpdatedAt); err != nil {
		return fmt.Errorf("upsert dataset %s/%s: %w", d.Group, d.Format, err)
	}
	return nil
}

// Save implements DatasetStore.
func (s *PGStore) Save(ctx context.Context, d Dataset) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Players == nil {
		d.Players = []model.Player{}
	}
	d.UpdatedAt = s.now().UTC()
	return s.upsert(ctx, s.db, d)
}

// Append implements DatasetStore. The existing row is locked for the
// duration of the merge.
func (s *PGStore) Append(ctx context.Context, g model.Group, f model.Format, players []model.Player, source model.Source) (Dataset, error) {
	d := Dataset{Group: g, Format: f, Source: source}
	if err := d.validate(); err != nil {
		return Dataset{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Dataset{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	query := fmt.Sprintf(`SELECT players FROM %s WHERE grp = $1 AND format = $2 FOR UPDATE`, s.table)
	err = tx.QueryRowContext(ctx, query, string(g), string(f)).Scan(&raw)
	var existing []model.Player
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Dataset{}, fmt.Errorf("lock dataset %s/%s: %w", g, f, err)
	default:
		if err := json.Unmarshal(raw, &existing); err != nil {
			return Dataset{}, fmt.Errorf("decode players: %w", err)
		}
	}

	d.Players = mergePlayers(existing, players)
	d.UpdatedAt = s.now().UTC()
	if err := s.upsert(ctx, tx, d); err != nil {
		return Dataset{}, err
	}
	if err := tx.Commit(); err != nil {
		return Dataset{}, fmt.Errorf("commit append: %w", err)
	}
	return d, nil
}

// Clear implements DatasetStore.
func (s *PGStore) Clear(ctx context.Context, g model.Group, f model.Format) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE grp = $1 AND format = $2`, s.table)
	if _, err := s.db.ExecContext(ctx, query, string(g), string(f)); err != nil {
		return fmt.Errorf("clear dataset %s/%s: %w", g, f, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (Dataset, error) {
	var (
		d           Dataset
		grp, format string
		source      string
		raw         []byte
	)
	if err := row.Scan(&grp, &format, &raw, &source, &d.UpdatedAt); err != nil {
		return Dataset{}, err
	}
	d.Group = model.Group(grp)
	d.Format = model.Format(format)
	d.Source = model.Source(source)
	if err := json.Unmarshal(raw, &d.Players); err != nil {
		return Dataset{}, fmt.Errorf("decode players for %s/%s: %w", grp, format, err)
	}
	return d, nil
}

// Load implements DatasetStore.
func (s *PGStore) Load(ctx context.Context, g model.Group, f model.Format) (Dataset, error) {
	query := fmt.Sprintf(`SELECT grp, format, players, source, updated_at FROM %s WHERE grp = $1 AND format = $2`, s.table)
	d, err := scanDataset(s.db.QueryRowContext(ctx, query, string(g), string(f)))
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("load dataset %s/%s: %w", g, f, err)
	}
	return d, nil
}

// List implements DatasetStore.
func (s *PGStore) List(ctx context.Context, groups ...model.Group) ([]Dataset, error) {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	query := fmt.Sprintf(`
		SELECT grp, format, players, source, updated_at FROM %s
		WHERE cardinality($1::text[]) = 0 OR grp = ANY($1)
		ORDER BY grp, format`, s.table)
	rows, err := s.db.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return out, nil
}

// PurgeOlderThan implements DatasetStore.
func (s *PGStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE updated_at < $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge datasets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge datasets: %w", err)
	}
	return int(n), nil
}

// Ping implements DatasetStore.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
