package medication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresConfig configures the bun-backed store.
type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"4"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
}

type medicationRow struct {
	bun.BaseModel `bun:"table:medications,alias:m"`

	Name      string    `bun:"name,pk"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// PostgresStore persists the medicine cabinet in Postgres through bun.
// It satisfies the same contract as MemoryStore: upsert idempotence is
// enforced by the primary key, so concurrent upserts of one name cannot
// create two rows.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &PostgresStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// EnsureSchema creates the medications table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*medicationRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create medications table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Upsert(ctx context.Context, rawName string) (Medication, error) {
	name := Normalize(rawName)
	if name == "" {
		return Medication{}, ErrEmptyName
	}

	row := medicationRow{Name: name, CreatedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx); err != nil {
		return Medication{}, fmt.Errorf("upsert medication: %w", err)
	}

	// Re-read so a lost insert race still returns the winning record.
	return s.Get(ctx, name)
}

func (s *PostgresStore) Get(ctx context.Context, rawName string) (Medication, error) {
	name := Normalize(rawName)
	if name == "" {
		return Medication{}, ErrEmptyName
	}

	var row medicationRow
	err := s.db.NewSelect().
		Model(&row).
		Where("name = ?", name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Medication{}, ErrNotFound
	}
	if err != nil {
		return Medication{}, fmt.Errorf("get medication: %w", err)
	}
	return Medication{Name: row.Name, CreatedAt: row.CreatedAt}, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Medication, error) {
	var rows []medicationRow
	if err := s.db.NewSelect().
		Model(&rows).
		Order("name ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}

	out := make([]Medication, 0, len(rows))
	for _, row := range rows {
		out = append(out, Medication{Name: row.Name, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, rawName string) (bool, error) {
	name := Normalize(rawName)
	if name == "" {
		return false, ErrEmptyName
	}

	res, err := s.db.NewDelete().
		Model((*medicationRow)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete medication: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete medication: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.NewDelete().
		Model((*medicationRow)(nil)).
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear medications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear medications: %w", err)
	}
	return int(affected), nil
}
