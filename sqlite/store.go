// Package sqlite provides a SQLite backed stash.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/zoobzio/stash"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// recordModel maps stash.Record onto the key_value_pairs table.
// Expiry is stored as unix microseconds so it compares as an integer and
// keeps the precision it was written with.
type recordModel struct {
	bun.BaseModel `bun:"table:key_value_pairs"`
	ID            string         `bun:"id,pk"`
	Name          string         `bun:"name,unique,notnull"`
	Description   sql.NullString `bun:"description"`
	Value         string         `bun:"value,notnull"`
	Secret        bool           `bun:"secret,notnull"`
	ExpireAt      sql.NullInt64  `bun:"expire_at"`
}

func toModel(rec *stash.Record) *recordModel {
	m := &recordModel{
		ID:     rec.ID,
		Name:   rec.Name,
		Value:  rec.Value,
		Secret: rec.Secret,
	}
	if rec.Description != nil {
		m.Description = sql.NullString{String: *rec.Description, Valid: true}
	}
	if rec.ExpireTimestamp != nil {
		m.ExpireAt = sql.NullInt64{Int64: rec.ExpireTimestamp.UnixMicro(), Valid: true}
	}
	return m
}

func (m *recordModel) record() *stash.Record {
	rec := &stash.Record{
		ID:     m.ID,
		Name:   m.Name,
		Value:  m.Value,
		Secret: m.Secret,
	}
	if m.Description.Valid {
		d := m.Description.String
		rec.Description = &d
	}
	if m.ExpireAt.Valid {
		t := time.UnixMicro(m.ExpireAt.Int64).UTC()
		rec.ExpireTimestamp = &t
	}
	return rec
}

// Store implements stash.Store on SQLite using bun.
type Store struct {
	db *bun.DB
}

// Open connects to dsn and creates the schema if it does not exist.
// In-memory databases are limited to one connection so every query sees
// the same database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqlDB.SetMaxOpenConns(1)
	}

	s := &Store{db: bun.NewDB(sqlDB, sqlitedialect.New())}
	if err := s.migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*recordModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create key_value_pairs table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*recordModel)(nil)).
		Index("idx_key_value_pairs_expire_at").
		IfNotExists().
		Column("expire_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create expire_at index: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put implements stash.Store. An existing record with the same name is
// replaced in place and keeps its id.
func (s *Store) Put(ctx context.Context, rec *stash.Record) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("%w: record name is required", stash.ErrSchemaValidation)
	}
	_, err := s.db.NewInsert().
		Model(toModel(rec)).
		On("CONFLICT (name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("value = EXCLUDED.value").
		Set("secret = EXCLUDED.secret").
		Set("expire_at = EXCLUDED.expire_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert %q: %w", rec.Name, err)
	}
	return nil
}

// Get implements stash.Store.
func (s *Store) Get(ctx context.Context, name string, now time.Time) (*stash.Record, error) {
	var m recordModel
	err := s.db.NewSelect().
		Model(&m).
		Where("name = ?", name).
		Where("expire_at IS NULL OR expire_at > ?", now.UnixMicro()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stash.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %q: %w", name, err)
	}
	return m.record(), nil
}

// List implements stash.Store. Records are ordered by name.
func (s *Store) List(ctx context.Context, now time.Time) ([]*stash.Record, error) {
	var models []recordModel
	err := s.db.NewSelect().
		Model(&models).
		Where("expire_at IS NULL OR expire_at > ?", now.UnixMicro()).
		OrderExpr("name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	out := make([]*stash.Record, 0, len(models))
	for i := range models {
		out = append(out, models[i].record())
	}
	return out, nil
}

// Delete implements stash.Store.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.NewDelete().
		Model((*recordModel)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return stash.ErrNotFound
	}
	return nil
}

// DeleteExpired implements stash.Store.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*recordModel)(nil)).
		Where("expire_at IS NOT NULL AND expire_at <= ?", now.UnixMicro()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var _ stash.Store = (*Store)(nil)
