// Package database holds the PostgreSQL schema migrations.
package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// migration 1つのスキーマ変更
type migration struct {
	version string
	sql     string
}

var migrations = []migration{
	{
		version: "0001_restaurants",
		sql: `
			CREATE TABLE IF NOT EXISTS restaurants (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				latitude DOUBLE PRECISION,
				longitude DOUBLE PRECISION,
				state TEXT NOT NULL DEFAULT '',
				cuisine_type TEXT NOT NULL DEFAULT '',
				timezone TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true
			)`,
	},
	{
		version: "0002_transactions",
		sql: `
			CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
				transaction_date TIMESTAMP WITH TIME ZONE NOT NULL,
				total_amount DOUBLE PRECISION NOT NULL,
				items JSONB NOT NULL DEFAULT '[]'
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_restaurant_date
				ON transactions (restaurant_id, transaction_date)`,
	},
	{
		version: "0003_patterns",
		sql: `
			CREATE TABLE IF NOT EXISTS patterns (
				id TEXT PRIMARY KEY,
				key TEXT NOT NULL,
				revision INTEGER NOT NULL DEFAULT 1,
				scope TEXT NOT NULL,
				restaurant_id TEXT NOT NULL DEFAULT '',
				region TEXT NOT NULL DEFAULT '',
				cuisine_type TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				ext_type TEXT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
				version INTEGER NOT NULL DEFAULT 1,
				previous_version_id TEXT NOT NULL DEFAULT '',
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_patterns_key_version ON patterns (key, version DESC);
			CREATE INDEX IF NOT EXISTS idx_patterns_restaurant ON patterns (restaurant_id) WHERE scope = 'restaurant';
			CREATE INDEX IF NOT EXISTS idx_patterns_pool ON patterns (scope, region, cuisine_type, type, ext_type) WHERE is_active`,
	},
	{
		version: "0004_unique_active_pool",
		sql: `
			DROP INDEX IF EXISTS idx_patterns_pool;
			CREATE UNIQUE INDEX IF NOT EXISTS uq_patterns_active_pool
				ON patterns (scope, region, cuisine_type, type, ext_type)
				WHERE is_active AND scope <> 'restaurant'`,
	},
}

// MigrationRunner スキーマのマイグレーションを順に適用する
type MigrationRunner struct{}

// NewRunner 新しいランナー
func NewRunner() *MigrationRunner {
	return &MigrationRunner{}
}

// Versions 定義済みのマイグレーション
func (r *MigrationRunner) Versions() []string {
	out := make([]string, len(migrations))
	for i, m := range migrations {
		out[i] = m.version
	}
	return out
}

// Run 未適用のマイグレーションを適用し、適用した数を返す
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	count := 0
	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		if err := r.apply(ctx, db, m); err != nil {
			return count, fmt.Errorf("failed to apply migration %s: %w", m.version, err)
		}
		log.Info().Str("version", m.version).Msg("🗄️ マイグレーションを適用しました")
		count++
	}
	return count, nil
}

func (r *MigrationRunner) apply(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
