package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PatternRepo PostgreSQL上のパターンストア
// 本体はJSONBに保存し、検索条件に使う項目を列として持つ
type PatternRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPatternRepo 新しいパターンリポジトリ
func NewPatternRepo(db *sqlx.DB, timeout time.Duration) *PatternRepo {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &PatternRepo{db: db, timeout: timeout}
}

type patternRow struct {
	Key      string `db:"key"`
	Revision int    `db:"revision"`
	Version  int    `db:"version"`
	Document []byte `db:"document"`
}

const patternSelect = `SELECT key, revision, version, document FROM patterns`

func (row patternRow) decode() (*models.Pattern, error) {
	var p models.Pattern
	if err := json.Unmarshal(row.Document, &p); err != nil {
		return nil, fmt.Errorf("failed to decode pattern document: %w", err)
	}
	p.Key = row.Key
	p.Revision = row.Revision
	p.Version = row.Version
	return &p, nil
}

func decodeRows(rows []patternRow) ([]*models.Pattern, error) {
	out := make([]*models.Pattern, 0, len(rows))
	for _, row := range rows {
		p, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func insertPattern(ctx context.Context, ext sqlx.ExtContext, p *models.Pattern) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}
	_, err = ext.ExecContext(ctx, `
		INSERT INTO patterns
		(id, key, revision, scope, restaurant_id, region, cuisine_type, type, ext_type,
		 is_active, confidence, version, previous_version_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Key, p.Revision, string(p.Scope), p.RestaurantID, p.Region, p.CuisineType, string(p.Type),
		p.ExternalFactor.Type, p.IsActive, p.Confidence, p.Version, p.PreviousVersionID, doc, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pattern %s already exists: %w", p.ID, models.ErrConcurrentUpdate)
		}
		return fmt.Errorf("failed to insert pattern: %w", err)
	}
	return nil
}

func (r *PatternRepo) Create(ctx context.Context, p *models.Pattern) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Revision = 1
	p.Normalize()
	return insertPattern(ctx, r.db, p)
}

func (r *PatternRepo) Get(ctx context.Context, id string) (*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.getOne(ctx, r.db, patternSelect+` WHERE id = $1`, id)
}

func (r *PatternRepo) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*models.Pattern, error) {
	var row patternRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPatternNotFound
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return row.decode()
}

func (r *PatternRepo) selectMany(ctx context.Context, query string, args ...any) ([]*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []patternRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	return decodeRows(rows)
}

func (r *PatternRepo) FindByKey(ctx context.Context, key string) (*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.getOne(ctx, r.db, patternSelect+` WHERE key = $1 ORDER BY version DESC LIMIT 1`, key)
}

func (r *PatternRepo) FindActiveForRestaurant(ctx context.Context, restaurantID, region, cuisine string) ([]*models.Pattern, error) {
	return r.selectMany(ctx, patternSelect+`
		WHERE is_active AND (
			(scope = 'restaurant' AND restaurant_id = $1)
			OR (scope = 'regional' AND $2 <> '' AND region = $2 AND (cuisine_type = '' OR cuisine_type = $3))
			OR (scope = 'global' AND (cuisine_type = '' OR cuisine_type = $3))
		)
		ORDER BY confidence DESC, id`, restaurantID, region, cuisine)
}

func (r *PatternRepo) FindByScope(ctx context.Context, scope models.PatternScope, minConfidence float64) ([]*models.Pattern, error) {
	return r.selectMany(ctx, patternSelect+`
		WHERE is_active AND scope = $1 AND confidence >= $2
		ORDER BY confidence DESC, id`, string(scope), minConfidence)
}

func (r *PatternRepo) FindRestaurantPatterns(ctx context.Context, restaurantID string, f models.PatternFilter) ([]*models.Pattern, error) {
	return r.selectMany(ctx, patternSelect+`
		WHERE scope = 'restaurant' AND restaurant_id = $1
		  AND (NOT $2 OR is_active)
		  AND ($3 = '' OR type = $3)
		  AND confidence >= $4
		ORDER BY confidence DESC, id`, restaurantID, f.ActiveOnly, string(f.Type), f.MinConfidence)
}

func (r *PatternRepo) FindPooled(ctx context.Context, scope models.PatternScope, region, cuisine string, factorType models.FactorType, extType string) (*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.getOne(ctx, r.db, patternSelect+`
		WHERE is_active AND scope = $1 AND region = $2 AND cuisine_type = $3 AND type = $4 AND ext_type = $5
		ORDER BY confidence DESC, id
		LIMIT 1`, string(scope), region, cuisine, string(factorType), extType)
}

// Update 楽観的更新。保存済みのrevisionと一致しない場合は ErrConcurrentUpdate
func (r *PatternRepo) Update(ctx context.Context, p *models.Pattern) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.update(ctx, r.db, p)
}

func (r *PatternRepo) update(ctx context.Context, ext sqlx.ExtContext, p *models.Pattern) error {
	next := p.Clone()
	next.Revision = p.Revision + 1
	next.UpdatedAt = time.Now().UTC()
	next.Normalize()
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}

	res, err := ext.ExecContext(ctx, `
		UPDATE patterns
		SET revision = revision + 1, is_active = $3, confidence = $4, document = $5, updated_at = $6
		WHERE id = $1 AND revision = $2`,
		p.ID, p.Revision, next.IsActive, next.Confidence, doc, next.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := sqlx.GetContext(ctx, ext, &exists, `SELECT EXISTS(SELECT 1 FROM patterns WHERE id = $1)`, p.ID); err != nil {
			return fmt.Errorf("failed to check pattern: %w", err)
		}
		if !exists {
			return models.ErrPatternNotFound
		}
		return models.ErrConcurrentUpdate
	}

	p.Revision = next.Revision
	p.UpdatedAt = next.UpdatedAt
	p.Confidence = next.Confidence
	return nil
}

// Supersede 旧バージョンの無効化と新バージョンの作成を1トランザクションで行う
func (r *PatternRepo) Supersede(ctx context.Context, id string, changes func(p *models.Pattern)) (*models.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := r.getOne(ctx, tx, patternSelect+` WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if !old.IsActive {
		return nil, fmt.Errorf("pattern %s is not the active version: %w", id, models.ErrConcurrentUpdate)
	}
	var newer bool
	if err := sqlx.GetContext(ctx, tx, &newer,
		`SELECT EXISTS(SELECT 1 FROM patterns WHERE key = $1 AND version > $2)`, old.Key, old.Version); err != nil {
		return nil, fmt.Errorf("failed to check newer versions: %w", err)
	}
	if newer {
		return nil, fmt.Errorf("pattern %s already superseded: %w", id, models.ErrConcurrentUpdate)
	}
	next := repository.NextVersion(old, changes)

	retired := old.Clone()
	retired.IsActive = false
	if err := r.update(ctx, tx, retired); err != nil {
		return nil, err
	}
	if err := insertPattern(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit supersede: %w", err)
	}
	return next, nil
}
