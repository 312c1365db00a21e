package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dinecast-api/pkg/models"

	"github.com/jmoiron/sqlx"
)

// RestaurantRepo PostgreSQL上の店舗メタデータ
type RestaurantRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRestaurantRepo 新しい店舗リポジトリ
func NewRestaurantRepo(db *sqlx.DB, timeout time.Duration) *RestaurantRepo {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &RestaurantRepo{db: db, timeout: timeout}
}

const restaurantColumns = `id, name, latitude, longitude, state, cuisine_type, timezone, active`

func (r *RestaurantRepo) Get(ctx context.Context, id string) (*models.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rest models.Restaurant
	err := r.db.GetContext(ctx, &rest, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("failed to get restaurant: %w", err)
	}
	return &rest, nil
}

func (r *RestaurantRepo) ListActive(ctx context.Context) ([]*models.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []*models.Restaurant
	err := r.db.SelectContext(ctx, &rows, `SELECT `+restaurantColumns+` FROM restaurants WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	if rows == nil {
		rows = []*models.Restaurant{}
	}
	return rows, nil
}

func (r *RestaurantRepo) Upsert(ctx context.Context, rest *models.Restaurant) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO restaurants (` + restaurantColumns + `)
		VALUES (:id, :name, :latitude, :longitude, :state, :cuisine_type, :timezone, :active)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			state = EXCLUDED.state,
			cuisine_type = EXCLUDED.cuisine_type,
			timezone = EXCLUDED.timezone,
			active = EXCLUDED.active`
	if _, err := r.db.NamedExecContext(ctx, query, rest); err != nil {
		return fmt.Errorf("failed to upsert restaurant: %w", err)
	}
	return nil
}
