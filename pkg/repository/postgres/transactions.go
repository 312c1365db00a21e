package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dinecast-api/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TransactionRepo PostgreSQL上の取引データ
type TransactionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTransactionRepo 新しい取引リポジトリ
func NewTransactionRepo(db *sqlx.DB, timeout time.Duration) *TransactionRepo {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &TransactionRepo{db: db, timeout: timeout}
}

type transactionRow struct {
	ID              string    `db:"id"`
	RestaurantID    string    `db:"restaurant_id"`
	TransactionDate time.Time `db:"transaction_date"`
	TotalAmount     float64   `db:"total_amount"`
	Items           []byte    `db:"items"`
}

func (r *TransactionRepo) ListByRange(ctx context.Context, restaurantID string, start, end time.Time) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, restaurant_id, transaction_date, total_amount, items
		FROM transactions
		WHERE restaurant_id = $1 AND transaction_date >= $2 AND transaction_date < $3
		ORDER BY transaction_date`

	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, query, restaurantID, start, end); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		tx := models.Transaction{
			ID:              row.ID,
			RestaurantID:    row.RestaurantID,
			TransactionDate: row.TransactionDate,
			TotalAmount:     row.TotalAmount,
		}
		if len(row.Items) > 0 {
			if err := json.Unmarshal(row.Items, &tx.Items); err != nil {
				return nil, fmt.Errorf("failed to decode items for transaction %s: %w", row.ID, err)
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *TransactionRepo) CountByRange(ctx context.Context, restaurantID string, start, end time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM transactions
		WHERE restaurant_id = $1 AND transaction_date >= $2 AND transaction_date < $3`,
		restaurantID, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// InsertBatch 1トランザクションで挿入し、既存IDはスキップする
func (r *TransactionRepo) InsertBatch(ctx context.Context, txs []models.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dbtx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PreparexContext(ctx, `
		INSERT INTO transactions (id, restaurant_id, transaction_date, total_amount, items)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		items, err := json.Marshal(tx.Items)
		if err != nil {
			return 0, fmt.Errorf("failed to encode items: %w", err)
		}
		res, err := stmt.ExecContext(ctx, tx.ID, tx.RestaurantID, tx.TransactionDate, tx.TotalAmount, items)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}
