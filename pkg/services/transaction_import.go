package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// 取引日時として受け付けるフォーマット
var importDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
	"1/2/2006 15:04",
	"1/2/2006",
}

// TransactionImportService POSエクスポート（.xlsx / .csv）の取り込み
type TransactionImportService struct {
	restaurants  repository.RestaurantRepository
	transactions repository.TransactionRepository
}

// NewTransactionImportService 新しいインポートサービス
func NewTransactionImportService(restaurants repository.RestaurantRepository, transactions repository.TransactionRepository) *TransactionImportService {
	return &TransactionImportService{restaurants: restaurants, transactions: transactions}
}

// Import ファイルを解析して取引を保存する
func (s *TransactionImportService) Import(ctx context.Context, restaurantID, fileName string, file io.Reader) (*models.ImportResult, error) {
	r, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	rows, err := ReadRows(fileName, file)
	if err != nil {
		return nil, err
	}
	txs, result, err := ParseTransactionRows(rows, r.ID, r.Location())
	if err != nil {
		return nil, err
	}
	if len(txs) > 0 {
		n, err := s.transactions.InsertBatch(ctx, txs)
		if err != nil {
			return nil, fmt.Errorf("取引の保存に失敗: %w", err)
		}
		result.Imported = n
	}
	log.Info().Str("restaurant_id", r.ID).Str("file", fileName).Int("rows", result.Rows).
		Int("imported", result.Imported).Int("skipped", result.Skipped).Msg("📥 取引データを取り込みました")
	return result, nil
}

// ReadRows 拡張子に応じてExcelまたはCSVの行を読み込む
func ReadRows(fileName string, file io.Reader) ([][]string, error) {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		f, err := excelize.OpenReader(file)
		if err != nil {
			return nil, fmt.Errorf("%w: Excelファイルの読み込みに失敗: %v", models.ErrInvalidInput, err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("%w: Excelシートの行取得に失敗: %v", models.ErrInvalidInput, err)
		}
		return rows, nil
	case strings.HasSuffix(lower, ".csv"):
		r := csv.NewReader(file)
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: CSVファイルの解析に失敗: %v", models.ErrInvalidInput, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: サポートされていないファイル形式です (.xlsx または .csv)", models.ErrInvalidInput)
}

// findIndex ヘッダーから候補名に一致する列を探す（大文字小文字は区別しない）
func findIndex(header []string, names ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == strings.ToLower(n) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseImportDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range importDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseAmount(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "", "¥", "").Replace(s)
	return strconv.ParseFloat(s, 64)
}

// ParseTransactionRows ヘッダー付きの行を取引に変換する
// transaction_id 列がある場合は同じIDの行を1取引の明細としてまとめる
func ParseTransactionRows(rows [][]string, restaurantID string, loc *time.Location) ([]models.Transaction, *models.ImportResult, error) {
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("%w: ヘッダー行と少なくとも1行のデータが必要です", models.ErrInvalidInput)
	}
	header := rows[0]
	dateIdx := findIndex(header, "transaction_date", "date", "datetime", "日時", "日付")
	totalIdx := findIndex(header, "total", "total_amount", "amount", "金額", "合計")
	itemIdx := findIndex(header, "item", "item_name", "product", "商品名")
	categoryIdx := findIndex(header, "category", "item_category", "カテゴリ")
	qtyIdx := findIndex(header, "quantity", "qty", "数量")
	idIdx := findIndex(header, "transaction_id", "order_id", "取引ID")

	var missing []string
	if dateIdx == -1 {
		missing = append(missing, "date")
	}
	if totalIdx == -1 {
		missing = append(missing, "total")
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: 必要な列が見つかりません: %s (header: %v)",
			models.ErrInvalidInput, strings.Join(missing, ", "), header)
	}

	result := &models.ImportResult{Rows: len(rows) - 1}
	byID := make(map[string]int)
	txs := make([]models.Transaction, 0, len(rows)-1)

	for _, row := range rows[1:] {
		t, ok := parseImportDate(cell(row, dateIdx), loc)
		if !ok {
			result.Skipped++
			continue
		}
		total, err := parseAmount(cell(row, totalIdx))
		if err != nil || total < 0 {
			result.Skipped++
			continue
		}

		var item *models.TransactionItem
		if name := cell(row, itemIdx); name != "" {
			qty := 1.0
			if q, err := strconv.ParseFloat(cell(row, qtyIdx), 64); err == nil && q > 0 {
				qty = q
			}
			item = &models.TransactionItem{Name: name, Category: cell(row, categoryIdx), Quantity: qty}
		}

		id := cell(row, idIdx)
		if id != "" {
			if i, ok := byID[id]; ok {
				if item != nil {
					txs[i].Items = append(txs[i].Items, *item)
				}
				if txs[i].TotalAmount == 0 {
					txs[i].TotalAmount = total
				}
				continue
			}
		} else {
			id = uuid.NewString()
		}

		tx := models.Transaction{ID: id, RestaurantID: restaurantID, TransactionDate: t, TotalAmount: total}
		if item != nil {
			tx.Items = []models.TransactionItem{*item}
		}
		byID[id] = len(txs)
		txs = append(txs, tx)
	}
	result.Transactions = len(txs)
	return txs, result, nil
}
