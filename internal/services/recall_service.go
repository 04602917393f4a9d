package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultRecallWindowDays = 20

// RecallQuery - цель трассировки: ровно одно из IngredientID / LotNumber
type RecallQuery struct {
	IngredientID string
	LotNumber    string
	WindowDays   *int // nil - окно по умолчанию
}

// RecallRow - одна пара (партия продукции, израсходованный лот)
type RecallRow struct {
	ProductBatchID      uint            `json:"product_batch_id"`
	ProductLotNumber    string          `json:"product_lot_number"`
	ProductName         string          `json:"product_name"`
	ManufacturerID      string          `json:"manufacturer_id"`
	ManufacturerName    string          `json:"manufacturer_name"`
	ProducedUnits       int             `json:"produced_units"`
	CreatedAt           time.Time       `json:"created_at"`
	IngredientLotID     uint            `json:"ingredient_lot_id"`
	IngredientLotNumber string          `json:"ingredient_lot_number"`
	IngredientID        string          `json:"ingredient_id"`
	IngredientName      string          `json:"ingredient_name"`
	ConsumedQtyOz       decimal.Decimal `json:"consumed_qty_oz"`
}

// RecallSummary - сводка по затронутым партиям
type RecallSummary struct {
	Rows            int `json:"rows"`
	AffectedBatches int `json:"affected_batches"`
	TotalUnits      int `json:"total_units"`
}

// RecallService находит партии продукции, в которые ушло сырье из лота или ингредиента
type RecallService struct {
	db            *gorm.DB
	defaultWindow int
	now           func() time.Time
}

// NewRecallService создает новый экземпляр RecallService
func NewRecallService(db *gorm.DB) *RecallService {
	return &RecallService{db: db, defaultWindow: DefaultRecallWindowDays, now: utcNow}
}

// SetDefaultWindow задает окно в днях для запросов без явного окна
func (s *RecallService) SetDefaultWindow(days int) {
	if days >= 0 {
		s.defaultWindow = days
	}
}

// SetClock подменяет источник текущего времени
func (s *RecallService) SetClock(now func() time.Time) {
	s.now = now
}

// TraceRecall возвращает партии, созданные не раньше начала (сегодня - окно), с расходом целевого сырья.
// Пустой результат - не ошибка.
func (s *RecallService) TraceRecall(ctx context.Context, q RecallQuery) ([]RecallRow, error) {
	hasIngredient := q.IngredientID != ""
	hasLot := q.LotNumber != ""
	if hasIngredient == hasLot {
		return nil, newEngineError(KindInvalidTraceTarget, "нужно указать ровно одно из ingredient_id и lot_number")
	}

	window := s.defaultWindow
	if q.WindowDays != nil {
		window = *q.WindowDays
	}
	if window < 0 {
		return nil, newEngineError(KindInvalidTraceTarget, "окно должно быть неотрицательным, получено %d", window)
	}
	cutoff := startOfDay(s.now()).AddDate(0, 0, -window)

	query := s.db.WithContext(ctx).
		Table("product_batch_consumption AS pbc").
		Select(`pb.id AS product_batch_id,
			pb.product_lot_number AS product_lot_number,
			COALESCE(pt.name, '') AS product_name,
			pb.manufacturer_id AS manufacturer_id,
			COALESCE(m.name, '') AS manufacturer_name,
			pb.produced_units AS produced_units,
			pb.created_at AS created_at,
			ib.id AS ingredient_lot_id,
			ib.lot_number AS ingredient_lot_number,
			ib.ingredient_id AS ingredient_id,
			COALESCE(i.name, '') AS ingredient_name,
			SUM(pbc.qty_oz) AS consumed_qty_oz`).
		Joins("JOIN product_batches pb ON pb.id = pbc.product_batch_id").
		Joins("JOIN ingredient_batches ib ON ib.id = pbc.ingredient_batch_id").
		Joins("LEFT JOIN product_types pt ON pt.id = pb.product_type_id").
		Joins("LEFT JOIN manufacturers m ON m.id = pb.manufacturer_id").
		Joins("LEFT JOIN ingredients i ON i.id = ib.ingredient_id").
		Where("pb.created_at >= ?", cutoff)

	target := "lot"
	if hasIngredient {
		target = "ingredient"
		query = query.Where("ib.ingredient_id = ?", q.IngredientID)
	} else {
		query = query.Where("ib.lot_number = ?", q.LotNumber)
	}

	var rows []RecallRow
	if err := query.
		Group("pb.id, pb.product_lot_number, pt.name, pb.manufacturer_id, m.name, pb.produced_units, pb.created_at, ib.id, ib.lot_number, ib.ingredient_id, i.name").
		Order("pb.created_at DESC, pb.id DESC, ib.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, storageError("трассировка отзыва", err)
	}

	recallTracesTotal.WithLabelValues(target).Inc()
	log.Info().
		Str("ingredient_id", q.IngredientID).
		Str("lot_number", q.LotNumber).
		Int("window_days", window).
		Int("rows", len(rows)).
		Msg("🔎 Трассировка отзыва выполнена")
	return rows, nil
}

// SummarizeRecall считает уникальные партии и суммарный выпуск
func SummarizeRecall(rows []RecallRow) RecallSummary {
	summary := RecallSummary{Rows: len(rows)}
	seen := make(map[uint]bool)
	for _, row := range rows {
		if seen[row.ProductBatchID] {
			continue
		}
		seen[row.ProductBatchID] = true
		summary.AffectedBatches++
		summary.TotalUnits += row.ProducedUnits
	}
	return summary
}
