package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mfgcore/server/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultExpiryWarningDays = 7

// LotReceipt - приемка партии сырья от поставщика
type LotReceipt struct {
	IngredientID    string          `json:"ingredient_id"`
	SupplierID      string          `json:"supplier_id"`
	SupplierBatchID string          `json:"supplier_batch_id"`
	LotNumber       string          `json:"lot_number"` // пусто - собирается из ингредиента, поставщика и партии
	QuantityOz      decimal.Decimal `json:"quantity_oz"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	ExpirationDate  time.Time       `json:"expiration_date"`
}

// LotService управляет приемкой лотов сырья и отчетами по срокам годности
type LotService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLotService создает новый экземпляр LotService
func NewLotService(db *gorm.DB) *LotService {
	return &LotService{db: db, now: utcNow}
}

// SetClock подменяет источник текущего времени
func (s *LotService) SetClock(now func() time.Time) {
	s.now = now
}

// ValidateLotReceipt выполняет предварительную валидацию приемки
func ValidateLotReceipt(db *gorm.DB, r LotReceipt) error {
	if r.IngredientID == "" {
		return newEngineError(KindInvalidQuantity, "отсутствует ingredient_id")
	}
	if r.SupplierID == "" || r.SupplierBatchID == "" {
		return newEngineError(KindInvalidQuantity, "отсутствует supplier_id или supplier_batch_id")
	}
	if !r.QuantityOz.IsPositive() {
		return newEngineError(KindInvalidQuantity, "quantity_oz должен быть > 0, получено: %s", r.QuantityOz)
	}
	if r.UnitCost.IsNegative() {
		return newEngineError(KindInvalidQuantity, "unit_cost не может быть отрицательным, получено: %s", r.UnitCost)
	}
	if r.ExpirationDate.IsZero() {
		return newEngineError(KindInvalidQuantity, "не указан срок годности")
	}

	var ingredient models.Ingredient
	if err := db.First(&ingredient, "id = ?", r.IngredientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ee := newEngineError(KindNotFound, "ингредиент %s не найден", r.IngredientID)
			ee.IngredientID = r.IngredientID
			return ee
		}
		return storageError("загрузка ингредиента", err)
	}
	return nil
}

func (r LotReceipt) toModel() models.IngredientLot {
	return models.IngredientLot{
		IngredientID:    r.IngredientID,
		SupplierID:      r.SupplierID,
		SupplierBatchID: r.SupplierBatchID,
		LotNumber:       r.LotNumber,
		QuantityOz:      r.QuantityOz,
		OnHandOz:        r.QuantityOz,
		UnitCost:        r.UnitCost,
		ExpirationDate:  startOfDay(r.ExpirationDate),
	}
}

// ReceiveLot принимает лот: остаток равен принятому количеству
func (s *LotService) ReceiveLot(ctx context.Context, r LotReceipt) (*models.IngredientLot, error) {
	db := s.db.WithContext(ctx)
	if err := ValidateLotReceipt(db, r); err != nil {
		return nil, err
	}

	lot := r.toModel()
	if err := db.Create(&lot).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, &EngineError{Kind: KindLotNumberConflict, Detail: "лот " + lot.LotNumber + " уже принят", Err: err}
		}
		return nil, storageError("приемка лота", err)
	}

	log.Info().Str("lot_number", lot.LotNumber).Str("quantity_oz", lot.QuantityOz.String()).Msg("📦 Лот принят")
	return &lot, nil
}

// ReceiveLots принимает пачку лотов одной транзакцией.
// Невалидные строки пропускаются и возвращаются списком ошибок.
func (s *LotService) ReceiveLots(ctx context.Context, receipts []LotReceipt) ([]models.IngredientLot, []string, error) {
	db := s.db.WithContext(ctx)
	valid := make([]models.IngredientLot, 0, len(receipts))
	rowErrors := make([]string, 0)

	for i, r := range receipts {
		if err := ValidateLotReceipt(db, r); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Строка %d: %v", i+1, err))
			continue
		}
		valid = append(valid, r.toModel())
	}

	if len(rowErrors) > 0 {
		log.Warn().Int("errors", len(rowErrors)).Int("rows", len(receipts)).Msg("⚠️ Найдены ошибки валидации приемки")
	}
	if len(valid) == 0 {
		return nil, rowErrors, newEngineError(KindInvalidQuantity, "нет валидных строк для приемки")
	}

	err := runTx(ctx, s.db, func(tx *gorm.DB) error {
		for i := range valid {
			if err := tx.Create(&valid[i]).Error; err != nil {
				if isUniqueConstraintError(err) {
					return &EngineError{Kind: KindLotNumberConflict, Detail: "лот " + valid[i].LotNumber + " уже принят", Err: err}
				}
				return storageError("приемка лота", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, rowErrors, err
	}
	return valid, rowErrors, nil
}

// ListLots возвращает лоты ингредиента в FEFO-порядке
func (s *LotService) ListLots(ctx context.Context, ingredientID string, includeExpired bool) ([]models.IngredientLot, error) {
	query := s.db.WithContext(ctx).Where("ingredient_id = ?", ingredientID)
	if !includeExpired {
		query = query.Where("on_hand_oz > 0 AND expiration_date >= ?", startOfDay(s.now()))
	}
	var lots []models.IngredientLot
	if err := query.Order("expiration_date ASC, id ASC").Find(&lots).Error; err != nil {
		return nil, storageError("чтение лотов", err)
	}
	return lots, nil
}

// ExpiringLots возвращает лоты с остатком, срок которых истекает в ближайшие days дней
func (s *LotService) ExpiringLots(ctx context.Context, days int) ([]models.IngredientLot, error) {
	if days < 0 {
		return nil, newEngineError(KindInvalidQuantity, "окно должно быть неотрицательным, получено %d", days)
	}
	today := startOfDay(s.now())
	var lots []models.IngredientLot
	if err := s.db.WithContext(ctx).
		Preload("Ingredient").
		Where("on_hand_oz > 0 AND expiration_date >= ? AND expiration_date <= ?", today, today.AddDate(0, 0, days)).
		Order("expiration_date ASC, id ASC").
		Find(&lots).Error; err != nil {
		return nil, storageError("чтение истекающих лотов", err)
	}
	return lots, nil
}

// MaterialsOf раскрывает состав составного ингредиента. Для простого ингредиента список пуст.
func (s *LotService) MaterialsOf(ctx context.Context, ingredientID string) ([]models.Ingredient, error) {
	var materials []models.Ingredient
	if err := s.db.WithContext(ctx).
		Table("ingredients AS i").
		Select("i.*").
		Joins("JOIN ingredient_materials im ON im.material_ingredient_id = i.id").
		Where("im.parent_ingredient_id = ?", ingredientID).
		Order("i.name ASC").
		Scan(&materials).Error; err != nil {
		return nil, storageError("чтение состава ингредиента", err)
	}
	return materials, nil
}
