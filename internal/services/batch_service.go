package services

import (
	"context"
	"errors"
	"time"

	"mfgcore/server/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultBatchListLimit = 20

// CommitRequest - параметры коммита партии по сессии
type CommitRequest struct {
	SessionToken   string
	RecipeID       uint
	Units          int
	ManufacturerID string
}

// CommitResult - созданная партия
type CommitResult struct {
	BatchID   uint            `json:"batch_id"`
	LotNumber string          `json:"lot_number"`
	BatchCost decimal.Decimal `json:"batch_cost"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	CreatedAt time.Time       `json:"created_at"`
	Consumed  []ConsumedLot   `json:"consumed"`
}

// BatchService превращает черновик списания в партию готовой продукции
type BatchService struct {
	db         *gorm.DB
	lotNumbers LotNumberGenerator
	publishers []EventPublisher
	now        func() time.Time
}

// NewBatchService создает новый экземпляр BatchService
func NewBatchService(db *gorm.DB) *BatchService {
	return &BatchService{db: db, lotNumbers: SequenceLotNumbers{}, now: utcNow}
}

// SetLotNumberGenerator устанавливает генератор номеров лотов
func (s *BatchService) SetLotNumberGenerator(g LotNumberGenerator) {
	s.lotNumbers = g
}

// AddPublisher подключает получателя событий о выпуске партий
func (s *BatchService) AddPublisher(p EventPublisher) {
	s.publishers = append(s.publishers, p)
}

// SetClock подменяет источник текущего времени
func (s *BatchService) SetClock(now func() time.Time) {
	s.now = now
}

// CommitBatch атомарно списывает черновик сессии и создает партию.
// При ошибке черновик остается нетронутым: вызывающий решает, повторить или очистить.
func (s *BatchService) CommitBatch(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.SessionToken == "" {
		return nil, newEngineError(KindStagingMismatch, "не указан токен сессии; списание всего черновика выполняет CommitLegacyBatch")
	}
	return s.commit(ctx, "session", req, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("session_token = ?", req.SessionToken)
	})
}

// CommitLegacyBatch списывает ВСЕ строки черновика, независимо от сессии.
// Небезопасно при параллельных сессиях: сохранено для совместимости со старыми клиентами.
func (s *BatchService) CommitLegacyBatch(ctx context.Context, recipeID uint, units int, manufacturerID string) (*CommitResult, error) {
	req := CommitRequest{RecipeID: recipeID, Units: units, ManufacturerID: manufacturerID}
	return s.commit(ctx, "legacy", req, func(tx *gorm.DB) *gorm.DB {
		return tx
	})
}

func (s *BatchService) commit(ctx context.Context, mode string, req CommitRequest, scope func(*gorm.DB) *gorm.DB) (*CommitResult, error) {
	var (
		result *CommitResult
		event  BatchCommittedEvent
	)

	err := runTx(ctx, s.db, func(tx *gorm.DB) error {
		reqs, plan, err := resolveRequirement(tx, req.RecipeID, req.Units)
		if err != nil {
			return err
		}
		if plan.ProductType == nil {
			return newEngineError(KindInvalidRecipe, "у рецептуры %d нет продукта", req.RecipeID)
		}
		if plan.ProductType.ManufacturerID != req.ManufacturerID {
			return newEngineError(KindInvalidRecipe, "рецептура %d не принадлежит производителю %q", req.RecipeID, req.ManufacturerID)
		}
		if std := plan.ProductType.StandardBatchUnits; std > 0 && req.Units%std != 0 {
			return newEngineError(KindInvalidQuantity, "выпуск %d ед. не кратен стандартной партии %d ед.", req.Units, std)
		}

		var staged []models.StagedAllocation
		if err := scope(tx.Preload("IngredientLot")).Order("id ASC").Find(&staged).Error; err != nil {
			return storageError("чтение черновика", err)
		}
		if err := validateStaging(staged, reqs); err != nil {
			return err
		}
		if err := rejectExpired(staged, startOfDay(s.now())); err != nil {
			return err
		}

		lotNumber, err := s.lotNumbers.NextLotNumber(ctx, tx, *plan.ProductType, req.ManufacturerID)
		if err != nil {
			return storageError("генерация номера лота", err)
		}
		var taken int64
		if err := tx.Model(&models.ProductBatch{}).Where("product_lot_number = ?", lotNumber).Count(&taken).Error; err != nil {
			return storageError("проверка номера лота", err)
		}
		if taken > 0 {
			return newEngineError(KindLotNumberConflict, "номер лота %s уже занят", lotNumber)
		}

		if err := decrementLots(tx, staged); err != nil {
			return err
		}

		batchCost := decimal.Zero
		consumed := make([]ConsumedLot, 0, len(staged))
		for _, row := range staged {
			batchCost = batchCost.Add(row.QtyOz.Mul(row.IngredientLot.UnitCost))
			consumed = append(consumed, ConsumedLot{
				LotID:        row.IngredientLotID,
				LotNumber:    row.IngredientLot.LotNumber,
				IngredientID: row.IngredientLot.IngredientID,
				QtyOz:        row.QtyOz,
				UnitCost:     row.IngredientLot.UnitCost,
			})
		}
		batchCost = batchCost.Round(4)
		unitCost := batchCost.Div(decimal.NewFromInt(int64(req.Units))).Round(4)

		batch := models.ProductBatch{
			ProductTypeID:    plan.ProductTypeID,
			RecipePlanID:     plan.ID,
			ManufacturerID:   req.ManufacturerID,
			ProductLotNumber: lotNumber,
			ProducedUnits:    req.Units,
			BatchCost:        batchCost,
			UnitCost:         unitCost,
			CreatedAt:        s.now(),
		}
		if err := tx.Create(&batch).Error; err != nil {
			if isUniqueConstraintError(err) {
				return &EngineError{Kind: KindLotNumberConflict, Detail: "номер лота " + lotNumber + " уже занят", Err: err}
			}
			return storageError("создание партии", err)
		}

		stagingIDs := make([]uint, 0, len(staged))
		for _, row := range staged {
			link := models.ConsumptionLink{
				ProductBatchID:  batch.ID,
				IngredientLotID: row.IngredientLotID,
				QtyOz:           row.QtyOz,
			}
			if err := tx.Create(&link).Error; err != nil {
				return storageError("запись расхода лота", err)
			}
			stagingIDs = append(stagingIDs, row.ID)
		}

		if err := tx.Where("id IN ?", stagingIDs).Delete(&models.StagedAllocation{}).Error; err != nil {
			return storageError("очистка черновика", err)
		}

		result = &CommitResult{
			BatchID:   batch.ID,
			LotNumber: lotNumber,
			BatchCost: batchCost,
			UnitCost:  unitCost,
			CreatedAt: batch.CreatedAt,
			Consumed:  consumed,
		}
		event = BatchCommittedEvent{
			Type:           EventBatchCommitted,
			BatchID:        batch.ID,
			LotNumber:      lotNumber,
			ProductTypeID:  plan.ProductTypeID,
			RecipeID:       plan.ID,
			ManufacturerID: req.ManufacturerID,
			Units:          req.Units,
			BatchCost:      batchCost,
			UnitCost:       unitCost,
			CreatedAt:      batch.CreatedAt,
			Lots:           consumed,
		}
		return nil
	})

	batchCommitsTotal.WithLabelValues(mode, resultLabel(err)).Inc()

	if err != nil {
		log.Warn().Err(err).
			Str("mode", mode).
			Str("session_token", req.SessionToken).
			Uint("recipe_id", req.RecipeID).
			Int("units", req.Units).
			Msg("⚠️ Коммит партии не выполнен, черновик сохранен")
		return nil, err
	}

	log.Info().
		Str("mode", mode).
		Str("lot_number", result.LotNumber).
		Uint("batch_id", result.BatchID).
		Str("batch_cost", result.BatchCost.String()).
		Str("unit_cost", result.UnitCost.String()).
		Msg("✅ Партия выпущена")

	s.publish(ctx, event)
	return result, nil
}

// validateStaging сверяет суммы черновика с потребностью рецептуры: равенство должно быть точным
func validateStaging(staged []models.StagedAllocation, reqs []Requirement) error {
	if len(staged) == 0 {
		return newEngineError(KindStagingMismatch, "черновик пуст")
	}

	sums := make(map[string]decimal.Decimal)
	for _, row := range staged {
		if row.IngredientLot == nil {
			ee := newEngineError(KindConcurrentStockChange, "лот %d из черновика больше не существует", row.IngredientLotID)
			ee.LotID = row.IngredientLotID
			return ee
		}
		id := row.IngredientLot.IngredientID
		sums[id] = sums[id].Add(row.QtyOz)
	}

	for _, req := range reqs {
		got := sums[req.IngredientID]
		if !got.Equal(req.TotalOz) {
			ee := newEngineError(KindStagingMismatch,
				"ингредиент %s: в черновике %s oz, по рецептуре требуется %s oz",
				req.IngredientName, got, req.TotalOz)
			ee.IngredientID = req.IngredientID
			return ee
		}
		delete(sums, req.IngredientID)
	}
	for id := range sums {
		ee := newEngineError(KindStagingMismatch, "ингредиент %s не входит в рецептуру", id)
		ee.IngredientID = id
		return ee
	}
	return nil
}

// rejectExpired не дает списать лот, срок которого истек до today.
// Ручное добавление в черновик срок не проверяет.
func rejectExpired(staged []models.StagedAllocation, today time.Time) error {
	for _, row := range staged {
		if row.IngredientLot.ExpirationDate.Before(today) {
			ee := newEngineError(KindStagingMismatch, "лот %s просрочен (срок %s)",
				row.IngredientLot.LotNumber, row.IngredientLot.ExpirationDate.Format("2006-01-02"))
			ee.LotID = row.IngredientLotID
			ee.IngredientID = row.IngredientLot.IngredientID
			return ee
		}
	}
	return nil
}

// decrementLots списывает остатки условным UPDATE: ноль затронутых строк означает, что остаток изменился
func decrementLots(tx *gorm.DB, staged []models.StagedAllocation) error {
	order := make([]uint, 0, len(staged))
	perLot := make(map[uint]decimal.Decimal)
	for _, row := range staged {
		if _, ok := perLot[row.IngredientLotID]; !ok {
			order = append(order, row.IngredientLotID)
		}
		perLot[row.IngredientLotID] = perLot[row.IngredientLotID].Add(row.QtyOz)
	}

	for _, lotID := range order {
		qty := perLot[lotID]
		res := tx.Model(&models.IngredientLot{}).
			Where("id = ? AND on_hand_oz >= ?", lotID, qty).
			Update("on_hand_oz", gorm.Expr("on_hand_oz - ?", qty))
		if res.Error != nil {
			return storageError("списание остатка", res.Error)
		}
		if res.RowsAffected == 0 {
			var lot models.IngredientLot
			available := "0"
			if err := tx.First(&lot, "id = ?", lotID).Error; err == nil {
				available = lot.OnHandOz.String()
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return storageError("чтение лота", err)
			}
			ee := newEngineError(KindConcurrentStockChange,
				"лот %d: в черновике %s oz, доступно %s oz", lotID, qty, available)
			ee.LotID = lotID
			return ee
		}
	}
	return nil
}

func (s *BatchService) publish(ctx context.Context, ev BatchCommittedEvent) {
	for _, p := range s.publishers {
		if err := p.PublishBatchCommitted(ctx, ev); err != nil {
			log.Error().Err(err).Str("lot_number", ev.LotNumber).Msg("❌ не удалось отправить событие о партии")
		}
	}
}

// ListBatches возвращает последние партии производителя вместе с себестоимостью
func (s *BatchService) ListBatches(ctx context.Context, manufacturerID string, limit int) ([]models.ProductBatch, error) {
	if limit <= 0 {
		limit = defaultBatchListLimit
	}
	var batches []models.ProductBatch
	if err := s.db.WithContext(ctx).
		Preload("ProductType").
		Where("manufacturer_id = ?", manufacturerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, storageError("чтение партий", err)
	}
	return batches, nil
}

// GetBatch возвращает партию с расходом по лотам
func (s *BatchService) GetBatch(ctx context.Context, batchID uint) (*models.ProductBatch, error) {
	var batch models.ProductBatch
	if err := s.db.WithContext(ctx).
		Preload("ProductType").
		Preload("Consumption").
		First(&batch, "id = ?", batchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newEngineError(KindNotFound, "партия %d не найдена", batchID)
		}
		return nil, storageError("чтение партии", err)
	}
	return &batch, nil
}

// DefaultLowStockThreshold - порог отчета о заканчивающейся продукции, ед.
const DefaultLowStockThreshold = 100

// InventoryRow - выпуск продукта производителя: сколько единиц и в скольких партиях
type InventoryRow struct {
	ProductTypeID uint   `json:"product_type_id"`
	ProductCode   string `json:"product_code"`
	ProductName   string `json:"product_name"`
	TotalUnits    int    `json:"total_units"`
	BatchCount    int    `json:"batch_count"`
}

func (s *BatchService) inventoryQuery(ctx context.Context, manufacturerID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("product_types AS pt").
		Select(`pt.id AS product_type_id,
			pt.product_code AS product_code,
			pt.name AS product_name,
			COALESCE(SUM(pb.produced_units), 0) AS total_units,
			COUNT(pb.id) AS batch_count`).
		Joins("LEFT JOIN product_batches pb ON pb.product_type_id = pt.id AND pb.manufacturer_id = pt.manufacturer_id").
		Where("pt.manufacturer_id = ?", manufacturerID).
		Group("pt.id, pt.product_code, pt.name")
}

// InventoryReport возвращает выпуск по продуктам производителя. Продукты без партий не попадают.
func (s *BatchService) InventoryReport(ctx context.Context, manufacturerID string) ([]InventoryRow, error) {
	var rows []InventoryRow
	if err := s.inventoryQuery(ctx, manufacturerID).
		Having("COALESCE(SUM(pb.produced_units), 0) > 0").
		Order("pt.name ASC, pt.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, storageError("отчет о выпуске", err)
	}
	return rows, nil
}

// LowStockReport - продукты, выпущенных единиц которых меньше threshold (по умолчанию 100).
// Сначала самые малые остатки.
func (s *BatchService) LowStockReport(ctx context.Context, manufacturerID string, threshold int) ([]InventoryRow, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	var rows []InventoryRow
	if err := s.inventoryQuery(ctx, manufacturerID).
		Having("COALESCE(SUM(pb.produced_units), 0) > 0 AND COALESCE(SUM(pb.produced_units), 0) < ?", threshold).
		Order("total_units ASC, pt.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, storageError("отчет о заканчивающейся продукции", err)
	}
	return rows, nil
}
