package services

import (
	"context"
	"time"

	"mfgcore/server/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Allocation - выбранное количество из конкретного лота
type Allocation struct {
	StagingID      uint            `json:"staging_id"`
	LotID          uint            `json:"lot_id"`
	LotNumber      string          `json:"lot_number"`
	IngredientID   string          `json:"ingredient_id"`
	QtyOz          decimal.Decimal `json:"qty_oz"`
	ExpirationDate time.Time       `json:"expiration_date"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
}

// SelectionResult - итог FEFO-подбора, уже записанный в черновик сессии
type SelectionResult struct {
	SessionToken string        `json:"session_token"`
	LotsTouched  int           `json:"lots_touched"`
	Allocations  []Allocation  `json:"allocations"`
	Requirements []Requirement `json:"requirements"`
}

// FEFOService подбирает лоты сырья по принципу First-Expired-First-Out
type FEFOService struct {
	db      *gorm.DB
	staging *StagingService
	now     func() time.Time
}

// NewFEFOService создает новый экземпляр FEFOService
func NewFEFOService(db *gorm.DB) *FEFOService {
	return &FEFOService{db: db, staging: NewStagingService(db), now: utcNow}
}

// SetClock подменяет источник текущего времени
func (s *FEFOService) SetClock(now func() time.Time) {
	s.now = now
}

// SetStagingService устанавливает сервис черновиков, через который чистится сессия после ошибки
func (s *FEFOService) SetStagingService(ss *StagingService) {
	s.staging = ss
}

// SelectFEFO подбирает лоты под рецептуру и количество и записывает их в черновик сессии.
// Прежнее содержимое сессии заменяется. При любой ошибке в сессии не остается строк.
func (s *FEFOService) SelectFEFO(ctx context.Context, recipeID uint, units int, sessionToken string) (*SelectionResult, error) {
	if sessionToken == "" {
		return nil, newEngineError(KindStagingMismatch, "не указан токен сессии")
	}

	today := startOfDay(s.now())
	result := &SelectionResult{SessionToken: sessionToken}

	err := runTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("session_token = ?", sessionToken).Delete(&models.StagedAllocation{}).Error; err != nil {
			return storageError("очистка сессии", err)
		}

		reqs, _, err := resolveRequirement(tx, recipeID, units)
		if err != nil {
			return err
		}
		result.Requirements = reqs

		for _, req := range reqs {
			allocations, err := s.allocateIngredient(tx, sessionToken, req, today)
			if err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, allocations...)
		}
		return nil
	})

	fefoSelectionsTotal.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		// Откат вернул бы прежние строки сессии, поэтому сессия чистится явно
		if discardErr := s.staging.StageDiscard(context.WithoutCancel(ctx), sessionToken); discardErr != nil {
			log.Error().Err(discardErr).Str("session_token", sessionToken).Msg("❌ не удалось очистить сессию после ошибки подбора")
		}
		log.Warn().Err(err).
			Str("session_token", sessionToken).
			Uint("recipe_id", recipeID).
			Int("units", units).
			Msg("⚠️ FEFO-подбор не выполнен")
		return nil, err
	}

	result.LotsTouched = len(result.Allocations)
	fefoLotsTouched.Observe(float64(result.LotsTouched))

	log.Info().
		Str("session_token", sessionToken).
		Uint("recipe_id", recipeID).
		Int("units", units).
		Int("lots_touched", result.LotsTouched).
		Msg("✅ FEFO-подбор записан в черновик")
	return result, nil
}

// allocateIngredient жадно берет min(остаток, on_hand) из лотов в порядке срока годности
func (s *FEFOService) allocateIngredient(tx *gorm.DB, sessionToken string, req Requirement, today time.Time) ([]Allocation, error) {
	var lots []models.IngredientLot
	if err := tx.Where("ingredient_id = ? AND on_hand_oz > 0 AND expiration_date >= ?", req.IngredientID, today).
		Order("expiration_date ASC, id ASC").
		Find(&lots).Error; err != nil {
		return nil, storageError("выборка лотов", err)
	}

	if len(lots) == 0 {
		return nil, s.noAvailableLots(tx, req, today)
	}

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.OnHandOz)
	}
	if available.LessThan(req.TotalOz) {
		shortage := req.TotalOz.Sub(available)
		ee := newEngineError(KindInsufficientStock,
			"недостаточно остатков для ингредиента %s (требуется: %s oz, доступно: %s oz в %d лотах, недостает: %s oz)",
			req.IngredientName, req.TotalOz, available, len(lots), shortage)
		ee.IngredientID = req.IngredientID
		ee.Shortage = shortage
		ee.EligibleLots = len(lots)
		return nil, ee
	}

	remaining := req.TotalOz
	allocations := make([]Allocation, 0, len(lots))
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lot.OnHandOz)

		row := models.StagedAllocation{
			SessionToken:    sessionToken,
			IngredientLotID: lot.ID,
			QtyOz:           take,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, storageError("запись черновика", err)
		}

		allocations = append(allocations, Allocation{
			StagingID:      row.ID,
			LotID:          lot.ID,
			LotNumber:      lot.LotNumber,
			IngredientID:   lot.IngredientID,
			QtyOz:          take,
			ExpirationDate: lot.ExpirationDate,
			UnitCost:       lot.UnitCost,
		})
		remaining = remaining.Sub(take)
	}

	return allocations, nil
}

// noAvailableLots собирает диагностику: нет лотов вообще, все пустые или все просрочены
func (s *FEFOService) noAvailableLots(tx *gorm.DB, req Requirement, today time.Time) error {
	var total, withStock, expired int64
	base := func() *gorm.DB {
		return tx.Model(&models.IngredientLot{}).Where("ingredient_id = ?", req.IngredientID)
	}
	if err := base().Count(&total).Error; err != nil {
		return storageError("подсчет лотов", err)
	}
	if err := base().Where("on_hand_oz > 0").Count(&withStock).Error; err != nil {
		return storageError("подсчет лотов", err)
	}
	if err := base().Where("expiration_date < ?", today).Count(&expired).Error; err != nil {
		return storageError("подсчет лотов", err)
	}

	ee := newEngineError(KindNoAvailableLots,
		"нет доступных лотов для ингредиента %s (%s): всего лотов %d, с остатком %d, просрочено %d",
		req.IngredientName, req.IngredientID, total, withStock, expired)
	ee.IngredientID = req.IngredientID
	ee.Shortage = req.TotalOz
	return ee
}
