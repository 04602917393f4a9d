package services

import (
	"context"
	"errors"

	"mfgcore/server/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StagingService - черновик списания по сессиям. Доменных проверок почти нет:
// сверка с рецептурой выполняется при коммите партии.
type StagingService struct {
	db *gorm.DB
}

// NewStagingService создает новый экземпляр StagingService
func NewStagingService(db *gorm.DB) *StagingService {
	return &StagingService{db: db}
}

// NewSession выдает новый токен сессии
func (s *StagingService) NewSession() string {
	return uuid.New().String()
}

// StageList возвращает строки черновика сессии вместе с лотами
func (s *StagingService) StageList(ctx context.Context, sessionToken string) ([]models.StagedAllocation, error) {
	var rows []models.StagedAllocation
	if err := s.db.WithContext(ctx).
		Preload("IngredientLot").
		Where("session_token = ?", sessionToken).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, storageError("чтение черновика", err)
	}
	return rows, nil
}

// StageAdd добавляет ручную строку черновика
func (s *StagingService) StageAdd(ctx context.Context, sessionToken string, lotID uint, qtyOz decimal.Decimal) (*models.StagedAllocation, error) {
	if sessionToken == "" {
		return nil, newEngineError(KindStagingMismatch, "не указан токен сессии")
	}
	if !qtyOz.IsPositive() {
		return nil, newEngineError(KindInvalidQuantity, "количество должно быть больше нуля, получено %s", qtyOz)
	}

	db := s.db.WithContext(ctx)
	var lot models.IngredientLot
	if err := db.First(&lot, "id = ?", lotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ee := newEngineError(KindNotFound, "лот %d не найден", lotID)
			ee.LotID = lotID
			return nil, ee
		}
		return nil, storageError("загрузка лота", err)
	}

	row := models.StagedAllocation{
		SessionToken:    sessionToken,
		IngredientLotID: lot.ID,
		QtyOz:           qtyOz,
	}
	if err := db.Create(&row).Error; err != nil {
		return nil, storageError("запись черновика", err)
	}
	row.IngredientLot = &lot
	return &row, nil
}

// StageUpdate меняет количество в строке черновика
func (s *StagingService) StageUpdate(ctx context.Context, sessionToken string, stagingID uint, qtyOz decimal.Decimal) error {
	if !qtyOz.IsPositive() {
		return newEngineError(KindInvalidQuantity, "количество должно быть больше нуля, получено %s", qtyOz)
	}
	res := s.db.WithContext(ctx).
		Model(&models.StagedAllocation{}).
		Where("id = ? AND session_token = ?", stagingID, sessionToken).
		Update("qty_oz", qtyOz)
	if res.Error != nil {
		return storageError("обновление черновика", res.Error)
	}
	if res.RowsAffected == 0 {
		return newEngineError(KindNotFound, "строка черновика %d не найдена в сессии", stagingID)
	}
	return nil
}

// StageRemove удаляет одну строку черновика
func (s *StagingService) StageRemove(ctx context.Context, sessionToken string, stagingID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND session_token = ?", stagingID, sessionToken).
		Delete(&models.StagedAllocation{})
	if res.Error != nil {
		return storageError("удаление строки черновика", res.Error)
	}
	if res.RowsAffected == 0 {
		return newEngineError(KindNotFound, "строка черновика %d не найдена в сессии", stagingID)
	}
	return nil
}

// StageDiscard удаляет все строки сессии. Повторный вызов ничего не делает.
func (s *StagingService) StageDiscard(ctx context.Context, sessionToken string) error {
	res := s.db.WithContext(ctx).
		Where("session_token = ?", sessionToken).
		Delete(&models.StagedAllocation{})
	if res.Error != nil {
		return storageError("очистка черновика", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Debug().Str("session_token", sessionToken).Int64("rows", res.RowsAffected).Msg("черновик сессии очищен")
	}
	return nil
}
