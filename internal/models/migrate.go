package models

import (
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AutoMigrate создает и обновляет таблицы производственного учета
func AutoMigrate(db *gorm.DB) error {
	// Справочники мигрируем первыми: на них ссылаются лоты и рецептуры
	if err := db.AutoMigrate(
		&Manufacturer{},
		&Supplier{},
		&Ingredient{},
		&IngredientMaterial{},
		&ProductType{},
	); err != nil {
		if !isMissingConstraintError(err) {
			log.Error().Err(err).Msg("❌ AutoMigrate справочников failed")
			return err
		}
		log.Warn().Err(err).Msg("⚠️ AutoMigrate справочников")
	}

	if err := db.AutoMigrate(
		&RecipePlan{},
		&RecipePlanItem{},
		&IngredientLot{},
		&StagedAllocation{},
		&ProductBatch{},
		&ConsumptionLink{},
	); err != nil {
		log.Error().Err(err).Msg("❌ AutoMigrate производственных таблиц failed")
		return err
	}

	log.Info().Msg("✅ Production tables migrated successfully")
	return nil
}

// isMissingConstraintError - Postgres ругается на удаление несуществующего constraint, это не критично
func isMissingConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "constraint") &&
		strings.Contains(msg, "does not exist") &&
		strings.Contains(msg, "SQLSTATE 42704")
}
