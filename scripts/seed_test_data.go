package main

import (
	"context"
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mfgcore/server/internal/config"
	"mfgcore/server/internal/database"
	"mfgcore/server/internal/models"
	"mfgcore/server/internal/services"
	"mfgcore/server/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("⚠️ .env файл не найден, используем переменные окружения системы")
	}
	cfg := config.Load()
	utils.SetupLogger(cfg.Environment, cfg.LogLevel)
	log.Info().Str("database_url", utils.MaskURL(cfg.DatabaseURL)).Msg("📋 Используется DATABASE_URL")

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Ошибка подключения к БД")
	}
	defer database.ClosePostgres(db)

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("❌ Ошибка миграции")
	}

	recipeID, err := seedDemoData(context.Background(), db, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Ошибка заполнения тестовых данных")
	}
	log.Info().Uint("recipe_id", recipeID).Msg("✅ Тестовые данные готовы: mfgctl select --recipe <id> --units 10")
}

// seedDemoData создает производителя, поставщика, сырье, рецептуру хлеба и лоты с разными сроками.
// Повторный запуск ничего не дублирует. Возвращает ID рецептуры.
func seedDemoData(ctx context.Context, db *gorm.DB, now time.Time) (uint, error) {
	db = db.WithContext(ctx)

	if err := db.FirstOrCreate(&models.Manufacturer{ID: "MFG001"}, models.Manufacturer{ID: "MFG001", Name: "Тестовый производитель"}).Error; err != nil {
		return 0, err
	}
	if err := db.FirstOrCreate(&models.Supplier{ID: "20"}, models.Supplier{ID: "20", Name: "Мельница"}).Error; err != nil {
		return 0, err
	}
	for _, ing := range []models.Ingredient{
		{ID: "101", Name: "Мука"},
		{ID: "102", Name: "Сахар"},
		{ID: "103", Name: "Дрожжи"},
	} {
		if err := db.FirstOrCreate(&models.Ingredient{}, ing).Error; err != nil {
			return 0, err
		}
	}

	var product models.ProductType
	err := db.Where("manufacturer_id = ? AND product_code = ?", "MFG001", "100").First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		product = models.ProductType{ManufacturerID: "MFG001", ProductCode: "100", Name: "Хлеб", StandardBatchUnits: 10}
		err = db.Create(&product).Error
	}
	if err != nil {
		return 0, err
	}

	var plan models.RecipePlan
	err = db.Where("product_type_id = ? AND is_active = ?", product.ID, true).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		plan = models.RecipePlan{ProductTypeID: product.ID, Name: "Хлеб v1", IsActive: true, Items: []models.RecipePlanItem{
			{IngredientID: "101", QtyOzPerUnit: decimal.NewFromInt(2)},
			{IngredientID: "102", QtyOzPerUnit: decimal.NewFromInt(1)},
			{IngredientID: "103", QtyOzPerUnit: decimal.RequireFromString("0.25")},
		}}
		err = db.Create(&plan).Error
	}
	if err != nil {
		return 0, err
	}

	lots := services.NewLotService(db)
	today := now.UTC().Truncate(24 * time.Hour)
	for _, r := range []services.LotReceipt{
		{IngredientID: "101", SupplierID: "20", SupplierBatchID: "A1", QuantityOz: decimal.NewFromInt(40), UnitCost: decimal.RequireFromString("0.5"), ExpirationDate: today.AddDate(0, 0, 5)},
		{IngredientID: "101", SupplierID: "20", SupplierBatchID: "A2", QuantityOz: decimal.NewFromInt(200), UnitCost: decimal.RequireFromString("0.45"), ExpirationDate: today.AddDate(0, 0, 30)},
		{IngredientID: "102", SupplierID: "20", SupplierBatchID: "S1", QuantityOz: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(1), ExpirationDate: today.AddDate(0, 0, 60)},
		{IngredientID: "103", SupplierID: "20", SupplierBatchID: "Y1", QuantityOz: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(3), ExpirationDate: today.AddDate(0, 0, 3)},
		{IngredientID: "103", SupplierID: "20", SupplierBatchID: "Y0", QuantityOz: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(3), ExpirationDate: today.AddDate(0, 0, -2)},
	} {
		lot, err := lots.ReceiveLot(ctx, r)
		if services.KindOf(err) == services.KindLotNumberConflict {
			log.Info().Str("supplier_batch_id", r.SupplierBatchID).Msg("ℹ️ Лот уже принят")
			continue
		}
		if err != nil {
			return 0, err
		}
		log.Info().Str("lot_number", lot.LotNumber).Msg("✅ Лот принят")
	}
	return plan.ID, nil
}
