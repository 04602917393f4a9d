package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"mfgcore/server/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ── Test database ────────────────────────────────────────────────────────────

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

type fixture struct {
	db      *gorm.DB
	product models.ProductType
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Manufacturer{ID: "MFG001", Name: "Acme Foods"}).Error)
	require.NoError(t, db.Create(&models.Manufacturer{ID: "MFG002", Name: "Other Foods"}).Error)
	require.NoError(t, db.Create(&models.Supplier{ID: "20", Name: "Mill Supply"}).Error)
	require.NoError(t, db.Create(&[]models.Ingredient{
		{ID: "101", Name: "Flour"},
		{ID: "102", Name: "Sugar"},
		{ID: "103", Name: "Yeast"},
		{ID: "201", Name: "Seasoning Blend", IsCompound: true},
	}).Error)

	product := models.ProductType{ManufacturerID: "MFG001", ProductCode: "100", Name: "Bread"}
	require.NoError(t, db.Create(&product).Error)
	return &fixture{db: db, product: product}
}

// recipe создает рецептуру: пары (ingredient id, расход на единицу)
func (f *fixture) recipe(t *testing.T, lines ...string) models.RecipePlan {
	t.Helper()
	require.True(t, len(lines)%2 == 0)
	plan := models.RecipePlan{ProductTypeID: f.product.ID, Name: "v1"}
	for i := 0; i < len(lines); i += 2 {
		plan.Items = append(plan.Items, models.RecipePlanItem{IngredientID: lines[i], QtyOzPerUnit: dec(lines[i+1])})
	}
	require.NoError(t, f.db.Create(&plan).Error)
	return plan
}

// lot принимает лот с остатком onHand и сроком годности через days дней от testNow
func (f *fixture) lot(t *testing.T, ingredientID, number, onHand, unitCost string, days int) models.IngredientLot {
	t.Helper()
	lot := models.IngredientLot{
		IngredientID:    ingredientID,
		SupplierID:      "20",
		SupplierBatchID: number,
		LotNumber:       number,
		QuantityOz:      dec(onHand),
		UnitCost:        dec(unitCost),
		ExpirationDate:  startOfDay(testNow).AddDate(0, 0, days),
	}
	require.NoError(t, f.db.Create(&lot).Error)
	return lot
}

func (f *fixture) onHand(t *testing.T, lotID uint) decimal.Decimal {
	t.Helper()
	var lot models.IngredientLot
	require.NoError(t, f.db.First(&lot, "id = ?", lotID).Error)
	return lot.OnHandOz
}

func (f *fixture) stagedCount(t *testing.T, token string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.StagedAllocation{}).Where("session_token = ?", token).Count(&n).Error)
	return n
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) fefo() *FEFOService {
	s := NewFEFOService(f.db)
	s.SetClock(fixedClock)
	return s
}

func (f *fixture) batches() *BatchService {
	s := NewBatchService(f.db)
	s.SetClock(fixedClock)
	return s
}

func (f *fixture) recall() *RecallService {
	s := NewRecallService(f.db)
	s.SetClock(fixedClock)
	return s
}

func intPtr(v int) *int { return &v }
