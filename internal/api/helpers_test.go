package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mfgcore/server/internal/models"
	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func init() {
	gin.SetMode(gin.TestMode)
}

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

// testEnv: хлеб MFG001 (2 oz муки и 1 oz сахара на единицу), лоты муки F-A (4 oz) и F-B (20 oz), сахар S-A (10 oz)
type testEnv struct {
	db     *gorm.DB
	svc    Services
	router *gin.Engine
	plan   models.RecipePlan
	flourA models.IngredientLot
	flourB models.IngredientLot
	sugar  models.IngredientLot
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Manufacturer{ID: "MFG001", Name: "Acme Foods"}).Error)
	require.NoError(t, db.Create(&models.Manufacturer{ID: "MFG002", Name: "Other Foods"}).Error)
	require.NoError(t, db.Create(&models.Supplier{ID: "20", Name: "Mill Supply"}).Error)
	require.NoError(t, db.Create(&[]models.Ingredient{
		{ID: "101", Name: "Flour"},
		{ID: "102", Name: "Sugar"},
		{ID: "201", Name: "Seasoning Blend", IsCompound: true},
	}).Error)
	require.NoError(t, db.Create(&models.IngredientMaterial{ParentIngredientID: "201", MaterialIngredientID: "102"}).Error)

	product := models.ProductType{ManufacturerID: "MFG001", ProductCode: "100", Name: "Bread"}
	require.NoError(t, db.Create(&product).Error)
	plan := models.RecipePlan{ProductTypeID: product.ID, Name: "v1", Items: []models.RecipePlanItem{
		{IngredientID: "101", QtyOzPerUnit: decimal.NewFromInt(2)},
		{IngredientID: "102", QtyOzPerUnit: decimal.NewFromInt(1)},
	}}
	require.NoError(t, db.Create(&plan).Error)

	env := &testEnv{db: db, plan: plan}
	env.flourA = env.lot(t, "101", "F-A", "4", "0.5", 5)
	env.flourB = env.lot(t, "101", "F-B", "20", "0.25", 20)
	env.sugar = env.lot(t, "102", "S-A", "10", "1", 10)

	env.svc = newTestServices(db)
	env.router = NewRouter(env.svc, RouterOptions{JWTSecret: testSecret, ExpiryWarningDays: 7})
	return env
}

func newTestServices(db *gorm.DB) Services {
	staging := services.NewStagingService(db)
	fefo := services.NewFEFOService(db)
	fefo.SetClock(fixedClock)
	fefo.SetStagingService(staging)
	batches := services.NewBatchService(db)
	batches.SetClock(fixedClock)
	recall := services.NewRecallService(db)
	recall.SetClock(fixedClock)
	lots := services.NewLotService(db)
	lots.SetClock(fixedClock)
	return Services{
		Requirements: services.NewRequirementService(db),
		FEFO:         fefo,
		Staging:      staging,
		Batches:      batches,
		Recall:       recall,
		Lots:         lots,
	}
}

func (e *testEnv) lot(t *testing.T, ingredientID, number, onHand, unitCost string, days int) models.IngredientLot {
	t.Helper()
	y, m, d := testNow.Date()
	lot := models.IngredientLot{
		IngredientID:    ingredientID,
		SupplierID:      "20",
		SupplierBatchID: number,
		LotNumber:       number,
		QuantityOz:      decimal.RequireFromString(onHand),
		UnitCost:        decimal.RequireFromString(unitCost),
		ExpirationDate:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days),
	}
	require.NoError(t, e.db.Create(&lot).Error)
	return lot
}

// do выполняет запрос к роутеру. headers - пары ключ, значение.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// openSession открывает сессию и подбирает лоты под units единиц хлеба
func (e *testEnv) openSession(t *testing.T, units int) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/staging/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	token := decodeBody(t, w)["session_token"].(string)

	w = e.do(t, http.MethodPost, "/api/v1/staging/"+token+"/fefo", gin.H{"recipe_id": e.plan.ID, "units": units})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return token
}

func (e *testEnv) onHand(t *testing.T, lotID uint) decimal.Decimal {
	t.Helper()
	var lot models.IngredientLot
	require.NoError(t, e.db.First(&lot, "id = ?", lotID).Error)
	return lot.OnHandOz
}
