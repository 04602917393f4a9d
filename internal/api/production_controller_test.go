package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"mfgcore/server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRequirements(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/recipes/%d/requirements?units=10", env.plan.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	reqs := decodeBody(t, w)["requirements"].([]interface{})
	require.Len(t, reqs, 2)
	first := reqs[0].(map[string]interface{})
	assert.Equal(t, "101", first["ingredient_id"])
	assert.Equal(t, "Flour", first["ingredient_name"])
	assert.Equal(t, "20", first["total_oz"])
}

func TestGetRequirements_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/recipes/%d/requirements?units=0", env.plan.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidQuantity", decodeBody(t, w)["error"])

	w = env.do(t, http.MethodGet, "/api/v1/recipes/999/requirements?units=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRecipe", decodeBody(t, w)["error"])

	w = env.do(t, http.MethodGet, "/api/v1/recipes/abc/requirements?units=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BadRequest", decodeBody(t, w)["error"])
}

func TestSelectAndCommit_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.openSession(t, 10)

	w := env.do(t, http.MethodGet, "/api/v1/staging/"+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decodeBody(t, w)["count"])

	w = env.do(t, http.MethodPost, "/api/v1/batches", gin.H{
		"session_token":   token,
		"recipe_id":       env.plan.ID,
		"units":           10,
		"manufacturer_id": "MFG001",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "100-MFG001-B0001", body["lot_number"])
	assert.True(t, decimal.RequireFromString(body["batch_cost"].(string)).Equal(decimal.NewFromInt(16)))
	assert.True(t, decimal.RequireFromString(body["unit_cost"].(string)).Equal(decimal.RequireFromString("1.6")))

	assert.True(t, env.onHand(t, env.flourA.ID).IsZero())
	assert.True(t, env.onHand(t, env.flourB.ID).Equal(decimal.NewFromInt(4)))
	assert.True(t, env.onHand(t, env.sugar.ID).IsZero())

	batchID := uint(body["batch_id"].(float64))
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/batches/%d", batchID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["consumption"], 3)

	w = env.do(t, http.MethodGet, "/api/v1/batches?manufacturer_id=MFG001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/staging/"+token, nil)
	assert.EqualValues(t, 0, decodeBody(t, w)["count"])
}

func TestSelectFEFO_InsufficientStockReportsShortage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/staging/tok-1/fefo", gin.H{"recipe_id": env.plan.ID, "units": 13})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "InsufficientStock", body["error"])
	assert.Equal(t, "101", body["ingredient_id"])
	assert.Equal(t, "2", body["shortage_oz"])
	assert.EqualValues(t, 2, body["eligible_lots"])

	var staged int64
	require.NoError(t, env.db.Model(&models.StagedAllocation{}).Count(&staged).Error)
	assert.Zero(t, staged)
}

func TestStagingItems_AddUpdateRemove(t *testing.T) {
	env := newTestEnv(t)
	token := "manual-1"

	w := env.do(t, http.MethodPost, "/api/v1/staging/"+token+"/items", gin.H{"lot_id": env.flourB.ID, "qty_oz": "5"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	stagingID := uint(decodeBody(t, w)["id"].(float64))

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/staging/%s/items/%d", token, stagingID), gin.H{"qty_oz": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var row models.StagedAllocation
	require.NoError(t, env.db.First(&row, stagingID).Error)
	assert.True(t, row.QtyOz.Equal(decimal.NewFromInt(7)))

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/staging/other/items/%d", stagingID), gin.H{"qty_oz": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/staging/"+token+"/items", gin.H{"lot_id": env.flourB.ID, "qty_oz": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/staging/%s/items/%d", token, stagingID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/staging/"+token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCommitBatch_StagingMismatchKeepsStock(t *testing.T) {
	env := newTestEnv(t)
	token := env.openSession(t, 10)

	w := env.do(t, http.MethodPost, "/api/v1/batches", gin.H{
		"session_token":   token,
		"recipe_id":       env.plan.ID,
		"units":           5,
		"manufacturer_id": "MFG001",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "StagingMismatch", decodeBody(t, w)["error"])
	assert.True(t, env.onHand(t, env.flourA.ID).Equal(decimal.NewFromInt(4)))
}

func TestCommitBatch_ManufacturerFromToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.openSession(t, 10)

	jwtToken, err := GenerateToken(testSecret, "MFG002", time.Hour)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/batches", gin.H{
		"session_token":   token,
		"recipe_id":       env.plan.ID,
		"units":           10,
		"manufacturer_id": "MFG001",
	}, "Authorization", "Bearer "+jwtToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Рецептура принадлежит MFG001
	w = env.do(t, http.MethodPost, "/api/v1/batches", gin.H{
		"session_token": token,
		"recipe_id":     env.plan.ID,
		"units":         10,
	}, "Authorization", "Bearer "+jwtToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRecipe", decodeBody(t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/v1/batches", gin.H{
		"session_token": token,
		"recipe_id":     env.plan.ID,
		"units":         10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BadRequest", decodeBody(t, w)["error"])
}

func TestCommitLegacyBatch(t *testing.T) {
	env := newTestEnv(t)
	env.openSession(t, 10)

	w := env.do(t, http.MethodPost, "/api/v1/batches/legacy", gin.H{
		"recipe_id":       env.plan.ID,
		"units":           10,
		"manufacturer_id": "MFG001",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "100-MFG001-B0001", decodeBody(t, w)["lot_number"])
}

func TestGetBatch_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/batches/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", decodeBody(t, w)["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	env.openSession(t, 1)
	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mfgcore_fefo_selections_total")
}

func TestInventoryReports(t *testing.T) {
	env := newTestEnv(t)
	commitBread(t, env, 5)
	commitBread(t, env, 5)

	w := env.do(t, http.MethodGet, "/api/v1/reports/inventory?manufacturer_id=MFG001", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.EqualValues(t, 10, body["total_units"])
	products := body["products"].([]interface{})
	require.Len(t, products, 1)
	bread := products[0].(map[string]interface{})
	assert.Equal(t, "Bread", bread["product_name"])
	assert.EqualValues(t, 2, bread["batch_count"])

	w = env.do(t, http.MethodGet, "/api/v1/reports/low-stock?manufacturer_id=MFG001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.EqualValues(t, 100, body["threshold"])
	assert.EqualValues(t, 1, body["count"])

	w = env.do(t, http.MethodGet, "/api/v1/reports/low-stock?manufacturer_id=MFG001&threshold=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeBody(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/reports/low-stock?manufacturer_id=MFG001&threshold=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/reports/inventory", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	jwtToken, err := GenerateToken(testSecret, "MFG002", time.Hour)
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/api/v1/reports/inventory?manufacturer_id=MFG001", nil, "Authorization", "Bearer "+jwtToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
