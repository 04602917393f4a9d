package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReceiveLot(t *testing.T) {
	env := newTestEnv(t)

	receipt := gin.H{
		"ingredient_id":     "102",
		"supplier_id":       "20",
		"supplier_batch_id": "777",
		"quantity_oz":       "12.5",
		"unit_cost":         "0.8",
		"expiration_date":   "2026-11-30",
	}
	w := env.do(t, http.MethodPost, "/api/v1/lots", receipt)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "102-20-777", body["lot_number"])
	assert.Equal(t, "12.5", body["on_hand_oz"])

	w = env.do(t, http.MethodPost, "/api/v1/lots", receipt)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LotNumberConflict", decodeBody(t, w)["error"])
}

func TestReceiveLot_Invalid(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/lots", gin.H{
		"ingredient_id":     "102",
		"supplier_id":       "20",
		"supplier_batch_id": "1",
		"quantity_oz":       "10",
		"expiration_date":   "не дата",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/lots", gin.H{
		"ingredient_id":     "999",
		"supplier_id":       "20",
		"supplier_batch_id": "1",
		"quantity_oz":       "10",
		"expiration_date":   "2026-11-30",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/lots", gin.H{
		"ingredient_id":     "102",
		"supplier_id":       "20",
		"supplier_batch_id": "1",
		"quantity_oz":       "-1",
		"expiration_date":   "2026-11-30",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidQuantity", decodeBody(t, w)["error"])
}

func TestListLotsAndExpiring(t *testing.T) {
	env := newTestEnv(t)
	env.lot(t, "101", "F-OLD", "3", "0.5", -1)

	w := env.do(t, http.MethodGet, "/api/v1/lots?ingredient_id=101", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/lots?ingredient_id=101&include_expired=true", nil)
	assert.EqualValues(t, 3, decodeBody(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// по умолчанию 7 дней: только F-A (5 дней)
	w = env.do(t, http.MethodGet, "/api/v1/lots/expiring", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 7, body["days"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "F-A", items[0].(map[string]interface{})["lot_number"])

	w = env.do(t, http.MethodGet, "/api/v1/lots/expiring?days=10", nil)
	assert.EqualValues(t, 2, decodeBody(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/lots/expiring?days=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMaterials(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/ingredients/201/materials", nil)
	require.Equal(t, http.StatusOK, w.Code)
	materials := decodeBody(t, w)["materials"].([]interface{})
	require.Len(t, materials, 1)
	assert.Equal(t, "Sugar", materials[0].(map[string]interface{})["name"])
}

func receiptWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func uploadReceipts(t *testing.T, env *testEnv, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "receipts.xlsx")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lots/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestImportLots(t *testing.T) {
	env := newTestEnv(t)
	content := receiptWorkbook(t, [][]interface{}{
		{"ingredient_id", "supplier_id", "supplier_batch_id", "quantity_oz", "unit_cost", "expiration_date"},
		{"101", "20", "900", "50", "0.3", "2026-12-01"},
		{"102", "20", "901", "abc", "1", "2026-12-01"},
	})

	w := uploadReceipts(t, env, content)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.EqualValues(t, 1, body["imported"])
	assert.Len(t, body["errors"], 1)

	w = env.do(t, http.MethodGet, "/api/v1/lots?ingredient_id=101", nil)
	assert.EqualValues(t, 3, decodeBody(t, w)["count"])
}

func TestImportLots_NoFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/lots/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
