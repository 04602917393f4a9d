package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"mfgcore/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newLotService(f *fixture) *LotService {
	s := NewLotService(f.db)
	s.SetClock(fixedClock)
	return s
}

func TestReceiveLot_SetsOnHandAndLotNumber(t *testing.T) {
	f := newFixture(t)
	svc := newLotService(f)

	lot, err := svc.ReceiveLot(context.Background(), LotReceipt{
		IngredientID:    "101",
		SupplierID:      "20",
		SupplierBatchID: "B77",
		QuantityOz:      dec("32"),
		UnitCost:        dec("0.125"),
		ExpirationDate:  testNow.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "101-20-B77", lot.LotNumber)
	assert.True(t, lot.OnHandOz.Equal(dec("32")))
	assert.True(t, f.onHand(t, lot.ID).Equal(dec("32")))

	_, err = svc.ReceiveLot(context.Background(), LotReceipt{
		IngredientID: "101", SupplierID: "20", SupplierBatchID: "B77",
		QuantityOz: dec("1"), UnitCost: dec("1"), ExpirationDate: testNow,
	})
	assert.True(t, errors.Is(err, ErrLotNumberConflict))
}

func TestReceiveLot_Validation(t *testing.T) {
	f := newFixture(t)
	svc := newLotService(f)
	ctx := context.Background()
	base := LotReceipt{IngredientID: "101", SupplierID: "20", SupplierBatchID: "B1", QuantityOz: dec("5"), UnitCost: dec("1"), ExpirationDate: testNow}

	bad := base
	bad.QuantityOz = dec("0")
	_, err := svc.ReceiveLot(ctx, bad)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	bad = base
	bad.UnitCost = dec("-1")
	_, err = svc.ReceiveLot(ctx, bad)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	bad = base
	bad.IngredientID = "999"
	_, err = svc.ReceiveLot(ctx, bad)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, int64(0), f.count(t, &models.IngredientLot{}))
}

func TestExpiringLots(t *testing.T) {
	f := newFixture(t)
	soon := f.lot(t, "101", "SOON", "5", "1", 3)
	f.lot(t, "101", "LATER", "5", "1", 30)
	f.lot(t, "101", "GONE", "5", "1", -1)
	today := f.lot(t, "102", "TODAY", "5", "1", 0)

	lots, err := newLotService(f).ExpiringLots(context.Background(), DefaultExpiryWarningDays)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, today.ID, lots[0].ID)
	assert.Equal(t, soon.ID, lots[1].ID)
	require.NotNil(t, lots[1].Ingredient)
	assert.Equal(t, "Flour", lots[1].Ingredient.Name)
}

func TestListLots_FEFOOrder(t *testing.T) {
	f := newFixture(t)
	late := f.lot(t, "101", "LATE", "5", "1", 9)
	early := f.lot(t, "101", "EARLY", "5", "1", 2)
	f.lot(t, "101", "OLD", "5", "1", -2)
	svc := newLotService(f)

	lots, err := svc.ListLots(context.Background(), "101", false)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, early.ID, lots[0].ID)
	assert.Equal(t, late.ID, lots[1].ID)

	all, err := svc.ListLots(context.Background(), "101", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMaterialsOf(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&[]models.IngredientMaterial{
		{ParentIngredientID: "201", MaterialIngredientID: "103"},
		{ParentIngredientID: "201", MaterialIngredientID: "102"},
	}).Error)

	materials, err := newLotService(f).MaterialsOf(context.Background(), "201")
	require.NoError(t, err)
	require.Len(t, materials, 2)
	assert.Equal(t, "Sugar", materials[0].Name)
	assert.Equal(t, "Yeast", materials[1].Name)

	none, err := newLotService(f).MaterialsOf(context.Background(), "101")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ── XLSX ─────────────────────────────────────────────────────────────────────

func receiptWorkbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	header := []interface{}{"ingredient_id", "supplier_id", "supplier_batch_id", "quantity_oz", "unit_cost", "expiration_date"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportReceiptsXLSX(t *testing.T) {
	f := newFixture(t)
	data := receiptWorkbook(t,
		[]interface{}{"101", "20", "X1", "16", "0.5", "2026-12-01"},
		[]interface{}{"102", "20", "X2", "abc", "0.5", "2026-12-01"},
		[]interface{}{"999", "20", "X3", "10", "0.5", "2026-12-01"},
		[]interface{}{"103", "20", "X4", "8", "1.25", "2026-11-15"},
	)

	lots, rowErrors, err := newLotService(f).ImportReceiptsXLSX(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Len(t, rowErrors, 2)
	assert.Equal(t, "101-20-X1", lots[0].LotNumber)
	assert.True(t, lots[1].UnitCost.Equal(dec("1.25")))
	assert.Equal(t, int64(2), f.count(t, &models.IngredientLot{}))
}

func TestImportReceiptsXLSX_MissingColumn(t *testing.T) {
	f := excelize.NewFile()
	header := []interface{}{"ingredient_id", "quantity_oz"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = ParseLotReceiptsXLSX(buf)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestExportRecallXLSX(t *testing.T) {
	rows := []RecallRow{
		{ProductBatchID: 1, ProductLotNumber: "100-MFG001-B0001", ProductName: "Bread", ProducedUnits: 3,
			CreatedAt: testNow, IngredientLotNumber: "L100", IngredientName: "Flour", ConsumedQtyOz: dec("4")},
		{ProductBatchID: 1, ProductLotNumber: "100-MFG001-B0001", ProductName: "Bread", ProducedUnits: 3,
			CreatedAt: testNow, IngredientLotNumber: "L200", IngredientName: "Flour", ConsumedQtyOz: dec("2")},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportRecallXLSX(rows, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	lotCell, err := f.GetCellValue("Sheet1", "G2")
	require.NoError(t, err)
	assert.Equal(t, "L100", lotCell)

	affected, err := f.GetCellValue("Sheet1", "B5")
	require.NoError(t, err)
	assert.Equal(t, "1", affected)
}
