package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"mfgcore/server/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var receiptColumns = []string{"ingredient_id", "supplier_id", "supplier_batch_id", "quantity_oz", "unit_cost", "expiration_date"}

var receiptDateLayouts = []string{"2006-01-02", time.RFC3339, "01-02-06", "1/2/2006", "1/2/06", "02.01.2006"}

// ParseLotReceiptsXLSX читает приемку с первого листа. Первая строка - заголовки колонок,
// lot_number необязателен. Ошибочные строки возвращаются списком, остальные разбираются.
func ParseLotReceiptsXLSX(r io.Reader) ([]LotReceipt, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, newEngineError(KindInvalidQuantity, "не удалось открыть xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, nil, newEngineError(KindInvalidQuantity, "не удалось прочитать лист: %v", err)
	}
	if len(rows) == 0 {
		return nil, nil, newEngineError(KindInvalidQuantity, "файл пуст")
	}

	header := make(map[string]int)
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range receiptColumns {
		if _, ok := header[col]; !ok {
			return nil, nil, newEngineError(KindInvalidQuantity, "нет колонки %s", col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	receipts := make([]LotReceipt, 0, len(rows)-1)
	rowErrors := make([]string, 0)
	for n, row := range rows[1:] {
		line := n + 2
		if len(strings.Join(row, "")) == 0 {
			continue
		}

		qty, err := decimal.NewFromString(cell(row, "quantity_oz"))
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Строка %d: неверный формат quantity_oz", line))
			continue
		}
		cost, err := decimal.NewFromString(cell(row, "unit_cost"))
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Строка %d: неверный формат unit_cost", line))
			continue
		}
		expires, err := ParseReceiptDate(cell(row, "expiration_date"))
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Строка %d: %v", line, err))
			continue
		}

		receipts = append(receipts, LotReceipt{
			IngredientID:    cell(row, "ingredient_id"),
			SupplierID:      cell(row, "supplier_id"),
			SupplierBatchID: cell(row, "supplier_batch_id"),
			LotNumber:       cell(row, "lot_number"),
			QuantityOz:      qty,
			UnitCost:        cost,
			ExpirationDate:  expires,
		})
	}
	return receipts, rowErrors, nil
}

// ParseReceiptDate разбирает срок годности в одном из форматов receiptDateLayouts
func ParseReceiptDate(value string) (time.Time, error) {
	for _, layout := range receiptDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return startOfDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("неверный формат expiration_date: %q", value)
}

// ImportReceiptsXLSX разбирает файл приемки и принимает валидные строки одной транзакцией
func (s *LotService) ImportReceiptsXLSX(ctx context.Context, r io.Reader) ([]models.IngredientLot, []string, error) {
	receipts, parseErrors, err := ParseLotReceiptsXLSX(r)
	if err != nil {
		return nil, nil, err
	}
	if len(receipts) == 0 {
		return nil, parseErrors, newEngineError(KindInvalidQuantity, "нет валидных строк для приемки")
	}
	lots, rowErrors, err := s.ReceiveLots(ctx, receipts)
	return lots, append(parseErrors, rowErrors...), err
}

var recallExportHeader = []interface{}{
	"Product batch", "Product lot", "Product", "Manufacturer", "Units",
	"Created at", "Ingredient lot", "Ingredient", "Consumed oz",
}

// ExportRecallXLSX пишет результат трассировки в xlsx для рассылки при отзыве
func ExportRecallXLSX(rows []RecallRow, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := f.SetSheetRow(sheet, "A1", &recallExportHeader); err != nil {
		return err
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			row.ProductBatchID,
			row.ProductLotNumber,
			row.ProductName,
			row.ManufacturerName,
			row.ProducedUnits,
			row.CreatedAt.Format(time.RFC3339),
			row.IngredientLotNumber,
			row.IngredientName,
			row.ConsumedQtyOz.String(),
		}
		if err := f.SetSheetRow(sheet, cellRef, &values); err != nil {
			return err
		}
	}

	summary := SummarizeRecall(rows)
	footer, err := excelize.CoordinatesToCellName(1, len(rows)+3)
	if err != nil {
		return err
	}
	totals := []interface{}{"Affected batches", summary.AffectedBatches, "Total units", summary.TotalUnits}
	if err := f.SetSheetRow(sheet, footer, &totals); err != nil {
		return err
	}
	return f.Write(w)
}
