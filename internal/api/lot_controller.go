package api

import (
	"net/http"
	"strconv"

	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// LotController управляет приемкой лотов сырья и отчетами по срокам годности
type LotController struct {
	lots        *services.LotService
	warningDays int
}

// NewLotController создает новый контроллер лотов
func NewLotController(lots *services.LotService, warningDays int) *LotController {
	if warningDays <= 0 {
		warningDays = services.DefaultExpiryWarningDays
	}
	return &LotController{lots: lots, warningDays: warningDays}
}

type receiveLotRequest struct {
	IngredientID    string          `json:"ingredient_id" binding:"required"`
	SupplierID      string          `json:"supplier_id" binding:"required"`
	SupplierBatchID string          `json:"supplier_batch_id" binding:"required"`
	LotNumber       string          `json:"lot_number"`
	QuantityOz      decimal.Decimal `json:"quantity_oz"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	ExpirationDate  string          `json:"expiration_date" binding:"required"`
}

// ReceiveLot принимает лот сырья от поставщика
// POST /api/v1/lots
func (lc *LotController) ReceiveLot(c *gin.Context) {
	var req receiveLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	expires, err := services.ParseReceiptDate(req.ExpirationDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	lot, err := lc.lots.ReceiveLot(c.Request.Context(), services.LotReceipt{
		IngredientID:    req.IngredientID,
		SupplierID:      req.SupplierID,
		SupplierBatchID: req.SupplierBatchID,
		LotNumber:       req.LotNumber,
		QuantityOz:      req.QuantityOz,
		UnitCost:        req.UnitCost,
		ExpirationDate:  expires,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lot)
}

// ImportLots принимает лоты из xlsx файла (поле формы "file")
// POST /api/v1/lots/import
func (lc *LotController) ImportLots(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "не передан файл приемки")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	defer file.Close()

	lots, rowErrors, err := lc.lots.ImportReceiptsXLSX(c.Request.Context(), file)
	if err != nil {
		kind := services.KindOf(err)
		if kind == "" {
			badRequest(c, err.Error())
			return
		}
		if kind == services.KindInvalidQuantity {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   string(kind),
				"details": err.Error(),
				"errors":  rowErrors,
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imported": len(lots),
		"lots":     lots,
		"errors":   rowErrors,
	})
}

// ListLots возвращает лоты сырья
// GET /api/v1/lots?ingredient_id=xxx&include_expired=true
func (lc *LotController) ListLots(c *gin.Context) {
	ingredientID := c.Query("ingredient_id")
	if ingredientID == "" {
		badRequest(c, "не указан ingredient_id")
		return
	}
	includeExpired, _ := strconv.ParseBool(c.DefaultQuery("include_expired", "false"))

	lots, err := lc.lots.ListLots(c.Request.Context(), ingredientID, includeExpired)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": lots,
		"count": len(lots),
	})
}

// GetExpiringLots возвращает лоты с остатком, истекающие в ближайшие дни
// GET /api/v1/lots/expiring?days=7
func (lc *LotController) GetExpiringLots(c *gin.Context) {
	days := lc.warningDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, "days должен быть неотрицательным целым числом")
			return
		}
		days = parsed
	}

	lots, err := lc.lots.ExpiringLots(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"days":  days,
		"items": lots,
		"count": len(lots),
	})
}

// GetMaterials возвращает составляющие составного ингредиента
// GET /api/v1/ingredients/:id/materials
func (lc *LotController) GetMaterials(c *gin.Context) {
	materials, err := lc.lots.MaterialsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ingredient_id": c.Param("id"),
		"materials":     materials,
	})
}
