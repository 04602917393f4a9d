package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RecallController управляет трассировкой отзыва
type RecallController struct {
	recall *services.RecallService
}

// NewRecallController создает новый контроллер отзыва
func NewRecallController(recall *services.RecallService) *RecallController {
	return &RecallController{recall: recall}
}

func (rc *RecallController) bindQuery(c *gin.Context) (services.RecallQuery, bool) {
	q := services.RecallQuery{
		IngredientID: c.Query("ingredient_id"),
		LotNumber:    c.Query("lot_number"),
	}
	if raw := c.Query("window_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "window_days должен быть целым числом")
			return q, false
		}
		q.WindowDays = &days
	}
	return q, true
}

// TraceRecall возвращает партии, в которые ушло сырье из лота или ингредиента
// GET /api/v1/recall?ingredient_id=xxx | lot_number=xxx &window_days=20
func (rc *RecallController) TraceRecall(c *gin.Context) {
	q, ok := rc.bindQuery(c)
	if !ok {
		return
	}
	rows, err := rc.recall.TraceRecall(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":    rows,
		"summary": services.SummarizeRecall(rows),
	})
}

// ExportRecall отдает результат трассировки файлом xlsx
// GET /api/v1/recall/export?ingredient_id=xxx | lot_number=xxx
func (rc *RecallController) ExportRecall(c *gin.Context) {
	q, ok := rc.bindQuery(c)
	if !ok {
		return
	}
	rows, err := rc.recall.TraceRecall(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := services.ExportRecallXLSX(rows, &buf); err != nil {
		respondError(c, err)
		return
	}
	target := q.LotNumber
	if target == "" {
		target = q.IngredientID
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"recall-%s.xlsx\"", target))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
