package api

import (
	"net/http"
	"strconv"

	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ProductionController управляет API endpoints выпуска: потребность, черновик, коммит
type ProductionController struct {
	requirements *services.RequirementService
	fefo         *services.FEFOService
	staging      *services.StagingService
	batches      *services.BatchService
}

// NewProductionController создает новый контроллер производства
func NewProductionController(
	requirements *services.RequirementService,
	fefo *services.FEFOService,
	staging *services.StagingService,
	batches *services.BatchService,
) *ProductionController {
	return &ProductionController{
		requirements: requirements,
		fefo:         fefo,
		staging:      staging,
		batches:      batches,
	}
}

type selectRequest struct {
	RecipeID uint `json:"recipe_id" binding:"required"`
	Units    int  `json:"units"`
}

type stageAddRequest struct {
	LotID uint            `json:"lot_id" binding:"required"`
	QtyOz decimal.Decimal `json:"qty_oz"`
}

type stageUpdateRequest struct {
	QtyOz decimal.Decimal `json:"qty_oz"`
}

type commitRequest struct {
	SessionToken   string `json:"session_token"`
	RecipeID       uint   `json:"recipe_id" binding:"required"`
	Units          int    `json:"units"`
	ManufacturerID string `json:"manufacturer_id"`
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "неверный параметр "+name)
		return 0, false
	}
	return uint(v), true
}

// GetRequirements возвращает потребность в ингредиентах
// GET /api/v1/recipes/:id/requirements?units=N
func (pc *ProductionController) GetRequirements(c *gin.Context) {
	recipeID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	units, err := strconv.Atoi(c.Query("units"))
	if err != nil {
		badRequest(c, "units должен быть целым числом")
		return
	}

	reqs, err := pc.requirements.ResolveRequirement(c.Request.Context(), recipeID, units)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipe_id":    recipeID,
		"units":        units,
		"requirements": reqs,
	})
}

// NewSession выдает токен новой сессии черновика
// POST /api/v1/staging/sessions
func (pc *ProductionController) NewSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"session_token": pc.staging.NewSession()})
}

// SelectFEFO подбирает лоты и записывает их в черновик сессии
// POST /api/v1/staging/:token/fefo
func (pc *ProductionController) SelectFEFO(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := pc.fefo.SelectFEFO(c.Request.Context(), req.RecipeID, req.Units, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListStaging возвращает строки черновика
// GET /api/v1/staging/:token
func (pc *ProductionController) ListStaging(c *gin.Context) {
	rows, err := pc.staging.StageList(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": rows,
		"count": len(rows),
	})
}

// AddStaging добавляет строку вручную
// POST /api/v1/staging/:token/items
func (pc *ProductionController) AddStaging(c *gin.Context) {
	var req stageAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	row, err := pc.staging.StageAdd(c.Request.Context(), c.Param("token"), req.LotID, req.QtyOz)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

// UpdateStaging меняет количество в строке черновика
// PUT /api/v1/staging/:token/items/:id
func (pc *ProductionController) UpdateStaging(c *gin.Context) {
	stagingID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req stageUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := pc.staging.StageUpdate(c.Request.Context(), c.Param("token"), stagingID, req.QtyOz); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// RemoveStaging удаляет строку черновика
// DELETE /api/v1/staging/:token/items/:id
func (pc *ProductionController) RemoveStaging(c *gin.Context) {
	stagingID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	if err := pc.staging.StageRemove(c.Request.Context(), c.Param("token"), stagingID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DiscardStaging очищает сессию целиком
// DELETE /api/v1/staging/:token
func (pc *ProductionController) DiscardStaging(c *gin.Context) {
	if err := pc.staging.StageDiscard(c.Request.Context(), c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (pc *ProductionController) bindCommit(c *gin.Context) (services.CommitRequest, bool) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return services.CommitRequest{}, false
	}
	manufacturerID, ok := manufacturerFrom(c, req.ManufacturerID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Forbidden",
			"details": "manufacturer_id не совпадает с токеном",
		})
		return services.CommitRequest{}, false
	}
	if manufacturerID == "" {
		badRequest(c, "не указан manufacturer_id")
		return services.CommitRequest{}, false
	}
	return services.CommitRequest{
		SessionToken:   req.SessionToken,
		RecipeID:       req.RecipeID,
		Units:          req.Units,
		ManufacturerID: manufacturerID,
	}, true
}

// CommitBatch превращает черновик сессии в партию
// POST /api/v1/batches
func (pc *ProductionController) CommitBatch(c *gin.Context) {
	req, ok := pc.bindCommit(c)
	if !ok {
		return
	}
	result, err := pc.batches.CommitBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CommitLegacyBatch коммитит партию по строкам черновика без сессии
// POST /api/v1/batches/legacy
func (pc *ProductionController) CommitLegacyBatch(c *gin.Context) {
	req, ok := pc.bindCommit(c)
	if !ok {
		return
	}
	result, err := pc.batches.CommitLegacyBatch(c.Request.Context(), req.RecipeID, req.Units, req.ManufacturerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// queryManufacturer берет manufacturer_id из токена или query и отвечает ошибкой, если его нет
func queryManufacturer(c *gin.Context) (string, bool) {
	manufacturerID, ok := manufacturerFrom(c, c.Query("manufacturer_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Forbidden",
			"details": "manufacturer_id не совпадает с токеном",
		})
		return "", false
	}
	if manufacturerID == "" {
		badRequest(c, "не указан manufacturer_id")
		return "", false
	}
	return manufacturerID, true
}

// ListBatches возвращает последние партии с себестоимостью
// GET /api/v1/batches?manufacturer_id=xxx&limit=20
func (pc *ProductionController) ListBatches(c *gin.Context) {
	manufacturerID, ok := queryManufacturer(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	batches, err := pc.batches.ListBatches(c.Request.Context(), manufacturerID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
		"count":   len(batches),
	})
}

// GetBatch возвращает партию с расходом по лотам
// GET /api/v1/batches/:id
func (pc *ProductionController) GetBatch(c *gin.Context) {
	batchID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	batch, err := pc.batches.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// GetInventoryReport возвращает выпуск по продуктам производителя
// GET /api/v1/reports/inventory?manufacturer_id=xxx
func (pc *ProductionController) GetInventoryReport(c *gin.Context) {
	manufacturerID, ok := queryManufacturer(c)
	if !ok {
		return
	}
	rows, err := pc.batches.InventoryReport(c.Request.Context(), manufacturerID)
	if err != nil {
		respondError(c, err)
		return
	}
	total := 0
	for _, r := range rows {
		total += r.TotalUnits
	}
	c.JSON(http.StatusOK, gin.H{
		"products":    rows,
		"count":       len(rows),
		"total_units": total,
	})
}

// GetLowStockReport возвращает продукты, которых выпущено меньше порога
// GET /api/v1/reports/low-stock?manufacturer_id=xxx&threshold=100
func (pc *ProductionController) GetLowStockReport(c *gin.Context) {
	manufacturerID, ok := queryManufacturer(c)
	if !ok {
		return
	}
	threshold, err := strconv.Atoi(c.DefaultQuery("threshold", strconv.Itoa(services.DefaultLowStockThreshold)))
	if err != nil || threshold <= 0 {
		badRequest(c, "threshold должен быть положительным целым числом")
		return
	}
	rows, err := pc.batches.LowStockReport(c.Request.Context(), manufacturerID, threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products":  rows,
		"count":     len(rows),
		"threshold": threshold,
	})
}
