package api

import (
	"errors"
	"net/http"

	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var httpStatusByKind = map[services.ErrorKind]int{
	services.KindInvalidRecipe:         http.StatusBadRequest,
	services.KindInvalidQuantity:       http.StatusBadRequest,
	services.KindInvalidTraceTarget:    http.StatusBadRequest,
	services.KindNotFound:              http.StatusNotFound,
	services.KindNoAvailableLots:       http.StatusConflict,
	services.KindInsufficientStock:     http.StatusConflict,
	services.KindConcurrentStockChange: http.StatusConflict,
	services.KindLotNumberConflict:     http.StatusConflict,
	services.KindStagingMismatch:       http.StatusConflict,
	services.KindStorageFailure:        http.StatusInternalServerError,
}

// httpStatus возвращает HTTP статус для ошибки ядра
func httpStatus(err error) int {
	if status, ok := httpStatusByKind[services.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError отвечает {"error": kind, "details": ...} с деталями нехватки, если они есть
func respondError(c *gin.Context, err error) {
	status := httpStatus(err)
	kind := string(services.KindOf(err))
	if kind == "" {
		kind = string(services.KindStorageFailure)
	}

	body := gin.H{
		"error":   kind,
		"details": err.Error(),
	}
	var ee *services.EngineError
	if errors.As(err, &ee) {
		if ee.IngredientID != "" {
			body["ingredient_id"] = ee.IngredientID
		}
		if ee.LotID != 0 {
			body["lot_id"] = ee.LotID
		}
		if ee.Kind == services.KindInsufficientStock {
			body["shortage_oz"] = ee.Shortage
			body["eligible_lots"] = ee.EligibleLots
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("❌ Ошибка обработки запроса")
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest - ошибка разбора входных данных до вызова сервиса
func badRequest(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "BadRequest",
		"details": details,
	})
}
