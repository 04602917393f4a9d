package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const CtxManufacturerIDKey = "manufacturer_id"

// ManufacturerClaims - личность производителя в токене
type ManufacturerClaims struct {
	ManufacturerID string `json:"manufacturer_id"`
	jwt.RegisteredClaims
}

// GenerateToken выпускает токен производителя (для CLI и тестов)
func GenerateToken(secret, manufacturerID string, ttl time.Duration) (string, error) {
	claims := &ManufacturerClaims{
		ManufacturerID: manufacturerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ManufacturerIdentity читает Bearer токен и кладет manufacturer_id в контекст.
// Запрос без заголовка пропускается, битый или просроченный токен - 401.
func ManufacturerIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "Authorization должен иметь формат 'Bearer <token>'",
			})
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &ManufacturerClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("неверный метод подписи")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "Недействительный или просроченный токен",
			})
			return
		}

		claims, ok := token.Claims.(*ManufacturerClaims)
		if !ok || claims.ManufacturerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "В токене нет manufacturer_id",
			})
			return
		}

		c.Set(CtxManufacturerIDKey, claims.ManufacturerID)
		c.Next()
	}
}

// manufacturerFrom выбирает производителя: из токена, иначе из запроса.
// Несовпадение токена и тела запроса - ошибка.
func manufacturerFrom(c *gin.Context, requested string) (string, bool) {
	fromToken := c.GetString(CtxManufacturerIDKey)
	if fromToken == "" {
		return requested, true
	}
	if requested != "" && requested != fromToken {
		return "", false
	}
	return fromToken, true
}
