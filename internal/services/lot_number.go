package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mfgcore/server/internal/models"
	"mfgcore/server/internal/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// LotNumberGenerator выдает номер лота готовой продукции. Вызывается один раз на коммит.
type LotNumberGenerator interface {
	NextLotNumber(ctx context.Context, tx *gorm.DB, product models.ProductType, manufacturerID string) (string, error)
}

// FormatProductLotNumber собирает номер лота: <product_code>-<manufacturer>-B<seq>
func FormatProductLotNumber(productCode, manufacturerID string, seq int64) string {
	return fmt.Sprintf("%s-%s-B%04d", productCode, manufacturerID, seq)
}

func productLotPrefix(productCode, manufacturerID string) string {
	return productCode + "-" + manufacturerID + "-B"
}

// SequenceLotNumbers берет следующий номер после наибольшего выпущенного внутри транзакции коммита
type SequenceLotNumbers struct{}

func (SequenceLotNumbers) NextLotNumber(ctx context.Context, tx *gorm.DB, product models.ProductType, manufacturerID string) (string, error) {
	last, err := lastSequence(tx, product, manufacturerID)
	if err != nil {
		return "", err
	}
	return FormatProductLotNumber(product.ProductCode, manufacturerID, last+1), nil
}

// lastSequence возвращает наибольший порядковый номер среди выпущенных партий продукта.
// Номера идут с пропусками: откат коммита не возвращает значение счетчика Redis.
func lastSequence(tx *gorm.DB, product models.ProductType, manufacturerID string) (int64, error) {
	prefix := productLotPrefix(product.ProductCode, manufacturerID)
	var numbers []string
	if err := tx.Model(&models.ProductBatch{}).
		Where("product_type_id = ? AND manufacturer_id = ?", product.ID, manufacturerID).
		Pluck("product_lot_number", &numbers).Error; err != nil {
		return 0, storageError("чтение номеров партий", err)
	}

	var last int64
	for _, n := range numbers {
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimPrefix(n, prefix), 10, 64)
		if err != nil {
			continue
		}
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

// RedisLotNumbers берет порядковый номер из счетчика Redis.
// Пустой счетчик инициализируется наибольшим номером в БД, отставший счетчик догоняет БД.
// При недоступности Redis работает fallback.
type RedisLotNumbers struct {
	redis    *utils.RedisClient
	fallback LotNumberGenerator
}

// NewRedisLotNumbers создает генератор на Redis с fallback на БД
func NewRedisLotNumbers(redis *utils.RedisClient) *RedisLotNumbers {
	return &RedisLotNumbers{redis: redis, fallback: SequenceLotNumbers{}}
}

func lotSequenceKey(productTypeID uint, manufacturerID string) string {
	return fmt.Sprintf("mfgcore:lotseq:%d:%s", productTypeID, manufacturerID)
}

func (g *RedisLotNumbers) NextLotNumber(ctx context.Context, tx *gorm.DB, product models.ProductType, manufacturerID string) (string, error) {
	if g.redis == nil {
		return g.fallback.NextLotNumber(ctx, tx, product, manufacturerID)
	}

	last, err := lastSequence(tx, product, manufacturerID)
	if err != nil {
		return "", err
	}

	key := lotSequenceKey(product.ID, manufacturerID)
	if _, err := g.redis.SetNX(ctx, key, last, 0); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("⚠️ Redis недоступен, номер лота считается по БД")
		return g.fallback.NextLotNumber(ctx, tx, product, manufacturerID)
	}
	seq, err := g.redis.Increment(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("⚠️ Redis недоступен, номер лота считается по БД")
		return g.fallback.NextLotNumber(ctx, tx, product, manufacturerID)
	}

	// Пока Redis был недоступен, номера выдавались по БД
	if seq <= last {
		log.Warn().Int64("redis_seq", seq).Int64("db_seq", last).Str("key", key).Msg("⚠️ Счетчик Redis отстал от БД, сдвигаем")
		seq, err = g.redis.IncrementBy(ctx, key, last+1-seq)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("⚠️ Redis недоступен, номер лота считается по БД")
			return g.fallback.NextLotNumber(ctx, tx, product, manufacturerID)
		}
	}
	return FormatProductLotNumber(product.ProductCode, manufacturerID, seq), nil
}
