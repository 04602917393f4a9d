package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const EventBatchCommitted = "batch.committed"

// ConsumedLot - сколько сырья из лота ушло в партию
type ConsumedLot struct {
	LotID        uint            `json:"lot_id"`
	LotNumber    string          `json:"lot_number"`
	IngredientID string          `json:"ingredient_id"`
	QtyOz        decimal.Decimal `json:"qty_oz"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// BatchCommittedEvent отправляется подписчикам после успешного коммита партии
type BatchCommittedEvent struct {
	Type           string          `json:"type"`
	BatchID        uint            `json:"batch_id"`
	LotNumber      string          `json:"lot_number"`
	ProductTypeID  uint            `json:"product_type_id"`
	RecipeID       uint            `json:"recipe_id"`
	ManufacturerID string          `json:"manufacturer_id"`
	Units          int             `json:"units"`
	BatchCost      decimal.Decimal `json:"batch_cost"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	CreatedAt      time.Time       `json:"created_at"`
	Lots           []ConsumedLot   `json:"lots"`
}

// EventPublisher доставляет события производства во внешние системы (Kafka, WebSocket)
type EventPublisher interface {
	PublishBatchCommitted(ctx context.Context, ev BatchCommittedEvent) error
}
