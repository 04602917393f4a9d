package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductBatch - выпущенная партия готовой продукции. После создания не изменяется.
type ProductBatch struct {
	ID               uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductTypeID    uint            `json:"product_type_id" gorm:"not null;index"`
	ProductType      *ProductType    `gorm:"foreignKey:ProductTypeID" json:"product_type,omitempty"`
	RecipePlanID     uint            `json:"recipe_plan_id" gorm:"not null;index"`
	ManufacturerID   string          `json:"manufacturer_id" gorm:"type:varchar(64);not null;index"`
	ProductLotNumber string          `json:"product_lot_number" gorm:"type:varchar(200);uniqueIndex;not null"`
	ProducedUnits    int             `json:"produced_units" gorm:"not null"`
	BatchCost        decimal.Decimal `json:"batch_cost" gorm:"type:decimal(14,4);not null"`
	UnitCost         decimal.Decimal `json:"unit_cost" gorm:"type:decimal(14,4);not null"`
	CreatedAt        time.Time       `json:"created_at" gorm:"index"`

	Consumption []ConsumptionLink `json:"consumption,omitempty" gorm:"foreignKey:ProductBatchID"`
}

// TableName указывает имя таблицы
func (ProductBatch) TableName() string {
	return "product_batches"
}

// ConsumptionLink фиксирует, сколько сырья из лота ушло в партию. Только вставка.
type ConsumptionLink struct {
	ID              uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductBatchID  uint            `json:"product_batch_id" gorm:"not null;index"`
	IngredientLotID uint            `json:"ingredient_batch_id" gorm:"column:ingredient_batch_id;not null;index"`
	QtyOz           decimal.Decimal `json:"qty_oz" gorm:"type:decimal(12,4);not null"`
}

// TableName указывает имя таблицы
func (ConsumptionLink) TableName() string {
	return "product_batch_consumption"
}
