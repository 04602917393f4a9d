package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IngredientLot представляет партию сырья от поставщика с отслеживанием срока годности
type IngredientLot struct {
	ID              uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	IngredientID    string          `json:"ingredient_id" gorm:"type:varchar(64);not null;index"`
	Ingredient      *Ingredient     `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
	SupplierID      string          `json:"supplier_id" gorm:"type:varchar(64);not null;index"`
	SupplierBatchID string          `json:"supplier_batch_id" gorm:"type:varchar(64);not null"`
	LotNumber       string          `json:"lot_number" gorm:"type:varchar(200);uniqueIndex;not null"`
	QuantityOz      decimal.Decimal `json:"quantity_oz" gorm:"type:decimal(12,4);not null"`
	OnHandOz        decimal.Decimal `json:"on_hand_oz" gorm:"type:decimal(12,4);not null"` // Уменьшается только при коммите партии
	UnitCost        decimal.Decimal `json:"unit_cost" gorm:"type:decimal(12,4);not null"`  // $/oz
	ExpirationDate  time.Time       `json:"expiration_date" gorm:"type:date;not null;index"`
	ReceivedAt      time.Time       `json:"received_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (IngredientLot) TableName() string {
	return "ingredient_batches"
}

// BeforeCreate заполняет остаток и номер лота при приемке
func (l *IngredientLot) BeforeCreate(tx *gorm.DB) error {
	if l.OnHandOz.IsZero() {
		l.OnHandOz = l.QuantityOz
	}
	if l.LotNumber == "" {
		l.LotNumber = IngredientLotNumber(l.IngredientID, l.SupplierID, l.SupplierBatchID)
	}
	return nil
}

// IngredientLotNumber собирает номер лота сырья: <ingredient>-<supplier>-<supplier batch>
func IngredientLotNumber(ingredientID, supplierID, supplierBatchID string) string {
	return fmt.Sprintf("%s-%s-%s", ingredientID, supplierID, supplierBatchID)
}

// IsEligible сообщает, может ли лот участвовать в FEFO-подборе на дату today
func (l IngredientLot) IsEligible(today time.Time) bool {
	return l.OnHandOz.IsPositive() && !l.ExpirationDate.Before(today)
}

// StagedAllocation - строка черновика списания, привязанная к сессии
type StagedAllocation struct {
	ID              uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionToken    string          `json:"session_token" gorm:"type:varchar(64);not null;index"`
	IngredientLotID uint            `json:"ingredient_batch_id" gorm:"column:ingredient_batch_id;not null;index"`
	IngredientLot   *IngredientLot  `gorm:"foreignKey:IngredientLotID" json:"ingredient_batch,omitempty"`
	QtyOz           decimal.Decimal `json:"qty_oz" gorm:"type:decimal(12,4);not null"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (StagedAllocation) TableName() string {
	return "staging_consumption"
}
