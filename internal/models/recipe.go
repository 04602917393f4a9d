package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipePlan представляет версию рецептуры продукта (BOM)
type RecipePlan struct {
	ID            uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductTypeID uint         `json:"product_type_id" gorm:"not null;index"`
	ProductType   *ProductType `gorm:"foreignKey:ProductTypeID" json:"product_type,omitempty"`
	Name          string       `json:"name" gorm:"type:varchar(255)"`
	IsActive      bool         `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time    `json:"created_at" gorm:"autoCreateTime"`

	Items []RecipePlanItem `json:"items" gorm:"foreignKey:RecipePlanID"`
}

// TableName указывает имя таблицы
func (RecipePlan) TableName() string {
	return "recipe_plans"
}

// RecipePlanItem - расход ингредиента на единицу продукции.
// Не изменяется после того, как рецептура использована в партии.
type RecipePlanItem struct {
	ID           uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	RecipePlanID uint            `json:"recipe_plan_id" gorm:"not null;index"`
	IngredientID string          `json:"ingredient_id" gorm:"type:varchar(64);not null;index"`
	Ingredient   *Ingredient     `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
	QtyOzPerUnit decimal.Decimal `json:"qty_oz_per_unit" gorm:"type:decimal(12,4);not null"`
}

// TableName указывает имя таблицы
func (RecipePlanItem) TableName() string {
	return "recipe_plan_items"
}
