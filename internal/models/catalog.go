package models

import "time"

// Manufacturer представляет производителя (идентичность приходит из токена)
type Manufacturer struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (Manufacturer) TableName() string {
	return "manufacturers"
}

// Supplier представляет поставщика сырья
type Supplier struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (Supplier) TableName() string {
	return "suppliers"
}

// Ingredient - сырье или составной ингредиент
type Ingredient struct {
	ID         string `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name       string `json:"name" gorm:"type:varchar(255);not null;index"`
	IsCompound bool   `json:"is_compound" gorm:"default:false"`

	Materials []IngredientMaterial `json:"materials,omitempty" gorm:"foreignKey:ParentIngredientID"`
}

// TableName указывает имя таблицы
func (Ingredient) TableName() string {
	return "ingredients"
}

// IngredientMaterial - строка состава составного ингредиента.
// Ядро подбора лотов состав не разворачивает.
type IngredientMaterial struct {
	ID                   uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	ParentIngredientID   string      `json:"parent_ingredient_id" gorm:"type:varchar(64);not null;index"`
	MaterialIngredientID string      `json:"material_ingredient_id" gorm:"type:varchar(64);not null;index"`
	Material             *Ingredient `gorm:"foreignKey:MaterialIngredientID" json:"material,omitempty"`
}

// TableName указывает имя таблицы
func (IngredientMaterial) TableName() string {
	return "ingredient_materials"
}

// ProductType - продукт производителя, для которого существуют рецептуры
type ProductType struct {
	ID                 uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	ManufacturerID     string `json:"manufacturer_id" gorm:"type:varchar(64);not null;index"`
	ProductCode        string `json:"product_code" gorm:"type:varchar(64);not null"`
	Name               string `json:"name" gorm:"type:varchar(255);not null"`
	StandardBatchUnits int    `json:"standard_batch_units" gorm:"default:0"`
}

// TableName указывает имя таблицы
func (ProductType) TableName() string {
	return "product_types"
}
