package services

import (
	"context"
	"errors"

	"mfgcore/server/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Requirement - потребность в одном ингредиенте на заданный выпуск
type Requirement struct {
	IngredientID   string          `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	QtyOzPerUnit   decimal.Decimal `json:"qty_oz_per_unit"`
	TotalOz        decimal.Decimal `json:"total_oz"`
}

// RequirementService переводит рецептуру и количество единиц в потребность по ингредиентам
type RequirementService struct {
	db *gorm.DB
}

// NewRequirementService создает новый экземпляр RequirementService
func NewRequirementService(db *gorm.DB) *RequirementService {
	return &RequirementService{db: db}
}

// ResolveRequirement возвращает потребность по ингредиентам в порядке имени ингредиента
func (s *RequirementService) ResolveRequirement(ctx context.Context, recipeID uint, units int) ([]Requirement, error) {
	reqs, _, err := resolveRequirement(s.db.WithContext(ctx), recipeID, units)
	return reqs, err
}

type recipeLineRow struct {
	IngredientID   string
	IngredientName string
	QtyOzPerUnit   decimal.Decimal
}

// resolveRequirement работает на переданном соединении, чтобы подбор и коммит читали рецептуру в своей транзакции
func resolveRequirement(tx *gorm.DB, recipeID uint, units int) ([]Requirement, *models.RecipePlan, error) {
	if units <= 0 {
		return nil, nil, newEngineError(KindInvalidQuantity, "количество единиц должно быть больше нуля, получено %d", units)
	}

	var plan models.RecipePlan
	if err := tx.Preload("ProductType").First(&plan, "id = ?", recipeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newEngineError(KindInvalidRecipe, "рецептура %d не найдена", recipeID)
		}
		return nil, nil, storageError("загрузка рецептуры", err)
	}

	var rows []recipeLineRow
	if err := tx.Table("recipe_plan_items AS rpi").
		Select("rpi.ingredient_id AS ingredient_id, COALESCE(i.name, rpi.ingredient_id) AS ingredient_name, rpi.qty_oz_per_unit AS qty_oz_per_unit").
		Joins("LEFT JOIN ingredients i ON i.id = rpi.ingredient_id").
		Where("rpi.recipe_plan_id = ?", recipeID).
		Order("ingredient_name ASC, rpi.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, nil, storageError("загрузка строк рецептуры", err)
	}
	if len(rows) == 0 {
		return nil, nil, newEngineError(KindInvalidRecipe, "рецептура %d не содержит ингредиентов", recipeID)
	}

	multiplier := decimal.NewFromInt(int64(units))
	reqs := make([]Requirement, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if !row.QtyOzPerUnit.IsPositive() {
			return nil, nil, newEngineError(KindInvalidRecipe, "рецептура %d: некорректный расход ингредиента %s", recipeID, row.IngredientID)
		}
		// Повторная строка того же ингредиента суммируется в первую
		if i, ok := index[row.IngredientID]; ok {
			reqs[i].QtyOzPerUnit = reqs[i].QtyOzPerUnit.Add(row.QtyOzPerUnit)
			reqs[i].TotalOz = reqs[i].QtyOzPerUnit.Mul(multiplier)
			continue
		}
		index[row.IngredientID] = len(reqs)
		reqs = append(reqs, Requirement{
			IngredientID:   row.IngredientID,
			IngredientName: row.IngredientName,
			QtyOzPerUnit:   row.QtyOzPerUnit,
			TotalOz:        row.QtyOzPerUnit.Mul(multiplier),
		})
	}

	return reqs, &plan, nil
}
