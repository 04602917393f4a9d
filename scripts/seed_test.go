package main

import (
	"context"
	"testing"
	"time"

	"mfgcore/server/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSeedDemoData_Idempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:seed_demo?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, models.AutoMigrate(db))

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	first, err := seedDemoData(context.Background(), db, now)
	require.NoError(t, err)
	second, err := seedDemoData(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var lots, items int64
	require.NoError(t, db.Model(&models.IngredientLot{}).Count(&lots).Error)
	require.NoError(t, db.Model(&models.RecipePlanItem{}).Count(&items).Error)
	assert.EqualValues(t, 5, lots)
	assert.EqualValues(t, 3, items)
}
