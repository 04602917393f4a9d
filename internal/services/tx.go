package services

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// runTx выполняет fn в транзакции: любая ошибка откатывает все изменения
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// startOfDay обрезает время до полуночи UTC
func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	y, m, d := u.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
