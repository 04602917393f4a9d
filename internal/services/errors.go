package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrorKind - категория ошибки производственного ядра
type ErrorKind string

const (
	KindInvalidRecipe         ErrorKind = "InvalidRecipe"
	KindInvalidQuantity       ErrorKind = "InvalidQuantity"
	KindNoAvailableLots       ErrorKind = "NoAvailableLots"
	KindInsufficientStock     ErrorKind = "InsufficientStock"
	KindConcurrentStockChange ErrorKind = "ConcurrentStockChange"
	KindLotNumberConflict     ErrorKind = "LotNumberConflict"
	KindInvalidTraceTarget    ErrorKind = "InvalidTraceTarget"
	KindStagingMismatch       ErrorKind = "StagingMismatch"
	KindNotFound              ErrorKind = "NotFound"
	KindStorageFailure        ErrorKind = "StorageFailure"
)

// EngineError - типизированная ошибка с деталями для вызывающей стороны
type EngineError struct {
	Kind         ErrorKind
	Detail       string
	IngredientID string
	LotID        uint
	Shortage     decimal.Decimal
	EligibleLots int
	Err          error
}

func (e *EngineError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по категории, поэтому errors.Is(err, ErrInsufficientStock) работает для любой нехватки
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidRecipe         = &EngineError{Kind: KindInvalidRecipe}
	ErrInvalidQuantity       = &EngineError{Kind: KindInvalidQuantity}
	ErrNoAvailableLots       = &EngineError{Kind: KindNoAvailableLots}
	ErrInsufficientStock     = &EngineError{Kind: KindInsufficientStock}
	ErrConcurrentStockChange = &EngineError{Kind: KindConcurrentStockChange}
	ErrLotNumberConflict     = &EngineError{Kind: KindLotNumberConflict}
	ErrInvalidTraceTarget    = &EngineError{Kind: KindInvalidTraceTarget}
	ErrStagingMismatch       = &EngineError{Kind: KindStagingMismatch}
	ErrNotFound              = &EngineError{Kind: KindNotFound}
	ErrStorageFailure        = &EngineError{Kind: KindStorageFailure}
)

// KindOf возвращает категорию ошибки или пустую строку для посторонних ошибок
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

func newEngineError(kind ErrorKind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// storageError оборачивает ошибку БД. Уже типизированные ошибки пропускаются как есть.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Kind: KindStorageFailure, Detail: op, Err: err}
}

// isUniqueConstraintError проверяет, является ли ошибка нарушением уникального ограничения
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "23505")
}
