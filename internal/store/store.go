// Package store is the persistence layer. Services depend on the interfaces
// here; Gorm is the only implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/calcforest/calcforest/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("duplicate key")
	ErrInvalidReference = errors.New("referenced record does not exist")
)

// CalculationRecord is a calculation row joined with its owner's username.
type CalculationRecord struct {
	ID        string
	UserID    string
	Username  string
	ParentID  *string
	Operation *string
	Operand   float64
	Result    float64
	CreatedAt time.Time
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// CalculationStore persists calculation nodes. Rows are never updated or
// deleted.
type CalculationStore interface {
	CreateCalculation(ctx context.Context, calc models.Calculation) (models.Calculation, error)
	// GetCalculationResult loads only the result of a node; it is the single
	// read made before appending an operation.
	GetCalculationResult(ctx context.Context, id string) (float64, error)
	GetCalculation(ctx context.Context, id string) (CalculationRecord, error)
	// ListCalculations returns every node ordered by creation time in one
	// query.
	ListCalculations(ctx context.Context) ([]CalculationRecord, error)
}
