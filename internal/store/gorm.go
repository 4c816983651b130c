package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calcforest/calcforest/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const calculationColumns = "c.id, c.user_id, u.username, c.parent_id, c.operation, c.operand, c.result, c.created_at"

// Gorm implements the store interfaces on a gorm connection. The connection
// must be opened with TranslateError so duplicate keys are recognisable.
type Gorm struct {
	db *gorm.DB
}

var _ UserStore = (*Gorm)(nil)
var _ CalculationStore = (*Gorm)(nil)

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// --- UserStore ---------------------------------------------------------------

func (s *Gorm) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", translate(err))
	}
	return user, nil
}

func (s *Gorm) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("failed to find user: %w", translate(err))
	}
	return user, nil
}

func (s *Gorm) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("failed to find user: %w", translate(err))
	}
	return user, nil
}

// --- CalculationStore --------------------------------------------------------

func (s *Gorm) CreateCalculation(ctx context.Context, calc models.Calculation) (models.Calculation, error) {
	if calc.ID == "" {
		calc.ID = uuid.NewString()
	}
	if calc.CreatedAt.IsZero() {
		calc.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&calc).Error; err != nil {
		return models.Calculation{}, fmt.Errorf("failed to create calculation: %w", translate(err))
	}
	return calc, nil
}

func (s *Gorm) GetCalculationResult(ctx context.Context, id string) (float64, error) {
	var calc models.Calculation
	err := s.db.WithContext(ctx).
		Select("id", "result").
		Where("id = ?", id).
		Take(&calc).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find calculation: %w", translate(err))
	}
	return calc.Result, nil
}

func (s *Gorm) GetCalculation(ctx context.Context, id string) (CalculationRecord, error) {
	var record CalculationRecord
	result := s.calculations(ctx).
		Where("c.id = ?", id).
		Limit(1).
		Scan(&record)
	if result.Error != nil {
		return CalculationRecord{}, fmt.Errorf("failed to find calculation: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return CalculationRecord{}, fmt.Errorf("failed to find calculation: %w", ErrNotFound)
	}
	return record, nil
}

func (s *Gorm) ListCalculations(ctx context.Context) ([]CalculationRecord, error) {
	records := make([]CalculationRecord, 0)
	err := s.calculations(ctx).
		Order("c.created_at ASC").
		Order("c.id ASC").
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", translate(err))
	}
	return records, nil
}

func (s *Gorm) calculations(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("calculations AS c").
		Select(calculationColumns).
		Joins("JOIN users AS u ON u.id = c.user_id")
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	default:
		return err
	}
}
