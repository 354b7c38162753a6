package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/types"
)

var ErrNotFound = errors.New("record not found")

type ValueProfileRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ValueProfile, error)
	Create(ctx context.Context, tx *gorm.DB, profiles []*types.ValueProfile) ([]*types.ValueProfile, error)
}

type valueProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewValueProfileRepo(db *gorm.DB, baseLog *logger.Logger) ValueProfileRepo {
	repoLog := baseLog.With("repo", "ValueProfileRepo")
	return &valueProfileRepo{db: db, log: repoLog}
}

func (r *valueProfileRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ValueProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.ValueProfile
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *valueProfileRepo) Create(ctx context.Context, tx *gorm.DB, profiles []*types.ValueProfile) ([]*types.ValueProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(profiles) == 0 {
		return []*types.ValueProfile{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}
