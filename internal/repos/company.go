package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/types"
)

type CompanyRepo interface {
	Create(ctx context.Context, tx *gorm.DB, companies []*types.Company) ([]*types.Company, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Company, error)
	// GetByName matches case-insensitively; it is the dedup lookup that must
	// precede every create.
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Company, error)
	UpdateLogoURL(ctx context.Context, tx *gorm.DB, id uuid.UUID, logoURL string) error
}

type companyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompanyRepo(db *gorm.DB, baseLog *logger.Logger) CompanyRepo {
	repoLog := baseLog.With("repo", "CompanyRepo")
	return &companyRepo{db: db, log: repoLog}
}

func (r *companyRepo) Create(ctx context.Context, tx *gorm.DB, companies []*types.Company) ([]*types.Company, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(companies) == 0 {
		return []*types.Company{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

func (r *companyRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Company, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Company
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

func (r *companyRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Company, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Company
	if err := transaction.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *companyRepo) UpdateLogoURL(ctx context.Context, tx *gorm.DB, id uuid.UUID, logoURL string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Company{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"logo_url":     logoURL,
			"last_updated": time.Now().UTC(),
		}).Error
}
