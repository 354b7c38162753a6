package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/types"
)

type RecommendationRepo interface {
	// CreateBatch inserts one full recommendation set in a single call,
	// preserving Position order.
	CreateBatch(ctx context.Context, tx *gorm.DB, recs []*types.Recommendation) ([]*types.Recommendation, error)
	GetByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) ([]*types.Recommendation, error)
	CountByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) (int64, error)
	// DeleteByProfileID clears a profile's batch so a refreshed run replaces
	// it instead of stacking on top.
	DeleteByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) error
	UpdateFeedback(ctx context.Context, tx *gorm.DB, id uuid.UUID, feedback string) error
}

type recommendationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecommendationRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationRepo {
	repoLog := baseLog.With("repo", "RecommendationRepo")
	return &recommendationRepo{db: db, log: repoLog}
}

func (r *recommendationRepo) CreateBatch(ctx context.Context, tx *gorm.DB, recs []*types.Recommendation) ([]*types.Recommendation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(recs) == 0 {
		return []*types.Recommendation{}, nil
	}

	if err := transaction.WithContext(ctx).Omit("Company").Create(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *recommendationRepo) GetByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) ([]*types.Recommendation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Recommendation
	if err := transaction.WithContext(ctx).
		Where("value_profile_id = ?", profileID).
		Order("position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *recommendationRepo) CountByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Recommendation{}).
		Where("value_profile_id = ?", profileID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *recommendationRepo) DeleteByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("value_profile_id = ?", profileID).
		Delete(&types.Recommendation{}).Error
}

func (r *recommendationRepo) UpdateFeedback(ctx context.Context, tx *gorm.DB, id uuid.UUID, feedback string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Recommendation{}).
		Where("id = ?", id).
		Update("feedback", feedback)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
