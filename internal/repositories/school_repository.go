package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"elimu_backend/internal/models"
)

type SchoolRepository interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindByAdminID(ctx context.Context, adminID string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	Save(ctx context.Context, school *models.School) error
	CountMembers(ctx context.Context, schoolID string) (int64, error)

	// ExpireCascade applies, in one database transaction: adminFields to the
	// admin account, memberFields to every other member, and marks the school
	// itself expired. Rerunning after a partial failure is safe because every
	// write is an idempotent absolute update.
	ExpireCascade(ctx context.Context, school *models.School, adminFields, memberFields map[string]interface{}) error
}

type gormSchoolRepository struct {
	db *gorm.DB
}

func NewSchoolRepository(db *gorm.DB) SchoolRepository {
	return &gormSchoolRepository{db: db}
}

func (r *gormSchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	var school models.School
	err := r.db.WithContext(ctx).First(&school, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &school, nil
}

func (r *gormSchoolRepository) FindByAdminID(ctx context.Context, adminID string) (*models.School, error) {
	var school models.School
	err := r.db.WithContext(ctx).First(&school, "admin_id = ?", adminID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &school, nil
}

func (r *gormSchoolRepository) Create(ctx context.Context, school *models.School) error {
	return r.db.WithContext(ctx).Create(school).Error
}

func (r *gormSchoolRepository) Save(ctx context.Context, school *models.School) error {
	return r.db.WithContext(ctx).Save(school).Error
}

func (r *gormSchoolRepository) CountMembers(ctx context.Context, schoolID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("school_id = ?", schoolID).
		Count(&count).Error
	return count, err
}

func (r *gormSchoolRepository) ExpireCascade(ctx context.Context, school *models.School, adminFields, memberFields map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", school.AdminID).
			Updates(adminFields).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.User{}).
			Where("school_id = ? AND id <> ?", school.ID, school.AdminID).
			Updates(memberFields).Error; err != nil {
			return err
		}

		return tx.Model(&models.School{}).
			Where("id = ?", school.ID).
			Updates(map[string]interface{}{
				"status": models.SubscriptionStatusExpired,
			}).Error
	})
}
