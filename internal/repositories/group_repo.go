package repositories

import (
	"gorm.io/gorm"

	"github.com/commonroom/commonroom/internal/models"
)

// GormGroupRepository is the Postgres-backed group catalog.
type GormGroupRepository struct {
	db *gorm.DB
}

func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

func (r *GormGroupRepository) Create(group *models.Group) error {
	return r.db.Create(group).Error
}

func (r *GormGroupRepository) GetByID(id string) (*models.Group, error) {
	var group models.Group
	if err := r.db.First(&group, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (r *GormGroupRepository) List() ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.Order("created_at").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *GormGroupRepository) UpdateMemberCount(id string, delta int) error {
	res := r.db.Model(&models.Group{}).
		Where("id = ?", id).
		Update("member_count", gorm.Expr("GREATEST(member_count + ?, 0)", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
