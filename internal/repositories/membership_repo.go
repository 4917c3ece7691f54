package repositories

import (
	"gorm.io/gorm"

	"github.com/commonroom/commonroom/internal/models"
)

// GormMembershipRepository is the Postgres-backed roster store. The
// (group_id, user_id) unique index enforces membership uniqueness at the
// storage layer as well.
type GormMembershipRepository struct {
	db *gorm.DB
}

func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

func (r *GormMembershipRepository) Add(membership *models.Membership) error {
	return r.db.Create(membership).Error
}

func (r *GormMembershipRepository) Get(groupID, userID string) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&membership).Error
	if err != nil {
		return nil, translate(err)
	}
	return &membership, nil
}

func (r *GormMembershipRepository) Remove(groupID, userID string) error {
	return r.db.Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.Membership{}).Error
}

func (r *GormMembershipRepository) ListByGroup(groupID string) ([]models.Membership, error) {
	var roster []models.Membership
	err := r.db.Where("group_id = ?", groupID).Order("joined_at").Find(&roster).Error
	if err != nil {
		return nil, err
	}
	return roster, nil
}

func (r *GormMembershipRepository) ListGroupIDsByUser(userID string) ([]string, error) {
	var groupIDs []string
	err := r.db.Model(&models.Membership{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &groupIDs).Error
	if err != nil {
		return nil, err
	}
	return groupIDs, nil
}
