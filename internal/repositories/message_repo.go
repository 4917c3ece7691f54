package repositories

import (
	"gorm.io/gorm"

	"github.com/commonroom/commonroom/internal/models"
)

// GormMessageRepository is the Postgres-backed message log.
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Append(message *models.Message) error {
	return r.db.Create(message).Error
}

func (r *GormMessageRepository) ListByGroup(groupID string) ([]models.Message, error) {
	var log []models.Message
	// Message IDs are monotonic, so ordering by ID preserves insertion order.
	err := r.db.Where("group_id = ?", groupID).Order("id").Find(&log).Error
	if err != nil {
		return nil, err
	}
	return log, nil
}
