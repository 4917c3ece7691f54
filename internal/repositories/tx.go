package repositories

import (
	"context"

	"gorm.io/gorm"
)

// GormTransactor wraps multi-step writes in a database transaction so the
// member-count column and the roster move together or not at all.
type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) Transact(ctx context.Context, fn func(Repos) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Repos{
			Users:       NewGormUserRepository(tx),
			Groups:      NewGormGroupRepository(tx),
			Memberships: NewGormMembershipRepository(tx),
			Messages:    NewGormMessageRepository(tx),
		})
	})
}
