package repositories

import (
	"context"
	"errors"

	"github.com/commonroom/commonroom/internal/models"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("record not found")

// UserRepository holds the identity registry. The registry never deletes.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	List() ([]models.User, error)
}

// GroupRepository holds the group catalog in insertion order.
type GroupRepository interface {
	Create(group *models.Group) error
	GetByID(id string) (*models.Group, error)
	List() ([]models.Group, error)
	// UpdateMemberCount applies delta to the stored member count, floored at 0.
	UpdateMemberCount(id string, delta int) error
}

// MembershipRepository holds per-group rosters in insertion order.
type MembershipRepository interface {
	Add(membership *models.Membership) error
	Get(groupID, userID string) (*models.Membership, error)
	// Remove deletes the (groupID, userID) record; removing an absent record
	// is a no-op, not an error.
	Remove(groupID, userID string) error
	ListByGroup(groupID string) ([]models.Membership, error)
	ListGroupIDsByUser(userID string) ([]string, error)
}

// MessageRepository holds per-group message logs as append-only sequences.
type MessageRepository interface {
	Append(message *models.Message) error
	ListByGroup(groupID string) ([]models.Message, error)
}

// Repos bundles the ports handed to a transactional closure.
type Repos struct {
	Users       UserRepository
	Groups      GroupRepository
	Memberships MembershipRepository
	Messages    MessageRepository
}

// Transactor runs fn atomically on backends that support transactions:
// either every write in fn lands or none does.
type Transactor interface {
	Transact(ctx context.Context, fn func(Repos) error) error
}
