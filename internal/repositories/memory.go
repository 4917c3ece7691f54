package repositories

import (
	"context"
	"sync"

	"github.com/commonroom/commonroom/internal/models"
	"github.com/commonroom/commonroom/pkg/bloom"
)

// In-memory repositories back the managers by default and in tests. All of
// them expose records in insertion order and hand out copies so callers
// cannot mutate stored state behind the repository's back.

// MemoryUserRepository is an insertion-ordered identity registry. A bloom
// filter short-circuits the common "email not registered" lookup before the
// linear scan.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	users  []models.User
	byID   map[string]int
	emails *bloom.Filter
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:   make(map[string]int),
		emails: bloom.New(1<<16, 4),
	}
}

func (r *MemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[user.ID] = len(r.users)
	r.users = append(r.users, *user)
	r.emails.Add(user.Email)
	return nil
}

func (r *MemoryUserRepository) GetByID(id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.users[idx]
	return &user, nil
}

func (r *MemoryUserRepository) GetByEmail(email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.emails.MayContain(email) {
		return nil, ErrNotFound
	}
	// First match wins.
	for i := range r.users {
		if r.users[i].Email == email {
			user := r.users[i]
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) List() ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, len(r.users))
	copy(users, r.users)
	return users, nil
}

// MemoryGroupRepository is an insertion-ordered group catalog.
type MemoryGroupRepository struct {
	mu     sync.RWMutex
	groups []models.Group
	byID   map[string]int
}

func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{
		byID: make(map[string]int),
	}
}

func (r *MemoryGroupRepository) Create(group *models.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[group.ID] = len(r.groups)
	r.groups = append(r.groups, *group)
	return nil
}

func (r *MemoryGroupRepository) GetByID(id string) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	group := r.groups[idx]
	return &group, nil
}

func (r *MemoryGroupRepository) List() ([]models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]models.Group, len(r.groups))
	copy(groups, r.groups)
	return groups, nil
}

func (r *MemoryGroupRepository) UpdateMemberCount(id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	count := r.groups[idx].MemberCount + delta
	if count < 0 {
		count = 0
	}
	r.groups[idx].MemberCount = count
	return nil
}

// MemoryMembershipRepository holds rosters keyed by group, each in join order.
type MemoryMembershipRepository struct {
	mu      sync.RWMutex
	rosters map[string][]models.Membership
}

func NewMemoryMembershipRepository() *MemoryMembershipRepository {
	return &MemoryMembershipRepository{
		rosters: make(map[string][]models.Membership),
	}
}

func (r *MemoryMembershipRepository) Add(membership *models.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rosters[membership.GroupID] = append(r.rosters[membership.GroupID], *membership)
	return nil
}

func (r *MemoryMembershipRepository) Get(groupID, userID string) (*models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.rosters[groupID] {
		if m.UserID == userID {
			membership := m
			return &membership, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryMembershipRepository) Remove(groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster := r.rosters[groupID]
	for i, m := range roster {
		if m.UserID == userID {
			r.rosters[groupID] = append(roster[:i:i], roster[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryMembershipRepository) ListByGroup(groupID string) ([]models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := r.rosters[groupID]
	out := make([]models.Membership, len(roster))
	copy(out, roster)
	return out, nil
}

func (r *MemoryMembershipRepository) ListGroupIDsByUser(userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var groupIDs []string
	for groupID, roster := range r.rosters {
		for _, m := range roster {
			if m.UserID == userID {
				groupIDs = append(groupIDs, groupID)
				break
			}
		}
	}
	return groupIDs, nil
}

// MemoryMessageRepository holds append-only message logs keyed by group.
type MemoryMessageRepository struct {
	mu   sync.RWMutex
	logs map[string][]models.Message
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		logs: make(map[string][]models.Message),
	}
}

func (r *MemoryMessageRepository) Append(message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs[message.GroupID] = append(r.logs[message.GroupID], *message)
	return nil
}

func (r *MemoryMessageRepository) ListByGroup(groupID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.logs[groupID]
	out := make([]models.Message, len(log))
	copy(out, log)
	return out, nil
}

// MemoryTransactor runs fn directly. The in-memory repositories cannot
// fail mid-sequence once the caller's preconditions hold, so there is
// nothing to roll back.
type MemoryTransactor struct {
	Repos Repos
}

func (t MemoryTransactor) Transact(_ context.Context, fn func(Repos) error) error {
	return fn(t.Repos)
}
