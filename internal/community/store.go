package community

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commonroom/commonroom/internal/models"
	"github.com/commonroom/commonroom/internal/repositories"
	"github.com/commonroom/commonroom/internal/session"
	"github.com/commonroom/commonroom/internal/utils"
	"github.com/commonroom/commonroom/pkg/ids"
	logger "github.com/commonroom/commonroom/middleware/log"
)

// Soft failures: the operation no-ops with state unchanged and the consumer
// renders a transient notice.
var (
	ErrUnauthenticated = errors.New("not logged in")
	ErrGroupNotFound   = errors.New("group not found")
	ErrAlreadyMember   = errors.New("already a member of this group")
	ErrNoGroupSelected = errors.New("no group selected")
	ErrNameRequired    = errors.New("group name required")
	ErrEmptyMessage    = errors.New("message text required")
)

// EventType names what changed in a notification.
type EventType string

const (
	EventGroupCreated     EventType = "group_created"
	EventGroupJoined      EventType = "group_joined"
	EventGroupLeft        EventType = "group_left"
	EventMessageSent      EventType = "message_sent"
	EventSelectionChanged EventType = "selection_changed"
	EventFilterChanged    EventType = "filter_changed"
	EventIdentityChanged  EventType = "identity_changed"
)

// Event describes a single successful mutation.
type Event struct {
	Type    EventType       `json:"type"`
	GroupID string          `json:"group_id,omitempty"`
	Message *models.Message `json:"message,omitempty"`
}

// Snapshot is the immutable state view handed to subscribers. All slices
// are in insertion order; no sorting is applied anywhere.
type Snapshot struct {
	Groups         []models.Group      `json:"groups"`
	FilteredGroups []models.Group      `json:"filtered_groups"`
	UserGroups     []models.Group      `json:"user_groups"`
	ActiveGroup    *models.Group       `json:"active_group,omitempty"`
	Members        []models.Membership `json:"members"`
	Messages       []models.Message    `json:"messages"`
	FilterQuery    string              `json:"filter_query"`
}

// Listener receives the post-mutation snapshot and the event that caused it.
type Listener func(snapshot Snapshot, event Event)

// Store owns the group catalog, rosters, message logs, the search filter
// and the active-group selection. Mutations validate preconditions against
// the session's active identity, update the owned state and notify
// subscribers; no intermediate state is observable.
type Store struct {
	groups      repositories.GroupRepository
	memberships repositories.MembershipRepository
	messages    repositories.MessageRepository
	tx          repositories.Transactor
	session     *session.Manager
	log         *logger.Logger
	msgIDs      *ids.Generator

	mu            sync.Mutex
	filterQuery   string
	activeGroupID string
	subscribers   map[int]Listener
	nextSubID     int

	unsubscribeSession func()
}

// Option configures a Store.
type Option func(*Store)

// WithTransactor routes multi-step writes through tx so the member count
// and the roster move together or not at all.
func WithTransactor(tx repositories.Transactor) Option {
	return func(s *Store) { s.tx = tx }
}

func NewStore(
	groups repositories.GroupRepository,
	memberships repositories.MembershipRepository,
	messages repositories.MessageRepository,
	sess *session.Manager,
	log *logger.Logger,
	opts ...Option,
) *Store {
	s := &Store{
		groups:      groups,
		memberships: memberships,
		messages:    messages,
		session:     sess,
		log:         log,
		msgIDs:      ids.New(),
		subscribers: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = repositories.MemoryTransactor{Repos: repositories.Repos{
			Groups:      groups,
			Memberships: memberships,
			Messages:    messages,
		}}
	}

	// An identity change invalidates the user-groups view.
	s.unsubscribeSession = sess.Subscribe(func(*models.Identity) {
		s.mu.Lock()
		snapshot := s.buildSnapshotLocked()
		listeners := s.snapshotListenersLocked()
		s.mu.Unlock()
		notify(listeners, snapshot, Event{Type: EventIdentityChanged})
	})

	return s
}

// Close detaches the store from the session manager.
func (s *Store) Close() {
	if s.unsubscribeSession != nil {
		s.unsubscribeSession()
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Snapshot returns the current state view.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildSnapshotLocked()
}

// CreateGroup allocates a new group with the acting identity as its only,
// admin, member and makes it the selected group.
func (s *Store) CreateGroup(ctx context.Context, name, description string, tags []string) (*models.Group, error) {
	identity := s.session.Active()
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	now := time.Now()
	group := &models.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Tags:        models.TagList(tags),
		CreatedBy:   identity.ID,
		MemberCount: 1,
		AvatarURL:   utils.GroupAvatarURL(name),
		CreatedAt:   now,
	}

	s.mu.Lock()
	err := s.tx.Transact(ctx, func(r repositories.Repos) error {
		if err := r.Groups.Create(group); err != nil {
			return err
		}
		return r.Memberships.Add(&models.Membership{
			GroupID:   group.ID,
			UserID:    identity.ID,
			Username:  identity.Username,
			AvatarURL: identity.AvatarURL,
			IsAdmin:   true,
			JoinedAt:  now,
		})
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.activeGroupID = group.ID
	snapshot := s.buildSnapshotLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	s.log.WithContext(ctx).Info("group created",
		zap.String("group_id", group.ID),
		zap.String("name", group.Name),
		zap.String("created_by", identity.ID))

	notify(listeners, snapshot, Event{Type: EventGroupCreated, GroupID: group.ID})
	created := *group
	return &created, nil
}

// JoinGroup appends a non-admin roster record for the acting identity and
// makes the group the selected one.
func (s *Store) JoinGroup(ctx context.Context, groupID string) error {
	identity := s.session.Active()
	if identity == nil {
		return ErrUnauthenticated
	}

	s.mu.Lock()
	if _, err := s.groups.GetByID(groupID); err != nil {
		s.mu.Unlock()
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	if _, err := s.memberships.Get(groupID, identity.ID); err == nil {
		s.mu.Unlock()
		return ErrAlreadyMember
	} else if !errors.Is(err, repositories.ErrNotFound) {
		s.mu.Unlock()
		return err
	}

	err := s.tx.Transact(ctx, func(r repositories.Repos) error {
		if err := r.Memberships.Add(&models.Membership{
			GroupID:   groupID,
			UserID:    identity.ID,
			Username:  identity.Username,
			AvatarURL: identity.AvatarURL,
			IsAdmin:   false,
			JoinedAt:  time.Now(),
		}); err != nil {
			return err
		}
		return r.Groups.UpdateMemberCount(groupID, 1)
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.activeGroupID = groupID
	snapshot := s.buildSnapshotLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	s.log.WithContext(ctx).Info("group joined",
		zap.String("group_id", groupID),
		zap.String("user_id", identity.ID))

	notify(listeners, snapshot, Event{Type: EventGroupJoined, GroupID: groupID})
	return nil
}

// LeaveGroup removes the acting identity's roster record. The member count
// only moves when a record was actually removed, keeping it in lockstep
// with the roster. Leaving the selected group deselects it.
func (s *Store) LeaveGroup(ctx context.Context, groupID string) error {
	identity := s.session.Active()
	if identity == nil {
		return ErrUnauthenticated
	}

	s.mu.Lock()
	if _, err := s.groups.GetByID(groupID); err != nil {
		s.mu.Unlock()
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	}

	_, err := s.memberships.Get(groupID, identity.ID)
	wasMember := err == nil
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.mu.Unlock()
		return err
	}
	if wasMember {
		err := s.tx.Transact(ctx, func(r repositories.Repos) error {
			if err := r.Memberships.Remove(groupID, identity.ID); err != nil {
				return err
			}
			return r.Groups.UpdateMemberCount(groupID, -1)
		})
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if s.activeGroupID == groupID {
		s.activeGroupID = ""
	}
	snapshot := s.buildSnapshotLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	s.log.WithContext(ctx).Info("group left",
		zap.String("group_id", groupID),
		zap.String("user_id", identity.ID),
		zap.Bool("was_member", wasMember))

	notify(listeners, snapshot, Event{Type: EventGroupLeft, GroupID: groupID})
	return nil
}

// SelectGroup changes the active-group selection; an empty or unknown id
// clears it. Selecting reloads the group's roster and message log into the
// snapshot.
func (s *Store) SelectGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	if groupID != "" {
		if _, err := s.groups.GetByID(groupID); err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				s.mu.Unlock()
				return err
			}
			groupID = ""
		}
	}
	s.activeGroupID = groupID
	snapshot := s.buildSnapshotLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot, Event{Type: EventSelectionChanged, GroupID: groupID})
	return nil
}

// SendMessage appends a message from the acting identity to the selected
// group's log.
func (s *Store) SendMessage(ctx context.Context, text string) (*models.Message, error) {
	return s.send(ctx, "", text)
}

// SendMessageTo appends a message to the given group's log without going
// through the selection, so concurrent senders cannot redirect each other.
func (s *Store) SendMessageTo(ctx context.Context, groupID, text string) (*models.Message, error) {
	if groupID == "" {
		return nil, ErrGroupNotFound
	}
	return s.send(ctx, groupID, text)
}

// send resolves an empty groupID to the current selection under the lock.
func (s *Store) send(ctx context.Context, groupID, text string) (*models.Message, error) {
	identity := s.session.Active()
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if groupID == "" {
		if s.activeGroupID == "" {
			s.mu.Unlock()
			return nil, ErrNoGroupSelected
		}
		groupID = s.activeGroupID
	} else if _, err := s.groups.GetByID(groupID); err != nil {
		s.mu.Unlock()
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	message := &models.Message{
		ID:         s.msgIDs.NextString(),
		GroupID:    groupID,
		UserID:     identity.ID,
		Username:   identity.Username,
		UserAvatar: identity.AvatarURL,
		Text:       text,
		Timestamp:  time.Now(),
	}
	if err := s.messages.Append(message); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snapshot := s.buildSnapshotLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot, Event{Type: EventMessageSent, GroupID: message.GroupID, Message: message})
	sent := *message
	return &sent, nil
}

// Search returns the catalog filtered by query without touching the
// store-wide filter. Concurrent callers each get their own view.
func (s *Store) Search(query string) []models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.groups.List()
	if err != nil {
		s.log.Error("list groups", zap.Error(err))
		return nil
	}
	return filterGroups(groups, query)
}

// SetFilterQuery replaces the filter and recomputes the filtered-groups
// view: case-insensitive substring match on name, description or any tag.
func (s *Store) SetFilterQuery(ctx context.Context, query string) error {
	s.mu.Lock()
	s.filterQuery = query
	snapshot := s.buildSnapshotLocked()
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot, Event{Type: EventFilterChanged})
	return nil
}

// buildSnapshotLocked recomputes every derived view from the repositories.
// Must be called with the lock held.
func (s *Store) buildSnapshotLocked() Snapshot {
	snapshot := Snapshot{FilterQuery: s.filterQuery}

	groups, err := s.groups.List()
	if err != nil {
		s.log.Error("list groups", zap.Error(err))
		return snapshot
	}
	snapshot.Groups = groups
	snapshot.FilteredGroups = filterGroups(groups, s.filterQuery)

	if identity := s.session.Active(); identity != nil {
		memberOf, err := s.memberships.ListGroupIDsByUser(identity.ID)
		if err != nil {
			s.log.Error("list user memberships", zap.Error(err))
		} else {
			ids := make(map[string]bool, len(memberOf))
			for _, id := range memberOf {
				ids[id] = true
			}
			// Catalog order, not membership order.
			for _, g := range groups {
				if ids[g.ID] {
					snapshot.UserGroups = append(snapshot.UserGroups, g)
				}
			}
		}
	}

	if s.activeGroupID != "" {
		for i := range groups {
			if groups[i].ID == s.activeGroupID {
				active := groups[i]
				snapshot.ActiveGroup = &active
				break
			}
		}
		if snapshot.Members, err = s.memberships.ListByGroup(s.activeGroupID); err != nil {
			s.log.Error("list roster", zap.Error(err))
		}
		if snapshot.Messages, err = s.messages.ListByGroup(s.activeGroupID); err != nil {
			s.log.Error("list messages", zap.Error(err))
		}
	}

	return snapshot
}

// snapshotListenersLocked must be called with the lock held.
func (s *Store) snapshotListenersLocked() []Listener {
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify(listeners []Listener, snapshot Snapshot, event Event) {
	for _, fn := range listeners {
		fn(snapshot, event)
	}
}

func filterGroups(groups []models.Group, query string) []models.Group {
	if query == "" {
		// A fresh slice, never the caller's backing array.
		return append([]models.Group(nil), groups...)
	}
	needle := strings.ToLower(query)

	var filtered []models.Group
	for _, g := range groups {
		if matchesGroup(g, needle) {
			filtered = append(filtered, g)
		}
	}
	return filtered
}

func matchesGroup(g models.Group, needle string) bool {
	if strings.Contains(strings.ToLower(g.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(g.Description), needle) {
		return true
	}
	for _, tag := range g.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
