package community

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonroom/commonroom/internal/models"
	"github.com/commonroom/commonroom/internal/repositories"
	"github.com/commonroom/commonroom/internal/session"
	logger "github.com/commonroom/commonroom/middleware/log"
)

type fixture struct {
	store       *Store
	session     *session.Manager
	memberships *repositories.MemoryMembershipRepository
	messages    *repositories.MemoryMessageRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log, err := logger.NewDevelopmentLogger()
	require.NoError(t, err)

	users := repositories.NewMemoryUserRepository()
	groups := repositories.NewMemoryGroupRepository()
	memberships := repositories.NewMemoryMembershipRepository()
	messages := repositories.NewMemoryMessageRepository()

	sess := session.NewManager(users, session.NewMemorySlotStore(), log)
	store := NewStore(groups, memberships, messages, sess, log)
	t.Cleanup(store.Close)

	return &fixture{
		store:       store,
		session:     sess,
		memberships: memberships,
		messages:    messages,
	}
}

func (f *fixture) signUp(t *testing.T, username string) *models.Identity {
	t.Helper()
	identity, err := f.session.SignUp(context.Background(),
		username, fmt.Sprintf("%s@example.com", username), "password123")
	require.NoError(t, err)
	return identity
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.store.CreateGroup(ctx, "Chess Club", "desc", []string{"games"})
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Empty(t, f.store.Snapshot().Groups)
	})

	t.Run("creator becomes the only admin member", func(t *testing.T) {
		f := newFixture(t)
		identity := f.signUp(t, "demo")

		group, err := f.store.CreateGroup(ctx, "Chess Club", "desc", []string{"games"})
		require.NoError(t, err)
		assert.Equal(t, 1, group.MemberCount)
		assert.Equal(t, identity.ID, group.CreatedBy)
		assert.Equal(t, models.TagList{"games"}, group.Tags)

		snapshot := f.store.Snapshot()
		require.NotNil(t, snapshot.ActiveGroup)
		assert.Equal(t, group.ID, snapshot.ActiveGroup.ID)

		require.Len(t, snapshot.Members, 1)
		assert.Equal(t, identity.ID, snapshot.Members[0].UserID)
		assert.True(t, snapshot.Members[0].IsAdmin)

		assert.Empty(t, snapshot.Messages)

		require.Len(t, snapshot.UserGroups, 1)
		assert.Equal(t, group.ID, snapshot.UserGroups[0].ID)
	})

	t.Run("name is required", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")

		_, err := f.store.CreateGroup(ctx, "   ", "desc", nil)
		assert.ErrorIs(t, err, ErrNameRequired)
	})
}

func TestJoinGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.store.JoinGroup(ctx, "g1"), ErrUnauthenticated)
	})

	t.Run("unknown group", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		assert.ErrorIs(t, f.store.JoinGroup(ctx, "nope"), ErrGroupNotFound)
	})

	t.Run("join adds a non-admin record and selects the group", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "owner")
		group, err := f.store.CreateGroup(ctx, "Book Club", "books", []string{"reading"})
		require.NoError(t, err)

		joiner := f.signUp(t, "joiner")
		require.NoError(t, f.store.JoinGroup(ctx, group.ID))

		snapshot := f.store.Snapshot()
		require.NotNil(t, snapshot.ActiveGroup)
		assert.Equal(t, group.ID, snapshot.ActiveGroup.ID)
		assert.Equal(t, 2, snapshot.ActiveGroup.MemberCount)

		require.Len(t, snapshot.Members, 2)
		assert.Equal(t, "owner", snapshot.Members[0].Username)
		assert.Equal(t, joiner.ID, snapshot.Members[1].UserID)
		assert.False(t, snapshot.Members[1].IsAdmin)

		require.Len(t, snapshot.UserGroups, 1)
	})

	t.Run("joining twice reports AlreadyMember and changes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "owner")
		group, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)

		f.signUp(t, "joiner")
		require.NoError(t, f.store.JoinGroup(ctx, group.ID))
		before := f.store.Snapshot()

		assert.ErrorIs(t, f.store.JoinGroup(ctx, group.ID), ErrAlreadyMember)

		after := f.store.Snapshot()
		assert.Equal(t, before.ActiveGroup.MemberCount, after.ActiveGroup.MemberCount)
		assert.Equal(t, len(before.Members), len(after.Members))
	})
}

func TestLeaveGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("leave after join restores the pre-join state", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "owner")
		group, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)

		f.signUp(t, "joiner")
		require.NoError(t, f.store.JoinGroup(ctx, group.ID))
		require.NoError(t, f.store.LeaveGroup(ctx, group.ID))

		roster, err := f.memberships.ListByGroup(group.ID)
		require.NoError(t, err)
		require.Len(t, roster, 1)
		assert.Equal(t, "owner", roster[0].Username)

		snapshot := f.store.Snapshot()
		assert.Equal(t, 1, snapshot.Groups[0].MemberCount)
		assert.Empty(t, snapshot.UserGroups)
	})

	t.Run("leaving the selected group deselects it", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "owner")
		group, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)
		require.NotNil(t, f.store.Snapshot().ActiveGroup)

		require.NoError(t, f.store.LeaveGroup(ctx, group.ID))
		assert.Nil(t, f.store.Snapshot().ActiveGroup)
	})

	t.Run("leaving a group the user never joined keeps the count", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "owner")
		group, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)

		f.signUp(t, "stranger")
		require.NoError(t, f.store.LeaveGroup(ctx, group.ID))

		snapshot := f.store.Snapshot()
		assert.Equal(t, 1, snapshot.Groups[0].MemberCount)
	})

	t.Run("soft failures", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.store.LeaveGroup(ctx, "g1"), ErrUnauthenticated)

		f.signUp(t, "demo")
		assert.ErrorIs(t, f.store.LeaveGroup(ctx, "nope"), ErrGroupNotFound)
	})
}

func TestSelectGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("selection loads roster and messages", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		group, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)
		_, err = f.store.SendMessage(ctx, "first book of the month")
		require.NoError(t, err)

		require.NoError(t, f.store.SelectGroup(ctx, ""))
		snapshot := f.store.Snapshot()
		assert.Nil(t, snapshot.ActiveGroup)
		assert.Empty(t, snapshot.Members)
		assert.Empty(t, snapshot.Messages)

		require.NoError(t, f.store.SelectGroup(ctx, group.ID))
		snapshot = f.store.Snapshot()
		require.NotNil(t, snapshot.ActiveGroup)
		assert.Len(t, snapshot.Members, 1)
		assert.Len(t, snapshot.Messages, 1)
	})

	t.Run("unknown id clears the selection", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		_, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)

		require.NoError(t, f.store.SelectGroup(ctx, "nope"))
		assert.Nil(t, f.store.Snapshot().ActiveGroup)
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.SendMessage(ctx, "hi")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("no group selected is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")

		_, err := f.store.SendMessage(ctx, "hi")
		assert.ErrorIs(t, err, ErrNoGroupSelected)
	})

	t.Run("messages append in order with fresh ids", func(t *testing.T) {
		f := newFixture(t)
		identity := f.signUp(t, "demo")
		_, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)

		first, err := f.store.SendMessage(ctx, "hello")
		require.NoError(t, err)
		second, err := f.store.SendMessage(ctx, "again")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, identity.ID, first.UserID)
		assert.Equal(t, "demo", first.Username)

		snapshot := f.store.Snapshot()
		require.Len(t, snapshot.Messages, 2)
		assert.Equal(t, "hello", snapshot.Messages[0].Text)
		assert.Equal(t, "again", snapshot.Messages[1].Text)
	})

	t.Run("blank text is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		_, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
		require.NoError(t, err)

		_, err = f.store.SendMessage(ctx, "   ")
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Empty(t, f.store.Snapshot().Messages)
	})
}

func TestSetFilterQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "demo")

	_, err := f.store.CreateGroup(ctx, "Photography Enthusiasts",
		"A group for sharing photography tips.", []string{"photography", "art"})
	require.NoError(t, err)
	_, err = f.store.CreateGroup(ctx, "Book Club",
		"Discussing great books across all genres.", []string{"books", "reading"})
	require.NoError(t, err)

	t.Run("substring match on name", func(t *testing.T) {
		require.NoError(t, f.store.SetFilterQuery(ctx, "phot"))

		filtered := f.store.Snapshot().FilteredGroups
		require.Len(t, filtered, 1)
		assert.Equal(t, "Photography Enthusiasts", filtered[0].Name)
	})

	t.Run("match is case-insensitive", func(t *testing.T) {
		require.NoError(t, f.store.SetFilterQuery(ctx, "BOOK"))
		assert.Len(t, f.store.Snapshot().FilteredGroups, 1)
	})

	t.Run("description and tags match too", func(t *testing.T) {
		require.NoError(t, f.store.SetFilterQuery(ctx, "genres"))
		require.Len(t, f.store.Snapshot().FilteredGroups, 1)

		require.NoError(t, f.store.SetFilterQuery(ctx, "art"))
		filtered := f.store.Snapshot().FilteredGroups
		require.Len(t, filtered, 1)
		assert.Equal(t, "Photography Enthusiasts", filtered[0].Name)
	})

	t.Run("empty query restores the full catalog", func(t *testing.T) {
		require.NoError(t, f.store.SetFilterQuery(ctx, ""))
		assert.Len(t, f.store.Snapshot().FilteredGroups, 2)
	})

	t.Run("no match yields an empty view", func(t *testing.T) {
		require.NoError(t, f.store.SetFilterQuery(ctx, "zzz"))
		assert.Empty(t, f.store.Snapshot().FilteredGroups)
	})
}

func TestIdentityChangeRecomputesUserGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.signUp(t, "demo")
	_, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
	require.NoError(t, err)
	require.Len(t, f.store.Snapshot().UserGroups, 1)

	f.session.Logout(ctx)
	assert.Empty(t, f.store.Snapshot().UserGroups)

	f.signUp(t, "stranger")
	assert.Empty(t, f.store.Snapshot().UserGroups)
	assert.Len(t, f.store.Snapshot().Groups, 1)
}

func TestSubscribeEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "demo")

	var events []Event
	unsubscribe := f.store.Subscribe(func(_ Snapshot, event Event) {
		events = append(events, event)
	})

	group, err := f.store.CreateGroup(ctx, "Book Club", "books", nil)
	require.NoError(t, err)
	_, err = f.store.SendMessage(ctx, "hi")
	require.NoError(t, err)
	require.NoError(t, f.store.LeaveGroup(ctx, group.ID))

	require.Len(t, events, 3)
	assert.Equal(t, EventGroupCreated, events[0].Type)
	assert.Equal(t, EventMessageSent, events[1].Type)
	require.NotNil(t, events[1].Message)
	assert.Equal(t, "hi", events[1].Message.Text)
	assert.Equal(t, EventGroupLeft, events[2].Type)

	unsubscribe()
	_, err = f.store.CreateGroup(ctx, "Another", "x", nil)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSendMessageTo(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.SendMessageTo(ctx, "g1", "hi")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("unknown group", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		_, err := f.store.SendMessageTo(ctx, "nope", "hi")
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("empty id", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		_, err := f.store.SendMessageTo(ctx, "", "hi")
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("blank text", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")
		group, err := f.store.CreateGroup(ctx, "Chess Club", "desc", nil)
		require.NoError(t, err)
		_, err = f.store.SendMessageTo(ctx, group.ID, "   ")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("delivers to the addressed group, not the selection", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")

		first, err := f.store.CreateGroup(ctx, "Chess Club", "desc", nil)
		require.NoError(t, err)
		second, err := f.store.CreateGroup(ctx, "Book Club", "desc", nil)
		require.NoError(t, err)

		// Another caller's selection must not redirect the message.
		require.NoError(t, f.store.SelectGroup(ctx, second.ID))

		message, err := f.store.SendMessageTo(ctx, first.ID, "knight to f3")
		require.NoError(t, err)
		assert.Equal(t, first.ID, message.GroupID)

		firstLog, err := f.messages.ListByGroup(first.ID)
		require.NoError(t, err)
		require.Len(t, firstLog, 1)
		assert.Equal(t, "knight to f3", firstLog[0].Text)

		secondLog, err := f.messages.ListByGroup(second.ID)
		require.NoError(t, err)
		assert.Empty(t, secondLog)

		// The selection itself is untouched.
		snapshot := f.store.Snapshot()
		require.NotNil(t, snapshot.ActiveGroup)
		assert.Equal(t, second.ID, snapshot.ActiveGroup.ID)
	})

	t.Run("selection churn between sends cannot misdeliver", func(t *testing.T) {
		f := newFixture(t)
		f.signUp(t, "demo")

		target, err := f.store.CreateGroup(ctx, "Chess Club", "desc", nil)
		require.NoError(t, err)
		other, err := f.store.CreateGroup(ctx, "Book Club", "desc", nil)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			require.NoError(t, f.store.SelectGroup(ctx, other.ID))
			_, err := f.store.SendMessageTo(ctx, target.ID, fmt.Sprintf("move %d", i))
			require.NoError(t, err)
		}

		otherLog, err := f.messages.ListByGroup(other.ID)
		require.NoError(t, err)
		assert.Empty(t, otherLog)

		targetLog, err := f.messages.ListByGroup(target.ID)
		require.NoError(t, err)
		assert.Len(t, targetLog, 10)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "demo")

	photo, err := f.store.CreateGroup(ctx, "Photography Enthusiasts", "cameras", []string{"photography"})
	require.NoError(t, err)
	book, err := f.store.CreateGroup(ctx, "Book Club", "novels", []string{"reading"})
	require.NoError(t, err)

	t.Run("filters without touching the store filter", func(t *testing.T) {
		require.NoError(t, f.store.SetFilterQuery(ctx, "book"))

		results := f.store.Search("phot")
		require.Len(t, results, 1)
		assert.Equal(t, photo.ID, results[0].ID)

		snapshot := f.store.Snapshot()
		assert.Equal(t, "book", snapshot.FilterQuery)
		require.Len(t, snapshot.FilteredGroups, 1)
		assert.Equal(t, book.ID, snapshot.FilteredGroups[0].ID)
	})

	t.Run("empty query returns the full catalog", func(t *testing.T) {
		results := f.store.Search("")
		assert.Len(t, results, 2)
	})

	t.Run("no match returns empty", func(t *testing.T) {
		assert.Empty(t, f.store.Search("cooking"))
	})
}

func TestSnapshotFilteredGroupsIsACopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "demo")

	_, err := f.store.CreateGroup(ctx, "Chess Club", "desc", nil)
	require.NoError(t, err)

	snapshot := f.store.Snapshot()
	require.Len(t, snapshot.FilteredGroups, 1)

	snapshot.FilteredGroups[0].Name = "mutated"
	assert.Equal(t, "Chess Club", snapshot.Groups[0].Name)
}

// countingTransactor delegates to the in-memory pass-through while counting
// how many transactions ran.
type countingTransactor struct {
	inner repositories.MemoryTransactor
	calls int
}

func (t *countingTransactor) Transact(ctx context.Context, fn func(repositories.Repos) error) error {
	t.calls++
	return t.inner.Transact(ctx, fn)
}

// failingTransactor refuses every transaction without running it, the way a
// database would on a broken connection.
type failingTransactor struct{ err error }

func (t failingTransactor) Transact(context.Context, func(repositories.Repos) error) error {
	return t.err
}

func TestTransactor(t *testing.T) {
	ctx := context.Background()

	newStoreWith := func(t *testing.T, tx repositories.Transactor) (*Store, *session.Manager, *repositories.MemoryGroupRepository, *repositories.MemoryMembershipRepository) {
		t.Helper()
		log, err := logger.NewDevelopmentLogger()
		require.NoError(t, err)

		users := repositories.NewMemoryUserRepository()
		groups := repositories.NewMemoryGroupRepository()
		memberships := repositories.NewMemoryMembershipRepository()
		messages := repositories.NewMemoryMessageRepository()

		sess := session.NewManager(users, session.NewMemorySlotStore(), log)
		store := NewStore(groups, memberships, messages, sess, log, WithTransactor(tx))
		t.Cleanup(store.Close)
		return store, sess, groups, memberships
	}

	t.Run("create, join and leave each run one transaction", func(t *testing.T) {
		groups := repositories.NewMemoryGroupRepository()
		memberships := repositories.NewMemoryMembershipRepository()
		tx := &countingTransactor{inner: repositories.MemoryTransactor{Repos: repositories.Repos{
			Groups:      groups,
			Memberships: memberships,
		}}}

		log, err := logger.NewDevelopmentLogger()
		require.NoError(t, err)
		users := repositories.NewMemoryUserRepository()
		sess := session.NewManager(users, session.NewMemorySlotStore(), log)
		store := NewStore(groups, memberships, repositories.NewMemoryMessageRepository(), sess, log, WithTransactor(tx))
		t.Cleanup(store.Close)

		_, err = sess.SignUp(ctx, "demo", "demo@example.com", "password123")
		require.NoError(t, err)
		_, err = sess.SignUp(ctx, "john", "john@example.com", "password123")
		require.NoError(t, err)

		group, err := store.CreateGroup(ctx, "Chess Club", "desc", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, tx.calls)

		_, err = sess.Login(ctx, "demo@example.com", "password123")
		require.NoError(t, err)
		require.NoError(t, store.JoinGroup(ctx, group.ID))
		assert.Equal(t, 2, tx.calls)

		require.NoError(t, store.LeaveGroup(ctx, group.ID))
		assert.Equal(t, 3, tx.calls)
	})

	t.Run("refused transaction leaves the catalog and rosters untouched", func(t *testing.T) {
		txErr := errors.New("connection reset")
		store, sess, groups, memberships := newStoreWith(t, failingTransactor{err: txErr})

		_, err := sess.SignUp(ctx, "demo", "demo@example.com", "password123")
		require.NoError(t, err)

		_, err = store.CreateGroup(ctx, "Chess Club", "desc", nil)
		assert.ErrorIs(t, err, txErr)

		catalog, err := groups.List()
		require.NoError(t, err)
		assert.Empty(t, catalog)

		roster, err := memberships.ListByGroup("any")
		require.NoError(t, err)
		assert.Empty(t, roster)
		assert.Empty(t, store.Snapshot().Groups)
	})
}
