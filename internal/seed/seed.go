// Package seed loads the demo fixtures: two known users, three starter
// groups and their welcome messages.
package seed

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commonroom/commonroom/internal/models"
	"github.com/commonroom/commonroom/internal/repositories"
	"github.com/commonroom/commonroom/internal/utils"
)

// DemoSecret is the login secret of every seeded user.
const DemoSecret = "password"

type seedGroup struct {
	name        string
	description string
	tags        []string
	ownerIdx    int
	memberIdxs  []int
	welcome     string
	age         time.Duration
}

var seedUsers = []struct {
	username string
	email    string
}{
	{"demo", "demo@example.com"},
	{"john", "john@example.com"},
}

var seedGroups = []seedGroup{
	{
		name:        "Photography Enthusiasts",
		description: "A group for sharing photography tips and showcasing your work.",
		tags:        []string{"photography", "art", "creative"},
		ownerIdx:    0,
		memberIdxs:  []int{1},
		welcome:     "Welcome to Photography Enthusiasts! Let's share our best shots here.",
		age:         7 * 24 * time.Hour,
	},
	{
		name:        "Fitness & Wellness",
		description: "Let's motivate each other to stay fit and healthy!",
		tags:        []string{"fitness", "health", "workout"},
		ownerIdx:    1,
		welcome:     "Welcome to Fitness & Wellness! Let's motivate each other to stay active and healthy.",
		age:         14 * 24 * time.Hour,
	},
	{
		name:        "Book Club",
		description: "Discussing great books across all genres.",
		tags:        []string{"books", "reading", "literature"},
		ownerIdx:    0,
		welcome:     "Welcome to Book Club! Our first book of the month is 'The Midnight Library' by Matt Haig.",
		age:         30 * 24 * time.Hour,
	},
}

// Demo populates the repositories with the demo fixtures. It is meant for
// a fresh in-memory backend; seeding twice duplicates nothing because the
// email check short-circuits the whole run.
func Demo(
	users repositories.UserRepository,
	groups repositories.GroupRepository,
	memberships repositories.MembershipRepository,
	messages repositories.MessageRepository,
) error {
	if _, err := users.GetByEmail(seedUsers[0].email); err == nil {
		return nil
	}

	hash, err := utils.HashSecret(DemoSecret)
	if err != nil {
		return err
	}

	identities := make([]*models.Identity, len(seedUsers))
	for i, su := range seedUsers {
		user := &models.User{
			ID:         uuid.NewString(),
			Username:   su.username,
			Email:      su.email,
			SecretHash: hash,
			AvatarURL:  utils.UserAvatarURL(su.username),
			CreatedAt:  time.Now(),
		}
		if err := users.Create(user); err != nil {
			return fmt.Errorf("seed user %s: %w", su.username, err)
		}
		identities[i] = user.Identity()
	}

	for _, sg := range seedGroups {
		owner := identities[sg.ownerIdx]
		createdAt := time.Now().Add(-sg.age)

		group := &models.Group{
			ID:          uuid.NewString(),
			Name:        sg.name,
			Description: sg.description,
			Tags:        models.TagList(sg.tags),
			CreatedBy:   owner.ID,
			MemberCount: 1 + len(sg.memberIdxs),
			AvatarURL:   utils.GroupAvatarURL(sg.name),
			CreatedAt:   createdAt,
		}
		if err := groups.Create(group); err != nil {
			return fmt.Errorf("seed group %s: %w", sg.name, err)
		}

		if err := memberships.Add(&models.Membership{
			GroupID:   group.ID,
			UserID:    owner.ID,
			Username:  owner.Username,
			AvatarURL: owner.AvatarURL,
			IsAdmin:   true,
			JoinedAt:  createdAt,
		}); err != nil {
			return fmt.Errorf("seed roster for %s: %w", sg.name, err)
		}
		for _, idx := range sg.memberIdxs {
			member := identities[idx]
			if err := memberships.Add(&models.Membership{
				GroupID:   group.ID,
				UserID:    member.ID,
				Username:  member.Username,
				AvatarURL: member.AvatarURL,
				JoinedAt:  createdAt.Add(48 * time.Hour),
			}); err != nil {
				return fmt.Errorf("seed roster for %s: %w", sg.name, err)
			}
		}

		if err := messages.Append(&models.Message{
			ID:         uuid.NewString(),
			GroupID:    group.ID,
			UserID:     owner.ID,
			Username:   owner.Username,
			UserAvatar: owner.AvatarURL,
			Text:       sg.welcome,
			Timestamp:  createdAt.Add(24 * time.Hour),
		}); err != nil {
			return fmt.Errorf("seed messages for %s: %w", sg.name, err)
		}
	}

	return nil
}
