package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckSecret(t *testing.T) {
	hash, err := HashSecret("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)

	assert.True(t, CheckSecret(hash, "password123"))
	assert.False(t, CheckSecret(hash, "password124"))
	assert.False(t, CheckSecret(hash, ""))
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"demo", true},
		{"john_doe99", true},
		{"ab", false},
		{"has space", false},
		{"way_too_long_username_here", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidateUsername(tt.username), "username %q", tt.username)
	}
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("demo@example.com"))
	assert.True(t, ValidateEmail("john.doe+1@sub.example.org"))
	assert.False(t, ValidateEmail("not-an-email"))
	assert.False(t, ValidateEmail("@example.com"))
	assert.False(t, ValidateEmail(""))
}

func TestAvatarURLs(t *testing.T) {
	assert.Equal(t,
		"https://api.dicebear.com/6.x/avataaars/svg?seed=demo",
		UserAvatarURL("demo"))
	assert.Equal(t,
		"https://api.dicebear.com/6.x/identicon/svg?seed=Book+Club",
		GroupAvatarURL("Book Club"))
}
