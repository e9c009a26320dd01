package users_test

import (
	"testing"

	"github.com/jrsteele09/go-api-client/users"
	"github.com/stretchr/testify/require"
)

func TestRoleHierarchy(t *testing.T) {
	tests := []struct {
		have, need users.RoleType
		want       bool
	}{
		{users.RoleAdmin, users.RoleUser, true},
		{users.RoleAdmin, users.RoleModerator, true},
		{users.RoleAdmin, users.RoleAdmin, true},
		{users.RoleModerator, users.RoleAdmin, false},
		{users.RoleModerator, users.RoleModerator, true},
		{users.RoleUser, users.RoleModerator, false},
		{"", users.RoleUser, false},
		{users.RoleAdmin, "owner", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.have)+">="+string(tt.need), func(t *testing.T) {
			require.Equal(t, tt.want, tt.have.AtLeast(tt.need))
		})
	}
}

func TestUser_RoleHelpers(t *testing.T) {
	admin := &users.User{Role: users.RoleAdmin}
	mod := &users.User{Role: users.RoleModerator}
	plain := &users.User{Role: users.RoleUser}
	var nobody *users.User

	require.True(t, admin.IsAdmin())
	require.True(t, admin.IsModerator())
	require.False(t, mod.IsAdmin())
	require.True(t, mod.IsModerator())
	require.False(t, plain.IsModerator())
	require.True(t, plain.HasRole(users.RoleUser))
	require.False(t, nobody.HasRole(users.RoleUser))
}

func TestParseRole(t *testing.T) {
	r, err := users.ParseRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, r)

	_, err = users.ParseRole("root")
	require.Error(t, err)
}

func TestUserCreate_Validate(t *testing.T) {
	require.NoError(t, users.UserCreate{Email: "a@example.com", Username: "alice", Password: "secret"}.Validate())
	require.Error(t, users.UserCreate{Email: "a@example.com", Password: "secret"}.Validate())
	require.Error(t, users.UserCreate{Email: "nope", Username: "alice", Password: "secret"}.Validate())
	require.Error(t, users.UserCreate{Email: "a@example.com", Username: "alice"}.Validate())
}

func TestPasswords(t *testing.T) {
	hash, err := users.HashPassword("secret")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash("secret", hash))
	require.False(t, users.CheckPasswordHash("Secret", hash))

	require.NoError(t, users.ValidatePasswordStrength("Passw0rdOK"))
	require.ErrorContains(t, users.ValidatePasswordStrength("short"), "at least 8")
	require.ErrorContains(t, users.ValidatePasswordStrength("alllowercase1"), "uppercase")
	require.ErrorContains(t, users.ValidatePasswordStrength("ALLUPPERCASE1"), "lowercase")
	require.ErrorContains(t, users.ValidatePasswordStrength("NoNumbersHere"), "number")
}
