package users

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType is a user's role. Roles are ordered: admin > moderator > user.
type RoleType string

const (
	RoleUser      RoleType = "user"      // Regular account
	RoleModerator RoleType = "moderator" // Can moderate content
	RoleAdmin     RoleType = "admin"     // Can manage users and roles
)

var roleRank = map[RoleType]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

func (r RoleType) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is required or higher in the role hierarchy. Unknown roles satisfy nothing.
func (r RoleType) AtLeast(required RoleType) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	need, ok := roleRank[required]
	if !ok {
		return false
	}
	return have >= need
}

func ParseRole(s string) (RoleType, error) {
	r := RoleType(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is the backend's user representation.
type User struct {
	ID            int      `json:"id"`
	Email         string   `json:"email"`
	Username      string   `json:"username"`
	IsActive      bool     `json:"is_active"`
	Role          RoleType `json:"role,omitempty"`
	OAuthProvider *string  `json:"oauth_provider,omitempty"`
	AvatarURL     *string  `json:"avatar_url,omitempty"`
	FullName      *string  `json:"full_name,omitempty"`
}

// HasRole reports whether the user holds required or a higher role.
func (u *User) HasRole(required RoleType) bool {
	if u == nil {
		return false
	}
	return u.Role.AtLeast(required)
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// IsModerator is true for moderators and admins.
func (u *User) IsModerator() bool {
	return u.HasRole(RoleModerator)
}

// UserCreate is the registration payload.
type UserCreate struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (uc UserCreate) Validate() error {
	if strings.TrimSpace(uc.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if !strings.Contains(uc.Email, "@") {
		return fmt.Errorf("email %q is not valid", uc.Email)
	}
	if uc.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
