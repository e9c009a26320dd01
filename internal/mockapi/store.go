package mockapi

import (
	"sort"
	"strings"
	"sync"

	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/users"
)

type storedUser struct {
	users.User
	PasswordHash string
}

// userStore is the backend's user table.
type userStore struct {
	users    map[int]*storedUser
	names    map[string]int // lower-cased username to user ID
	emailIDs map[string]int // lower-cased email to user ID
	nextID   int
	lock     sync.RWMutex
}

func newUserStore() *userStore {
	return &userStore{
		users:    make(map[int]*storedUser),
		names:    make(map[string]int),
		emailIDs: make(map[string]int),
		nextID:   1,
	}
}

func (s *userStore) Create(uc users.UserCreate, role users.RoleType) (*users.User, error) {
	hash, err := users.HashPassword(uc.Password)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	name, email := strings.ToLower(uc.Username), strings.ToLower(uc.Email)
	if _, ok := s.names[name]; ok {
		return nil, apierrors.ErrUserExists
	}
	if _, ok := s.emailIDs[email]; ok {
		return nil, apierrors.ErrUserExists
	}

	u := &storedUser{
		User: users.User{
			ID:       s.nextID,
			Email:    uc.Email,
			Username: uc.Username,
			IsActive: true,
			Role:     role,
		},
		PasswordHash: hash,
	}
	s.nextID++
	s.users[u.ID] = u
	s.names[name] = u.ID
	s.emailIDs[email] = u.ID

	out := u.User
	return &out, nil
}

// Authenticate accepts either the username or the email as the login name.
func (s *userStore) Authenticate(login, password string) (*users.User, error) {
	s.lock.RLock()
	id, ok := s.names[strings.ToLower(login)]
	if !ok {
		id, ok = s.emailIDs[strings.ToLower(login)]
	}
	var u *storedUser
	if ok {
		u = s.users[id]
	}
	s.lock.RUnlock()

	if u == nil || !users.CheckPasswordHash(password, u.PasswordHash) {
		return nil, apierrors.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, apierrors.ErrInactiveUser
	}
	out := u.User
	return &out, nil
}

func (s *userStore) GetByID(id int) (*users.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apierrors.ErrUserNotFound
	}
	out := u.User
	return &out, nil
}

func (s *userStore) Update(id int, upd users.ProfileUpdate) (*users.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apierrors.ErrUserNotFound
	}

	if upd.Username != nil && !strings.EqualFold(*upd.Username, u.Username) {
		name := strings.ToLower(*upd.Username)
		if _, taken := s.names[name]; taken {
			return nil, apierrors.ErrUserExists
		}
		delete(s.names, strings.ToLower(u.Username))
		s.names[name] = id
		u.Username = *upd.Username
	}
	if upd.Email != nil && !strings.EqualFold(*upd.Email, u.Email) {
		email := strings.ToLower(*upd.Email)
		if _, taken := s.emailIDs[email]; taken {
			return nil, apierrors.ErrUserExists
		}
		delete(s.emailIDs, strings.ToLower(u.Email))
		s.emailIDs[email] = id
		u.Email = *upd.Email
	}
	if upd.FullName != nil {
		u.FullName = upd.FullName
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = upd.AvatarURL
	}

	out := u.User
	return &out, nil
}

func (s *userStore) SetRole(id int, role users.RoleType) (*users.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apierrors.ErrUserNotFound
	}
	u.Role = role
	out := u.User
	return &out, nil
}

func (s *userStore) SetActive(id int, active bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	u, ok := s.users[id]
	if !ok {
		return apierrors.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (s *userStore) List() []users.User {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]users.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.User)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
