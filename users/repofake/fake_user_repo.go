package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]users.User // username to user
	lock  sync.RWMutex

	// SetPasswordErr, when set, is returned by SetPassword without mutating anything.
	SetPasswordErr error
	// SetAuthMethodErr, when set, is returned by SetAuthMethod without mutating anything.
	SetAuthMethodErr error
	// RecordLoginErr, when set, is returned by RecordLogin without mutating anything.
	RecordLoginErr error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]users.User),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.users[user.Username]; ok {
		return rperrors.Wrapf(rperrors.ErrAlreadyExists, "username %s", user.Username)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.Username] = *user
	return nil
}

func (ur *FakeUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[username]
	if !ok {
		return nil, rperrors.ErrNotFound
	}
	return &u, nil
}

func (ur *FakeUserRepo) Exists(_ context.Context, username string) (bool, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	_, ok := ur.users[username]
	return ok, nil
}

func (ur *FakeUserRepo) SetAuthMethod(_ context.Context, username string, method users.AuthMethod) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.SetAuthMethodErr != nil {
		return ur.SetAuthMethodErr
	}
	u, ok := ur.users[username]
	if !ok {
		return rperrors.ErrNotFound
	}
	u.AuthMethod = method
	ur.users[username] = u
	return nil
}

func (ur *FakeUserRepo) SetPassword(_ context.Context, username, newUsername, passwordHash string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.SetPasswordErr != nil {
		return ur.SetPasswordErr
	}
	u, ok := ur.users[username]
	if !ok {
		return rperrors.ErrNotFound
	}
	if newUsername != "" && newUsername != username {
		if _, taken := ur.users[newUsername]; taken {
			return rperrors.ErrUsernameTaken
		}
		delete(ur.users, username)
		u.Username = newUsername
	}
	u.PasswordHash = passwordHash
	u.AuthMethod = users.AuthMethodPassword
	ur.users[u.Username] = u
	return nil
}

func (ur *FakeUserRepo) RecordLogin(_ context.Context, username string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.RecordLoginErr != nil {
		return ur.RecordLoginErr
	}
	u, ok := ur.users[username]
	if !ok {
		return rperrors.ErrNotFound
	}
	u.LastLogin = at
	ur.users[username] = u
	return nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, username string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	delete(ur.users, username)
	return nil
}

// Len returns the number of stored users.
func (ur *FakeUserRepo) Len() int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return len(ur.users)
}
