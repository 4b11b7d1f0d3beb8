package users

import (
	"context"
	"time"
)

// Repo is the local user directory.
type Repo interface {
	// Create adds a user. Returns errors.ErrAlreadyExists when the username is taken.
	Create(ctx context.Context, user *User) error

	// GetByUsername returns errors.ErrNotFound when no user matches.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Exists reports whether a user with username is present.
	Exists(ctx context.Context, username string) (bool, error)

	// SetAuthMethod changes how the user signs in.
	SetAuthMethod(ctx context.Context, username string, method AuthMethod) error

	// SetPassword stores passwordHash, switches the user to password sign-in
	// and, when newUsername is non-empty and differs, renames the account.
	// Returns errors.ErrUsernameTaken when newUsername belongs to someone else.
	SetPassword(ctx context.Context, username, newUsername, passwordHash string) error

	// RecordLogin sets LastLogin.
	RecordLogin(ctx context.Context, username string, at time.Time) error

	// Delete removes the user, if present.
	Delete(ctx context.Context, username string) error
}
