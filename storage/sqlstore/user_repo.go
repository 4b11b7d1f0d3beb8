package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/users"
)

var _ users.Repo = (*UserRepo)(nil)

// UserRepo implements users.Repo on the users table.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	id := user.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := r.db.exec(ctx, `
		INSERT INTO users (
			id, username, email, first_name, last_name, password_hash,
			auth_method, suspended, created_at, last_login
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		string(user.AuthMethod),
		user.Suspended,
		toUnixNano(user.CreatedAt),
		toUnixNano(user.LastLogin),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rperrors.Wrapf(rperrors.ErrAlreadyExists, "username %s", user.Username)
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	user.ID = id
	return nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	row := r.db.queryRow(ctx, `
		SELECT id, username, email, first_name, last_name, password_hash,
			auth_method, suspended, created_at, last_login
		FROM users WHERE username = ?`,
		username,
	)

	var (
		u                    users.User
		method               string
		createdAt, lastLogin int64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&method,
		&u.Suspended,
		&createdAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rperrors.ErrNotFound
		}
		return nil, fmt.Errorf("reading user: %w", err)
	}
	u.AuthMethod = users.AuthMethod(method)
	u.CreatedAt = fromUnixNano(createdAt)
	u.LastLogin = fromUnixNano(lastLogin)
	return &u, nil
}

func (r *UserRepo) Exists(ctx context.Context, username string) (bool, error) {
	rows, err := r.db.query(ctx, `SELECT 1 FROM users WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return found, nil
}

func (r *UserRepo) SetAuthMethod(ctx context.Context, username string, method users.AuthMethod) error {
	res, err := r.db.exec(ctx, `UPDATE users SET auth_method = ? WHERE username = ?`, string(method), username)
	if err != nil {
		return fmt.Errorf("updating auth method: %w", err)
	}
	return requireRow(res)
}

func (r *UserRepo) SetPassword(ctx context.Context, username, newUsername, passwordHash string) error {
	if newUsername == "" {
		newUsername = username
	}
	res, err := r.db.exec(ctx, `
		UPDATE users SET username = ?, password_hash = ?, auth_method = ?
		WHERE username = ?`,
		newUsername, passwordHash, string(users.AuthMethodPassword), username,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rperrors.ErrUsernameTaken
		}
		return fmt.Errorf("setting password: %w", err)
	}
	return requireRow(res)
}

func (r *UserRepo) RecordLogin(ctx context.Context, username string, at time.Time) error {
	res, err := r.db.exec(ctx, `UPDATE users SET last_login = ? WHERE username = ?`, toUnixNano(at), username)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return requireRow(res)
}

func (r *UserRepo) Delete(ctx context.Context, username string) error {
	if _, err := r.db.exec(ctx, `DELETE FROM users WHERE username = ?`, username); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// requireRow maps an update that matched nothing to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return rperrors.ErrNotFound
	}
	return nil
}
