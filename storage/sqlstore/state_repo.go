package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-oidc-connector/authstate"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
)

var _ authstate.Repo = (*StateRepo)(nil)

// StateRepo implements authstate.Repo on the auth_states table.
type StateRepo struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

func (r *StateRepo) Insert(ctx context.Context, authState *authstate.AuthState) error {
	_, err := r.db.exec(ctx,
		`INSERT INTO auth_states (state, nonce, code_verifier, created_at) VALUES (?, ?, ?, ?)`,
		authState.State, authState.Nonce, authState.CodeVerifier, toUnixNano(authState.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rperrors.Wrapf(rperrors.ErrAlreadyExists, "state")
		}
		return fmt.Errorf("inserting auth state: %w", err)
	}
	return nil
}

// Take deletes and returns the row in one statement, so concurrent callers
// cannot both receive it.
func (r *StateRepo) Take(ctx context.Context, state string) (*authstate.AuthState, error) {
	var (
		nonce     string
		verifier  string
		createdAt int64
	)
	err := r.db.queryRow(ctx,
		`DELETE FROM auth_states WHERE state = ? RETURNING nonce, code_verifier, created_at`,
		state,
	).Scan(&nonce, &verifier, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rperrors.ErrNotFound
		}
		return nil, fmt.Errorf("taking auth state: %w", err)
	}
	return &authstate.AuthState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		CreatedAt:    fromUnixNano(createdAt),
	}, nil
}

func (r *StateRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.exec(ctx, `DELETE FROM auth_states WHERE created_at < ?`, toUnixNano(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired auth states: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
