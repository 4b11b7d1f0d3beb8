package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/token"
)

var _ token.Repo = (*TokenRepo)(nil)

// TokenRepo implements token.Repo on the token_records table. The UNIQUE
// constraints on external_id and username are what serialise racing links.
type TokenRepo struct {
	db *DB
}

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

const tokenColumns = `external_id, username, scope, resource, auth_code, access_token,
	refresh_token, id_token, expiry, created_at, updated_at`

func (r *TokenRepo) Create(ctx context.Context, record *token.Record) error {
	_, err := r.db.exec(ctx,
		`INSERT INTO token_records (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ExternalID,
		record.Username,
		record.Scope,
		record.Resource,
		record.AuthCode,
		record.AccessToken,
		record.RefreshToken,
		record.IDToken,
		toUnixNano(record.Expiry),
		toUnixNano(record.CreatedAt),
		toUnixNano(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rperrors.Wrapf(rperrors.ErrAlreadyExists, "token record for %s", record.Username)
		}
		return fmt.Errorf("inserting token record: %w", err)
	}
	return nil
}

func (r *TokenRepo) GetByExternalID(ctx context.Context, externalID string) (*token.Record, error) {
	return r.get(ctx, "external_id", externalID)
}

func (r *TokenRepo) GetByUsername(ctx context.Context, username string) (*token.Record, error) {
	return r.get(ctx, "username", username)
}

func (r *TokenRepo) get(ctx context.Context, column, value string) (*token.Record, error) {
	row := r.db.queryRow(ctx,
		`SELECT `+tokenColumns+` FROM token_records WHERE `+column+` = ?`,
		value,
	)

	var (
		rec                          token.Record
		expiry, createdAt, updatedAt int64
	)
	err := row.Scan(
		&rec.ExternalID,
		&rec.Username,
		&rec.Scope,
		&rec.Resource,
		&rec.AuthCode,
		&rec.AccessToken,
		&rec.RefreshToken,
		&rec.IDToken,
		&expiry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rperrors.ErrNotFound
		}
		return nil, fmt.Errorf("reading token record: %w", err)
	}
	rec.Expiry = fromUnixNano(expiry)
	rec.CreatedAt = fromUnixNano(createdAt)
	rec.UpdatedAt = fromUnixNano(updatedAt)
	return &rec, nil
}

func (r *TokenRepo) Update(ctx context.Context, record *token.Record) error {
	res, err := r.db.exec(ctx, `
		UPDATE token_records SET
			scope = ?, resource = ?, auth_code = ?, access_token = ?,
			refresh_token = ?, id_token = ?, expiry = ?, updated_at = ?
		WHERE external_id = ?`,
		record.Scope,
		record.Resource,
		record.AuthCode,
		record.AccessToken,
		record.RefreshToken,
		record.IDToken,
		toUnixNano(record.Expiry),
		toUnixNano(record.UpdatedAt),
		record.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("updating token record: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return rperrors.ErrNotFound
	}
	return nil
}

func (r *TokenRepo) DeleteByExternalID(ctx context.Context, externalID string) error {
	if _, err := r.db.exec(ctx, `DELETE FROM token_records WHERE external_id = ?`, externalID); err != nil {
		return fmt.Errorf("deleting token record: %w", err)
	}
	return nil
}

func (r *TokenRepo) DeleteByUsername(ctx context.Context, username string) error {
	if _, err := r.db.exec(ctx, `DELETE FROM token_records WHERE username = ?`, username); err != nil {
		return fmt.Errorf("deleting token record: %w", err)
	}
	return nil
}
