package token

import (
	"context"
	"time"
)

// Record links an external identity to a local account and holds the most
// recent token material issued for it.
type Record struct {
	ExternalID   string    // Stable id of the external identity (oid, else sub). Unique.
	Username     string    // Linked local username. Unique.
	Scope        string    // Scope granted by the IdP
	Resource     string    // Resource the access token is for, if any
	AuthCode     string    // Authorization code last redeemed for this identity
	AccessToken  string    // Access token
	RefreshToken string    // Refresh token, may be empty
	IDToken      string    // Raw identity token
	Expiry       time.Time // Access token expiry
	CreatedAt    time.Time // When the link was created
	UpdatedAt    time.Time // When the tokens were last rotated
}

// Repo persists Records. Implementations enforce uniqueness of ExternalID
// and of Username.
type Repo interface {
	// Create inserts a new record. Returns errors.ErrAlreadyExists when the
	// external id or the username is already linked.
	Create(ctx context.Context, record *Record) error

	// GetByExternalID returns errors.ErrNotFound when no record matches.
	GetByExternalID(ctx context.Context, externalID string) (*Record, error)

	// GetByUsername returns errors.ErrNotFound when no record matches.
	GetByUsername(ctx context.Context, username string) (*Record, error)

	// Update replaces the token material of the record with record.ExternalID.
	// ExternalID, Username and CreatedAt are left unchanged.
	Update(ctx context.Context, record *Record) error

	// DeleteByExternalID removes the record, if present.
	DeleteByExternalID(ctx context.Context, externalID string) error

	// DeleteByUsername removes the record linked to username, if present.
	DeleteByUsername(ctx context.Context, username string) error
}
