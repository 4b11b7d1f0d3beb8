package tokenfakerepo

import (
	"context"
	"sync"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	records   map[string]token.Record // external id to record
	usernames map[string]string       // username to external id
	lock      sync.RWMutex

	// CreateErr, when set, is returned by Create without storing anything.
	CreateErr error
	// DeleteErr, when set, is returned by both deletes without removing anything.
	DeleteErr error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		records:   make(map[string]token.Record),
		usernames: make(map[string]string),
	}
}

func (tr *FakeTokenRepo) Create(_ context.Context, record *token.Record) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tr.CreateErr != nil {
		return tr.CreateErr
	}
	if _, ok := tr.records[record.ExternalID]; ok {
		return rperrors.Wrapf(rperrors.ErrAlreadyExists, "external id %s", record.ExternalID)
	}
	if _, ok := tr.usernames[record.Username]; ok {
		return rperrors.Wrapf(rperrors.ErrAlreadyExists, "username %s", record.Username)
	}
	tr.records[record.ExternalID] = *record
	tr.usernames[record.Username] = record.ExternalID
	return nil
}

func (tr *FakeTokenRepo) GetByExternalID(_ context.Context, externalID string) (*token.Record, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	r, ok := tr.records[externalID]
	if !ok {
		return nil, rperrors.ErrNotFound
	}
	return &r, nil
}

func (tr *FakeTokenRepo) GetByUsername(_ context.Context, username string) (*token.Record, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	externalID, ok := tr.usernames[username]
	if !ok {
		return nil, rperrors.ErrNotFound
	}
	r := tr.records[externalID]
	return &r, nil
}

func (tr *FakeTokenRepo) Update(_ context.Context, record *token.Record) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	existing, ok := tr.records[record.ExternalID]
	if !ok {
		return rperrors.ErrNotFound
	}
	existing.Scope = record.Scope
	existing.Resource = record.Resource
	existing.AuthCode = record.AuthCode
	existing.AccessToken = record.AccessToken
	existing.RefreshToken = record.RefreshToken
	existing.IDToken = record.IDToken
	existing.Expiry = record.Expiry
	existing.UpdatedAt = record.UpdatedAt
	tr.records[record.ExternalID] = existing
	return nil
}

func (tr *FakeTokenRepo) DeleteByExternalID(_ context.Context, externalID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tr.DeleteErr != nil {
		return tr.DeleteErr
	}
	r, ok := tr.records[externalID]
	if !ok {
		return nil
	}
	delete(tr.usernames, r.Username)
	delete(tr.records, externalID)
	return nil
}

func (tr *FakeTokenRepo) DeleteByUsername(_ context.Context, username string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tr.DeleteErr != nil {
		return tr.DeleteErr
	}
	externalID, ok := tr.usernames[username]
	if !ok {
		return nil
	}
	delete(tr.records, externalID)
	delete(tr.usernames, username)
	return nil
}

// Len returns the number of stored records.
func (tr *FakeTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.records)
}
