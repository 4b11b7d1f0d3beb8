package fakestaterepo_test

import (
	"testing"

	"github.com/jrsteele09/go-oidc-connector/authstate"
	"github.com/jrsteele09/go-oidc-connector/authstate/authstatetest"
	fakestaterepo "github.com/jrsteele09/go-oidc-connector/authstate/repofake"
)

func TestFakeStateRepo_Contract(t *testing.T) {
	authstatetest.RunRepoContract(t, func(t *testing.T) authstate.Repo {
		return fakestaterepo.NewFakeStateRepo()
	})
}
