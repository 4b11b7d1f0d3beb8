package fakeuserrepo_test

import (
	"testing"

	"github.com/jrsteele09/go-oidc-connector/users"
	fakeuserrepo "github.com/jrsteele09/go-oidc-connector/users/repofake"
	"github.com/jrsteele09/go-oidc-connector/users/userstest"
)

func TestFakeUserRepo_Contract(t *testing.T) {
	userstest.RunRepoContract(t, func(t *testing.T) users.Repo {
		return fakeuserrepo.NewFakeUserRepo()
	})
}
