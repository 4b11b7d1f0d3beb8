package errors_test

import (
	"testing"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, rperrors.Wrapf(nil, "context %d", 1))
	})

	t.Run("keeps kind in chain", func(t *testing.T) {
		err := rperrors.Wrapf(rperrors.ErrUnknownState, "consume %s", "abc")
		require.EqualError(t, err, "consume abc: unknown state")
		require.True(t, rperrors.Is(err, rperrors.ErrUnknownState))
		require.False(t, rperrors.Is(err, rperrors.ErrNonceMismatch))
	})
}
