package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/auth"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

func TestJWT_RoundTrip(t *testing.T) {
	j := auth.NewJWT("secret")

	token, err := j.Sign(domain.User{UserID: "u1", Username: "alice", Email: "alice@example.com"}, time.Minute)
	require.NoError(t, err)

	u, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "alice", u.Username)

	// The "Bearer " prefix from an Authorization header is tolerated.
	u, err = j.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
}

func TestJWT_RejectsBadTokens(t *testing.T) {
	j := auth.NewJWT("secret")

	_, err := j.Verify("not-a-token")
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	expired, err := j.Sign(domain.User{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = j.Verify(expired)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	other, err := auth.NewJWT("other-secret").Sign(domain.User{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = j.Verify(other)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
}
