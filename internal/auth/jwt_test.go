package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintleague/internal/domain"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)

	token, err := signer.Sign(&domain.User{
		Username: "alice",
		Role:     domain.RoleCoach,
		Team:     domain.TeamBlue,
	})
	require.NoError(t, err)

	session, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, domain.RoleCoach, session.Role)
	assert.Equal(t, domain.TeamBlue, session.Team)
}

func TestVerifyFailsClosed(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)
	token, err := signer.Sign(&domain.User{Username: "alice", Role: domain.RolePlayer, Team: domain.TeamNone})
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"empty":        "",
		"tampered":     token[:len(token)-2] + "xx",
		"wrong secret": mustSign(t, NewSigner("other-secret", time.Hour)),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			session, err := signer.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, session, "no partial identity on failure")
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	signer := NewSigner("test-secret", -time.Minute)
	token, err := signer.Sign(&domain.User{Username: "alice", Role: domain.RolePlayer, Team: domain.TeamNone})
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyNormalizesUnknownRoleAndTeam(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)
	token, err := signer.Sign(&domain.User{Username: "alice", Role: "admin", Team: "Red"})
	require.NoError(t, err)

	session, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePlayer, session.Role)
	assert.Equal(t, domain.TeamNone, session.Team)
}

func mustSign(t *testing.T, signer *Signer) string {
	t.Helper()
	token, err := signer.Sign(&domain.User{Username: "alice", Role: domain.RolePlayer, Team: domain.TeamNone})
	require.NoError(t, err)
	return token
}
