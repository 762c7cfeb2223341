// Package auth signs and verifies the session credential carried in
// the sl_session cookie.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sprintleague/internal/domain"
)

// ErrInvalidToken covers every verification failure: bad signature,
// expiry, malformed claims. Verification fails closed; a caller never
// sees a partial identity.
var ErrInvalidToken = errors.New("invalid token")

// Session is the verified identity extracted from a credential.
type Session struct {
	Username string
	Role     domain.Role
	Team     domain.Team
}

// Claims is the JWT payload: subject username plus role and team.
type Claims struct {
	Role string `json:"role"`
	Team string `json:"team"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign issues a token for the given user.
func (s *Signer) Sign(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(user.Role),
		Team: string(user.Team),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Verify parses and validates a token, normalizing role and team. Any
// failure yields ErrInvalidToken.
func (s *Signer) Verify(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		role = domain.RolePlayer
	}
	team, ok := domain.ParseTeam(claims.Team)
	if !ok {
		team = domain.TeamNone
	}

	return &Session{
		Username: claims.Subject,
		Role:     role,
		Team:     team,
	}, nil
}
