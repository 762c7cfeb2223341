package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RolePlayer Role = "player"
	RoleCoach  Role = "coach"
)

type Team string

const (
	TeamBlue  Team = "Blue"
	TeamWhite Team = "White"
	TeamNone  Team = "None"
)

// User represents an authenticated member of the league.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	Team         Team
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ParseRole normalizes a role value, returning false for anything
// outside the known set.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "player":
		return RolePlayer, true
	case "coach":
		return RoleCoach, true
	}
	return "", false
}

// ParseTeam normalizes a team value. Empty, "none" and "null" all map
// to the benched state.
func ParseTeam(s string) (Team, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blue":
		return TeamBlue, true
	case "white":
		return TeamWhite, true
	case "", "none", "null":
		return TeamNone, true
	}
	return "", false
}

// Competing reports whether the team participates in scoreboard sums.
func (t Team) Competing() bool {
	return t == TeamBlue || t == TeamWhite
}

// NormalizeUsername is the canonical username key used for every
// case-insensitive join between runs and users.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
