package domain

import (
	"strings"
	"time"
)

type UserID int64

// Coarse persisted status. A live connection overrides it with "online".
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	ProfileImage *string
	Status       string
	CreatedAt    time.Time
}

// NewUser expects an already-computed password hash.
func NewUser(username, passwordHash string, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}

	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		Status:       StatusOffline,
		CreatedAt:    now,
	}, nil
}

func (u *User) SetProfileImage(img *string) {
	u.ProfileImage = trimPtr(img)
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	t := strings.TrimSpace(*p)
	if t == "" {
		return nil
	}

	return &t
}
