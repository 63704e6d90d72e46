package domain

import "time"

// GeneralRoom always exists and is pinned first in listings.
const GeneralRoom = "general"

type Room struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// RoomMember rows are membership history: leaving a room does not delete them.
type RoomMember struct {
	RoomID   string
	UserID   UserID
	JoinedAt time.Time
}
