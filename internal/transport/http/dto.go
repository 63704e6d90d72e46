package http

import (
	"time"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/transport/ws"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID           int64   `json:"id"`
	Username     string  `json:"username"`
	ProfileImage *string `json:"profileImage"`
	Status       string  `json:"status"`
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expiresIn"` // seconds
	User      UserResponse `json:"user"`
}

type ThreadItem struct {
	OtherID     int64          `json:"otherId"`
	LastMessage *ws.MessageDTO `json:"lastMessage,omitempty"`
}

type ProfileResponse struct {
	User    UserResponse `json:"user"`
	Threads []ThreadItem `json:"threads"`
}

type UpdateProfileRequest struct {
	Username     *string `json:"username"`
	ProfileImage *string `json:"profileImage"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type RoomItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type RoomsResponse struct {
	Items []RoomItem `json:"items"`
}

type MessagesResponse struct {
	Items []ws.MessageDTO `json:"items"`
}

type UsersResponse struct {
	Items []ws.UserItem `json:"items"`
}

func toUserResponse(u *domain.User) UserResponse {
	status := u.Status
	if status == "" {
		status = domain.StatusOffline
	}
	return UserResponse{
		ID:           int64(u.ID),
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		Status:       status,
	}
}
