package ws

import (
	"time"

	"github.com/vega-chat/chat-service/internal/domain"
)

// Client -> server event types.
const (
	EvtSendMessage     = "send_message"
	EvtPrivateMessage  = "private_message" // also emitted server -> client
	EvtTyping          = "typing"
	EvtJoinRoom        = "join_room"
	EvtLeaveRoom       = "leave_room"
	EvtCreateRoom      = "create_room"
	EvtSendRoomMessage = "send_room_message"
	EvtSendFile        = "send_file"
	EvtMessageRead     = "message_read"
	EvtMessageReaction = "message_reaction"
	EvtStatusChange    = "status_change"
	EvtUpdateProfile   = "update_profile"
)

// Server -> client event types.
const (
	EvtAck            = "ack"
	EvtUserList       = "user_list"
	EvtUserJoined     = "user_joined"
	EvtUserLeft       = "user_left"
	EvtUserUpdated    = "user_updated"
	EvtReceiveMessage = "receive_message"
	EvtRoomMessage    = "room_message"
	EvtRoomFile       = "room_file"
	EvtRoomMessages   = "room_messages" // join snapshot
	EvtRoomUserJoined = "room_user_joined"
	EvtRoomUserLeft   = "room_user_left"
	EvtTypingUsers    = "typing_users"
	EvtMessageUpdated = "message_updated"
	EvtRoomCreated    = "room_created"
	EvtRoomError      = "room_error"
	EvtError          = "error"
	EvtDebug          = "debug"
)

// Envelope is the wire frame. ID is a client-generated correlation id echoed
// back in the matching ack; acks are correlated by it, never by content.
type Envelope struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type AckPayload struct {
	OK        bool       `json:"ok"`
	ID        string     `json:"id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Count     *int       `json:"count,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type SendMessagePayload struct {
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

type PrivateMessagePayload struct {
	To      int64  `json:"to"`
	Message string `json:"message"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type JoinRoomPayload struct {
	Room string `json:"room"`
}

type CreateRoomPayload struct {
	Name string `json:"name"`
}

type RoomMessagePayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

type SendFilePayload struct {
	Room     string `json:"room,omitempty"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Data     string `json:"data"` // base64
}

type MessageReadPayload struct {
	MessageID string `json:"messageId"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type StatusChangePayload struct {
	Status string `json:"status"`
}

type UpdateProfilePayload struct {
	Username string `json:"username"`
}

// RoomMessagesPayload is the recent-history snapshot pushed on room join.
type RoomMessagesPayload struct {
	Room     string       `json:"room"`
	Messages []MessageDTO `json:"messages"`
}

type PeerEventPayload struct {
	ID       string `json:"id"` // session id
	Username string `json:"username"`
}

type RoomPeerPayload struct {
	Room      string `json:"room"`
	Username  string `json:"username"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp,omitempty"`
}

type UserItem struct {
	ID           int64   `json:"id"`
	Username     string  `json:"username"`
	ProfileImage *string `json:"profileImage"`
	Status       string  `json:"status"`
	SessionID    string  `json:"sessionId,omitempty"`
}

type RoomDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type DebugPayload struct {
	Event          string `json:"event"`
	RecipientFound bool   `json:"recipientFound"`
	MessageID      string `json:"messageId,omitempty"`
	SavedOK        bool   `json:"savedOk"`
	Error          string `json:"error,omitempty"`
}

// MessageDTO is the single outbound message shape shared by room, private,
// and file events; kind/scope are exhaustive at this boundary.
type MessageDTO struct {
	ID        string            `json:"id"`
	Sender    string            `json:"sender"`
	SenderID  int64             `json:"senderId"`
	Content   string            `json:"content"`
	Message   string            `json:"message,omitempty"` // legacy alias of content
	Kind      string            `json:"type"`
	Scope     string            `json:"messageType"`
	Room      string            `json:"room,omitempty"`
	Recipient *int64            `json:"recipient,omitempty"`
	FileName  string            `json:"fileName,omitempty"`
	FileType  string            `json:"fileType,omitempty"`
	ReadBy    []int64           `json:"readBy"`
	Reactions []domain.Reaction `json:"reactions"`
	Timestamp time.Time         `json:"timestamp"`
	IsPrivate bool              `json:"isPrivate,omitempty"`
	IsFile    bool              `json:"isFile,omitempty"`
}

func MessageToDTO(m *domain.Message) MessageDTO {
	dto := MessageDTO{
		ID:        m.ID,
		Sender:    m.Sender,
		SenderID:  int64(m.SenderID),
		Content:   m.Content,
		Message:   m.Content,
		Kind:      string(m.Kind),
		Scope:     string(m.Scope),
		Room:      m.Room,
		FileName:  m.FileName,
		FileType:  m.FileType,
		Timestamp: m.CreatedAt,
		IsPrivate: m.Scope == domain.ScopePrivate,
		IsFile:    m.Kind == domain.KindFile,
	}
	if m.Recipient != nil {
		v := int64(*m.Recipient)
		dto.Recipient = &v
	}
	dto.ReadBy = make([]int64, 0, len(m.ReadBy))
	for _, id := range m.ReadBy {
		dto.ReadBy = append(dto.ReadBy, int64(id))
	}
	dto.Reactions = m.Reactions
	if dto.Reactions == nil {
		dto.Reactions = []domain.Reaction{}
	}
	return dto
}

func MessagesToDTO(ms []domain.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(ms))
	for i := range ms {
		out = append(out, MessageToDTO(&ms[i]))
	}
	return out
}
