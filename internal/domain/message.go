package domain

import (
	"strings"
	"time"
)

type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

type MessageScope string

const (
	ScopeRoom    MessageScope = "room"
	ScopePrivate MessageScope = "private"
)

const (
	// MaxTextLen bounds plain message content.
	MaxTextLen = 4000
	// MaxFileBytes bounds base64 file payloads; matches the transport frame cap.
	MaxFileBytes = 1 << 20
)

type Reaction struct {
	UserID UserID `json:"userId"`
	Type   string `json:"type"`
}

// Message is the tagged variant over kind x scope. Invariants:
// scope=room requires Room and no Recipient; scope=private the reverse.
type Message struct {
	ID        string
	Sender    string // display-name snapshot at send time
	SenderID  UserID
	Content   string
	Kind      MessageKind
	Scope     MessageScope
	Room      string
	Recipient *UserID
	FileName  string
	FileType  string
	ReadBy    []UserID
	Reactions []Reaction
	CreatedAt time.Time
}

func NewRoomMessage(sender string, senderID UserID, room, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > MaxTextLen {
		return nil, ErrMessageTooLong
	}
	if room == "" {
		room = GeneralRoom
	}

	return &Message{
		Sender:   sender,
		SenderID: senderID,
		Content:  text,
		Kind:     KindText,
		Scope:    ScopeRoom,
		Room:     room,
	}, nil
}

func NewPrivateMessage(sender string, senderID UserID, recipient UserID, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > MaxTextLen {
		return nil, ErrMessageTooLong
	}

	return &Message{
		Sender:    sender,
		SenderID:  senderID,
		Content:   text,
		Kind:      KindText,
		Scope:     ScopePrivate,
		Recipient: &recipient,
	}, nil
}

// NewFileMessage rejects oversized payloads before anything touches the store.
func NewFileMessage(sender string, senderID UserID, room, fileName, fileType, data string) (*Message, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, ErrFileNameRequired
	}
	if data == "" {
		return nil, ErrEmptyMessage
	}
	if int64(len(data)) > MaxFileBytes {
		return nil, ErrPayloadTooLarge
	}
	if room == "" {
		room = GeneralRoom
	}

	return &Message{
		Sender:   sender,
		SenderID: senderID,
		Content:  data,
		Kind:     KindFile,
		Scope:    ScopeRoom,
		Room:     room,
		FileName: fileName,
		FileType: fileType,
	}, nil
}

// ReadBy entries are unique; HasRead checks membership.
func (m *Message) HasRead(id UserID) bool {
	for _, r := range m.ReadBy {
		if r == id {
			return true
		}
	}
	return false
}

// ThreadPreview annotates a private-message counterpart with the latest message.
type ThreadPreview struct {
	OtherID     UserID
	LastMessage *Message
}
