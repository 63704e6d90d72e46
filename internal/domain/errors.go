package domain

import "errors"

var (
	ErrUsernameRequired   = errors.New("username required")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired or not valid yet")

	ErrRoomNameRequired = errors.New("room name required")
	ErrRoomExists       = errors.New("room already exists")
	ErrRoomNotFound     = errors.New("room not found")

	ErrEmptyMessage     = errors.New("empty message")
	ErrMessageTooLong   = errors.New("message too long")
	ErrFileNameRequired = errors.New("file name required")
	ErrPayloadTooLarge  = errors.New("payload exceeds frame limit")
	ErrMessageNotFound  = errors.New("message not found")
	ErrUserNotFound     = errors.New("user not found")
)
