package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vega-chat/chat-service/internal/domain"
	api "github.com/vega-chat/chat-service/internal/transport/http"
	"github.com/vega-chat/chat-service/internal/transport/ws"
)

const (
	defaultConnectTimeout    = 5 * time.Second
	defaultAckTimeout        = 10 * time.Second
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultHistoryPage       = 50
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrGaveUp       = errors.New("client: reconnect attempts exhausted")
)

type Config struct {
	BaseURL           string // e.g. http://localhost:8080
	ConnectTimeout    time.Duration
	AckTimeout        time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
}

// Handlers are optional UI callbacks; nil entries are skipped. They run on
// the read loop goroutine, so they must not block.
type Handlers struct {
	OnMessage      func(conv string, msg ws.MessageDTO)
	OnMessageState func(conv string, msg ws.MessageDTO) // read receipts, reactions
	OnUserList     func(users []ws.UserItem)
	OnTyping       func(names []string)
	OnRoomCreated  func(room ws.RoomDTO)
	OnRoomError    func(msg string)
	OnError        func(msg string)
	OnReconnected  func()
	OnDisconnected func(err error)
}

type pendingCall struct {
	localID string
	timer   *time.Timer
}

// Client is the reconciliation layer over the REST and socket surfaces:
// it keeps an optimistic local view in Store, confirms sends by ack
// correlation id, dedups self-echoes, and resyncs after reconnects.
type Client struct {
	cfg      Config
	httpc    *http.Client
	handlers Handlers
	store    *Store

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	pending  map[string]pendingCall
	joined   map[string]bool
	username string
	password string
	token    string
	selfID   int64
	closed   bool
}

func New(cfg Config, h Handlers) *Client {
	cfg.withDefaults()

	return &Client{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: cfg.ConnectTimeout},
		handlers: h,
		store:    NewStore(),
		pending:  make(map[string]pendingCall),
		joined:   make(map[string]bool),
	}
}

func (c *Client) Store() *Store { return c.store }

func (c *Client) SelfID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// Login authenticates over REST and opens the socket. Credentials are
// retained for re-auth during reconnects.
func (c *Client) Login(ctx context.Context, username, password string) error {
	res, err := c.login(ctx, username, password)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.username = res.User.Username
	c.password = password
	c.token = res.Token
	c.selfID = res.User.ID
	c.mu.Unlock()

	return c.connect(ctx)
}

func (c *Client) login(ctx context.Context, username, password string) (*api.AuthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var res api.AuthResponse
	err := c.post(ctx, "/api/login", api.CredentialsRequest{Username: username, Password: password}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) connect(ctx context.Context) error {
	wsURL, err := socketURL(c.cfg.BaseURL, c.token)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func socketURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// --- outbound events ---

// SendRoomMessage records an optimistic entry and ships the frame. The
// returned local id tracks the entry until its ack resolves it.
func (c *Client) SendRoomMessage(room, text string) (string, error) {
	if room == "" {
		room = domain.GeneralRoom
	}
	localID := uuid.NewString()

	c.store.AddPending(RoomKey(room), localID, ws.MessageDTO{
		Sender:    c.currentUsername(),
		SenderID:  c.SelfID(),
		Content:   text,
		Kind:      string(domain.KindText),
		Scope:     string(domain.ScopeRoom),
		Room:      room,
		Timestamp: time.Now(),
	})

	err := c.sendTracked(localID, ws.EvtSendRoomMessage, ws.RoomMessagePayload{Room: room, Message: text})
	if err != nil {
		c.store.Fail(localID, err.Error())
		return localID, err
	}
	return localID, nil
}

func (c *Client) SendPrivateMessage(to int64, text string) (string, error) {
	localID := uuid.NewString()

	c.store.AddPending(PrivateKey(to), localID, ws.MessageDTO{
		Sender:    c.currentUsername(),
		SenderID:  c.SelfID(),
		Content:   text,
		Kind:      string(domain.KindText),
		Scope:     string(domain.ScopePrivate),
		Recipient: &to,
		Timestamp: time.Now(),
		IsPrivate: true,
	})

	err := c.sendTracked(localID, ws.EvtPrivateMessage, ws.PrivateMessagePayload{To: to, Message: text})
	if err != nil {
		c.store.Fail(localID, err.Error())
		return localID, err
	}
	return localID, nil
}

func (c *Client) SendFile(room, fileName, fileType, data string) (string, error) {
	if room == "" {
		room = domain.GeneralRoom
	}
	localID := uuid.NewString()

	c.store.AddPending(RoomKey(room), localID, ws.MessageDTO{
		Sender:    c.currentUsername(),
		SenderID:  c.SelfID(),
		Content:   data,
		Kind:      string(domain.KindFile),
		Scope:     string(domain.ScopeRoom),
		Room:      room,
		FileName:  fileName,
		FileType:  fileType,
		Timestamp: time.Now(),
		IsFile:    true,
	})

	err := c.sendTracked(localID, ws.EvtSendFile, ws.SendFilePayload{
		Room: room, FileName: fileName, FileType: fileType, Data: data,
	})
	if err != nil {
		c.store.Fail(localID, err.Error())
		return localID, err
	}
	return localID, nil
}

func (c *Client) SetTyping(isTyping bool) error {
	return c.send(ws.Envelope{Type: ws.EvtTyping, Payload: ws.TypingPayload{IsTyping: isTyping}})
}

func (c *Client) JoinRoom(room string) error {
	c.mu.Lock()
	c.joined[room] = true
	c.mu.Unlock()

	return c.send(ws.Envelope{Type: ws.EvtJoinRoom, Payload: ws.JoinRoomPayload{Room: room}})
}

func (c *Client) LeaveRoom(room string) error {
	c.mu.Lock()
	delete(c.joined, room)
	c.mu.Unlock()

	return c.send(ws.Envelope{Type: ws.EvtLeaveRoom, Payload: ws.JoinRoomPayload{Room: room}})
}

func (c *Client) CreateRoom(name string) error {
	return c.send(ws.Envelope{Type: ws.EvtCreateRoom, Payload: ws.CreateRoomPayload{Name: name}})
}

func (c *Client) MarkRead(messageID string) error {
	return c.send(ws.Envelope{Type: ws.EvtMessageRead, Payload: ws.MessageReadPayload{MessageID: messageID}})
}

func (c *Client) React(messageID, reaction string) error {
	return c.send(ws.Envelope{Type: ws.EvtMessageReaction, Payload: ws.ReactionPayload{MessageID: messageID, Reaction: reaction}})
}

func (c *Client) SetStatus(status string) error {
	return c.send(ws.Envelope{Type: ws.EvtStatusChange, Payload: ws.StatusChangePayload{Status: status}})
}

func (c *Client) UpdateUsername(username string) error {
	err := c.send(ws.Envelope{Type: ws.EvtUpdateProfile, Payload: ws.UpdateProfilePayload{Username: username}})
	if err == nil {
		c.mu.Lock()
		c.username = username
		c.mu.Unlock()
	}
	return err
}

func (c *Client) sendTracked(localID, evt string, payload any) error {
	timer := time.AfterFunc(c.cfg.AckTimeout, func() {
		c.mu.Lock()
		_, live := c.pending[localID]
		delete(c.pending, localID)
		c.mu.Unlock()
		if live {
			c.store.Fail(localID, "ack timeout")
		}
	})

	c.mu.Lock()
	c.pending[localID] = pendingCall{localID: localID, timer: timer}
	c.mu.Unlock()

	// the local id doubles as the correlation id
	err := c.send(ws.Envelope{Type: evt, ID: localID, Payload: payload})
	if err != nil {
		timer.Stop()
		c.mu.Lock()
		delete(c.pending, localID)
		c.mu.Unlock()
	}
	return err
}

func (c *Client) send(env ws.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// --- inbound ---

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.onReadFailure(conn, err)
			return
		}
		c.handleFrame(&f)
	}
}

func (c *Client) handleFrame(f *frame) {
	switch f.Type {
	case ws.EvtAck:
		c.handleAck(f)
	case ws.EvtReceiveMessage, ws.EvtRoomMessage, ws.EvtRoomFile:
		var m ws.MessageDTO
		if json.Unmarshal(f.Payload, &m) != nil {
			return
		}
		room := m.Room
		if room == "" {
			room = domain.GeneralRoom
		}
		conv := RoomKey(room)
		c.store.ApplyInbound(conv, m, c.SelfID())
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(conv, m)
		}
	case ws.EvtPrivateMessage:
		var m ws.MessageDTO
		if json.Unmarshal(f.Payload, &m) != nil {
			return
		}
		other := m.SenderID
		if other == c.SelfID() && m.Recipient != nil {
			other = *m.Recipient
		}
		conv := PrivateKey(other)
		c.store.ApplyInbound(conv, m, c.SelfID())
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(conv, m)
		}
	case ws.EvtMessageUpdated:
		var m ws.MessageDTO
		if json.Unmarshal(f.Payload, &m) != nil {
			return
		}
		c.store.Update(m)
		if c.handlers.OnMessageState != nil {
			conv := RoomKey(m.Room)
			if m.IsPrivate {
				other := m.SenderID
				if other == c.SelfID() && m.Recipient != nil {
					other = *m.Recipient
				}
				conv = PrivateKey(other)
			}
			c.handlers.OnMessageState(conv, m)
		}
	case ws.EvtRoomMessages:
		var p ws.RoomMessagesPayload
		if json.Unmarshal(f.Payload, &p) != nil {
			return
		}
		c.store.ReplaceAll(RoomKey(p.Room), p.Messages)
	case ws.EvtUserList:
		var users []ws.UserItem
		if json.Unmarshal(f.Payload, &users) == nil && c.handlers.OnUserList != nil {
			c.handlers.OnUserList(users)
		}
	case ws.EvtTypingUsers:
		var names []string
		if json.Unmarshal(f.Payload, &names) == nil && c.handlers.OnTyping != nil {
			c.handlers.OnTyping(names)
		}
	case ws.EvtRoomCreated:
		var room ws.RoomDTO
		if json.Unmarshal(f.Payload, &room) == nil && c.handlers.OnRoomCreated != nil {
			c.handlers.OnRoomCreated(room)
		}
	case ws.EvtRoomError:
		var p ws.ErrorPayload
		if json.Unmarshal(f.Payload, &p) == nil && c.handlers.OnRoomError != nil {
			c.handlers.OnRoomError(p.Message)
		}
	case ws.EvtError:
		var p ws.ErrorPayload
		if json.Unmarshal(f.Payload, &p) == nil && c.handlers.OnError != nil {
			c.handlers.OnError(p.Message)
		}
	}
}

func (c *Client) handleAck(f *frame) {
	c.mu.Lock()
	call, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	call.timer.Stop()

	var p ws.AckPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		c.store.Fail(call.localID, "malformed ack")
		return
	}

	if !p.OK {
		c.store.Fail(call.localID, p.Error)
		return
	}
	if p.ID != "" {
		c.store.Confirm(call.localID, p.ID, p.Timestamp)
	}
}

// --- reconnect ---

func (c *Client) onReadFailure(conn *websocket.Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	deliberate := c.closed
	c.conn = nil
	c.mu.Unlock()
	if deliberate {
		return
	}

	slog.Warn("client: connection lost, reconnecting", slog.Any("err", err))

	if rerr := c.reconnect(); rerr != nil {
		if c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected(rerr)
		}
		return
	}
	if c.handlers.OnReconnected != nil {
		c.handlers.OnReconnected()
	}
}

// reconnect retries a bounded number of times: re-auth (the token may
// have expired mid-session), re-dial, re-join rooms, then refetch each
// joined room so missed traffic is reconciled into the store.
func (c *Client) reconnect() error {
	c.mu.Lock()
	username, password := c.username, c.password
	rooms := make([]string, 0, len(c.joined))
	for room := range c.joined {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	ctx := context.Background()
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(c.cfg.ReconnectDelay)

		res, err := c.login(ctx, username, password)
		if err != nil {
			slog.Warn("client: re-auth failed", slog.Int("attempt", attempt), slog.Any("err", err))
			continue
		}
		c.mu.Lock()
		c.token = res.Token
		c.selfID = res.User.ID
		c.mu.Unlock()

		if err := c.connect(ctx); err != nil {
			slog.Warn("client: redial failed", slog.Int("attempt", attempt), slog.Any("err", err))
			continue
		}

		for _, room := range rooms {
			if err := c.JoinRoom(room); err != nil {
				slog.Warn("client: rejoin failed", slog.String("room", room), slog.Any("err", err))
			}
			if err := c.Resync(ctx, room); err != nil {
				slog.Warn("client: resync failed", slog.String("room", room), slog.Any("err", err))
			}
		}
		return nil
	}

	return ErrGaveUp
}

// --- REST history ---

// Resync replaces the room's local view with the server's recent history;
// pending local sends survive the swap.
func (c *Client) Resync(ctx context.Context, room string) error {
	if room == "" {
		room = domain.GeneralRoom
	}

	var res api.MessagesResponse
	q := url.Values{"room": {room}, "limit": {strconv.Itoa(defaultHistoryPage)}}
	if err := c.get(ctx, "/api/messages?"+q.Encode(), &res); err != nil {
		return err
	}

	c.store.ReplaceAll(RoomKey(room), res.Items)
	return nil
}

// LoadOlder fetches the page before the oldest known message and prepends
// it; returns how many genuinely new messages arrived.
func (c *Client) LoadOlder(ctx context.Context, room string) (int, error) {
	if room == "" {
		room = domain.GeneralRoom
	}
	conv := RoomKey(room)

	q := url.Values{"room": {room}, "limit": {strconv.Itoa(defaultHistoryPage)}}
	if before := c.store.OldestID(conv); before != "" {
		q.Set("before", before)
	}

	var res api.MessagesResponse
	if err := c.get(ctx, "/api/messages?"+q.Encode(), &res); err != nil {
		return 0, err
	}
	return c.store.Prepend(conv, res.Items), nil
}

func (c *Client) LoadOlderPrivate(ctx context.Context, otherID int64) (int, error) {
	conv := PrivateKey(otherID)

	q := url.Values{"limit": {strconv.Itoa(defaultHistoryPage)}}
	if before := c.store.OldestID(conv); before != "" {
		q.Set("before", before)
	}

	var res api.MessagesResponse
	path := "/api/messages/private/" + strconv.FormatInt(otherID, 10) + "?" + q.Encode()
	if err := c.get(ctx, path, &res); err != nil {
		return 0, err
	}
	return c.store.Prepend(conv, res.Items), nil
}

func (c *Client) Rooms(ctx context.Context) ([]api.RoomItem, error) {
	var res api.RoomsResponse
	if err := c.get(ctx, "/api/rooms", &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) Users(ctx context.Context) ([]ws.UserItem, error) {
	var res api.UsersResponse
	if err := c.get(ctx, "/api/users", &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) SearchMessages(ctx context.Context, query string) ([]ws.MessageDTO, error) {
	var res api.MessagesResponse
	q := url.Values{"q": {query}}
	if err := c.get(ctx, "/api/messages/search?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// --- HTTP plumbing ---

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) currentUsername() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}
