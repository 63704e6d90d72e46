package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/service"
)

type AuthSvc interface {
	VerifyToken(token string) (domain.UserID, string, error)
	UpdateProfile(ctx context.Context, userID domain.UserID, username *string, profileImage *string) (*domain.User, error)
}

type RoomSvc interface {
	Create(ctx context.Context, name, createdBy string) (*domain.Room, error)
	EnsureJoined(ctx context.Context, name string, user domain.UserID, username string) (*domain.Room, error)
}

type MessageSvc interface {
	SendRoom(ctx context.Context, sender string, senderID domain.UserID, room, text string) (*domain.Message, error)
	SendPrivate(ctx context.Context, sender string, senderID, to domain.UserID, text string) (*domain.Message, error)
	SendFile(ctx context.Context, sender string, senderID domain.UserID, room, fileName, fileType, data string) (*domain.Message, error)
	MarkRead(ctx context.Context, userID domain.UserID, messageID string) (*domain.Message, bool, error)
	React(ctx context.Context, userID domain.UserID, messageID, reactionType string) (*domain.Message, error)
	RoomSnapshot(ctx context.Context, room string) ([]domain.Message, error)
}

type PresenceSvc interface {
	Directory(ctx context.Context, live map[domain.UserID]service.LiveSession) ([]service.UserPresence, error)
	UpdateStatus(ctx context.Context, id domain.UserID, status string) error
}

type Options struct {
	MaxFrameBytes  int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
	AllowedOrigins []string
}

const handlerTimeout = 10 * time.Second

// Server owns the socket endpoint: it authenticates the handshake,
// pumps frames, and fans events out through the hub.
type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	auth      AuthSvc
	rooms     RoomSvc
	msgs      MessageSvc
	presence  PresenceSvc
	maxFrame  int64
	pingEvery time.Duration
	pongWait  time.Duration
}

func NewServer(hub *Hub, auth AuthSvc, rooms RoomSvc, msgs MessageSvc, presence PresenceSvc, opts Options) *Server {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = domain.MaxFileBytes
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		hub:       hub,
		auth:      auth,
		rooms:     rooms,
		msgs:      msgs,
		presence:  presence,
		maxFrame:  opts.MaxFrameBytes,
		pingEvery: opts.PingInterval,
		pongWait:  opts.PongTimeout,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleWS authenticates before upgrading: a bad token is rejected with
// plain HTTP 401 and no socket is ever established.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	userID, username, err := s.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws.upgrade failed", slog.Any("err", err))
		return
	}

	c := newWSConn(uuid.NewString(), raw)
	s.hub.Register(c, userID, username)

	slog.Info("ws.connected",
		slog.String("session", c.SessionID()),
		slog.Int64("user", int64(userID)),
		slog.String("username", username),
	)

	s.afterConnect(c, userID, username)

	go s.pingLoop(c)
	s.readLoop(c, userID)
	s.afterDisconnect(c, username)
}

// afterConnect announces the new session and replays current shared state
// (directory, typing set) so the client starts from a consistent view.
func (s *Server) afterConnect(c *wsConn, userID domain.UserID, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	// every identity is implicitly a member of the default room
	if room, err := s.rooms.EnsureJoined(ctx, domain.GeneralRoom, userID, username); err != nil {
		slog.Error("ws.connect.ensureGeneral failed", slog.Any("err", err))
	} else {
		s.hub.JoinRoom(c.SessionID(), room.Name)
	}

	s.hub.BroadcastAll(Envelope{Type: EvtUserJoined, Payload: PeerEventPayload{
		ID:       c.SessionID(),
		Username: username,
	}})
	s.broadcastUserList(ctx)
	s.hub.SendTo(c.SessionID(), Envelope{Type: EvtTypingUsers, Payload: s.hub.TypingNames()})
}

func (s *Server) afterDisconnect(c *wsConn, username string) {
	_ = c.Close()
	s.hub.Unregister(c.SessionID())

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	s.hub.BroadcastAll(Envelope{Type: EvtUserLeft, Payload: PeerEventPayload{
		ID:       c.SessionID(),
		Username: username,
	}})
	s.broadcastUserList(ctx)
	// the session's typing entry is gone with it
	s.hub.BroadcastAll(Envelope{Type: EvtTypingUsers, Payload: s.hub.TypingNames()})

	slog.Info("ws.disconnected", slog.String("session", c.SessionID()))
}

func (s *Server) pingLoop(c *wsConn) {
	t := time.NewTicker(s.pingEvery)
	defer t.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-t.C:
			if err := c.ping(); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) readLoop(c *wsConn, userID domain.UserID) {
	c.raw.SetReadLimit(s.maxFrame)
	_ = c.raw.SetReadDeadline(time.Now().Add(s.pongWait))
	c.raw.SetPongHandler(func(string) error {
		return c.raw.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		var in inbound
		if err := c.raw.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws.read failed", slog.String("session", c.SessionID()), slog.Any("err", err))
			}
			return
		}
		s.dispatch(c, userID, &in)
	}
}

func (s *Server) dispatch(c *wsConn, userID domain.UserID, in *inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch in.Type {
	case EvtSendMessage:
		s.handleSendMessage(ctx, c, userID, in)
	case EvtPrivateMessage:
		s.handlePrivateMessage(ctx, c, userID, in)
	case EvtTyping:
		s.handleTyping(c, in)
	case EvtJoinRoom:
		s.handleJoinRoom(ctx, c, userID, in)
	case EvtLeaveRoom:
		s.handleLeaveRoom(c, in)
	case EvtCreateRoom:
		s.handleCreateRoom(ctx, c, in)
	case EvtSendRoomMessage:
		s.handleRoomMessage(ctx, c, userID, in)
	case EvtSendFile:
		s.handleSendFile(ctx, c, userID, in)
	case EvtMessageRead:
		s.handleMessageRead(ctx, c, userID, in)
	case EvtMessageReaction:
		s.handleReaction(ctx, c, userID, in)
	case EvtStatusChange:
		s.handleStatusChange(ctx, c, userID, in)
	case EvtUpdateProfile:
		s.handleUpdateProfile(ctx, c, userID, in)
	default:
		s.nack(c, in.ID, errors.New("unknown event type: "+in.Type))
	}
}

func (s *Server) handleSendMessage(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p SendMessagePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	m, err := s.msgs.SendRoom(ctx, s.hub.Username(c.SessionID()), userID, p.Room, p.Message)
	if err != nil {
		s.reject(c, in.ID, err)
		return
	}

	env := Envelope{Type: EvtReceiveMessage, Payload: MessageToDTO(m)}
	if p.Room == "" {
		s.hub.BroadcastAll(env)
	} else {
		s.hub.BroadcastRoom(m.Room, env)
	}
	s.ackStored(c, in.ID, m)
}

func (s *Server) handlePrivateMessage(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p PrivateMessagePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	to := domain.UserID(p.To)
	m, err := s.msgs.SendPrivate(ctx, s.hub.Username(c.SessionID()), userID, to, p.Message)
	if err != nil {
		s.reject(c, in.ID, err)
		return
	}

	// route by identity: every session of the recipient AND of the sender
	// gets the message, so all open devices converge.
	env := Envelope{Type: EvtPrivateMessage, Payload: MessageToDTO(m)}
	delivered := s.hub.SendToUser(to, env)
	if to != userID {
		s.hub.SendToUser(userID, env)
	}

	s.hub.SendTo(c.SessionID(), Envelope{Type: EvtDebug, Payload: DebugPayload{
		Event:          EvtPrivateMessage,
		RecipientFound: delivered > 0,
		MessageID:      m.ID,
		SavedOK:        true,
	}})
	s.ackStored(c, in.ID, m)
}

func (s *Server) handleTyping(c *wsConn, in *inbound) {
	var p TypingPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	names := s.hub.SetTyping(c.SessionID(), p.IsTyping)
	s.hub.BroadcastAll(Envelope{Type: EvtTypingUsers, Payload: names})
	s.ack(c, in.ID, AckPayload{OK: true})
}

func (s *Server) handleJoinRoom(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p JoinRoomPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	username := s.hub.Username(c.SessionID())
	room, err := s.rooms.EnsureJoined(ctx, p.Room, userID, username)
	if err != nil {
		s.hub.SendTo(c.SessionID(), Envelope{Type: EvtRoomError, Payload: ErrorPayload{Message: err.Error()}})
		s.nack(c, in.ID, err)
		return
	}
	s.hub.JoinRoom(c.SessionID(), room.Name)

	snapshot, err := s.msgs.RoomSnapshot(ctx, room.Name)
	if err != nil {
		slog.Error("ws.joinRoom.snapshot failed", slog.String("room", room.Name), slog.Any("err", err))
		snapshot = nil
	}
	s.hub.SendTo(c.SessionID(), Envelope{Type: EvtRoomMessages, Payload: RoomMessagesPayload{
		Room:     room.Name,
		Messages: MessagesToDTO(snapshot),
	}})

	s.hub.BroadcastRoom(room.Name, Envelope{Type: EvtRoomUserJoined, Payload: RoomPeerPayload{
		Room:      room.Name,
		Username:  username,
		ID:        c.SessionID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}})

	n := len(snapshot)
	s.ack(c, in.ID, AckPayload{OK: true, Count: &n})
}

func (s *Server) handleLeaveRoom(c *wsConn, in *inbound) {
	var p JoinRoomPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	s.hub.LeaveRoom(c.SessionID(), p.Room)
	s.hub.BroadcastRoom(p.Room, Envelope{Type: EvtRoomUserLeft, Payload: RoomPeerPayload{
		Room:      p.Room,
		Username:  s.hub.Username(c.SessionID()),
		ID:        c.SessionID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}})
	s.ack(c, in.ID, AckPayload{OK: true})
}

func (s *Server) handleCreateRoom(ctx context.Context, c *wsConn, in *inbound) {
	var p CreateRoomPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	room, err := s.rooms.Create(ctx, p.Name, s.hub.Username(c.SessionID()))
	if err != nil {
		s.hub.SendTo(c.SessionID(), Envelope{Type: EvtRoomError, Payload: ErrorPayload{Message: err.Error()}})
		s.nack(c, in.ID, err)
		return
	}

	s.hub.BroadcastAll(Envelope{Type: EvtRoomCreated, Payload: RoomDTO{
		ID:        room.ID,
		Name:      room.Name,
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
	}})
	s.ack(c, in.ID, AckPayload{OK: true})
}

func (s *Server) handleRoomMessage(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p RoomMessagePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	m, err := s.msgs.SendRoom(ctx, s.hub.Username(c.SessionID()), userID, p.Room, p.Message)
	if err != nil {
		s.reject(c, in.ID, err)
		return
	}

	s.hub.BroadcastRoom(m.Room, Envelope{Type: EvtRoomMessage, Payload: MessageToDTO(m)})
	s.ackStored(c, in.ID, m)
}

func (s *Server) handleSendFile(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p SendFilePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	m, err := s.msgs.SendFile(ctx, s.hub.Username(c.SessionID()), userID, p.Room, p.FileName, p.FileType, p.Data)
	if err != nil {
		s.reject(c, in.ID, err)
		return
	}

	if p.Room == "" {
		s.hub.BroadcastAll(Envelope{Type: EvtReceiveMessage, Payload: MessageToDTO(m)})
	} else {
		s.hub.BroadcastRoom(m.Room, Envelope{Type: EvtRoomFile, Payload: MessageToDTO(m)})
	}
	s.ackStored(c, in.ID, m)
}

func (s *Server) handleMessageRead(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p MessageReadPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	m, changed, err := s.msgs.MarkRead(ctx, userID, p.MessageID)
	if err != nil {
		// unknown ids happen during races with history loads; not worth
		// surfacing to the user
		if !errors.Is(err, domain.ErrMessageNotFound) {
			slog.Error("ws.messageRead failed", slog.Any("err", err))
		}
		s.nack(c, in.ID, err)
		return
	}
	if changed {
		s.hub.BroadcastAll(Envelope{Type: EvtMessageUpdated, Payload: MessageToDTO(m)})
	}
	s.ack(c, in.ID, AckPayload{OK: true})
}

func (s *Server) handleReaction(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p ReactionPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	m, err := s.msgs.React(ctx, userID, p.MessageID, p.Reaction)
	if err != nil {
		s.nack(c, in.ID, err)
		return
	}

	s.hub.BroadcastAll(Envelope{Type: EvtMessageUpdated, Payload: MessageToDTO(m)})
	s.ack(c, in.ID, AckPayload{OK: true})
}

func (s *Server) handleStatusChange(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p StatusChangePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	status := p.Status
	switch status {
	case domain.StatusOnline, domain.StatusAway, domain.StatusOffline:
	default:
		status = domain.StatusOnline
	}

	s.hub.SetStatus(c.SessionID(), status)
	if err := s.presence.UpdateStatus(ctx, userID, status); err != nil {
		slog.Error("ws.statusChange.persist failed", slog.Any("err", err))
	}
	s.broadcastUserList(ctx)
	s.ack(c, in.ID, AckPayload{OK: true})
}

func (s *Server) handleUpdateProfile(ctx context.Context, c *wsConn, userID domain.UserID, in *inbound) {
	var p UpdateProfilePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		s.nack(c, in.ID, err)
		return
	}

	u, err := s.auth.UpdateProfile(ctx, userID, &p.Username, nil)
	if err != nil {
		s.reject(c, in.ID, err)
		return
	}

	s.hub.SetUsername(c.SessionID(), u.Username)
	s.hub.BroadcastAll(Envelope{Type: EvtUserUpdated, Payload: UserItem{
		ID:           int64(u.ID),
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		Status:       u.Status,
	}})
	s.broadcastUserList(ctx)
	// typing names are display names; refresh after a rename
	s.hub.BroadcastAll(Envelope{Type: EvtTypingUsers, Payload: s.hub.TypingNames()})
	s.ack(c, in.ID, AckPayload{OK: true})
}

// UserList merges the durable directory with registry liveness. Shared
// with the HTTP surface.
func (s *Server) UserList(ctx context.Context) ([]UserItem, error) {
	live := make(map[domain.UserID]service.LiveSession)
	for id, l := range s.hub.OnlineUsers() {
		live[id] = service.LiveSession{SessionID: l.SessionID, Status: l.Status}
	}

	dir, err := s.presence.Directory(ctx, live)
	if err != nil {
		return nil, err
	}

	items := make([]UserItem, 0, len(dir))
	for _, u := range dir {
		items = append(items, UserItem{
			ID:           int64(u.ID),
			Username:     u.Username,
			ProfileImage: u.ProfileImage,
			Status:       u.Status,
			SessionID:    u.SessionID,
		})
	}
	return items, nil
}

// AnnounceUser pushes user_updated plus a refreshed directory to every
// session; used by the REST profile-update path.
func (s *Server) AnnounceUser(ctx context.Context, u *domain.User) {
	for _, c := range s.hub.SessionsFor(u.ID) {
		s.hub.SetUsername(c.SessionID(), u.Username)
	}
	s.hub.BroadcastAll(Envelope{Type: EvtUserUpdated, Payload: UserItem{
		ID:           int64(u.ID),
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		Status:       u.Status,
	}})
	s.broadcastUserList(ctx)
}

// AnnounceRoom pushes room_created to every session; used by the REST
// creation path so socket clients stay in sync.
func (s *Server) AnnounceRoom(room *domain.Room) {
	s.hub.BroadcastAll(Envelope{Type: EvtRoomCreated, Payload: RoomDTO{
		ID:        room.ID,
		Name:      room.Name,
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
	}})
}

func (s *Server) broadcastUserList(ctx context.Context) {
	items, err := s.UserList(ctx)
	if err != nil {
		slog.Error("ws.userList failed", slog.Any("err", err))
		return
	}
	s.hub.BroadcastAll(Envelope{Type: EvtUserList, Payload: items})
}

// ackStored confirms a persisted message with its canonical id/timestamp so
// the client can retire the optimistic entry.
func (s *Server) ackStored(c *wsConn, corrID string, m *domain.Message) {
	ts := m.CreatedAt
	s.ack(c, corrID, AckPayload{OK: true, ID: m.ID, Timestamp: &ts})
}

func (s *Server) ack(c *wsConn, corrID string, p AckPayload) {
	if corrID == "" {
		return
	}
	_ = c.Send(Envelope{Type: EvtAck, ID: corrID, Payload: p})
}

func (s *Server) nack(c *wsConn, corrID string, err error) {
	if corrID == "" {
		return
	}
	_ = c.Send(Envelope{Type: EvtAck, ID: corrID, Payload: AckPayload{OK: false, Error: err.Error()}})
}

// reject both nacks the frame and sends an error event, so clients that
// ignore acks still see the failure.
func (s *Server) reject(c *wsConn, corrID string, err error) {
	s.nack(c, corrID, err)
	_ = c.Send(Envelope{Type: EvtError, Payload: ErrorPayload{Message: err.Error()}})
}
