package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
	"github.com/vega-chat/chat-service/internal/service"
	httpmw "github.com/vega-chat/chat-service/internal/transport/http/middleware"
	"github.com/vega-chat/chat-service/internal/transport/ws"
)

type Handler struct {
	authSvc *service.AuthService
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
	wsSrv   *ws.Server
}

func NewHandler(auth *service.AuthService, rooms *service.RoomService, msgs *service.MessageService, wsSrv *ws.Server) *Handler {
	return &Handler{
		authSvc: auth,
		roomSvc: rooms,
		msgSvc:  msgs,
		wsSrv:   wsSrv,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
}

// statusFor collapses the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUsernameRequired),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrRoomNameRequired),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrFileNameRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomExists),
		errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	res, err := h.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			slog.Error("handler.Login:", slog.Any("err", err))
		}
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token:     res.Token,
		ExpiresIn: int64(h.authSvc.AccessTTL().Seconds()),
		User:      toUserResponse(res.User),
	})
}

// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	res, err := h.authSvc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "username taken"})
			return
		}
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Token:     res.Token,
		ExpiresIn: int64(h.authSvc.AccessTTL().Seconds()),
		User:      toUserResponse(res.User),
	})
}

// GET /api/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	u, threads, err := h.authSvc.Profile(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := ProfileResponse{User: toUserResponse(u), Threads: make([]ThreadItem, 0, len(threads))}
	for _, t := range threads {
		item := ThreadItem{OtherID: int64(t.OtherID)}
		if t.LastMessage != nil {
			dto := ws.MessageToDTO(t.LastMessage)
			item.LastMessage = &dto
		}
		resp.Threads = append(resp.Threads, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// PUT /api/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	u, err := h.authSvc.UpdateProfile(r.Context(), userID, req.Username, req.ProfileImage)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "username taken"})
			return
		}
		writeErr(w, err)
		return
	}

	h.wsSrv.AnnounceUser(r.Context(), u)

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GET /api/messages?room=&before=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	before := r.URL.Query().Get("before")

	items, err := h.msgSvc.RoomHistory(r.Context(), room, before, queryLimit(r))
	if err != nil {
		slog.Error("handler.GetMessages:", slog.Any("err", err))
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessagesResponse{Items: ws.MessagesToDTO(items)})
}

// GET /api/messages/private/{otherId}?before=&limit=
func (h *Handler) GetPrivateMessages(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	other, err := strconv.ParseInt(chi.URLParam(r, "otherId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid otherId"})
		return
	}
	before := r.URL.Query().Get("before")

	items, err := h.msgSvc.PrivateHistory(r.Context(), userID, domain.UserID(other), before, queryLimit(r))
	if err != nil {
		slog.Error("handler.GetPrivateMessages:", slog.Any("err", err))
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessagesResponse{Items: ws.MessagesToDTO(items)})
}

// GET /api/messages/search?q=&limit=
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	items, err := h.msgSvc.Search(r.Context(), r.URL.Query().Get("q"), queryLimit(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessagesResponse{Items: ws.MessagesToDTO(items)})
}

// GET /api/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomSvc.List(r.Context())
	if err != nil {
		slog.Error("handler.ListRooms:", slog.Any("err", err))
		writeErr(w, err)
		return
	}

	resp := RoomsResponse{Items: make([]RoomItem, 0, len(rooms))}
	for _, rm := range rooms {
		resp.Items = append(resp.Items, RoomItem{
			ID:        rm.ID,
			Name:      rm.Name,
			CreatedBy: rm.CreatedBy,
			CreatedAt: rm.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /api/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	room, err := h.roomSvc.Create(r.Context(), req.Name, httpmw.UsernameFromCtx(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}

	// socket clients learn about the room the same way as a ws create_room
	h.wsSrv.AnnounceRoom(room)

	writeJSON(w, http.StatusCreated, RoomItem{
		ID:        room.ID,
		Name:      room.Name,
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
	})
}

// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.wsSrv.UserList(r.Context())
	if err != nil {
		slog.Error("handler.ListUsers:", slog.Any("err", err))
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UsersResponse{Items: items})
}

func queryLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
