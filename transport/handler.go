package transport

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

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/pipeline"
	"chat-relay/services"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the fronting proxy
		return true
	},
}

// UserAccountStore is what the auth endpoints need from user persistence.
type UserAccountStore interface {
	Save(user domain.User) error
	FindByEmail(email string) (domain.User, error)
}

// SessionWriter opens a server-side session record at login time.
type SessionWriter interface {
	Save(ctx context.Context, userID, sessionID string) error
}

// Handler owns the HTTP surface: account endpoints and the WebSocket
// event channel.
type Handler struct {
	tokens   *auth.TokenManager
	accounts UserAccountStore
	sessions SessionWriter
	pipe     *pipeline.Pipeline
	rooms    *services.RoomService
	log      *slog.Logger
}

func NewHandler(tokens *auth.TokenManager, accounts UserAccountStore,
	sessions SessionWriter, pipe *pipeline.Pipeline, rooms *services.RoomService,
	log *slog.Logger) *Handler {
	return &Handler{
		tokens:   tokens,
		accounts: accounts,
		sessions: sessions,
		pipe:     pipe,
		rooms:    rooms,
		log:      log,
	}
}

// Register wires the handler's routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /rooms", h.handleCreateRoom)
	mux.HandleFunc("GET /ws", h.handleWS)
}

type createRoomRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.bearerClaims(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "room name is required")
		return
	}

	room, err := h.rooms.Create(uuid.New().String(), req.Name, claims.UserID, req.Password)
	if err != nil {
		h.log.Error("Room creation failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "room creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          room.ID,
		"name":        room.Name,
		"hasPassword": room.HasPassword,
	})
}

// bearerClaims validates the Authorization header of an authenticated
// HTTP request.
func (h *Handler) bearerClaims(r *http.Request) (*auth.Claims, bool) {
	header := r.Header.Get("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return nil, false
	}
	claims, err := h.tokens.Validate(tokenString)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := auth.ValidateRegister(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.accounts.FindByEmail(req.Email); err == nil {
		writeJSONError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error("Password hashing failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := domain.User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.accounts.Save(user); err != nil {
		h.log.Error("Account persistence failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.log.Info("Account registered", "userId", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "name": user.Name})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.FindByEmail(req.Email)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, apperrors.ErrBadCredentials.Error())
		return
	}
	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		writeJSONError(w, http.StatusUnauthorized, apperrors.ErrBadCredentials.Error())
		return
	}

	sessionID := uuid.New().String()
	if err := h.sessions.Save(r.Context(), user.ID, sessionID); err != nil {
		// The soft-fail session policy applies downstream too, login proceeds
		h.log.Warn("Session record write failed", "userId", user.ID, "err", err)
	}

	token, err := h.tokens.Generate(user.ID, user.Name, sessionID)
	if err != nil {
		h.log.Error("Token generation failed", "userId", user.ID, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.log.Info("User logged in", "userId", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"id":    user.ID,
		"name":  user.Name,
	})
}

// handleWS authenticates the handshake, upgrades the connection and runs the
// read loop until the peer goes away.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := h.tokens.Validate(tokenString)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "err", err)
		return
	}

	identity := domain.SocketIdentity{
		UserID:        claims.UserID,
		DisplayName:   claims.Name,
		AuthSessionID: claims.SessionID,
		ConnectionID:  uuid.New().String(),
	}
	conn := newConn(sock, identity, h.log)
	h.log.Info("Connection established", "connId", conn.ID(), "userId", identity.UserID)

	h.readLoop(r.Context(), conn)
}

// readLoop dispatches inbound frames until the connection drops, then
// detaches the connection from every room it joined.
func (h *Handler) readLoop(ctx context.Context, conn *wsConn) {
	joined := make(map[string]bool)
	defer func() {
		conn.close()
		for roomID := range joined {
			h.rooms.Leave(ctx, conn, roomID)
		}
		h.log.Info("Connection closed", "connId", conn.ID())
	}()

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Connection read failed", "connId", conn.ID(), "err", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.SendEvent(event.Error, event.ErrorPayload{
				Code: event.CodeMessageError, Message: "malformed frame"})
			continue
		}
		h.dispatch(ctx, conn, frame, joined)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *wsConn, frame Frame, joined map[string]bool) {
	switch frame.Event {
	case event.ChatMessage:
		payload := new(event.ChatMessagePayload)
		if err := json.Unmarshal(frame.Data, payload); err != nil {
			payload = nil
		}
		h.pipe.HandleChatMessage(ctx, conn, payload)

	case event.JoinRoom:
		var payload event.JoinRoomPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			conn.SendEvent(event.JoinRoomError, event.ErrorPayload{
				Code: event.CodeMessageError, Message: "malformed joinRoom payload"})
			return
		}
		h.rooms.Join(ctx, conn, payload)
		joined[payload.Room] = true

	case event.LeaveRoom:
		var payload event.RoomEventPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		h.rooms.Leave(ctx, conn, payload.RoomID)
		delete(joined, payload.RoomID)

	case "history":
		h.handleHistory(ctx, conn, frame.Data)

	default:
		h.log.Debug("Unknown event ignored", "connId", conn.ID(), "event", frame.Event)
	}
}

type historyRequest struct {
	Room   string `json:"room"`
	Before int64  `json:"before"`
	Limit  int    `json:"limit"`
}

type historyResponse struct {
	Room     string                 `json:"room"`
	Messages []event.MessagePayload `json:"messages"`
}

func (h *Handler) handleHistory(ctx context.Context, conn *wsConn, data json.RawMessage) {
	var req historyRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Room == "" {
		conn.SendEvent(event.Error, event.ErrorPayload{
			Code: event.CodeMessageError, Message: "malformed history request"})
		return
	}

	var before time.Time
	if req.Before > 0 {
		before = time.UnixMilli(req.Before).UTC()
	}
	messages, err := h.rooms.History(ctx, req.Room, before, req.Limit)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			h.log.Error("History read failed", "roomId", req.Room, "err", err)
		}
		conn.SendEvent(event.Error, event.ErrorPayload{
			Code: event.CodeMessageError, Message: "history unavailable"})
		return
	}
	conn.SendEvent("history", historyResponse{Room: req.Room, Messages: messages})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
