package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// WSHandler wires websocket connections into the room and game use cases.
// Each connection is one player's independent observer: actions become
// transactional mutations, and state flows back as room snapshots plus the
// typed events derived from diffing consecutive snapshots.
type WSHandler struct {
	rooms    *app.RoomService
	games    *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, games *app.GameService) *WSHandler {
	return &WSHandler{
		rooms: rooms,
		games: games,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createRoomPayload struct {
	Name       string              `json:"name"`
	MaxPlayers int                 `json:"maxPlayers"`
	IsPrivate  bool                `json:"isPrivate"`
	Password   string              `json:"password"`
	QuizID     string              `json:"quizId"`
	Quiz       *domain.Quiz        `json:"quiz,omitempty"`
	Settings   domain.RoomSettings `json:"settings"`
}

type joinRoomPayload struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	OptionIndex *int   `json:"optionIndex,omitempty"`
	Text        string `json:"text,omitempty"`
	TimeSpentMs int64  `json:"timeSpentMs"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type kickPayload struct {
	PlayerID string `json:"playerId"`
}

// session tracks one connection's room membership and its pump goroutines.
type session struct {
	userID   string
	username string
	roomID   string
	cancels  []func()
	stop     chan struct{}
	pumps    []chan struct{}
}

// dropSubscriptions cancels this client's subscriptions and waits for the
// pump goroutines to drain. Only the client's local machinery stops; the
// room's own scheduled advancement is never touched from here.
func (s *session) dropSubscriptions() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	for _, done := range s.pumps {
		<-done
	}
	s.pumps = nil
}

// ServeWS upgrades the request and runs the connection's message loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	username := r.URL.Query().Get("name")
	if userID == "" || username == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sess := &session{userID: userID, username: username}

	send := make(chan outboundMessage, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, sess, send, inbound)
	}

	sess.dropSubscriptions()
	if sess.roomID != "" {
		// A dropped connection flips presence only; the player record and
		// any pending room advancement survive the disconnect.
		_ = h.rooms.SetPresence(context.Background(), sess.roomID, sess.userID, false)
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, sess *session, send chan outboundMessage, inbound inboundMessage) {
	switch inbound.Type {
	case "create_room":
		var payload createRoomPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		room, _, err := h.rooms.CreateRoom(ctx, sess.userID, sess.username, app.RoomConfig{
			Name:       payload.Name,
			MaxPlayers: payload.MaxPlayers,
			IsPrivate:  payload.IsPrivate,
			Password:   payload.Password,
			QuizID:     payload.QuizID,
			Settings:   payload.Settings,
		}, payload.Quiz)
		if err != nil {
			sendErr(send, err)
			return
		}
		h.attach(ctx, sess, send, room)

	case "join_room":
		var payload joinRoomPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		room, _, err := h.rooms.JoinRoom(ctx, payload.Code, sess.userID, sess.username, payload.Password)
		if err != nil {
			sendErr(send, err)
			return
		}
		h.attach(ctx, sess, send, room)

	case "leave_room":
		if sess.roomID == "" {
			return
		}
		sess.dropSubscriptions()
		if err := h.rooms.LeaveRoom(ctx, sess.roomID, sess.userID); err != nil {
			sendErr(send, err)
		}
		sess.roomID = ""

	case "ready":
		var payload readyPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if _, err := h.rooms.SetReady(ctx, sess.roomID, sess.userID, payload.Ready); err != nil {
			sendErr(send, err)
		}

	case "start_game":
		if _, err := h.games.StartGame(ctx, sess.roomID, sess.userID); err != nil {
			sendErr(send, err)
		}

	case "answer":
		var payload answerPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		answer, err := h.games.SubmitAnswer(ctx, sess.roomID, sess.userID, payload.QuestionID, domain.SubmittedValue{
			OptionIndex: payload.OptionIndex,
			Text:        payload.Text,
		}, payload.TimeSpentMs)
		if err != nil {
			sendErr(send, err)
			return
		}
		send <- outboundMessage{Type: "answer_result", Payload: answer}

	case "chat":
		var payload chatPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if err := h.rooms.SendChat(ctx, sess.roomID, sess.userID, payload.Message); err != nil {
			sendErr(send, err)
		}

	case "kick_player":
		var payload kickPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if err := h.rooms.KickPlayer(ctx, sess.roomID, sess.userID, payload.PlayerID); err != nil {
			sendErr(send, err)
		}

	case "update_settings":
		var payload domain.RoomSettings
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if _, err := h.rooms.UpdateSettings(ctx, sess.roomID, sess.userID, payload); err != nil {
			sendErr(send, err)
		}

	default:
		send <- outboundMessage{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}}
	}
}

// attach switches the session onto a room: subscribes to snapshots and chat,
// re-arms any pending advancement, and emits the initial state.
func (h *WSHandler) attach(ctx context.Context, sess *session, send chan outboundMessage, room domain.Room) {
	sess.dropSubscriptions()
	sess.roomID = room.ID
	sess.stop = make(chan struct{})

	// Idempotent: lets a fresh process pick up a room mid-match.
	if err := h.games.Resume(ctx, room.ID); err != nil {
		log.Printf("resume room %s: %v", room.ID, err)
	}

	updates, cancelUpdates, err := h.rooms.Subscribe(ctx, room.ID)
	if err != nil {
		sendErr(send, err)
		return
	}
	sess.cancels = append(sess.cancels, cancelUpdates)

	chatFeed, cancelChat, err := h.rooms.SubscribeChat(ctx, room.ID)
	if err != nil {
		sess.dropSubscriptions()
		sendErr(send, err)
		return
	}
	sess.cancels = append(sess.cancels, cancelChat)

	send <- outboundMessage{Type: "joined", Payload: room.Sanitized()}
	if history, err := h.rooms.ChatHistory(ctx, room.ID, 50); err == nil && len(history) > 0 {
		send <- outboundMessage{Type: "chat_history", Payload: history}
	}

	stop := sess.stop
	roomPump := make(chan struct{})
	sess.pumps = append(sess.pumps, roomPump)
	go func() {
		defer close(roomPump)
		prev := room
		for {
			select {
			case next, ok := <-updates:
				if !ok {
					return
				}
				for _, event := range domain.DiffRooms(&prev, &next) {
					trySend(send, stop, outboundMessage{Type: "event", Payload: event})
				}
				trySend(send, stop, outboundMessage{Type: "room", Payload: next.Sanitized()})
				if showLeaderboard(&next) {
					trySend(send, stop, outboundMessage{Type: "leaderboard", Payload: domain.BuildLeaderboard(&next)})
				}
				prev = next
			case <-stop:
				return
			}
		}
	}()

	chatPump := make(chan struct{})
	sess.pumps = append(sess.pumps, chatPump)
	go func() {
		defer close(chatPump)
		for {
			select {
			case msg, ok := <-chatFeed:
				if !ok {
					return
				}
				trySend(send, stop, outboundMessage{Type: "chat", Payload: msg})
			case <-stop:
				return
			}
		}
	}()
}

// showLeaderboard gates ranking pushes on the room settings and phase.
func showLeaderboard(room *domain.Room) bool {
	if !room.Settings.ShowLeaderboard || room.Game == nil {
		return false
	}
	return room.Game.Phase == domain.PhaseResults || room.Game.Phase == domain.PhaseFinished
}

func trySend(send chan outboundMessage, stop chan struct{}, msg outboundMessage) {
	select {
	case send <- msg:
	case <-stop:
	}
}

func decode(raw json.RawMessage, v any, send chan outboundMessage) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		send <- outboundMessage{Type: "error", Payload: errorPayload{Code: "bad_payload", Message: "invalid payload"}}
		return false
	}
	return true
}

func sendErr(send chan outboundMessage, err error) {
	send <- outboundMessage{Type: "error", Payload: errorPayload{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	}}
}
