package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

type testEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewRoomStore()
	sched := app.NewTimerScheduler()
	t.Cleanup(sched.Close)

	rooms := app.NewRoomService(store)
	games := app.NewGameService(store, nil, sched, app.GameConfig{
		Countdown:    50 * time.Millisecond,
		ResultsDelay: 50 * time.Millisecond,
	})
	rooms.SetQuorumNotifier(games.CheckQuorum)
	handler := NewWSHandler(rooms, games)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + userID + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", name, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(testEnvelope{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil scans the stream for the first message of the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var env testEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return env.Payload
		}
	}
	t.Fatalf("no %s message before deadline", msgType)
	return nil
}

// readRoomUntil scans joined/room snapshots until the predicate holds.
func readRoomUntil(t *testing.T, conn *websocket.Conn, pred func(domain.Room) bool) domain.Room {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var env testEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for room snapshot: %v", err)
		}
		if env.Type != "room" && env.Type != "joined" {
			continue
		}
		var room domain.Room
		if err := json.Unmarshal(env.Payload, &room); err != nil {
			t.Fatalf("decode room: %v", err)
		}
		if pred(room) {
			return room
		}
	}
	t.Fatal("no matching room snapshot before deadline")
	return domain.Room{}
}

func createTestRoom(t *testing.T, conn *websocket.Conn, payload createRoomPayload) domain.Room {
	t.Helper()
	if payload.Quiz == nil {
		payload.Quiz = &domain.Quiz{
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Kind: domain.KindMultipleChoice,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
					},
				},
			},
		}
	}
	sendMsg(t, conn, "create_room", payload)
	var room domain.Room
	if err := json.Unmarshal(readUntil(t, conn, "joined"), &room); err != nil {
		t.Fatalf("decode joined room: %v", err)
	}
	return room
}

func TestServeWSRequiresIdentity(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestCreateRoomOverWS(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "u1", "alice")

	room := createTestRoom(t, alice, createRoomPayload{
		Name:      "friday night",
		IsPrivate: true,
		Password:  "1234",
	})
	if room.Name != "friday night" || len(room.Code) != domain.CodeLength {
		t.Fatalf("room = %+v", room)
	}
	if room.PasswordHash != "" {
		t.Fatal("password hash leaked to the client")
	}
	if len(room.Players) != 1 || room.Players[0].ID != "u1" {
		t.Fatalf("roster = %+v", room.Players)
	}
}

func TestJoinRoomOverWS(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "u1", "alice")
	bob := dial(t, srv, "u2", "bob")

	room := createTestRoom(t, alice, createRoomPayload{})

	// Wrong code surfaces a machine-readable error.
	sendMsg(t, bob, "join_room", joinRoomPayload{Code: "NOSUCH"})
	var errPayload errorPayload
	if err := json.Unmarshal(readUntil(t, bob, "error"), &errPayload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Code != "room_not_found" {
		t.Fatalf("error code %q", errPayload.Code)
	}

	sendMsg(t, bob, "join_room", joinRoomPayload{Code: room.Code})
	joined := readRoomUntil(t, bob, func(r domain.Room) bool { return r.ID == room.ID })
	if joined.FindPlayer("u2") == nil {
		t.Fatalf("bob missing from roster: %+v", joined.Players)
	}

	// Alice observes the join as a typed event.
	var event domain.Event
	if err := json.Unmarshal(readUntil(t, alice, "event"), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Kind != domain.EventPlayerJoined || event.PlayerID != "u2" {
		t.Fatalf("event = %+v", event)
	}
}

func TestChatOverWS(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "u1", "alice")
	bob := dial(t, srv, "u2", "bob")

	room := createTestRoom(t, alice, createRoomPayload{})
	sendMsg(t, bob, "join_room", joinRoomPayload{Code: room.Code})
	readUntil(t, bob, "joined")

	sendMsg(t, bob, "chat", chatPayload{Message: "hello"})

	var msg domain.ChatMessage
	if err := json.Unmarshal(readUntil(t, alice, "chat"), &msg); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if msg.Body != "hello" || msg.Username != "bob" || msg.Kind != domain.ChatKindUser {
		t.Fatalf("chat = %+v", msg)
	}
}

func TestGameFlowOverWS(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "u1", "alice")
	bob := dial(t, srv, "u2", "bob")

	room := createTestRoom(t, alice, createRoomPayload{})
	sendMsg(t, bob, "join_room", joinRoomPayload{Code: room.Code})
	readUntil(t, bob, "joined")

	sendMsg(t, alice, "start_game", struct{}{})

	// Countdown elapses server-side; wait for the first question.
	playing := readRoomUntil(t, alice, func(r domain.Room) bool {
		return r.Status == domain.StatusPlaying && r.Game != nil && r.Game.Phase == domain.PhaseQuestion
	})
	questionID := playing.Game.Questions[0].ID

	one := 1
	sendMsg(t, alice, "answer", answerPayload{QuestionID: questionID, OptionIndex: &one, TimeSpentMs: 100})
	var answer domain.Answer
	if err := json.Unmarshal(readUntil(t, alice, "answer_result"), &answer); err != nil {
		t.Fatalf("decode answer result: %v", err)
	}
	if !answer.IsCorrect || answer.PointsEarned <= 0 {
		t.Fatalf("answer = %+v", answer)
	}

	zero := 0
	sendMsg(t, bob, "answer", answerPayload{QuestionID: questionID, OptionIndex: &zero, TimeSpentMs: 200})
	readUntil(t, bob, "answer_result")

	// Single-question quiz: quorum, results delay, then the terminal state.
	finished := readRoomUntil(t, alice, func(r domain.Room) bool {
		return r.Status == domain.StatusFinished
	})
	if finished.Game.Phase != domain.PhaseFinished {
		t.Fatalf("phase %s", finished.Game.Phase)
	}
}

func TestAnswerBeforeStartRejected(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "u1", "alice")

	createTestRoom(t, alice, createRoomPayload{})

	one := 1
	sendMsg(t, alice, "answer", answerPayload{QuestionID: "q1", OptionIndex: &one})
	var errPayload errorPayload
	if err := json.Unmarshal(readUntil(t, alice, "error"), &errPayload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Code != "invalid_state" {
		t.Fatalf("error code %q", errPayload.Code)
	}
}
