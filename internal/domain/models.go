package domain

import "time"

// RoomStatus is the coarse lifecycle of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusStarting RoomStatus = "starting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

// GamePhase is the sub-state of an active match.
type GamePhase string

const (
	PhaseQuestion GamePhase = "question"
	PhaseResults  GamePhase = "results"
	PhaseFinished GamePhase = "finished"
)

// RoomSettings are host-tunable options, frozen once the game starts.
type RoomSettings struct {
	TimePerQuestionSeconds int  `json:"timePerQuestionSeconds"`
	AllowLateJoin          bool `json:"allowLateJoin"`
	ShowLeaderboard        bool `json:"showLeaderboard"`
}

// Answer is immutable once written. IsCorrect and PointsEarned are computed
// at submission time against the question active in the same transaction,
// never taken from the client.
type Answer struct {
	QuestionID   string    `json:"questionId"`
	Selected     string    `json:"selected"`
	IsCorrect    bool      `json:"isCorrect"`
	TimeSpentMs  int64     `json:"timeSpentMs"`
	PointsEarned int       `json:"pointsEarned"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Player is an account's membership and in-match record within one room.
// Disconnecting only flips IsOnline; the record is deleted on explicit leave.
type Player struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	IsReady  bool      `json:"isReady"`
	IsOnline bool      `json:"isOnline"`
	Score    int       `json:"score"`
	Answers  []Answer  `json:"answers"`
	JoinedAt time.Time `json:"joinedAt"`
}

// AnswerFor returns the player's answer for a question, if any.
func (p *Player) AnswerFor(questionID string) (Answer, bool) {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return Answer{}, false
}

// RecomputeScore resets the denormalized running total from the answer list.
func (p *Player) RecomputeScore() {
	total := 0
	for _, a := range p.Answers {
		total += a.PointsEarned
	}
	p.Score = total
}

// GameData is the authoritative match state, mutated only through guarded
// transitions. Questions are a frozen snapshot taken at game start.
type GameData struct {
	CurrentQuestionIndex   int        `json:"currentQuestionIndex"`
	Questions              []Question `json:"questions"`
	Phase                  GamePhase  `json:"phase"`
	QuestionEndAt          time.Time  `json:"questionEndAt"`
	NextPhaseAt            time.Time  `json:"nextPhaseAt"`
	TimePerQuestionSeconds int        `json:"timePerQuestionSeconds"`
}

// CurrentQuestion returns the active question, or false when the index is
// out of range.
func (g *GameData) CurrentQuestion() (Question, bool) {
	if g == nil || g.CurrentQuestionIndex < 0 || g.CurrentQuestionIndex >= len(g.Questions) {
		return Question{}, false
	}
	return g.Questions[g.CurrentQuestionIndex], true
}

// Room is the root aggregate: one match instance identified by a short
// shareable code. Players are embedded so that every roster, answer, and
// phase mutation is a single-document guarded transaction.
type Room struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	MaxPlayers   int          `json:"maxPlayers"`
	IsPrivate    bool         `json:"isPrivate"`
	PasswordHash string       `json:"passwordHash,omitempty"`
	Status       RoomStatus   `json:"status"`
	Settings     RoomSettings `json:"settings"`

	// QuizID references externally-owned quiz content; Quiz is an embedded
	// snapshot taken at creation. At least one must be set.
	QuizID string `json:"quizId,omitempty"`
	Quiz   *Quiz  `json:"quiz,omitempty"`

	Game *GameData `json:"game,omitempty"`

	Players []Player `json:"players"`

	CountdownEndsAt time.Time `json:"countdownEndsAt,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
}

// FindPlayer returns a pointer into the roster, or nil.
func (r *Room) FindPlayer(playerID string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			return &r.Players[i]
		}
	}
	return nil
}

// RemovePlayer drops a player from the roster. Returns false when absent,
// so leaving twice is a no-op rather than an error.
func (r *Room) RemovePlayer(playerID string) bool {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// Finished reports whether the room reached its absorbing terminal state.
func (r *Room) Finished() bool {
	return r.Status == StatusFinished
}

// AllAnswered reports whether every currently-joined player has an answer
// for the given question.
func (r *Room) AllAnswered(questionID string) bool {
	if len(r.Players) == 0 {
		return false
	}
	for i := range r.Players {
		if _, ok := r.Players[i].AnswerFor(questionID); !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so snapshots handed to subscribers never alias
// the stored document.
func (r *Room) Clone() Room {
	out := *r
	out.Players = make([]Player, len(r.Players))
	copy(out.Players, r.Players)
	for i := range out.Players {
		answers := make([]Answer, len(r.Players[i].Answers))
		copy(answers, r.Players[i].Answers)
		out.Players[i].Answers = answers
	}
	if r.Quiz != nil {
		quiz := r.Quiz.Clone()
		out.Quiz = &quiz
	}
	if r.Game != nil {
		game := *r.Game
		game.Questions = cloneQuestions(r.Game.Questions)
		out.Game = &game
	}
	return out
}

// Sanitized strips secrets before a room is sent to clients.
func (r *Room) Sanitized() Room {
	out := r.Clone()
	out.PasswordHash = ""
	return out
}

// ChatMessageKind distinguishes user chat from system notifications.
type ChatMessageKind string

const (
	ChatKindUser   ChatMessageKind = "user"
	ChatKindSystem ChatMessageKind = "system"
)

// ChatMessage lives in an append-only feed keyed by the room id. Writes are
// fire-and-forget; a chat failure never rolls back a room mutation.
type ChatMessage struct {
	ID       string          `json:"id"`
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Body     string          `json:"body"`
	Kind     ChatMessageKind `json:"kind"`
	SentAt   time.Time       `json:"sentAt"`
}
