package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quiz-room-service/internal/domain"
)

// GameConfig tunes the match timing and scoring.
type GameConfig struct {
	Countdown    time.Duration // lobby -> playing countdown
	ResultsDelay time.Duration // how long the results phase is shown
	Scoring      domain.ScoreConfig
}

// DefaultGameConfig mirrors the timings of the web game.
var DefaultGameConfig = GameConfig{
	Countdown:    5 * time.Second,
	ResultsDelay: 3 * time.Second,
	Scoring:      domain.DefaultScoreConfig,
}

// GameService owns the authoritative state machine of a match:
// waiting -> starting -> playing{question <-> results} -> finished.
// Every transition is a guarded single-document transaction, so two racing
// triggers (a quorum write and a timeout) advance the room exactly once.
type GameService struct {
	store   RoomStore
	quizzes QuizRepository
	sched   Scheduler
	cfg     GameConfig
	now     func() time.Time
}

func NewGameService(store RoomStore, quizzes QuizRepository, sched Scheduler, cfg GameConfig) *GameService {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultGameConfig.Countdown
	}
	if cfg.ResultsDelay <= 0 {
		cfg.ResultsDelay = DefaultGameConfig.ResultsDelay
	}
	return &GameService{
		store:   store,
		quizzes: quizzes,
		sched:   sched,
		cfg:     cfg,
		now:     time.Now,
	}
}

// NewGameServiceWithClock is test-only for deterministic timestamps.
func NewGameServiceWithClock(store RoomStore, quizzes QuizRepository, sched Scheduler, cfg GameConfig, now func() time.Time) *GameService {
	svc := NewGameService(store, quizzes, sched, cfg)
	svc.now = now
	return svc
}

// StartGame moves a waiting room into the countdown. The countdown end is
// stored as an absolute timestamp so every client renders the same countdown
// regardless of clock skew or when its snapshot arrived. Calling start on a
// room already counting down or playing is a no-op.
func (s *GameService) StartGame(ctx context.Context, roomID, playerID string) (domain.Room, error) {
	endsAt := s.now().Add(s.cfg.Countdown)
	room, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.FindPlayer(playerID) == nil {
			return domain.ErrPlayerNotFound
		}
		switch r.Status {
		case domain.StatusWaiting:
			r.Status = domain.StatusStarting
			r.CountdownEndsAt = endsAt
			return nil
		case domain.StatusStarting, domain.StatusPlaying:
			// Another player already started it; keep their timeline.
			return nil
		default:
			return domain.ErrInvalidState
		}
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.scheduleNext(&room)
	return room, nil
}

// SubmitAnswer validates, grades, and scores one submission in a single
// guarded transaction against the question actually active at submission
// time. A duplicate for the same question returns the stored answer
// unchanged, tolerating network retries without double-scoring. When the
// write completes the quorum, the same transaction flips the room into the
// results phase.
func (s *GameService) SubmitAnswer(ctx context.Context, roomID, playerID, questionID string, value domain.SubmittedValue, timeSpentMs int64) (domain.Answer, error) {
	var answer domain.Answer
	var advanced bool
	now := s.now()

	room, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status != domain.StatusPlaying || r.Game == nil || r.Game.Phase != domain.PhaseQuestion {
			return domain.ErrInvalidState
		}
		question, ok := r.Game.CurrentQuestion()
		if !ok {
			return domain.ErrInvalidState
		}
		if question.ID != questionID {
			return domain.ErrQuestionMismatch
		}
		player := r.FindPlayer(playerID)
		if player == nil {
			return domain.ErrPlayerNotFound
		}
		if existing, ok := player.AnswerFor(questionID); ok {
			answer = existing
			return nil
		}

		// Basic timing validation: the stored timestamps bound what a
		// client may claim.
		limit := time.Duration(r.Game.TimePerQuestionSeconds) * time.Second
		spent := time.Duration(timeSpentMs) * time.Millisecond
		if spent < 0 {
			spent = 0
		}
		if spent > limit {
			spent = limit
		}

		correct, selected := domain.Grade(question, value)
		answer = domain.Answer{
			QuestionID:   questionID,
			Selected:     selected,
			IsCorrect:    correct,
			TimeSpentMs:  spent.Milliseconds(),
			PointsEarned: s.cfg.Scoring.Score(correct, spent, limit, question.Points),
			SubmittedAt:  now,
		}
		player.Answers = append(player.Answers, answer)
		player.RecomputeScore()

		if r.AllAnswered(questionID) {
			s.toResults(r, now)
			advanced = true
		}
		return nil
	})
	if err != nil {
		return domain.Answer{}, err
	}
	if advanced {
		s.scheduleNext(&room)
	}
	return answer, nil
}

// CheckQuorum re-runs the advance check outside an answer write. Removing a
// player mid-question can leave every remaining player already answered; the
// roster scan here flips the room into results instead of idling until the
// question timeout. Any state other than an active question is a lost race
// and absorbed.
func (s *GameService) CheckQuorum(ctx context.Context, roomID string) {
	now := s.now()
	room, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status != domain.StatusPlaying || r.Game == nil || r.Game.Phase != domain.PhaseQuestion {
			return domain.ErrStaleTransition
		}
		question, ok := r.Game.CurrentQuestion()
		if !ok || !r.AllAnswered(question.ID) {
			return domain.ErrStaleTransition
		}
		s.toResults(r, now)
		return nil
	})
	if err != nil {
		s.absorbRace("check quorum", roomID, err)
		return
	}
	s.scheduleNext(&room)
}

// Leaderboard derives the current ranking for a room.
func (s *GameService) Leaderboard(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.BuildLeaderboard(&room), nil
}

// Resume re-schedules whatever transition the room snapshot says is pending.
// It is idempotent and safe to call on every reconnect; a process restart
// mid-countdown recovers this way instead of losing the match.
func (s *GameService) Resume(ctx context.Context, roomID string) error {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	s.scheduleNext(&room)
	return nil
}

// scheduleNext inspects a committed snapshot and arms the timer for its next
// transition. Keys embed the question index, so a stale timer for an earlier
// phase either gets replaced or fails its guard.
func (s *GameService) scheduleNext(room *domain.Room) {
	id := room.ID
	switch room.Status {
	case domain.StatusStarting:
		s.sched.Schedule(countdownKey(id), room.CountdownEndsAt, func(ctx context.Context) {
			s.beginPlay(ctx, id)
		})
	case domain.StatusPlaying:
		if room.Game == nil {
			return
		}
		index := room.Game.CurrentQuestionIndex
		switch room.Game.Phase {
		case domain.PhaseQuestion:
			s.sched.Cancel(resultsKey(id, index-1))
			s.sched.Schedule(questionKey(id, index), room.Game.QuestionEndAt, func(ctx context.Context) {
				s.finishQuestion(ctx, id, index)
			})
		case domain.PhaseResults:
			s.sched.Cancel(questionKey(id, index))
			s.sched.Schedule(resultsKey(id, index), room.Game.NextPhaseAt, func(ctx context.Context) {
				s.advanceFromResults(ctx, id, index)
			})
		}
	case domain.StatusFinished:
		if room.Game != nil {
			s.sched.Cancel(questionKey(id, room.Game.CurrentQuestionIndex))
			s.sched.Cancel(resultsKey(id, room.Game.CurrentQuestionIndex))
		}
	}
}

// beginPlay performs starting -> playing(question, 0). The quiz content is
// snapshotted into the game data here: later edits to the source quiz cannot
// reach an in-progress match.
func (s *GameService) beginPlay(ctx context.Context, roomID string) {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		log.Printf("begin play: load room %s: %v", roomID, err)
		return
	}
	if room.Status != domain.StatusStarting {
		return
	}

	questions, err := s.loadQuestions(ctx, &room)
	if err != nil {
		log.Printf("begin play: questions for room %s: %v", roomID, err)
		return
	}

	now := s.now()
	committed, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status != domain.StatusStarting {
			return domain.ErrStaleTransition
		}
		perQuestion := r.Settings.TimePerQuestionSeconds
		r.Status = domain.StatusPlaying
		r.StartedAt = now
		r.CountdownEndsAt = time.Time{}
		r.Game = &domain.GameData{
			CurrentQuestionIndex:   0,
			Questions:              questions,
			Phase:                  domain.PhaseQuestion,
			QuestionEndAt:          now.Add(time.Duration(perQuestion) * time.Second),
			TimePerQuestionSeconds: perQuestion,
		}
		return nil
	})
	if err != nil {
		s.absorbRace("begin play", roomID, err)
		return
	}
	s.scheduleNext(&committed)
}

// finishQuestion is the timeout trigger for question -> results. The guard
// requires the phase to still be `question` for this exact index; losing the
// race against a quorum advance is expected and absorbed. Players without an
// answer are not given one: absence already means zero.
func (s *GameService) finishQuestion(ctx context.Context, roomID string, index int) {
	now := s.now()
	room, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status != domain.StatusPlaying || r.Game == nil ||
			r.Game.Phase != domain.PhaseQuestion || r.Game.CurrentQuestionIndex != index {
			return domain.ErrStaleTransition
		}
		s.toResults(r, now)
		return nil
	})
	if err != nil {
		s.absorbRace("finish question", roomID, err)
		return
	}
	s.scheduleNext(&room)
}

// advanceFromResults performs results -> question(index+1), or the terminal
// results -> finished when the quiz is exhausted.
func (s *GameService) advanceFromResults(ctx context.Context, roomID string, index int) {
	now := s.now()
	var code string
	room, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status != domain.StatusPlaying || r.Game == nil ||
			r.Game.Phase != domain.PhaseResults || r.Game.CurrentQuestionIndex != index {
			return domain.ErrStaleTransition
		}
		if index+1 >= len(r.Game.Questions) {
			r.Status = domain.StatusFinished
			r.FinishedAt = now
			r.Game.Phase = domain.PhaseFinished
			r.Game.NextPhaseAt = time.Time{}
			code = r.Code
			return nil
		}
		r.Game.CurrentQuestionIndex = index + 1
		r.Game.Phase = domain.PhaseQuestion
		r.Game.QuestionEndAt = now.Add(time.Duration(r.Game.TimePerQuestionSeconds) * time.Second)
		r.Game.NextPhaseAt = time.Time{}
		return nil
	})
	if err != nil {
		s.absorbRace("advance from results", roomID, err)
		return
	}
	if code != "" {
		// Codes are scoped to active rooms; free it for reuse.
		if err := s.store.ReleaseCode(ctx, code); err != nil {
			log.Printf("release code %s: %v", code, err)
		}
	}
	s.scheduleNext(&room)
}

func (s *GameService) toResults(r *domain.Room, now time.Time) {
	r.Game.Phase = domain.PhaseResults
	r.Game.NextPhaseAt = now.Add(s.cfg.ResultsDelay)
}

// loadQuestions prefers the snapshot embedded at creation and falls back to
// the content provider for pointer-only rooms.
func (s *GameService) loadQuestions(ctx context.Context, room *domain.Room) ([]domain.Question, error) {
	if room.Quiz != nil && len(room.Quiz.Questions) > 0 {
		return room.Quiz.Clone().Questions, nil
	}
	if room.QuizID == "" {
		return nil, fmt.Errorf("%w: room has no quiz", domain.ErrValidation)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}
	return quiz.Clone().Questions, nil
}

// absorbRace swallows lost guarded transitions: exactly one of the racing
// triggers succeeds, the loser's failure is expected.
func (s *GameService) absorbRace(op, roomID string, err error) {
	if errors.Is(err, domain.ErrStaleTransition) || errors.Is(err, domain.ErrRoomNotFound) {
		return
	}
	log.Printf("%s for room %s: %v", op, roomID, err)
}

func countdownKey(roomID string) string {
	return "countdown:" + roomID
}

func questionKey(roomID string, index int) string {
	return fmt.Sprintf("question:%s:%d", roomID, index)
}

func resultsKey(roomID string, index int) string {
	return fmt.Sprintf("results:%s:%d", roomID, index)
}
