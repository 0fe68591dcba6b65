package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"quiz-room-service/internal/domain"
)

// codeAttempts bounds the collision-retry loop for room code allocation.
const codeAttempts = 5

// defaultMaxPlayers matches the web client's room creation default.
const defaultMaxPlayers = 4

// RoomConfig carries the caller-supplied options for a new room.
type RoomConfig struct {
	Name       string
	MaxPlayers int
	IsPrivate  bool
	Password   string
	QuizID     string
	Settings   domain.RoomSettings
}

// RoomService owns room and roster lifecycle: creation, join/leave,
// readiness, presence, host mutations, and the chat feed.
type RoomService struct {
	store RoomStore
	now   func() time.Time

	// quorumCheck, when set, is invoked after a roster removal during an
	// active question: the departed player may have been the last one
	// still owing an answer.
	quorumCheck func(ctx context.Context, roomID string)

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRoomService(store RoomStore) *RoomService {
	return &RoomService{
		store: store,
		now:   time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewRoomServiceWithClock is test-only for deterministic timestamps.
func NewRoomServiceWithClock(store RoomStore, now func() time.Time) *RoomService {
	svc := NewRoomService(store)
	svc.now = now
	return svc
}

// SetQuorumNotifier registers the hook called after a player is removed
// while a question is open.
func (s *RoomService) SetQuorumNotifier(fn func(ctx context.Context, roomID string)) {
	s.quorumCheck = fn
}

// CreateRoom allocates a unique code, writes the initial room, and registers
// the creator as its first player. quiz may be nil when cfg.QuizID points at
// externally-stored content; an embedded quiz must have at least one question.
func (s *RoomService) CreateRoom(ctx context.Context, userID, username string, cfg RoomConfig, quiz *domain.Quiz) (domain.Room, domain.Player, error) {
	if quiz == nil && cfg.QuizID == "" {
		return domain.Room{}, domain.Player{}, fmt.Errorf("%w: no quiz selected", domain.ErrValidation)
	}
	if quiz != nil && len(quiz.Questions) == 0 {
		return domain.Room{}, domain.Player{}, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}

	now := s.now()
	settings := cfg.Settings
	if settings.TimePerQuestionSeconds <= 0 {
		settings.TimePerQuestionSeconds = 30
	}
	maxPlayers := cfg.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}
	name := cfg.Name
	if name == "" {
		name = username + "'s Room"
	}

	var passwordHash string
	if cfg.IsPrivate {
		if cfg.Password == "" {
			return domain.Room{}, domain.Player{}, fmt.Errorf("%w: private room needs a password", domain.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Room{}, domain.Player{}, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	creator := domain.Player{
		ID:       userID,
		Username: username,
		IsOnline: true,
		JoinedAt: now,
	}
	room := domain.Room{
		ID:           uuid.NewString(),
		Name:         name,
		MaxPlayers:   maxPlayers,
		IsPrivate:    cfg.IsPrivate,
		PasswordHash: passwordHash,
		Status:       domain.StatusWaiting,
		Settings:     settings,
		QuizID:       cfg.QuizID,
		Players:      []domain.Player{creator},
		CreatedAt:    now,
	}
	if quiz != nil {
		snapshot := quiz.Clone()
		room.Quiz = &snapshot
		if room.QuizID == "" {
			room.QuizID = snapshot.ID
		}
	}

	// Codes collide rarely; retry generation instead of widening the space.
	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		room.Code = s.newCode()
		if err = s.store.Create(ctx, &room); err == nil {
			return room, creator, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return domain.Room{}, domain.Player{}, err
		}
	}
	return domain.Room{}, domain.Player{}, fmt.Errorf("allocate room code: %w", err)
}

// JoinRoom adds the account as a player in the room addressed by code.
// The error ladder mirrors what the UI shows: wrong password before
// capacity, capacity before late-join.
func (s *RoomService) JoinRoom(ctx context.Context, code, userID, username, password string) (domain.Room, domain.Player, error) {
	found, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	if found.IsPrivate {
		if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
			return domain.Room{}, domain.Player{}, domain.ErrWrongPassword
		}
	}

	player := domain.Player{
		ID:       userID,
		Username: username,
		IsOnline: true,
		JoinedAt: s.now(),
	}
	room, err := s.store.Update(ctx, found.ID, func(r *domain.Room) error {
		if r.Finished() {
			return domain.ErrRoomNotFound
		}
		if r.FindPlayer(userID) != nil {
			return domain.ErrAlreadyJoined
		}
		if len(r.Players) >= r.MaxPlayers {
			return domain.ErrRoomFull
		}
		if (r.Status == domain.StatusPlaying || r.Status == domain.StatusStarting) && !r.Settings.AllowLateJoin {
			return domain.ErrGameInProgress
		}
		r.Players = append(r.Players, player)
		return nil
	})
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	s.systemMessage(ctx, room.ID, username+" joined the room")
	return room, player, nil
}

// LeaveRoom removes the player record entirely. Leaving twice is a no-op.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	var username string
	var removed, midQuestion bool
	_, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if p := r.FindPlayer(playerID); p != nil {
			username = p.Username
			removed = r.RemovePlayer(playerID)
			midQuestion = r.Status == domain.StatusPlaying && r.Game != nil &&
				r.Game.Phase == domain.PhaseQuestion
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil
		}
		return err
	}
	if removed {
		s.systemMessage(ctx, roomID, username+" left the room")
		if midQuestion && s.quorumCheck != nil {
			s.quorumCheck(ctx, roomID)
		}
	}
	return nil
}

// KickPlayer removes another member. Only legal before the game starts.
func (s *RoomService) KickPlayer(ctx context.Context, roomID, byPlayerID, targetID string) error {
	var username string
	var removed bool
	_, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status == domain.StatusPlaying || r.Finished() {
			return domain.ErrInvalidState
		}
		if r.FindPlayer(byPlayerID) == nil {
			return domain.ErrPlayerNotFound
		}
		if p := r.FindPlayer(targetID); p != nil {
			username = p.Username
			removed = r.RemovePlayer(targetID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		s.systemMessage(ctx, roomID, username+" was kicked from the room")
	}
	return nil
}

// UpdateSettings applies new settings. Rejected once the game is running so
// an in-progress match never changes shape under the players.
func (s *RoomService) UpdateSettings(ctx context.Context, roomID, byPlayerID string, settings domain.RoomSettings) (domain.Room, error) {
	return s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status == domain.StatusPlaying || r.Finished() {
			return domain.ErrInvalidState
		}
		if r.FindPlayer(byPlayerID) == nil {
			return domain.ErrPlayerNotFound
		}
		if settings.TimePerQuestionSeconds <= 0 {
			return fmt.Errorf("%w: time per question must be positive", domain.ErrValidation)
		}
		r.Settings = settings
		return nil
	})
}

// SetReady flips the player's lobby readiness flag.
func (s *RoomService) SetReady(ctx context.Context, roomID, playerID string, ready bool) (domain.Room, error) {
	return s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if r.Status == domain.StatusPlaying || r.Finished() {
			return domain.ErrInvalidState
		}
		p := r.FindPlayer(playerID)
		if p == nil {
			return domain.ErrPlayerNotFound
		}
		p.IsReady = ready
		return nil
	})
}

// SetPresence flips the online flag only. A disconnect never deletes the
// player record and never touches game data.
func (s *RoomService) SetPresence(ctx context.Context, roomID, playerID string, online bool) error {
	_, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		p := r.FindPlayer(playerID)
		if p == nil {
			return domain.ErrPlayerNotFound
		}
		p.IsOnline = online
		return nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) || errors.Is(err, domain.ErrPlayerNotFound) {
		// Presence is best-effort; the room may already be gone.
		return nil
	}
	return err
}

// SendChat appends a user message to the room's feed.
func (s *RoomService) SendChat(ctx context.Context, roomID, playerID, body string) error {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	p := room.FindPlayer(playerID)
	if p == nil {
		return domain.ErrPlayerNotFound
	}
	return s.store.AppendChat(ctx, roomID, domain.ChatMessage{
		ID:       uuid.NewString(),
		UserID:   playerID,
		Username: p.Username,
		Body:     body,
		Kind:     domain.ChatKindUser,
		SentAt:   s.now(),
	})
}

// ChatHistory returns the most recent messages, oldest first.
func (s *RoomService) ChatHistory(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	return s.store.ChatHistory(ctx, roomID, limit)
}

// Subscribe streams room snapshots. The caller must invoke cancel.
func (s *RoomService) Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error) {
	return s.store.Subscribe(ctx, roomID)
}

// SubscribeChat streams new chat feed entries. The caller must invoke cancel.
func (s *RoomService) SubscribeChat(ctx context.Context, roomID string) (<-chan domain.ChatMessage, func(), error) {
	return s.store.SubscribeChat(ctx, roomID)
}

func (s *RoomService) systemMessage(ctx context.Context, roomID, body string) {
	err := s.store.AppendChat(ctx, roomID, domain.ChatMessage{
		ID:       uuid.NewString(),
		UserID:   "system",
		Username: "System",
		Body:     body,
		Kind:     domain.ChatKindSystem,
		SentAt:   s.now(),
	})
	if err != nil {
		log.Printf("system message for room %s dropped: %v", roomID, err)
	}
}

func (s *RoomService) newCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return domain.NewRoomCode(s.rnd)
}
