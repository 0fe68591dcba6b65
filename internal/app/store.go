package app

import (
	"context"

	"quiz-room-service/internal/domain"
)

// RoomStore abstracts the shared state store that mediates all coordination
// between clients. Every mutation is a single-document guarded transaction;
// the store must provide at least serializable-per-document semantics.
type RoomStore interface {
	// Create writes a new room and reserves its code atomically, failing
	// with domain.ErrCodeTaken when another active room holds the code.
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, roomID string) (domain.Room, error)
	FindByCode(ctx context.Context, code string) (domain.Room, error)
	// Update applies fn to the current document under a read-check-write
	// guard. fn aborts the write by returning an error, which is passed
	// through unchanged. The committed document is returned.
	Update(ctx context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error)
	// Subscribe delivers the current snapshot first, then every subsequent
	// version. A resubscribing client resynchronizes purely from the
	// snapshot; no client-local history is replayed.
	Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error)
	// AppendChat writes to the room's append-only feed. Fire-and-forget:
	// callers log failures and never roll back the primary mutation.
	AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error
	ChatHistory(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	// SubscribeChat streams new feed entries as they are appended.
	SubscribeChat(ctx context.Context, roomID string) (<-chan domain.ChatMessage, func(), error)
	// ReleaseCode frees a code for reuse once its room has finished.
	ReleaseCode(ctx context.Context, code string) error
}

// QuizRepository loads read-only quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}
