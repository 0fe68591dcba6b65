package memory

import (
	"context"
	"sync"

	"quiz-room-service/internal/domain"
)

// RoomStore is the in-memory implementation of app.RoomStore. Each room
// document is guarded by its own mutex, giving the serializable-per-document
// semantics the engine assumes, and each room fans out snapshots to its
// subscribers in-process.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
	codes map[string]string // active code -> room id
}

type roomEntry struct {
	mu       sync.Mutex
	room     domain.Room
	chat     []domain.ChatMessage
	subs     map[chan domain.Room]struct{}
	chatSubs map[chan domain.ChatMessage]struct{}
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*roomEntry),
		codes: make(map[string]string),
	}
}

func (s *RoomStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[room.Code]; taken {
		return domain.ErrCodeTaken
	}
	s.codes[room.Code] = room.ID
	s.rooms[room.ID] = &roomEntry{
		room:     room.Clone(),
		subs:     make(map[chan domain.Room]struct{}),
		chatSubs: make(map[chan domain.ChatMessage]struct{}),
	}
	return nil
}

func (s *RoomStore) Get(_ context.Context, roomID string) (domain.Room, error) {
	entry, err := s.entry(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.room.Clone(), nil
}

func (s *RoomStore) FindByCode(ctx context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	roomID, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return s.Get(ctx, roomID)
}

func (s *RoomStore) Update(_ context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error) {
	entry, err := s.entry(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	work := entry.room.Clone()
	if err := fn(&work); err != nil {
		return domain.Room{}, err
	}
	entry.room = work
	snapshot := work.Clone()
	entry.broadcastLocked(snapshot)
	return snapshot, nil
}

func (s *RoomStore) Subscribe(_ context.Context, roomID string) (<-chan domain.Room, func(), error) {
	entry, err := s.entry(roomID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Room, 8)
	entry.mu.Lock()
	entry.subs[ch] = struct{}{}
	// The initial snapshot must go out under the lock so a concurrent
	// Update broadcast cannot slot an older state behind a newer one.
	ch <- entry.room.Clone()
	entry.mu.Unlock()

	cancel := func() {
		entry.mu.Lock()
		if _, ok := entry.subs[ch]; ok {
			delete(entry.subs, ch)
			close(ch)
		}
		entry.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *RoomStore) AppendChat(_ context.Context, roomID string, msg domain.ChatMessage) error {
	entry, err := s.entry(roomID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.chat = append(entry.chat, msg)
	for ch := range entry.chatSubs {
		select {
		case ch <- msg:
		default:
			// Chat is best-effort; a stalled consumer loses messages.
		}
	}
	return nil
}

func (s *RoomStore) ChatHistory(_ context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	entry, err := s.entry(roomID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	start := 0
	if limit > 0 && len(entry.chat) > limit {
		start = len(entry.chat) - limit
	}
	out := make([]domain.ChatMessage, len(entry.chat)-start)
	copy(out, entry.chat[start:])
	return out, nil
}

func (s *RoomStore) SubscribeChat(_ context.Context, roomID string) (<-chan domain.ChatMessage, func(), error) {
	entry, err := s.entry(roomID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.ChatMessage, 16)
	entry.mu.Lock()
	entry.chatSubs[ch] = struct{}{}
	entry.mu.Unlock()

	cancel := func() {
		entry.mu.Lock()
		if _, ok := entry.chatSubs[ch]; ok {
			delete(entry.chatSubs, ch)
			close(ch)
		}
		entry.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *RoomStore) ReleaseCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

func (s *RoomStore) entry(roomID string) (*roomEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return entry, nil
}

// broadcastLocked fans the snapshot out without letting a slow subscriber
// block the write path: a full channel drops its oldest pending snapshot,
// since only the newest version matters for resynchronization.
func (e *roomEntry) broadcastLocked(snapshot domain.Room) {
	for ch := range e.subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
