package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-room-service/internal/domain"
)

// maxTxnRetries bounds optimistic-lock retries when many players write to
// the same room within the same tens of milliseconds.
const maxTxnRetries = 8

// RoomStore is the Redis-backed implementation of app.RoomStore.
// Layout:
//
//	room:{id}          room document as JSON
//	roomcode:{code}    active-code index -> room id (SETNX reserved)
//	room:{id}:chat     append-only feed (RPUSH/LRANGE)
//
// Guarded updates use WATCH/MULTI so concurrent read-modify-writes of the
// same document serialize; committed versions fan out over pub/sub on
// room:{id}:updates, chat on room:{id}:chatfeed.
type RoomStore struct {
	client      *redis.Client
	finishedTTL time.Duration
}

// NewRoomStore builds a store. finishedTTL controls how long a finished
// room document lingers before Redis expires it; zero keeps it forever.
func NewRoomStore(client *redis.Client, finishedTTL time.Duration) *RoomStore {
	return &RoomStore{client: client, finishedTTL: finishedTTL}
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	reserved, err := s.client.SetNX(ctx, codeKey(room.Code), room.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve code: %w", err)
	}
	if !reserved {
		return domain.ErrCodeTaken
	}
	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	if err := s.client.Set(ctx, roomKey(room.ID), payload, 0).Err(); err != nil {
		// Roll the reservation back so the code is not orphaned.
		_ = s.client.Del(ctx, codeKey(room.Code)).Err()
		return fmt.Errorf("write room: %w", err)
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (domain.Room, error) {
	data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("read room: %w", err)
	}
	return decodeRoom(data)
}

func (s *RoomStore) FindByCode(ctx context.Context, code string) (domain.Room, error) {
	roomID, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("resolve code: %w", err)
	}
	return s.Get(ctx, roomID)
}

func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error) {
	key := roomKey(roomID)
	var committed domain.Room

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrRoomNotFound
			}
			if err != nil {
				return fmt.Errorf("read room: %w", err)
			}
			room, err := decodeRoom(data)
			if err != nil {
				return err
			}
			if err := fn(&room); err != nil {
				return err
			}
			payload, err := json.Marshal(&room)
			if err != nil {
				return fmt.Errorf("marshal room: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				if room.Finished() && s.finishedTTL > 0 {
					pipe.Expire(ctx, key, s.finishedTTL)
				}
				return nil
			})
			if err != nil {
				return err
			}
			committed = room
			return s.publish(ctx, roomID, payload)
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue // another writer got in first, re-read and retry
		}
		if err != nil {
			return domain.Room{}, err
		}
		return committed, nil
	}
	return domain.Room{}, fmt.Errorf("update room %s: too much contention", roomID)
}

func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error) {
	initial, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	pubsub := s.client.Subscribe(ctx, updatesChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe room: %w", err)
	}

	ch := make(chan domain.Room, 8)
	ch <- initial
	done := make(chan struct{})

	go func() {
		defer close(ch)
		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				room, err := decodeRoom([]byte(msg.Payload))
				if err != nil {
					log.Printf("room %s: bad snapshot on feed: %v", roomID, err)
					continue
				}
				select {
				case ch <- room:
				default:
					// Drop the oldest pending snapshot; only the newest
					// version matters for resynchronization.
					select {
					case <-ch:
					default:
					}
					ch <- room
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return ch, cancel, nil
}

func (s *RoomStore) AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	if err := s.client.RPush(ctx, chatKey(roomID), payload).Err(); err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return s.client.Publish(ctx, chatChannel(roomID), payload).Err()
}

func (s *RoomStore) ChatHistory(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, chatKey(roomID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Printf("room %s: skipping bad chat entry: %v", roomID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RoomStore) SubscribeChat(ctx context.Context, roomID string) (<-chan domain.ChatMessage, func(), error) {
	pubsub := s.client.Subscribe(ctx, chatChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe chat: %w", err)
	}

	ch := make(chan domain.ChatMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var entry domain.ChatMessage
				if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
					continue
				}
				select {
				case ch <- entry:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return ch, cancel, nil
}

func (s *RoomStore) ReleaseCode(ctx context.Context, code string) error {
	return s.client.Del(ctx, codeKey(code)).Err()
}

func (s *RoomStore) publish(ctx context.Context, roomID string, payload []byte) error {
	if err := s.client.Publish(ctx, updatesChannel(roomID), payload).Err(); err != nil {
		// Subscribers resynchronize from the next snapshot; the write
		// itself already committed.
		log.Printf("room %s: publish update: %v", roomID, err)
	}
	return nil
}

func decodeRoom(data []byte) (domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("unmarshal room: %w", err)
	}
	return room, nil
}

func roomKey(roomID string) string {
	return "room:" + roomID
}

func codeKey(code string) string {
	return "roomcode:" + code
}

func chatKey(roomID string) string {
	return "room:" + roomID + ":chat"
}

func updatesChannel(roomID string) string {
	return "room:" + roomID + ":updates"
}

func chatChannel(roomID string) string {
	return "room:" + roomID + ":chatfeed"
}
