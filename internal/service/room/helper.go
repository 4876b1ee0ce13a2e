package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository"
)

// keyedMutex serializes work per key; entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (m *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.release(key, l)
		}, nil
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}
}

func (m *keyedMutex) release(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

type mutation int

const (
	mutationNone mutation = iota
	mutationWrite
	mutationDelete
)

// updateRoom applies fn to the stored room as one atomic step. Within the
// process the room lock serializes callers; across processes the write is a
// compare-and-swap retried on conflict.
func (s *service) updateRoom(ctx context.Context, roomId string, fn func(r *domain.Room) (mutation, error)) (domain.Room, mutation, error) {
	unlock, err := s.locks.Lock(ctx, roomId)
	if err != nil {
		return domain.Room{}, mutationNone, err
	}
	defer unlock()

	key := domain.RoomKey(roomId)
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		raw, room, err := s.loadRoom(ctx, roomId)
		if err != nil {
			return domain.Room{}, mutationNone, err
		}

		next := room.Clone()
		m, err := fn(&next)
		if err != nil {
			return domain.Room{}, mutationNone, err
		}

		var value []byte
		switch m {
		case mutationNone:
			return room, mutationNone, nil
		case mutationWrite:
			next.Version = room.Version + 1
			if value, err = json.Marshal(next); err != nil {
				return domain.Room{}, mutationNone, fmt.Errorf("failed to encode room: %w", err)
			}
		case mutationDelete:
			value = nil
		}

		err = s.store.CompareAndSwap(ctx, key, raw, value)
		if err == nil {
			return next, m, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return domain.Room{}, mutationNone, err
		}

		s.logger.DebugContext(ctx, "room changed concurrently, retrying", "room_id", roomId, "attempt", attempt)
	}

	return domain.Room{}, mutationNone, fmt.Errorf("%w: room %s is under contention", domain.ErrServiceUnavailable, roomId)
}

func (s *service) loadRoom(ctx context.Context, roomId string) ([]byte, domain.Room, error) {
	raw, found, err := s.store.Get(ctx, domain.RoomKey(roomId))
	if err != nil {
		return nil, domain.Room{}, err
	}
	if !found {
		return nil, domain.Room{}, domain.ErrRoomNotFound
	}

	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, domain.Room{}, fmt.Errorf("failed to decode room %s: %w", roomId, err)
	}

	return raw, room, nil
}
