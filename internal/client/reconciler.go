// Package client keeps a participant's local view of a room in step with the
// room service and the room's broadcast channel.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/optional"
	"golang.org/x/exp/slices"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrNotConnected     = errors.New("not connected to a room")
	ErrAlreadyConnected = errors.New("already connected to a room")
)

// Snapshot is a copy of the local view handed to the presentation layer.
type Snapshot struct {
	State      State
	RoomId     string
	Identity   Identity
	Users      []string
	VideoUrl   *string
	VideoState domain.VideoState
	Version    int64
	Messages   []domain.ChatMessage
	LastError  string
}

type Config struct {
	Retry RetryPolicy
	// Random seeds room codes and a missing identity. Defaults to the clock.
	Random rand.Source
	// OnChange is called after every change of the local view. It must not
	// call back into the reconciler.
	OnChange func(Snapshot)
}

type messageKey struct {
	timestamp int64
	userId    string
}

type Reconciler struct {
	api      RoomAPI
	bc       Broadcaster
	ids      *IdentityGenerator
	identity Identity
	retry    RetryPolicy
	onChange func(Snapshot)
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	roomId     string
	users      []string
	videoUrl   *string
	videoState domain.VideoState
	version    int64
	messages   []domain.ChatMessage
	seen       map[messageKey]struct{}
	lastErr    string
	channel    Channel
}

func NewReconciler(api RoomAPI, bc Broadcaster, identity Identity, cfg *Config, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		api:    api,
		bc:     bc,
		retry:  DefaultRetryPolicy,
		logger: logger,
		seen:   make(map[messageKey]struct{}),
	}

	src := rand.Source(nil)
	if cfg != nil {
		if cfg.Retry.Attempts > 0 {
			r.retry = cfg.Retry
		}
		src = cfg.Random
		r.onChange = cfg.OnChange
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	r.ids = NewIdentityGenerator(src)

	if identity.UserId == "" {
		identity.UserId = r.ids.UserId()
	}
	if identity.Username == "" {
		identity.Username = r.ids.Username()
	}
	r.identity = identity

	return r
}

func (r *Reconciler) Identity() Identity {
	return r.identity
}

// GenerateRoomId returns a fresh 8 character room code.
func (r *Reconciler) GenerateRoomId() string {
	return r.ids.RoomId()
}

// Connect joins roomId, creating it when it does not exist yet, then
// subscribes to its channel, re-reads the room and loads the chat history.
func (r *Reconciler) Connect(ctx context.Context, roomId string) error {
	r.mu.Lock()
	if r.state != StateDisconnected {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.resetLocked()
	r.state = StateConnecting
	r.roomId = roomId
	r.mu.Unlock()
	r.notify()

	room, err := r.joinOrCreate(ctx, roomId)
	if err != nil {
		r.mu.Lock()
		r.resetLocked()
		r.lastErr = err.Error()
		r.mu.Unlock()
		r.notify()
		return err
	}

	r.mu.Lock()
	r.applyRoomLocked(room)
	r.mu.Unlock()

	// subscribe before loading history so nothing sent in between is lost
	channel, err := r.bc.Subscribe(ctx, domain.ChannelName(roomId))
	if err != nil {
		r.logger.WarnContext(ctx, "failed to subscribe, live updates disabled", "room_id", roomId, "error", err)
	} else {
		channel.On(domain.EventRoomUpdate, r.onRoomUpdate)
		channel.On(domain.EventChatMessage, r.onChatMessage)

		// updates sent between the join and the subscription are missed
		latest, err := retry(ctx, r.retry, func(ctx context.Context) (domain.Room, error) {
			return r.api.GetRoom(ctx, roomId)
		})
		if err != nil {
			r.logger.WarnContext(ctx, "failed to refresh room", "room_id", roomId, "error", err)
		} else {
			r.mu.Lock()
			r.applyRoomLocked(latest)
			r.mu.Unlock()
		}
	}

	history, err := retry(ctx, r.retry, func(ctx context.Context) ([]domain.ChatMessage, error) {
		return r.api.ListMessages(ctx, roomId)
	})

	r.mu.Lock()
	if r.state != StateConnecting || r.roomId != roomId {
		// disconnected while connecting
		r.mu.Unlock()
		if channel != nil {
			channel.Close()
		}
		return ErrNotConnected
	}
	r.channel = channel
	r.state = StateConnected
	if err != nil {
		r.lastErr = err.Error()
		r.logger.WarnContext(ctx, "failed to load chat history", "room_id", roomId, "error", err)
	} else {
		r.mergeHistoryLocked(history)
	}
	r.mu.Unlock()
	r.notify()

	return nil
}

func (r *Reconciler) joinOrCreate(ctx context.Context, roomId string) (domain.Room, error) {
	join := func(ctx context.Context) (domain.Room, error) {
		return r.api.JoinRoom(ctx, roomId, r.identity.UserId)
	}

	room, err := retry(ctx, r.retry, join)
	if !errors.Is(err, domain.ErrRoomNotFound) {
		return room, err
	}

	room, err = retry(ctx, r.retry, func(ctx context.Context) (domain.Room, error) {
		return r.api.CreateRoom(ctx, roomId, r.identity.UserId)
	})
	if errors.Is(err, domain.ErrRoomAlreadyExists) {
		// someone else created it first
		return retry(ctx, r.retry, join)
	}

	return room, err
}

// SendMessage stores text through the room service, appends the stored
// message locally and broadcasts it to the other participants.
func (r *Reconciler) SendMessage(ctx context.Context, text string) (domain.ChatMessage, error) {
	roomId, channel, err := r.connected()
	if err != nil {
		return domain.ChatMessage{}, err
	}

	msg, err := retry(ctx, r.retry, func(ctx context.Context) (domain.ChatMessage, error) {
		return r.api.SendMessage(ctx, roomId, r.identity.UserId, r.identity.Username, text)
	})
	if err != nil {
		r.fail(err)
		return domain.ChatMessage{}, err
	}

	r.mu.Lock()
	r.appendMessageLocked(msg)
	r.lastErr = ""
	r.mu.Unlock()
	r.notify()

	r.broadcast(ctx, channel, domain.EventChatMessage, msg)

	return msg, nil
}

// LoadVideo persists videoUrl as the room's video and broadcasts the change.
func (r *Reconciler) LoadVideo(ctx context.Context, videoUrl string) error {
	roomId, channel, err := r.connected()
	if err != nil {
		return err
	}

	room, err := retry(ctx, r.retry, func(ctx context.Context) (domain.Room, error) {
		return r.api.SyncVideo(ctx, roomId, optional.New(&videoUrl), nil)
	})
	if err != nil {
		r.fail(err)
		return err
	}

	r.mu.Lock()
	r.applyRoomLocked(room)
	r.lastErr = ""
	r.mu.Unlock()
	r.notify()

	r.broadcast(ctx, channel, domain.EventRoomUpdate, domain.RoomUpdateFromRoom(room))

	return nil
}

// Disconnect leaves the room. The local view is cleared even when the room
// service cannot be told.
func (r *Reconciler) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateDisconnected {
		r.mu.Unlock()
		return nil
	}
	roomId, channel := r.roomId, r.channel
	r.resetLocked()
	r.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			r.logger.WarnContext(ctx, "failed to unsubscribe", "room_id", roomId, "error", err)
		}
	}

	if _, err := retry(ctx, r.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.api.LeaveRoom(ctx, roomId, r.identity.UserId)
	}); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		r.logger.WarnContext(ctx, "failed to leave room", "room_id", roomId, "error", err)
	}

	r.notify()
	return nil
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      r.state,
		RoomId:     r.roomId,
		Identity:   r.identity,
		Users:      slices.Clone(r.users),
		VideoState: r.videoState,
		Version:    r.version,
		Messages:   slices.Clone(r.messages),
		LastError:  r.lastErr,
	}
	if r.videoUrl != nil {
		url := *r.videoUrl
		s.VideoUrl = &url
	}

	return s
}

func (r *Reconciler) onRoomUpdate(payload json.RawMessage) {
	var update domain.RoomUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		r.logger.Warn("dropping malformed room update", "error", err)
		return
	}

	r.mu.Lock()
	if r.state == StateDisconnected || !r.applyUpdateLocked(update) {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) onChatMessage(payload json.RawMessage) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.logger.Warn("dropping malformed chat message", "error", err)
		return
	}

	r.mu.Lock()
	if r.state == StateDisconnected || !r.appendMessageLocked(msg) {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.notify()
}

// applyUpdateLocked merges a room-update. Updates carrying a version older
// than the local one are stale and ignored; unversioned updates win by
// arrival.
func (r *Reconciler) applyUpdateLocked(u domain.RoomUpdate) bool {
	if u.Version != 0 && u.Version < r.version {
		return false
	}
	if u.Version > r.version {
		r.version = u.Version
	}

	changed := false
	if u.VideoUrl != nil && (r.videoUrl == nil || *r.videoUrl != *u.VideoUrl) {
		url := *u.VideoUrl
		r.videoUrl = &url
		changed = true
	}
	if u.Users != nil {
		r.users = slices.Clone(u.Users)
		changed = true
	}

	return changed
}

func (r *Reconciler) applyRoomLocked(room domain.Room) {
	if room.Version < r.version {
		return
	}

	r.version = room.Version
	r.users = slices.Clone(room.Users)
	r.videoUrl = room.VideoUrl
	r.videoState = room.VideoState
}

// appendMessageLocked appends msg unless a message with the same timestamp
// and sender is already present.
func (r *Reconciler) appendMessageLocked(msg domain.ChatMessage) bool {
	key := messageKey{timestamp: msg.Timestamp, userId: msg.UserId}
	if _, ok := r.seen[key]; ok {
		return false
	}

	r.seen[key] = struct{}{}
	r.messages = append(r.messages, msg)
	return true
}

// mergeHistoryLocked puts the stored history first and keeps live messages
// that the history does not contain after it.
func (r *Reconciler) mergeHistoryLocked(history []domain.ChatMessage) {
	live := r.messages
	r.messages = make([]domain.ChatMessage, 0, len(history)+len(live))
	r.seen = make(map[messageKey]struct{}, len(history)+len(live))

	for _, msg := range history {
		r.appendMessageLocked(msg)
	}
	for _, msg := range live {
		r.appendMessageLocked(msg)
	}
}

func (r *Reconciler) resetLocked() {
	r.state = StateDisconnected
	r.roomId = ""
	r.users = nil
	r.videoUrl = nil
	r.videoState = domain.VideoState{}
	r.version = 0
	r.messages = nil
	r.seen = make(map[messageKey]struct{})
	r.channel = nil
}

func (r *Reconciler) connected() (string, Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateConnected {
		return "", nil, ErrNotConnected
	}

	return r.roomId, r.channel, nil
}

// fail records err for the presentation layer and keeps the local view.
func (r *Reconciler) fail(err error) {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) broadcast(ctx context.Context, channel Channel, kind domain.EventKind, payload any) {
	if channel == nil {
		return
	}

	if err := channel.Send(ctx, kind, payload); err != nil {
		r.logger.WarnContext(ctx, "failed to broadcast", "kind", kind, "error", err)
	}
}

func (r *Reconciler) notify() {
	if r.onChange == nil {
		return
	}

	r.onChange(r.Snapshot())
}
