package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
)

const (
	defaultMembersLimit = 2
	defaultOpTimeout    = 5 * time.Second
	maxCASAttempts      = 8
)

type iStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	ScanByPrefix(ctx context.Context, prefix string) ([][]byte, error)
	CompareAndSwap(ctx context.Context, key string, old, value []byte) error
}

type Config struct {
	MembersLimit int
	OpTimeout    time.Duration
	Clock        func() time.Time
}

type service struct {
	store         iStore
	locks         *keyedMutex
	membersLimit  int
	opTimeout     time.Duration
	now           func() time.Time
	lastChatTs    map[string]int64
	lastChatSweep int64
	chatTsMu      sync.Mutex
	logger        *slog.Logger
}

func NewService(store iStore, cfg *Config, logger *slog.Logger) *service {
	s := service{
		store:        store,
		locks:        newKeyedMutex(),
		membersLimit: defaultMembersLimit,
		opTimeout:    defaultOpTimeout,
		now:          time.Now,
		lastChatTs:   make(map[string]int64),
		logger:       logger,
	}

	if cfg != nil {
		if cfg.MembersLimit > 0 {
			s.membersLimit = cfg.MembersLimit
		}
		if cfg.OpTimeout > 0 {
			s.opTimeout = cfg.OpTimeout
		}
		if cfg.Clock != nil {
			s.now = cfg.Clock
		}
	}

	return &s
}

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// finish turns an expired operation deadline into ErrServiceUnavailable so
// callers can tell it apart from business errors.
func (s *service) finish(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrServiceUnavailable) {
		return fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
	}

	return err
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}
