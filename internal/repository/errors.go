package repository

import (
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/domain"
)

// ErrConflict is returned by CompareAndSwap when the stored value no longer
// matches the expected one.
var ErrConflict = errors.New("value changed concurrently")

// Unavailable marks err as an infrastructure failure of the backing storage.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
