// Package idempotency provides short-lived per-key locks that keep two
// deliveries of the same payment callback from finalizing an order twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a crashed holder can keep a key locked. It must
// exceed the remote request timeout.
const DefaultTTL = 60 * time.Second

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("idempotency: key is locked")

// Locker hands out exclusive leases on keys.
type Locker interface {
	// Acquire returns ErrLocked when the key is held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is a held lock. Release is safe to call more than once and never
// removes a lock that expired and was taken by another holder.
type Lease struct {
	Key     string
	token   string
	release func(ctx context.Context, key, token string) error
}

// Release gives the key back.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	err := l.release(ctx, l.Key, l.token)
	l.release = nil
	return err
}

// PaidKey is the lock key guarding the paid callback of an order.
func PaidKey(orderGUID uuid.UUID) string {
	return fmt.Sprintf("payment:paid:%s", orderGUID)
}

func newToken() string {
	return uuid.NewString()
}
