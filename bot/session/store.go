package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Store persists one Session per chat id.
//
// Get never reports a missing record: an unknown chat yields New(chatID).
// Delete is idempotent.
type Store interface {
	Get(ctx context.Context, chatID int64) (Session, error)
	Set(ctx context.Context, s Session) error
	Delete(ctx context.Context, chatID int64) error
}

// Driver names accepted by NewStore.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned by NewStore for an unsupported driver name.
var ErrUnknownDriver = errors.New("session: unknown store driver")

// Options carries driver dependencies for NewStore.
type Options struct {
	Redis     *redis.Client
	KeyPrefix string
	TTL       time.Duration
	DB        *sqlx.DB
}

// NewStore builds the Store for driver.
func NewStore(driver string, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("session: redis driver requires a client")
		}
		return NewRedisStore(opts.Redis, opts.KeyPrefix, opts.TTL), nil
	case DriverPostgres:
		if opts.DB == nil {
			return nil, fmt.Errorf("session: postgres driver requires a database handle")
		}
		return NewPostgresStore(opts.DB), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func checkChatID(chatID int64) error {
	if chatID == 0 {
		return ErrInvalidChatID
	}
	return nil
}
