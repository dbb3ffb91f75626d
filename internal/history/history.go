// Package history keeps one transcript record per container: the commands
// run through the exec bridge and their results.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/gluk-w/boxterm/internal/apperr"
)

// MaxMessages caps a record; the oldest messages are dropped first.
const MaxMessages = 500

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ExitCode  *int      `json:"exitCode,omitempty"`
}

// Record is the stored transcript of one container. UpdatedAt is nil for an
// empty record.
type Record struct {
	ContainerName string     `json:"containerName"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	Messages      []Message  `json:"messages"`
}

// Extra carries optional fields merged into an appended message.
type Extra struct {
	ExitCode *int
}

// WithExitCode returns an Extra recording code.
func WithExitCode(code int) Extra {
	return Extra{ExitCode: &code}
}

var (
	ErrInvalidName      = apperr.New(apperr.KindValidation, "invalid container name")
	ErrInvalidStoreType = errors.New("history: invalid store type")
	ErrInvalidConfig    = errors.New("history: invalid store configuration")
)

// Store persists history records.
type Store interface {
	// Load returns the record for name. Missing or unreadable data yields an
	// empty record, never an error.
	Load(ctx context.Context, name string) (Record, error)
	// Append adds a message, trims the record to MaxMessages and persists it.
	Append(ctx context.Context, name string, role Role, content string, extra Extra) (Message, error)
	// Remove deletes the record. Removing a missing record is not an error.
	Remove(ctx context.Context, name string) error
	// ListNames returns the names of stored records that are valid
	// container names.
	ListNames(ctx context.Context) ([]string, error)
	Close() error
}

type StoreType string

const (
	StoreTypeFile   StoreType = "file"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures a store created by New.
type StoreOption func(*storeConfig)

type storeConfig struct {
	dir         string
	db          *gorm.DB
	redisClient *redis.Client
	keyPrefix   string
	now         func() time.Time
}

// WithDir sets the directory of the file store.
func WithDir(dir string) StoreOption {
	return func(c *storeConfig) { c.dir = dir }
}

// WithDB sets the database of the sqlite store. The store takes ownership.
func WithDB(db *gorm.DB) StoreOption {
	return func(c *storeConfig) { c.db = db }
}

// WithRedisClient sets the client of the redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithKeyPrefix overrides the redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) { c.keyPrefix = prefix }
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// New creates a Store of the given type.
func New(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		keyPrefix: defaultKeyPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeFile, "":
		if cfg.dir == "" {
			return nil, ErrInvalidConfig
		}
		return newFileStore(cfg.dir, cfg.now), nil
	case StoreTypeSQLite:
		if cfg.db == nil {
			return nil, ErrInvalidConfig
		}
		return newSQLStore(cfg.db, cfg.now), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisStore(cfg.redisClient, cfg.keyPrefix, cfg.now), nil
	default:
		return nil, ErrInvalidStoreType
	}
}

func emptyRecord(name string) Record {
	return Record{ContainerName: name, Messages: []Message{}}
}

func newMessage(role Role, content string, extra Extra, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now.UTC(),
		ExitCode:  extra.ExitCode,
	}
}

// finish sets UpdatedAt from the last message and enforces the cap.
func finish(rec *Record) {
	if len(rec.Messages) > MaxMessages {
		rec.Messages = rec.Messages[len(rec.Messages)-MaxMessages:]
	}
	if n := len(rec.Messages); n > 0 {
		ts := rec.Messages[n-1].Timestamp
		rec.UpdatedAt = &ts
	} else {
		rec.UpdatedAt = nil
	}
}
