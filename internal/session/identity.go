// Package session keeps the anonymous shopping-session token that carts are
// bound to before any login exists.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StorageKey is the fixed key the token is persisted under
const StorageKey = "ace1_session_id"

// Storage is a persistent key/value store local to one client.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Identity hands out the session token. The token is created on first use and
// never rotated. When storage fails, the token lives only as long as this value.
type Identity struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	volatile string
}

// NewIdentity creates an identity over storage. A nil storage keeps the
// token in memory only.
func NewIdentity(storage Storage, logger *zap.Logger) *Identity {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Identity{storage: storage, logger: logger, now: time.Now}
}

// SessionID returns the persisted token, creating and persisting it if absent.
func (i *Identity) SessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.volatile != "" {
		return i.volatile
	}

	if i.storage == nil {
		i.volatile = i.generate()
		return i.volatile
	}

	if id, ok, err := i.storage.Get(StorageKey); err != nil {
		i.logger.Warn("Session storage unreadable, using in-memory session", zap.Error(err))
		i.volatile = i.generate()
		return i.volatile
	} else if ok && id != "" {
		return id
	}

	id := i.generate()
	if err := i.storage.Set(StorageKey, id); err != nil {
		i.logger.Warn("Session storage unwritable, using in-memory session", zap.Error(err))
		i.volatile = id
	}
	return id
}

// Persistent reports whether the current token survives a restart
func (i *Identity) Persistent() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.volatile == ""
}

func (i *Identity) generate() string {
	return NewToken(i.now())
}

// NewToken builds "session_<unix-ms>_<32 hex>" with 128 random bits
func NewToken(now time.Time) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(fmt.Sprintf("session: crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), hex.EncodeToString(buf))
}

// MemoryStorage is a Storage that forgets everything on exit
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
