// Package quota provides per-chat usage tracking and request limits.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bigneek/primeflare/pkg/storage"
)

// ErrLimitExceeded is wrapped by every limit violation.
var ErrLimitExceeded = errors.New("quota exceeded")

// Store persists usage records. *storage.R2Client satisfies it.
type Store interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// Usage holds per-chat usage stats.
type Usage struct {
	ChatID            string    `json:"chat_id"`
	Queries           int64     `json:"queries"`
	LargestIndex      int       `json:"largest_index"`
	LargestSieveLimit int       `json:"largest_sieve_limit"`
	LastUsed          time.Time `json:"last_used"`
	CreatedAt         time.Time `json:"created_at"`
}

// Limits bounds what a single chat may ask for. Zero = unlimited.
type Limits struct {
	MaxIndex      int
	MaxSieveLimit int
	MaxQueries    int64
}

// Manager tracks and enforces per-chat quotas.
type Manager struct {
	store  Store
	limits Limits
	log    *zap.Logger
	mu     sync.Mutex
	cache  map[string]*Usage
}

// NewManager creates a quota manager. A nil store keeps usage in memory only.
func NewManager(store Store, limits Limits, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:  store,
		limits: limits,
		log:    log,
		cache:  make(map[string]*Usage),
	}
}

// FormatChatID converts a Telegram chat ID to a stable usage key.
func FormatChatID(chatID int64) string {
	return fmt.Sprintf("chat-%d", chatID)
}

func (m *Manager) key(chatID string) string {
	return fmt.Sprintf("chats/%s/quota.json", chatID)
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// CheckIndex returns an error if n is above MaxIndex.
func (m *Manager) CheckIndex(n int) error {
	if m.limits.MaxIndex > 0 && n > m.limits.MaxIndex {
		return fmt.Errorf("%w: index %d above %d", ErrLimitExceeded, n, m.limits.MaxIndex)
	}
	return nil
}

// CheckSieveLimit returns an error if limit is above MaxSieveLimit.
func (m *Manager) CheckSieveLimit(limit int) error {
	if m.limits.MaxSieveLimit > 0 && limit > m.limits.MaxSieveLimit {
		return fmt.Errorf("%w: sieve limit %d above %d", ErrLimitExceeded, limit, m.limits.MaxSieveLimit)
	}
	return nil
}

// Admit reserves one query for the chat, failing if MaxQueries is used up
// or the stored usage cannot be read. The check and the increment happen
// under one lock, so concurrent requests cannot overrun the allowance.
func (m *Manager) Admit(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.load(ctx, chatID)
	if err != nil {
		return err
	}
	if m.limits.MaxQueries > 0 && u.Queries+1 > m.limits.MaxQueries {
		return fmt.Errorf("%w: queries (%d/%d)", ErrLimitExceeded, u.Queries+1, m.limits.MaxQueries)
	}
	u.Queries++
	m.touch(u)
	if err := m.save(ctx, u); err != nil {
		// The in-memory count stays authoritative until the next save.
		m.log.Warn("quota save failed", zap.String("chat", chatID), zap.Error(err))
	}
	return nil
}

// Load returns usage for a chat, reading the store on a cache miss.
func (m *Manager) Load(ctx context.Context, chatID string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.load(ctx, chatID)
	if err != nil {
		return Usage{}, err
	}
	return *u, nil
}

// load returns the cached record, reading the store on a miss. Only a
// successful read or a missing object is cached; any other store error is
// returned so a stored record is never overwritten by a fresh one.
func (m *Manager) load(ctx context.Context, chatID string) (*Usage, error) {
	if u, ok := m.cache[chatID]; ok {
		return u, nil
	}
	u := &Usage{ChatID: chatID, CreatedAt: time.Now()}
	if m.store != nil {
		data, err := m.store.Download(ctx, m.key(chatID))
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load quota for %s: %w", chatID, err)
		default:
			var stored Usage
			if err := json.Unmarshal(data, &stored); err != nil {
				m.log.Warn("quota record unreadable, starting fresh", zap.String("chat", chatID), zap.Error(err))
			} else {
				stored.ChatID = chatID
				u = &stored
			}
		}
	}
	m.cache[chatID] = u
	return u, nil
}

// Record folds the largest index and sieve limit of a finished request into
// the chat's usage and persists it. Queries are counted by Admit.
func (m *Manager) Record(ctx context.Context, chatID string, delta Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.load(ctx, chatID)
	if err != nil {
		return err
	}
	u.LargestIndex = max(u.LargestIndex, delta.LargestIndex)
	u.LargestSieveLimit = max(u.LargestSieveLimit, delta.LargestSieveLimit)
	m.touch(u)
	return m.save(ctx, u)
}

func (m *Manager) touch(u *Usage) {
	u.LastUsed = time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = u.LastUsed
	}
}

func (m *Manager) save(ctx context.Context, u *Usage) error {
	if m.store == nil {
		return nil
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := m.store.Upload(ctx, m.key(u.ChatID), "application/json", data); err != nil {
		return fmt.Errorf("save quota for %s: %w", u.ChatID, err)
	}
	return nil
}
