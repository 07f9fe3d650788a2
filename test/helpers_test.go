package test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/password"
	"github.com/redis/go-redis/v9"
)

const (
	aliceID       = "u-alice"
	aliceEmail    = "alice@example.com"
	alicePassword = "correct-password-123"
)

// memoryUsers is an in-memory UserProvider keyed by user ID.
type memoryUsers struct {
	mu    sync.Mutex
	users map[string]authflow.UserRecord
}

func newMemoryUsers(records ...authflow.UserRecord) *memoryUsers {
	m := &memoryUsers{users: make(map[string]authflow.UserRecord, len(records))}
	for _, r := range records {
		m.users[r.UserID] = r
	}
	return m
}

func (m *memoryUsers) GetUserByIdentifier(_ context.Context, identifier string) (authflow.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Identifier == identifier {
			return u, nil
		}
	}
	return authflow.UserRecord{}, authflow.ErrUserNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, userID string) (authflow.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return authflow.UserRecord{}, authflow.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return authflow.ErrUserNotFound
	}
	u.PasswordHash = newHash
	u.NeedPasswordChange = false
	m.users[userID] = u
	return nil
}

func fastConfig() authflow.Config {
	cfg := authflow.DefaultConfig()
	cfg.JWT.Access.Secret = bytes.Repeat([]byte("a"), 32)
	cfg.JWT.Refresh.Secret = bytes.Repeat([]byte("r"), 32)
	cfg.JWT.Reset.Secret = bytes.Repeat([]byte("s"), 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func aliceRecord(tb testing.TB) authflow.UserRecord {
	tb.Helper()
	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		tb.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(alicePassword)
	if err != nil {
		tb.Fatalf("hash: %v", err)
	}
	return authflow.UserRecord{
		UserID:       aliceID,
		Identifier:   aliceEmail,
		PasswordHash: hash,
		Role:         "member",
		Status:       authflow.AccountActive,
	}
}

// resetInbox captures the last reset token handed to the notifier.
type resetInbox struct {
	mu    sync.Mutex
	token string
}

func (r *resetInbox) SendResetLink(_ context.Context, n authflow.ResetNotice) error {
	r.mu.Lock()
	r.token = n.Token
	r.mu.Unlock()
	return nil
}

func (r *resetInbox) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func newIntegrationEngine(tb testing.TB, rdb redis.UniversalClient, inbox *resetInbox) *authflow.Engine {
	tb.Helper()
	if inbox == nil {
		inbox = &resetInbox{}
	}
	engine, err := authflow.New().
		WithConfig(fastConfig()).
		WithRedis(rdb).
		WithUserProvider(newMemoryUsers(aliceRecord(tb))).
		WithNotifier(inbox).
		Build()
	if err != nil {
		tb.Fatalf("build engine: %v", err)
	}
	tb.Cleanup(engine.Close)
	return engine
}
