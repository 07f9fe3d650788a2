package authflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventlyze/authflow/password"
	"github.com/redis/go-redis/v9"
)

type mockUserProvider struct {
	mu           sync.Mutex
	users        map[string]UserRecord
	byIdentifier map[string]string
	lookupErr    error
	updateErr    error

	getByIdentifierCalls int
	getByIDCalls         int
	updatePasswordCalls  int
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users:        make(map[string]UserRecord),
		byIdentifier: make(map[string]string),
	}
}

func (m *mockUserProvider) add(user UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	m.byIdentifier[user.Identifier] = user.UserID
}

func (m *mockUserProvider) get(userID string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID]
}

func (m *mockUserProvider) setStatus(userID string, status AccountStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	user.Status = status
	m.users[userID] = user
}

func (m *mockUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIdentifierCalls++

	if m.lookupErr != nil {
		return UserRecord{}, m.lookupErr
	}
	userID, ok := m.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[userID], nil
}

func (m *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++

	if m.lookupErr != nil {
		return UserRecord{}, m.lookupErr
	}
	user, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++

	if m.updateErr != nil {
		return m.updateErr
	}
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = newHash
	user.NeedPasswordChange = false
	m.users[userID] = user
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []ResetNotice
	err     error
}

func (n *recordingNotifier) SendResetLink(_ context.Context, notice ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) last(t *testing.T) ResetNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		t.Fatal("expected a reset notice")
	}
	return n.notices[len(n.notices)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testPassword = "correct-password-123"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Access.Secret = bytes.Repeat([]byte("a"), 32)
	cfg.JWT.Refresh.Secret = bytes.Repeat([]byte("r"), 32)
	cfg.JWT.Reset.Secret = bytes.Repeat([]byte("s"), 32)
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.JWT.ResetTTL = 15 * time.Minute
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func testHasher(t testing.TB) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

type testEnv struct {
	engine   *Engine
	users    *mockUserProvider
	notifier *recordingNotifier
	clock    *testClock
	redis    *miniredis.Miniredis
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := testHasher(t).Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := newMockUserProvider()
	users.add(UserRecord{
		UserID:       "u1",
		Identifier:   "alice@example.com",
		PasswordHash: hash,
		Role:         "member",
		Status:       AccountActive,
	})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	notifier := &recordingNotifier{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithNotifier(notifier).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		users:    users,
		notifier: notifier,
		clock:    clock,
		redis:    mr,
	}
}

func (env *testEnv) login(t testing.TB) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func TestLoginIssuesIndependentTokenPair(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)

	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.AccessToken == res.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	principal, err := env.engine.ValidateAccess(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	refresh, err := env.engine.refreshTokens.ParseRefresh(res.RefreshToken)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if principal.UserID != "u1" || refresh.Subject != "u1" {
		t.Fatalf("expected subject u1, got access=%q refresh=%q", principal.UserID, refresh.Subject)
	}
	if principal.Role != "member" {
		t.Fatalf("expected role member, got %q", principal.Role)
	}

	wantRefreshExp := env.clock.Now().Add(24 * time.Hour)
	if !res.RefreshExpiresAt.Equal(wantRefreshExp) {
		t.Fatalf("expected refresh expiry %v, got %v", wantRefreshExp, res.RefreshExpiresAt)
	}
	if got := principal.ExpiresAt.Sub(principal.IssuedAt); got != 15*time.Minute {
		t.Fatalf("expected access lifetime 15m, got %v", got)
	}
}

func TestAccessTokenCannotBeUsedAsRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)

	_, err := env.engine.Refresh(context.Background(), res.AccessToken)
	if !errors.Is(err, ErrRefreshInvalid) || !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}

	_, err = env.engine.ValidateAccess(context.Background(), res.RefreshToken)
	if !errors.Is(err, ErrAccessTokenInvalid) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, wrongPassword := env.engine.Login(ctx, "alice@example.com", "not-the-password")
	_, unknownUser := env.engine.Login(ctx, "nobody@example.com", "not-the-password")

	for _, err := range []error{wrongPassword, unknownUser} {
		if !errors.Is(err, ErrInvalidCredentials) || !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPassword.Error(), unknownUser.Error())
	}
	if errors.Is(unknownUser, ErrNotFound) {
		t.Fatal("login must never surface not-found")
	}
}

func TestLoginAccountStatusCheckedAfterPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.setStatus("u1", AccountDisabled)
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "alice@example.com", "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	_, err := env.engine.Login(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrAccountDisabled) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	env.users.setStatus("u1", AccountLocked)
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginRateLimitedAfterFailures(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.MaxLoginAttempts = 3
		cfg.RateLimit.LoginCooldownDuration = time.Minute
	})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-password-0"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-password-0"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected threshold failure to be rate limited, got %v", err)
	}
	_, err := env.engine.Login(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrLoginRateLimited) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited with correct password, got %v", err)
	}

	env.redis.FastForward(time.Minute + time.Second)
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
	attempts, err := env.engine.GetLoginAttempts(ctx, "alice@example.com")
	if err != nil || attempts != 0 {
		t.Fatalf("expected counter reset after success, got %d, %v", attempts, err)
	}
}

func TestLoginEmptyInput(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.engine.Login(context.Background(), "   ", testPassword)
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoginStoreFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.lookupErr = errors.New("connection reset")

	_, err := env.engine.Login(context.Background(), "alice@example.com", testPassword)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLoginUpgradesLegacyBcryptHash(t *testing.T) {
	env := newTestEnv(t, nil)
	legacy, err := password.LegacyBcrypt(testPassword, 4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	user := env.users.get("u1")
	user.PasswordHash = legacy
	env.users.add(user)

	env.login(t)

	upgraded := env.users.get("u1").PasswordHash
	if !strings.HasPrefix(upgraded, "$argon2id$") {
		t.Fatalf("expected argon2id hash after login, got %q", upgraded)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordUpgraded]; got != 1 {
		t.Fatalf("expected one upgrade metric, got %d", got)
	}
	env.login(t)
}

func TestLoginReportsNeedPasswordChange(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.users.get("u1")
	user.NeedPasswordChange = true
	env.users.add(user)

	res := env.login(t)
	if !res.NeedPasswordChange {
		t.Fatal("expected NeedPasswordChange")
	}
}

func TestRefreshIssuesLaterAccessTokenForSameSubject(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)
	first, err := env.engine.ValidateAccess(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	env.clock.Advance(2 * time.Second)

	refreshed, err := env.engine.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second, err := env.engine.ValidateAccess(context.Background(), refreshed.AccessToken)
	if err != nil {
		t.Fatalf("validate refreshed: %v", err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("subject changed: %q -> %q", first.UserID, second.UserID)
	}
	if !second.IssuedAt.After(first.IssuedAt) || !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expected later iat/exp, got %v/%v then %v/%v", first.IssuedAt, first.ExpiresAt, second.IssuedAt, second.ExpiresAt)
	}
}

func TestRefreshExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)

	env.clock.Advance(24*time.Hour + time.Second)

	_, err := env.engine.Refresh(context.Background(), res.RefreshToken)
	if !errors.Is(err, ErrRefreshExpired) || !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrRefreshExpired, got %v", err)
	}
}

func TestRefreshRejectsDisabledAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)

	env.users.setStatus("u1", AccountDisabled)

	_, err := env.engine.Refresh(context.Background(), res.RefreshToken)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden refresh for disabled account, got %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)
	ctx := context.Background()

	if err := env.engine.Logout(ctx, res.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(ctx, res.RefreshToken); err != nil {
		t.Fatalf("second logout must be idempotent: %v", err)
	}

	_, err := env.engine.Refresh(ctx, res.RefreshToken)
	if !errors.Is(err, ErrRefreshRevoked) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrRefreshRevoked, got %v", err)
	}

	other := env.login(t)
	if _, err := env.engine.Refresh(ctx, other.RefreshToken); err != nil {
		t.Fatalf("a new session must be unaffected: %v", err)
	}
}

func TestLogoutIgnoresUnusableTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, tok := range []string{"", "garbage", env.login(t).AccessToken} {
		if err := env.engine.Logout(ctx, tok); err != nil {
			t.Fatalf("logout(%q): expected nil, got %v", tok, err)
		}
	}
}

func TestValidateAccessExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t)

	env.clock.Advance(15*time.Minute + time.Second)

	_, err := env.engine.ValidateAccess(context.Background(), res.AccessToken)
	if !errors.Is(err, ErrAccessTokenExpired) || !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrAccessTokenExpired, got %v", err)
	}
}

func TestValidateAccessAvoidsProviderCalls(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Metrics.EnableLatencyHistograms = true
	})
	res := env.login(t)

	env.users.mu.Lock()
	env.users.getByIdentifierCalls, env.users.getByIDCalls = 0, 0
	env.users.mu.Unlock()

	if _, err := env.engine.ValidateAccess(context.Background(), res.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if env.users.getByIdentifierCalls != 0 || env.users.getByIDCalls != 0 {
		t.Fatal("expected validate to avoid provider calls")
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricValidateSuccess] != 1 {
		t.Fatalf("expected one validate success, got %d", snap.Counters[MetricValidateSuccess])
	}
	var observed uint64
	for _, n := range snap.Histograms[MetricValidateLatency] {
		observed += n
	}
	if observed != 1 {
		t.Fatalf("expected one latency observation, got %d", observed)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	before := env.users.get("u1").PasswordHash

	err := env.engine.ChangePassword(ctx, "u1", "stale-password-1", "brand-new-password-1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if env.users.get("u1").PasswordHash != before {
		t.Fatal("hash must be unchanged after a stale old password")
	}

	if err := env.engine.ChangePassword(ctx, "u1", testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, "", testPassword, "brand-new-password-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without principal, got %v", err)
	}

	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "brand-new-password-1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "brand-new-password-1"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.ResetLinkBase = "https://app.example.com/reset-password?token="
	})
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	notice := env.notifier.last(t)
	if notice.UserID != "u1" || notice.Identifier != "alice@example.com" {
		t.Fatalf("unexpected notice: %+v", notice)
	}
	if notice.Link != "https://app.example.com/reset-password?token="+notice.Token {
		t.Fatalf("unexpected link %q", notice.Link)
	}
	if !notice.ExpiresAt.Equal(env.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", notice.ExpiresAt)
	}

	if err := env.engine.ResetPassword(ctx, notice.Token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, notice.Token, "reset-password-123"); err != nil {
		t.Fatalf("reset after policy failure must still succeed: %v", err)
	}
	err := env.engine.ResetPassword(ctx, notice.Token, "another-password-123")
	if !errors.Is(err, ErrResetTokenUsed) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrResetTokenUsed on replay, got %v", err)
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "reset-password-123"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordResetReplay]; got != 1 {
		t.Fatalf("expected one replay metric, got %d", got)
	}
}

func TestResetPasswordStoreFailureKeepsTokenUsable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	notice := env.notifier.last(t)

	env.users.mu.Lock()
	env.users.updateErr = errors.New("db blip")
	env.users.mu.Unlock()

	if err := env.engine.ResetPassword(ctx, notice.Token, "reset-password-123"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	env.users.mu.Lock()
	env.users.updateErr = nil
	env.users.mu.Unlock()

	if err := env.engine.ResetPassword(ctx, notice.Token, "reset-password-123"); err != nil {
		t.Fatalf("retry after store failure: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "reset-password-123"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, notice.Token, "another-password-123"); !errors.Is(err, ErrResetTokenUsed) {
		t.Fatalf("expected ErrResetTokenUsed after success, got %v", err)
	}
}

func TestResetPasswordRejectsOtherKindsAndExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := env.login(t)

	if err := env.engine.ResetPassword(ctx, res.AccessToken, "reset-password-123"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected access token to be rejected, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "", "reset-password-123"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected missing token to be rejected, got %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := env.notifier.last(t).Token
	env.clock.Advance(15*time.Minute + time.Second)

	if err := env.engine.ResetPassword(ctx, token, "reset-password-123"); !errors.Is(err, ErrResetExpired) || !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrResetExpired, got %v", err)
	}
}

func TestForgotPasswordIsUniform(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown identifier must return nil, got %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatal("unknown identifier must not notify")
	}

	env.users.setStatus("u1", AccountDisabled)
	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("disabled account must return nil, got %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatal("disabled account must not notify")
	}

	env.users.setStatus("u1", AccountActive)
	env.notifier.err = errors.New("smtp down")
	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("notifier failure must return nil, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordResetNotifyFailure]; got != 1 {
		t.Fatalf("expected notify failure metric, got %d", got)
	}

	if err := env.engine.ForgotPassword(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty identifier, got %v", err)
	}
}

func TestForgotPasswordRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.MaxForgotAttempts = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.engine.ForgotPassword(ctx, "nobody@example.com"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	err := env.engine.ForgotPassword(ctx, "nobody@example.com")
	if !errors.Is(err, ErrResetRateLimited) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrResetRateLimited, got %v", err)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(16)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newMockUserProvider()).
		WithNotifier(&recordingNotifier{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	_, _ = engine.Login(ctx, "nobody@example.com", "whatever-password")
	engine.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventLoginFailure || event.Success {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.IP != "203.0.113.9" {
			t.Fatalf("expected client IP in audit event, got %q", event.IP)
		}
		if event.Error != string(auditErrInvalidCredentials) || event.Metadata["reason"] != "user_not_found" {
			t.Fatalf("unexpected error/metadata: %q %v", event.Error, event.Metadata)
		}
	default:
		t.Fatal("expected an audit event")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	if h := env.engine.Health(context.Background()); !h.RedisAvailable {
		t.Fatal("expected redis available")
	}
}
