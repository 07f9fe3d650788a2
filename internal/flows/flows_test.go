package flows

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errNotReady   = errors.New("not ready")
	errInput      = errors.New("input")
	errCreds      = errors.New("invalid credentials")
	errLimited    = errors.New("rate limited")
	errStore      = errors.New("store unavailable")
	errNotFound   = errors.New("not found")
	errDisabled   = errors.New("disabled")
	errTokenExp   = errors.New("token expired")
	errTokenBad   = errors.New("token invalid")
	errUsed       = errors.New("used")
	errPolicy     = errors.New("policy")
	errReuse      = errors.New("reuse")
	errUnauth     = errors.New("unauthorized")
	errRefreshBad = errors.New("refresh invalid")
	errRefreshExp = errors.New("refresh expired")
	errRevoked    = errors.New("refresh revoked")
)

type fakeUsers struct {
	byIdentifier map[string]UserRecord
	updates      map[string]string
	lookupErr    error
	updateErr    error
}

func newFakeUsers(users ...UserRecord) *fakeUsers {
	f := &fakeUsers{byIdentifier: map[string]UserRecord{}, updates: map[string]string{}}
	for _, u := range users {
		f.byIdentifier[u.Identifier] = u
	}
	return f
}

func (f *fakeUsers) byIdent(_ context.Context, identifier string) (UserRecord, error) {
	if f.lookupErr != nil {
		return UserRecord{}, f.lookupErr
	}
	u, ok := f.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, errNotFound
	}
	return u, nil
}

func (f *fakeUsers) byID(_ context.Context, id string) (UserRecord, error) {
	if f.lookupErr != nil {
		return UserRecord{}, f.lookupErr
	}
	for _, u := range f.byIdentifier {
		if u.UserID == id {
			return u, nil
		}
	}
	return UserRecord{}, errNotFound
}

func (f *fakeUsers) update(_ context.Context, id, hash string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[id] = hash
	for k, u := range f.byIdentifier {
		if u.UserID == id {
			u.PasswordHash = hash
			f.byIdentifier[k] = u
		}
	}
	return nil
}

func plainVerify(password, hash string) (bool, error) { return "h:"+password == hash, nil }
func plainHash(password string) (string, error) { return "h:" + password, nil }

func statusErr(status uint8) error {
	if status != 0 {
		return errDisabled
	}
	return nil
}

func issueToken(prefix string) func(string, string) (IssuedToken, error) {
	return func(userID, role string) (IssuedToken, error) {
		return IssuedToken{Value: prefix + ":" + userID + ":" + role, ID: "jti", ExpiresAt: time.Unix(2_000_000_000, 0)}, nil
	}
}

func loginDeps(users *fakeUsers) LoginDeps {
	return LoginDeps{
		DummyHash:           "h:dummy",
		AccountStatusError:  statusErr,
		GetUserByIdentifier: users.byIdent,
		IsNotFound:          func(err error) bool { return errors.Is(err, errNotFound) },
		UpdatePasswordHash:  users.update,
		VerifyPassword:      plainVerify,
		HashPassword:        plainHash,
		IssueAccess:         issueToken("access"),
		IssueRefresh: func(userID string) (IssuedToken, error) {
			return issueToken("refresh")(userID, "")
		},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidInput:       errInput,
			InvalidCredentials: errCreds,
			LoginRateLimited:   errLimited,
			StoreUnavailable:   errStore,
		},
	}
}

func TestRunLoginSuccess(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a@x.com", PasswordHash: "h:correct", Role: "admin", NeedPasswordChange: true})
	deps := loginDeps(users)

	var audited []string
	deps.EmitAudit = func(_ context.Context, event string, success bool, _ string, _ error, _ func() map[string]string) {
		if success {
			audited = append(audited, event)
		}
	}
	deps.Events.LoginSuccess = "login_success"

	res, err := RunLogin(context.Background(), "  a@x.com ", "correct", deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken != "access:u1:admin" || res.RefreshToken != "refresh:u1:" {
		t.Fatalf("unexpected tokens: %+v", res)
	}
	if !res.NeedPasswordChange {
		t.Fatal("expected NeedPasswordChange to surface")
	}
	if len(audited) != 1 || audited[0] != "login_success" {
		t.Fatalf("unexpected audit events: %v", audited)
	}
}

func TestRunLoginNonEnumeration(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a@x.com", PasswordHash: "h:correct"})
	deps := loginDeps(users)

	var verified []string
	deps.VerifyPassword = func(password, hash string) (bool, error) {
		verified = append(verified, hash)
		return plainVerify(password, hash)
	}
	var reasons []string
	deps.EmitAudit = func(_ context.Context, _ string, _ bool, _ string, _ error, meta func() map[string]string) {
		if meta != nil {
			reasons = append(reasons, meta()["reason"])
		}
	}

	_, wrongPw := RunLogin(context.Background(), "a@x.com", "wrong", deps)
	_, unknown := RunLogin(context.Background(), "nobody@x.com", "wrong", deps)

	if !errors.Is(wrongPw, errCreds) || !errors.Is(unknown, errCreds) {
		t.Fatalf("expected identical errors, got %v / %v", wrongPw, unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPw, unknown)
	}
	if len(verified) != 2 || verified[1] != "h:dummy" {
		t.Fatalf("expected dummy hash verification for unknown user, got %v", verified)
	}
	if len(reasons) != 2 || reasons[0] != "password_mismatch" || reasons[1] != "user_not_found" {
		t.Fatalf("expected distinct internal reasons, got %v", reasons)
	}
}

func TestRunLoginDisabledAfterPassword(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a@x.com", PasswordHash: "h:correct", Status: 1})
	deps := loginDeps(users)

	if _, err := RunLogin(context.Background(), "a@x.com", "wrong", deps); !errors.Is(err, errCreds) {
		t.Fatalf("wrong password on disabled account must look like bad credentials, got %v", err)
	}
	if _, err := RunLogin(context.Background(), "a@x.com", "correct", deps); !errors.Is(err, errDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}

func TestRunLoginRateLimited(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a@x.com", PasswordHash: "h:correct"})
	deps := loginDeps(users)
	deps.CheckLoginRate = func(context.Context, string, string) error { return errLimited }

	issued := false
	deps.IssueAccess = func(string, string) (IssuedToken, error) {
		issued = true
		return IssuedToken{}, nil
	}

	if _, err := RunLogin(context.Background(), "a@x.com", "correct", deps); !errors.Is(err, errLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if issued {
		t.Fatal("tokens must not be issued when rate limited")
	}
}

func TestRunLoginFailureIncrementsAndSuccessResets(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a@x.com", PasswordHash: "h:correct"})
	deps := loginDeps(users)

	var increments, resets int
	deps.IncrementLoginRate = func(context.Context, string, string) error { increments++; return nil }
	deps.ResetLoginRate = func(context.Context, string) error { resets++; return nil }

	_, _ = RunLogin(context.Background(), "a@x.com", "wrong", deps)
	_, _ = RunLogin(context.Background(), "ghost", "wrong", deps)
	if _, err := RunLogin(context.Background(), "a@x.com", "correct", deps); err != nil {
		t.Fatalf("login: %v", err)
	}
	if increments != 2 || resets != 1 {
		t.Fatalf("expected 2 increments and 1 reset, got %d/%d", increments, resets)
	}
}

func TestRunLoginStoreFailure(t *testing.T) {
	users := newFakeUsers()
	users.lookupErr = errors.New("connection refused")
	deps := loginDeps(users)

	if _, err := RunLogin(context.Background(), "a@x.com", "pw", deps); !errors.Is(err, errStore) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestRunLoginEmptyInput(t *testing.T) {
	deps := loginDeps(newFakeUsers())
	if _, err := RunLogin(context.Background(), " ", "pw", deps); !errors.Is(err, errInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := RunLogin(context.Background(), "a@x.com", "", deps); !errors.Is(err, errInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRunLoginUpgradesHash(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a@x.com", PasswordHash: "h:correct"})
	deps := loginDeps(users)
	deps.PasswordUpgradeOnLogin = true
	deps.PasswordNeedsUpgrade = func(string) (bool, error) { return true, nil }
	deps.HashPassword = func(p string) (string, error) { return "new:" + p, nil }

	if _, err := RunLogin(context.Background(), "a@x.com", "correct", deps); err != nil {
		t.Fatalf("login: %v", err)
	}
	if users.updates["u1"] != "new:correct" {
		t.Fatalf("expected upgraded hash, got %q", users.updates["u1"])
	}
}

func TestRunLoginNotReady(t *testing.T) {
	if _, err := RunLogin(context.Background(), "a", "b", LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}}); !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func refreshDeps(users *fakeUsers) RefreshDeps {
	return RefreshDeps{
		ParseRefresh: func(tok string) (TokenClaims, error) {
			switch tok {
			case "expired":
				return TokenClaims{}, errTokenExp
			case "bad":
				return TokenClaims{}, errTokenBad
			}
			return TokenClaims{Subject: tok, ID: "jti-" + tok}, nil
		},
		IsTokenExpired:     func(err error) bool { return errors.Is(err, errTokenExp) },
		GetUserByID:        users.byID,
		IsNotFound:         func(err error) bool { return errors.Is(err, errNotFound) },
		AccountStatusError: statusErr,
		IssueAccess:        issueToken("access"),
		Errors: RefreshErrors{
			EngineNotReady:   errNotReady,
			RefreshInvalid:   errRefreshBad,
			RefreshExpired:   errRefreshExp,
			RefreshRevoked:   errRevoked,
			StoreUnavailable: errStore,
		},
	}
}

func TestRunRefresh(t *testing.T) {
	users := newFakeUsers(
		UserRecord{UserID: "u1", Identifier: "a", Role: "user"},
		UserRecord{UserID: "u2", Identifier: "b", Status: 1},
	)
	deps := refreshDeps(users)
	deps.IsRevoked = func(_ context.Context, id string) (bool, error) { return id == "jti-u3", nil }

	res, err := RunRefresh(context.Background(), "u1", deps)
	if err != nil || res.AccessToken != "access:u1:user" {
		t.Fatalf("refresh: %+v %v", res, err)
	}

	cases := map[string]error{
		"":        errRefreshBad,
		"bad":     errRefreshBad,
		"expired": errRefreshExp,
		"u2":      errDisabled,
		"u3":      errRevoked,
		"deleted": errRefreshBad,
	}
	for tok, want := range cases {
		if _, err := RunRefresh(context.Background(), tok, deps); !errors.Is(err, want) {
			t.Fatalf("%q: expected %v, got %v", tok, want, err)
		}
	}
}

func changeDeps(users *fakeUsers) ChangePasswordDeps {
	return ChangePasswordDeps{
		GetUserByID:        users.byID,
		IsNotFound:         func(err error) bool { return errors.Is(err, errNotFound) },
		AccountStatusError: statusErr,
		UpdatePasswordHash: users.update,
		VerifyPassword:     plainVerify,
		HashPassword:       plainHash,
		Errors: ChangePasswordErrors{
			EngineNotReady:     errNotReady,
			Unauthorized:       errUnauth,
			PasswordPolicy:     errPolicy,
			InvalidCredentials: errCreds,
			PasswordReuse:      errReuse,
			StoreUnavailable:   errStore,
		},
	}
}

func TestRunChangePassword(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a", PasswordHash: "h:old-password"})
	deps := changeDeps(users)
	ctx := context.Background()

	if err := RunChangePassword(ctx, "u1", "stale", "next-password", deps); !errors.Is(err, errCreds) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if len(users.updates) != 0 {
		t.Fatal("hash must be unchanged after a stale old password")
	}
	if err := RunChangePassword(ctx, "u1", "old-password", "old-password", deps); !errors.Is(err, errReuse) {
		t.Fatalf("expected reuse, got %v", err)
	}
	if err := RunChangePassword(ctx, "u1", "", "x", deps); !errors.Is(err, errPolicy) {
		t.Fatalf("expected policy, got %v", err)
	}
	if err := RunChangePassword(ctx, "", "a", "b", deps); !errors.Is(err, errUnauth) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := RunChangePassword(ctx, "u1", "old-password", "next-password", deps); err != nil {
		t.Fatalf("change: %v", err)
	}
	if users.updates["u1"] != "h:next-password" {
		t.Fatalf("unexpected stored hash %q", users.updates["u1"])
	}
}

func forgotDeps(users *fakeUsers, sent *[]ResetNotice) ForgotPasswordDeps {
	return ForgotPasswordDeps{
		GetUserByIdentifier: users.byIdent,
		IsNotFound:          func(err error) bool { return errors.Is(err, errNotFound) },
		AccountStatusError:  statusErr,
		IssueReset: func(userID string) (IssuedToken, error) {
			return IssuedToken{Value: "reset-" + userID, ExpiresAt: time.Unix(2_000_000_000, 0)}, nil
		},
		BuildResetLink: func(tok string) string { return "https://app/reset?token=" + tok },
		SendResetLink: func(_ context.Context, n ResetNotice) error {
			*sent = append(*sent, n)
			return nil
		},
		Errors: PasswordResetErrors{
			EngineNotReady:   errNotReady,
			InvalidInput:     errInput,
			ResetRateLimited: errLimited,
			StoreUnavailable: errStore,
		},
	}
}

func TestRunForgotPasswordUniform(t *testing.T) {
	users := newFakeUsers(
		UserRecord{UserID: "u1", Identifier: "a@x.com"},
		UserRecord{UserID: "u2", Identifier: "off@x.com", Status: 1},
	)
	var sent []ResetNotice
	deps := forgotDeps(users, &sent)
	ctx := context.Background()

	for _, id := range []string{"a@x.com", "ghost@x.com", "off@x.com"} {
		if err := RunForgotPassword(ctx, id, deps); err != nil {
			t.Fatalf("%s: expected nil, got %v", id, err)
		}
	}
	if len(sent) != 1 || sent[0].UserID != "u1" || sent[0].Link != "https://app/reset?token=reset-u1" {
		t.Fatalf("expected one notice for u1, got %+v", sent)
	}

	deps.SendResetLink = func(context.Context, ResetNotice) error { return errors.New("smtp down") }
	if err := RunForgotPassword(ctx, "a@x.com", deps); err != nil {
		t.Fatalf("notifier failure must not surface, got %v", err)
	}

	if err := RunForgotPassword(ctx, "", deps); !errors.Is(err, errInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRunForgotPasswordCancelled(t *testing.T) {
	var sent []ResetNotice
	deps := forgotDeps(newFakeUsers(), &sent)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := RunForgotPassword(ctx, "ghost@x.com", deps); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func resetDeps(users *fakeUsers, consumed map[string]bool) ResetPasswordDeps {
	now := time.Unix(1_700_000_000, 0)
	return ResetPasswordDeps{
		Now: func() time.Time { return now },
		ParseReset: func(tok string) (TokenClaims, error) {
			switch tok {
			case "expired":
				return TokenClaims{}, errTokenExp
			case "bad":
				return TokenClaims{}, errTokenBad
			}
			return TokenClaims{Subject: "u1", ID: tok, ExpiresAt: now.Add(time.Hour)}, nil
		},
		IsTokenExpired: func(err error) bool { return errors.Is(err, errTokenExp) },
		ConsumeReset: func(_ context.Context, id string, ttl time.Duration) error {
			if ttl != time.Hour {
				return errors.New("unexpected ttl")
			}
			if consumed[id] {
				return errUsed
			}
			consumed[id] = true
			return nil
		},
		GetUserByID:        users.byID,
		IsNotFound:         func(err error) bool { return errors.Is(err, errNotFound) },
		AccountStatusError: statusErr,
		HashPassword: func(p string) (string, error) {
			if len(p) < 10 {
				return "", errPolicy
			}
			return plainHash(p)
		},
		UpdatePasswordHash: users.update,
		ReleaseReset: func(_ context.Context, id string) error {
			delete(consumed, id)
			return nil
		},
		Errors: PasswordResetErrors{
			EngineNotReady:   errNotReady,
			ResetInvalid:     errTokenBad,
			ResetExpired:     errTokenExp,
			ResetTokenUsed:   errUsed,
			PasswordPolicy:   errPolicy,
			StoreUnavailable: errStore,
		},
	}
}

func TestRunResetPasswordSingleUse(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a", PasswordHash: "h:old"})
	consumed := map[string]bool{}
	deps := resetDeps(users, consumed)
	ctx := context.Background()

	if err := RunResetPassword(ctx, "T", "short", deps); !errors.Is(err, errPolicy) {
		t.Fatalf("expected policy, got %v", err)
	}
	if consumed["T"] {
		t.Fatal("policy failure must not consume the token")
	}

	if err := RunResetPassword(ctx, "T", "brand-new-password", deps); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if users.updates["u1"] != "h:brand-new-password" {
		t.Fatalf("unexpected hash %q", users.updates["u1"])
	}
	if err := RunResetPassword(ctx, "T", "another-password", deps); !errors.Is(err, errUsed) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
	if users.updates["u1"] != "h:brand-new-password" {
		t.Fatal("replay must not change the hash")
	}

	if err := RunResetPassword(ctx, "expired", "brand-new-password", deps); !errors.Is(err, errTokenExp) {
		t.Fatalf("expected expired, got %v", err)
	}
	if err := RunResetPassword(ctx, "bad", "brand-new-password", deps); !errors.Is(err, errTokenBad) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestRunLogout(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	revoked := map[string]time.Duration{}
	deps := LogoutDeps{
		Now: func() time.Time { return now },
		ParseRefresh: func(tok string) (TokenClaims, error) {
			if tok == "bad" {
				return TokenClaims{}, errTokenBad
			}
			return TokenClaims{Subject: "u1", ID: tok, ExpiresAt: now.Add(24 * time.Hour)}, nil
		},
		RevokeRefresh: func(_ context.Context, id string, ttl time.Duration) error {
			revoked[id] = ttl
			return nil
		},
	}

	for _, tok := range []string{"", "bad", "r1", "r1"} {
		if err := RunLogout(context.Background(), tok, deps); err != nil {
			t.Fatalf("%q: %v", tok, err)
		}
	}
	if len(revoked) != 1 || revoked["r1"] != 24*time.Hour {
		t.Fatalf("unexpected revocations: %v", revoked)
	}
}

func TestRunValidateAccess(t *testing.T) {
	deps := ValidateDeps{
		ParseAccess: func(tok string) (TokenClaims, error) {
			switch tok {
			case "expired":
				return TokenClaims{}, errTokenExp
			case "ok":
				return TokenClaims{Subject: "u1", Role: "admin"}, nil
			}
			return TokenClaims{}, errors.New("garbage")
		},
		IsTokenExpired: func(err error) bool { return errors.Is(err, errTokenExp) },
		Errors:         ValidateErrors{EngineNotReady: errNotReady, TokenInvalid: errTokenBad, TokenExpired: errTokenExp},
	}

	claims, err := RunValidateAccess("ok", deps)
	if err != nil || claims.Subject != "u1" {
		t.Fatalf("validate: %+v %v", claims, err)
	}
	if _, err := RunValidateAccess("expired", deps); !errors.Is(err, errTokenExp) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := RunValidateAccess("x", deps); !errors.Is(err, errTokenBad) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestRunResetPasswordStoreFailureReleasesToken(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a", PasswordHash: "h:old"})
	consumed := map[string]bool{}
	deps := resetDeps(users, consumed)
	ctx := context.Background()

	users.updateErr = errors.New("db blip")
	if err := RunResetPassword(ctx, "T", "brand-new-password", deps); !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if consumed["T"] {
		t.Fatal("failed update must release the token")
	}

	users.updateErr = nil
	if err := RunResetPassword(ctx, "T", "brand-new-password", deps); err != nil {
		t.Fatalf("retry after store failure: %v", err)
	}
	if err := RunResetPassword(ctx, "T", "brand-new-password", deps); !errors.Is(err, errUsed) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
}

func TestRunResetPasswordCancelledUpdateReleasesToken(t *testing.T) {
	users := newFakeUsers(UserRecord{UserID: "u1", Identifier: "a", PasswordHash: "h:old"})
	consumed := map[string]bool{}
	deps := resetDeps(users, consumed)

	ctx, cancel := context.WithCancel(context.Background())
	var releaseCtxErr error
	released := false
	deps.UpdatePasswordHash = func(ctx context.Context, _, _ string) error {
		cancel()
		return ctx.Err()
	}
	deps.ReleaseReset = func(rctx context.Context, id string) error {
		released = true
		releaseCtxErr = rctx.Err()
		delete(consumed, id)
		return nil
	}

	if err := RunResetPassword(ctx, "T", "brand-new-password", deps); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !released || releaseCtxErr != nil {
		t.Fatalf("release must run on a live context: released=%v err=%v", released, releaseCtxErr)
	}
	if consumed["T"] {
		t.Fatal("token should be usable again")
	}
}
