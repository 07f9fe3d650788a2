package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/eventlyze/authflow"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// ErrDuplicateEmail is returned by [UserStore.CreateUser] when the email is
// already registered.
var ErrDuplicateEmail = errors.New("email already registered")

type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements [authflow.UserProvider].
type UserStore struct {
	pool poolIface
}

var _ authflow.UserProvider = (*UserStore)(nil)

// NewUserStore wraps a *pgxpool.Pool or any compatible pool.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

const selectUser = `SELECT id::text, email, password_hash, role, status, need_password_change FROM users`

func (s *UserStore) GetUserByIdentifier(ctx context.Context, identifier string) (authflow.UserRecord, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(identifier))
	user, err := scanUser(row)
	if err != nil {
		return authflow.UserRecord{}, wrapLookup(err, "get user by identifier")
	}
	return user, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, userID string) (authflow.UserRecord, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return authflow.UserRecord{}, oops.In("postgres").Code("user_not_found").Wrap(authflow.ErrUserNotFound)
	}

	row := s.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return authflow.UserRecord{}, wrapLookup(err, "get user by id")
	}
	return user, nil
}

// UpdatePasswordHash stores newHash and clears need_password_change.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return oops.In("postgres").Code("user_not_found").Wrap(authflow.ErrUserNotFound)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, need_password_change = FALSE, updated_at = NOW() WHERE id = $1`,
		id, newHash)
	if err != nil {
		return oops.In("postgres").Code("update_password").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.In("postgres").Code("user_not_found").With("user_id", userID).Wrap(authflow.ErrUserNotFound)
	}
	return nil
}

// NewUser describes an account to create.
type NewUser struct {
	Email              string
	PasswordHash       string
	Role               string
	NeedPasswordChange bool
}

// CreateUser inserts an active account and returns it with its new ID.
func (s *UserStore) CreateUser(ctx context.Context, u NewUser) (authflow.UserRecord, error) {
	email := strings.TrimSpace(u.Email)
	if email == "" || u.PasswordHash == "" {
		return authflow.UserRecord{}, oops.In("postgres").Code("invalid_user").Wrap(authflow.ErrInvalidInput)
	}
	role := u.Role
	if role == "" {
		role = "member"
	}

	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role, status, need_password_change)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, email, u.PasswordHash, role, int16(authflow.AccountActive), u.NeedPasswordChange)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return authflow.UserRecord{}, oops.In("postgres").Code("duplicate_email").Wrap(ErrDuplicateEmail)
		}
		return authflow.UserRecord{}, oops.In("postgres").Code("create_user").Wrap(err)
	}

	return authflow.UserRecord{
		UserID:             id.String(),
		Identifier:         email,
		PasswordHash:       u.PasswordHash,
		Role:               role,
		Status:             authflow.AccountActive,
		NeedPasswordChange: u.NeedPasswordChange,
	}, nil
}

// SetStatus changes the account status. Disabled and locked accounts can no
// longer log in or refresh.
func (s *UserStore) SetStatus(ctx context.Context, userID string, status authflow.AccountStatus) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return oops.In("postgres").Code("user_not_found").Wrap(authflow.ErrUserNotFound)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, int16(status))
	if err != nil {
		return oops.In("postgres").Code("set_status").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.In("postgres").Code("user_not_found").With("user_id", userID).Wrap(authflow.ErrUserNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (authflow.UserRecord, error) {
	var (
		user   authflow.UserRecord
		status int16
	)
	if err := row.Scan(&user.UserID, &user.Identifier, &user.PasswordHash, &user.Role, &status, &user.NeedPasswordChange); err != nil {
		return authflow.UserRecord{}, err
	}
	user.Status = authflow.AccountStatus(status)
	return user, nil
}

func wrapLookup(err error, operation string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.In("postgres").Code("user_not_found").Wrap(authflow.ErrUserNotFound)
	}
	return oops.In("postgres").Code("query_failed").With("operation", operation).Wrap(err)
}
