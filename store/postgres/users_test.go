package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/eventlyze/authflow"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"id", "email", "password_hash", "role", "status", "need_password_change"}

const testUserID = "6f1c2b8e-4d6a-4f3b-9a51-0c2d7e8f9a10"

func TestUserStore_GetUserByIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      authflow.UserRecord
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(userColumns).
					AddRow(testUserID, "Alice@Example.com", "$argon2id$hash", "admin", int16(2), true)
				mock.ExpectQuery(`FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
					WithArgs("alice@example.com").
					WillReturnRows(rows)
			},
			want: authflow.UserRecord{
				UserID:             testUserID,
				Identifier:         "Alice@Example.com",
				PasswordHash:       "$argon2id$hash",
				Role:               "admin",
				Status:             authflow.AccountLocked,
				NeedPasswordChange: true,
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users WHERE LOWER\(email\)`).
					WithArgs("alice@example.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: authflow.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users WHERE LOWER\(email\)`).
					WithArgs("alice@example.com").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			store := NewUserStore(mock)
			got, err := store.GetUserByIdentifier(context.Background(), " alice@example.com ")

			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case errors.Is(tt.wantErr, authflow.ErrNotFound):
				assert.ErrorIs(t, err, authflow.ErrNotFound)
			default:
				require.Error(t, err)
				assert.NotErrorIs(t, err, authflow.ErrNotFound)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserStore_GetUserByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(userColumns).
		AddRow(testUserID, "alice@example.com", "hash", "member", int16(0), false)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(uuid.MustParse(testUserID)).
		WillReturnRows(rows)

	store := NewUserStore(mock)
	got, err := store.GetUserByID(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, authflow.AccountActive, got.Status)
	assert.Equal(t, "alice@example.com", got.Identifier)

	_, err = store.GetUserByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, authflow.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_UpdatePasswordHash(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "updated",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET password_hash = \$2, need_password_change = FALSE`).
					WithArgs(uuid.MustParse(testUserID), "new-hash").
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "no such user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET password_hash`).
					WithArgs(uuid.MustParse(testUserID), "new-hash").
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantErr: authflow.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			err = NewUserStore(mock).UpdatePasswordHash(context.Background(), testUserID, "new-hash")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserStore_CreateUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "bob@example.com", "hash", "member", int16(0), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "bob@example.com", "hash", "member", int16(0), false).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	store := NewUserStore(mock)
	created, err := store.CreateUser(context.Background(), NewUser{Email: " bob@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", created.Identifier)
	assert.Equal(t, "member", created.Role)
	_, parseErr := uuid.Parse(created.UserID)
	assert.NoError(t, parseErr)

	_, err = store.CreateUser(context.Background(), NewUser{Email: "bob@example.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = store.CreateUser(context.Background(), NewUser{Email: "", PasswordHash: "hash"})
	assert.ErrorIs(t, err, authflow.ErrValidation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_SetStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE users SET status = \$2`).
		WithArgs(uuid.MustParse(testUserID), int16(authflow.AccountDisabled)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewUserStore(mock).SetStatus(context.Background(), testUserID, authflow.AccountDisabled)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_users.sql", entries[0].Name())
}
