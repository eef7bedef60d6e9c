package postgres

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/classkeeper/authsession/internal/errs"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

const selectProfile = `SELECT u.auth_user_id, u.full_name, r.role_code, r.permissions FROM users u JOIN roles r ON r.id = u.role_id WHERE u.auth_user_id = \$1`

func TestProfileStore_FetchProfile_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewProfileStore(db)
	ctx := context.Background()
	pid := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(selectProfile).
		WithArgs(pid).
		WillReturnRows(pgxmock.NewRows([]string{"auth_user_id", "full_name", "role_code", "permissions"}).
			AddRow(pid, "Chen Laoshi", "TEACHER", []byte(`{"students.read":true,"billing.read":false}`)))

	p, err := s.FetchProfile(ctx, pid)
	require.NoError(t, err)
	require.Equal(t, pid, p.PrincipalID)
	require.Equal(t, "Chen Laoshi", p.DisplayName)
	require.Equal(t, "TEACHER", p.Role.Code)
	require.True(t, p.HasPermission("students.read"))
	require.False(t, p.HasPermission("billing.read"))
	require.False(t, p.HasPermission("billing.write"))
}

func TestProfileStore_FetchProfile_AdminImplicitPermissions(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewProfileStore(db)
	pid := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(selectProfile).
		WithArgs(pid).
		WillReturnRows(pgxmock.NewRows([]string{"auth_user_id", "full_name", "role_code", "permissions"}).
			AddRow(pid, "Admin", "ADMIN", []byte(`{}`)))

	p, err := s.FetchProfile(context.Background(), pid)
	require.NoError(t, err)
	require.True(t, p.HasPermission("anything.at.all"))
	require.True(t, p.HasAnyRole("ADMIN", "TEACHER"))
}

func TestProfileStore_FetchProfile_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewProfileStore(db)
	pid := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(selectProfile).
		WithArgs(pid).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.FetchProfile(context.Background(), pid)
	require.ErrorIs(t, err, errs.ErrProfileNotFound)
}

func TestProfileStore_FetchProfile_BadPermissionsJSON(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewProfileStore(db)
	pid := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(selectProfile).
		WithArgs(pid).
		WillReturnRows(pgxmock.NewRows([]string{"auth_user_id", "full_name", "role_code", "permissions"}).
			AddRow(pid, "X", "STAFF", []byte(`{broken`)))

	_, err := s.FetchProfile(context.Background(), pid)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrProfileNotFound)
}
