package authsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftpbridge/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	a := newTestService(t)
	require.NoError(t, a.Register("alice", "hunter2"))
	assert.NoError(t, a.Authenticate("alice", "hunter2"))
	assert.ErrorIs(t, a.Authenticate("alice", "wrong"), ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	a := newTestService(t)
	assert.ErrorIs(t, a.Authenticate("ghost", "x"), ErrInvalidCredentials)
}

func TestCheckPermission(t *testing.T) {
	a := newTestService(t)
	require.NoError(t, a.Register("bob", "pw"))

	ok, err := a.CheckPermission("bob", "user")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CheckPermission("bob", "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.CheckPermission(store.SeedAdminUsername, "admin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdatePasswordRequiresOldPassword(t *testing.T) {
	a := newTestService(t)
	require.NoError(t, a.Register("carol", "old-pw"))

	err := a.UpdatePassword("carol", "new-pw", "wrong-old")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NoError(t, a.Authenticate("carol", "old-pw"), "password must be unchanged")

	require.NoError(t, a.UpdatePassword("carol", "new-pw", "old-pw"))
	assert.NoError(t, a.Authenticate("carol", "new-pw"))
	assert.Error(t, a.Authenticate("carol", "old-pw"))
}

func TestRegisterDuplicateUsernameFails(t *testing.T) {
	a := newTestService(t)
	require.NoError(t, a.Register("dave", "pw1"))
	assert.Error(t, a.Register("dave", "pw2"))
}
