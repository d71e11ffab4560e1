package identity_test

import (
	"fmt"
	"testing"

	"github.com/cuemby/warrenbroker/pkg/identity"
	"github.com/cuemby/warrenbroker/pkg/storage/storagetest"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser_RejectsDuplicateUsername(t *testing.T) {
	store := storagetest.NewMemStore()
	svc := identity.New(store)

	form := types.UserForm{Username: "rust22", Password: "rust", CollectionID: uuid.New(), TenantID: uuid.New()}
	_, err := svc.CreateUser(form)
	require.NoError(t, err)

	_, err = svc.CreateUser(form)
	assert.ErrorIs(t, err, identity.ErrUsernameTaken)
}

func TestLogin_SucceedsWithCorrectPassword(t *testing.T) {
	store := storagetest.NewMemStore()
	svc := identity.New(store)

	form := types.UserForm{Username: "rust22", Password: "rust", CollectionID: uuid.New(), TenantID: uuid.New()}
	_, err := svc.CreateUser(form)
	require.NoError(t, err)

	token, err := svc.Login(types.LoginForm{Username: "rust22", Password: "rust"}, identity.Config{Secret: "secret", ExpirySeconds: 3600})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	subject, ok := svc.Verify(fmt.Sprintf("Bearer %s", token), "secret")
	assert.True(t, ok)
	assert.NotEmpty(t, subject)
}

func TestLogin_FailsWithWrongPassword(t *testing.T) {
	store := storagetest.NewMemStore()
	svc := identity.New(store)

	form := types.UserForm{Username: "rust22", Password: "rust", CollectionID: uuid.New(), TenantID: uuid.New()}
	_, err := svc.CreateUser(form)
	require.NoError(t, err)

	_, err = svc.Login(types.LoginForm{Username: "rust22", Password: "wrong"}, identity.Config{Secret: "secret", ExpirySeconds: 3600})
	assert.ErrorIs(t, err, identity.ErrAuthFailed)
}

func TestVerify_RejectsMalformedBearer(t *testing.T) {
	store := storagetest.NewMemStore()
	svc := identity.New(store)

	_, ok := svc.Verify("Bearer 1234", "secret")
	assert.False(t, ok)

	_, ok = svc.Verify("foo", "secret")
	assert.False(t, ok)
}

func TestVerify_SucceedsWithBasicAuth(t *testing.T) {
	store := storagetest.NewMemStore()
	svc := identity.New(store)

	form := types.UserForm{Username: "rust22", Password: "rust", CollectionID: uuid.New(), TenantID: uuid.New()}
	user, err := svc.CreateUser(form)
	require.NoError(t, err)

	subject, ok := svc.Verify("Basic cnVzdDIyOnJ1c3Q=", "secret") // base64("rust22:rust")
	assert.True(t, ok)
	assert.Equal(t, user.ID.String(), subject)
}
