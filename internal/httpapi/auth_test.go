package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
	"dbella/pos/internal/store/memory"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

func TestEnsureSeedAdminOnlyRunsOnEmptyTable(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	require.NoError(t, auth.EnsureSeedAdmin(ctx, "Dueña@DBella.co", "clave-segura-1"))
	require.NoError(t, auth.EnsureSeedAdmin(ctx, "otra@dbella.co", "clave-segura-2"))

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	user, err := repo.GetUserByEmail(ctx, "dueña@dbella.co")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.NotEqual(t, "clave-segura-1", user.Password)
	assert.True(t, isPasswordHash(user.Password))
}

func TestLoginIssuesTokenForUserID(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	auth := NewAuthManager(testSecret, time.Hour, repo)
	require.NoError(t, auth.EnsureSeedAdmin(ctx, "admin@dbella.co", "admin12345"))

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: " ADMIN@dbella.co ", Password: "admin12345"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.Role)

	userID, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	user, err := repo.GetUserByEmail(ctx, "admin@dbella.co")
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = auth.Login(ctx, domain.LoginRequest{Email: "admin@dbella.co", Password: "wrong-pass"})
	require.ErrorIs(t, err, errInvalidCredentials)
	_, err = auth.Login(ctx, domain.LoginRequest{Email: "nadie@dbella.co", Password: "admin12345"})
	require.ErrorIs(t, err, errInvalidCredentials)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	_, err := repo.CreateUser(ctx, domain.UserAccount{
		Email:    "ex@dbella.co",
		Password: mustHashPassword(t, "password123"),
		Role:     domain.RoleSeller,
		Active:   false,
	})
	require.NoError(t, err)

	auth := NewAuthManager(testSecret, time.Hour, repo)
	_, err = auth.Login(ctx, domain.LoginRequest{Email: "ex@dbella.co", Password: "password123"})
	require.ErrorIs(t, err, errInactiveAccount)
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	auth := NewAuthManager(testSecret, time.Minute, repo)
	require.NoError(t, auth.EnsureSeedAdmin(ctx, "admin@dbella.co", "admin12345"))

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "admin@dbella.co", Password: "admin12345"})
	require.NoError(t, err)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = auth.ParseToken(resp.AccessToken)
	require.ErrorIs(t, err, errInvalidToken)

	other := NewAuthManager("another-secret-key-with-32-characters!", time.Hour, repo)
	_, err = other.ParseToken(resp.AccessToken)
	require.ErrorIs(t, err, errInvalidToken)
}

func TestResolveReflectsCurrentRole(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	user, err := auth.SignUp(ctx, domain.SignUpRequest{Email: "nueva@dbella.co", Password: "password123", FullName: "Nueva"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, user.Role)

	principal, err := auth.Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, principal.Can(domain.CapProfitability))

	_, err = repo.UpdateUserRole(ctx, user.ID, domain.RoleManager)
	require.NoError(t, err)
	principal, err = auth.Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, principal.Can(domain.CapProfitability))

	_, err = auth.SignUp(ctx, domain.SignUpRequest{Email: "nueva@dbella.co", Password: "password123"})
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = auth.SignUp(ctx, domain.SignUpRequest{Email: "no-es-correo", Password: "password123"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = auth.SignUp(ctx, domain.SignUpRequest{Email: "corta@dbella.co", Password: "123"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSignUpStoresBareAddressFromDisplayNameForm(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	user, err := auth.SignUp(ctx, domain.SignUpRequest{Email: "Eve <Eve@DBella.co>", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "eve@dbella.co", user.Email)
	assert.Equal(t, "Eve", user.FullName)

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "eve@dbella.co", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, resp.Role)

	_, err = auth.SignUp(ctx, domain.SignUpRequest{Email: "eve@dbella.co", Password: "password123"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestSignUpRunsRequestValidation(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.New())

	_, err := auth.SignUp(context.Background(), domain.SignUpRequest{
		Email:    "larga@dbella.co",
		Password: "password123",
		FullName: strings.Repeat("a", 201),
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	assert.Contains(t, err.Error(), "fullname failed max")

	_, err = auth.SignUp(context.Background(), domain.SignUpRequest{Email: "larga@dbella.co", Password: strings.Repeat("x", 73)})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}
