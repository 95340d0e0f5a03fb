package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sells-group/agency-crm/internal/config"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type fakeUserStore struct {
	byEmail map[string]*model.User
}

func (f *fakeUserStore) CreateUser(_ context.Context, u *model.User) error {
	if f.byEmail == nil {
		f.byEmail = make(map[string]*model.User)
	}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func newTestService(t *testing.T, fs *fakeUserStore) *Service {
	t.Helper()
	return NewService(fs,
		config.AuthConfig{JWTSecret: "test-secret", TokenTTLMins: 60},
		config.SeedConfig{Email: "admin@agency.local", Password: "changeme", Name: "Default Owner"},
	)
}

func seedUser(t *testing.T, fs *fakeUserStore, email, password string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{ID: "u-1", Email: email, PasswordHash: string(hash)}
	require.NoError(t, fs.CreateUser(context.Background(), u))
	return u
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	fs := &fakeUserStore{}
	seedUser(t, fs, "ada@agency.local", "s3cret")
	svc := newTestService(t, fs)

	token, u, err := svc.Login(context.Background(), "ada@agency.local", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, "ada@agency.local", claims.Email)
}

func TestLogin_BadPasswordAndUnknownUserLookAlike(t *testing.T) {
	fs := &fakeUserStore{}
	seedUser(t, fs, "ada@agency.local", "s3cret")
	svc := newTestService(t, fs)

	_, _, badPass := svc.Login(context.Background(), "ada@agency.local", "wrong")
	_, _, noUser := svc.Login(context.Background(), "ghost@agency.local", "wrong")

	assert.ErrorIs(t, badPass, ErrInvalidCredentials)
	assert.ErrorIs(t, noUser, ErrInvalidCredentials)
}

func TestVerify_RejectsForgedAndGarbageTokens(t *testing.T) {
	fs := &fakeUserStore{}
	u := seedUser(t, fs, "ada@agency.local", "s3cret")
	svc := newTestService(t, fs)

	other := NewService(fs,
		config.AuthConfig{JWTSecret: "other-secret", TokenTTLMins: 60},
		config.SeedConfig{},
	)
	forged, err := other.issue(u)
	require.NoError(t, err)

	_, err = svc.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEnsureDefaultOwner_Idempotent(t *testing.T) {
	fs := &fakeUserStore{}
	svc := newTestService(t, fs)
	ctx := context.Background()

	first, err := svc.EnsureDefaultOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin@agency.local", first.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(first.PasswordHash), []byte("changeme")))

	second, err := svc.EnsureDefaultOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "second call returns the existing account")
	assert.Len(t, fs.byEmail, 1)
}

func TestUserContextRoundTrip(t *testing.T) {
	claims := &Claims{Email: "ada@agency.local"}
	ctx := WithUser(context.Background(), claims)

	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, claims, got)

	_, ok = UserFromContext(context.Background())
	assert.False(t, ok)
}
