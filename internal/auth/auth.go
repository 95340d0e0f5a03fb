// Package auth handles login, JWT session tokens and default-owner
// provisioning. Tokens are HS256-signed and carry only the user ID and
// email; everything else is looked up per request.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sells-group/agency-crm/internal/config"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

var (
	// ErrInvalidCredentials is returned for a bad email/password pair. The
	// two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = eris.New("auth: invalid credentials")
	// ErrInvalidToken is returned for expired, malformed or forged tokens.
	ErrInvalidToken = eris.New("auth: invalid token")
)

// Store is the persistence surface auth needs.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Claims is the JWT payload for a CRM session.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies session tokens.
type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	seed   config.SeedConfig
	log    *zap.Logger
}

// NewService creates an auth service.
func NewService(s Store, cfg config.AuthConfig, seed config.SeedConfig) *Service {
	return &Service{
		store:  s,
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL(),
		seed:   seed,
		log:    zap.L().With(zap.String("component", "auth")),
	}
}

// Login verifies the credentials and returns a signed session token with the
// authenticated user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issue(u)
	if err != nil {
		return "", nil, err
	}
	s.log.Info("user logged in", zap.String("user_id", u.ID))
	return token, u, nil
}

func (s *Service) issue(u *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", eris.Wrap(err, "auth: sign token")
	}
	return token, nil
}

// Verify parses and validates a session token, returning its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// EnsureDefaultOwner returns the seed account, creating it on first call.
// Idempotent: safe to run at every startup and before every import.
func (s *Service) EnsureDefaultOwner(ctx context.Context) (*model.User, error) {
	u, err := s.store.GetUserByEmail(ctx, s.seed.Email)
	if err == nil {
		return u, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, eris.Wrap(err, "auth: hash seed password")
	}
	u = &model.User{
		ID:           uuid.New().String(),
		Email:        s.seed.Email,
		Name:         s.seed.Name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, eris.Wrap(err, "auth: create seed user")
	}
	s.log.Info("default owner provisioned", zap.String("email", u.Email))
	return u, nil
}

type contextKey struct{}

// WithUser stores the authenticated claims on the request context.
func WithUser(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// UserFromContext returns the authenticated claims, if any.
func UserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}
