// Package identity handles user creation, password verification, and
// bearer/basic credential verification.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/warrenbroker/pkg/log"
	"github.com/cuemby/warrenbroker/pkg/storage"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors mapped to HTTP status at the pkg/api boundary.
var (
	ErrUsernameTaken = errors.New("identity: username already taken")
	ErrAuthFailed    = errors.New("identity: authentication failed")
	ErrUnknownUser   = errors.New("identity: unknown user")
)

const userKeyPrefix = "_u_"

// Config carries the token-signing secret and token lifetime.
type Config struct {
	Secret        string
	ExpirySeconds int64
}

// Claims is the JWT payload issued by Login. Company is retained
// always-empty for wire compatibility with clients that expect the field.
type Claims struct {
	Subject string `json:"sub"`
	Company string `json:"company"`
	jwt.RegisteredClaims
}

// Service implements user creation, login, and credential verification
// against the shared store.
type Service struct {
	store storage.Store
}

// New returns an identity Service backed by store.
func New(store storage.Store) *Service {
	return &Service{store: store}
}

// CreateUser enrolls a new user, failing with ErrUsernameTaken if the
// username is already registered.
func (s *Service) CreateUser(form types.UserForm) (*types.User, error) {
	taken, err := s.usernameExists(form.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}

	user := &types.User{
		ID:           uuid.New(),
		Username:     form.Username,
		PasswordHash: string(hash),
		CollectionID: form.CollectionID,
		TenantID:     form.TenantID,
	}

	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal user: %w", err)
	}

	if err := s.store.Put(userKeyPrefix+user.ID.String(), data); err != nil {
		if errors.Is(err, storage.ErrCASConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("identity: persist user: %w", err)
	}
	if err := s.store.Flush(); err != nil {
		return nil, fmt.Errorf("identity: flush: %w", err)
	}

	return user, nil
}

// Login verifies username/password and, on success, issues a signed
// bearer token valid for cfg.ExpirySeconds.
func (s *Service) Login(form types.LoginForm, cfg Config) (string, error) {
	user, err := s.findByUsername(form.Username)
	if err != nil {
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)); err != nil {
		return "", ErrAuthFailed
	}

	now := time.Now()
	claims := Claims{
		Subject: user.ID.String(),
		Company: "",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirySeconds) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses an Authorization header value and returns the subject
// user id on success. It never reveals which half of a credential check
// failed.
func (s *Service) Verify(authHeader, secret string) (subject string, ok bool) {
	switch {
	case strings.HasPrefix(authHeader, "Bearer "):
		return s.verifyBearer(strings.TrimPrefix(authHeader, "Bearer "), secret)
	case strings.HasPrefix(authHeader, "Basic "):
		return s.verifyBasic(strings.TrimPrefix(authHeader, "Basic "))
	default:
		return "", false
	}
}

func (s *Service) verifyBearer(tokenStr, secret string) (string, bool) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	return claims.Subject, true
}

func (s *Service) verifyBasic(encoded string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", false
	}
	username, password := parts[0], parts[1]

	user, err := s.findByUsername(username)
	if err != nil {
		return "", false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", false
	}
	return user.ID.String(), true
}

// GetUser loads a user by id, returning ErrUnknownUser if absent.
func (s *Service) GetUser(id string) (*types.User, error) {
	data, err := s.store.Get(userKeyPrefix + id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("identity: load user: %w", err)
	}
	var user types.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("identity: unmarshal user: %w", err)
	}
	return &user, nil
}

func (s *Service) usernameExists(username string) (bool, error) {
	_, err := s.findByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) findByUsername(username string) (*types.User, error) {
	var found *types.User
	err := s.store.Iter(func(key string, value []byte) bool {
		if !strings.HasPrefix(key, userKeyPrefix) {
			return true
		}
		var user types.User
		if err := json.Unmarshal(value, &user); err != nil {
			log.WithComponent("identity").Error().Str("key", key).Err(err).Msg("skipping corrupt user record")
			return true
		}
		if user.Username == username {
			found = &user
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("identity: scan users: %w", err)
	}
	if found == nil {
		return nil, ErrUnknownUser
	}
	return found, nil
}
