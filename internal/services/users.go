package services

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/calcforest/calcforest/internal/auth"
	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/calcforest/calcforest/internal/models"
	"github.com/calcforest/calcforest/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6

	msgCredentialsRequired = "Username and password are required"
	msgInvalidCredentials  = "Invalid credentials"

	// hashed once and compared against when the username is unknown, so
	// both login failures cost one bcrypt comparison
	dummyPassword = "calcforest-unknown-user"
)

// PasswordHasher is satisfied by *auth.Hasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// UserService handles registration, login and token verification.
type UserService struct {
	users   store.UserStore
	hasher  PasswordHasher
	tokens  *auth.Tokens
	log     *logrus.Logger
	metrics *metrics.Collector

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(users store.UserStore, hasher PasswordHasher, tokens *auth.Tokens, log *logrus.Logger, m *metrics.Collector) *UserService {
	return &UserService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		log:     log,
		metrics: m,
	}
}

func (s *UserService) Register(ctx context.Context, username, password string) (AuthResult, error) {
	if username == "" || password == "" {
		return AuthResult{}, apperr.Validation(msgCredentialsRequired)
	}
	if utf8.RuneCountInString(username) < minUsernameLength {
		return AuthResult{}, apperr.Validation("Username must be at least 3 characters")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return AuthResult{}, apperr.Validation("Password must be at least 6 characters")
	}

	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return AuthResult{}, apperr.Conflict("Username already exists")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, apperr.Internal(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}

	user, err := s.users.CreateUser(ctx, models.User{Username: username, PasswordHash: hash})
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, store.ErrDuplicate) {
			return AuthResult{}, apperr.Conflict("Username already exists")
		}
		return AuthResult{}, apperr.Internal(err)
	}

	result, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}

	s.metrics.UserRegistered()
	s.log.WithField("user_id", user.ID).Infof("User registered: %s", user.Username)
	return result, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	if username == "" || password == "" {
		return AuthResult{}, apperr.Validation(msgCredentialsRequired)
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = s.hasher.Compare(s.unknownUserHash(), password)
			s.metrics.LoginAttempt(false)
			return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
		}
		return AuthResult{}, apperr.Internal(err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if !ok {
		s.metrics.LoginAttempt(false)
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}

	result, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}

	s.metrics.LoginAttempt(true)
	s.log.WithField("user_id", user.ID).Infof("User logged in: %s", user.Username)
	return result, nil
}

func (s *UserService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.log.WithError(err).Error("Failed to prepare unknown user hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// VerifyToken resolves a bearer token to the identity it was issued for.
func (s *UserService) VerifyToken(token string) (Actor, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Actor{}, apperr.Unauthorized("Invalid or expired token")
	}
	return Actor{UserID: claims.UserID, Username: claims.Username}, nil
}

// Me loads the current user. A valid token whose user row is gone yields
// NotFound, not Unauthorized.
func (s *UserService) Me(ctx context.Context, userID string) (PublicUser, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PublicUser{}, apperr.NotFound("User not found")
		}
		return PublicUser{}, apperr.Internal(err)
	}
	return PublicUser{ID: user.ID, Username: user.Username}, nil
}

func (s *UserService) issue(user models.User) (AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{
		Token: token,
		User:  PublicUser{ID: user.ID, Username: user.Username},
	}, nil
}
