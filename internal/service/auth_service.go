package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"workshop-service/internal/auth"
	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

const (
	failedLoginThreshold = 5
	loginLockDuration    = 15 * time.Minute
)

type AuthService struct {
	users  *repository.UserRepository
	tokens *auth.Manager

	sideEffects
}

func NewAuthService(users *repository.UserRepository, tokens *auth.Manager, audit AuditStore, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:       users,
		tokens:      tokens,
		sideEffects: sideEffects{audit: audit, log: log},
	}
}

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	User        *model.User `json:"user"`
}

// Login checks credentials and issues an access token. Inactive accounts
// are rejected outright; repeated failures lock the account for a window.
// The same generic error covers unknown emails and bad passwords.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	now := time.Now()
	if !user.Active {
		return nil, ErrUnauthorized
	}
	if user.Locked(now) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if recErr := s.users.RecordLoginFailure(ctx, user.ID, failedLoginThreshold, loginLockDuration, now); recErr != nil {
			s.log.Error().Err(recErr).Str("user_id", user.ID.String()).Msg("failed to record login failure")
		}
		return nil, ErrUnauthorized
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login success")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &user.ID,
		ActorLabel: user.Name,
		Action:     "auth.login",
		EntityType: "user",
		EntityID:   user.ID,
		IP:         ip,
	})

	return &LoginResult{AccessToken: token, User: user}, nil
}

// Me returns the full user record behind a principal.
func (s *AuthService) Me(ctx context.Context, principal model.Principal) (*model.User, error) {
	user, err := s.users.GetByID(ctx, principal.UserID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}
