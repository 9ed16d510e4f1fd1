package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

const minPasswordLength = 8

type UserService struct {
	users *repository.UserRepository

	sideEffects
}

func NewUserService(users *repository.UserRepository, audit AuditStore, log zerolog.Logger) *UserService {
	return &UserService{
		users:       users,
		sideEffects: sideEffects{audit: audit, log: log},
	}
}

type UserInput struct {
	Name     string
	Email    string
	Password string
	Role     model.UserRole
}

// Create registers a staff account. Admin only.
func (s *UserService) Create(ctx context.Context, principal model.Principal, input UserInput) (*model.User, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if input.Name == "" || input.Email == "" {
		return nil, ErrInvalidInput
	}
	if len(input.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if input.Role != model.UserRoleAdmin && input.Role != model.UserRoleStaff {
		return nil, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
		Active:       true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "user.create",
		EntityType: "user",
		EntityID:   user.ID,
	})

	return user, nil
}

func (s *UserService) Get(ctx context.Context, principal model.Principal, id string) (*model.User, error) {
	if !principal.IsAdmin() && principal.UserID.String() != id {
		return nil, ErrPermissionDenied
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, principal model.Principal, page repository.Page) ([]model.User, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return s.users.List(ctx, page)
}

type UserUpdateInput struct {
	Name  string
	Email string
	Role  model.UserRole
}

func (s *UserService) Update(ctx context.Context, principal model.Principal, id string, input UserUpdateInput) (*model.User, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if input.Name == "" || input.Email == "" {
		return nil, ErrInvalidInput
	}
	if input.Role != model.UserRoleAdmin && input.Role != model.UserRoleStaff {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	user.Name = input.Name
	user.Email = input.Email
	user.Role = input.Role

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "user.update",
		EntityType: "user",
		EntityID:   user.ID,
	})

	return user, nil
}

// SetActive flips the explicit enabled flag. Admins cannot deactivate
// themselves, which keeps at least the acting admin able to log in.
func (s *UserService) SetActive(ctx context.Context, principal model.Principal, id string, active bool) error {
	if !principal.IsAdmin() {
		return ErrPermissionDenied
	}
	if principal.UserID.String() == id && !active {
		return fmt.Errorf("%w: cannot deactivate your own account", ErrConflict)
	}

	if err := s.users.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	action := "user.deactivate"
	if active {
		action = "user.activate"
	}
	user, err := s.users.GetByID(ctx, id)
	if err == nil {
		s.recordAudit(ctx, &model.AuditLog{
			ActorID:    &principal.UserID,
			ActorLabel: principal.Name,
			Action:     action,
			EntityType: "user",
			EntityID:   user.ID,
		})
	}

	return nil
}

// ChangePassword lets a user rotate their own password after proving the
// current one.
func (s *UserService) ChangePassword(ctx context.Context, principal model.Principal, current, next string) error {
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	user, err := s.users.GetByID(ctx, principal.UserID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrUnauthorized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "user.change_password",
		EntityType: "user",
		EntityID:   user.ID,
	})

	return nil
}

// Delete soft-deletes a user account and deactivates it in the same step.
func (s *UserService) Delete(ctx context.Context, principal model.Principal, id string) error {
	if !principal.IsAdmin() {
		return ErrPermissionDenied
	}
	if principal.UserID.String() == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrConflict)
	}

	if err := s.users.SoftDelete(ctx, id, principal.UserID, time.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	userID, _ := uuid.Parse(id)
	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "user.delete",
		EntityType: "user",
		EntityID:   userID,
	})

	return nil
}
