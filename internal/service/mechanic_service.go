package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

type MechanicActivityChecker interface {
	HasOpenForMechanic(ctx context.Context, mechanicID uuid.UUID) (bool, error)
}

type MechanicService struct {
	mechanics *repository.MechanicRepository
	activity  MechanicActivityChecker

	sideEffects
}

func NewMechanicService(
	mechanics *repository.MechanicRepository,
	activity MechanicActivityChecker,
	audit AuditStore,
	log zerolog.Logger,
) *MechanicService {
	return &MechanicService{
		mechanics:   mechanics,
		activity:    activity,
		sideEffects: sideEffects{audit: audit, log: log},
	}
}

type MechanicInput struct {
	Name      string
	Specialty string
	Phone     string
	Active    *bool
}

func (s *MechanicService) Create(ctx context.Context, principal model.Principal, input MechanicInput) (*model.Mechanic, error) {
	if input.Name == "" {
		return nil, ErrInvalidInput
	}

	mechanic := &model.Mechanic{
		Name:      input.Name,
		Specialty: input.Specialty,
		Phone:     input.Phone,
		Active:    true,
	}
	if input.Active != nil {
		mechanic.Active = *input.Active
	}

	if err := s.mechanics.Create(ctx, mechanic); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "mechanic.create",
		EntityType: "mechanic",
		EntityID:   mechanic.ID,
	})

	return mechanic, nil
}

func (s *MechanicService) Get(ctx context.Context, id string) (*model.Mechanic, error) {
	mechanic, err := s.mechanics.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return mechanic, nil
}

func (s *MechanicService) List(ctx context.Context, filter repository.MechanicListFilter) ([]model.Mechanic, error) {
	return s.mechanics.List(ctx, filter)
}

func (s *MechanicService) Update(ctx context.Context, principal model.Principal, id string, input MechanicInput) (*model.Mechanic, error) {
	if input.Name == "" {
		return nil, ErrInvalidInput
	}

	mechanic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	mechanic.Name = input.Name
	mechanic.Specialty = input.Specialty
	mechanic.Phone = input.Phone
	if input.Active != nil {
		mechanic.Active = *input.Active
	}

	if err := s.mechanics.Update(ctx, mechanic); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "mechanic.update",
		EntityType: "mechanic",
		EntityID:   mechanic.ID,
	})

	return mechanic, nil
}

// Delete soft-deletes a mechanic unless they still have undelivered work
// orders assigned.
func (s *MechanicService) Delete(ctx context.Context, principal model.Principal, id string) error {
	mechanic, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	busy, err := s.activity.HasOpenForMechanic(ctx, mechanic.ID)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w: mechanic has undelivered work orders", ErrConflict)
	}

	if err := s.mechanics.SoftDelete(ctx, id, principal.UserID, time.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "mechanic.delete",
		EntityType: "mechanic",
		EntityID:   mechanic.ID,
	})

	return nil
}
