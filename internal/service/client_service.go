package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"workshop-service/internal/cache"
	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

// ClientActivityChecker answers the referential-activity questions behind
// the client soft-delete guard.
type ClientActivityChecker interface {
	HasActiveForClient(ctx context.Context, clientID uuid.UUID) (bool, error)
	HasUndeliveredForClient(ctx context.Context, clientID uuid.UUID) (bool, error)
}

type clientActivity struct {
	quotes *repository.QuoteRepository
	orders *repository.WorkOrderRepository
}

// NewClientActivityChecker combines the quote and order repositories into
// the guard interface.
func NewClientActivityChecker(quotes *repository.QuoteRepository, orders *repository.WorkOrderRepository) ClientActivityChecker {
	return &clientActivity{quotes: quotes, orders: orders}
}

func (c *clientActivity) HasActiveForClient(ctx context.Context, clientID uuid.UUID) (bool, error) {
	return c.quotes.HasActiveForClient(ctx, clientID)
}

func (c *clientActivity) HasUndeliveredForClient(ctx context.Context, clientID uuid.UUID) (bool, error) {
	return c.orders.HasUndeliveredForClient(ctx, clientID)
}

type ClientService struct {
	clients  *repository.ClientRepository
	activity ClientActivityChecker

	sideEffects
}

func NewClientService(
	clients *repository.ClientRepository,
	activity ClientActivityChecker,
	audit AuditStore,
	invalidator Invalidator,
	log zerolog.Logger,
) *ClientService {
	return &ClientService{
		clients:     clients,
		activity:    activity,
		sideEffects: sideEffects{audit: audit, cache: invalidator, log: log},
	}
}

type ClientInput struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

func (s *ClientService) Create(ctx context.Context, principal model.Principal, input ClientInput) (*model.Client, error) {
	if input.Name == "" {
		return nil, ErrInvalidInput
	}

	client := &model.Client{
		Name:    input.Name,
		Phone:   input.Phone,
		Email:   input.Email,
		Address: input.Address,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "client.create",
		EntityType: "client",
		EntityID:   client.ID,
	})

	return client, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*model.Client, error) {
	client, err := s.clients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return client, nil
}

func (s *ClientService) List(ctx context.Context, filter repository.ClientListFilter) ([]model.Client, error) {
	return s.clients.List(ctx, filter)
}

func (s *ClientService) Update(ctx context.Context, principal model.Principal, id string, input ClientInput) (*model.Client, error) {
	if input.Name == "" {
		return nil, ErrInvalidInput
	}

	client, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	client.Name = input.Name
	client.Phone = input.Phone
	client.Email = input.Email
	client.Address = input.Address

	if err := s.clients.Update(ctx, client); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "client.update",
		EntityType: "client",
		EntityID:   client.ID,
	})

	return client, nil
}

// Delete soft-deletes a client unless they still have pending quotes or
// undelivered work orders.
func (s *ClientService) Delete(ctx context.Context, principal model.Principal, id string) error {
	client, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	hasQuotes, err := s.activity.HasActiveForClient(ctx, client.ID)
	if err != nil {
		return err
	}
	if hasQuotes {
		return fmt.Errorf("%w: client has pending quotes", ErrConflict)
	}

	hasOrders, err := s.activity.HasUndeliveredForClient(ctx, client.ID)
	if err != nil {
		return err
	}
	if hasOrders {
		return fmt.Errorf("%w: client has undelivered work orders", ErrConflict)
	}

	if err := s.clients.SoftDelete(ctx, id, principal.UserID, time.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "client.delete",
		EntityType: "client",
		EntityID:   client.ID,
	})

	s.invalidate(ctx, cache.PrefixQuotes)
	return nil
}
