package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"workshop-service/internal/cache"
	"workshop-service/internal/model"
	"workshop-service/internal/notify"
	"workshop-service/internal/repository"
)

// QuoteStore is the persistence surface the quote workflow needs. The
// multi-step operations (Approve, Reject, ReplaceTokens) are transactional
// in the real implementation; tests substitute an in-memory fake.
type QuoteStore interface {
	Create(ctx context.Context, quote *model.Quote) error
	GetByID(ctx context.Context, id string) (*model.Quote, error)
	List(ctx context.Context, filter repository.QuoteListFilter) ([]model.Quote, error)
	Update(ctx context.Context, quote *model.Quote) error
	ReplaceTokens(ctx context.Context, quoteID uuid.UUID, tokens []model.QuoteToken) error
	MarkEmailResult(ctx context.Context, quoteID uuid.UUID, sent bool, now time.Time) error
	Approve(ctx context.Context, quoteID string, presented *string, usage repository.TokenUsage, now time.Time,
		buildOrder func(q *model.Quote, orderNumber int64) *model.WorkOrder) (*model.Quote, *model.WorkOrder, error)
	Reject(ctx context.Context, quoteID string, presented *string, usage repository.TokenUsage, now time.Time) (*model.Quote, error)
	SoftDelete(ctx context.Context, quoteID string, actor uuid.UUID, now time.Time) error
}

type ClientGetter interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
}

type QuoteService struct {
	quotes  QuoteStore
	clients ClientGetter
	mailer  notify.Mailer

	publicBaseURL string
	validityDays  int

	sideEffects
}

func NewQuoteService(
	quotes QuoteStore,
	clients ClientGetter,
	mailer notify.Mailer,
	publicBaseURL string,
	validityDays int,
	audit AuditStore,
	invalidator Invalidator,
	log zerolog.Logger,
) *QuoteService {
	return &QuoteService{
		quotes:        quotes,
		clients:       clients,
		mailer:        mailer,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		validityDays:  validityDays,
		sideEffects:   sideEffects{audit: audit, cache: invalidator, log: log},
	}
}

type QuoteInput struct {
	ClientID      string
	Vehicle       model.Vehicle
	Problem       string
	ProposedWork  string
	EstimatedCost float64
	ValidUntil    *time.Time
}

func (in *QuoteInput) validate() error {
	if in.ClientID == "" || in.Problem == "" || in.ProposedWork == "" {
		return ErrInvalidInput
	}
	if in.EstimatedCost <= 0 {
		return ErrInvalidInput
	}
	if in.Vehicle.Brand == "" || in.Vehicle.Model == "" || in.Vehicle.Plate == "" {
		return ErrInvalidInput
	}
	if in.Vehicle.Year < 1900 || in.Vehicle.Year > time.Now().Year()+1 {
		return ErrInvalidInput
	}
	return nil
}

func (s *QuoteService) Create(ctx context.Context, principal model.Principal, input QuoteInput) (*model.Quote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	clientID, err := uuid.Parse(input.ClientID)
	if err != nil {
		return nil, ErrInvalidInput
	}
	if _, err := s.clients.GetByID(ctx, input.ClientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	validUntil := time.Now().AddDate(0, 0, s.validityDays)
	if input.ValidUntil != nil {
		if input.ValidUntil.Before(time.Now()) {
			return nil, ErrInvalidInput
		}
		validUntil = *input.ValidUntil
	}

	quote := &model.Quote{
		ClientID:      clientID,
		Vehicle:       input.Vehicle,
		Problem:       input.Problem,
		ProposedWork:  input.ProposedWork,
		EstimatedCost: input.EstimatedCost,
		ValidUntil:    validUntil,
		Status:        model.QuoteStatusPending,
	}

	if err := s.quotes.Create(ctx, quote); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "quote.create",
		EntityType: "quote",
		EntityID:   quote.ID,
		Metadata:   auditMetadata(map[string]interface{}{"number": quote.Number}),
	})
	s.invalidate(ctx, cache.PrefixQuotes, cache.PrefixDashboard)

	return quote, nil
}

func (s *QuoteService) Get(ctx context.Context, id string) (*model.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return quote, nil
}

func (s *QuoteService) List(ctx context.Context, filter repository.QuoteListFilter) ([]model.Quote, error) {
	return s.quotes.List(ctx, filter)
}

// Update edits a quote's fields. Only pending quotes are editable; the
// store re-checks that under the same condition, so a racing approval wins.
func (s *QuoteService) Update(ctx context.Context, principal model.Principal, id string, input QuoteInput) (*model.Quote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	quote, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote.Status != model.QuoteStatusPending {
		return nil, fmt.Errorf("%w: quote is %s", ErrConflict, quote.Status)
	}

	clientID, err := uuid.Parse(input.ClientID)
	if err != nil {
		return nil, ErrInvalidInput
	}

	quote.ClientID = clientID
	quote.Vehicle = input.Vehicle
	quote.Problem = input.Problem
	quote.ProposedWork = input.ProposedWork
	quote.EstimatedCost = input.EstimatedCost
	if input.ValidUntil != nil {
		quote.ValidUntil = *input.ValidUntil
	}

	if err := s.quotes.Update(ctx, quote); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: quote is no longer pending", ErrConflict)
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "quote.update",
		EntityType: "quote",
		EntityID:   quote.ID,
	})
	s.invalidate(ctx, cache.PrefixQuotes, cache.PrefixDashboard)

	return quote, nil
}

// Send dispatches the quote email to the client with a fresh token pair.
// Re-sending replaces the previous pair, so older links die. The email is
// best-effort: a failed dispatch leaves the new tokens in place and the
// attempt counter bumped so staff can retry.
func (s *QuoteService) Send(ctx context.Context, principal model.Principal, id string) (*model.Quote, error) {
	quote, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote.Status != model.QuoteStatusPending {
		return nil, fmt.Errorf("%w: quote is %s", ErrConflict, quote.Status)
	}
	if quote.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: quote validity expired", ErrConflict)
	}

	client, err := s.clients.GetByID(ctx, quote.ClientID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if client.Email == "" {
		return nil, fmt.Errorf("%w: client has no email address", ErrInvalidInput)
	}

	tokens := model.NewTokenPair(quote.ID)
	if err := s.quotes.ReplaceTokens(ctx, quote.ID, tokens); err != nil {
		if errors.Is(err, model.ErrQuoteProcessed) {
			return nil, fmt.Errorf("%w: quote is no longer pending", ErrConflict)
		}
		return nil, err
	}

	approveURL := fmt.Sprintf("%s/public/quotes/%s/approve/%s", s.publicBaseURL, quote.ID, tokens[0].Token)
	rejectURL := fmt.Sprintf("%s/public/quotes/%s/reject/%s", s.publicBaseURL, quote.ID, tokens[1].Token)
	msg := notify.QuoteEmail(quote, client.Name, client.Email, approveURL, rejectURL)

	now := time.Now()
	attempts, sendErr := notify.Dispatch(ctx, s.mailer, msg)
	if markErr := s.quotes.MarkEmailResult(ctx, quote.ID, sendErr == nil, now); markErr != nil {
		s.log.Error().Err(markErr).Str("quote_id", quote.ID.String()).Msg("failed to record email result")
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "quote.send",
		EntityType: "quote",
		EntityID:   quote.ID,
		Metadata: auditMetadata(map[string]interface{}{
			"attempts": attempts,
			"sent":     sendErr == nil,
		}),
	})
	s.invalidate(ctx, cache.PrefixQuotes)

	if sendErr != nil {
		s.log.Warn().Err(sendErr).Str("quote_id", quote.ID.String()).Int("attempts", attempts).
			Msg("quote email dispatch failed")
		return nil, fmt.Errorf("%w: quote email could not be delivered", ErrConflict)
	}

	return s.Get(ctx, id)
}

// RedeemToken is the public, unauthenticated entry point. The action comes
// from the link that was clicked; a token whose tag does not match is
// treated as unknown. All checks are re-run inside the store transaction
// against a locked row, so two concurrent redemptions cannot both succeed.
func (s *QuoteService) RedeemToken(ctx context.Context, quoteID, token string, action model.TokenAction, usage repository.TokenUsage) (*model.Quote, *model.WorkOrder, error) {
	if token == "" {
		return nil, nil, model.ErrTokenInvalid
	}

	now := time.Now()
	var (
		quote *model.Quote
		order *model.WorkOrder
		err   error
	)

	switch action {
	case model.TokenActionApprove:
		quote, order, err = s.quotes.Approve(ctx, quoteID, &token, usage, now, buildWorkOrder)
	case model.TokenActionReject:
		quote, err = s.quotes.Reject(ctx, quoteID, &token, usage, now)
	default:
		return nil, nil, ErrInvalidInput
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	meta := map[string]interface{}{"action": string(action), "via": "token"}
	if order != nil {
		meta["work_order_id"] = order.ID.String()
	}
	s.recordAudit(ctx, &model.AuditLog{
		ActorLabel: "public",
		Action:     "quote." + string(action),
		EntityType: "quote",
		EntityID:   quote.ID,
		Metadata:   auditMetadata(meta),
		IP:         usage.IP,
	})
	s.invalidate(ctx, cache.PrefixQuotes, cache.PrefixOrders, cache.PrefixDashboard)

	return quote, order, nil
}

// Decide is the authenticated staff override: approve or reject a pending
// quote directly, with the same all-or-nothing side effects as token
// redemption.
func (s *QuoteService) Decide(ctx context.Context, principal model.Principal, quoteID string, action model.TokenAction) (*model.Quote, *model.WorkOrder, error) {
	now := time.Now()
	var (
		quote *model.Quote
		order *model.WorkOrder
		err   error
	)

	switch action {
	case model.TokenActionApprove:
		quote, order, err = s.quotes.Approve(ctx, quoteID, nil, repository.TokenUsage{}, now, buildWorkOrder)
	case model.TokenActionReject:
		quote, err = s.quotes.Reject(ctx, quoteID, nil, repository.TokenUsage{}, now)
	default:
		return nil, nil, ErrInvalidInput
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		if errors.Is(err, model.ErrQuoteProcessed) {
			return nil, nil, fmt.Errorf("%w: quote already processed", ErrConflict)
		}
		return nil, nil, err
	}

	meta := map[string]interface{}{"action": string(action), "via": "staff"}
	if order != nil {
		meta["work_order_id"] = order.ID.String()
	}
	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "quote." + string(action),
		EntityType: "quote",
		EntityID:   quote.ID,
		Metadata:   auditMetadata(meta),
	})
	s.invalidate(ctx, cache.PrefixQuotes, cache.PrefixOrders, cache.PrefixDashboard)

	return quote, order, nil
}

// Delete soft-deletes a quote. Only pending quotes without a linked work
// order can go; the store enforces that atomically.
func (s *QuoteService) Delete(ctx context.Context, principal model.Principal, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.quotes.SoftDelete(ctx, id, principal.UserID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return fmt.Errorf("%w: only pending quotes without a work order can be deleted", ErrConflict)
		}
		return err
	}

	quoteID, _ := uuid.Parse(id)
	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "quote.delete",
		EntityType: "quote",
		EntityID:   quoteID,
	})
	s.invalidate(ctx, cache.PrefixQuotes, cache.PrefixDashboard)

	return nil
}

// buildWorkOrder snapshots the quote into its work order. The vehicle copy
// is deliberate: later quote edits must never leak into the order.
func buildWorkOrder(q *model.Quote, orderNumber int64) *model.WorkOrder {
	return &model.WorkOrder{
		ID:            uuid.New(),
		Number:        orderNumber,
		QuoteID:       q.ID,
		ClientID:      q.ClientID,
		Vehicle:       q.Vehicle,
		Description:   q.ProposedWork,
		EstimatedCost: q.EstimatedCost,
		Status:        model.WorkOrderStatusPendingAssignment,
	}
}
