package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"workshop-service/internal/model"
	"workshop-service/internal/notify"
	"workshop-service/internal/repository"
)

// fakeMailer records sends and fails on demand.
type fakeMailer struct {
	mu    sync.Mutex
	sent  []notify.Message
	fails int
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeAudit struct {
	entries []model.AuditLog
}

func (a *fakeAudit) Record(_ context.Context, entry *model.AuditLog) error {
	a.entries = append(a.entries, *entry)
	return nil
}

type fakeClients struct {
	clients map[string]*model.Client
}

func (c *fakeClients) GetByID(_ context.Context, id string) (*model.Client, error) {
	client, ok := c.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return client, nil
}

// fakeQuoteStore mirrors the real repository's transactional semantics in
// memory, including the re-validation the store runs before mutating.
type fakeQuoteStore struct {
	quotes     map[string]*model.Quote
	orders     map[string]*model.WorkOrder
	nextQuote  int64
	nextOrder  int64
	emailSends []bool
}

func newFakeQuoteStore() *fakeQuoteStore {
	return &fakeQuoteStore{
		quotes:    map[string]*model.Quote{},
		orders:    map[string]*model.WorkOrder{},
		nextQuote: 1000,
		nextOrder: 1000,
	}
}

func (f *fakeQuoteStore) Create(_ context.Context, quote *model.Quote) error {
	if quote.ID == uuid.Nil {
		quote.ID = uuid.New()
	}
	f.nextQuote++
	quote.Number = f.nextQuote
	quote.CreatedAt = time.Now()
	f.quotes[quote.ID.String()] = quote
	return nil
}

func (f *fakeQuoteStore) GetByID(_ context.Context, id string) (*model.Quote, error) {
	quote, ok := f.quotes[id]
	if !ok || quote.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *quote
	return &copied, nil
}

func (f *fakeQuoteStore) List(_ context.Context, _ repository.QuoteListFilter) ([]model.Quote, error) {
	var out []model.Quote
	for _, q := range f.quotes {
		if q.DeletedAt == nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQuoteStore) Update(_ context.Context, quote *model.Quote) error {
	stored, ok := f.quotes[quote.ID.String()]
	if !ok || stored.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	if stored.Status != model.QuoteStatusPending {
		return repository.ErrStaleStatus
	}
	stored.ClientID = quote.ClientID
	stored.Vehicle = quote.Vehicle
	stored.Problem = quote.Problem
	stored.ProposedWork = quote.ProposedWork
	stored.EstimatedCost = quote.EstimatedCost
	stored.ValidUntil = quote.ValidUntil
	return nil
}

func (f *fakeQuoteStore) ReplaceTokens(_ context.Context, quoteID uuid.UUID, tokens []model.QuoteToken) error {
	stored, ok := f.quotes[quoteID.String()]
	if !ok || stored.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	if stored.Status != model.QuoteStatusPending {
		return model.ErrQuoteProcessed
	}
	stored.Tokens = tokens
	return nil
}

func (f *fakeQuoteStore) MarkEmailResult(_ context.Context, quoteID uuid.UUID, sent bool, now time.Time) error {
	stored, ok := f.quotes[quoteID.String()]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.EmailAttempts++
	if sent {
		stored.EmailSent = true
		stored.EmailSentAt = &now
	}
	f.emailSends = append(f.emailSends, sent)
	return nil
}

func (f *fakeQuoteStore) consume(quote *model.Quote, presented *string, action model.TokenAction, usage repository.TokenUsage, now time.Time) error {
	if presented == nil {
		if quote.Status != model.QuoteStatusPending {
			return model.ErrQuoteProcessed
		}
	} else {
		tok, err := quote.CheckToken(*presented, now)
		if err != nil {
			return err
		}
		if tok.Action != action {
			return model.ErrTokenInvalid
		}
		tok.UsedIP = &usage.IP
		tok.UsedUserAgent = &usage.UserAgent
	}
	for i := range quote.Tokens {
		if quote.Tokens[i].UsedAt == nil {
			used := now
			quote.Tokens[i].UsedAt = &used
		}
	}
	return nil
}

func (f *fakeQuoteStore) Approve(_ context.Context, quoteID string, presented *string, usage repository.TokenUsage, now time.Time,
	buildOrder func(q *model.Quote, orderNumber int64) *model.WorkOrder) (*model.Quote, *model.WorkOrder, error) {
	stored, ok := f.quotes[quoteID]
	if !ok || stored.DeletedAt != nil {
		return nil, nil, gorm.ErrRecordNotFound
	}
	if err := f.consume(stored, presented, model.TokenActionApprove, usage, now); err != nil {
		return nil, nil, err
	}

	f.nextOrder++
	order := buildOrder(stored, f.nextOrder)
	order.CreatedAt = now
	f.orders[order.ID.String()] = order

	stored.Status = model.QuoteStatusApproved
	stored.WorkOrderID = &order.ID

	copied := *stored
	return &copied, order, nil
}

func (f *fakeQuoteStore) Reject(_ context.Context, quoteID string, presented *string, usage repository.TokenUsage, now time.Time) (*model.Quote, error) {
	stored, ok := f.quotes[quoteID]
	if !ok || stored.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	if err := f.consume(stored, presented, model.TokenActionReject, usage, now); err != nil {
		return nil, err
	}
	stored.Status = model.QuoteStatusRejected
	copied := *stored
	return &copied, nil
}

func (f *fakeQuoteStore) SoftDelete(_ context.Context, quoteID string, actor uuid.UUID, now time.Time) error {
	stored, ok := f.quotes[quoteID]
	if !ok || stored.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	if stored.Status != model.QuoteStatusPending || stored.WorkOrderID != nil {
		return repository.ErrStaleStatus
	}
	stored.DeletedAt = &now
	stored.DeletedBy = &actor
	return nil
}

func testPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New(), Name: "Laura", Role: model.UserRoleStaff}
}

func newQuoteFixture(t *testing.T) (*QuoteService, *fakeQuoteStore, *fakeClients, *fakeMailer) {
	t.Helper()
	store := newFakeQuoteStore()
	client := &model.Client{ID: uuid.New(), Name: "Carlos", Email: "carlos@example.com"}
	clients := &fakeClients{clients: map[string]*model.Client{client.ID.String(): client}}
	mailer := &fakeMailer{}
	svc := NewQuoteService(store, clients, mailer, "http://localhost:8080", 7, &fakeAudit{}, nil, zerolog.Nop())
	return svc, store, clients, mailer
}

func createTestQuote(t *testing.T, svc *QuoteService, clients *fakeClients, cost float64) *model.Quote {
	t.Helper()
	var clientID string
	for id := range clients.clients {
		clientID = id
	}
	quote, err := svc.Create(context.Background(), testPrincipal(), QuoteInput{
		ClientID:      clientID,
		Vehicle:       model.Vehicle{Brand: "Toyota", Model: "Corolla", Year: 2019, Plate: "AB123CD", Mileage: 80000},
		Problem:       "ruido en tren delantero",
		ProposedWork:  "cambio de bujes y alineación",
		EstimatedCost: cost,
	})
	require.NoError(t, err)
	return quote
}

func TestQuoteService_CreateValidation(t *testing.T) {
	svc, _, clients, _ := newQuoteFixture(t)
	ctx := context.Background()

	var clientID string
	for id := range clients.clients {
		clientID = id
	}

	_, err := svc.Create(ctx, testPrincipal(), QuoteInput{ClientID: clientID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, testPrincipal(), QuoteInput{
		ClientID:      uuid.NewString(),
		Vehicle:       model.Vehicle{Brand: "Ford", Model: "Ka", Year: 2015, Plate: "XX111XX"},
		Problem:       "x",
		ProposedWork:  "y",
		EstimatedCost: 100,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuoteService_CreateDefaultsValidity(t *testing.T) {
	svc, _, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)

	assert.Equal(t, model.QuoteStatusPending, quote.Status)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), quote.ValidUntil, time.Minute)
}

func TestQuoteService_SendGeneratesTokenPairAndEmails(t *testing.T) {
	svc, store, clients, mailer := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)

	sent, err := svc.Send(context.Background(), testPrincipal(), quote.ID.String())
	require.NoError(t, err)

	assert.True(t, sent.EmailSent)
	assert.Equal(t, 1, sent.EmailAttempts)
	assert.Equal(t, 1, mailer.sentCount())

	stored := store.quotes[quote.ID.String()]
	require.Len(t, stored.Tokens, 2)
	assert.Equal(t, model.TokenActionApprove, stored.Tokens[0].Action)
	assert.Equal(t, model.TokenActionReject, stored.Tokens[1].Action)
}

func TestQuoteService_SendFailureKeepsQuotePendingAndRetryable(t *testing.T) {
	svc, store, clients, mailer := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)

	// Exhaust the full retry budget (1 try + 2 retries).
	mailer.fails = 3
	_, err := svc.Send(context.Background(), testPrincipal(), quote.ID.String())
	assert.ErrorIs(t, err, ErrConflict)

	stored := store.quotes[quote.ID.String()]
	assert.False(t, stored.EmailSent)
	assert.Equal(t, 1, stored.EmailAttempts)
	assert.Equal(t, model.QuoteStatusPending, stored.Status)
	assert.Len(t, stored.Tokens, 2)

	// A later resend succeeds with a fresh pair.
	_, err = svc.Send(context.Background(), testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	assert.True(t, store.quotes[quote.ID.String()].EmailSent)
}

func TestQuoteService_ResendReplacesTokenPair(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	oldToken := store.quotes[quote.ID.String()].Tokens[0].Token

	_, err = svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)

	// The old link is dead now.
	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), oldToken, model.TokenActionApprove, repository.TokenUsage{})
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestQuoteService_ApproveViaTokenCreatesLinkedOrder(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 100000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	approveToken := store.quotes[quote.ID.String()].Tokens[0].Token

	updated, order, err := svc.RedeemToken(ctx, quote.ID.String(), approveToken, model.TokenActionApprove,
		repository.TokenUsage{IP: "203.0.113.9", UserAgent: "test-agent"})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, model.QuoteStatusApproved, updated.Status)
	require.NotNil(t, updated.WorkOrderID)
	assert.Equal(t, order.ID, *updated.WorkOrderID)

	assert.Equal(t, model.WorkOrderStatusPendingAssignment, order.Status)
	assert.Equal(t, quote.ID, order.QuoteID)
	assert.Equal(t, 100000.0, order.EstimatedCost)
	assert.Equal(t, quote.Vehicle, order.Vehicle)
	assert.Len(t, store.orders, 1)
}

func TestQuoteService_RejectViaTokenCreatesNoOrder(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	rejectToken := store.quotes[quote.ID.String()].Tokens[1].Token

	updated, order, err := svc.RedeemToken(ctx, quote.ID.String(), rejectToken, model.TokenActionReject, repository.TokenUsage{})
	require.NoError(t, err)

	assert.Nil(t, order)
	assert.Equal(t, model.QuoteStatusRejected, updated.Status)
	assert.Empty(t, store.orders)
}

func TestQuoteService_RedeemBurnsBothTokens(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	tokens := store.quotes[quote.ID.String()].Tokens
	approveToken, rejectToken := tokens[0].Token, tokens[1].Token

	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), approveToken, model.TokenActionApprove, repository.TokenUsage{})
	require.NoError(t, err)

	// The sibling reject link is burned too.
	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), rejectToken, model.TokenActionReject, repository.TokenUsage{})
	assert.ErrorIs(t, err, model.ErrTokenUsed)
	assert.Equal(t, model.QuoteStatusApproved, store.quotes[quote.ID.String()].Status)
	assert.Len(t, store.orders, 1)
}

func TestQuoteService_DoubleRejectFailsWithTokenUsed(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	rejectToken := store.quotes[quote.ID.String()].Tokens[1].Token

	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), rejectToken, model.TokenActionReject, repository.TokenUsage{})
	require.NoError(t, err)

	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), rejectToken, model.TokenActionReject, repository.TokenUsage{})
	assert.ErrorIs(t, err, model.ErrTokenUsed)
}

func TestQuoteService_ExpiredQuoteTokenFails(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)

	stored := store.quotes[quote.ID.String()]
	past := time.Now().Add(-time.Hour)
	stored.ValidUntil = past
	token := stored.Tokens[0].Token

	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), token, model.TokenActionApprove, repository.TokenUsage{})
	assert.ErrorIs(t, err, model.ErrQuoteExpired)
	assert.Equal(t, model.QuoteStatusPending, stored.Status)
	assert.Empty(t, store.orders)
}

func TestQuoteService_TokenActionMismatchIsInvalid(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, err := svc.Send(ctx, testPrincipal(), quote.ID.String())
	require.NoError(t, err)
	rejectToken := store.quotes[quote.ID.String()].Tokens[1].Token

	// Pasting the reject token into the approve URL is treated as an
	// unknown token.
	_, _, err = svc.RedeemToken(ctx, quote.ID.String(), rejectToken, model.TokenActionApprove, repository.TokenUsage{})
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
	assert.Equal(t, model.QuoteStatusPending, store.quotes[quote.ID.String()].Status)
}

func TestQuoteService_ManualDecideApprove(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 75000)
	ctx := context.Background()

	updated, order, err := svc.Decide(ctx, testPrincipal(), quote.ID.String(), model.TokenActionApprove)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, model.QuoteStatusApproved, updated.Status)
	assert.Equal(t, model.WorkOrderStatusPendingAssignment, order.Status)
	assert.Equal(t, quote.Vehicle, order.Vehicle)
	assert.Len(t, store.orders, 1)
}

func TestQuoteService_ManualDecideRejectsProcessedQuote(t *testing.T) {
	svc, _, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 75000)
	ctx := context.Background()

	_, _, err := svc.Decide(ctx, testPrincipal(), quote.ID.String(), model.TokenActionReject)
	require.NoError(t, err)

	_, _, err = svc.Decide(ctx, testPrincipal(), quote.ID.String(), model.TokenActionApprove)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestQuoteService_UpdateOnlyWhilePending(t *testing.T) {
	svc, _, clients, _ := newQuoteFixture(t)
	quote := createTestQuote(t, svc, clients, 50000)
	ctx := context.Background()

	_, _, err := svc.Decide(ctx, testPrincipal(), quote.ID.String(), model.TokenActionApprove)
	require.NoError(t, err)

	_, err = svc.Update(ctx, testPrincipal(), quote.ID.String(), QuoteInput{
		ClientID:      quote.ClientID.String(),
		Vehicle:       quote.Vehicle,
		Problem:       "otro problema",
		ProposedWork:  "otro trabajo",
		EstimatedCost: 60000,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestQuoteService_DeleteGuards(t *testing.T) {
	svc, store, clients, _ := newQuoteFixture(t)
	ctx := context.Background()

	approved := createTestQuote(t, svc, clients, 50000)
	_, _, err := svc.Decide(ctx, testPrincipal(), approved.ID.String(), model.TokenActionApprove)
	require.NoError(t, err)

	err = svc.Delete(ctx, testPrincipal(), approved.ID.String())
	assert.ErrorIs(t, err, ErrConflict)

	pending := createTestQuote(t, svc, clients, 50000)
	require.NoError(t, svc.Delete(ctx, testPrincipal(), pending.ID.String()))
	assert.NotNil(t, store.quotes[pending.ID.String()].DeletedAt)

	_, err = svc.Get(ctx, pending.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
}
