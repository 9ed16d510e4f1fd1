package model

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Token check failures, ordered by precedence: an unknown token wins over
// reuse, reuse over expiry, expiry over a processed quote.
var (
	ErrTokenInvalid   = errors.New("invalid_token")
	ErrTokenUsed      = errors.New("token_used")
	ErrQuoteExpired   = errors.New("expired")
	ErrQuoteProcessed = errors.New("already_processed")
)

type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusApproved QuoteStatus = "approved"
	QuoteStatusRejected QuoteStatus = "rejected"
)

type TokenAction string

const (
	TokenActionApprove TokenAction = "approve"
	TokenActionReject  TokenAction = "reject"
)

// Quote is a cost estimate offered to a client for proposed vehicle work.
// Status moves from pending to approved or rejected exactly once; approval
// links the quote to the work order it spawned.
type Quote struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Number        int64       `gorm:"not null;uniqueIndex" json:"number"`
	ClientID      uuid.UUID   `gorm:"type:uuid;not null;index" json:"client_id"`
	Vehicle       Vehicle     `gorm:"embedded;embeddedPrefix:vehicle_" json:"vehicle"`
	Problem       string      `gorm:"type:text;not null" json:"problem"`
	ProposedWork  string      `gorm:"type:text;not null" json:"proposed_work"`
	EstimatedCost float64     `gorm:"not null" json:"estimated_cost"`
	ValidUntil    time.Time   `gorm:"not null" json:"valid_until"`
	Status        QuoteStatus `gorm:"type:quote_status;not null;default:pending" json:"status"`
	Tokens        []QuoteToken `gorm:"foreignKey:QuoteID" json:"-"`
	EmailSent     bool        `gorm:"not null;default:false" json:"email_sent"`
	EmailSentAt   *time.Time  `json:"email_sent_at,omitempty"`
	EmailAttempts int         `gorm:"not null;default:0" json:"email_attempts"`
	WorkOrderID   *uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_quotes_work_order_id,where:work_order_id IS NOT NULL" json:"work_order_id,omitempty"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     *time.Time  `json:"deleted_at,omitempty"`
	DeletedBy     *uuid.UUID  `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

func (Quote) TableName() string {
	return "quotes"
}

func (q *Quote) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the quote's validity deadline has passed.
func (q *Quote) Expired(now time.Time) bool {
	return now.After(q.ValidUntil)
}

// FindToken looks a presented token up in the quote's current token set.
func (q *Quote) FindToken(token string) *QuoteToken {
	for i := range q.Tokens {
		if q.Tokens[i].Token == token {
			return &q.Tokens[i]
		}
	}
	return nil
}

// CheckToken validates a presented token against the quote's current token
// set without mutating anything. On success it returns the matching token,
// whose Action tag tells the caller which outcome was requested.
func (q *Quote) CheckToken(presented string, now time.Time) (*QuoteToken, error) {
	tok := q.FindToken(presented)
	if tok == nil {
		return nil, ErrTokenInvalid
	}
	if tok.Used() {
		return nil, ErrTokenUsed
	}
	if q.Expired(now) {
		return nil, ErrQuoteExpired
	}
	if q.Status != QuoteStatusPending {
		return nil, ErrQuoteProcessed
	}
	return tok, nil
}

// QuoteToken is a single-use opaque credential embedded in an email link.
// Exactly two are issued per dispatch, one per action; redeeming either
// burns the whole pair.
type QuoteToken struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	QuoteID       uuid.UUID   `gorm:"type:uuid;not null;index" json:"quote_id"`
	Action        TokenAction `gorm:"type:token_action;not null" json:"action"`
	Token         string      `gorm:"size:64;not null;uniqueIndex" json:"-"`
	UsedAt        *time.Time  `json:"used_at,omitempty"`
	UsedIP        *string     `gorm:"size:64" json:"used_ip,omitempty"`
	UsedUserAgent *string     `gorm:"size:512" json:"used_user_agent,omitempty"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (QuoteToken) TableName() string {
	return "quote_tokens"
}

func (t *QuoteToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *QuoteToken) Used() bool {
	return t.UsedAt != nil
}

// NewTokenPair generates a fresh approve/reject token pair for a quote.
func NewTokenPair(quoteID uuid.UUID) []QuoteToken {
	return []QuoteToken{
		{QuoteID: quoteID, Action: TokenActionApprove, Token: newOpaqueToken()},
		{QuoteID: quoteID, Action: TokenActionReject, Token: newOpaqueToken()},
	}
}

func newOpaqueToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
