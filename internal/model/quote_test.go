package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenPair(t *testing.T) {
	quoteID := uuid.New()
	pair := NewTokenPair(quoteID)

	require.Len(t, pair, 2)
	assert.Equal(t, TokenActionApprove, pair[0].Action)
	assert.Equal(t, TokenActionReject, pair[1].Action)
	assert.NotEqual(t, pair[0].Token, pair[1].Token)

	for _, tok := range pair {
		assert.Equal(t, quoteID, tok.QuoteID)
		assert.Len(t, tok.Token, 48)
		assert.False(t, tok.Used())
	}
}

func TestQuote_FindToken(t *testing.T) {
	q := Quote{ID: uuid.New()}
	q.Tokens = NewTokenPair(q.ID)

	found := q.FindToken(q.Tokens[1].Token)
	require.NotNil(t, found)
	assert.Equal(t, TokenActionReject, found.Action)

	assert.Nil(t, q.FindToken("nope"))
}

func TestQuote_Expired(t *testing.T) {
	now := time.Now()
	q := Quote{ValidUntil: now.Add(time.Hour)}
	assert.False(t, q.Expired(now))
	assert.True(t, q.Expired(now.Add(2*time.Hour)))
}
