package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-service/internal/model"
)

func TestManager_IssueAndParse(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	user := &model.User{ID: uuid.New(), Name: "Ana", Role: model.UserRoleAdmin}

	raw, err := m.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Name, claims.Name)
	assert.Equal(t, model.UserRoleAdmin, claims.Role)
}

func TestManager_ParseRejectsWrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", time.Hour)
	parser := NewManager("secret-b", time.Hour)

	raw, err := issuer.Issue(&model.User{ID: uuid.New(), Role: model.UserRoleStaff})
	require.NoError(t, err)

	_, err = parser.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_ParseRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	raw, err := m.Issue(&model.User{ID: uuid.New(), Role: model.UserRoleStaff})
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_ParseRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	_, err := m.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
