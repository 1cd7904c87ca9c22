package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/policies"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewTokenManager("secret")
	require.NoError(t, err)

	tests := []struct {
		name  string
		roles []string
		staff bool
	}{
		{name: "renter", staff: false},
		{name: "support", roles: []string{"Staff"}, staff: true},
		{name: "admin", roles: []string{"admin"}, staff: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := m.Issue("user-"+tt.name, tt.roles...)
			require.NoError(t, err)
			actor, err := m.Verify(context.Background(), token)
			require.NoError(t, err)
			assert.Equal(t, "user-"+tt.name, actor.UserID)
			assert.Equal(t, tt.staff, actor.Staff)
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	m, err := NewTokenManager("secret")
	require.NoError(t, err)
	other, err := NewTokenManager("other")
	require.NoError(t, err)

	forged, err := other.Issue("mallory")
	require.NoError(t, err)
	_, err = m.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, policies.ErrInvalidToken)

	past := time.Now().Add(-2 * time.Hour)
	old := &TokenManager{secret: []byte("secret"), Issuer: defaultIssuer, TTL: time.Minute, Now: func() time.Time { return past }}
	expired, err := old.Issue("renter")
	require.NoError(t, err)
	_, err = m.Verify(context.Background(), expired)
	assert.ErrorIs(t, err, policies.ErrInvalidToken)

	_, err = m.Verify(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, policies.ErrInvalidToken)

	_, err = NewTokenManager("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
