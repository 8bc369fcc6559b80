package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("secret", "chatbot-rag", time.Hour)
	p := Principal{UserID: 7, Username: "alice", IsAdmin: true}

	token, exp, err := m.GenerateAccessToken(p)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := m.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, p, claims.Principal())

	_, err = NewJWTManager("other", "chatbot-rag", time.Hour).VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTManager("secret", "someone-else", time.Hour).VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("secret", "chatbot-rag", time.Minute)
	token, _, err := m.GenerateAccessToken(Principal{UserID: 1})
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"Bearer ", "", true},
		{"Basic abc", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingBearer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestAPIToken(t *testing.T) {
	a, err := GenerateAPIToken()
	require.NoError(t, err)
	b, err := GenerateAPIToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.Equal(t, a[:8], APITokenPrefix(a))
	assert.Equal(t, HashAPIToken(a), HashAPIToken(a))
	assert.Len(t, HashAPIToken(a), 32)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: 3})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 3, p.UserID)
}
