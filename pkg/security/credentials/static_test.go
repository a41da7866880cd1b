package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenProvider(t *testing.T) {
	provider := NewStaticTokenProvider("test-token", time.Hour)
	defer provider.Close()

	creds, err := provider.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CredentialTypeToken, creds.Type)
	assert.Equal(t, "test-token", creds.Token)
	assert.False(t, creds.IsExpired())
}

func TestStaticUserPasswordProvider(t *testing.T) {
	provider := NewStaticUserPasswordProvider("admin", "secret")
	defer provider.Close()

	creds, err := provider.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CredentialTypeUserPassword, creds.Type)
	assert.Equal(t, "admin", creds.User)
	assert.Equal(t, "secret", creds.Password)
	assert.Nil(t, creds.ExpiresAt)
}

func TestStaticProvider_Expiration(t *testing.T) {
	provider := NewStaticTokenProvider("test-token", time.Millisecond)
	defer provider.Close()

	time.Sleep(10 * time.Millisecond)

	_, err := provider.GetCredentials(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsExpired)
}

func TestStaticProvider_EmptyToken(t *testing.T) {
	provider := NewStaticTokenProvider("", 0)

	_, err := provider.GetCredentials(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnvUserPasswordProvider(t *testing.T) {
	t.Setenv("TEST_NATS_USER", "admin")
	t.Setenv("TEST_NATS_PASSWORD", "secret")

	provider := NewEnvUserPasswordProvider("TEST_NATS_USER", "TEST_NATS_PASSWORD")
	defer provider.Close()

	creds, err := provider.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CredentialTypeUserPassword, creds.Type)
	assert.Equal(t, "admin", creds.User)
	assert.Equal(t, "secret", creds.Password)
	assert.Equal(t, "environment", creds.Metadata["provider"])
}

func TestEnvUserPasswordProvider_Missing(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
	}{
		{name: "missing user", password: "secret"},
		{name: "missing password", user: "admin"},
		{name: "missing both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_NATS_USER", tt.user)
			t.Setenv("TEST_NATS_PASSWORD", tt.password)

			provider := NewEnvUserPasswordProvider("TEST_NATS_USER", "TEST_NATS_PASSWORD")
			_, err := provider.GetCredentials(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "TEST_NATS_USER")
		})
	}
}

func TestChainProvider_Success(t *testing.T) {
	provider := NewChainProvider(
		NewStaticTokenProvider("first", time.Hour),
		NewStaticTokenProvider("second", time.Hour),
	)
	defer provider.Close()

	creds, err := provider.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", creds.Token)
}

func TestChainProvider_Fallback(t *testing.T) {
	t.Setenv("UNSET_NATS_USER", "")
	t.Setenv("UNSET_NATS_PASSWORD", "")

	provider := NewChainProvider(
		NewEnvUserPasswordProvider("UNSET_NATS_USER", "UNSET_NATS_PASSWORD"),
		NewStaticUserPasswordProvider("fallback", "secret"),
	)

	creds, err := provider.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback", creds.User)
}

func TestChainProvider_AllFail(t *testing.T) {
	provider := NewChainProvider(
		NewStaticTokenProvider("", 0),
		NewStaticUserPasswordProvider("", ""),
	)

	_, err := provider.GetCredentials(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChainProvider_Empty(t *testing.T) {
	_, err := NewChainProvider().GetCredentials(context.Background())
	assert.Error(t, err)
}

type closeErrProvider struct {
	StaticProvider
	err error
}

func (p *closeErrProvider) Close() error { return p.err }

func TestChainProvider_Close(t *testing.T) {
	boom := errors.New("boom")
	provider := NewChainProvider(
		NewStaticTokenProvider("a", 0),
		&closeErrProvider{err: boom},
	)

	assert.ErrorIs(t, provider.Close(), boom)
}
