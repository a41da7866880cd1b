package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   *Credentials
		wantErr bool
	}{
		{
			name:  "valid token credential",
			creds: &Credentials{Type: CredentialTypeToken, Token: "test-token"},
		},
		{
			name:  "valid user/password credential",
			creds: &Credentials{Type: CredentialTypeUserPassword, User: "admin", Password: "secret"},
		},
		{
			name:    "missing type",
			creds:   &Credentials{Token: "test-token"},
			wantErr: true,
		},
		{
			name:    "unsupported type",
			creds:   &Credentials{Type: "nkey", Token: "x"},
			wantErr: true,
		},
		{
			name:    "token credential missing token",
			creds:   &Credentials{Type: CredentialTypeToken},
			wantErr: true,
		},
		{
			name:    "user/password missing user",
			creds:   &Credentials{Type: CredentialTypeUserPassword, Password: "secret"},
			wantErr: true,
		},
		{
			name:    "user/password missing password",
			creds:   &Credentials{Type: CredentialTypeUserPassword, User: "admin"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCredentials_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		creds   *Credentials
		expired bool
	}{
		{
			name:    "not expired",
			creds:   &Credentials{Type: CredentialTypeToken, Token: "t", ExpiresAt: timePtr(time.Now().Add(time.Hour))},
			expired: false,
		},
		{
			name:    "expired",
			creds:   &Credentials{Type: CredentialTypeToken, Token: "t", ExpiresAt: timePtr(time.Now().Add(-time.Hour))},
			expired: true,
		},
		{
			name:    "no expiration",
			creds:   &Credentials{Type: CredentialTypeToken, Token: "t"},
			expired: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.creds.IsExpired())
		})
	}
}

func TestCredentials_Redacted(t *testing.T) {
	creds := &Credentials{
		Type:     CredentialTypeUserPassword,
		User:     "admin",
		Password: "super-secret",
		Token:    "also-secret",
	}

	r := creds.Redacted()
	assert.Equal(t, "admin", r.User)
	assert.Equal(t, "***", r.Password)
	assert.Equal(t, "***", r.Token)

	// original untouched
	assert.Equal(t, "super-secret", creds.Password)

	s := creds.String()
	require.NotEmpty(t, s)
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "also-secret")
	assert.Contains(t, s, "admin")
}

func timePtr(t time.Time) *time.Time {
	return &t
}
