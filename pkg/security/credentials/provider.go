// Package credentials supplies NATS client credentials from static values, the
// environment, or a secret encrypted with a Go Cloud secrets keeper.
//
// Example usage:
//
//	// Production: ciphertext decrypted by a KMS keeper
//	provider, err := credentials.NewSecretProvider(ctx, "awskms://alias/nats", "/etc/assetlimits/nats.enc")
//
//	// Development: environment variables
//	provider := credentials.NewEnvUserPasswordProvider("NATS_USER", "NATS_PASSWORD")
//
//	creds, err := provider.GetCredentials(ctx)
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredentialsExpired is returned when credentials have expired
	ErrCredentialsExpired = errors.New("credentials expired")

	// ErrInvalidCredentials is returned when credentials are malformed
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderClosed is returned when attempting to use a closed provider
	ErrProviderClosed = errors.New("provider is closed")
)

// CredentialType defines the type of credential
type CredentialType string

const (
	// CredentialTypeToken represents a NATS auth token
	CredentialTypeToken CredentialType = "token"

	// CredentialTypeUserPassword represents username/password authentication
	CredentialTypeUserPassword CredentialType = "user_password"
)

// Credentials represents authentication credentials with metadata
type Credentials struct {
	Type CredentialType `json:"type"`

	// Token for token-based authentication
	Token string `json:"token,omitempty"`

	// User and Password for username/password authentication
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	// ExpiresAt indicates when credentials expire (optional)
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsExpired checks if the credentials have expired
func (c *Credentials) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// Validate ensures credentials are well-formed for their type
func (c *Credentials) Validate() error {
	switch c.Type {
	case "":
		return fmt.Errorf("%w: type is required", ErrInvalidCredentials)

	case CredentialTypeToken:
		if c.Token == "" {
			return fmt.Errorf("%w: token is required", ErrInvalidCredentials)
		}

	case CredentialTypeUserPassword:
		if c.User == "" || c.Password == "" {
			return fmt.Errorf("%w: user and password are required", ErrInvalidCredentials)
		}

	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidCredentials, c.Type)
	}

	return nil
}

// Redacted returns a copy safe for logging.
func (c *Credentials) Redacted() Credentials {
	out := *c
	if out.Token != "" {
		out.Token = "***"
	}
	if out.Password != "" {
		out.Password = "***"
	}
	return out
}

// String renders the redacted credentials as JSON.
func (c *Credentials) String() string {
	r := c.Redacted()
	data, _ := json.Marshal(&r)
	return string(data)
}

// Provider supplies credentials.
type Provider interface {
	// GetCredentials retrieves the current credentials
	GetCredentials(ctx context.Context) (*Credentials, error)

	// Close releases any resources held by the provider
	Close() error
}

// SecretData represents the structure stored in the secret backend
type SecretData struct {
	Credentials *Credentials      `json:"credentials"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
