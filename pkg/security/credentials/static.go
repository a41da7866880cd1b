package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// StaticProvider provides credentials from a static value
// USE ONLY FOR DEVELOPMENT AND TESTS
type StaticProvider struct {
	creds *Credentials
}

// NewStaticTokenProvider creates a provider with a static token. A positive
// ttl makes the credentials expire.
func NewStaticTokenProvider(token string, ttl time.Duration) *StaticProvider {
	var expiresAt *time.Time
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		expiresAt = &exp
	}

	return &StaticProvider{
		creds: &Credentials{
			Type:      CredentialTypeToken,
			Token:     token,
			ExpiresAt: expiresAt,
			Metadata:  map[string]string{"provider": "static"},
		},
	}
}

// NewStaticUserPasswordProvider creates a provider with static username/password
func NewStaticUserPasswordProvider(user, password string) *StaticProvider {
	return &StaticProvider{
		creds: &Credentials{
			Type:     CredentialTypeUserPassword,
			User:     user,
			Password: password,
			Metadata: map[string]string{"provider": "static"},
		},
	}
}

// GetCredentials returns the static credentials
func (p *StaticProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	if p.creds.IsExpired() {
		return nil, ErrCredentialsExpired
	}
	if err := p.creds.Validate(); err != nil {
		return nil, err
	}
	return p.creds, nil
}

// Close releases resources (no-op for static)
func (p *StaticProvider) Close() error {
	return nil
}

// EnvProvider reads username/password from environment variables on every call,
// so values injected at runtime are picked up.
type EnvProvider struct {
	userVar     string
	passwordVar string
}

// NewEnvUserPasswordProvider creates a provider that reads user/password from environment
func NewEnvUserPasswordProvider(userVar, passwordVar string) *EnvProvider {
	return &EnvProvider{
		userVar:     userVar,
		passwordVar: passwordVar,
	}
}

// GetCredentials reads credentials from environment variables
func (p *EnvProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	user := os.Getenv(p.userVar)
	password := os.Getenv(p.passwordVar)

	if user == "" || password == "" {
		return nil, fmt.Errorf("environment variables %s and %s must be set", p.userVar, p.passwordVar)
	}

	return &Credentials{
		Type:     CredentialTypeUserPassword,
		User:     user,
		Password: password,
		Metadata: map[string]string{
			"provider":     "environment",
			"user_var":     p.userVar,
			"password_var": p.passwordVar,
		},
	}, nil
}

// Close releases resources (no-op for env)
func (p *EnvProvider) Close() error {
	return nil
}

// ChainProvider tries multiple providers in order until one succeeds
// Useful for fallback scenarios (e.g., try secret manager, fall back to env)
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider creates a provider that chains multiple providers
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{
		providers: providers,
	}
}

// GetCredentials tries each provider in order
func (p *ChainProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	if len(p.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	var errs []error
	for i, provider := range p.providers {
		creds, err := provider.GetCredentials(ctx)
		if err == nil {
			return creds, nil
		}
		errs = append(errs, fmt.Errorf("provider %d failed: %w", i, err))
	}

	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Close closes all providers
func (p *ChainProvider) Close() error {
	var errs []error
	for _, provider := range p.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
