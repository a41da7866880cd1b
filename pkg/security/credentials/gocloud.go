package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gocloud.dev/secrets"
	// Keeper drivers are opt-in; import the one you need in your application:
	// _ "gocloud.dev/secrets/awskms"
	// _ "gocloud.dev/secrets/gcpkms"
	// _ "gocloud.dev/secrets/azurekeyvault"
	// _ "gocloud.dev/secrets/hashivault"
	// _ "gocloud.dev/secrets/localsecrets"
)

// DefaultCacheTTL is how long decrypted credentials are reused.
const DefaultCacheTTL = 5 * time.Minute

// SecretProvider decrypts a SecretData ciphertext file with a Go Cloud keeper.
// The file is re-read when the cache expires, so rotating credentials means
// replacing the file.
type SecretProvider struct {
	keeper     *secrets.Keeper
	path       string
	cacheTTL   time.Duration
	ownsKeeper bool

	mu          sync.Mutex
	cachedCreds *Credentials
	cacheExpiry time.Time
	closed      bool
}

// SecretOption configures a SecretProvider.
type SecretOption func(*SecretProvider)

// WithCacheTTL sets how long decrypted credentials are reused.
// Zero re-reads the file on every call.
func WithCacheTTL(ttl time.Duration) SecretOption {
	return func(p *SecretProvider) {
		p.cacheTTL = ttl
	}
}

// NewSecretProvider opens the keeper at keeperURL and loads the ciphertext at path.
//
// Keeper URL formats (the matching driver must be imported):
//   - AWS KMS: "awskms://alias/my-key?region=us-east-1"
//   - GCP KMS: "gcpkms://projects/P/locations/L/keyRings/R/cryptoKeys/K"
//   - Azure Key Vault: "azurekeyvault://vault.vault.azure.net/keys/key"
//   - HashiCorp Vault: "hashivault://mykey"
//   - Local (dev): "base64key://<32 byte key, base64 URL encoded>"
func NewSecretProvider(ctx context.Context, keeperURL, path string, opts ...SecretOption) (*SecretProvider, error) {
	if keeperURL == "" {
		return nil, fmt.Errorf("secret URL is required")
	}

	keeper, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret keeper: %w", err)
	}

	p, err := newSecretProvider(ctx, keeper, path, opts...)
	if err != nil {
		keeper.Close()
		return nil, err
	}
	p.ownsKeeper = true
	return p, nil
}

// NewSecretProviderWithKeeper uses an already opened keeper. The caller keeps
// ownership of keeper.
func NewSecretProviderWithKeeper(ctx context.Context, keeper *secrets.Keeper, path string, opts ...SecretOption) (*SecretProvider, error) {
	return newSecretProvider(ctx, keeper, path, opts...)
}

func newSecretProvider(ctx context.Context, keeper *secrets.Keeper, path string, opts ...SecretOption) (*SecretProvider, error) {
	p := &SecretProvider{
		keeper:   keeper,
		path:     path,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(p)
	}

	// Fail fast on an unreadable or malformed secret.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(ctx); err != nil {
		return nil, fmt.Errorf("failed to load initial credentials: %w", err)
	}
	return p, nil
}

// GetCredentials returns cached credentials or decrypts the file again.
func (p *SecretProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}

	if p.cachedCreds == nil || !time.Now().Before(p.cacheExpiry) {
		if err := p.loadLocked(ctx); err != nil {
			return nil, err
		}
	}

	if p.cachedCreds.IsExpired() {
		return nil, ErrCredentialsExpired
	}
	return p.cachedCreds, nil
}

func (p *SecretProvider) loadLocked(ctx context.Context) error {
	ciphertext, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}

	plaintext, err := p.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt secret: %w", err)
	}

	var secretData SecretData
	if err := json.Unmarshal(plaintext, &secretData); err != nil {
		return fmt.Errorf("failed to unmarshal secret data: %w", err)
	}
	if secretData.Credentials == nil {
		return fmt.Errorf("%w: secret has no credentials", ErrInvalidCredentials)
	}
	if err := secretData.Credentials.Validate(); err != nil {
		return fmt.Errorf("invalid credentials in secret: %w", err)
	}

	p.cachedCreds = secretData.Credentials
	p.cacheExpiry = time.Now().Add(p.cacheTTL)
	return nil
}

// Close releases the keeper if the provider opened it.
func (p *SecretProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.ownsKeeper {
		return p.keeper.Close()
	}
	return nil
}

// StoreCredentials encrypts creds with keeper and writes the ciphertext to path
// with owner-only permissions.
func StoreCredentials(ctx context.Context, keeper *secrets.Keeper, path string, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}

	plaintext, err := json.Marshal(SecretData{
		Credentials: creds,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		Metadata:    map[string]string{"created_by": "assetlimits"},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	ciphertext, err := keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	return nil
}
