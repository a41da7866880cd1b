package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"
	"gocloud.dev/secrets/localsecrets"
)

const testKeeperURL = "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="

func newTestKeeper(t *testing.T) *secrets.Keeper {
	t.Helper()
	key, err := localsecrets.NewRandomKey()
	require.NoError(t, err)
	keeper := localsecrets.NewKeeper(key)
	t.Cleanup(func() { keeper.Close() })
	return keeper
}

func writeSecret(t *testing.T, keeper *secrets.Keeper, creds *Credentials) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nats.enc")
	require.NoError(t, StoreCredentials(context.Background(), keeper, path, creds))
	return path
}

func TestSecretProvider_Token(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{
		Type:     CredentialTypeToken,
		Token:    "test-secret-token",
		Metadata: map[string]string{"environment": "test"},
	})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path)
	require.NoError(t, err)
	defer provider.Close()

	creds, err := provider.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, CredentialTypeToken, creds.Type)
	assert.Equal(t, "test-secret-token", creds.Token)
	assert.Equal(t, "test", creds.Metadata["environment"])
}

func TestSecretProvider_UserPassword(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{
		Type:     CredentialTypeUserPassword,
		User:     "limits",
		Password: "s3cret",
	})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path)
	require.NoError(t, err)
	defer provider.Close()

	creds, err := provider.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "limits", creds.User)
	assert.Equal(t, "s3cret", creds.Password)
}

func TestSecretProvider_FromURL(t *testing.T) {
	ctx := context.Background()

	keeper, err := secrets.OpenKeeper(ctx, testKeeperURL)
	require.NoError(t, err)
	defer keeper.Close()

	path := writeSecret(t, keeper, &Credentials{Type: CredentialTypeToken, Token: "url-token"})

	provider, err := NewSecretProvider(ctx, testKeeperURL, path)
	require.NoError(t, err)
	defer provider.Close()

	creds, err := provider.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "url-token", creds.Token)
}

func TestSecretProvider_Caching(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{Type: CredentialTypeToken, Token: "v1"})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path, WithCacheTTL(time.Hour))
	require.NoError(t, err)
	defer provider.Close()

	// Replace the secret; the cached value must still be served.
	require.NoError(t, StoreCredentials(ctx, keeper, path, &Credentials{Type: CredentialTypeToken, Token: "v2"}))

	creds, err := provider.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", creds.Token)
}

func TestSecretProvider_Rotation(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{Type: CredentialTypeToken, Token: "v1"})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path, WithCacheTTL(0))
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, StoreCredentials(ctx, keeper, path, &Credentials{Type: CredentialTypeToken, Token: "v2"}))

	creds, err := provider.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", creds.Token)
}

func TestSecretProvider_LoadErrors(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := NewSecretProviderWithKeeper(ctx, keeper, filepath.Join(t.TempDir(), "absent.enc"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read secret")
	})

	t.Run("wrong key", func(t *testing.T) {
		path := writeSecret(t, newTestKeeper(t), &Credentials{Type: CredentialTypeToken, Token: "t"})
		_, err := NewSecretProviderWithKeeper(ctx, keeper, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decrypt secret")
	})

	t.Run("not json", func(t *testing.T) {
		ciphertext, err := keeper.Encrypt(ctx, []byte("not json"))
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "bad.enc")
		require.NoError(t, os.WriteFile(path, ciphertext, 0o600))

		_, err = NewSecretProviderWithKeeper(ctx, keeper, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshal")
	})

	t.Run("no credentials", func(t *testing.T) {
		ciphertext, err := keeper.Encrypt(ctx, []byte(`{"version":1}`))
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "empty.enc")
		require.NoError(t, os.WriteFile(path, ciphertext, 0o600))

		_, err = NewSecretProviderWithKeeper(ctx, keeper, path)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestSecretProvider_Expired(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{
		Type:      CredentialTypeToken,
		Token:     "old",
		ExpiresAt: timePtr(time.Now().Add(-time.Minute)),
	})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path)
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.GetCredentials(ctx)
	assert.ErrorIs(t, err, ErrCredentialsExpired)
}

func TestSecretProvider_Close(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{Type: CredentialTypeToken, Token: "t"})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path)
	require.NoError(t, err)

	require.NoError(t, provider.Close())
	require.NoError(t, provider.Close())

	_, err = provider.GetCredentials(ctx)
	assert.ErrorIs(t, err, ErrProviderClosed)

	// Borrowed keeper stays usable.
	_, err = keeper.Encrypt(ctx, []byte("still open"))
	assert.NoError(t, err)
}

func TestSecretProvider_ThreadSafety(t *testing.T) {
	ctx := context.Background()
	keeper := newTestKeeper(t)
	path := writeSecret(t, keeper, &Credentials{Type: CredentialTypeToken, Token: "shared"})

	provider, err := NewSecretProviderWithKeeper(ctx, keeper, path, WithCacheTTL(0))
	require.NoError(t, err)
	defer provider.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := provider.GetCredentials(ctx)
			if err != nil {
				errs <- err
				return
			}
			if creds.Token != "shared" {
				errs <- fmt.Errorf("unexpected token %q", creds.Token)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSecretProvider_EmptyURL(t *testing.T) {
	_, err := NewSecretProvider(context.Background(), "", "unused")
	assert.Error(t, err)
}

func TestSecretProvider_InvalidURL(t *testing.T) {
	_, err := NewSecretProvider(context.Background(), "nosuchscheme://key", "unused")
	assert.Error(t, err)
}

func TestStoreCredentials_InvalidCredentials(t *testing.T) {
	keeper := newTestKeeper(t)
	path := filepath.Join(t.TempDir(), "nats.enc")

	err := StoreCredentials(context.Background(), keeper, path, &Credentials{Type: CredentialTypeToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
