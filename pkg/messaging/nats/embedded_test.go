package nats

import (
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedServer_StartAndShutdown(t *testing.T) {
	t.Run("normal startup and shutdown", func(t *testing.T) {
		srv, err := StartEmbeddedServer()
		require.NoError(t, err)
		assert.NotEmpty(t, srv.URL())
		assert.True(t, srv.Running())

		nc, err := srv.Connect()
		require.NoError(t, err)
		nc.Close()

		storeDir := srv.storeDir
		shutdownWithin(t, srv, 10*time.Second)
		assert.False(t, srv.Running())

		_, statErr := os.Stat(storeDir)
		assert.True(t, os.IsNotExist(statErr), "temporary store dir should be removed")
	})

	t.Run("shutdown with active connections", func(t *testing.T) {
		srv, err := StartEmbeddedServer()
		require.NoError(t, err)

		var conns []*nats.Conn
		for i := 0; i < 5; i++ {
			nc, err := srv.Connect()
			require.NoError(t, err)
			conns = append(conns, nc)
		}

		shutdownWithin(t, srv, 10*time.Second)

		for _, nc := range conns {
			nc.Close()
		}
	})

	t.Run("multiple shutdown calls are safe", func(t *testing.T) {
		srv, err := StartEmbeddedServer()
		require.NoError(t, err)

		srv.Shutdown()
		srv.Shutdown()
		srv.Shutdown()
	})

	t.Run("caller owned store dir is kept", func(t *testing.T) {
		dir := t.TempDir()
		srv, err := StartEmbeddedServer(WithStoreDir(dir))
		require.NoError(t, err)

		shutdownWithin(t, srv, 10*time.Second)

		_, statErr := os.Stat(dir)
		assert.NoError(t, statErr)
	})
}

func TestEmbeddedServer_Auth(t *testing.T) {
	t.Run("user and password", func(t *testing.T) {
		srv, err := StartEmbeddedServer(WithUserPassword("limits", "s3cret"))
		require.NoError(t, err)
		defer srv.Shutdown()

		_, err = srv.Connect()
		assert.Error(t, err)

		nc, err := srv.Connect(nats.UserInfo("limits", "s3cret"))
		require.NoError(t, err)
		nc.Close()
	})

	t.Run("token", func(t *testing.T) {
		srv, err := StartEmbeddedServer(WithToken("t0ken"))
		require.NoError(t, err)
		defer srv.Shutdown()

		_, err = srv.Connect(nats.Token("wrong"))
		assert.Error(t, err)

		nc, err := srv.Connect(nats.Token("t0ken"))
		require.NoError(t, err)
		nc.Close()
	})
}

func shutdownWithin(t *testing.T, srv *EmbeddedServer, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("shutdown timed out after %s", d)
	}
}
