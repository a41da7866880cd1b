package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/store"
	"github.com/plaenen/assetlimits/pkg/store/sqlite"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openMemory(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(),
		sqlite.WithMemoryDatabase(),
		sqlite.WithWALMode(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedLimit(t *testing.T, st *sqlite.Store, id domain.AccountID, limit int) *domain.AccountLimitPolicy {
	t.Helper()
	policy, err := domain.NewAccountLimitPolicy(id, limit)
	require.NoError(t, err)
	require.NoError(t, st.Limits().Save(context.Background(), policy))
	return policy
}

func TestOpen_Migrates(t *testing.T) {
	st := openMemory(t)

	version, err := st.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	applied, err := st.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestLimitStore(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	limits := st.Limits()

	_, err := limits.Load(ctx, "acc-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	policy := seedLimit(t, st, "acc-1", 2)
	assert.Equal(t, int64(1), policy.Version())

	t.Run("second creation conflicts", func(t *testing.T) {
		again, err := domain.NewAccountLimitPolicy("acc-1", 9)
		require.NoError(t, err)
		assert.ErrorIs(t, limits.Save(ctx, again), domain.ErrConcurrencyConflict)
	})

	t.Run("override", func(t *testing.T) {
		loaded, err := limits.Load(ctx, "acc-1")
		require.NoError(t, err)
		require.NoError(t, loaded.OverrideLimit(5))
		require.NoError(t, limits.Save(ctx, loaded))
		assert.Equal(t, int64(2), loaded.Version())

		reloaded, err := limits.Load(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, 5, reloaded.Limit())
		assert.Equal(t, int64(2), reloaded.Version())
	})

	t.Run("stale override conflicts", func(t *testing.T) {
		stale := domain.RestoreAccountLimitPolicy("acc-1", 1, 1)
		assert.ErrorIs(t, limits.Save(ctx, stale), domain.ErrConcurrencyConflict)
		assert.Equal(t, int64(1), stale.Version())
	})
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	accounts := st.Accounts()

	_, err := accounts.Load(ctx, "acc-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	seedLimit(t, st, "acc-1", 3)

	account, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, account.Limit())
	assert.Equal(t, int64(0), account.Version())
	assert.Empty(t, account.Assets())

	for _, a := range []domain.Asset{
		domain.MustAsset("b", "US"),
		domain.MustAsset("a", "US"),
		domain.MustAsset("b", "DE"),
	} {
		_, err := account.Assign(a, now)
		require.NoError(t, err)
	}
	require.NoError(t, accounts.Save(ctx, account))
	assert.Equal(t, int64(1), account.Version())

	reloaded, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, account.Assets(), reloaded.Assets(), "insertion order survives a round trip")
	assert.Equal(t, int64(1), reloaded.Version())

	reloaded.Unassign(domain.MustAsset("a", "US"), now)
	require.NoError(t, accounts.Save(ctx, reloaded))

	final, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Asset{domain.MustAsset("b", "US"), domain.MustAsset("b", "DE")}, final.Assets())
	assert.Equal(t, int64(2), final.Version())
}

func TestAccountStore_SaveDoesNotWriteLimit(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	seedLimit(t, st, "acc-1", 3)

	account, err := st.Accounts().Load(ctx, "acc-1")
	require.NoError(t, err)

	policy, err := st.Limits().Load(ctx, "acc-1")
	require.NoError(t, err)
	require.NoError(t, policy.OverrideLimit(1))
	require.NoError(t, st.Limits().Save(ctx, policy))

	require.NoError(t, st.Accounts().Save(ctx, account))

	reloaded, err := st.Accounts().Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Limit())
}

func TestAccountStore_ConflictThenRetry(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	seedLimit(t, st, "acc-1", 5)
	accounts := st.Accounts()

	first, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	second, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)

	_, err = first.Assign(domain.MustAsset("1", "US"), now)
	require.NoError(t, err)
	_, err = second.Assign(domain.MustAsset("2", "US"), now)
	require.NoError(t, err)

	require.NoError(t, accounts.Save(ctx, first))
	require.ErrorIs(t, accounts.Save(ctx, second), domain.ErrConcurrencyConflict)

	// The losing write must not have touched the asset rows.
	current, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Asset{domain.MustAsset("1", "US")}, current.Assets())

	_, err = current.Assign(domain.MustAsset("2", "US"), now)
	require.NoError(t, err)
	require.NoError(t, accounts.Save(ctx, current))

	final, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Asset{domain.MustAsset("1", "US"), domain.MustAsset("2", "US")}, final.Assets())
	assert.Equal(t, int64(2), final.Version())
}

func TestAccountStore_ParallelWritersOnFile(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, sqlite.WithDSN(filepath.Join(t.TempDir(), "limits.db")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	const writers = 10
	seedLimit(t, st, "acc-1", writers)
	accounts := st.Accounts()

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			asset := domain.MustAsset(string(rune('a'+i)), "US")
			errs[i] = store.RetryOnConflict(ctx, 50, func(ctx context.Context) error {
				account, err := accounts.Load(ctx, "acc-1")
				if err != nil {
					return err
				}
				if _, err := account.Assign(asset, now); err != nil {
					return err
				}
				return accounts.Save(ctx, account)
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	final, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, final.Assets(), writers)
	assert.Equal(t, int64(writers), final.Version())
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	audit := st.AuditLog()

	events := []domain.SuspiciousEvent{
		domain.NewDuplicateAssignment("acc-1", domain.MustAsset("1", "US"), now),
		domain.NewCrossCountryConflict("acc-1", domain.MustAsset("1", "FR"), "US", now.Add(time.Second)),
		domain.NewSuperfluousRemoval("acc-2", domain.MustAsset("9", "US"), now),
	}
	for _, e := range events {
		require.NoError(t, audit.Record(ctx, e))
	}
	// Redelivery of the same event is ignored.
	require.NoError(t, audit.Record(ctx, events[0]))

	listed, err := audit.ListEvents(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)

	assert.Equal(t, events[0].ID, listed[0].ID)
	assert.Equal(t, domain.DuplicateAssignment, listed[0].Kind)
	assert.True(t, now.Equal(listed[0].OccurredAt))

	assert.Equal(t, domain.CrossCountryConflict, listed[1].Kind)
	assert.Equal(t, domain.CountryCode("US"), listed[1].ConflictingCountry)
	assert.Equal(t, events[1].Description(), listed[1].Description())

	none, err := audit.ListEvents(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
