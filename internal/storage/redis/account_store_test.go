package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// setupTestRedis starts a Redis container and returns a connected client.
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func testOwner(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	pk[31] = b
	return pk
}

func TestAccountCodec_PreservesStaleSlots(t *testing.T) {
	a := &domain.Account{Profile: domain.NewProfile(testOwner(1), 250)}
	a.Profile.Keepers = domain.KeeperList{
		Slots: [domain.MaxKeepers]solana.PublicKey{testOwner(2), testOwner(3)},
		Count: 1,
	}
	a.Profile.Nonce = math.MaxUint64
	a.Vaults = domain.Vaults{Primary: 1, Secondary: 2, FeePool: 3}

	data, err := encodeAccount(a)
	require.NoError(t, err)

	got, err := decodeAccount(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.False(t, got.Profile.IsKeeperAuthorized(testOwner(3)))
}

func TestAccountStore_CreateGetUpdate(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewAccountStore(client, WithKeyPrefix("test:"))
	ctx := context.Background()
	owner := testOwner(1)

	require.NoError(t, store.Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}))
	assert.ErrorIs(t, store.Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}), storage.ErrDuplicateKey)

	updated, err := store.Update(ctx, owner, func(a *domain.Account) error {
		a.Vaults.Primary = 1_000_000
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), updated.Vaults.Primary)

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), got.Vaults.Primary)

	_, err = store.Get(ctx, testOwner(9))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_UpdateErrorDiscardsChanges(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewAccountStore(client)
	ctx := context.Background()
	owner := testOwner(1)
	require.NoError(t, store.Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}))

	sentinel := errors.New("abort")
	_, err := store.Update(ctx, owner, func(a *domain.Account) error {
		a.Profile.Nonce = 3
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, got.Profile.Nonce)

	// Lock must have been released.
	_, err = store.Update(ctx, owner, func(a *domain.Account) error { return nil })
	assert.NoError(t, err)
}

func TestAccountStore_ConcurrentUpdatesSerialize(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewAccountStore(client)
	ctx := context.Background()
	owner := testOwner(1)
	require.NoError(t, store.Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, owner, func(a *domain.Account) error {
				a.Profile.Nonce++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers), got.Profile.Nonce)
}

func TestAccountStore_LostLockConflicts(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewAccountStore(client, WithLockTTL(50*time.Millisecond))
	ctx := context.Background()
	owner := testOwner(1)
	require.NoError(t, store.Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}))

	_, err := store.Update(ctx, owner, func(a *domain.Account) error {
		a.Profile.Nonce = 99
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, got.Profile.Nonce)
}
