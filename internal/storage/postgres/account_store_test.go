package postgres

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

func testOwner(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	pk[31] = b
	return pk
}

func TestAccountStore_CreateGetRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()
	owner := testOwner(1)

	a := &domain.Account{Profile: domain.NewProfile(owner, 253)}
	a.Profile.Keepers = domain.KeeperList{
		Slots: [domain.MaxKeepers]solana.PublicKey{testOwner(2), testOwner(3), testOwner(4)},
		Count: 2,
	}
	a.Profile.Nonce = math.MaxUint64
	a.Vaults.Primary = math.MaxUint64 - 1
	a.Vaults.FeePool = 890_881

	require.NoError(t, store.Create(ctx, a))

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, a.Profile, got.Profile)
	assert.Equal(t, a.Vaults, got.Vaults)
	assert.False(t, got.Profile.IsKeeperAuthorized(testOwner(4)), "stale slot must stay inactive")

	err = store.Create(ctx, a)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)
}

func TestAccountStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	_, err := store.Get(context.Background(), testOwner(9))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Update(context.Background(), testOwner(9), func(*domain.Account) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_UpdateRollback(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()
	owner := testOwner(1)
	require.NoError(t, store.Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}))

	sentinel := errors.New("abort")
	_, err := store.Update(ctx, owner, func(a *domain.Account) error {
		a.Profile.Nonce = 10
		a.Vaults.Secondary = 10
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, got.Profile.Nonce)
	assert.Zero(t, got.Vaults.Secondary)
}

func TestAccountStore_ConcurrentUpdatesSerialize(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
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
				a.Profile.ExecutionsToday++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint16(workers), got.Profile.ExecutionsToday)
}

func TestExecutionStore_InsertAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := testOwner(1)
	require.NoError(t, NewAccountStore(pool).Create(ctx, &domain.Account{Profile: domain.NewProfile(owner, 255)}))

	store := NewExecutionStore(pool)
	r1 := &domain.ExecutionReceipt{
		ExecutionID: "exec-2", User: owner, Keeper: testOwner(2),
		SignalType: domain.SignalSecondaryToPrimary, AmountIn: 500, AmountOut: 490,
		MinAmountOut: 480, Fee: 1, RelayerPaid: 5000, Nonce: 2, Timestamp: 200, VenueTxID: "sig2",
	}
	r0 := &domain.ExecutionReceipt{
		ExecutionID: "exec-1", User: owner, Keeper: testOwner(2), Nonce: 1, Timestamp: 100,
	}
	require.NoError(t, store.Insert(ctx, r1))
	require.NoError(t, store.Insert(ctx, r0))
	assert.ErrorIs(t, store.Insert(ctx, r0), storage.ErrDuplicateKey)

	list, err := store.GetByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "exec-1", list[0].ExecutionID)
	assert.Equal(t, r1, list[1])

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignalProgressStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalProgressStore(pool)
	ctx := context.Background()

	_, err := store.GetLastProcessed(ctx, "kafka")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetLastProcessed(ctx, &storage.SignalProgress{Source: "kafka", Offset: 10, SignalID: "s10"}))
	require.NoError(t, store.SetLastProcessed(ctx, &storage.SignalProgress{Source: "kafka", Offset: 11, SignalID: "s11"}))

	got, err := store.GetLastProcessed(ctx, "kafka")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Offset)
	assert.Equal(t, "s11", got.SignalID)

	seen, err := store.IsSignalSeen(ctx, "s11")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSignalSeen(ctx, "s11"))
	require.NoError(t, store.MarkSignalSeen(ctx, "s11"))
	seen, err = store.IsSignalSeen(ctx, "s11")
	require.NoError(t, err)
	assert.True(t, seen)
}
