package ledger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/ledger"
	"github.com/atelier-erp/atelier/internal/ledger/ledgertest"
)

func newTestCache(t *testing.T) (*ledger.StockCache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ledger.NewStockCache(client, time.Minute), client
}

func TestStockCacheServesUntilBumped(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := ledger.MaterialKey(1)
	calls := 0
	loader := func(context.Context) (ledger.StockLevel, error) {
		calls++
		return ledger.StockLevel{Key: key, Quantity: d("4"), LatestCost: d("2.5")}, nil
	}

	first, err := cache.Fetch(ctx, key, loader)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, key, loader)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.True(t, second.Quantity.Equal(first.Quantity))
	require.True(t, second.LatestCost.Equal(d("2.5")))

	before, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	_, err = cache.Fetch(ctx, key, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestStockCacheDisabledWithoutClient(t *testing.T) {
	cache := ledger.NewStockCache(nil, time.Minute)
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := cache.Fetch(context.Background(), ledger.MaterialKey(1), func(context.Context) (ledger.StockLevel, error) {
			calls++
			return ledger.StockLevel{}, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)
	require.NoError(t, cache.Bump(context.Background()))
}

func TestWritesInvalidateCachedStock(t *testing.T) {
	cache, client := newTestCache(t)
	store := ledgertest.NewStore()
	catalog := ledgertest.NewCatalog()
	catalog.Materials[1] = "leather"
	svc := ledger.NewService(store, catalog, ledger.ServiceDeps{Cache: cache})
	ctx := context.Background()

	sub := client.Subscribe(ctx, ledger.BumpChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	level, err := svc.CurrentStock(ctx, ledger.MaterialKey(1))
	require.NoError(t, err)
	require.True(t, level.Quantity.IsZero())

	_, err = svc.RecordEvent(ctx, ledger.Event{Kind: ledger.EventPurchase, Lines: []ledger.LineInput{material(1, "3", "9")}})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", msg.Payload)

	level, err = svc.CurrentStock(ctx, ledger.MaterialKey(1))
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(d("3")))
	require.True(t, level.LatestCost.Equal(d("9")))
}

func TestStockCacheReportsFailedWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := ledger.NewStockCache(client, time.Minute)

	level, err := cache.Fetch(context.Background(), ledger.MaterialKey(1), func(context.Context) (ledger.StockLevel, error) {
		mr.Close()
		return ledger.StockLevel{Key: ledger.MaterialKey(1), Quantity: d("4")}, nil
	})
	require.ErrorIs(t, err, ledger.ErrCacheWrite)
	require.True(t, level.Quantity.Equal(d("4")))
}

// readHookStore runs onRead before serving stock reads.
type readHookStore struct {
	*ledgertest.Store
	onRead func()
}

func (s *readHookStore) ListItemsByKey(ctx context.Context, key ledger.StockKey) ([]ledger.TransactionItem, error) {
	if s.onRead != nil {
		s.onRead()
	}
	return s.Store.ListItemsByKey(ctx, key)
}

func TestCurrentStockLogsFailedCacheWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	var logs bytes.Buffer
	store := &readHookStore{Store: ledgertest.NewStore()}
	catalog := ledgertest.NewCatalog()
	catalog.Materials[1] = "leather"
	svc := ledger.NewService(store, catalog, ledger.ServiceDeps{
		Cache:  ledger.NewStockCache(client, time.Minute),
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})
	ctx := context.Background()

	_, err := svc.RecordEvent(ctx, ledger.Event{Kind: ledger.EventPurchase, Lines: []ledger.LineInput{material(1, "3", "9")}})
	require.NoError(t, err)

	store.onRead = mr.Close
	level, err := svc.CurrentStock(ctx, ledger.MaterialKey(1))
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(d("3")))
	require.Contains(t, logs.String(), "stock cache write failed")
}
