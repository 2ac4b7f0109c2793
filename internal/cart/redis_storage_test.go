package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	storage := NewRedisStorage(client, time.Hour)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return storage, mr, cleanup
}

func duck() domain.CartLine {
	return domain.CartLine{ItemID: "5", Name: "Confit de canard", UnitPrice: money.MustParse("24.00")}
}

func TestRedisLoad_MissingIsEmpty(t *testing.T) {
	storage, _, cleanup := setupTestRedis(t)
	defer cleanup()

	c, err := storage.Load(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Equal(t, "nobody", c.SessionID)
	assert.True(t, c.IsEmpty())
}

func TestRedisUpdate_PersistsWithTTL(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	_, err := storage.Update(ctx, "s1", func(c *domain.Cart) error {
		c.Add(duck(), 2)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists(cartKey("s1")))
	assert.GreaterOrEqual(t, mr.TTL(cartKey("s1")), time.Hour)

	c, err := storage.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)
	assert.Equal(t, "24.00", c.Lines[0].UnitPrice.String())
}

func TestRedisUpdate_EmptyCartDeletesKey(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	_, err := storage.Update(ctx, "s1", func(c *domain.Cart) error {
		c.Add(duck(), 1)
		return nil
	})
	require.NoError(t, err)

	_, err = storage.Update(ctx, "s1", func(c *domain.Cart) error {
		c.Decrement("5")
		return nil
	})
	require.NoError(t, err)

	assert.False(t, mr.Exists(cartKey("s1")))
}

func TestRedisUpdate_FnErrorLeavesCartUntouched(t *testing.T) {
	storage, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := storage.Update(ctx, "s1", func(c *domain.Cart) error {
		c.Add(duck(), 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c, err := storage.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestRedisLoad_InvalidJSON(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Set(cartKey("s1"), "{not json")

	_, err := storage.Load(context.Background(), "s1")
	assert.Error(t, err)
}

func TestRedisUpdate_ConcurrentMutationsAreAllApplied(t *testing.T) {
	storage, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.Update(ctx, "s1", func(c *domain.Cart) error {
				c.Add(duck(), 1)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	applied := 0
	for err := range errs {
		if err == nil {
			applied++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}

	c, err := storage.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, applied, c.Count())
}

func TestRedisDelete(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	_, err := storage.Update(ctx, "s1", func(c *domain.Cart) error {
		c.Add(duck(), 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, storage.Delete(ctx, "s1"))
	require.NoError(t, storage.Delete(ctx, "s1"))
	assert.False(t, mr.Exists(cartKey("s1")))
}
