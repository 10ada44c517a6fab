package application

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestInMemorySequenceConcurrent(t *testing.T) {
	seq := NewInMemorySequence()
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(context.Background())
			require.NoError(t, err)
			_, dup := seen.LoadOrStore(n, true)
			assert.False(t, dup, "number %d issued twice", n)
		}()
	}
	wg.Wait()
}

func TestRedisSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() {
		_ = client.Close()
	})

	seq := NewRedisSequence(client, "")
	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// replicas sharing the key continue the same counter
	other := NewRedisSequence(client, DefaultRedisSequenceKey)
	got, err := other.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
}
