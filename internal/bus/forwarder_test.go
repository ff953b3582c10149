package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/logger"
)

func TestNewRedisForwarder_Validation(t *testing.T) {
	_, err := NewRedisForwarder(nil, "localhost:6379", "")
	require.Error(t, err)

	_, err = NewRedisForwarder(logger.NewNop(), "  ", "")
	require.Error(t, err)
}

func TestRedisForwarder_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis forwarder tests")
	}

	channel := "shelf-test-" + uuid.New().String()
	fwd, err := NewRedisForwarder(logger.NewNop(), addr, channel)
	require.NoError(t, err)
	defer fwd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Notice, 1)
	require.NoError(t, fwd.Start(ctx, func(n Notice) { got <- n }))

	sent := Notice{Origin: "proc-1", Owner: "me", Scope: content.EntryScope("home", content.KindNote)}
	require.NoError(t, fwd.Publish(ctx, sent))

	select {
	case n := <-got:
		require.Equal(t, sent, n)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notice")
	}
}
