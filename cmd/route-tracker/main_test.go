package main

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/routetrack/pkg/config"
	"github.com/agile-defense/routetrack/pkg/feed"
)

func TestOpenPositionStoreMemory(t *testing.T) {
	store, health, closeStore, err := openPositionStore(context.Background(), config.Config{})
	require.NoError(t, err)

	assert.IsType(t, &feed.MemoryStore{}, store)
	assert.Nil(t, health)
	require.NotNil(t, closeStore)
	closeStore()
}

// TestOpenPositionStoreRedis runs against a live server when REDIS_URL is set
func TestOpenPositionStoreRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	store, health, closeStore, err := openPositionStore(ctx, config.Config{RedisURL: url})
	require.NoError(t, err)

	assert.IsType(t, &feed.RedisStore{}, store)
	require.NotNil(t, health)
	require.NoError(t, health(ctx))

	closeStore()
	assert.Error(t, health(ctx), "the client is released on close")
}
