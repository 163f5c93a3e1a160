package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MolForge/pkg/errors"
)

func TestNewClient_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), PoolSize: 2}, logging.NewNopLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping(context.Background()))
	assert.NotNil(t, c.Underlying())
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c, err := NewClient(context.Background(), config.RedisConfig{Addr: addr}, logging.NewNopLogger())
	assert.Nil(t, c)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func TestClient_Close_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClientClosed)
}
