package testutil_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/testutil"
)

func TestRecordingLogger(t *testing.T) {
	log := testutil.NewRecordingLogger()
	log.Info("started")

	child := log.Named("history").With(logging.String("user_id", "u1"))
	ctx := logging.WithRequestID(context.Background(), "req-9")
	child.WithContext(ctx).Warn("publish failed", logging.Err(assert.AnError))

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, logging.LevelInfo, entries[0].Level)

	e, ok := log.Find(logging.LevelWarn, "publish failed")
	require.True(t, ok)
	assert.Equal(t, "history", e.Logger)
	v, ok := e.Field("user_id")
	assert.True(t, ok)
	assert.Equal(t, "u1", v)
	v, _ = e.Field(logging.FieldRequestID)
	assert.Equal(t, "req-9", v)

	assert.False(t, log.HasMessage(logging.LevelError, "started"))
	log.Reset()
	assert.Empty(t, log.Entries())
}
