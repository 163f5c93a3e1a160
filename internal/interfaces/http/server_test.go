package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

func TestNewServer(t *testing.T) {
	srv := NewServer(config.ServerConfig{
		Port:         8089,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 4 * time.Second,
	}, http.NewServeMux(), logging.NewNopLogger())

	assert.Equal(t, ":8089", srv.Addr())
	assert.Equal(t, 3*time.Second, srv.httpServer.ReadTimeout)
	assert.Equal(t, 4*time.Second, srv.httpServer.WriteTimeout)
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := NewServer(config.ServerConfig{Port: 0, ShutdownTimeout: time.Second}, http.NewServeMux(), logging.NewNopLogger())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
