package web

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stream-archiver/internal/config"
	"stream-archiver/internal/database"
)

type noopQueue struct{}

func (noopQueue) Queue(int64)            {}
func (noopQueue) CancelTask(int64) error { return nil }

func TestNewServer(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{ServerPort: "8080", DownloadsPath: t.TempDir()}
	server := NewServer(db, cfg, noopQueue{})
	require.NotNil(t, server)
	require.Equal(t, ":8080", server.server.Addr)
}

func TestServerShutdown(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{ServerPort: "0", DownloadsPath: t.TempDir()}
	server := NewServer(db, cfg, noopQueue{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
}
