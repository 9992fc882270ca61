package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
)

func TestStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("collabdocs"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() {
		_ = container.Terminate(ctx)
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := Open(Config{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Int(),
		User:     "postgres",
		Password: "postgres",
		DBName:   "collabdocs",
	}, nil)
	require.NoError(t, err)
	defer func() {
		_ = Close(db)
	}()

	store := NewStore(db, nil)
	encoded := collab.EncodedCollab{DocState: []byte("state"), StateVector: []byte{1}, Version: collab.EncoderVersionV1}
	require.NoError(t, store.SaveCollab(ctx, 1, "ws", "doc", encoded))
	require.NoError(t, store.SaveCollab(ctx, 1, "ws", "doc", encoded))

	state, err := store.LoadDocState(ctx, 1, "ws", "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), state)

	require.NoError(t, store.DeleteDoc(ctx, 1, "ws", "doc"))
	exists, err := store.IsExist(ctx, 1, "ws", "doc")
	require.NoError(t, err)
	assert.False(t, exists)
}
