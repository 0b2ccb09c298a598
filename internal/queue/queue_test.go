package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

func TestMemory_RoundTrip(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()

	job := model.SyncJob{
		ProjectID:     7,
		UserID:        42,
		ProjectName:   "widgets",
		GitLink:       "acme/widgets",
		DefaultBranch: "main",
	}
	require.NoError(t, q.PublishSyncJob(ctx, job))

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestMemory_ReceiveHonorsContext(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_Closed(t *testing.T) {
	q := NewMemory(1)
	require.NoError(t, q.Close())

	_, err := q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
