// Package queue dispatches commit-sync jobs through a durable message
// queue, decoupling project creation latency from repository size.
package queue

import (
	"context"
	"errors"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

// ErrClosed is returned by Receive when the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Publisher enqueues sync jobs.
type Publisher interface {
	PublishSyncJob(ctx context.Context, job model.SyncJob) error
	Close() error
}

// Consumer blocks on the next sync job.
type Consumer interface {
	Receive(ctx context.Context) (model.SyncJob, error)
	Close() error
}

// Memory is an in-process queue used in tests and single-node setups.
type Memory struct {
	jobs chan model.SyncJob
}

func NewMemory(size int) *Memory {
	return &Memory{jobs: make(chan model.SyncJob, size)}
}

func (m *Memory) PublishSyncJob(ctx context.Context, job model.SyncJob) error {
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Receive(ctx context.Context) (model.SyncJob, error) {
	select {
	case job, ok := <-m.jobs:
		if !ok {
			return model.SyncJob{}, ErrClosed
		}
		return job, nil
	case <-ctx.Done():
		return model.SyncJob{}, ctx.Err()
	}
}

func (m *Memory) Close() error {
	close(m.jobs)
	return nil
}
