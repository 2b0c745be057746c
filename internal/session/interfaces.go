package session

import (
	"context"
	"time"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/store"
	"github.com/adu4862/banana-api/protocol"
)

// SessionPool is the part of *pool.Pool the orchestrator drives.
type SessionPool interface {
	Size() int
	EnsureAtLeastOne(ctx context.Context) error
	EnsureCapacity(ctx context.Context) error
	Acquire(ctx context.Context, timeout time.Duration) (pool.Lease, error)
	Release(index int)
	HasActive() bool
	Execute(ctx context.Context, index int, timeout time.Duration, fn pool.TaskFunc) (protocol.Result, error)
	ProvisionDetached(ctx context.Context) (string, error)
	Destroy(ctx context.Context, index int)
	DestroyAll(ctx context.Context)
	Snapshot() []pool.SlotStatus
}

// TaskExecutor builds the per-request task bodies.
type TaskExecutor interface {
	Video(req protocol.VideoRequest) pool.TaskFunc
	Image(req protocol.ImageRequest) pool.TaskFunc
}

// TaskStore is the history the manager records tasks into and reads
// tasks and accounts back from. *store.Store implements it.
type TaskStore interface {
	CreateTask(t *store.Task) error
	FinishTask(t *store.Task) error
	GetTask(id string) (*store.Task, error)
	ListTasks(limit int) ([]*store.Task, error)
	ListAccounts(limit int) ([]*store.Account, error)
	Ping() error
}
