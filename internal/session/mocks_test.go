package session

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/store"
	"github.com/adu4862/banana-api/protocol"
)

type MockSessionPool struct {
	mock.Mock
}

func (m *MockSessionPool) Size() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockSessionPool) EnsureAtLeastOne(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionPool) EnsureCapacity(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionPool) Acquire(ctx context.Context, timeout time.Duration) (pool.Lease, error) {
	args := m.Called(ctx, timeout)
	return args.Get(0).(pool.Lease), args.Error(1)
}

func (m *MockSessionPool) Release(index int) {
	m.Called(index)
}

func (m *MockSessionPool) HasActive() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSessionPool) Execute(ctx context.Context, index int, timeout time.Duration, fn pool.TaskFunc) (protocol.Result, error) {
	args := m.Called(ctx, index, timeout, fn)
	return args.Get(0).(protocol.Result), args.Error(1)
}

func (m *MockSessionPool) ProvisionDetached(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSessionPool) Destroy(ctx context.Context, index int) {
	m.Called(ctx, index)
}

func (m *MockSessionPool) DestroyAll(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockSessionPool) Snapshot() []pool.SlotStatus {
	args := m.Called()
	return args.Get(0).([]pool.SlotStatus)
}

// stubExecutor returns task bodies that are never run; the pool mock
// decides the result.
type stubExecutor struct {
	videos []protocol.VideoRequest
	images []protocol.ImageRequest
}

func (s *stubExecutor) Video(req protocol.VideoRequest) pool.TaskFunc {
	s.videos = append(s.videos, req)
	return func(ctx context.Context, page pool.Page) protocol.Result { return protocol.Result{} }
}

func (s *stubExecutor) Image(req protocol.ImageRequest) pool.TaskFunc {
	s.images = append(s.images, req)
	return func(ctx context.Context, page pool.Page) protocol.Result { return protocol.Result{} }
}

type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) CreateTask(t *store.Task) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockTaskStore) FinishTask(t *store.Task) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockTaskStore) GetTask(id string) (*store.Task, error) {
	args := m.Called(id)
	if t := args.Get(0); t != nil {
		return t.(*store.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskStore) ListTasks(limit int) ([]*store.Task, error) {
	args := m.Called(limit)
	if t := args.Get(0); t != nil {
		return t.([]*store.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskStore) ListAccounts(limit int) ([]*store.Account, error) {
	args := m.Called(limit)
	if a := args.Get(0); a != nil {
		return a.([]*store.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskStore) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
