package reaper

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockReaperPool mocks the ReaperPool interface.
type MockReaperPool struct {
	mock.Mock
}

func (m *MockReaperPool) CleanupIdle(ctx context.Context, maxIdle time.Duration) int {
	args := m.Called(ctx, maxIdle)
	return args.Int(0)
}

func (m *MockReaperPool) ReapDead(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}

// MockReaperStore mocks the ReaperStore interface.
type MockReaperStore struct {
	mock.Mock
}

func (m *MockReaperStore) PruneTasks(cutoff time.Time) (int64, error) {
	args := m.Called(cutoff)
	return args.Get(0).(int64), args.Error(1)
}
