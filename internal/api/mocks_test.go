package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/adu4862/banana-api/internal/session"
	"github.com/adu4862/banana-api/internal/store"
	"github.com/adu4862/banana-api/protocol"
)

type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) GenerateVideo(ctx context.Context, req protocol.VideoRequest) (*session.Outcome, error) {
	args := m.Called(ctx, req)
	if out := args.Get(0); out != nil {
		return out.(*session.Outcome), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) GenerateImage(ctx context.Context, req protocol.ImageRequest) (*session.Outcome, error) {
	args := m.Called(ctx, req)
	if out := args.Get(0); out != nil {
		return out.(*session.Outcome), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) Register(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTaskService) GetTask(id string) (*store.Task, error) {
	args := m.Called(id)
	if t := args.Get(0); t != nil {
		return t.(*store.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) Status() session.PoolStatus {
	args := m.Called()
	return args.Get(0).(session.PoolStatus)
}

func (m *MockTaskService) Close(ctx context.Context, index int) error {
	args := m.Called(ctx, index)
	return args.Error(0)
}

func (m *MockTaskService) CloseAll(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockTaskService) ListTasks(limit int) ([]*store.Task, error) {
	args := m.Called(limit)
	if t := args.Get(0); t != nil {
		return t.([]*store.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) ListAccounts(limit int) ([]*store.Account, error) {
	args := m.Called(limit)
	if a := args.Get(0); a != nil {
		return a.([]*store.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) Ping() error {
	args := m.Called()
	return args.Error(0)
}
