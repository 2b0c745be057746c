package api

import (
	"context"

	"github.com/adu4862/banana-api/internal/session"
	"github.com/adu4862/banana-api/internal/store"
	"github.com/adu4862/banana-api/protocol"
)

// TaskService abstracts the orchestrator operations needed by API handlers.
type TaskService interface {
	GenerateVideo(ctx context.Context, req protocol.VideoRequest) (*session.Outcome, error)
	GenerateImage(ctx context.Context, req protocol.ImageRequest) (*session.Outcome, error)
	Register(ctx context.Context) (string, error)
	GetTask(id string) (*store.Task, error)
	ListTasks(limit int) ([]*store.Task, error)
	ListAccounts(limit int) ([]*store.Account, error)
	Ping() error
	Status() session.PoolStatus
	Close(ctx context.Context, index int) error
	CloseAll(ctx context.Context)
}
