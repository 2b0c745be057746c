package reaper

import (
	"context"
	"time"
)

// ReaperPool abstracts the pool operations needed by the reaper.
type ReaperPool interface {
	CleanupIdle(ctx context.Context, maxIdle time.Duration) int
	ReapDead(ctx context.Context) int
}

// ReaperStore abstracts store operations needed by the reaper.
type ReaperStore interface {
	PruneTasks(cutoff time.Time) (int64, error)
}
