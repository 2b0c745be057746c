// Package session turns HTTP-level generation requests into pooled
// session work: it makes sure sessions exist, takes one, runs the task on
// it and replaces sessions that ran out of credits.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-units"
	"github.com/oklog/ulid/v2"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/store"
	"github.com/adu4862/banana-api/protocol"
)

type Options struct {
	AcquireTimeout time.Duration
	TaskTimeout    time.Duration
	MaxRetries     int
}

type Manager struct {
	opts   Options
	pool   SessionPool
	exec   TaskExecutor
	tasks  TaskStore
	logger *slog.Logger
}

func NewManager(opts Options, p SessionPool, exec TaskExecutor, tasks TaskStore, logger *slog.Logger) *Manager {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	return &Manager{opts: opts, pool: p, exec: exec, tasks: tasks, logger: logger}
}

// Outcome is a successful task.
type Outcome struct {
	TaskID   string         `json:"task_id"`
	Slot     int            `json:"slot"`
	Attempts int            `json:"attempts"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data"`
}

func (m *Manager) GenerateVideo(ctx context.Context, req protocol.VideoRequest) (*Outcome, error) {
	if req.Duration == "" || req.StartFramePath == "" || req.Prompt == "" {
		return nil, fmt.Errorf("%w: duration, start_frame_image_path and prompt are required", ErrInvalidRequest)
	}
	return m.run(ctx, protocol.TaskVideo, req, m.exec.Video(req))
}

func (m *Manager) GenerateImage(ctx context.Context, req protocol.ImageRequest) (*Outcome, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if req.Resolution == "" {
		req.Resolution = protocol.DefaultResolution
	}
	if req.Ratio == "" {
		req.Ratio = protocol.DefaultRatio
	}
	return m.run(ctx, protocol.TaskImage, req, m.exec.Image(req))
}

func (m *Manager) run(ctx context.Context, kind protocol.TaskKind, req any, fn pool.TaskFunc) (*Outcome, error) {
	start := time.Now()
	task := &store.Task{
		ID:   ulid.Make().String(),
		Kind: string(kind),
		Slot: pool.DetachedIndex,
	}
	if b, err := json.Marshal(req); err == nil {
		task.Request = string(b)
	}
	if err := m.tasks.CreateTask(task); err != nil {
		m.logger.Warn("record task", "task_id", task.ID, "error", err)
	}
	logger := m.logger.With("task_id", task.ID, "kind", kind)

	res, err := m.orchestrate(ctx, logger, task, fn)
	metricTaskDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metricTasks.WithLabelValues(string(kind), outcomeLabel(err)).Inc()
	m.finish(task, res, err)

	if err != nil {
		logger.Warn("task failed", "slot", task.Slot, "attempts", task.Attempts, "error", err)
		return nil, err
	}
	logger.Info("task succeeded", "slot", task.Slot, "attempts", task.Attempts, "duration", time.Since(start))
	return &Outcome{
		TaskID:   task.ID,
		Slot:     task.Slot,
		Attempts: task.Attempts,
		Message:  res.Message,
		Data:     res.Data,
	}, nil
}

// orchestrate makes sure a session exists, then acquires and executes.
// Low-balance sessions are replaced and a busy pool is waited on again,
// both within MaxRetries attempts.
func (m *Manager) orchestrate(ctx context.Context, logger *slog.Logger, task *store.Task, fn pool.TaskFunc) (protocol.Result, error) {
	if err := m.pool.EnsureAtLeastOne(ctx); err != nil {
		return protocol.Result{}, err
	}
	if err := m.pool.EnsureCapacity(ctx); err != nil {
		// The request can still be served by an existing session.
		logger.Warn("scale up failed", "error", err)
	}

	for attempt := 1; attempt <= m.opts.MaxRetries; attempt++ {
		task.Attempts = attempt
		res, err := m.attempt(ctx, task, fn)
		if errors.Is(err, ErrBusy) && attempt < m.opts.MaxRetries {
			logger.Info("all sessions busy, waiting again", "attempt", attempt)
			continue
		}
		if err != nil {
			return protocol.Result{}, err
		}
		switch {
		case res.OK:
			return res, nil
		case res.LowBalance:
			metricLowBalance.Inc()
			logger.Info("session out of credits, replacing", "slot", task.Slot, "attempt", attempt)
			if err := m.pool.EnsureAtLeastOne(ctx); err != nil {
				return protocol.Result{}, err
			}
		default:
			return res, &TaskError{Message: res.Message, Data: res.Data}
		}
	}
	return protocol.Result{}, ErrRetriesExhausted
}

// attempt holds one slot for the duration of one execution.
func (m *Manager) attempt(ctx context.Context, task *store.Task, fn pool.TaskFunc) (protocol.Result, error) {
	lease, err := m.pool.Acquire(ctx, m.opts.AcquireTimeout)
	if err != nil {
		if !errors.Is(err, pool.ErrBusy) {
			return protocol.Result{}, err
		}
		if !m.pool.HasActive() {
			return protocol.Result{}, ErrDisconnected
		}
		return protocol.Result{}, ErrBusy
	}
	defer m.pool.Release(lease.Index)
	task.Slot = lease.Index

	res, err := m.pool.Execute(ctx, lease.Index, m.opts.TaskTimeout, fn)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, pool.ErrNoSession), errors.Is(err, pool.ErrActorStopped):
		return protocol.Result{}, fmt.Errorf("%w: slot %d: %v", ErrDisconnected, lease.Index, err)
	case errors.Is(err, pool.ErrSubmitTimeout):
		return protocol.Result{}, &TaskError{Message: fmt.Sprintf("task did not finish within %s", m.opts.TaskTimeout)}
	default:
		return protocol.Result{}, err
	}
}

func (m *Manager) finish(task *store.Task, res protocol.Result, err error) {
	task.Status = store.TaskSuccess
	task.Message = res.Message
	if err != nil {
		task.Status = store.TaskFailed
		task.Message = err.Error()
	}
	if res.Data != nil {
		if b, jerr := json.Marshal(res.Data); jerr == nil {
			task.Result = string(b)
		}
	}
	if serr := m.tasks.FinishTask(task); serr != nil {
		m.logger.Warn("record task result", "task_id", task.ID, "error", serr)
	}
}

func outcomeLabel(err error) string {
	var taskErr *TaskError
	var provErr *pool.ProvisionError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &taskErr):
		return "failed"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, pool.ErrProvisionTimeout), errors.As(err, &provErr):
		return "provision_error"
	default:
		return "error"
	}
}

// Register provisions a throwaway session outside the pool and returns
// the account email it signed up with.
func (m *Manager) Register(ctx context.Context) (string, error) {
	email, err := m.pool.ProvisionDetached(ctx)
	if err != nil {
		m.logger.Warn("ad-hoc registration failed", "error", err)
		return "", err
	}
	m.logger.Info("ad-hoc registration succeeded", "email", email)
	return email, nil
}

// GetTask returns the recorded task with id.
func (m *Manager) GetTask(id string) (*store.Task, error) {
	t, err := m.tasks.GetTask(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// ListTasks returns the most recent tasks first. limit <= 0 means all.
func (m *Manager) ListTasks(limit int) ([]*store.Task, error) {
	tasks, err := m.tasks.ListTasks(limit)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return tasks, nil
}

// ListAccounts returns the accounts provisioning has registered, newest first.
func (m *Manager) ListAccounts(limit int) ([]*store.Account, error) {
	accounts, err := m.tasks.ListAccounts(limit)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*store.Account{}
	}
	return accounts, nil
}

// Ping checks that task history can be reached.
func (m *Manager) Ping() error {
	return m.tasks.Ping()
}

type SlotInfo struct {
	pool.SlotStatus
	Idle string `json:"idle,omitempty"`
}

type PoolStatus struct {
	Size   int        `json:"size"`
	Active int        `json:"active"`
	Busy   int        `json:"busy"`
	Slots  []SlotInfo `json:"slots"`
}

func (m *Manager) Status() PoolStatus {
	st := PoolStatus{Size: m.pool.Size()}
	now := time.Now()
	for _, s := range m.pool.Snapshot() {
		info := SlotInfo{SlotStatus: s}
		if s.State == pool.StateActive {
			st.Active++
			if s.Busy {
				st.Busy++
			}
			if !s.LastActive.IsZero() {
				info.Idle = units.HumanDuration(now.Sub(s.LastActive))
			}
		}
		st.Slots = append(st.Slots, info)
	}
	return st
}

// Close destroys the session in slot index.
func (m *Manager) Close(ctx context.Context, index int) error {
	if index < 0 || index >= m.pool.Size() {
		return fmt.Errorf("%w: slot %d out of range [0,%d)", ErrInvalidRequest, index, m.pool.Size())
	}
	m.logger.Info("closing session", "slot", index)
	m.pool.Destroy(ctx, index)
	return nil
}

func (m *Manager) CloseAll(ctx context.Context) {
	m.logger.Info("closing all sessions")
	m.pool.DestroyAll(ctx)
}
