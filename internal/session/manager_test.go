package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/store"
	"github.com/adu4862/banana-api/protocol"
)

const (
	testAcquire = 50 * time.Millisecond
	testTask    = time.Second
)

func newTestManager() (*Manager, *MockSessionPool, *MockTaskStore, *stubExecutor) {
	p := &MockSessionPool{}
	ts := &MockTaskStore{}
	ex := &stubExecutor{}
	ts.On("CreateTask", mock.Anything).Return(nil)
	ts.On("FinishTask", mock.Anything).Return(nil)
	mgr := NewManager(Options{AcquireTimeout: testAcquire, TaskTimeout: testTask, MaxRetries: 3}, p, ex, ts, testLogger())
	return mgr, p, ts, ex
}

func videoReq() protocol.VideoRequest {
	return protocol.VideoRequest{Duration: "5s", StartFramePath: "/tmp/frame.png", Prompt: "waves"}
}

func finishedTask(t *testing.T, ts *MockTaskStore) *store.Task {
	t.Helper()
	for _, c := range ts.Calls {
		if c.Method == "FinishTask" {
			return c.Arguments.Get(0).(*store.Task)
		}
	}
	t.Fatal("FinishTask not called")
	return nil
}

func TestGenerateVideo_Success(t *testing.T) {
	mgr, p, ts, ex := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(nil)
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 1}, nil)
	p.On("Execute", mock.Anything, 1, testTask, mock.Anything).
		Return(protocol.Success("video generated", map[string]any{"video_url": "https://cdn/x.mp4"}), nil)
	p.On("Release", 1).Return()

	out, err := mgr.GenerateVideo(context.Background(), videoReq())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Slot)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "https://cdn/x.mp4", out.Data["video_url"])
	assert.NotEmpty(t, out.TaskID)
	require.Len(t, ex.videos, 1)

	task := finishedTask(t, ts)
	assert.Equal(t, store.TaskSuccess, task.Status)
	assert.Equal(t, out.TaskID, task.ID)
	assert.Contains(t, task.Result, "x.mp4")
	p.AssertExpectations(t)
}

func TestGenerateVideo_Validation(t *testing.T) {
	mgr, p, _, _ := newTestManager()

	_, err := mgr.GenerateVideo(context.Background(), protocol.VideoRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	p.AssertNotCalled(t, "EnsureAtLeastOne", mock.Anything)
}

func TestGenerateImage_Defaults(t *testing.T) {
	mgr, p, _, ex := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(nil)
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 0}, nil)
	p.On("Execute", mock.Anything, 0, testTask, mock.Anything).Return(protocol.Success("ok", nil), nil)
	p.On("Release", 0).Return()

	_, err := mgr.GenerateImage(context.Background(), protocol.ImageRequest{Prompt: "cat"})
	require.NoError(t, err)
	require.Len(t, ex.images, 1)
	assert.Equal(t, protocol.DefaultResolution, ex.images[0].Resolution)
	assert.Equal(t, protocol.DefaultRatio, ex.images[0].Ratio)
}

func TestGenerate_ProvisioningFailureIsTerminal(t *testing.T) {
	mgr, p, ts, _ := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(pool.ErrProvisionTimeout)

	_, err := mgr.GenerateVideo(context.Background(), videoReq())
	assert.ErrorIs(t, err, pool.ErrProvisionTimeout)
	p.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything)
	assert.Equal(t, store.TaskFailed, finishedTask(t, ts).Status)
}

func TestGenerate_CapacityFailureIsNotFatal(t *testing.T) {
	mgr, p, _, _ := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(&pool.ProvisionError{Slot: 1, Err: errors.New("no window")})
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 0}, nil)
	p.On("Execute", mock.Anything, 0, testTask, mock.Anything).Return(protocol.Success("ok", nil), nil)
	p.On("Release", 0).Return()

	_, err := mgr.GenerateVideo(context.Background(), videoReq())
	assert.NoError(t, err)
}

func TestGenerate_BusyVersusDisconnected(t *testing.T) {
	tests := []struct {
		name      string
		hasActive bool
		want      error
		acquires  int
	}{
		{name: "all busy", hasActive: true, want: ErrBusy, acquires: 3},
		{name: "no live session", hasActive: false, want: ErrDisconnected, acquires: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, p, _, _ := newTestManager()
			p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
			p.On("EnsureCapacity", mock.Anything).Return(nil)
			p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{}, pool.ErrBusy)
			p.On("HasActive").Return(tt.hasActive)

			_, err := mgr.GenerateVideo(context.Background(), videoReq())
			assert.ErrorIs(t, err, tt.want)
			p.AssertNumberOfCalls(t, "Acquire", tt.acquires)
			p.AssertNotCalled(t, "Release", mock.Anything)
		})
	}
}

func TestGenerate_LowBalanceRetriesOnNewSlot(t *testing.T) {
	mgr, p, ts, _ := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(nil)
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 0}, nil).Once()
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 1}, nil).Once()
	p.On("Execute", mock.Anything, 0, testTask, mock.Anything).Return(protocol.LowBalanceFailure(3), nil).Once()
	p.On("Execute", mock.Anything, 1, testTask, mock.Anything).Return(protocol.Success("ok", nil), nil).Once()
	p.On("Release", 0).Return()
	p.On("Release", 1).Return()

	out, err := mgr.GenerateVideo(context.Background(), videoReq())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Slot)
	assert.Equal(t, 2, out.Attempts)

	// initial ensure plus one replacement
	p.AssertNumberOfCalls(t, "EnsureAtLeastOne", 2)
	p.AssertCalled(t, "Release", 0)
	assert.Equal(t, 2, finishedTask(t, ts).Attempts)
}

func TestGenerate_LowBalanceExhaustsRetries(t *testing.T) {
	mgr, p, ts, _ := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(nil)
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 0}, nil)
	p.On("Execute", mock.Anything, 0, testTask, mock.Anything).Return(protocol.LowBalanceFailure(0), nil)
	p.On("Release", 0).Return()

	_, err := mgr.GenerateVideo(context.Background(), videoReq())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	p.AssertNumberOfCalls(t, "Execute", 3)
	p.AssertNumberOfCalls(t, "Release", 3)

	task := finishedTask(t, ts)
	assert.Equal(t, store.TaskFailed, task.Status)
	assert.Equal(t, 3, task.Attempts)
}

func TestGenerate_TaskFailureIsNotRetried(t *testing.T) {
	mgr, p, _, _ := newTestManager()
	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(nil)
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 0}, nil)
	p.On("Execute", mock.Anything, 0, testTask, mock.Anything).
		Return(protocol.Failure("no video result captured", map[string]any{"current_url": "https://x/canvas"}), nil)
	p.On("Release", 0).Return()

	_, err := mgr.GenerateVideo(context.Background(), videoReq())
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "no video result captured", taskErr.Message)
	assert.Equal(t, "https://x/canvas", taskErr.Data["current_url"])
	p.AssertNumberOfCalls(t, "Execute", 1)
	p.AssertCalled(t, "Release", 0)
}

func TestGenerate_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		execErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "session died",
			execErr: pool.ErrActorStopped,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrDisconnected) },
		},
		{
			name:    "timed out",
			execErr: pool.ErrSubmitTimeout,
			check: func(t *testing.T, err error) {
				var taskErr *TaskError
				assert.ErrorAs(t, err, &taskErr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, p, _, _ := newTestManager()
			p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
			p.On("EnsureCapacity", mock.Anything).Return(nil)
			p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 2}, nil)
			p.On("Execute", mock.Anything, 2, testTask, mock.Anything).Return(protocol.Result{}, tt.execErr)
			p.On("Release", 2).Return()

			_, err := mgr.GenerateVideo(context.Background(), videoReq())
			tt.check(t, err)
			p.AssertCalled(t, "Release", 2)
		})
	}
}

func TestGenerate_StoreErrorsDoNotFailTask(t *testing.T) {
	p := &MockSessionPool{}
	ts := &MockTaskStore{}
	ts.On("CreateTask", mock.Anything).Return(errors.New("disk full"))
	ts.On("FinishTask", mock.Anything).Return(store.ErrNotFound)
	mgr := NewManager(Options{AcquireTimeout: testAcquire, TaskTimeout: testTask}, p, &stubExecutor{}, ts, testLogger())

	p.On("EnsureAtLeastOne", mock.Anything).Return(nil)
	p.On("EnsureCapacity", mock.Anything).Return(nil)
	p.On("Acquire", mock.Anything, testAcquire).Return(pool.Lease{Index: 0}, nil)
	p.On("Execute", mock.Anything, 0, testTask, mock.Anything).Return(protocol.Success("ok", nil), nil)
	p.On("Release", 0).Return()

	_, err := mgr.GenerateVideo(context.Background(), videoReq())
	assert.NoError(t, err)
}

func TestRegister(t *testing.T) {
	mgr, p, _, _ := newTestManager()
	p.On("ProvisionDetached", mock.Anything).Return("new@example.com", nil).Once()

	email, err := mgr.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", email)

	p.On("ProvisionDetached", mock.Anything).Return("", pool.ErrProvisionTimeout).Once()
	_, err = mgr.Register(context.Background())
	assert.ErrorIs(t, err, pool.ErrProvisionTimeout)
}

func TestGetTask(t *testing.T) {
	mgr, _, ts, _ := newTestManager()
	ts.On("GetTask", "known").Return(&store.Task{ID: "known"}, nil)
	ts.On("GetTask", "missing").Return(nil, nil)

	got, err := mgr.GetTask("known")
	require.NoError(t, err)
	assert.Equal(t, "known", got.ID)

	_, err = mgr.GetTask("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListTasksAndAccounts(t *testing.T) {
	mgr, _, ts, _ := newTestManager()
	ts.On("ListTasks", 20).Return([]*store.Task{{ID: "b"}, {ID: "a"}}, nil).Once()
	ts.On("ListTasks", 5).Return(nil, nil).Once()
	ts.On("ListAccounts", 0).Return([]*store.Account{{Email: "a@example.com"}}, nil).Once()
	ts.On("ListAccounts", 1).Return(nil, errors.New("database is locked")).Once()

	tasks, err := mgr.ListTasks(20)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[0].ID)

	tasks, err = mgr.ListTasks(5)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)

	accounts, err := mgr.ListAccounts(0)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", accounts[0].Email)

	_, err = mgr.ListAccounts(1)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	mgr, _, ts, _ := newTestManager()
	ts.On("Ping").Return(nil).Once()
	ts.On("Ping").Return(errors.New("sql: database is closed")).Once()

	assert.NoError(t, mgr.Ping())
	assert.Error(t, mgr.Ping())
}

func TestStatus(t *testing.T) {
	mgr, p, _, _ := newTestManager()
	p.On("Size").Return(3)
	p.On("Snapshot").Return([]pool.SlotStatus{
		{Index: 0, State: pool.StateActive, Busy: true, LastActive: time.Now().Add(-2 * time.Minute)},
		{Index: 1, State: pool.StateActive},
		{Index: 2, State: pool.StateEmpty},
	})

	st := mgr.Status()
	assert.Equal(t, 3, st.Size)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Busy)
	require.Len(t, st.Slots, 3)
	assert.Equal(t, "2 minutes", st.Slots[0].Idle)
	assert.Empty(t, st.Slots[1].Idle)
}

func TestClose(t *testing.T) {
	mgr, p, _, _ := newTestManager()
	p.On("Size").Return(2)
	p.On("Destroy", mock.Anything, 1).Return()
	p.On("DestroyAll", mock.Anything).Return()

	require.NoError(t, mgr.Close(context.Background(), 1))
	assert.ErrorIs(t, mgr.Close(context.Background(), 2), ErrInvalidRequest)
	assert.ErrorIs(t, mgr.Close(context.Background(), -1), ErrInvalidRequest)
	p.AssertNumberOfCalls(t, "Destroy", 1)

	mgr.CloseAll(context.Background())
	p.AssertCalled(t, "DestroyAll", mock.Anything)
}
