package lovart

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/mock"

	"github.com/adu4862/banana-api/internal/bitbrowser"
	"github.com/adu4862/banana-api/internal/mail"
	"github.com/adu4862/banana-api/internal/store"
)

type MockWindowFarm struct {
	mock.Mock
}

func (m *MockWindowFarm) Acquire(ctx context.Context, index int) (*bitbrowser.Window, error) {
	args := m.Called(ctx, index)
	if w := args.Get(0); w != nil {
		return w.(*bitbrowser.Window), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWindowFarm) Release(ctx context.Context, index int, id string) {
	m.Called(ctx, index, id)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) CreateMailbox(ctx context.Context) (*mail.Mailbox, error) {
	args := m.Called(ctx)
	if mb := args.Get(0); mb != nil {
		return mb.(*mail.Mailbox), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMailer) WaitForCode(ctx context.Context, mb *mail.Mailbox, interval time.Duration) (string, error) {
	args := m.Called(ctx, mb, interval)
	return args.String(0), args.Error(1)
}

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) CreateAccount(acc *store.Account) error {
	args := m.Called(acc)
	return args.Error(0)
}

// fakeTab fails every Run with runErr. It never executes the actions.
type fakeTab struct {
	runErr error
	runs   atomic.Int32
	closed atomic.Int32
	done   chan struct{}
	once   sync.Once
}

func newFakeTab(runErr error) *fakeTab {
	return &fakeTab{runErr: runErr, done: make(chan struct{})}
}

func (t *fakeTab) Context() context.Context { return context.Background() }

func (t *fakeTab) Run(ctx context.Context, actions ...chromedp.Action) error {
	t.runs.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.runErr
}

func (t *fakeTab) ClearSession(ctx context.Context, origin string) error { return nil }

func (t *fakeTab) Done() <-chan struct{} { return t.done }

func (t *fakeTab) Close(ctx context.Context) error {
	t.closed.Add(1)
	t.once.Do(func() { close(t.done) })
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions() Options {
	return Options{
		BaseURL:        "https://www.lovart.ai",
		MinPoints:      20,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		ResultWait:     time.Second,
	}
}
