package pool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockFarm struct {
	mock.Mock
}

func (m *MockFarm) CloseWindow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFarm) DeleteWindow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFarm) Forget(index int, id string) {
	m.Called(index, id)
}

type fakePage struct {
	closed atomic.Int32
	done   chan struct{}
	once   sync.Once
}

func newFakePage() *fakePage {
	return &fakePage{done: make(chan struct{})}
}

func (p *fakePage) Close(ctx context.Context) error {
	p.closed.Add(1)
	p.once.Do(func() { close(p.done) })
	return nil
}

// disconnect simulates the browser connection dropping.
func (p *fakePage) disconnect() {
	p.once.Do(func() { close(p.done) })
}

// fakeProvisioner hands out fakePages. delay and err are consulted on
// every call; gate, when set, blocks each call until it is closed.
type fakeProvisioner struct {
	mu       sync.Mutex
	calls    []int
	pages    []*fakePage
	delay    time.Duration
	err      error
	gate     chan struct{}
	resource bool
}

func (f *fakeProvisioner) Provision(ctx context.Context, index int) (*Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, index)
	delay, err, gate := f.delay, f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	page := newFakePage()
	f.mu.Lock()
	f.pages = append(f.pages, page)
	n := len(f.pages)
	f.mu.Unlock()

	sess := &Session{
		Page:  page,
		Email: fmt.Sprintf("user%d@example.com", n),
		Done:  page.done,
	}
	if f.resource {
		sess.ResourceID = fmt.Sprintf("window-%d", n)
	}
	return sess, nil
}

func (f *fakeProvisioner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvisioner) page(i int) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[i]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions(size int) Options {
	return Options{
		Size:             size,
		PollInterval:     10 * time.Millisecond,
		ProbeTimeout:     20 * time.Millisecond,
		ProvisionTimeout: time.Second,
		TeardownTimeout:  200 * time.Millisecond,
	}
}

func newTestPool(size int, prov *fakeProvisioner) *Pool {
	return New(testOptions(size), prov, nil, testLogger())
}

// fill provisions n slots directly.
func fill(p *Pool, n int) error {
	for i := 0; i < n; i++ {
		if err := p.provision(context.Background(), i); err != nil {
			return err
		}
	}
	return nil
}
