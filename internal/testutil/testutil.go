package testutil

import (
	"testing"
	"time"

	"github.com/adu4862/banana-api/internal/config"
	"github.com/adu4862/banana-api/internal/store"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	return &config.Config{
		Listen:             "127.0.0.1:0",
		APIKey:             "test-api-key",
		DBPath:             ":memory:",
		LogLevel:           "error",
		MaxBodySize:        "1MB",
		TaskRetentionHours: 1,
		Pool: config.PoolConfig{
			Size:                   2,
			IdleTimeoutSeconds:     60,
			CleanupIntervalSeconds: 1,
			AcquireTimeoutSeconds:  1,
			ProvisionTimeoutSecs:   5,
			TaskTimeoutSeconds:     5,
			TeardownTimeoutSeconds: 1,
			PollIntervalMs:         10,
			ProbeTimeoutMs:         20,
			MaxRetries:             3,
		},
		BitBrowser: config.BitBrowserConfig{
			APIURL:            "http://127.0.0.1:0",
			RequestsPerSecond: 100,
		},
		Lovart: config.LovartConfig{
			BaseURL:        "https://www.lovart.ai",
			MinPoints:      20,
			ViewportWidth:  1280,
			ViewportHeight: 720,
			ResultWaitSecs: 1,
		},
	}
}

// TestTask returns a pending image task with id.
func TestTask(id string) *store.Task {
	return &store.Task{
		ID:        id,
		Kind:      "image",
		Status:    store.TaskPending,
		Slot:      0,
		Request:   `{"prompt":"a cat"}`,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestStore creates an in-memory SQLite store for testing.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", 1)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
