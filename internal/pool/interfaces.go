package pool

import "context"

// DetachedIndex is passed to the Provisioner for sessions that are not
// bound to a pool slot.
const DetachedIndex = -1

// Page is the browser handle a session drives. It is only touched from
// the actor that created it.
type Page interface {
	// Close releases the page, its browser context and the CDP connection.
	Close(ctx context.Context) error
}

// Session is what a successful provisioning hands back to the pool.
type Session struct {
	Page       Page
	ResourceID string // external browser-farm window backing the session, if any
	Email      string

	// Done is closed when the underlying browser connection drops. Nil
	// means the provider cannot report disconnects.
	Done <-chan struct{}
}

// Provisioner brings a slot from empty to an authenticated, ready session.
// Provision runs on the new session's own actor; ctx carries the
// provisioning deadline and must not be retained by the returned Page.
type Provisioner interface {
	Provision(ctx context.Context, index int) (*Session, error)
}

// Farm manages externally provisioned browser resources (remote windows).
type Farm interface {
	CloseWindow(ctx context.Context, id string) error
	DeleteWindow(ctx context.Context, id string) error
	// Forget drops the cached window id of slot index if it is still id,
	// so the next provisioning creates a fresh window.
	Forget(index int, id string)
}
