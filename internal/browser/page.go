// Package browser wraps a chromedp tab attached to a remote browser over CDP.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Page is one tab of a remote browser. Its context outlives the call that
// created it and is cancelled by Close.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Connect attaches to the browser at the websocket endpoint ws and opens a
// tab. ctx bounds the connection attempt only.
func Connect(ctx context.Context, ws string) (*Page, error) {
	if ws == "" {
		return nil, errors.New("empty websocket endpoint")
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), ws)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &Page{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		done: make(chan struct{}),
	}

	// First Run establishes the connection; bound it by the caller's ctx.
	connected := make(chan error, 1)
	go func() { connected <- chromedp.Run(tabCtx) }()
	select {
	case err := <-connected:
		if err != nil {
			p.cancel()
			return nil, fmt.Errorf("connect %s: %w", ws, err)
		}
	case <-ctx.Done():
		p.cancel()
		return nil, ctx.Err()
	}

	go func() {
		<-chromedp.FromContext(tabCtx).Browser.LostConnection
		p.markDone()
	}()
	go func() {
		<-tabCtx.Done()
		p.markDone()
	}()
	return p, nil
}

func (p *Page) markDone() {
	p.once.Do(func() { close(p.done) })
}

// Done is closed when the CDP connection drops or the page is closed.
func (p *Page) Done() <-chan struct{} {
	return p.done
}

// Context returns the tab context for chromedp actions.
func (p *Page) Context() context.Context {
	return p.ctx
}

// Run executes actions on the tab, bounded by both ctx and the tab's
// lifetime.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ClearSession wipes cookies and site storage so the next navigation
// starts logged out.
func (p *Page) ClearSession(ctx context.Context, origin string) error {
	return p.Run(ctx,
		network.ClearBrowserCookies(),
		storage.ClearDataForOrigin(origin, "all"),
	)
}

// Close detaches from the remote browser. The browser process itself is
// owned by whoever launched it.
func (p *Page) Close(ctx context.Context) error {
	p.cancel()
	p.markDone()
	return nil
}
