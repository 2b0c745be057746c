// Package lovart drives the Lovart web app over CDP: it logs sessions in
// (registering fresh accounts when needed) and runs image and video
// generations on ready sessions.
package lovart

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/adu4862/banana-api/internal/bitbrowser"
	"github.com/adu4862/banana-api/internal/browser"
	"github.com/adu4862/banana-api/internal/mail"
	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/store"
)

// Tab is the browser page a session drives. *browser.Page implements it.
type Tab interface {
	pool.Page
	Context() context.Context
	Run(ctx context.Context, actions ...chromedp.Action) error
	ClearSession(ctx context.Context, origin string) error
	Done() <-chan struct{}
}

// WindowFarm hands out remote browser windows per pool slot.
type WindowFarm interface {
	Acquire(ctx context.Context, index int) (*bitbrowser.Window, error)
	Release(ctx context.Context, index int, id string)
}

// Mailer creates mailboxes and reads verification codes.
type Mailer interface {
	CreateMailbox(ctx context.Context) (*mail.Mailbox, error)
	WaitForCode(ctx context.Context, mb *mail.Mailbox, interval time.Duration) (string, error)
}

// AccountStore records provisioned accounts.
type AccountStore interface {
	CreateAccount(acc *store.Account) error
}

// Connector attaches to a browser's CDP endpoint.
type Connector func(ctx context.Context, ws string) (Tab, error)

// ConnectCDP connects with the chromedp page implementation.
func ConnectCDP(ctx context.Context, ws string) (Tab, error) {
	p, err := browser.Connect(ctx, ws)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options holds site and timing settings shared by provisioner and executor.
type Options struct {
	BaseURL        string
	MinPoints      int
	ViewportWidth  int
	ViewportHeight int
	ResultWait     time.Duration
}

func (o Options) canvasURL() string {
	return o.BaseURL + "/canvas"
}

func (o Options) viewport() chromedp.Action {
	return chromedp.EmulateViewport(int64(o.ViewportWidth), int64(o.ViewportHeight))
}
