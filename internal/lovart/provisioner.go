package lovart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/adu4862/banana-api/internal/mail"
	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/store"
)

// ErrLowCredits is returned by an attempt that found a logged-in account
// without enough credits; the window is dropped and a new one tried.
var ErrLowCredits = errors.New("logged-in account has too few credits")

const (
	defaultAttempts     = 3
	defaultCodeWait     = 60 * time.Second
	defaultCodeInterval = 3 * time.Second
	retryPause          = 5 * time.Second
	cleanupTimeout      = 30 * time.Second
)

// Provisioner logs a browser window into the site, registering a new
// account with a throwaway mailbox when the window is not logged in. It
// implements pool.Provisioner.
type Provisioner struct {
	opts     Options
	farm     WindowFarm
	mailer   Mailer
	accounts AccountStore
	connect  Connector
	logger   *slog.Logger

	attempts     int
	codeWait     time.Duration
	codeInterval time.Duration
	pause        time.Duration
}

// NewProvisioner builds a provisioner. accounts may be nil.
func NewProvisioner(opts Options, farm WindowFarm, mailer Mailer, accounts AccountStore, connect Connector, logger *slog.Logger) *Provisioner {
	if connect == nil {
		connect = ConnectCDP
	}
	return &Provisioner{
		opts:         opts,
		farm:         farm,
		mailer:       mailer,
		accounts:     accounts,
		connect:      connect,
		logger:       logger,
		attempts:     defaultAttempts,
		codeWait:     defaultCodeWait,
		codeInterval: defaultCodeInterval,
		pause:        retryPause,
	}
}

// Provision makes up to three attempts. Each failed attempt closes and
// deletes its window so the next one starts from a fresh profile.
func (p *Provisioner) Provision(ctx context.Context, index int) (*pool.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		sess, err := p.attempt(ctx, index)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		p.logger.Warn("provisioning attempt failed", "slot", index, "attempt", attempt, "error", err)

		if ctx.Err() != nil || attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("provisioning slot %d: %w", index, ctx.Err())
		case <-time.After(p.pause):
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("provisioning slot %d: %w", index, ctx.Err())
	}
	return nil, fmt.Errorf("provisioning slot %d after %d attempts: %w", index, p.attempts, lastErr)
}

func (p *Provisioner) attempt(ctx context.Context, index int) (*pool.Session, error) {
	win, err := p.farm.Acquire(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("browser window: %w", err)
	}

	release := func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		p.farm.Release(cctx, index, win.ID)
	}

	tab, err := p.connect(ctx, win.WS)
	if err != nil {
		release()
		return nil, fmt.Errorf("connect to window %s: %w", win.ID, err)
	}
	fail := func(err error) (*pool.Session, error) {
		_ = tab.Close(ctx)
		release()
		return nil, err
	}

	if err := tab.Run(ctx, p.opts.viewport(), chromedp.Navigate(p.opts.BaseURL+"/zh")); err != nil {
		return fail(fmt.Errorf("navigate: %w", err))
	}

	points, err := readPoints(ctx, tab, 5*time.Second)
	switch {
	case err == nil && points >= p.opts.MinPoints:
		p.logger.Info("reusing logged-in account", "slot", index, "window_id", win.ID, "points", points)
		return p.ready(index, tab, win.ID, nil)
	case err == nil:
		p.logger.Info("logged-in account is low on credits, starting over", "slot", index, "points", points)
		if cerr := tab.ClearSession(ctx, p.opts.BaseURL); cerr != nil {
			p.logger.Debug("clear browser session", "error", cerr)
		}
		return fail(ErrLowCredits)
	case !errors.Is(err, ErrNoPoints):
		return fail(err)
	}

	mb, err := p.register(ctx, tab)
	if err != nil {
		return fail(fmt.Errorf("register: %w", err))
	}
	if _, err := readPoints(ctx, tab, 25*time.Second); err != nil {
		return fail(fmt.Errorf("page not ready after login: %w", err))
	}
	p.logger.Info("registered account", "slot", index, "email", mb.Address, "window_id", win.ID)
	return p.ready(index, tab, win.ID, mb)
}

// ready wraps tab as a pool session. mb is nil when an existing login was reused.
func (p *Provisioner) ready(index int, tab Tab, windowID string, mb *mail.Mailbox) (*pool.Session, error) {
	sess := &pool.Session{
		Page:       tab,
		ResourceID: windowID,
		Done:       tab.Done(),
	}
	if mb == nil {
		return sess, nil
	}
	sess.Email = mb.Address
	if p.accounts != nil {
		acc := &store.Account{Email: mb.Address, Password: mb.Password, WindowID: windowID, Slot: index}
		if err := p.accounts.CreateAccount(acc); err != nil {
			p.logger.Warn("record account", "email", mb.Address, "error", err)
		}
	}
	return sess, nil
}

// register signs up with a fresh mailbox and enters the emailed code.
func (p *Provisioner) register(ctx context.Context, tab Tab) (*mail.Mailbox, error) {
	var visible bool
	if err := tab.Run(ctx, isVisible(selEmailInput, &visible)); err != nil {
		return nil, err
	}
	if !visible {
		var clicked bool
		if err := tab.Run(ctx, clickText("button, .mantine-Button-label", textRegister, &clicked)); err != nil {
			return nil, err
		}
		if !clicked {
			return nil, errors.New("register button not found")
		}
	}

	mb, err := p.mailer.CreateMailbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("mailbox: %w", err)
	}
	if err := tab.Run(ctx, typeInto(selEmailInput, mb.Address, 15*time.Second)); err != nil {
		return nil, fmt.Errorf("email input: %w", err)
	}

	var clicked bool
	if err := tab.Run(ctx, clickText("button", textGetCode, &clicked)); err != nil {
		return nil, err
	}
	if !clicked {
		if err := tab.Run(ctx, clickVisible("#emailLogin", 5*time.Second)); err != nil {
			return nil, fmt.Errorf("get code button: %w", err)
		}
	}

	codeCtx, cancel := context.WithTimeout(ctx, p.codeWait)
	code, err := p.mailer.WaitForCode(codeCtx, mb, p.codeInterval)
	cancel()
	if err != nil {
		return nil, err
	}

	// Pin inputs advance focus on each digit.
	first := byTestID("undefined-input-0") + ", " + selPinInput
	if err := tab.Run(ctx, within(10*time.Second,
		chromedp.WaitVisible(first, chromedp.ByQuery),
		chromedp.Click(first, chromedp.ByQuery),
		chromedp.KeyEvent(code),
	)); err != nil {
		return nil, fmt.Errorf("enter code: %w", err)
	}

	// Post-signup dialogs are optional.
	var dismissed bool
	_ = tab.Run(ctx, chromedp.Sleep(2*time.Second), clickText("button", textCloseDialog, &dismissed))
	return mb, nil
}
