// Package mail provisions throwaway mailboxes on a Mailu server and reads
// verification codes back through a small IMAP bridge service.
package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNoCode is returned when the bridge has no message with a code yet.
	ErrNoCode = errors.New("no verification code yet")
	// ErrNotConfigured is returned when no Mailu endpoint or domain is set.
	ErrNotConfigured = errors.New("mail provider not configured")
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

const (
	localPartLen = 11
	localAlpha   = "abcdefghijklmnopqrstuvwxyz0123456789"
	userQuota    = 1_000_000_000
)

type Options struct {
	APIURL       string // Mailu admin API base, e.g. https://mail.example.com/api/v1
	APIToken     string
	BridgeURL    string // full URL of the latest-email endpoint
	BridgeSecret string
	Domains      []string
	Password     string
	Proxy        string // optional proxy URL, socks5:// or http://
}

// Mailbox is a created mailbox and the credentials to read it.
type Mailbox struct {
	Address  string
	Password string
}

type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		u, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse mail proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: 15 * time.Second, Transport: transport},
		logger:     logger,
	}, nil
}

type createUserRequest struct {
	Email       string `json:"email"`
	RawPassword string `json:"raw_password"`
	Comment     string `json:"comment"`
	Quota       int64  `json:"quota"`
	Enabled     bool   `json:"enabled"`
}

// CreateMailbox creates a random mailbox on one of the configured domains.
// A conflict means the address exists already and is treated as success.
func (c *Client) CreateMailbox(ctx context.Context) (*Mailbox, error) {
	if c.opts.APIURL == "" || len(c.opts.Domains) == 0 {
		return nil, ErrNotConfigured
	}
	local, err := randomString(localPartLen)
	if err != nil {
		return nil, err
	}
	domain, err := pick(c.opts.Domains)
	if err != nil {
		return nil, err
	}
	mb := &Mailbox{Address: local + "@" + domain, Password: c.opts.Password}

	body, _ := json.Marshal(createUserRequest{
		Email:       mb.Address,
		RawPassword: mb.Password,
		Comment:     "banana-api",
		Quota:       userQuota,
		Enabled:     true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.opts.APIURL, "/")+"/user", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create mailbox: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		c.logger.Info("mailbox ready", "email", mb.Address)
		return mb, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("create mailbox: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

type bridgeRequest struct {
	APISecret string `json:"api_secret"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type bridgeResponse struct {
	Status  string `json:"status"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// FetchCode asks the bridge for the latest message and extracts a
// six-digit code from its subject or body.
func (c *Client) FetchCode(ctx context.Context, mb *Mailbox) (string, error) {
	if c.opts.BridgeURL == "" {
		return "", ErrNotConfigured
	}
	body, _ := json.Marshal(bridgeRequest{APISecret: c.opts.BridgeSecret, Email: mb.Address, Password: mb.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BridgeURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch code: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ErrNoCode
	}

	var br bridgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", fmt.Errorf("decode bridge response: %w", err)
	}
	if br.Status != "success" {
		return "", ErrNoCode
	}
	if code := ExtractCode(br.Subject + " " + br.Content); code != "" {
		return code, nil
	}
	return "", ErrNoCode
}

// WaitForCode polls FetchCode every interval until a code arrives or ctx ends.
func (c *Client) WaitForCode(ctx context.Context, mb *Mailbox, interval time.Duration) (string, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		code, err := c.FetchCode(ctx, mb)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrNoCode) {
			c.logger.Debug("fetch verification code", "email", mb.Address, "error", err)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for code for %s: %w", mb.Address, ctx.Err())
		case <-t.C:
		}
	}
}

// ExtractCode returns the first standalone six-digit number in text.
func ExtractCode(text string) string {
	return codePattern.FindString(text)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	alphabet := big.NewInt(int64(len(localAlpha)))
	for i := range b {
		v, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		b[i] = localAlpha[v.Int64()]
	}
	return string(b), nil
}

func pick(items []string) (string, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(len(items))))
	if err != nil {
		return "", err
	}
	return items[v.Int64()], nil
}
