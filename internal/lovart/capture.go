package lovart

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/adu4862/banana-api/protocol"
)

var (
	mp4URL   = regexp.MustCompile(`https?://[^\s"']+?\.mp4`)
	coverURL = regexp.MustCompile(`(?i)https?://[^\s"']+?\.(?:jpg|jpeg)`)
	imageURL = regexp.MustCompile(`https?://[^\s"']+?\.(?:png|jpg|jpeg|webp)`)
)

// captured is what the network listener found for one generation.
type captured struct {
	URL   string
	Cover string
}

// capture watches a tab's network traffic for the result of one
// generation. Traffic before arm is ignored so artifacts already on the
// canvas are not mistaken for the new result.
type capture struct {
	kind protocol.TaskKind

	mu      sync.Mutex
	armed   bool
	cover   string
	pending map[network.RequestID]string // JSON responses awaiting their body
	result  chan captured
}

func newCapture(kind protocol.TaskKind) *capture {
	return &capture{
		kind:    kind,
		pending: make(map[network.RequestID]string),
		result:  make(chan captured, 1),
	}
}

// listen attaches to the tab until ctx is cancelled. ctx must be derived
// from the tab context.
func (c *capture) listen(ctx context.Context) {
	_ = chromedp.Run(ctx, network.Enable())

	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			c.onResponse(e.RequestID, e.Type, e.Response.URL, e.Response.MimeType)
		case *network.EventLoadingFinished:
			c.mu.Lock()
			src, ok := c.pending[e.RequestID]
			delete(c.pending, e.RequestID)
			c.mu.Unlock()
			if ok {
				// Body fetches must not block the event loop.
				go c.fetchBody(ctx, e.RequestID, src)
			}
		}
	})
}

func (c *capture) arm() {
	c.mu.Lock()
	c.armed = true
	c.mu.Unlock()
}

func (c *capture) onResponse(id network.RequestID, rt network.ResourceType, url, mime string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return
	}

	if c.kind == protocol.TaskVideo {
		if strings.Contains(url, ".mp4") {
			c.offerLocked(captured{URL: url, Cover: c.cover})
			return
		}
		if c.cover == "" && strings.Contains(url, "/artifacts/") && coverURL.MatchString(url) {
			c.cover = url
		}
	}

	if (rt == network.ResourceTypeFetch || rt == network.ResourceTypeXHR) && strings.Contains(mime, "json") {
		c.pending[id] = url
	}
}

func (c *capture) fetchBody(ctx context.Context, id network.RequestID, src string) {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil || len(body) == 0 {
		return
	}

	var found captured
	switch c.kind {
	case protocol.TaskVideo:
		found = matchVideo(body)
	case protocol.TaskImage:
		found = matchImage(body, src)
	}
	if found.URL == "" {
		return
	}
	c.mu.Lock()
	if found.Cover == "" {
		found.Cover = c.cover
	}
	c.offerLocked(found)
	c.mu.Unlock()
}

func (c *capture) offerLocked(r captured) {
	select {
	case c.result <- r:
	default:
	}
}

// wait blocks until a result is captured or ctx ends.
func (c *capture) wait(ctx context.Context) (captured, bool) {
	select {
	case r := <-c.result:
		return r, true
	case <-ctx.Done():
		return captured{}, false
	}
}

// matchVideo finds a video URL, and a cover if one is close by, in a JSON body.
func matchVideo(body []byte) captured {
	text := string(body)
	u := mp4URL.FindString(text)
	if u == "" {
		return captured{}
	}
	return captured{URL: u, Cover: coverURL.FindString(text)}
}

type artifactResponse struct {
	Data struct {
		Artifacts []struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		} `json:"artifacts"`
	} `json:"data"`
}

// matchImage prefers the structured artifacts list and falls back to the
// first image URL in bodies served by the site's own API.
func matchImage(body []byte, src string) captured {
	var ar artifactResponse
	if err := json.Unmarshal(body, &ar); err == nil {
		for _, a := range ar.Data.Artifacts {
			if a.Type == "image" && a.Content != "" {
				return captured{URL: a.Content}
			}
		}
		if len(ar.Data.Artifacts) > 0 {
			return captured{}
		}
	}
	if !strings.Contains(src, "lovart") && !strings.Contains(src, "/api/") {
		return captured{}
	}
	return captured{URL: imageURL.FindString(string(body))}
}
