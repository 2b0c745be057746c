package lovart

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrNoPoints is returned when the credits counter is not on the page,
	// which usually means the session is logged out.
	ErrNoPoints = errors.New("credits counter not found")

	digits = regexp.MustCompile(`\d+`)
)

// The counter is the span next to the coin icon in the header.
const pointsFn = `() => {
	const sels = [
		'div.flex.min-w-10.items-center:has(svg[viewBox="0 0 16 24"]) span',
		'div:has(svg[viewBox="0 0 16 24"]) span',
	];
	for (const s of sels) {
		const el = document.querySelector(s);
		if (el && el.innerText) return el.innerText;
	}
	return "";
}`

// parsePoints extracts the credit count from the counter's text.
func parsePoints(text string) (int, error) {
	m := digits.FindString(text)
	if m == "" {
		if text == "" {
			return 0, ErrNoPoints
		}
		return 0, errors.New("cannot parse credits: " + text)
	}
	return strconv.Atoi(m)
}

// readPoints polls the page for the credits counter until it shows up or
// wait elapses.
func readPoints(ctx context.Context, tab Tab, wait time.Duration) (int, error) {
	deadline := time.Now().Add(wait)
	for {
		var text string
		err := tab.Run(ctx, chromedp.Evaluate(call(pointsFn), &text))
		if err == nil {
			if n, perr := parsePoints(text); perr == nil {
				return n, nil
			} else if !errors.Is(perr, ErrNoPoints) {
				return 0, perr
			}
		} else if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if time.Now().After(deadline) {
			return 0, ErrNoPoints
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
