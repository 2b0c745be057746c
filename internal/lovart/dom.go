package lovart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Test ids and selectors of the target site's canvas page.
const (
	tidVideoMenu      = "generate-menu-video"
	tidImageMenu      = "generate-menu-image"
	tidModelButton    = "generator-model-button"
	tidVideoModel     = "generator-model-option-vidu/vidu-q2"
	tidCountButton    = "generator-count-button"
	tidReferenceBtn   = "generator-image-reference-button"
	tidUploadLocal    = "generator-image-reference-option-uploadImageFromLocal"
	tidPromptInput    = "generator-prompt-input"
	tidGenerateButton = "generator-generate-button"

	selFileInput  = `input[type="file"]`
	selEmailInput = `input[type="email"], input[placeholder*="邮箱"]`
	selPinInput   = `.mantine-PinInput-input`
)

var (
	textRegister    = []string{"注册", "Sign up"}
	textGetCode     = []string{"使用邮箱继续", "获取验证码", "Get Code"}
	textSkipOffer   = []string{"Skip for now"}
	textStartFrame  = []string{"起始", "Start"}
	textCloseDialog = []string{"关闭", "Close", "稍后", "Later"}
)

func byTestID(id string) string {
	return `[data-testid="` + id + `"]`
}

// within bounds actions by d.
func within(d time.Duration, actions ...chromedp.Action) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return chromedp.Tasks(actions).Do(ctx)
	})
}

// clickVisible waits up to d for sel and clicks it.
func clickVisible(sel string, d time.Duration) chromedp.Action {
	return within(d,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
}

const clickTextFn = `(sel, texts) => {
	for (const el of document.querySelectorAll(sel)) {
		if (!el.offsetParent) continue;
		const t = (el.innerText || "").trim();
		if (texts.some(x => t.includes(x))) { el.click(); return true; }
	}
	return false;
}`

// clickText clicks the first visible element matching sel whose text
// contains any of texts. clicked reports whether one was found.
func clickText(sel string, texts []string, clicked *bool) chromedp.Action {
	return chromedp.Evaluate(call(clickTextFn, sel, texts), clicked)
}

const visibleFn = `(sel) => {
	const el = document.querySelector(sel);
	return !!(el && el.offsetParent);
}`

func isVisible(sel string, visible *bool) chromedp.Action {
	return chromedp.Evaluate(call(visibleFn, sel), visible)
}

// call renders a JS function invocation with JSON-encoded arguments.
func call(fn string, args ...any) string {
	enc := make([]byte, 0, 64)
	for i, a := range args {
		b, _ := json.Marshal(a)
		if i > 0 {
			enc = append(enc, ',')
		}
		enc = append(enc, b...)
	}
	return fmt.Sprintf("(%s)(%s)", fn, enc)
}

// typeInto focuses sel and types text.
func typeInto(sel, text string, d time.Duration) chromedp.Action {
	return within(d,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
}
