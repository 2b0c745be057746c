package lovart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/protocol"
)

const stepTimeout = 10 * time.Second

// Executor runs generations on ready sessions. Each method returns a
// pool.TaskFunc to be executed on the session's actor.
type Executor struct {
	opts   Options
	logger *slog.Logger
}

func NewExecutor(opts Options, logger *slog.Logger) *Executor {
	if opts.ResultWait <= 0 {
		opts.ResultWait = 300 * time.Second
	}
	return &Executor{opts: opts, logger: logger}
}

// step is one named stage of a generation.
type step struct {
	name    string
	actions []chromedp.Action
}

// Video generates a clip from a start frame and a prompt.
func (e *Executor) Video(req protocol.VideoRequest) pool.TaskFunc {
	return func(ctx context.Context, page pool.Page) protocol.Result {
		tab, ok := page.(Tab)
		if !ok {
			return protocol.Failure("session page does not support automation", nil)
		}
		points, res, ok := e.prepare(ctx, tab)
		if !ok {
			return res
		}

		var offered bool
		steps := []step{
			{"open video generator", []chromedp.Action{clickVisible(byTestID(tidVideoMenu), stepTimeout)}},
			{"select model", []chromedp.Action{
				clickVisible(byTestID(tidModelButton), stepTimeout),
				chromedp.ScrollIntoView(byTestID(tidVideoModel), chromedp.ByQuery),
				clickVisible(byTestID(tidVideoModel), stepTimeout),
			}},
			{"select duration", []chromedp.Action{
				clickVisible(byTestID(tidCountButton), stepTimeout),
				clickText("div.flex.flex-wrap.items-center.gap-2 button", []string{req.Duration}, &offered),
				chromedp.KeyEvent(kb.Escape),
			}},
			{"upload start frame", []chromedp.Action{
				clickText("span.lovart-menu-popover", textStartFrame, &offered),
				within(stepTimeout, chromedp.WaitVisible(byTestID(tidUploadLocal), chromedp.ByQuery)),
				chromedp.SetUploadFiles(selFileInput, []string{req.StartFramePath}, chromedp.ByQuery),
			}},
			{"enter prompt", []chromedp.Action{typeInto(byTestID(tidPromptInput), req.Prompt, stepTimeout)}},
		}
		data := map[string]any{"points": points, "duration": req.Duration, "start_frame_image_path": req.StartFramePath}
		if res, ok := e.runSteps(ctx, tab, steps, data); !ok {
			return res
		}

		got, res, ok := e.generate(ctx, tab, protocol.TaskVideo, data)
		if !ok {
			return res
		}
		data["video_url"] = got.URL
		if got.Cover != "" {
			data["cover_url"] = got.Cover
		}
		return protocol.Success("video generated", data)
	}
}

// Image generates a picture from a prompt and optional reference images.
func (e *Executor) Image(req protocol.ImageRequest) pool.TaskFunc {
	return func(ctx context.Context, page pool.Page) protocol.Result {
		tab, ok := page.(Tab)
		if !ok {
			return protocol.Failure("session page does not support automation", nil)
		}
		points, res, ok := e.prepare(ctx, tab)
		if !ok {
			return res
		}

		refs := imageRefs(req)
		var clicked bool
		steps := []step{
			{"dismiss offer", []chromedp.Action{clickText("button", textSkipOffer, &clicked)}},
			{"open image generator", []chromedp.Action{clickVisible(byTestID(tidImageMenu), stepTimeout)}},
		}
		if len(refs) > 0 {
			steps = append(steps, step{"upload reference images", []chromedp.Action{
				clickVisible(byTestID(tidReferenceBtn), stepTimeout),
				chromedp.SetUploadFiles(selFileInput, refs, chromedp.ByQuery),
			}})
		}
		steps = append(steps,
			step{"select resolution and ratio", []chromedp.Action{
				clickText("button", []string{req.Resolution}, &clicked),
				clickText("button", []string{req.Ratio}, &clicked),
				chromedp.KeyEvent(kb.Escape),
			}},
			step{"enter prompt", []chromedp.Action{typeInto(byTestID(tidPromptInput), req.Prompt, stepTimeout)}},
		)
		data := map[string]any{
			"points":     points,
			"resolution": req.Resolution,
			"ratio":      req.Ratio,
		}
		if req.StartFramePath != "" {
			data["start_frame_image_path"] = req.StartFramePath
		}
		if res, ok := e.runSteps(ctx, tab, steps, data); !ok {
			return res
		}

		got, res, ok := e.generate(ctx, tab, protocol.TaskImage, data)
		if !ok {
			return res
		}
		data["image_url"] = got.URL
		return protocol.Success("image generated", data)
	}
}

// imageRefs lists the start frame first, then the remaining assets once each.
func imageRefs(req protocol.ImageRequest) []string {
	var refs []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			refs = append(refs, p)
		}
	}
	add(req.StartFramePath)
	for _, p := range req.AssetPaths {
		add(p)
	}
	return refs
}

// prepare opens the canvas and checks credits. ok is false when res
// should be returned as is.
func (e *Executor) prepare(ctx context.Context, tab Tab) (points int, res protocol.Result, ok bool) {
	var loc string
	if err := tab.Run(ctx, e.opts.viewport(), chromedp.Location(&loc)); err != nil {
		return 0, protocol.Failure("browser session unavailable: "+err.Error(), nil), false
	}
	if !strings.HasPrefix(loc, e.opts.canvasURL()) {
		if err := tab.Run(ctx, chromedp.Navigate(e.opts.canvasURL())); err != nil {
			return 0, protocol.Failure("open canvas: "+err.Error(), nil), false
		}
	}

	points, err := readPoints(ctx, tab, stepTimeout)
	if err != nil {
		return 0, protocol.Failure("read credits: "+err.Error(), nil), false
	}
	if points < e.opts.MinPoints {
		e.logger.Info("session is low on credits", "points", points, "min", e.opts.MinPoints)
		return points, protocol.LowBalanceFailure(points), false
	}
	return points, protocol.Result{}, true
}

func (e *Executor) runSteps(ctx context.Context, tab Tab, steps []step, data map[string]any) (protocol.Result, bool) {
	for _, s := range steps {
		if err := tab.Run(ctx, s.actions...); err != nil {
			e.logger.Warn("generation step failed", "step", s.name, "error", err)
			return protocol.Failure(fmt.Sprintf("%s: %v", s.name, err), data), false
		}
	}
	return protocol.Result{}, true
}

// generate clicks the generate button and waits for the result URL on the
// network.
func (e *Executor) generate(ctx context.Context, tab Tab, kind protocol.TaskKind, data map[string]any) (captured, protocol.Result, bool) {
	listenCtx, stop := context.WithCancel(tab.Context())
	defer stop()
	c := newCapture(kind)
	c.listen(listenCtx)
	c.arm()

	if err := tab.Run(ctx, clickVisible(byTestID(tidGenerateButton), stepTimeout)); err != nil {
		return captured{}, protocol.Failure("click generate: "+err.Error(), data), false
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ResultWait)
	defer cancel()
	got, ok := c.wait(waitCtx)
	if !ok {
		var loc string
		_ = tab.Run(context.WithoutCancel(ctx), chromedp.Location(&loc))
		data["current_url"] = loc
		return captured{}, protocol.Failure(fmt.Sprintf("no %s result captured within %s", kind, e.opts.ResultWait), data), false
	}
	return got, protocol.Result{}, true
}
