package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/rahul/autopilot/internal/plan"
	"go.uber.org/zap"
)

const maxExtractBytes = 500_000

// BrowserOptions configures the Chrome instance behind a Browser.
type BrowserOptions struct {
	Headless  bool
	UserAgent string
	Width     int
	Height    int
	// Search resolves Search actions to a result URL when set; otherwise
	// the results page is opened.
	Search *WebSearch
}

// Browser is a Surface backed by one Chrome tab.
type Browser struct {
	mu            sync.Mutex
	opts          BrowserOptions
	logger        *zap.Logger
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser(opts BrowserOptions, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{opts: opts, logger: logger.With(zap.String("component", "browser"))}
}

// NewBrowserFactory opens one Browser per session. Chrome starts lazily on
// the first action.
func NewBrowserFactory(opts BrowserOptions, logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, sessionID string) (Surface, error) {
		return NewBrowser(opts, logger.With(zap.String("session_id", sessionID))), nil
	}
}

func (b *Browser) initBrowser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.Width > 0 && b.opts.Height > 0 {
		opts = append(opts, chromedp.WindowSize(b.opts.Width, b.opts.Height))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			b.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	b.logger.Info("browser started", zap.Bool("headless", b.opts.Headless))
	return b.browserCtx, nil
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts Chrome down. The Browser may be reused; it restarts lazily.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
	return nil
}

// runContext derives a context from the tab that also ends when ctx does.
// Cancelling it aborts the running action without closing the tab.
func (b *Browser) runContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tab, err := b.initBrowser()
	if err != nil {
		return nil, nil, err
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(tab, deadline)
	} else {
		runCtx, cancel = context.WithCancel(tab)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }, nil
}

func (b *Browser) Perform(ctx context.Context, a plan.Action) (Outcome, error) {
	runCtx, cancel, err := b.runContext(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer cancel()

	var out Outcome
	switch a.Kind {
	case plan.KindNavigate:
		out, err = b.navigate(runCtx, a)
	case plan.KindSearch:
		out, err = b.search(runCtx, a)
	case plan.KindClick:
		out, err = b.click(runCtx, a)
	case plan.KindFill:
		out, err = b.fill(runCtx, a)
	case plan.KindWait:
		out, err = b.wait(runCtx, a)
	case plan.KindScroll:
		out, err = b.scroll(runCtx, a)
	case plan.KindExtract:
		out, err = b.extract(runCtx)
	default:
		return Outcome{Reason: fmt.Sprintf("%s is not a page action", a.Kind)}, nil
	}
	if err != nil {
		b.logger.Debug("action failed", zap.String("action", a.String()), zap.Error(err))
		return Outcome{Reason: err.Error()}, nil
	}
	return out, nil
}

func (b *Browser) navigate(ctx context.Context, a plan.Action) (Outcome, error) {
	target := NormalizeURL(a.Value)
	if target == "" {
		target = NormalizeURL(a.Target)
	}
	if target == "" {
		return Outcome{}, fmt.Errorf("no url in %q / %q", a.Target, a.Value)
	}
	if err := chromedp.Run(ctx, chromedp.Navigate(target)); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Reason: "navigated to " + target}, nil
}

func (b *Browser) search(ctx context.Context, a plan.Action) (Outcome, error) {
	query := strings.TrimSpace(a.Value)
	if query == "" {
		query = strings.TrimSpace(a.Target)
	}
	if query == "" {
		return Outcome{}, errors.New("empty search query")
	}
	target := SearchURL(query)
	if b.opts.Search != nil {
		if top, err := b.opts.Search.TopResult(ctx, query); err == nil {
			target = top
		} else {
			b.logger.Debug("search api failed, using results page", zap.Error(err))
		}
	}
	if err := chromedp.Run(ctx, chromedp.Navigate(target)); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Reason: "searched " + query}, nil
}

func (b *Browser) click(ctx context.Context, a plan.Action) (Outcome, error) {
	sel, err := b.resolve(ctx, a.Target, "click")
	if err != nil {
		return Outcome{}, err
	}
	if err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Reason: "clicked " + a.Target}, nil
}

func (b *Browser) fill(ctx context.Context, a plan.Action) (Outcome, error) {
	sel, err := b.resolve(ctx, a.Target, "fill")
	if err != nil {
		return Outcome{}, err
	}
	if err := chromedp.Run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, a.Value, chromedp.ByQuery),
	); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Reason: "filled " + a.Target}, nil
}

func (b *Browser) wait(ctx context.Context, a plan.Action) (Outcome, error) {
	if secs, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64); err == nil && secs > 0 {
		if err := sleep(ctx, time.Duration(secs*float64(time.Second))); err != nil {
			return Outcome{}, err
		}
		return Outcome{Success: true, Reason: fmt.Sprintf("waited %gs", secs)}, nil
	}
	if looksLikeSelector(a.Target) {
		if err := chromedp.Run(ctx, chromedp.WaitVisible(a.Target, chromedp.ByQuery)); err != nil {
			return Outcome{}, err
		}
		return Outcome{Success: true, Reason: "waited for " + a.Target}, nil
	}
	if err := sleep(ctx, time.Second); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Reason: "waited 1s"}, nil
}

func (b *Browser) scroll(ctx context.Context, a plan.Action) (Outcome, error) {
	dir := strings.ToLower(strings.TrimSpace(a.Target))
	if dir == "" {
		dir = strings.ToLower(strings.TrimSpace(a.Value))
	}
	switch dir {
	case "", "down", "page", "page down":
		return Outcome{Success: true, Reason: "scrolled down"},
			chromedp.Run(ctx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8)`, nil))
	case "up", "page up":
		return Outcome{Success: true, Reason: "scrolled up"},
			chromedp.Run(ctx, chromedp.Evaluate(`window.scrollBy(0, -window.innerHeight * 0.8)`, nil))
	case "bottom":
		return Outcome{Success: true, Reason: "scrolled to bottom"},
			chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
	}
	sel, err := b.resolve(ctx, a.Target, "click")
	if err != nil {
		return Outcome{}, err
	}
	if err := chromedp.Run(ctx, chromedp.ScrollIntoView(sel, chromedp.ByQuery)); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Reason: "scrolled to " + a.Target}, nil
}

func (b *Browser) extract(ctx context.Context) (Outcome, error) {
	html, err := outerHTML(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(html) > maxExtractBytes {
		html = html[:maxExtractBytes]
	}
	return Outcome{Success: true, Reason: fmt.Sprintf("extracted %d bytes", len(html)), Data: html}, nil
}

// Snapshot reads the current document and summarises it.
func (b *Browser) Snapshot(ctx context.Context) (Snapshot, error) {
	runCtx, cancel, err := b.runContext(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer cancel()

	var location string
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return Snapshot{}, err
	}
	html, err := outerHTML(runCtx)
	if err != nil {
		return Snapshot{}, err
	}
	return SummarizePage(html, location)
}

func outerHTML(ctx context.Context) (string, error) {
	var html string
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	return html, err
}

// resolve turns a target into a CSS selector that matches exactly one
// element. CSS targets are used as-is when they match; anything else is
// treated as a human description and matched against element labels.
func (b *Browser) resolve(ctx context.Context, target, mode string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("empty target")
	}
	if looksLikeSelector(target) {
		var found bool
		js := fmt.Sprintf(`(function(){try{return !!document.querySelector(%s)}catch(e){return false}})()`, jsString(target))
		if err := chromedp.Run(ctx, chromedp.Evaluate(js, &found)); err != nil {
			return "", err
		}
		if found {
			return target, nil
		}
	}
	if first := firstResultSelector(target); first != "" {
		return first, nil
	}

	var sel string
	js := fmt.Sprintf(resolveJS, jsString(target), jsString(mode))
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &sel)); err != nil {
		return "", err
	}
	if sel == "" {
		return "", fmt.Errorf("no element matches %q", target)
	}
	return sel, nil
}

func firstResultSelector(target string) string {
	t := strings.ToLower(target)
	if strings.Contains(t, "first") && (strings.Contains(t, "result") || strings.Contains(t, "link")) {
		return `#search a:has(h3), a.result__a, main a[href^="http"]`
	}
	return ""
}

func looksLikeSelector(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[0] {
	case '#', '.', '[':
		return true
	}
	if strings.ContainsAny(s, "[>=") {
		return true
	}
	switch strings.ToLower(s) {
	case "input", "button", "textarea", "select", "form", "a":
		return true
	}
	return false
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// resolveJS scores visible candidates by how well their label matches the
// target and tags the winner with a unique attribute.
const resolveJS = `(function(target, mode){
	const norm = s => (s || '').replace(/\s+/g, ' ').trim().toLowerCase();
	const want = norm(target).replace(/^(the|a|an)\s+/, '').replace(/\s+(button|link|field|input|icon|tab)$/, '');
	const visible = el => {
		const r = el.getBoundingClientRect();
		const st = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
	};
	const query = mode === 'fill'
		? 'input:not([type=hidden]), textarea, [contenteditable="true"], [role="textbox"], [role="combobox"]'
		: 'a, button, [role="button"], [role="link"], [role="tab"], [role="menuitem"], [role="option"], input[type="submit"], input[type="button"], [onclick], li, span, div';
	const words = want.split(' ').filter(w => w.length > 2);
	let best = null, bestScore = 0;
	for (const el of document.querySelectorAll(query)) {
		if (!visible(el)) continue;
		const label = norm([el.getAttribute('aria-label'), el.getAttribute('placeholder'), el.getAttribute('title'),
			el.getAttribute('name'), mode === 'fill' ? '' : el.innerText].join(' '));
		if (!label) continue;
		let score = 0;
		if (label === want) {
			score = 100;
		} else if (label.includes(want)) {
			score = 60 - Math.min(label.length / 20, 40);
		} else if (words.length) {
			const hits = words.filter(w => label.includes(w)).length;
			score = 30 * hits / words.length;
		}
		if (score > bestScore) { bestScore = score; best = el; }
	}
	if (!best) return '';
	const ref = 'ap-' + Math.random().toString(36).slice(2, 10);
	best.setAttribute('data-autopilot-ref', ref);
	return '[data-autopilot-ref="' + ref + '"]';
})(%s, %s)`
