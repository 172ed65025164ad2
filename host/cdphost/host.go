// Package cdphost runs the bridge against a real browser tab over the Chrome
// DevTools Protocol.
//
// Snippets are evaluated in the page with Runtime.evaluate. The page cannot
// see native memory, so a prelude installed before any document script gives
// it the host contract: text arguments are decoded natively and sent along
// with the call, string results and out-parameter writes come back with the
// result, and dynCall publishes through a runtime binding. Binding events are
// posted to the host loop and run on the goroutine driving RunLoop or Pump.
package cdphost

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/errors"
)

// documentURL is where an inline document is served from. Requests to it
// never leave the browser; they are fulfilled from Options.HTML.
const documentURL = "http://webplatform.invalid/"

// Options configures a Host.
type Options struct {
	// RemoteURL is the DevTools WebSocket endpoint of a running browser. If
	// empty, a local Chrome is launched.
	RemoteURL string

	// Headless controls whether a locally launched Chrome runs headless.
	Headless bool

	// Timeout bounds startup and every protocol round trip. Zero means 30s.
	Timeout time.Duration

	// URL is the page to open. If empty, HTML is served instead.
	URL string

	// HTML is the document served when URL is empty. Empty means a blank
	// page.
	HTML string

	// Logger receives console output and diagnostics. Nil means no logging.
	Logger *zap.Logger

	// OnAlert, if set, is called with every alert message.
	OnAlert func(msg string)
}

// evaluator runs expr in the page and decodes its JSON value into res.
type evaluator func(ctx context.Context, expr string, res any) error

// Host implements bridge.Host over a browser tab.
type Host struct {
	rt       *bridge.Runtime
	loop     *bridge.Loop
	logger   *zap.Logger
	evaluate evaluator
	timeout  time.Duration
	html     string
	onAlert  func(string)

	// ctx is the context of the loop in progress, handed to native
	// callbacks.
	ctx     context.Context
	defined map[bridge.SnippetID]bool
	alerts  []string

	tab     context.Context
	cancels []context.CancelFunc
	once    sync.Once
}

var _ bridge.Host = (*Host)(nil)

func newHost(rt *bridge.Runtime, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	html := opts.HTML
	if html == "" {
		html = "<!DOCTYPE html><html><head></head><body></body></html>"
	}
	return &Host{
		rt:      rt,
		loop:    bridge.NewLoop(logger),
		logger:  logger.Named("cdphost"),
		timeout: timeout,
		html:    html,
		onAlert: opts.OnAlert,
		ctx:     context.Background(),
		defined: make(map[bridge.SnippetID]bool),
	}
}

// New starts or connects to a browser, opens a tab with the prelude
// installed and navigates it. ctx bounds startup only.
func New(ctx context.Context, rt *bridge.Runtime, opts Options) (*Host, error) {
	h := newHost(rt, opts)

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
		h.logger.Info("connecting to remote browser", zap.String("url", opts.RemoteURL))
	} else {
		execOpts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(execOpts, chromedp.DefaultExecAllocatorOptions[:])
		execOpts = append(execOpts,
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
		h.logger.Info("launching local browser", zap.Bool("headless", opts.Headless))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	h.tab = tabCtx
	h.cancels = []context.CancelFunc{tabCancel, browserCancel, allocCancel}
	h.evaluate = h.evaluateInTab

	// The first Run binds the tab to tabCtx, so it must not run under a
	// derived context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			h.Close()
			return nil, errors.Wrap(errors.PhaseInit, errors.KindTransport, err, "start browser")
		}
	case <-time.After(h.timeout):
		h.Close()
		return nil, errors.New(errors.PhaseInit, errors.KindTransport).
			Detail("start browser: timed out after %v", h.timeout).
			Build()
	case <-ctx.Done():
		h.Close()
		return nil, ctx.Err()
	}

	chromedp.ListenTarget(tabCtx, h.onEvent)

	target := opts.URL
	setup := []chromedp.Action{
		runtime.Enable(),
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(prelude).Do(ctx)
			return err
		}),
	}
	if target == "" {
		target = documentURL
		setup = append(setup, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   documentURL + "*",
			RequestStage: fetch.RequestStageRequest,
		}}))
	}
	setup = append(setup, chromedp.Navigate(target), chromedp.WaitReady("body", chromedp.ByQuery))

	if err := h.run(ctx, setup...); err != nil {
		h.Close()
		return nil, errors.Wrap(errors.PhaseInit, errors.KindTransport, err, "open "+target)
	}
	h.logger.Info("page ready", zap.String("url", target))
	return h, nil
}

// Close shuts the tab and, for a launched browser, the browser.
func (h *Host) Close() {
	h.once.Do(func() {
		for _, cancel := range h.cancels {
			cancel()
		}
	})
}

// run executes actions on the tab, bounded by the host timeout and by ctx.
func (h *Host) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(h.tab, h.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

func (h *Host) evaluateInTab(ctx context.Context, expr string, res any) error {
	return h.run(ctx, chromedp.Evaluate(expr, res))
}

// Call evaluates the snippet in the page.
func (h *Host) Call(ctx context.Context, s *bridge.Snippet, args []bridge.Slot) (bridge.Slot, error) {
	texts, err := decodeTexts(h.rt.Memory, s, args)
	if err != nil {
		return 0, err
	}
	expr, err := callExpression(s, args, texts, !h.defined[s.ID()])
	if err != nil {
		return 0, errors.Wrap(errors.PhaseInvoke, errors.KindInvalidInput, err, s.Name())
	}

	var res callResult
	if err := h.evaluate(ctx, expr, &res); err != nil {
		var exc *runtime.ExceptionDetails
		if stderrors.As(err, &exc) {
			return 0, errors.HostException(s.Name(), err)
		}
		return 0, errors.Wrap(errors.PhaseHost, errors.KindTransport, err, "evaluate "+s.Name())
	}
	h.defined[s.ID()] = true
	if res.Error != "" {
		return 0, errors.HostException(s.Name(), stderrors.New(res.Error))
	}
	return apply(h.rt, s.Name(), res)
}

// RunLoop runs the host loop, ticking through the export at tick. Binding
// events are delivered between ticks.
func (h *Host) RunLoop(ctx context.Context, tick bridge.FuncPtr, fps int) error {
	prev := h.ctx
	h.ctx = ctx
	defer func() { h.ctx = prev }()

	return h.loop.Run(ctx, fps, func() error {
		_, err := h.rt.Exports.Invoke(ctx, tick, "v", nil)
		return err
	})
}

// PauseLoop stops the loop after the current tick.
func (h *Host) PauseLoop() {
	h.loop.Pause()
}

// Loop returns the host's loop.
func (h *Host) Loop() *bridge.Loop { return h.loop }

// Pump delivers pending binding events outside of RunLoop and returns how
// many ran.
func (h *Host) Pump() int { return h.loop.Drain() }

// Alerts returns every alert message delivered so far.
func (h *Host) Alerts() []string {
	return append([]string(nil), h.alerts...)
}

// Eval evaluates expr in the page and decodes its value into res, which may
// be nil.
func (h *Host) Eval(ctx context.Context, expr string, res any) error {
	return h.evaluate(ctx, expr, res)
}

// Fire dispatches a bubbling event of type typ at the first element matching
// selector.
func (h *Host) Fire(ctx context.Context, selector, typ string) error {
	var found bool
	expr := fmt.Sprintf(`(function () {
	var el = document.querySelector(%s);
	if (!el) return false;
	el.dispatchEvent(new Event(%s, {bubbles: true}));
	return true;
})()`, quote(selector), quote(typ))
	if err := h.evaluate(ctx, expr, &found); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindTransport, err, "fire "+typ)
	}
	if !found {
		return errors.New(errors.PhaseHost, errors.KindNotFound).
			Path(selector).
			Detail("no element matches").
			Build()
	}
	return nil
}

// Click sends a real mouse click to the first element matching selector.
func (h *Host) Click(ctx context.Context, selector string) error {
	return h.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// SetHash changes location.hash. The page fires hashchange itself.
func (h *Host) SetHash(ctx context.Context, hash string) error {
	return h.evaluate(ctx, "location.hash = "+quote(hash), nil)
}

// Render returns the serialised document.
func (h *Host) Render(ctx context.Context) (string, error) {
	var out string
	if err := h.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

// onEvent receives every protocol event for the tab. It runs on the
// connection's goroutine and must not block or issue commands inline.
func (h *Host) onEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name == bindingName {
			h.onBinding(e.Payload)
		}
	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			if len(a.Value) > 0 {
				parts = append(parts, string(a.Value))
			} else {
				parts = append(parts, a.Description)
			}
		}
		h.logger.Info("console", zap.String("level", string(e.Type)), zap.String("message", strings.Join(parts, " ")))
	case *fetch.EventRequestPaused:
		go h.fulfill(e)
	}
}

// onBinding posts a page message to the loop.
func (h *Host) onBinding(payload string) {
	msg, err := parseMessage(payload)
	if err != nil {
		h.logger.Warn("bad binding payload", zap.String("payload", payload), zap.Error(err))
		return
	}
	switch msg.Kind {
	case "call":
		args := make([]bridge.Slot, len(msg.Args))
		for i, a := range msg.Args {
			args[i] = bridge.Slot(a)
		}
		h.loop.Post(func() {
			if _, err := h.rt.Exports.Invoke(h.ctx, bridge.FuncPtr(msg.Fn), bridge.Signature(msg.Sig), args); err != nil {
				h.logger.Warn("native call from page failed", zap.Int32("fn", msg.Fn), zap.String("sig", msg.Sig), zap.Error(err))
			}
		})
	case "alert":
		h.loop.Post(func() {
			h.alerts = append(h.alerts, msg.Message)
			h.logger.Info("alert", zap.String("message", msg.Message))
			if h.onAlert != nil {
				h.onAlert(msg.Message)
			}
		})
	default:
		h.logger.Warn("unknown binding message", zap.String("kind", msg.Kind))
	}
}

// fulfill answers a request for the inline document. Anything else under
// documentURL, such as the favicon, is refused.
func (h *Host) fulfill(e *fetch.EventRequestPaused) {
	var action chromedp.Action
	if e.Request.URL == documentURL {
		action = fetch.FulfillRequest(e.RequestID, 200).
			WithResponseHeaders([]*fetch.HeaderEntry{{Name: "Content-Type", Value: "text/html; charset=utf-8"}}).
			WithBody(base64.StdEncoding.EncodeToString([]byte(h.html)))
	} else {
		action = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient)
	}
	if err := chromedp.Run(h.tab, action); err != nil {
		h.logger.Warn("answer request", zap.String("url", e.Request.URL), zap.Error(err))
	}
}
