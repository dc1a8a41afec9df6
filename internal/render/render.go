package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/ppiankov/prospector/internal/model"
)

// ErrRenderTimeout is returned when a page does not load within its deadline
var ErrRenderTimeout = errors.New("render timeout")

const settleInterval = 300 * time.Millisecond

// Request describes one page to render
type Request struct {
	URL          string
	WaitSelector string
	Timeout      time.Duration
	UserAgent    string
}

// Chrome renders pages in a shared headless Chrome instance.
// The browser starts on first use and lives until Close.
type Chrome struct {
	headless bool
	execPath string
	logger   *slog.Logger

	once        sync.Once
	startErr    error
	browserCtx  context.Context
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
}

// NewChrome creates a renderer from configuration
func NewChrome(cfg model.RenderConfig, logger *slog.Logger) *Chrome {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{
		headless: cfg.Headless,
		execPath: cfg.ExecPath,
		logger:   logger,
	}
}

func (c *Chrome) start() error {
	c.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", c.headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-notifications", true),
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
			chromedp.UserAgent(model.DefaultUserAgents[0]),
		)
		if c.execPath != "" {
			opts = append(opts, chromedp.ExecPath(c.execPath))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, cancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			cancel()
			allocCancel()
			c.startErr = fmt.Errorf("start chrome: %w", err)
			return
		}
		c.browserCtx, c.allocCancel, c.ctxCancel = browserCtx, allocCancel, cancel
		c.logger.Debug("chrome started", "headless", c.headless)
	})
	return c.startErr
}

// Render navigates to req.URL in a fresh tab, waits for the DOM to settle and
// returns the page's outer HTML
func (c *Chrome) Render(ctx context.Context, req Request) (string, error) {
	if err := c.start(); err != nil {
		return "", err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	waitSel := req.WaitSelector
	if waitSel == "" {
		waitSel = "body"
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var actions chromedp.Tasks
	if req.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(req.UserAgent))
	}
	actions = append(actions,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady(waitSel, chromedp.ByQuery),
	)
	if err := chromedp.Run(tabCtx, actions); err != nil {
		return "", renderError(ctx, tabCtx, req.URL, "navigate", err)
	}

	html, err := waitSettled(tabCtx, domSnapshot, settleInterval)
	if err != nil && html == "" {
		return "", renderError(ctx, tabCtx, req.URL, "read DOM", err)
	}
	return html, nil
}

// renderError maps a failed render step: the caller's cancellation wins,
// then the tab deadline becomes ErrRenderTimeout
func renderError(ctx, tabCtx context.Context, rawURL, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", rawURL, ErrRenderTimeout)
	}
	return fmt.Errorf("%s %s: %w", step, rawURL, err)
}

// snapshotFunc reads the current document
type snapshotFunc func(ctx context.Context) (string, error)

func domSnapshot(ctx context.Context) (string, error) {
	var html string
	err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// waitSettled polls the document until its size stops changing between two
// polls. When the deadline hits first, the last snapshot is returned with the error.
func waitSettled(ctx context.Context, snapshot snapshotFunc, interval time.Duration) (string, error) {
	var last string
	for {
		html, err := snapshot(ctx)
		if err != nil {
			return last, err
		}
		if last != "" && len(html) == len(last) {
			return html, nil
		}
		last = html

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Close shuts the browser down
func (c *Chrome) Close() {
	if c.ctxCancel != nil {
		c.ctxCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
}
