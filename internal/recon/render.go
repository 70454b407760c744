package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = 5 * time.Second
)

// BrowserRenderer implements engine.PageRenderer with a headless Chrome
// process per call.
type BrowserRenderer struct {
	ExecPath          string // empty finds Chrome on PATH
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Log               logger.Logger
}

// NewBrowserRenderer returns a renderer with default timeouts.
func NewBrowserRenderer(execPath, userAgent string, log logger.Logger) *BrowserRenderer {
	if log == nil {
		log = logger.NewNop()
	}
	return &BrowserRenderer{
		ExecPath:          execPath,
		UserAgent:         userAgent,
		NavigationTimeout: defaultNavigationTimeout,
		SettleDelay:       defaultSettleDelay,
		Log:               log,
	}
}

// Render loads pageURL, waits for the settle delay and snapshots the page.
// Any failure is logged and yields nil. The browser is shut down on return.
func (r *BrowserRenderer) Render(ctx context.Context, pageURL string) *engine.RenderedPage {
	page, err := r.render(ctx, pageURL)
	if err != nil {
		r.Log.Warn("Page rendering failed",
			logger.String("url", pageURL),
			logger.Error(err),
		)
		return nil
	}
	return page
}

func (r *BrowserRenderer) render(ctx context.Context, pageURL string) (*engine.RenderedPage, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if r.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.UserAgent))
	}
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	navTimeout := r.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, cancelNav := context.WithTimeout(browserCtx, navTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(pageURL))
	cancelNav()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("navigation to %s timed out after %s", pageURL, navTimeout)
		}
		return nil, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}

	var title, text, outer, location string
	snapCtx, cancelSnap := context.WithTimeout(browserCtx, r.SettleDelay+navTimeout)
	defer cancelSnap()
	err = chromedp.Run(snapCtx,
		chromedp.Sleep(r.SettleDelay),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &outer),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", pageURL, err)
	}
	if location == "" {
		location = pageURL
	}

	return ExtractPage(location, title, text, outer)
}
