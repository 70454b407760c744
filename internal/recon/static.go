package recon

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

const (
	staticMaxBody      = 2 * 1024 * 1024
	staticMaxRedirects = 5
)

// StaticRenderer implements engine.PageRenderer with a plain HTTP GET. It
// sees only server-rendered markup and is meant for hosts without Chrome.
type StaticRenderer struct {
	UserAgent string
	Log       logger.Logger
	client    *http.Client
}

// NewStaticRenderer returns a renderer whose requests time out after timeout.
func NewStaticRenderer(userAgent string, timeout time.Duration, log logger.Logger) *StaticRenderer {
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &StaticRenderer{
		UserAgent: userAgent,
		Log:       log,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= staticMaxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Render fetches pageURL and extracts its content. Any failure yields nil.
func (r *StaticRenderer) Render(ctx context.Context, pageURL string) *engine.RenderedPage {
	page, err := r.fetch(ctx, pageURL)
	if err != nil {
		r.Log.Warn("Static page fetch failed",
			logger.String("url", pageURL),
			logger.Error(err),
		)
		return nil
	}
	return page
}

func (r *StaticRenderer) fetch(ctx context.Context, pageURL string) (*engine.RenderedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, staticMaxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return ExtractStaticPage(finalURL, string(body))
}
