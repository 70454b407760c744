package recon

import (
	"time"

	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

// Renderer kinds accepted by Options.Renderer.
const (
	RendererBrowser = "browser"
	RendererStatic  = "static"
)

// Options configures the resolver and the four collectors.
type Options struct {
	DNSServer         string
	DNSTimeout        time.Duration
	ConnectTimeout    time.Duration
	WHOISTimeout      time.Duration
	Renderer          string
	ChromePath        string
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

var (
	_ engine.TargetResolver = TargetResolver{}
	_ engine.DNSFetcher     = (*DNSFetcher)(nil)
	_ engine.TLSFetcher     = (*CertFetcher)(nil)
	_ engine.WHOISAnalyzer  = (*WHOISAnalyzer)(nil)
	_ engine.PageRenderer   = (*BrowserRenderer)(nil)
	_ engine.PageRenderer   = (*StaticRenderer)(nil)
)

// Collectors returns engine stages with the resolver and collectors filled
// in. Guard and Extractor are left for the caller.
func Collectors(opts Options, log logger.Logger) engine.Stages {
	if log == nil {
		log = logger.NewNop()
	}

	return engine.Stages{
		Resolver: TargetResolver{},
		DNS:      NewDNSFetcher(opts.DNSServer, opts.DNSTimeout, log.With(logger.String("collector", "dns"))),
		TLS:      NewCertFetcher(opts.ConnectTimeout, log.With(logger.String("collector", "tls"))),
		WHOIS:    NewWHOISAnalyzer(opts.WHOISTimeout, log.With(logger.String("collector", "whois"))),
		Renderer: newRenderer(opts, log.With(logger.String("collector", "page"))),
	}
}

func newRenderer(opts Options, log logger.Logger) engine.PageRenderer {
	if opts.Renderer == RendererStatic {
		return NewStaticRenderer(opts.UserAgent, opts.NavigationTimeout, log)
	}

	r := NewBrowserRenderer(opts.ChromePath, opts.UserAgent, log)
	if opts.NavigationTimeout > 0 {
		r.NavigationTimeout = opts.NavigationTimeout
	}
	if opts.SettleDelay > 0 {
		r.SettleDelay = opts.SettleDelay
	}
	return r
}
