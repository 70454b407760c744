package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrAnalysisFailed is wrapped by Run when no insight could be produced.
var ErrAnalysisFailed = errors.New("analysis failed")

// Config holds the runtime configuration for one analysis.
type Config struct {
	TLSPort        int
	CollectTimeout time.Duration
}

// Stages holds the injectable stage implementations.
type Stages struct {
	Resolver  TargetResolver
	DNS       DNSFetcher
	TLS       TLSFetcher
	WHOIS     WHOISAnalyzer
	Renderer  PageRenderer
	Guard     TokenGuard
	Extractor InsightExtractor
}

// ProgressReporter is called by the engine to report stage progress.
type ProgressReporter interface {
	Stage(num, total int, msg string)
	Detail(msg string)
	Warn(msg string)
}

// NopProgress discards progress output.
type NopProgress struct{}

func (NopProgress) Stage(int, int, string) {}
func (NopProgress) Detail(string)          {}
func (NopProgress) Warn(string)            {}

const totalStages = 5

// Run executes the full analysis pipeline for rawURL. Collector failures
// degrade the evidence and never fail the run. When extraction fails the
// report is still returned, in state failed, together with an error wrapping
// ErrAnalysisFailed.
func Run(ctx context.Context, cfg Config, stages Stages, progress ProgressReporter, rawURL string) (*Report, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	report := &Report{
		URL:       rawURL,
		State:     StateIdle,
		States:    []State{StateIdle},
		StartedAt: time.Now(),
	}

	// Stage 1: Target resolution.
	mustAdvance(report, StateResolving)
	progress.Stage(1, totalStages, "Resolving target...")
	target, err := stages.Resolver.Resolve(rawURL)
	if err != nil {
		progress.Warn(fmt.Sprintf("Could not derive domain from %q: %s", rawURL, err))
	}
	report.Domain = target.Domain
	report.Host = target.Host
	progress.Detail(fmt.Sprintf("domain=%s host=%s", displayOrDash(target.Domain), displayOrDash(target.Host)))

	// Stage 2: Evidence collection.
	mustAdvance(report, StateCollecting)
	progress.Stage(2, totalStages, "Collecting DNS, TLS, WHOIS and page evidence...")
	report.Evidence = collect(ctx, cfg, stages, target, rawURL)
	reportEvidence(progress, report.Evidence)

	// Stage 3: Aggregation.
	mustAdvance(report, StateAggregating)
	progress.Stage(3, totalStages, "Aggregating evidence...")
	text := BuildEvidenceText(rawURL, report.Evidence)
	progress.Detail(fmt.Sprintf("Evidence text is %d bytes", len(text)))

	// Stage 4: Token budget.
	mustAdvance(report, StateTruncating)
	progress.Stage(4, totalStages, "Applying token budget...")
	text, report.TokenCount, report.Truncated = stages.Guard.Truncate(text)
	if report.Truncated {
		progress.Warn(fmt.Sprintf("Evidence truncated to %d tokens", report.TokenCount))
	} else {
		progress.Detail(fmt.Sprintf("%d tokens, within budget", report.TokenCount))
	}

	// Stage 5: Insight extraction.
	mustAdvance(report, StateExtracting)
	progress.Stage(5, totalStages, "Extracting phishing insight...")
	insight, err := stages.Extractor.Extract(ctx, text)
	switch {
	case err != nil:
		return fail(report, err.Error())
	case insight == nil:
		return fail(report, "model returned no insight")
	}

	report.Insight = insight
	mustAdvance(report, StateSucceeded)
	progress.Detail(fmt.Sprintf("Likelihood %s, threat score %d", insight.Likelihood, insight.ThreatScore))
	finish(report)
	return report, nil
}

// collect runs the four collectors concurrently and joins them.
func collect(ctx context.Context, cfg Config, stages Stages, target Target, rawURL string) Evidence {
	if cfg.CollectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CollectTimeout)
		defer cancel()
	}

	var ev Evidence
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev.DNS = stages.DNS.FetchDNS(gctx, target.Domain)
		return nil
	})
	g.Go(func() error {
		ev.TLS = stages.TLS.FetchTLS(gctx, target.Host, cfg.TLSPort)
		return nil
	})
	g.Go(func() error {
		ev.WHOIS = stages.WHOIS.AnalyzeWHOIS(gctx, target.Domain)
		return nil
	})
	g.Go(func() error {
		ev.Page = stages.Renderer.Render(gctx, rawURL)
		return nil
	})
	_ = g.Wait()

	if ev.DNS == nil {
		ev.DNS = DNSEvidence{}
	}
	return ev
}

func reportEvidence(progress ProgressReporter, ev Evidence) {
	progress.Detail(fmt.Sprintf("DNS: %d A, %d CNAME", len(ev.DNS["A"]), len(ev.DNS["CNAME"])))
	if ev.TLS.Error != "" {
		progress.Warn("TLS: " + ev.TLS.Error)
	} else if ev.TLS.Certificate != nil {
		progress.Detail("TLS: certificate expires " + ev.TLS.Certificate.ExpirationDate)
	}
	if ev.WHOIS.ErrorMessage != "" {
		progress.Warn("WHOIS: " + ev.WHOIS.ErrorMessage)
	} else if ev.WHOIS.DomainAgeInDays != nil {
		progress.Detail(fmt.Sprintf("WHOIS: domain is %d days old", *ev.WHOIS.DomainAgeInDays))
	}
	if ev.Page == nil {
		progress.Warn("Page: rendering failed, continuing without page content")
	} else {
		progress.Detail(fmt.Sprintf("Page: %d forms, %d links, %d scripts",
			len(ev.Page.FormsAndActions), len(ev.Page.Links), len(ev.Page.Scripts)))
	}
}

func fail(report *Report, reason string) (*Report, error) {
	report.FailureReason = reason
	mustAdvance(report, StateFailed)
	finish(report)
	return report, fmt.Errorf("%w: %s", ErrAnalysisFailed, reason)
}

func finish(report *Report) {
	report.CompletedAt = time.Now()
	report.DurationSecs = report.CompletedAt.Sub(report.StartedAt).Seconds()
}

// mustAdvance panics on a transition Run itself never makes.
func mustAdvance(report *Report, next State) {
	if err := report.advance(next); err != nil {
		panic(err)
	}
}

func displayOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Pipeline binds a configuration and stage set for repeated analyses.
type Pipeline struct {
	cfg      Config
	stages   Stages
	progress ProgressReporter
}

// NewPipeline returns a Pipeline. A nil progress reporter discards progress.
func NewPipeline(cfg Config, stages Stages, progress ProgressReporter) *Pipeline {
	if progress == nil {
		progress = NopProgress{}
	}
	return &Pipeline{cfg: cfg, stages: stages, progress: progress}
}

// Analyze runs the pipeline for rawURL.
func (p *Pipeline) Analyze(ctx context.Context, rawURL string) (*Report, error) {
	return Run(ctx, p.cfg, p.stages, p.progress, rawURL)
}
