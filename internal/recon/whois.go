package recon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

const defaultWHOISTimeout = 15 * time.Second

// WHOISQueryFunc returns the raw WHOIS response for a domain.
type WHOISQueryFunc func(ctx context.Context, domain string) (string, error)

// WHOISAnalyzer implements engine.WHOISAnalyzer.
type WHOISAnalyzer struct {
	Query WHOISQueryFunc
	Now   func() time.Time
	Log   logger.Logger
}

// NewWHOISAnalyzer returns an analyzer that queries the registry WHOIS
// servers directly with the given timeout.
func NewWHOISAnalyzer(timeout time.Duration, log logger.Logger) *WHOISAnalyzer {
	if timeout <= 0 {
		timeout = defaultWHOISTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WHOISAnalyzer{
		Query: registryQuery(timeout),
		Now:   time.Now,
		Log:   log,
	}
}

// registryQuery wraps the blocking whois client so it honours ctx.
func registryQuery(timeout time.Duration) WHOISQueryFunc {
	client := whois.NewClient().SetTimeout(timeout)
	return func(ctx context.Context, domain string) (string, error) {
		type reply struct {
			raw string
			err error
		}
		ch := make(chan reply, 1)
		go func() {
			raw, err := client.Whois(domain)
			ch <- reply{raw: raw, err: err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-ch:
			return r.raw, r.err
		}
	}
}

// AnalyzeWHOIS derives domain age, registrar and registrant country. Any
// failure produces evidence carrying only ErrorMessage.
func (a *WHOISAnalyzer) AnalyzeWHOIS(ctx context.Context, domain string) engine.WHOISEvidence {
	ev, err := a.analyze(ctx, domain)
	if err != nil {
		a.Log.Warn("WHOIS analysis failed",
			logger.String("domain", domain),
			logger.Error(err),
		)
		return engine.WHOISEvidence{ErrorMessage: err.Error()}
	}
	return ev
}

func (a *WHOISAnalyzer) analyze(ctx context.Context, domain string) (engine.WHOISEvidence, error) {
	if domain == "" {
		return engine.WHOISEvidence{}, errors.New("no domain to look up")
	}

	raw, err := a.Query(ctx, domain)
	if err != nil {
		return engine.WHOISEvidence{}, fmt.Errorf("whois query %s: %w", domain, err)
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return parseWHOIS(raw, now())
}

// parseWHOIS extracts the evidence fields from a raw WHOIS response.
func parseWHOIS(raw string, now time.Time) (engine.WHOISEvidence, error) {
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return engine.WHOISEvidence{}, fmt.Errorf("parse whois response: %w", err)
	}

	var ev engine.WHOISEvidence
	if info.Domain != nil {
		if created, ok := creationDate(info.Domain); ok {
			days := int(math.Floor(now.Sub(created).Hours() / 24))
			ev.DomainAgeInDays = &days
		}
	}
	if info.Registrar != nil {
		ev.Registrar = strings.TrimSpace(info.Registrar.Name)
	}
	if info.Registrant != nil {
		ev.Country = strings.TrimSpace(info.Registrant.Country)
	}
	return ev, nil
}

func creationDate(d *whoisparser.Domain) (time.Time, bool) {
	if d.CreatedDateInTime != nil && !d.CreatedDateInTime.IsZero() {
		return *d.CreatedDateInTime, true
	}
	return parseDateTry(d.CreatedDate)
}

// parseDateTry parses the creation dates of registries the parser does not
// normalise. Some registries list several dates separated by commas; the
// first one is used.
func parseDateTry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return time.Time{}, false
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05 MST",
		"2006-01-02",
		"02-Jan-2006",
		"2006.01.02 15:04:05",
		"2006/01/02 15:04:05",
		"2006/01/02",
		"02.01.2006",
		"Mon Jan 02 15:04:05 MST 2006",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
