package recon

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/vulnverified/nophish/internal/engine"
	"golang.org/x/net/publicsuffix"
)

// ResolveTarget derives the registrable domain and full host of rawURL using
// the public suffix list. Input without a scheme is treated as http.
// On a malformed URL the returned target carries only URL, with an error.
func ResolveTarget(rawURL string) (engine.Target, error) {
	target := engine.Target{URL: rawURL}

	s := strings.TrimSpace(rawURL)
	if s == "" {
		return target, errors.New("empty URL")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return target, fmt.Errorf("parse URL: %w", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return target, fmt.Errorf("no hostname in %q", rawURL)
	}

	if net.ParseIP(host) != nil {
		target.Domain, target.Host = host, host
		return target, nil
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost, bare suffixes and similar have no registrable part.
		target.Domain, target.Host = host, host
		return target, nil
	}
	target.Domain, target.Host = domain, host
	return target, nil
}

// TargetResolver implements engine.TargetResolver.
type TargetResolver struct{}

// Resolve derives the analysis target from rawURL.
func (TargetResolver) Resolve(rawURL string) (engine.Target, error) {
	return ResolveTarget(rawURL)
}
