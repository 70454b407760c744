package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

const (
	fallbackDNSServer = "8.8.8.8:53"
	resolvConfPath    = "/etc/resolv.conf"
	defaultDNSTimeout = 5 * time.Second
)

// dnsQueryTypes are queried in this order; the evidence keys are their names.
var dnsQueryTypes = []uint16{dns.TypeA, dns.TypeCNAME}

// DNSFetcher implements engine.DNSFetcher against a single recursive resolver.
type DNSFetcher struct {
	Server  string // host:port
	Timeout time.Duration
	Log     logger.Logger
}

// NewDNSFetcher returns a fetcher for server. An empty server selects the
// system resolver.
func NewDNSFetcher(server string, timeout time.Duration, log logger.Logger) *DNSFetcher {
	if server == "" {
		server = DefaultDNSServer()
	}
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &DNSFetcher{Server: server, Timeout: timeout, Log: log}
}

// DefaultDNSServer returns the first nameserver from /etc/resolv.conf, or a
// public resolver when none is configured.
func DefaultDNSServer() string {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cfg.Servers) == 0 {
		return fallbackDNSServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// FetchDNS resolves A and CNAME records for domain. A record type that fails
// for any reason is logged and left out; the result is never nil.
func (f *DNSFetcher) FetchDNS(ctx context.Context, domain string) engine.DNSEvidence {
	records := engine.DNSEvidence{}
	if domain == "" {
		return records
	}

	for _, qtype := range dnsQueryTypes {
		name := dns.TypeToString[qtype]
		values, err := f.query(ctx, domain, qtype)
		if err != nil {
			f.Log.Warn("DNS lookup failed",
				logger.String("domain", domain),
				logger.String("type", name),
				logger.String("status", classifyDNSError(err)),
				logger.Error(err),
			)
			continue
		}
		records[name] = values
	}
	return records
}

func (f *DNSFetcher) query(ctx context.Context, domain string, qtype uint16) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)

	client := &dns.Client{Net: "udp", Timeout: f.Timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, f.Server)
	if err == nil && resp.Truncated {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, msg, f.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], domain, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, &rcodeError{rcode: resp.Rcode}
	}

	var values []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				values = append(values, v.A.String())
			}
		case *dns.CNAME:
			if qtype == dns.TypeCNAME {
				values = append(values, v.Target)
			}
		}
	}
	if len(values) == 0 {
		return nil, errNoData
	}
	return values, nil
}

// errNoData is a NOERROR response with no records of the requested type.
var errNoData = errors.New("no records of requested type")

type rcodeError struct {
	rcode int
}

func (e *rcodeError) Error() string {
	return "dns response code " + dns.RcodeToString[e.rcode]
}
