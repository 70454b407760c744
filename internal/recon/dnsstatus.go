package recon

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// classifyDNSError maps a lookup failure to a short status for logs:
// NXDOMAIN, SERVFAIL, NODATA, TIMEOUT, another rcode name, or ERROR.
func classifyDNSError(err error) string {
	if err == nil {
		return ""
	}

	var rc *rcodeError
	if errors.As(err, &rc) {
		switch rc.rcode {
		case dns.RcodeNameError:
			return "NXDOMAIN"
		case dns.RcodeServerFailure:
			return "SERVFAIL"
		}
		if name, ok := dns.RcodeToString[rc.rcode]; ok {
			return name
		}
		return "ERROR"
	}
	if errors.Is(err, errNoData) {
		return "NODATA"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return "NXDOMAIN"
		case dnsErr.IsTimeout:
			return "TIMEOUT"
		}
		return "SERVFAIL"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no such host"):
		return "NXDOMAIN"
	case strings.Contains(errStr, "server misbehaving"):
		return "SERVFAIL"
	case strings.Contains(errStr, "i/o timeout"):
		return "TIMEOUT"
	}
	return "ERROR"
}
