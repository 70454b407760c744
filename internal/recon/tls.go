package recon

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

const (
	defaultTLSPort        = 443
	defaultConnectTimeout = 10 * time.Second

	// certTimeLayout is ASN.1 GeneralizedTime, as the certificate stores it.
	certTimeLayout = "20060102150405Z"
)

// TLS evidence error messages.
const (
	tlsErrResolve    = "Could not resolve host"
	tlsErrTimeout    = "Connection timed out"
	tlsErrSSL        = "SSL error: %v"
	tlsErrUnexpected = "An unexpected error occurred: %v"
)

// CertFetcher implements engine.TLSFetcher.
type CertFetcher struct {
	ConnectTimeout time.Duration
	Log            logger.Logger
}

// NewCertFetcher returns a CertFetcher with the given connect timeout.
func NewCertFetcher(connectTimeout time.Duration, log logger.Logger) *CertFetcher {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CertFetcher{ConnectTimeout: connectTimeout, Log: log}
}

// FetchTLS connects to host:port, completes a TLS 1.2 handshake and reads the
// leaf certificate. Exactly one of Certificate and Error is set.
func (f *CertFetcher) FetchTLS(ctx context.Context, host string, port int) engine.TLSEvidence {
	if port <= 0 {
		port = defaultTLSPort
	}
	if host == "" {
		return engine.TLSEvidence{Error: tlsErrResolve}
	}

	cert, err := f.peerCertificate(ctx, host, port)
	if err != nil {
		msg := classifyTLSError(err)
		f.Log.Warn("TLS fetch failed",
			logger.String("host", host),
			logger.Int("port", port),
			logger.String("reason", msg),
			logger.Error(err),
		)
		return engine.TLSEvidence{Error: msg}
	}

	return engine.TLSEvidence{Certificate: &engine.TLSCertificate{
		Issuer:         nameComponents(cert.Issuer),
		Subject:        nameComponents(cert.Subject),
		ExpirationDate: cert.NotAfter.UTC().Format(certTimeLayout),
	}}
}

func (f *CertFetcher) peerCertificate(ctx context.Context, host string, port int) (*x509.Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, f.ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: f.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	defer rawConn.Close()

	cfg := &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS12,
		MaxVersion:         tls.VersionTLS12,
	}
	if net.ParseIP(host) == nil {
		cfg.ServerName = host
	}

	conn := tls.Client(rawConn, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &handshakeError{err: err}
	}

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, errors.New("server presented no certificate")
	}
	return certs[0], nil
}

// handshakeError marks failures that happened after the TCP connection was up.
type handshakeError struct {
	err error
}

func (e *handshakeError) Error() string { return e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

func classifyTLSError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return tlsErrTimeout
		}
		return tlsErrResolve
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return tlsErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return tlsErrTimeout
	}

	var hsErr *handshakeError
	if errors.As(err, &hsErr) {
		var recordErr tls.RecordHeaderError
		var alertErr tls.AlertError
		var certErr *tls.CertificateVerificationError
		if errors.As(err, &recordErr) || errors.As(err, &alertErr) || errors.As(err, &certErr) ||
			isTLSProtocolError(hsErr.err) {
			return fmt.Sprintf(tlsErrSSL, hsErr.err)
		}
	}
	return fmt.Sprintf(tlsErrUnexpected, err)
}

// isTLSProtocolError matches handshake errors crypto/tls only exposes as text.
func isTLSProtocolError(err error) bool {
	return strings.HasPrefix(err.Error(), "tls:")
}

// certNameOIDs maps attribute type OIDs to OpenSSL short names.
var certNameOIDs = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.4":                    "SN",
	"2.5.4.5":                    "serialNumber",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "street",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.12":                   "title",
	"2.5.4.17":                   "postalCode",
	"2.5.4.42":                   "GN",
	"2.5.4.97":                   "organizationIdentifier",
	"0.9.2342.19200300.100.1.25": "DC",
	"1.2.840.113549.1.9.1":       "emailAddress",
	"1.3.6.1.4.1.311.60.2.1.1":   "jurisdictionL",
	"1.3.6.1.4.1.311.60.2.1.2":   "jurisdictionST",
	"1.3.6.1.4.1.311.60.2.1.3":   "jurisdictionC",
	"2.5.4.15":                   "businessCategory",
}

// nameComponents flattens a distinguished name into ordered key/value pairs.
func nameComponents(name pkix.Name) []engine.NameComponent {
	out := make([]engine.NameComponent, 0, len(name.Names))
	for _, atv := range name.Names {
		out = append(out, engine.NameComponent{
			Key:   oidShortName(atv.Type),
			Value: fmt.Sprint(atv.Value),
		})
	}
	return out
}

func oidShortName(oid asn1.ObjectIdentifier) string {
	if name, ok := certNameOIDs[oid.String()]; ok {
		return name
	}
	return oid.String()
}
