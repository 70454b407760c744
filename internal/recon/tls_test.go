package recon

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulnverified/nophish/internal/engine"
)

func serverPort(t *testing.T, addr net.Addr) int {
	t.Helper()
	tcp, ok := addr.(*net.TCPAddr)
	require.True(t, ok)
	return tcp.Port
}

// assertExactlyOne checks the record/error exclusivity of TLS evidence.
func assertExactlyOne(t *testing.T, ev engine.TLSEvidence) {
	t.Helper()
	assert.True(t, (ev.Certificate == nil) != (ev.Error == ""), "exactly one of certificate and error: %+v", ev)
}

func TestFetchTLS_ReadsCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	f := NewCertFetcher(2*time.Second, nil)
	ev := f.FetchTLS(context.Background(), "127.0.0.1", serverPort(t, srv.Listener.Addr()))

	assertExactlyOne(t, ev)
	require.NotNil(t, ev.Certificate, ev.Error)
	assert.Contains(t, ev.Certificate.Subject, engine.NameComponent{Key: "O", Value: "Acme Co"})
	assert.Contains(t, ev.Certificate.Issuer, engine.NameComponent{Key: "O", Value: "Acme Co"})
	assert.Regexp(t, regexp.MustCompile(`^\d{14}Z$`), ev.Certificate.ExpirationDate)
	assert.Equal(t, srv.Certificate().NotAfter.UTC().Format(certTimeLayout), ev.Certificate.ExpirationDate)
}

func TestFetchTLS_PlainHTTPIsSSLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ev := NewCertFetcher(2*time.Second, nil).FetchTLS(context.Background(), "127.0.0.1", serverPort(t, srv.Listener.Addr()))

	assertExactlyOne(t, ev)
	assert.Regexp(t, `^SSL error: `, ev.Error)
}

func TestFetchTLS_ClosedPortIsUnexpected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := serverPort(t, ln.Addr())
	require.NoError(t, ln.Close())

	ev := NewCertFetcher(2*time.Second, nil).FetchTLS(context.Background(), "127.0.0.1", port)

	assertExactlyOne(t, ev)
	assert.Regexp(t, `^An unexpected error occurred: `, ev.Error)
}

func TestFetchTLS_SilentPeerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	held := make(chan net.Conn, 1)
	go func() {
		// Hold the connection open without answering the handshake.
		conn, err := ln.Accept()
		if err == nil {
			held <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	})

	ev := NewCertFetcher(200*time.Millisecond, nil).FetchTLS(context.Background(), "127.0.0.1", serverPort(t, ln.Addr()))

	assertExactlyOne(t, ev)
	assert.Equal(t, tlsErrTimeout, ev.Error)
}

func TestFetchTLS_UnresolvableHost(t *testing.T) {
	f := NewCertFetcher(2*time.Second, nil)

	for _, host := range []string{"", "no-such-host.invalid"} {
		ev := f.FetchTLS(context.Background(), host, 443)
		assertExactlyOne(t, ev)
		assert.Equal(t, tlsErrResolve, ev.Error, "host %q", host)
	}
}

func TestClassifyTLSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"dns not found", &net.DNSError{IsNotFound: true}, tlsErrResolve},
		{"dns timeout", &net.DNSError{IsTimeout: true}, tlsErrTimeout},
		{"deadline", context.DeadlineExceeded, tlsErrTimeout},
		{"handshake deadline", &handshakeError{err: context.DeadlineExceeded}, tlsErrTimeout},
		{"protocol", &handshakeError{err: errors.New("tls: protocol version not supported")}, "SSL error: tls: protocol version not supported"},
		{"reset", &handshakeError{err: errors.New("read: connection reset by peer")}, "An unexpected error occurred: read: connection reset by peer"},
		{"refused", errors.New("connect: connection refused"), "An unexpected error occurred: connect: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTLSError(tt.err))
		})
	}
}

func TestNameComponents(t *testing.T) {
	name := pkix.Name{Names: []pkix.AttributeTypeAndValue{
		{Type: asn1.ObjectIdentifier{2, 5, 4, 6}, Value: "US"},
		{Type: asn1.ObjectIdentifier{2, 5, 4, 10}, Value: "Let's Encrypt"},
		{Type: asn1.ObjectIdentifier{2, 5, 4, 3}, Value: "R11"},
		{Type: asn1.ObjectIdentifier{1, 2, 3, 4}, Value: "custom"},
	}}

	assert.Equal(t, []engine.NameComponent{
		{Key: "C", Value: "US"},
		{Key: "O", Value: "Let's Encrypt"},
		{Key: "CN", Value: "R11"},
		{Key: "1.2.3.4", Value: "custom"},
	}, nameComponents(name))
}
