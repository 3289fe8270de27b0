// Package tlstest provides a throwaway PKI and loopback TLS servers for
// tests that need a real peer in place of a public host.
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// CA is a self-signed root able to issue server certificates.
type CA struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
	Pool *x509.CertPool
}

// NewCA generates a fresh root.
func NewCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "sslcat test root", Organization: []string{"sslcat test"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return &CA{Cert: cert, Key: key, Pool: pool}, nil
}

// PEM returns the root certificate in PEM form, as read by --ca-file.
func (ca *CA) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.Cert.Raw})
}

// Issue creates a leaf valid for names.  Names parsing as IP addresses
// go into the IP SAN list.
func (ca *CA) Issue(names ...string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: names[0]},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, n := range names {
		if ip := net.ParseIP(n); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, n)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der, ca.Cert.Raw}, PrivateKey: key, Leaf: leaf}, nil
}

// ServerConfig returns a server tls.Config presenting a leaf for names.
func (ca *CA) ServerConfig(names ...string) (*tls.Config, error) {
	leaf, err := ca.Issue(names...)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{leaf}, NextProtos: []string{"http/1.1"}}, nil
}

// ── Server ───────────────────────────────────────────────────────────

// Handler serves one accepted connection after its handshake.
type Handler func(conn *tls.Conn)

// Server is a loopback TLS listener.
type Server struct {
	CA   *CA
	Addr string

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer starts a listener on 127.0.0.1 presenting a certificate for
// names ("example" when empty) and serving every connection with h.  It
// is shut down by t.Cleanup.
func NewServer(t testing.TB, h Handler, names ...string) *Server {
	t.Helper()
	if len(names) == 0 {
		names = []string{"example"}
	}
	ca, err := NewCA()
	if err != nil {
		t.Fatalf("tlstest: %v", err)
	}
	cfg, err := ca.ServerConfig(names...)
	if err != nil {
		t.Fatalf("tlstest: %v", err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("tlstest: listen: %v", err)
	}
	s := &Server{CA: ca, Addr: ln.Addr().String(), ln: ln}
	s.wg.Add(1)
	go s.serve(h)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(h Handler) {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer c.Close()
			tc := c.(*tls.Conn)
			_ = tc.SetDeadline(time.Now().Add(10 * time.Second))
			if err := tc.Handshake(); err != nil {
				return
			}
			h(tc)
		}()
	}
}

// Close stops accepting and waits for in-flight handlers.
func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

// HTTPPage is the body HTTP serves.
const HTTPPage = "<!doctype html>\n<html><head><title>example</title></head><body>ok</body></html>"

// HTTP answers a single HTTP/1.0 request with HTTPPage and closes the
// connection, sending close_notify first.
func HTTP(conn *tls.Conn) {
	if _, err := readRequest(conn); err != nil {
		return
	}
	fmt.Fprintf(conn, "HTTP/1.0 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s", len(HTTPPage), HTTPPage)
	conn.CloseWrite() //nolint:errcheck
}

// Echo copies everything it reads back to the client.
func Echo(conn *tls.Conn) {
	io.Copy(conn, conn) //nolint:errcheck
	conn.CloseWrite()   //nolint:errcheck
}

// Digest returns a handler that reads exactly n bytes, replies with
// their hex SHA-256 and closes.
func Digest(n int64) Handler {
	return func(conn *tls.Conn) {
		h := sha256.New()
		if _, err := io.CopyN(h, conn, n); err != nil {
			return
		}
		fmt.Fprintf(conn, "%x", h.Sum(nil))
		conn.CloseWrite() //nolint:errcheck
	}
}

// Blob returns a handler writing size deterministic bytes, see BlobByte.
func Blob(size int) Handler {
	return func(conn *tls.Conn) {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = BlobByte(i)
		}
		conn.Write(buf)   //nolint:errcheck
		conn.CloseWrite() //nolint:errcheck
	}
}

// BlobByte is the byte at offset i of a Blob payload.
func BlobByte(i int) byte { return byte(i*7 + i>>8) }

func readRequest(conn *tls.Conn) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1024)
	for !strings.Contains(sb.String(), "\r\n\r\n") {
		n, err := conn.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			return sb.String(), err
		}
	}
	return sb.String(), nil
}
