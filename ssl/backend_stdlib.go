//go:build !utls && !oocrypto

package ssl

import (
	"crypto/tls"
	"net"
)

var defaultBackend Backend = newStdlibBackend()

func newStdlibBackend() *engineBackend {
	return &engineBackend{
		name: "crypto/tls",
		rules: newTable(
			Rule{Name: "tls_record_header", Match: matchAs[tls.RecordHeaderError](), Kind: KindProtocolViolation},
		),
		client: func(conn net.Conn, cfg *SessionConfig) (engineConn, error) {
			return tls.Client(conn, &tls.Config{
				ServerName: cfg.ServerName,
				RootCAs:    cfg.RootCAs,
				NextProtos: cfg.NextProtos,
				MinVersion: cfg.MinVersion,
				MaxVersion: cfg.MaxVersion,
			}), nil
		},
		state: func(c engineConn) ConnectionState {
			st := c.(*tls.Conn).ConnectionState()
			return ConnectionState{
				Version:            st.Version,
				CipherSuite:        st.CipherSuite,
				NegotiatedProtocol: st.NegotiatedProtocol,
				ServerName:         st.ServerName,
				PeerCertificates:   st.PeerCertificates,
			}
		},
	}
}
