//go:build oocrypto && !utls

package ssl

import (
	"net"

	ootls "github.com/ooni/oocrypto/tls"
)

var defaultBackend Backend = newOOCryptoBackend()

func newOOCryptoBackend() *engineBackend {
	return &engineBackend{
		name: "oocrypto/tls",
		rules: newTable(
			Rule{Name: "oocrypto_record_header", Match: matchAs[ootls.RecordHeaderError](), Kind: KindProtocolViolation},
		),
		client: func(conn net.Conn, cfg *SessionConfig) (engineConn, error) {
			return ootls.Client(conn, &ootls.Config{
				ServerName: cfg.ServerName,
				RootCAs:    cfg.RootCAs,
				NextProtos: cfg.NextProtos,
				MinVersion: cfg.MinVersion,
				MaxVersion: cfg.MaxVersion,
			}), nil
		},
		state: func(c engineConn) ConnectionState {
			st := c.(*ootls.Conn).ConnectionState()
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
