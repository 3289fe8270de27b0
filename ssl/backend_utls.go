//go:build utls

package ssl

import (
	"net"

	utls "gitlab.com/yawning/utls.git"
)

var defaultBackend Backend = newUTLSBackend(utls.HelloChrome_Auto)

// newUTLSBackend returns a backend whose ClientHello mimics the given
// browser fingerprint.
func newUTLSBackend(id utls.ClientHelloID) *engineBackend {
	return &engineBackend{
		name: "utls",
		rules: newTable(
			Rule{Name: "utls_record_header", Match: matchAs[utls.RecordHeaderError](), Kind: KindProtocolViolation},
		),
		client: func(conn net.Conn, cfg *SessionConfig) (engineConn, error) {
			return utls.UClient(conn, &utls.Config{
				ServerName: cfg.ServerName,
				RootCAs:    cfg.RootCAs,
				NextProtos: cfg.NextProtos,
				MinVersion: cfg.MinVersion,
				MaxVersion: cfg.MaxVersion,
			}, id), nil
		},
		state: func(c engineConn) ConnectionState {
			st := c.(*utls.UConn).ConnectionState()
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
