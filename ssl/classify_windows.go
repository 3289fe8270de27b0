//go:build windows

package ssl

import "golang.org/x/sys/windows"

// Winsock codes not exported as Errno values by x/sys/windows.
const (
	wsaeTimedOut   = windows.Errno(10060)
	wsaeNetReset   = windows.Errno(10052)
	wsaeShutdown   = windows.Errno(10058)
	wsaeWouldBlock = windows.Errno(10035)
)

// The certificate rules map the CERT_E codes the system verifier reports
// when chain building is delegated to the platform.
var platformIoRules = Rules{
	{Name: "cert_cn_no_match", Match: matchIs(windows.Errno(windows.CERT_E_CN_NO_MATCH)), Kind: KindHostnameMismatch},
	{
		Name: "cert_chain",
		Match: matchIs(
			windows.Errno(windows.CERT_E_UNTRUSTEDROOT),
			windows.Errno(windows.CERT_E_CHAINING),
			windows.Errno(windows.CERT_E_EXPIRED),
		),
		Kind: KindCertificateVerifyFailed,
	},
	{Name: "wsa_reset", Match: matchIs(windows.WSAECONNRESET, wsaeNetReset), Kind: KindIo, Io: IoConnectionReset},
	{Name: "wsa_aborted", Match: matchIs(windows.WSAECONNABORTED, windows.ERROR_NETNAME_DELETED), Kind: KindIo, Io: IoConnectionAborted},
	{Name: "wsa_shutdown", Match: matchIs(wsaeShutdown, windows.ERROR_BROKEN_PIPE), Kind: KindIo, Io: IoBrokenPipe},
	{Name: "wsa_timedout", Match: matchIs(wsaeTimedOut), Kind: KindIo, Io: IoTimedOut},
	{Name: "wsa_wouldblock", Match: matchIs(wsaeWouldBlock, ErrWouldBlock), Kind: KindIo, Io: IoWouldBlock},
}
