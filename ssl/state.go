package ssl

import (
	"crypto/tls"
	"fmt"
)

var tlsVersionString = map[uint16]string{
	tls.VersionTLS10: "TLSv1",
	tls.VersionTLS11: "TLSv1.1",
	tls.VersionTLS12: "TLSv1.2",
	tls.VersionTLS13: "TLSv1.3",
	0:                "",
}

// TLSVersionString returns the name of a protocol version, the empty
// string for zero, or TLS_VERSION_UNKNOWN_ddd.
func TLSVersionString(value uint16) string {
	if str, found := tlsVersionString[value]; found {
		return str
	}
	return fmt.Sprintf("TLS_VERSION_UNKNOWN_%d", value)
}

// TLSCipherSuiteString returns the IANA name of a cipher suite, or the
// empty string for zero.
func TLSCipherSuiteString(value uint16) string {
	if value == 0 {
		return ""
	}
	return tls.CipherSuiteName(value)
}
