// Package ssl is a backend-agnostic TLS client layer for non-blocking
// transports.
//
// A ClientContext bound to an expected hostname drives one handshake
// over a Transport whose reads and writes return ErrWouldBlock instead
// of waiting.  The result is a SecureStream with the same would-block
// semantics, and the WriteAll, Flush and ReadToEnd stages compose into
// Fetch, a single awaitable request/response exchange:
//
//	f := ssl.Fetch(ctx, t, "example.com", []byte("GET / HTTP/1.0\r\n\r\n"))
//	body, err := f.Await(ctx)
//
// The TLS engine is chosen at build time: crypto/tls by default, uTLS
// with -tags utls, and the oocrypto fork with -tags oocrypto.  Whatever
// the engine, fatal conditions surface as *Error carrying one ErrorKind;
// hostname mismatches and other certificate failures stay distinct.
package ssl
