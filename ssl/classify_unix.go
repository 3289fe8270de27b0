//go:build unix

package ssl

import "golang.org/x/sys/unix"

var platformIoRules = Rules{
	{Name: "errno_reset", Match: matchIs(unix.ECONNRESET, unix.ENETRESET), Kind: KindIo, Io: IoConnectionReset},
	{Name: "errno_pipe", Match: matchIs(unix.EPIPE, unix.ESHUTDOWN), Kind: KindIo, Io: IoBrokenPipe},
	{Name: "errno_aborted", Match: matchIs(unix.ECONNABORTED, unix.ENOTCONN), Kind: KindIo, Io: IoConnectionAborted},
	{Name: "errno_timedout", Match: matchIs(unix.ETIMEDOUT), Kind: KindIo, Io: IoTimedOut},
	{Name: "errno_intr", Match: matchIs(unix.EINTR), Kind: KindIo, Io: IoInterrupted},
	{Name: "errno_wouldblock", Match: matchIs(unix.EAGAIN, ErrWouldBlock), Kind: KindIo, Io: IoWouldBlock},
	{
		Name:  "errno_network",
		Match: matchIs(unix.ECONNREFUSED, unix.EHOSTUNREACH, unix.ENETUNREACH, unix.ENETDOWN),
		Kind:  KindIo,
		Io:    IoOther,
	},
}
