//go:build !unix && !windows

package ssl

var platformIoRules = Rules{
	{Name: "wouldblock", Match: matchIs(ErrWouldBlock), Kind: KindIo, Io: IoWouldBlock},
}
