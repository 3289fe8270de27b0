package util

import "sync"

// bufPool recycles DefaultBufSize buffers for the relay copy loops and
// the transport pumps, the two places that hold a buffer per stream.
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf returns a DefaultBufSize buffer.  Return it with [PutBuf].
func GetBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

// PutBuf recycles buf.  Buffers that were re-sliced keep their backing
// array; anything whose capacity is not DefaultBufSize is dropped.
func PutBuf(buf *[]byte) {
	if buf == nil || cap(*buf) != DefaultBufSize {
		return
	}
	*buf = (*buf)[:DefaultBufSize]
	bufPool.Put(buf)
}
