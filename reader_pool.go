package poolbuf

import "sync"

// readerPool is a pool of reusable Reader objects.
var readerPool = sync.Pool{
	New: func() any {
		return new(Reader)
	},
}

// AcquireReader retrieves a reader from the pool and points it at b.
func AcquireReader(b *Buffer[byte]) *Reader {
	return readerPool.Get().(*Reader).Reset(b)
}

// ReleaseReader detaches r from its buffer and returns it to the pool for reuse.
// The buffer itself is not disposed.
func ReleaseReader(r *Reader) {
	readerPool.Put(r.Reset(nil))
}
