package buffer

import (
	"sync"

	"github.com/coredb/coredb/internal/disk"
)

// Page is a pinned, in-memory view of one on-disk page: its raw bytes plus
// the metadata the pool tracks about it. Latch is orthogonal to the pool's
// own bookkeeping mutex and guards concurrent readers/writers of Data once a
// caller has it pinned.
type Page struct {
	id      disk.PageID
	data    [disk.PageSize]byte
	pinAtom int32
	dirty   bool
	Latch   sync.RWMutex
}

// ID returns the page's identity. Valid for the lifetime of the pin.
func (p *Page) ID() disk.PageID { return p.id }

// Data returns the page's raw byte buffer. Callers hold the page pinned and,
// for writes, the page's own Latch.
func (p *Page) Data() []byte { return p.data[:] }

// IsDirty reports whether the page has unflushed modifications.
func (p *Page) IsDirty() bool { return p.dirty }

// PinCount reports the number of outstanding pins. Reads under the owning
// pool's mutex only; callers outside the pool should treat this as a snapshot.
func (p *Page) PinCount() int32 { return p.pinAtom }

func (p *Page) reset(id disk.PageID) {
	p.id = id
	p.dirty = false
	p.pinAtom = 0
	for i := range p.data {
		p.data[i] = 0
	}
}
