package buffer

import "errors"

var (
	// ErrNoEvictableFrame is returned when the pool cannot find a free or
	// evictable frame to satisfy NewPage/FetchPage.
	ErrNoEvictableFrame = errors.New("buffer: no evictable frame available (all pinned)")

	// ErrPagePinned is returned when DeletePage targets a pinned page.
	ErrPagePinned = errors.New("buffer: page is pinned")

	// ErrPageNotResident names the condition of a page not being in the
	// pool. The pool's own methods report that condition as a false result
	// and do not return this error.
	ErrPageNotResident = errors.New("buffer: page not resident in pool")

	// ErrPoolExhausted is returned by the parallel pool when no shard could
	// satisfy NewPage.
	ErrPoolExhausted = errors.New("buffer: all shards exhausted for new page")
)
