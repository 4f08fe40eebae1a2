package hashindex

import "errors"

var (
	// ErrDirectoryFull is returned when a split would need to grow the
	// directory past MaxDepth. The directory's fixed-size parallel arrays
	// have no room for global depth beyond MaxDepth, so growth stops there
	// and the insert that would have required it fails cleanly instead of
	// overrunning the on-page layout.
	ErrDirectoryFull = errors.New("hashindex: directory cannot grow past max depth")
)
