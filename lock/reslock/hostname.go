package reslock

import (
	"os"
	"path/filepath"
	"sync"
)

// hostname is memoized once per process (spec §9 "the hostname cache in
// the lock is a per-process memoized value; model it as a lazily
// initialized constant, not mutable shared state").
var (
	hostnameOnce  sync.Once
	hostnameCache string
)

func hostname() string {
	hostnameOnce.Do(func() {
		h, err := os.Hostname()
		if err != nil {
			h = "unknown"
		}
		hostnameCache = h
	})
	return hostnameCache
}

// selfBinaryName is memoized once per process: the executable name a dead
// lock owner's pid is compared against before it is declared stale, so a
// pid recycled by an unrelated process after a crash is never mistaken for
// a live histedit holder.
var (
	selfBinaryOnce  sync.Once
	selfBinaryCache string
)

func selfBinaryName() string {
	selfBinaryOnce.Do(func() {
		exe, err := os.Executable()
		if err != nil {
			selfBinaryCache = "histedit"
			return
		}
		selfBinaryCache = filepath.Base(exe)
	})
	return selfBinaryCache
}
