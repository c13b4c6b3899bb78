package iap

import (
	"sync/atomic"
)

// The process-wide plugin. The store binding is decided once at startup,
// so there is exactly one plugin per process and it never changes.
var activePlugin atomic.Pointer[Plugin]

// Activate installs the process-wide plugin. It must be called at most
// once; activating a second plugin is a programming error.
func Activate(p *Plugin) {
	if !activePlugin.CompareAndSwap(nil, p) {
		panic("iap: a plugin is already active for this process")
	}
}

// Active returns the process-wide plugin, or nil when none has been
// activated.
func Active() *Plugin {
	return activePlugin.Load()
}

func resetActive() {
	activePlugin.Store(nil)
}
