package debug

import "sync/atomic"

var permits atomic.Uint64

// PermitAlloc runs fn as an audited exception inside code that must not allocate
// (the real-time processor and the real-time clip columns). Every call is counted so
// that exceptions show up in the monitor.
func PermitAlloc(fn func()) {
	permits.Add(1)
	fn()
}

// PermittedAllocations returns how many times PermitAlloc was used
func PermittedAllocations() uint64 {
	return permits.Load()
}

// RT logs from a real-time context through PermitAlloc
func RT(category, format string, args ...any) {
	PermitAlloc(func() {
		Log(category, format, args...)
	})
}
