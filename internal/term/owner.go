package term

import "sync"

// Owner serializes access to the local terminal descriptors.
//
// The terminal has exactly one reader/writer at any instant — either the
// session bridge or a transfer helper process, never both. The bridge
// acquires the lock around each local read/write; a helper holds it for
// its entire run, so bridge traffic queues until the helper exits.
type Owner struct {
	mu sync.Mutex
}

// Acquire takes ownership of the terminal and returns the release
// function. Blocks while another holder is active.
func (o *Owner) Acquire() (release func()) {
	o.mu.Lock()
	var once sync.Once
	return func() { once.Do(o.mu.Unlock) }
}

// TryAcquire takes ownership only if the terminal is currently free.
// Returns a nil release function when another holder is active.
func (o *Owner) TryAcquire() (release func(), ok bool) {
	if !o.mu.TryLock() {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(o.mu.Unlock) }, true
}
