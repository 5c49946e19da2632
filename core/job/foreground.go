package job

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// ForegroundTracker records the process the shell is currently waiting on so
// interrupts typed at the shell reach it.
type ForegroundTracker struct {
	mu  sync.Mutex
	pid Pid
	set bool
}

// Set marks pid as the foreground process.
func (f *ForegroundTracker) Set(pid Pid) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pid, f.set = pid, true
}

// Clear forgets the foreground process.
func (f *ForegroundTracker) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pid, f.set = Pid{}, false
}

// Current returns the foreground process, if any.
func (f *ForegroundTracker) Current() (Pid, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pid, f.set
}

// Signal sends sig to the foreground process. It does nothing when there is
// none.
func (f *ForegroundTracker) Signal(sig os.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.set {
		return nil
	}
	return f.pid.Signal(sig)
}

// Track runs wait with pid marked as the foreground process. The mark is
// removed however wait returns, so a late signal never reaches a recycled pid.
func (f *ForegroundTracker) Track(pid Pid, wait func() (Status, error)) (Status, error) {
	f.Set(pid)
	defer f.Clear()

	return wait()
}

// Forward relays the given signals to the foreground process until ctx is
// done. The shell itself ignores them while Forward runs.
func Forward(ctx context.Context, f *ForegroundTracker, sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	forward(ctx, f, ch)
}

func forward(ctx context.Context, f *ForegroundTracker, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			f.Signal(sig)
		}
	}
}
