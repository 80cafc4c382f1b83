package backend

import (
	"sync"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// FrameData is the per-frame recording state: the leased command slot, a
// transient descriptor allocator cleared every cycle, and a deletion queue of
// cleanup closures that run when the frame's GPU work is known to be done.
type FrameData struct {
	// Populated by StartFrame from the leased slot; valid until EndFrame.
	CommandBuffer gpu.CommandBuffer
	Descriptors   *DescriptorAllocator

	fence          gpu.Fence
	imageAvailable gpu.Semaphore
	imageIndex     uint32

	lease    PoolLease
	hasLease bool

	deletionMu sync.Mutex
	deletions  []func()
}

// Defer queues fn to run after the GPU finishes this frame's work, which is
// observed the next time this frame slot comes around and its fence has been
// waited. Deferred functions run in reverse order of registration, so a
// resource deferred after its dependents is destroyed before them.
func (f *FrameData) Defer(fn func()) {
	f.deletionMu.Lock()
	f.deletions = append(f.deletions, fn)
	f.deletionMu.Unlock()
}

// flushDeletions runs and clears the queued closures, newest first.
func (f *FrameData) flushDeletions() {
	f.deletionMu.Lock()
	deletions := f.deletions
	f.deletions = nil
	f.deletionMu.Unlock()

	for i := len(deletions) - 1; i >= 0; i-- {
		deletions[i]()
	}
}
