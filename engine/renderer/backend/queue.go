package backend

import (
	"fmt"
	"math/bits"
	"runtime"
	"sync"

	astramath "github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// Queue owns one hardware queue family's submission context: the queue
// handles, the submission mutex serializing every submit on the family, and a
// fixed array of command recording slots leased out to callers one at a time.
type Queue struct {
	device gpu.Device

	Handle          gpu.QueueHandle
	SecondaryHandle gpu.QueueHandle
	FamilyIndex     uint32
	Flags           gpu.QueueFlags

	submitMu sync.Mutex

	// Slot leasing. The free channel is a bounded-resource semaphore: one
	// token per free slot, so Lease blocks exactly when every slot is
	// occupied and Return wakes exactly one waiter.
	mu       sync.Mutex
	occupied []bool
	free     chan struct{}

	pools   []gpu.CommandPool
	buffers []gpu.CommandBuffer
	fences  []gpu.Fence
}

// PoolLease is the transient handle to one leased slot. It is created by
// Queue.Lease and invalidated by the matching Queue.Return.
type PoolLease struct {
	Queue *Queue
	Slot  uint32
}

func (l PoolLease) CommandBuffer() gpu.CommandBuffer { return l.Queue.buffers[l.Slot] }
func (l PoolLease) Fence() gpu.Fence                 { return l.Queue.fences[l.Slot] }

// newQueue builds the slot array for one queue family: one (command pool,
// command buffer, fence) triple per expected concurrent caller.
func newQueue(device gpu.Device, family gpu.QueueFamily) (*Queue, error) {
	handle, err := device.GetQueue(family.Index, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue for family %d: %w", family.Index, err)
	}

	q := &Queue{
		device:      device,
		Handle:      handle,
		FamilyIndex: family.Index,
		Flags:       family.Flags,
	}
	if family.Count > 1 {
		secondary, err := device.GetQueue(family.Index, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to get secondary queue for family %d: %w", family.Index, err)
		}
		q.SecondaryHandle = secondary
	}

	// At least one slot per frame in flight plus headroom, even on tiny
	// machines, so the frame pacer can never exhaust the queue by itself.
	slotCount := astramath.Max(runtime.NumCPU(), 4)
	q.occupied = make([]bool, slotCount)
	q.free = make(chan struct{}, slotCount)
	q.pools = make([]gpu.CommandPool, slotCount)
	q.buffers = make([]gpu.CommandBuffer, slotCount)
	q.fences = make([]gpu.Fence, slotCount)

	for i := 0; i < slotCount; i++ {
		pool, err := device.CreateCommandPool(family.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to create command pool for family %d: %w", family.Index, err)
		}
		buffer, err := device.AllocateCommandBuffer(pool)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate command buffer for family %d: %w", family.Index, err)
		}
		// Created unsignaled: a free slot's fence is always unsignaled.
		fence, err := device.CreateFence(false)
		if err != nil {
			return nil, fmt.Errorf("failed to create slot fence for family %d: %w", family.Index, err)
		}
		q.pools[i] = pool
		q.buffers[i] = buffer
		q.fences[i] = fence
		q.free <- struct{}{}
	}

	return q, nil
}

// Lease blocks until a slot is free, marks the first free slot occupied and
// hands it to the caller. The slot's command pool, buffer and fence belong
// exclusively to the caller until Return. Never lease again from inside a
// held lease on the same queue.
func (q *Queue) Lease() PoolLease {
	<-q.free

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, occupied := range q.occupied {
		if !occupied {
			q.occupied[i] = true
			return PoolLease{Queue: q, Slot: uint32(i)}
		}
	}
	// A token was available, so a free slot must exist.
	panic("queue: slot occupancy out of sync with free count")
}

// TryLease is the non-blocking variant: it returns false instead of waiting
// when every slot is leased.
func (q *Queue) TryLease() (PoolLease, bool) {
	select {
	case <-q.free:
	default:
		return PoolLease{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, occupied := range q.occupied {
		if !occupied {
			q.occupied[i] = true
			return PoolLease{Queue: q, Slot: uint32(i)}, true
		}
	}
	panic("queue: slot occupancy out of sync with free count")
}

// Return releases a leased slot and wakes one blocked Lease call. Returning
// a slot that is not occupied is a logic bug, not a runtime condition.
func (q *Queue) Return(lease PoolLease) {
	if lease.Queue != q {
		panic("queue: lease returned to the wrong queue")
	}
	q.mu.Lock()
	if int(lease.Slot) >= len(q.occupied) || !q.occupied[lease.Slot] {
		q.mu.Unlock()
		panic(fmt.Sprintf("queue: returning slot %d which is not leased", lease.Slot))
	}
	q.occupied[lease.Slot] = false
	q.mu.Unlock()

	q.free <- struct{}{}
}

// Submit serializes all submissions on this queue family.
func (q *Queue) Submit(info gpu.SubmitInfo, fence gpu.Fence) error {
	q.submitMu.Lock()
	defer q.submitMu.Unlock()
	return q.device.Submit(q.Handle, info, fence)
}

// ImmediateSubmit records into the leased slot's command buffer, submits it
// and waits for the queue to drain. Used for one-off work such as staging
// uploads on a transfer queue.
func (q *Queue) ImmediateSubmit(lease PoolLease, record func(cb gpu.CommandBuffer) error) error {
	cb := lease.CommandBuffer()
	if err := q.device.BeginCommandBuffer(cb, true); err != nil {
		return err
	}
	if err := record(cb); err != nil {
		return err
	}
	if err := q.device.EndCommandBuffer(cb); err != nil {
		return err
	}

	q.submitMu.Lock()
	defer q.submitMu.Unlock()
	if err := q.device.Submit(q.Handle, gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cb}}, 0); err != nil {
		return err
	}
	return q.device.QueueWaitIdle(q.Handle)
}

func (q *Queue) destroy() {
	for i := range q.pools {
		q.device.DestroyFence(q.fences[i])
		q.device.DestroyCommandPool(q.pools[i])
	}
	q.pools = nil
	q.buffers = nil
	q.fences = nil
}

// selectQueue picks the queue whose capabilities match the request best: all
// requested bits present, fewest extra bits. A transfer-only request lands on
// a dedicated transfer queue when the hardware has one instead of competing
// with graphics work.
func selectQueue(queues []*Queue, desired gpu.QueueFlags) *Queue {
	var best *Queue
	bestExtra := -1
	for _, q := range queues {
		if q.Flags&desired != desired {
			continue
		}
		extra := bits.OnesCount32(uint32(q.Flags &^ desired))
		if best == nil || extra < bestExtra {
			best = q
			bestExtra = extra
		}
	}
	return best
}
