package backend

import (
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

func newTestQueue(t *testing.T) (*Queue, *fakeDevice) {
	t.Helper()
	device := newFakeDevice()
	q, err := newQueue(device, device.families[0])
	if err != nil {
		t.Fatal(err)
	}
	return q, device
}

func TestLeaseExclusive(t *testing.T) {
	q, _ := newTestQueue(t)

	var mu sync.Mutex
	held := map[uint32]bool{}

	var wg sync.WaitGroup
	for w := 0; w < 4*len(q.occupied); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				lease := q.Lease()

				mu.Lock()
				if held[lease.Slot] {
					mu.Unlock()
					t.Errorf("slot %d leased twice concurrently", lease.Slot)
					q.Return(lease)
					return
				}
				held[lease.Slot] = true
				mu.Unlock()

				mu.Lock()
				held[lease.Slot] = false
				mu.Unlock()

				q.Return(lease)
			}
		}()
	}
	wg.Wait()
}

func TestLeaseBlocksUntilReturn(t *testing.T) {
	q, _ := newTestQueue(t)

	leases := make([]PoolLease, len(q.occupied))
	for i := range leases {
		leases[i] = q.Lease()
	}

	if _, ok := q.TryLease(); ok {
		t.Fatal("TryLease succeeded with every slot occupied")
	}

	got := make(chan PoolLease)
	go func() {
		got <- q.Lease()
	}()

	select {
	case <-got:
		t.Fatal("Lease returned while every slot was occupied")
	case <-time.After(10 * time.Millisecond):
	}

	q.Return(leases[0])

	select {
	case lease := <-got:
		q.Return(lease)
	case <-time.After(time.Second):
		t.Fatal("Lease did not wake after a slot was returned")
	}

	for _, lease := range leases[1:] {
		q.Return(lease)
	}
}

func TestLeaseSlotResources(t *testing.T) {
	q, _ := newTestQueue(t)

	lease := q.Lease()
	if lease.CommandBuffer() == 0 {
		t.Fatal("leased slot has no command buffer")
	}
	if lease.Fence() == 0 {
		t.Fatal("leased slot has no fence")
	}
	q.Return(lease)
}

func TestReturnUnleasedPanics(t *testing.T) {
	q, _ := newTestQueue(t)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when returning a slot that is not leased")
		}
	}()
	q.Return(PoolLease{Queue: q, Slot: 0})
}

func TestDoubleReturnPanics(t *testing.T) {
	q, _ := newTestQueue(t)

	lease := q.Lease()
	q.Return(lease)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double return")
		}
	}()
	q.Return(lease)
}

func TestSelectQueuePrefersDedicated(t *testing.T) {
	graphics := &Queue{Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer}
	transfer := &Queue{Flags: gpu.QueueTransfer}
	queues := []*Queue{graphics, transfer}

	if got := selectQueue(queues, gpu.QueueTransfer); got != transfer {
		t.Fatal("transfer request should land on the dedicated transfer queue")
	}
	if got := selectQueue(queues, gpu.QueueGraphics); got != graphics {
		t.Fatal("graphics request should land on the graphics queue")
	}
	if got := selectQueue(queues, gpu.QueueGraphics|gpu.QueueCompute); got != graphics {
		t.Fatal("graphics+compute request should land on the graphics queue")
	}
}

func TestSelectQueueNoMatch(t *testing.T) {
	queues := []*Queue{{Flags: gpu.QueueTransfer}}
	if got := selectQueue(queues, gpu.QueueGraphics); got != nil {
		t.Fatal("expected nil when no queue satisfies the request")
	}
}

func TestImmediateSubmitWaits(t *testing.T) {
	q, device := newTestQueue(t)

	lease := q.Lease()
	defer q.Return(lease)

	recorded := false
	err := q.ImmediateSubmit(lease, func(cb gpu.CommandBuffer) error {
		if cb != lease.CommandBuffer() {
			t.Errorf("recording callback got command buffer %d, want %d", cb, lease.CommandBuffer())
		}
		recorded = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !recorded {
		t.Fatal("recording callback never ran")
	}
	if device.submits != 1 {
		t.Fatalf("expected 1 submission, got %d", device.submits)
	}
}
