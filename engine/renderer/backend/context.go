// Package backend implements the renderer's command submission core: queue
// and command pool management, frame-in-flight pacing, descriptor allocation
// and the deduplicating caches for layouts, shaders and pipelines.
package backend

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/astra/engine/config"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// Context owns every object the submission core manages. One Context exists
// per device; all of its methods are safe for concurrent use except the
// StartFrame/EndFrame pair, which must be called from a single goroutine.
type Context struct {
	device gpu.Device
	cfg    *config.Config

	queues        []*Queue
	GraphicsQueue *Queue

	Cache       *Cache
	Descriptors *DescriptorAllocator

	namedSetsMu sync.Mutex
	namedSets   map[string]*namedSet
	// perFrameSets holds one set per frame slot under each name, so a named
	// per-frame set can be rewritten in place once its slot's fence has been
	// waited.
	perFrameSets map[string][]*namedSet

	frameMu      sync.Mutex
	frames       []*FrameData
	currentFrame uint64

	// renderFinished is indexed by swapchain image, not by frame: the
	// presentation engine releases the semaphore for an image only when that
	// image is next acquired, so per-frame semaphores could be re-signaled
	// while still in use.
	renderFinished []gpu.Semaphore

	fenceTimeout time.Duration
}

// New builds a Context: one Queue per hardware family, the shared caches, the
// long-lived descriptor allocator and MaxFramesInFlight frame slots, each
// with its own transient allocator and acquire semaphore.
func New(device gpu.Device, cfg *config.Config) (*Context, error) {
	ctx := &Context{
		device:       device,
		cfg:          cfg,
		Cache:        NewCache(device),
		namedSets:    map[string]*namedSet{},
		perFrameSets: map[string][]*namedSet{},
		fenceTimeout: cfg.FenceTimeout(),
	}

	families := device.QueueFamilies()
	if len(families) == 0 {
		return nil, fmt.Errorf("device reports no queue families")
	}
	for _, family := range families {
		q, err := newQueue(device, family)
		if err != nil {
			ctx.Shutdown()
			return nil, err
		}
		ctx.queues = append(ctx.queues, q)
		core.LogDebug("queue family %d ready: flags=%#x slots=%d", family.Index, family.Flags, len(q.occupied))
	}
	ctx.GraphicsQueue = selectQueue(ctx.queues, gpu.QueueGraphics)
	if ctx.GraphicsQueue == nil {
		ctx.Shutdown()
		return nil, fmt.Errorf("no graphics-capable queue family")
	}

	ratios, err := RatiosFromConfig(cfg.Renderer.PoolRatios)
	if err != nil {
		ctx.Shutdown()
		return nil, err
	}
	ctx.Descriptors, err = NewDescriptorAllocator(device, cfg.Renderer.InitialDescriptorSets, ratios)
	if err != nil {
		ctx.Shutdown()
		return nil, err
	}

	for i := uint32(0); i < cfg.Renderer.MaxFramesInFlight; i++ {
		frame := &FrameData{}
		frame.Descriptors, err = NewDescriptorAllocator(device, cfg.Renderer.InitialDescriptorSets, ratios)
		if err != nil {
			ctx.Shutdown()
			return nil, err
		}
		frame.imageAvailable, err = device.CreateSemaphore()
		if err != nil {
			ctx.Shutdown()
			return nil, err
		}
		ctx.frames = append(ctx.frames, frame)
	}

	for i := uint32(0); i < device.SwapchainImageCount(); i++ {
		sem, err := device.CreateSemaphore()
		if err != nil {
			ctx.Shutdown()
			return nil, err
		}
		ctx.renderFinished = append(ctx.renderFinished, sem)
	}

	if cfg.Renderer.WatchShaders {
		if err := ctx.Cache.WatchShaders(cfg.Renderer.ShaderDir); err != nil {
			core.LogWarn("shader watching disabled: %v", err)
		}
	}

	return ctx, nil
}

// Queue returns the best queue for the requested capabilities: all requested
// bits present, fewest extra capabilities.
func (ctx *Context) Queue(flags gpu.QueueFlags) *Queue {
	return selectQueue(ctx.queues, flags)
}

// CurrentFrame returns the frame slot currently being recorded.
func (ctx *Context) CurrentFrame() *FrameData {
	ctx.frameMu.Lock()
	defer ctx.frameMu.Unlock()
	return ctx.frames[ctx.currentFrame%uint64(len(ctx.frames))]
}

// frameSlot returns the index of the frame slot currently being recorded.
func (ctx *Context) frameSlot() int {
	ctx.frameMu.Lock()
	defer ctx.frameMu.Unlock()
	return int(ctx.currentFrame % uint64(len(ctx.frames)))
}

// StartFrame begins a new frame cycle: it waits for this frame slot's
// previous GPU work, recycles the slot's transient resources, acquires a
// swapchain image and leases a recording slot on the graphics queue. On
// success the frame's command buffer is recording. A core.ErrSwapchainBooting
// return means the swapchain is being recreated and the frame must be
// skipped, not treated as a failure.
func (ctx *Context) StartFrame() error {
	frame := ctx.CurrentFrame()

	// The fence handle is set by the previous EndFrame on this slot; zero
	// means the slot has not been submitted yet.
	if frame.fence != 0 {
		if err := ctx.device.WaitForFence(frame.fence, ctx.fenceTimeout); err != nil {
			core.LogFatal("frame fence not signaled within %s: %v", ctx.fenceTimeout, err)
		}
		if err := ctx.device.ResetFence(frame.fence); err != nil {
			return fmt.Errorf("failed to reset frame fence: %w", err)
		}
		frame.fence = 0
	}

	// The fence has been waited, so everything this slot submitted two
	// cycles ago is done: run the deferred cleanups (this returns the
	// previous lease) and recycle the transient descriptor pools.
	frame.flushDeletions()
	frame.Descriptors.ClearPools()

	imageIndex, err := ctx.device.AcquireNextImage(frame.imageAvailable)
	if err != nil {
		if errors.Is(err, gpu.ErrOutOfDate) {
			return core.ErrSwapchainBooting
		}
		if !errors.Is(err, gpu.ErrSuboptimal) {
			return fmt.Errorf("failed to acquire swapchain image: %w", err)
		}
	}
	frame.imageIndex = imageIndex

	lease := ctx.GraphicsQueue.Lease()
	frame.lease = lease
	frame.hasLease = true
	frame.CommandBuffer = lease.CommandBuffer()
	frame.Defer(func() {
		ctx.GraphicsQueue.Return(lease)
	})

	if err := ctx.device.BeginCommandBuffer(frame.CommandBuffer, true); err != nil {
		return fmt.Errorf("failed to begin frame command buffer: %w", err)
	}
	return nil
}

// EndFrame finishes recording, submits the frame's command buffer and
// presents the acquired image. Submission waits for the acquire semaphore at
// color attachment output and signals the image's render-finished semaphore
// plus the slot's fence, which the next cycle of this frame slot waits on.
func (ctx *Context) EndFrame() error {
	frame := ctx.CurrentFrame()
	if !frame.hasLease {
		panic("backend: EndFrame without a matching StartFrame")
	}

	if err := ctx.device.EndCommandBuffer(frame.CommandBuffer); err != nil {
		return fmt.Errorf("failed to end frame command buffer: %w", err)
	}

	fence := frame.lease.Fence()
	renderFinished := ctx.renderFinished[frame.imageIndex]

	q := ctx.GraphicsQueue
	q.submitMu.Lock()
	err := ctx.device.Submit(q.Handle, gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{frame.imageAvailable},
		WaitStages:       []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{frame.CommandBuffer},
		SignalSemaphores: []gpu.Semaphore{renderFinished},
	}, fence)
	if err == nil {
		err = ctx.device.Present(q.Handle, renderFinished, frame.imageIndex)
	}
	q.submitMu.Unlock()

	frame.fence = fence
	frame.hasLease = false
	frame.CommandBuffer = 0

	ctx.frameMu.Lock()
	ctx.currentFrame++
	ctx.frameMu.Unlock()

	if err != nil {
		if errors.Is(err, gpu.ErrOutOfDate) || errors.Is(err, gpu.ErrSuboptimal) {
			return core.ErrSwapchainBooting
		}
		return fmt.Errorf("failed to submit frame: %w", err)
	}
	return nil
}

// RefreshSwapchain resizes the per-image resources after the swapchain has
// been rebuilt: a rebuild can change the image count, and the render-finished
// semaphores are indexed by image. The caller must ensure no frame is between
// StartFrame and EndFrame and that the device is idle, which holds after a
// swapchain recreation.
func (ctx *Context) RefreshSwapchain() error {
	count := ctx.device.SwapchainImageCount()
	for uint32(len(ctx.renderFinished)) < count {
		sem, err := ctx.device.CreateSemaphore()
		if err != nil {
			return fmt.Errorf("failed to create render-finished semaphore: %w", err)
		}
		ctx.renderFinished = append(ctx.renderFinished, sem)
	}
	for uint32(len(ctx.renderFinished)) > count {
		last := len(ctx.renderFinished) - 1
		ctx.device.DestroySemaphore(ctx.renderFinished[last])
		ctx.renderFinished = ctx.renderFinished[:last]
	}
	return nil
}

// FrameIndex reports how many frames have been completed.
func (ctx *Context) FrameIndex() uint64 {
	ctx.frameMu.Lock()
	defer ctx.frameMu.Unlock()
	return ctx.currentFrame
}

// Shutdown waits for the device to go idle, runs every pending deferred
// cleanup and destroys everything the context owns.
func (ctx *Context) Shutdown() {
	if err := ctx.device.WaitIdle(); err != nil {
		core.LogError("device wait idle failed during shutdown: %v", err)
	}

	for _, frame := range ctx.frames {
		frame.flushDeletions()
		if frame.Descriptors != nil {
			frame.Descriptors.DestroyPools()
		}
		if frame.imageAvailable != 0 {
			ctx.device.DestroySemaphore(frame.imageAvailable)
		}
	}
	ctx.frames = nil

	for _, sem := range ctx.renderFinished {
		ctx.device.DestroySemaphore(sem)
	}
	ctx.renderFinished = nil

	if ctx.Descriptors != nil {
		ctx.Descriptors.DestroyPools()
		ctx.Descriptors = nil
	}
	if ctx.Cache != nil {
		ctx.Cache.Shutdown()
		ctx.Cache = nil
	}

	for _, q := range ctx.queues {
		q.destroy()
	}
	ctx.queues = nil
}
