package sched

import (
	"hydroxos/kernel/mem"
	"hydroxos/kernel/mem/pmm"
	"hydroxos/kernel/mem/vmm"
	"hydroxos/kernel/sync"
)

// ProcessID uniquely identifies a Process for its lifetime.
type ProcessID uint64

var nextProcessID uint64

func allocProcessID() ProcessID {
	nextProcessID++
	return ProcessID(nextProcessID)
}

// processReady is a Process's ready queue: every Thread in it is in state
// Ready, in FIFO order. The original models this as an intrusive linked
// list threaded through each Thread; since Go threads are ordinary
// garbage-collected pointers, a plain slice serves the same purpose with
// none of the manual-ownership bookkeeping.
type processReady struct {
	queue []*Thread
}

// Process owns a table of its Threads, a ready queue, and an AddressSpace.
// Every Thread in the ready queue is in state Ready, and a Thread is in at
// most one ready queue (its own process's).
type Process struct {
	id           ProcessID
	addressSpace *vmm.AddressSpace

	ready   *sync.UninterruptibleSpinlock[processReady]
	threads *sync.UninterruptibleSpinlock[[]*Thread]
}

// NewProcess creates a process owning the given address space, with no
// threads and an empty ready queue.
func NewProcess(addressSpace *vmm.AddressSpace) *Process {
	return &Process{
		id:           allocProcessID(),
		addressSpace: addressSpace,
		ready:        sync.NewUninterruptibleSpinlock(processReady{}),
		threads:      sync.NewUninterruptibleSpinlock[[]*Thread](nil),
	}
}

// ID returns the process's stable identity.
func (p *Process) ID() ProcessID {
	return p.id
}

// AddressSpace returns the process's address space.
func (p *Process) AddressSpace() *vmm.AddressSpace {
	return p.addressSpace
}

// Threads returns a snapshot of the process's thread table.
func (p *Process) Threads() []*Thread {
	g := p.threads.Lock()
	defer g.Unlock()
	out := make([]*Thread, len(*g.Get()))
	copy(out, *g.Get())
	return out
}

// CreateKernelThread allocates a thread stack and an initial saved register
// state whose entry point is entry(arg), and adds the new thread to the
// process's thread table. The thread begins in state Suspended: the caller
// (or the scheduler, for the very first thread of a process) is
// responsible for making it Ready.
func (p *Process) CreateKernelThread(entry uintptr, arg uintptr, stackSize mem.Size) *Thread {
	stackTop := allocKernelStack(stackSize)

	t := &Thread{
		id:      allocThreadID(),
		process: p,
		lock: sync.NewUninterruptibleSpinlock(threadState{
			kind:  Suspended,
			basic: newKernelThreadBasicRegisters(entry, arg, stackTop),
		}),
	}

	g := p.threads.Lock()
	*g.Get() = append(*g.Get(), t)
	g.Unlock()

	return t
}

// EnqueueReadyThread transitions t to Ready and appends it to p's ready
// queue. Lock ordering forbids holding a Thread lock while acquiring a
// Process lock, so this always acquires p's ready-queue lock first.
func (p *Process) EnqueueReadyThread(t *Thread) {
	rg := p.ready.Lock()
	defer rg.Unlock()

	tg := t.lock.Lock()
	tg.Get().kind = Ready
	tg.Unlock()

	rq := rg.Get()
	rq.queue = append(rq.queue, t)
}

// DequeueReadyThread pops the head of p's ready queue and returns it
// locked, or (nil, nil) if the queue is empty. The returned guard must be
// unlocked by the caller exactly once.
func (p *Process) DequeueReadyThread() (*Thread, *sync.UninterruptibleSpinlockGuard[threadState]) {
	rg := p.ready.Lock()
	rq := rg.Get()
	if len(rq.queue) == 0 {
		rg.Unlock()
		return nil, nil
	}
	t := rq.queue[0]
	rq.queue = rq.queue[1:]
	rg.Unlock()

	return t, t.lock.Lock()
}

// reapThread removes a Dead thread from the process's thread table. The
// thread's kernel stack frame is not returned to the frame allocator:
// allocKernelStack does not record which frame it handed to which thread.
func (p *Process) reapThread(t *Thread) {
	g := p.threads.Lock()
	defer g.Unlock()
	threads := *g.Get()
	for i, other := range threads {
		if other == t {
			*g.Get() = append(threads[:i], threads[i+1:]...)
			return
		}
	}
}

// allocKernelStack reserves a single page of physical memory to serve as a
// kernel thread's stack and returns a pointer to its top (stacks grow
// down). Multi-page kernel stacks would need the virtual-memory mapping
// layer to present several, possibly non-contiguous, physical frames as one
// contiguous range; that layer is arch/paging territory this core treats as
// external.
func allocKernelStack(size mem.Size) uintptr {
	if size > mem.PageSize {
		panic("sched: multi-page kernel stacks require the virtual-memory mapping layer")
	}

	f, ok := pmm.AllocFrame()
	if !ok {
		panic("sched: out of physical memory allocating a kernel thread stack")
	}
	return stackFramePtrFn(f) + uintptr(mem.PageSize)
}

// stackFramePtrFn maps a physical frame to a pointer to its contents. It
// relies on physical memory being permanently identity-mapped; tests
// override it to point into ordinary Go memory instead.
var stackFramePtrFn = func(f pmm.Frame) uintptr {
	return uintptr(f.Address())
}
