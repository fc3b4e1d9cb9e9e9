package sched

import (
	"testing"
	"unsafe"

	"hydroxos/kernel/boot"
	"hydroxos/kernel/irq"
	"hydroxos/kernel/mem"
	"hydroxos/kernel/mem/pmm"
	"hydroxos/kernel/mem/vmm"
	"hydroxos/kernel/sync"
)

// fakeBacking backs n physical frames with ordinary Go memory, standing in
// for the permanently identity-mapped physical RAM this core assumes.
type fakeBacking struct {
	pages [][]byte
}

func newFakeBacking(n int) *fakeBacking {
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = make([]byte, mem.PageSize)
	}
	return &fakeBacking{pages: pages}
}

func (b *fakeBacking) ptr(f pmm.Frame) unsafe.Pointer {
	return unsafe.Pointer(&b.pages[int(f)][0])
}

// setupScheduler wires the physical frame allocator to n frames of host
// memory, installs fake interrupt hooks, and resets every scheduler
// singleton so each test starts from a clean slate.
func setupScheduler(t *testing.T, n int) *Process {
	t.Helper()

	backing := newFakeBacking(n)
	t.Cleanup(pmm.SetFramePtrFnForTesting(backing.ptr))
	t.Cleanup(pmm.ResetAllocatorForTesting())
	t.Cleanup(sync.SetInterruptHooksForTesting(sync.NewFakeInterruptState()))

	origStackPtrFn := stackFramePtrFn
	stackFramePtrFn = func(f pmm.Frame) uintptr { return uintptr(backing.ptr(f)) }
	t.Cleanup(func() { stackFramePtrFn = origStackPtrFn })

	pmm.Init(&boot.Info{MemoryMap: []boot.MemoryMapEntry{
		{PhysAddress: 0, Length: uint64(n) * uint64(mem.PageSize), Type: boot.Usable},
	}})

	origKernelProcess := kernelProcess
	t.Cleanup(func() { kernelProcess = origKernelProcess })
	kernelProcess = nil

	origCurrent := currentThread
	t.Cleanup(func() { currentThread = origCurrent })
	currentThread = nil

	origInInterrupt := inInterrupt
	t.Cleanup(func() { inInterrupt = origInInterrupt })
	inInterrupt = false

	origTrigger := triggerYieldTrapFn
	t.Cleanup(func() { triggerYieldTrapFn = origTrigger })

	origSave, origRestore := saveExtendedRegsFn, restoreExtendedRegsFn
	saveExtendedRegsFn = func(*SavedExtendedRegisters) {}
	restoreExtendedRegsFn = func(*SavedExtendedRegisters) {}
	t.Cleanup(func() { saveExtendedRegsFn, restoreExtendedRegsFn = origSave, origRestore })

	t.Cleanup(irq.SetIdleHooksForTesting(
		func() uint64 { return 0xdead },
		func() uint64 { return 0x9000 },
	))

	origHandleException, origHandleIRQ := handleExceptionFn, handleIRQFn
	handleExceptionFn = func(irq.ExceptionNum, irq.ExceptionHandler) {}
	handleIRQFn = func(irq.IRQNum, irq.IRQHandler) {}
	t.Cleanup(func() { handleExceptionFn, handleIRQFn = origHandleException, origHandleIRQ })

	p := InitKernelProcess(vmm.New())
	return p
}

// fakeTrampoline stands in for the asm IRQ/exception trampoline: it
// brackets a synthetic context switch with BeginInterrupt/EndInterrupt the
// way real hardware would when the reserved yield vector (or the timer)
// fires. Tests install it as triggerYieldTrapFn so that Yield and
// ThreadWait.Suspend drive the dispatcher synchronously and deterministically.
func fakeTrampoline() {
	BeginInterrupt()
	defer EndInterrupt()
	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r)
}

func withFakeTrampoline(t *testing.T) {
	t.Helper()
	orig := triggerYieldTrapFn
	triggerYieldTrapFn = fakeTrampoline
	t.Cleanup(func() { triggerYieldTrapFn = orig })
}

const smallStack = mem.PageSize

func TestCreateKernelThreadStartsSuspended(t *testing.T) {
	p := setupScheduler(t, 4)

	th := p.CreateKernelThread(0x1000, 0, smallStack)
	if th.State() != Suspended {
		t.Fatalf("expected a freshly created thread to be Suspended, got %s", th.State())
	}
	if len(p.Threads()) != 1 {
		t.Fatalf("expected the new thread to be in the process's thread table")
	}
}

func TestEnqueueAndDequeueReadyThread(t *testing.T) {
	p := setupScheduler(t, 4)

	a := p.CreateKernelThread(0x1000, 0, smallStack)
	b := p.CreateKernelThread(0x2000, 0, smallStack)

	p.EnqueueReadyThread(a)
	p.EnqueueReadyThread(b)

	if a.State() != Ready || b.State() != Ready {
		t.Fatal("expected both threads to be Ready after enqueuing")
	}

	first, g1 := p.DequeueReadyThread()
	g1.Unlock()
	second, g2 := p.DequeueReadyThread()
	g2.Unlock()

	if first != a || second != b {
		t.Fatal("expected DequeueReadyThread to return threads in FIFO order")
	}

	if none, g := p.DequeueReadyThread(); none != nil || g != nil {
		t.Fatal("expected an empty ready queue to return (nil, nil)")
	}
}

func TestPerformContextSwitchDispatchesNextReadyThread(t *testing.T) {
	p := setupScheduler(t, 4)
	withFakeTrampoline(t)

	a := p.CreateKernelThread(0x1000, 0, smallStack)
	b := p.CreateKernelThread(0x2000, 0, smallStack)

	p.EnqueueReadyThread(a)
	p.EnqueueReadyThread(b)

	BeginInterrupt()
	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r)
	EndInterrupt()

	if CurrentThread() != a {
		t.Fatalf("expected thread a to be dispatched first, got %v", CurrentThread())
	}
	if a.State() != Running {
		t.Fatalf("expected dispatched thread to be Running, got %s", a.State())
	}
	if f.RIP != 0x1000 {
		t.Fatalf("expected frame.RIP to be restored to the thread's entry point, got %#x", f.RIP)
	}

	// Now park a (e.g. as if it yielded) and dispatch again: b should run next.
	ga := a.Lock()
	ga.Get().kind = Ready
	ga.Unlock()

	BeginInterrupt()
	PerformContextSwitch(&f, &r)
	EndInterrupt()

	if CurrentThread() != b {
		t.Fatalf("expected thread b to be dispatched next, got %v", CurrentThread())
	}
	if a.State() != Ready {
		t.Fatalf("expected thread a to be back on the ready queue, got %s", a.State())
	}
}

func TestPerformContextSwitchIdlesWhenNothingReady(t *testing.T) {
	p := setupScheduler(t, 4)
	_ = p

	BeginInterrupt()
	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r)
	EndInterrupt()

	if CurrentThread() != nil {
		t.Fatal("expected CurrentThread to be nil when no thread is ready")
	}
}

func TestPerformContextSwitchOutsideInterruptPanics(t *testing.T) {
	setupScheduler(t, 4)

	defer func() {
		if recover() == nil {
			t.Fatal("expected PerformContextSwitch to panic outside interrupt context")
		}
	}()

	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r)
}

func TestYieldRotatesToNextReadyThread(t *testing.T) {
	p := setupScheduler(t, 4)
	withFakeTrampoline(t)

	a := p.CreateKernelThread(0x1000, 0, smallStack)
	b := p.CreateKernelThread(0x2000, 0, smallStack)
	p.EnqueueReadyThread(a)
	p.EnqueueReadyThread(b)

	BeginInterrupt()
	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r)
	EndInterrupt()
	if CurrentThread() != a {
		t.Fatalf("setup: expected a running, got %v", CurrentThread())
	}

	Yield()

	if CurrentThread() != b {
		t.Fatalf("expected Yield to dispatch thread b, got %v", CurrentThread())
	}
	if a.State() != Ready {
		t.Fatalf("expected yielded thread a to be Ready, got %s", a.State())
	}
}

func TestYieldIsNoopWithNoCurrentThread(t *testing.T) {
	setupScheduler(t, 4)
	withFakeTrampoline(t)

	Yield() // must not panic
	if CurrentThread() != nil {
		t.Fatal("expected CurrentThread to remain nil")
	}
}

func TestThreadWaitListWakeOneDispatchesOrder(t *testing.T) {
	p := setupScheduler(t, 4)
	withFakeTrampoline(t)

	a := p.CreateKernelThread(0x1000, 0, smallStack)
	b := p.CreateKernelThread(0x2000, 0, smallStack)
	p.EnqueueReadyThread(a)
	p.EnqueueReadyThread(b)

	BeginInterrupt()
	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r) // dispatches a
	EndInterrupt()

	wl := NewThreadWaitList()
	wait := wl.Wait(a)

	if kind := wait.guard.Get().kind; kind != Waiting {
		t.Fatalf("expected a to be Waiting, got %s", kind)
	}
	if wl.Len() != 1 {
		t.Fatalf("expected 1 thread queued on the wait list, got %d", wl.Len())
	}

	wait.Suspend()

	if CurrentThread() != b {
		t.Fatalf("expected b to be dispatched after a suspended, got %v", CurrentThread())
	}

	if !wl.WakeOne() {
		t.Fatal("expected WakeOne to find thread a")
	}
	if a.State() != Ready {
		t.Fatalf("expected woken thread to be Ready, got %s", a.State())
	}
	if wl.Len() != 0 {
		t.Fatal("expected the wait list to be empty after WakeOne")
	}

	if wl.WakeOne() {
		t.Fatal("expected WakeOne on an empty list to return false")
	}
}

func TestThreadWaitListWakeAllCountsAndEmpties(t *testing.T) {
	p := setupScheduler(t, 4)

	a := p.CreateKernelThread(0x1000, 0, smallStack)
	b := p.CreateKernelThread(0x2000, 0, smallStack)
	c := p.CreateKernelThread(0x3000, 0, smallStack)

	wl := NewThreadWaitList()
	for _, th := range []*Thread{a, b, c} {
		g := th.Lock()
		g.Get().kind = Running
		g.Unlock()
		w := wl.Wait(th)
		w.suspended = true // bypass the real suspend for this state-only test
		w.guard.Unlock()   // release the thread lock, as Suspend would
	}

	if n := wl.WakeAll(); n != 3 {
		t.Fatalf("expected WakeAll to wake 3 threads, got %d", n)
	}
	if wl.Len() != 0 {
		t.Fatal("expected the wait list to be empty after WakeAll")
	}
	for _, th := range []*Thread{a, b, c} {
		if th.State() != Ready {
			t.Fatalf("expected thread %d to be Ready, got %s", th.ID(), th.State())
		}
	}
}

func TestThreadWaitListWaitPanicsIfNotRunning(t *testing.T) {
	p := setupScheduler(t, 4)
	a := p.CreateKernelThread(0x1000, 0, smallStack)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Wait on a non-Running thread to panic")
		}
	}()

	NewThreadWaitList().Wait(a)
}

func TestThreadWaitListWakeOnePanicsOnMismatchedList(t *testing.T) {
	p := setupScheduler(t, 4)
	a := p.CreateKernelThread(0x1000, 0, smallStack)

	g := a.Lock()
	g.Get().kind = Waiting
	wrongList := NewThreadWaitList()
	g.Get().waitList = wrongList
	g.Unlock()

	rightList := NewThreadWaitList()
	rg := rightList.internal.Lock()
	rg.Get().queue = append(rg.Get().queue, a)
	rg.Unlock()

	defer func() {
		if recover() == nil {
			t.Fatal("expected WakeOne to panic on a thread waiting on a different list")
		}
	}()
	rightList.WakeOne()
}

func TestThreadWaitSuspendTwicePanics(t *testing.T) {
	p := setupScheduler(t, 4)
	withFakeTrampoline(t)
	a := p.CreateKernelThread(0x1000, 0, smallStack)
	p.EnqueueReadyThread(a)

	BeginInterrupt()
	var f irq.Frame
	var r irq.Regs
	PerformContextSwitch(&f, &r)
	EndInterrupt()

	w := NewThreadWaitList().Wait(a)
	w.Suspend()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a second Suspend call to panic")
		}
	}()
	w.Suspend()
}

func TestThreadWaitListCloseNonEmptyPanics(t *testing.T) {
	p := setupScheduler(t, 4)
	a := p.CreateKernelThread(0x1000, 0, smallStack)

	g := a.Lock()
	g.Get().kind = Running
	g.Unlock()

	wl := NewThreadWaitList()
	w := wl.Wait(a)
	w.suspended = true

	defer func() {
		if recover() == nil {
			t.Fatal("expected Close on a non-empty wait list to panic")
		}
	}()
	wl.Close()
}

func TestBeginEndInterruptNesting(t *testing.T) {
	setupScheduler(t, 4)

	BeginInterrupt()
	defer func() {
		if recover() == nil {
			t.Fatal("expected nested BeginInterrupt to panic")
		}
		EndInterrupt()
	}()
	BeginInterrupt()
}

func TestEndInterruptWithoutBeginPanics(t *testing.T) {
	setupScheduler(t, 4)

	defer func() {
		if recover() == nil {
			t.Fatal("expected EndInterrupt without Begin to panic")
		}
	}()
	EndInterrupt()
}
