package future

import (
	"testing"
	"unsafe"

	"hydroxos/kernel/boot"
	"hydroxos/kernel/irq"
	"hydroxos/kernel/mem"
	"hydroxos/kernel/mem/pmm"
	"hydroxos/kernel/mem/vmm"
	"hydroxos/kernel/sched"
	"hydroxos/kernel/sync"
)

// fakeBacking backs physical frames with ordinary Go memory, standing in
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

// withFakeInterrupts installs fake interrupt-disable hooks for tests that
// lock a future's cell (Finish, Close, or doAction's not-yet-ready path)
// without needing the rest of a scheduler, since interrupts cannot
// actually be disabled on the host running the test binary.
func withFakeInterrupts(t *testing.T) {
	t.Helper()
	t.Cleanup(sync.SetInterruptHooksForTesting(sync.NewFakeInterruptState()))
}

// fakeTrampoline stands in for the asm IRQ/exception trampoline: it
// brackets a synthetic context switch the way real hardware would when the
// reserved yield vector fires, so Yield-style suspension drives the
// dispatcher synchronously.
func fakeTrampoline() {
	sched.BeginInterrupt()
	defer sched.EndInterrupt()
	var f irq.Frame
	var r irq.Regs
	sched.PerformContextSwitch(&f, &r)
}

// setupScheduler wires a kernel process with one CPU's worth of scheduler
// state and n frames of fake physical memory, resetting every mockable seam
// after the test completes.
func setupScheduler(t *testing.T, n int) *sched.Process {
	t.Helper()

	backing := newFakeBacking(n)
	t.Cleanup(pmm.SetFramePtrFnForTesting(backing.ptr))
	t.Cleanup(pmm.ResetAllocatorForTesting())
	t.Cleanup(sync.SetInterruptHooksForTesting(sync.NewFakeInterruptState()))
	t.Cleanup(sched.SetStackBackingForTesting(func(f pmm.Frame) uintptr {
		return uintptr(backing.ptr(f))
	}))
	t.Cleanup(sched.ResetForTesting())
	t.Cleanup(sched.SetYieldTrapForTesting(fakeTrampoline))
	t.Cleanup(irq.SetIdleHooksForTesting(
		func() uint64 { return 0xdead },
		func() uint64 { return 0x9000 },
	))

	pmm.Init(&boot.Info{MemoryMap: []boot.MemoryMapEntry{
		{PhysAddress: 0, Length: uint64(n) * uint64(mem.PageSize), Type: boot.Usable},
	}})

	return sched.InitKernelProcess(vmm.New())
}

// runAsCurrent creates a kernel thread with a placeholder entry point
// (0x1000) and dispatches it so it becomes the current thread, then returns
// it. Its entry point is never actually called: tests drive BlockUntilReady/Close directly from the
// "current thread" context this sets up, rather than from inside entry.
func runAsCurrent(t *testing.T, p *sched.Process) *sched.Thread {
	t.Helper()
	th := p.CreateKernelThread(0x1000, 0, mem.PageSize)
	p.EnqueueReadyThread(th)

	sched.BeginInterrupt()
	var f irq.Frame
	var r irq.Regs
	sched.PerformContextSwitch(&f, &r)
	sched.EndInterrupt()

	if sched.CurrentThread() != th {
		t.Fatal("expected the newly dispatched thread to become current")
	}
	return th
}

func TestDoneFutureIsImmediatelyReady(t *testing.T) {
	f := Done(42)
	if !f.IsReady() {
		t.Fatal("expected a Done future to be ready")
	}
	if val, ok := f.TryUnwrapWithoutUpdate(); !ok || val != 42 {
		t.Fatalf("expected (42, true), got (%d, %v)", val, ok)
	}
}

func TestNewFutureStartsNotReady(t *testing.T) {
	withFakeInterrupts(t)
	f, w := New[int]()
	defer w.Finish(0)

	if f.IsReady() {
		t.Fatal("expected a freshly created future to not be ready")
	}
	if _, ok := f.TryUnwrapWithoutUpdate(); ok {
		t.Fatal("expected TryUnwrapWithoutUpdate to fail before readiness")
	}
}

func TestFinishThenUpdateReadinessBecomesReady(t *testing.T) {
	withFakeInterrupts(t)
	f, w := New[string]()
	w.Finish("done")

	if !f.UpdateReadiness() {
		t.Fatal("expected UpdateReadiness to observe the written value")
	}
	if !f.IsReady() {
		t.Fatal("expected the future to be ready after UpdateReadiness")
	}
	val, ok := f.TryUnwrapWithoutUpdate()
	if !ok || val != "done" {
		t.Fatalf("expected (\"done\", true), got (%q, %v)", val, ok)
	}
}

func TestTryUnwrapUpdatesThenUnwraps(t *testing.T) {
	withFakeInterrupts(t)
	f, w := New[int]()
	w.Finish(7)

	val, ok := f.TryUnwrap()
	if !ok || val != 7 {
		t.Fatalf("expected (7, true), got (%d, %v)", val, ok)
	}
}

func TestFinishTwicePanics(t *testing.T) {
	withFakeInterrupts(t)
	_, w := New[int]()
	w.Finish(1)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a second Finish to panic")
		}
	}()
	w.Finish(2)
}

func TestCloneSharesReadiness(t *testing.T) {
	withFakeInterrupts(t)
	f, w := New[int]()
	clone := f.Clone()
	w.Finish(99)

	val, ok := clone.TryUnwrap()
	if !ok || val != 99 {
		t.Fatalf("expected clone to observe (99, true), got (%d, %v)", val, ok)
	}
	val, ok = f.TryUnwrap()
	if !ok || val != 99 {
		t.Fatalf("expected original to observe (99, true), got (%d, %v)", val, ok)
	}
}

func TestCloneOfDoneFutureIsIndependent(t *testing.T) {
	f := Done(5)
	clone := f.Clone()
	if !clone.IsReady() {
		t.Fatal("expected a clone of a Done future to be ready")
	}
	val, _ := clone.TryUnwrapWithoutUpdate()
	if val != 5 {
		t.Fatalf("expected clone to carry the same value, got %d", val)
	}
}

func TestBlockUntilReadyReturnsImmediatelyWhenDone(t *testing.T) {
	setupScheduler(t, 4)
	f := Done(3)
	f.BlockUntilReady()
	val, ok := f.TryUnwrapWithoutUpdate()
	if !ok || val != 3 {
		t.Fatal("expected BlockUntilReady to leave an already-done future readable")
	}
}

func TestBlockUntilReadyPanicsInInterruptContext(t *testing.T) {
	setupScheduler(t, 4)
	f, w := New[int]()
	defer w.Finish(0)

	sched.BeginInterrupt()
	defer func() {
		if recover() == nil {
			t.Fatal("expected BlockUntilReady to panic in interrupt context")
		}
		sched.EndInterrupt()
	}()
	f.BlockUntilReady()
}

// TestBlockUntilReadyWithValueAlreadyAvailable checks the case where Finish
// has already run by the time BlockUntilReady is called: the value is
// already sitting in the cell, so BlockUntilReady must take the
// already-ready path rather than suspending. Driving the genuine
// suspend-then-resume path needs a real CPU actually dispatching the
// thread that called WakeOne back onto this one's saved instruction
// pointer, which this core's dispatcher tests never attempt either: they
// test the bookkeeping the dispatcher performs, not literal execution
// resumption, since that is the arch adapter's job.
func TestBlockUntilReadyWithValueAlreadyAvailable(t *testing.T) {
	p := setupScheduler(t, 4)
	runAsCurrent(t, p)

	f, w := New[int]()
	w.Finish(123)

	f.BlockUntilReady()
	val, ok := f.TryUnwrapWithoutUpdate()
	if !ok || val != 123 {
		t.Fatalf("expected (123, true) after BlockUntilReady, got (%d, %v)", val, ok)
	}
}

func TestFinishAfterAllReadersCloseDiscardsValue(t *testing.T) {
	withFakeInterrupts(t)
	f, w := New[int]()
	f.Close()

	w.Finish(1)
}

func TestFutureWriterLeakedWithoutFinishPanics(t *testing.T) {
	_, w := New[int]()
	defer func() {
		if recover() == nil {
			t.Fatal("expected the finalizer backstop to panic")
		}
	}()
	w.leaked()
}
