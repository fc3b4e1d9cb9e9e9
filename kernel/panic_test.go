package kernel

import (
	"bytes"
	"testing"

	"hydroxos/kernel/cpu"
	"hydroxos/kernel/hal"
)

type bufTerminal struct {
	bytes.Buffer
}

func (t *bufTerminal) WriteByte(b byte) { t.Buffer.WriteByte(b) }

func mockTerminal(t *testing.T) *bufTerminal {
	t.Helper()
	orig := hal.ActiveTerminal
	buf := &bufTerminal{}
	hal.ActiveTerminal = buf
	t.Cleanup(func() { hal.ActiveTerminal = orig })
	return buf
}

func TestPanic(t *testing.T) {
	defer func() { cpuHaltFn = cpu.Halt }()

	var cpuHaltCalled bool
	cpuHaltFn = func() { cpuHaltCalled = true }

	t.Run("with error", func(t *testing.T) {
		cpuHaltCalled = false
		buf := mockTerminal(t)
		err := &Error{Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		cpuHaltCalled = false
		buf := mockTerminal(t)

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("string cause", func(t *testing.T) {
		cpuHaltCalled = false
		buf := mockTerminal(t)

		Panic("went sideways")

		exp := "\n-----------------------------------\n[rt] unrecoverable error: went sideways\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
	})
}
