package kernel

import (
	"hydroxos/kernel/cpu"
	"hydroxos/kernel/kfmt/early"
)

// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
var cpuHaltFn = cpu.Halt

const panicBanner = "\n-----------------------------------\n"

// Panic reports an unrecoverable error to the active terminal and halts the
// CPU. Calls to Panic never return.
func Panic(e interface{}) {
	err := causeOf(e)

	early.Printf(panicBanner)
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf(panicBanner)

	cpuHaltFn()
}

// causeOf normalizes whatever was passed to Panic into an *Error. A string
// or error cause is attributed to the "rt" module, since it did not
// originate from a package that already builds its own Error values; any
// other type (including nil) carries no reportable cause.
func causeOf(e interface{}) *Error {
	switch t := e.(type) {
	case *Error:
		return t
	case string:
		return &Error{Module: "rt", Message: t}
	case error:
		return &Error{Module: "rt", Message: t.Error()}
	default:
		return nil
	}
}
