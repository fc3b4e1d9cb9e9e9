// Package early implements a tiny, allocation-free Printf that is safe to
// call the moment Kmain starts running: before a frame allocator, a heap, or
// even hal.ActiveTerminal's backing console exists. Everything it writes
// goes straight to hal.ActiveTerminal, which is always non-nil (it falls
// back to a no-op sink until a real console driver attaches).
package early

import "hydroxos/kernel/hal"

var (
	missingArg   = []byte("(MISSING)")
	wrongArgType = []byte("%!(WRONGTYPE)")
	noVerb       = []byte("%!(NOVERB)")
	extraArg     = []byte("%!(EXTRA)")
	boolTrue     = []byte("true")
	boolFalse    = []byte("false")
)

// Printf writes a formatted string to hal.ActiveTerminal without allocating.
// It understands a deliberately small subset of fmt.Printf's verbs:
//
//	%s  string or []byte, left-padded with spaces to an optional width
//	%d  signed/unsigned integer, base 10, left-padded with spaces
//	%o  signed/unsigned integer, base 8, left-padded with zeroes
//	%x  signed/unsigned integer, base 16 (lower-case), left-padded with zeroes
//	%t  bool
//
// Pointers (%p) are intentionally unsupported: formatting one would require
// the reflect package, which drags in runtime.convT2E / runtime.newobject
// and would allocate from a heap that may not exist yet.
func Printf(format string, args ...interface{}) {
	argIdx := 0
	i := 0

	for i < len(format) {
		start := i
		for i < len(format) && format[i] != '%' {
			i++
		}
		writeString(format[start:i])
		if i >= len(format) {
			break
		}

		// format[i] == '%'
		i++
		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}

		if i >= len(format) {
			hal.ActiveTerminal.Write(noVerb)
			break
		}

		verb := format[i]
		i++

		if verb == '%' {
			hal.ActiveTerminal.WriteByte('%')
			continue
		}

		if argIdx >= len(args) {
			hal.ActiveTerminal.Write(missingArg)
			continue
		}
		arg := args[argIdx]
		argIdx++

		switch verb {
		case 'd':
			writeInt(arg, 10, width)
		case 'o':
			writeInt(arg, 8, width)
		case 'x':
			writeInt(arg, 16, width)
		case 's':
			writeStr(arg, width)
		case 't':
			writeBool(arg)
		default:
			hal.ActiveTerminal.Write(noVerb)
		}
	}

	for ; argIdx < len(args); argIdx++ {
		hal.ActiveTerminal.Write(extraArg)
	}
}

func writeString(s string) {
	for i := 0; i < len(s); i++ {
		hal.ActiveTerminal.WriteByte(s[i])
	}
}

func writeBool(v interface{}) {
	b, ok := v.(bool)
	if !ok {
		hal.ActiveTerminal.Write(wrongArgType)
		return
	}
	if b {
		hal.ActiveTerminal.Write(boolTrue)
	} else {
		hal.ActiveTerminal.Write(boolFalse)
	}
}

func writeStr(v interface{}, width int) {
	var s []byte
	switch t := v.(type) {
	case string:
		s = []byte(t)
	case []byte:
		s = t
	default:
		hal.ActiveTerminal.Write(wrongArgType)
		return
	}
	for pad := width - len(s); pad > 0; pad-- {
		hal.ActiveTerminal.WriteByte(' ')
	}
	hal.ActiveTerminal.Write(s)
}

// toInt64Pair converts any built-in integer type to a (signed, unsigned)
// pair, using whichever of the two actually holds the value.
func toInt64Pair(v interface{}) (sval int64, uval uint64, ok bool) {
	switch t := v.(type) {
	case uint8:
		return 0, uint64(t), true
	case uint16:
		return 0, uint64(t), true
	case uint32:
		return 0, uint64(t), true
	case uint64:
		return 0, t, true
	case uintptr:
		return 0, uint64(t), true
	case int8:
		return int64(t), 0, true
	case int16:
		return int64(t), 0, true
	case int32:
		return int64(t), 0, true
	case int64:
		return t, 0, true
	case int:
		return int64(t), 0, true
	default:
		return 0, 0, false
	}
}

func writeInt(v interface{}, base, width int) {
	sval, uval, ok := toInt64Pair(v)
	if !ok {
		hal.ActiveTerminal.Write(wrongArgType)
		return
	}

	negative := sval < 0
	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	var digits [24]byte
	n := 0
	for {
		d := uval % uint64(base)
		if d < 10 {
			digits[n] = byte(d) + '0'
		} else {
			digits[n] = byte(d-10) + 'a'
		}
		n++
		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}

	padCh := byte(' ')
	if base != 10 {
		padCh = '0'
	}
	for n < width {
		digits[n] = padCh
		n++
	}
	if negative {
		// Replace a trailing pad space with the sign if there is room,
		// otherwise grow by one character.
		if n > 0 && digits[n-1] == ' ' {
			digits[n-1] = '-'
		} else {
			digits[n] = '-'
			n++
		}
	}

	// digits currently holds the number least-significant-digit first;
	// reverse it in place before writing it out.
	for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
		digits[l], digits[r] = digits[r], digits[l]
	}
	hal.ActiveTerminal.Write(digits[:n])
}
