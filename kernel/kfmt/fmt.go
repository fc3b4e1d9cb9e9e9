// Package kfmt provides allocation-free formatted output for the kernel,
// with an output sink that can be redirected once a real console driver has
// been attached. Output written before that point is kept in a backlog
// buffer; kernel/kfmt/early.Printf instead writes straight to
// hal.ActiveTerminal.
package kfmt

// Writer is the minimal sink kfmt writes to. device.TTYDevice and
// hal.Terminal both satisfy it.
type Writer interface {
	WriteByte(b byte)
	Write(p []byte) (int, error)
}

var (
	sink    Writer
	backlog ringBuf
)

// SetOutputSink redirects kfmt's output to w, flushing anything buffered
// before w was attached. Passing the same sink twice is a no-op beyond the
// (harmless) repeated flush.
func SetOutputSink(w Writer) {
	sink = w
	backlog.flushTo(w)
}

// GetOutputSink returns the current output sink, or nil if none has been
// attached yet.
func GetOutputSink() Writer {
	return sink
}

func emit(p []byte) {
	if sink == nil {
		backlog.write(p)
		return
	}
	sink.Write(p)
}

func emitByte(b byte) {
	if sink == nil {
		backlog.writeByte(b)
		return
	}
	sink.WriteByte(b)
}

var (
	missingArg   = []byte("(MISSING)")
	wrongArgType = []byte("%!(WRONGTYPE)")
	noVerb       = []byte("%!(NOVERB)")
	extraArg     = []byte("%!(EXTRA)")
	boolTrue     = []byte("true")
	boolFalse    = []byte("false")
)

// Printf formats and writes to the current output sink (or the backlog, if
// none is attached yet). It understands the same small verb subset as
// kernel/kfmt/early.Printf: %s, %d, %o, %x, %t.
func Printf(format string, args ...interface{}) {
	fprintf(emit, emitByte, format, args)
}

// Fprintf formats and writes to w directly, bypassing the package-level
// sink. hal uses this to tag driver log lines with a PrefixWriter without
// disturbing the global sink.
func Fprintf(w Writer, format string, args ...interface{}) {
	fprintf(func(p []byte) { w.Write(p) }, w.WriteByte, format, args)
}

func fprintf(write func([]byte), writeByte func(byte), format string, args []interface{}) {
	argIdx := 0
	i := 0

	for i < len(format) {
		start := i
		for i < len(format) && format[i] != '%' {
			i++
		}
		write([]byte(format[start:i]))
		if i >= len(format) {
			break
		}

		i++ // format[i] == '%'
		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}

		if i >= len(format) {
			write(noVerb)
			break
		}

		verb := format[i]
		i++

		if verb == '%' {
			writeByte('%')
			continue
		}

		if argIdx >= len(args) {
			write(missingArg)
			continue
		}
		arg := args[argIdx]
		argIdx++

		switch verb {
		case 'd':
			writeInt(write, arg, 10, width)
		case 'o':
			writeInt(write, arg, 8, width)
		case 'x':
			writeInt(write, arg, 16, width)
		case 's':
			writeStr(write, arg, width)
		case 't':
			writeBool(write, arg)
		default:
			write(noVerb)
		}
	}

	for ; argIdx < len(args); argIdx++ {
		write(extraArg)
	}
}

func writeBool(write func([]byte), v interface{}) {
	b, ok := v.(bool)
	if !ok {
		write(wrongArgType)
		return
	}
	if b {
		write(boolTrue)
	} else {
		write(boolFalse)
	}
}

func writeStr(write func([]byte), v interface{}, width int) {
	var s []byte
	switch t := v.(type) {
	case string:
		s = []byte(t)
	case []byte:
		s = t
	default:
		write(wrongArgType)
		return
	}
	if pad := width - len(s); pad > 0 {
		for ; pad > 0; pad-- {
			write([]byte{' '})
		}
	}
	write(s)
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

func writeInt(write func([]byte), v interface{}, base, width int) {
	sval, uval, ok := toInt64Pair(v)
	if !ok {
		write(wrongArgType)
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
		if n > 0 && digits[n-1] == ' ' {
			digits[n-1] = '-'
		} else {
			digits[n] = '-'
			n++
		}
	}

	for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
		digits[l], digits[r] = digits[r], digits[l]
	}
	write(digits[:n])
}
