package boot

import (
	"strconv"
	"strings"

	"hydroxos/kernel/kfmt"
	"hydroxos/kernel/mem"
)

// Options parses and serves the kernel command line: a whitespace-separated
// sequence of key[=value] pairs, where value may be bare, single-quoted, or
// double-quoted.
type Options struct {
	values     map[string]string
	warnedOnce map[string]bool
}

// ParseOptions parses s into an Options set.
func ParseOptions(s string) *Options {
	o := &Options{values: make(map[string]string), warnedOnce: make(map[string]bool)}

	rest := s
	for {
		rest = strings.TrimLeft(rest, " \t\n\r")
		if rest == "" {
			break
		}

		end := strings.IndexAny(rest, " \t\n\r")
		// A quoted value runs to its closing quote, whitespace included.
		if eq := strings.IndexByte(rest, '='); eq >= 0 && (end < 0 || eq < end) && eq+1 < len(rest) && (rest[eq+1] == '"' || rest[eq+1] == '\'') {
			if closing := strings.IndexByte(rest[eq+2:], rest[eq+1]); closing >= 0 {
				end = eq + 2 + closing + 1
			}
		}
		var token string
		if end < 0 {
			token, rest = rest, ""
		} else {
			token, rest = rest[:end], rest[end:]
		}
		if token == "" {
			continue
		}

		eq := strings.IndexByte(token, '=')
		if eq < 0 {
			o.values[token] = ""
			continue
		}

		key := token[:eq]
		val := token[eq+1:]
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		o.values[key] = val
	}

	return o
}

// TryGet returns the raw string value for key and whether it was present.
func (o *Options) TryGet(key string) (string, bool) {
	v, ok := o.values[key]
	return v, ok
}

// warnInvalidOnce logs a warning for key the first time it is seen with an
// unparsable value; subsequent calls for the same key are silent.
func (o *Options) warnInvalidOnce(key, raw string) {
	if o.warnedOnce[key] {
		return
	}
	o.warnedOnce[key] = true
	kfmt.Printf("boot: option %s has invalid value %s\n", key, raw)
}

// GetString returns the string value for key, or def if it is not present.
func (o *Options) GetString(key, def string) string {
	if v, ok := o.values[key]; ok {
		return v
	}
	return def
}

// GetFlag treats a bare key (or one with a truthy value) as true. A missing
// key returns false.
func (o *Options) GetFlag(key string) bool {
	v, ok := o.values[key]
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, ok := parseBool(v)
	if !ok {
		o.warnInvalidOnce(key, v)
		return true
	}
	return b
}

// GetBool parses key as a bool, accepting 0/1/false/true/no/yes.
func (o *Options) GetBool(key string, def bool) bool {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	b, ok := parseBool(v)
	if !ok {
		o.warnInvalidOnce(key, v)
		return def
	}
	return b
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "0", "false", "no":
		return false, true
	case "1", "true", "yes":
		return true, true
	default:
		return false, false
	}
}

// GetInt64 parses key as a signed 64-bit integer.
func (o *Options) GetInt64(key string, def int64) int64 {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		o.warnInvalidOnce(key, v)
		return def
	}
	return n
}

// GetUint64 parses key as an unsigned 64-bit integer.
func (o *Options) GetUint64(key string, def uint64) uint64 {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		o.warnInvalidOnce(key, v)
		return def
	}
	return n
}

// GetInt32 parses key as a signed 32-bit integer.
func (o *Options) GetInt32(key string, def int32) int32 {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		o.warnInvalidOnce(key, v)
		return def
	}
	return int32(n)
}

// GetUint32 parses key as an unsigned 32-bit integer.
func (o *Options) GetUint32(key string, def uint32) uint32 {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		o.warnInvalidOnce(key, v)
		return def
	}
	return uint32(n)
}

// GetSize parses key as an unsigned integer byte count, accepting an
// optional k/m/g suffix (case-insensitive) to scale it into a mem.Size, e.g.
// "heap=64m".
func (o *Options) GetSize(key string, def mem.Size) mem.Size {
	v, ok := o.values[key]
	if !ok {
		return def
	}

	scale := mem.Byte
	switch {
	case strings.HasSuffix(v, "k") || strings.HasSuffix(v, "K"):
		scale, v = mem.Kb, v[:len(v)-1]
	case strings.HasSuffix(v, "m") || strings.HasSuffix(v, "M"):
		scale, v = mem.Mb, v[:len(v)-1]
	case strings.HasSuffix(v, "g") || strings.HasSuffix(v, "G"):
		scale, v = mem.Gb, v[:len(v)-1]
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		o.warnInvalidOnce(key, v)
		return def
	}
	return mem.Size(n) * scale
}

// Iter calls f once per key/value pair. Iteration order is unspecified.
func (o *Options) Iter(f func(key, value string)) {
	for k, v := range o.values {
		f(k, v)
	}
}

// IterGroup calls f once per key that begins with prefix, passing the key
// with the prefix stripped off.
func (o *Options) IterGroup(prefix string, f func(key, value string)) {
	for k, v := range o.values {
		if strings.HasPrefix(k, prefix) {
			f(strings.TrimPrefix(k, prefix), v)
		}
	}
}
