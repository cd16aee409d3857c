package runtime

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	goruntime "runtime"
)

// InstallBuiltins populates the global frame with the language's fixed
// set of free functions. Builtins are flat globals — every script sees
// them without an explicit `use`.
func InstallBuiltins(rt *Runtime) {
	def := func(name string, fn BuiltinFunc) {
		id := rt.heap.Alloc(&FuncObject{Kind: FuncKindBuiltin, Builtin: fn, Name: name})
		rt.globalEnv.Define(name, FuncVal(id))
	}

	def("print", builtinPrint)
	def("println", builtinPrintln)
	def("input", builtinInput)

	def("time_unix", func(rt *Runtime, args []Value) (Value, *Error) {
		return FromI64(time.Now().Unix()), nil
	})
	def("time_millis", func(rt *Runtime, args []Value) (Value, *Error) {
		return FromI64(time.Now().UnixMilli()), nil
	})
	def("mono_micros", func(rt *Runtime, args []Value) (Value, *Error) {
		return FromI64(monotonicNanos() / 1000), nil
	})
	def("mono_nanos", func(rt *Runtime, args []Value) (Value, *Error) {
		return FromI64(monotonicNanos()), nil
	})

	def("rand", builtinRand)
	def("abs", builtinAbs)
	def("max", builtinMax)
	def("min", builtinMin)
	def("parse_int", builtinParseInt)
	def("parse_float", builtinParseFloat)
	def("to_text", func(rt *Runtime, args []Value) (Value, *Error) {
		return rt.internString(rt.displayString(args[0])), nil
	})

	def("builder_new", func(rt *Runtime, args []Value) (Value, *Error) {
		id := rt.heap.Alloc(&BuilderObject{})
		return BuilderVal(id), nil
	})
	def("builder_new_cap", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 1 || !args[0].IsInt() {
			return Unit, errTypeMismatch("int", args[0].TypeName())
		}
		id := rt.heap.Alloc(&BuilderObject{Buf: make([]byte, 0, args[0].AsI64())})
		return BuilderVal(id), nil
	})
	def("builder_push", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 2 || args[0].GetTag() != TagBuilder {
			return Unit, errTypeMismatch("builder", args[0].TypeName())
		}
		b := rt.heap.Get(args[0].AsObjID()).(*BuilderObject)
		b.Buf = append(b.Buf, rt.displayString(args[1])...)
		return Unit, nil
	})
	def("builder_finalize", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 1 || args[0].GetTag() != TagBuilder {
			return Unit, errTypeMismatch("builder", args[0].TypeName())
		}
		b := rt.heap.Get(args[0].AsObjID()).(*BuilderObject)
		return rt.internString(string(b.Buf)), nil
	})

	def("os_args", func(rt *Runtime, args []Value) (Value, *Error) {
		elems := make([]Value, len(rt.args))
		for i, a := range rt.args {
			elems[i] = rt.internString(a)
		}
		return ListVal(rt.heap.Alloc(&ListObject{Elements: elems})), nil
	})
	def("env_get", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 1 || args[0].GetTag() != TagStr {
			return Unit, errTypeMismatch("string", args[0].TypeName())
		}
		v, ok := os.LookupEnv(rt.strText(args[0]).String())
		if !ok {
			return rt.noneValue(), nil
		}
		return rt.someValue(rt.internString(v)), nil
	})
	def("process_rss", func(rt *Runtime, args []Value) (Value, *Error) {
		var m goruntime.MemStats
		goruntime.ReadMemStats(&m)
		return FromI64(int64(m.Sys)), nil
	})
	def("heap_stats", func(rt *Runtime, args []Value) (Value, *Error) {
		stats := rt.HeapStats()
		d := NewDictObject()
		set := func(name string, n int) {
			d.InsertStr(rt.heap, rt.dictKeyForValue(rt.internString(name)), FromI64(int64(n)))
		}
		set("total", stats.Total)
		set("strings", stats.Strings)
		set("lists", stats.Lists)
		set("dicts", stats.Dicts)
		set("structs", stats.Structs)
		set("enums", stats.Enums)
		set("functions", stats.Functions)
		set("free", stats.Free)
		return DictValOf(rt.heap.Alloc(d)), nil
	})
	def("gc", func(rt *Runtime, args []Value) (Value, *Error) {
		rt.CollectGarbage(Roots{})
		return Unit, nil
	})

	def("open", builtinOpen)
	def("assert", builtinAssert)
	def("assert_eq", builtinAssertEq)

	def("sin", unaryMathFn(math.Sin))
	def("cos", unaryMathFn(math.Cos))
	def("tan", unaryMathFn(math.Tan))
	def("sqrt", unaryMathFn(math.Sqrt))
	def("log", unaryMathFn(math.Log))
	def("pow", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 2 {
			return Unit, errTypeMismatch("pow(base, exp)", "insufficient args")
		}
		return FromF64(math.Pow(args[0].AsNumber(), args[1].AsNumber())), nil
	})

	def("contains", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 2 || args[0].GetTag() != TagStr {
			return Unit, errTypeMismatch("string", args[0].TypeName())
		}
		return FromBool(strings.Contains(rt.strText(args[0]).String(), rt.displayString(args[1]))), nil
	})
	def("starts_with", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 2 || args[0].GetTag() != TagStr {
			return Unit, errTypeMismatch("string", args[0].TypeName())
		}
		return FromBool(strings.HasPrefix(rt.strText(args[0]).String(), rt.displayString(args[1]))), nil
	})
	def("ends_with", func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 2 || args[0].GetTag() != TagStr {
			return Unit, errTypeMismatch("string", args[0].TypeName())
		}
		return FromBool(strings.HasSuffix(rt.strText(args[0]).String(), rt.displayString(args[1]))), nil
	})
}

func builtinPrint(rt *Runtime, args []Value) (Value, *Error) {
	for _, a := range args {
		rt.output.WriteString(rt.displayString(a))
	}
	return Unit, nil
}

func builtinPrintln(rt *Runtime, args []Value) (Value, *Error) {
	for _, a := range args {
		rt.output.WriteString(rt.displayString(a))
	}
	rt.output.WriteByte('\n')
	return Unit, nil
}

// builtinInput has no interactive console in the embedded-runtime
// setting this VM runs in, so it always reports end of input — callers
// that need scripted stdin wire it up through os_args / env_get
// instead.
func builtinInput(rt *Runtime, args []Value) (Value, *Error) {
	return rt.noneValue(), nil
}

func builtinRand(rt *Runtime, args []Value) (Value, *Error) {
	switch len(args) {
	case 0:
		return FromF64(rt.rng.Float64()), nil
	case 2:
		lo, hi := args[0].AsI64(), args[1].AsI64()
		if hi <= lo {
			return FromI64(lo), nil
		}
		return FromI64(lo + rt.rng.Int63n(hi-lo)), nil
	default:
		return Unit, errTypeMismatch("rand() or rand(lo, hi)", "wrong argument count")
	}
}

func builtinAbs(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) < 1 {
		return Unit, errTypeMismatch("abs(n)", "insufficient args")
	}
	v := args[0]
	if v.IsInt() {
		n := v.AsI64()
		if n < 0 {
			n = -n
		}
		return FromI64(n), nil
	}
	if v.IsF64() {
		return FromF64(math.Abs(v.AsF64())), nil
	}
	return Unit, errTypeMismatch("number", v.TypeName())
}

func builtinMax(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) == 0 {
		return Unit, errTypeMismatch("max(...)", "insufficient args")
	}
	best := args[0]
	for _, v := range args[1:] {
		if v.AsNumber() > best.AsNumber() {
			best = v
		}
	}
	return best, nil
}

func builtinMin(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) == 0 {
		return Unit, errTypeMismatch("min(...)", "insufficient args")
	}
	best := args[0]
	for _, v := range args[1:] {
		if v.AsNumber() < best.AsNumber() {
			best = v
		}
	}
	return best, nil
}

func builtinParseInt(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) < 1 || args[0].GetTag() != TagStr {
		return Unit, errTypeMismatch("string", args[0].TypeName())
	}
	n, err := strconv.ParseInt(strings.TrimSpace(rt.strText(args[0]).String()), 10, 64)
	if err != nil {
		return rt.noneValue(), nil
	}
	return rt.someValue(FromI64(n)), nil
}

func builtinParseFloat(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) < 1 || args[0].GetTag() != TagStr {
		return Unit, errTypeMismatch("string", args[0].TypeName())
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(rt.strText(args[0]).String()), 64)
	if err != nil {
		return rt.noneValue(), nil
	}
	return rt.someValue(FromF64(f)), nil
}

func unaryMathFn(fn func(float64) float64) BuiltinFunc {
	return func(rt *Runtime, args []Value) (Value, *Error) {
		if len(args) < 1 {
			return Unit, errTypeMismatch("number", "insufficient args")
		}
		return FromF64(fn(args[0].AsNumber())), nil
	}
}

func builtinOpen(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) < 1 || args[0].GetTag() != TagStr {
		return Unit, errTypeMismatch("string", args[0].TypeName())
	}
	path := rt.strText(args[0]).String()
	mode := "r"
	if len(args) > 1 && args[1].GetTag() == TagStr {
		mode = rt.strText(args[1]).String()
	}
	flag := os.O_RDONLY
	switch mode {
	case "w":
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return Unit, NewError(DiagFileNotFound, err.Error())
	}
	id := rt.heap.Alloc(&FileObject{Path: path, Handle: f})
	return FileVal(id), nil
}

func builtinAssert(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) < 1 {
		return Unit, NewError(DiagAssertionFailed, "assert() requires a condition")
	}
	if !args[0].IsBool() || !args[0].AsBool() {
		msg := "assertion failed"
		if len(args) > 1 {
			msg = rt.displayString(args[1])
		}
		return Unit, NewError(DiagAssertionFailed, msg)
	}
	return Unit, nil
}

func builtinAssertEq(rt *Runtime, args []Value) (Value, *Error) {
	if len(args) < 2 {
		return Unit, NewError(DiagAssertionFailed, "assert_eq() requires two values")
	}
	if !rt.valuesEqual(args[0], args[1]) {
		msg := "assertion failed: " + rt.displayString(args[0]) + " != " + rt.displayString(args[1])
		if len(args) > 2 {
			msg = rt.displayString(args[2])
		}
		return Unit, NewError(DiagAssertionFailed, msg)
	}
	return Unit, nil
}

func monotonicNanos() int64 {
	return time.Now().UnixNano()
}
