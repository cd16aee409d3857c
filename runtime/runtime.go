package runtime

import (
	"math"
	"math/rand"
	"strings"
)

// Frontend is the capability the runtime calls for `use` statements and
// for compiling the entry module: given a source path and its text,
// produce a compiled Program. Source-text scanning and grammar
// recognition live outside this package — the host wires a concrete
// Frontend (lexer+parser+Compiler) in from outside.
type Frontend interface {
	Compile(path, source string) (*Program, *Error)
}

// ModuleLoader resolves an import key (relative or absolute) against a
// base directory to a canonical path, its source text, and a
// staleness-detection mtime.
type ModuleLoader interface {
	Resolve(key, baseDir string) (canonicalPath string, source string, mtime int64, err *Error)
}

type moduleRecord struct {
	mtime int64
	obj   *ModuleObject
	id    ObjectId
}

// Runtime is self-contained interpreter state: one heap, one global
// environment, one inline-cache table, a module cache keyed by
// resolved path, and the hooks a host installs before running
// anything. No hidden statics — every execution is scoped to the
// Runtime instance that owns it.
type Runtime struct {
	heap       *Heap
	globalEnv  *Environment
	localSlots *LocalSlots
	ic         *InlineCaches

	structDefs map[string]*StructDef
	enumDefs   map[string]*EnumDef

	frontend     Frontend
	moduleLoader ModuleLoader
	moduleCache  map[string]*moduleRecord
	loading      map[string]bool
	stdlibPath   string
	entryPath    string

	liveVMs []*VM

	args []string
	rng  *rand.Rand

	output strings.Builder

	internCache map[string]ObjectId

	recursionLimit int
	callDepth      int
}

const defaultRecursionLimit = 2048

// NewRuntime builds an empty Runtime with a fresh heap, global scope,
// and inline-cache table sized for zero slots — ExecModule resizes the
// inline-cache arrays to whatever the compiled entry program needs.
func NewRuntime() *Runtime {
	rt := &Runtime{
		heap:           NewHeap(),
		globalEnv:      NewEnvironment(),
		localSlots:     NewLocalSlots(),
		ic:             NewInlineCaches(0, 0),
		structDefs:     make(map[string]*StructDef),
		enumDefs:       make(map[string]*EnumDef),
		moduleCache:    make(map[string]*moduleRecord),
		loading:        make(map[string]bool),
		internCache:    make(map[string]ObjectId),
		rng:            rand.New(rand.NewSource(1)),
		recursionLimit: defaultRecursionLimit,
	}
	InstallBuiltins(rt)
	return rt
}

func (rt *Runtime) SetFrontend(f Frontend)         { rt.frontend = f }
func (rt *Runtime) SetModuleLoader(m ModuleLoader) { rt.moduleLoader = m }
func (rt *Runtime) SetStdlibPath(path string)      { rt.stdlibPath = path }
func (rt *Runtime) SetEntryPath(path string)       { rt.entryPath = path }
func (rt *Runtime) SetArgs(args []string)          { rt.args = args }
func (rt *Runtime) SetRNGSeed(seed int64)          { rt.rng = rand.New(rand.NewSource(seed)) }

// TakeOutput drains and returns everything `print`/`println` have
// buffered so far.
func (rt *Runtime) TakeOutput() string {
	s := rt.output.String()
	rt.output.Reset()
	return s
}

// ExecExecutable compiles and runs a self-contained program using the
// entry path configured via SetEntryPath.
func (rt *Runtime) ExecExecutable(source string) (Value, *Error) {
	return rt.ExecModule(rt.entryPath, source)
}

// ExecModule compiles source via the installed Frontend and runs it as
// the entry program, returning the value of a top-level `return` when
// one runs, or Unit when execution reaches the end of the program.
func (rt *Runtime) ExecModule(path, source string) (Value, *Error) {
	if rt.frontend == nil {
		return Unit, NewError(DiagModuleNotFound, "no frontend installed")
	}
	prog, err := rt.frontend.Compile(path, source)
	if err != nil {
		return Unit, err
	}
	return rt.RunProgram(prog)
}

// RunProgram executes an already-compiled Program as the entry unit,
// sizing the inline-cache arrays to its totals and running the
// top-level frame to completion.
func (rt *Runtime) RunProgram(prog *Program) (Value, *Error) {
	rt.ic = NewInlineCaches(prog.ICFieldSlots, prog.ICMethodSlots)
	vm := newVM(rt)
	defer rt.releaseVM(vm)
	return vm.runEntry(prog, rt.globalEnv)
}

// --- value helpers used across methods.go / pretty.go / vm.go ----------

// internString returns a Value for s, reusing a prior allocation for
// the same content when one is already live — a coarser, content-keyed
// cousin of the per-(program, const-index) interning constant loads
// get, for strings synthesized at run time (method results, string
// concatenation) rather than read from a constant pool.
func (rt *Runtime) internString(s string) Value {
	// a sweep may have truncated the heap below a cached id
	if id, ok := rt.internCache[s]; ok && int(id) < len(rt.heap.objects) {
		if so, ok := rt.heap.Get(id).(*StrObject); ok && so.Text.String() == s {
			return StrVal(id)
		}
	}
	id := rt.heap.Alloc(&StrObject{Text: TextFromString(s)})
	rt.internCache[s] = id
	return StrVal(id)
}

func (rt *Runtime) someValue(v Value) Value {
	return OptionSomeVal(rt.heap.Alloc(&OptionSomeObject{Inner: v}))
}

func (rt *Runtime) noneValue() Value {
	return EnumVal(rt.heap.Alloc(&EnumObject{TypeName: "Option", VariantName: "None"}))
}

// valuesEqual implements recursive equality: bitwise for scalars,
// cross-type numeric coercion, and cycle-detecting structural
// comparison for lists/tuples/dicts/structs/enums.
func (rt *Runtime) valuesEqual(a, b Value) bool {
	return rt.valuesEqualVisited(a, b, make(map[[2]ObjectId]bool))
}

func (rt *Runtime) valuesEqualVisited(a, b Value, visited map[[2]ObjectId]bool) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if a.IsInt() && b.IsInt() {
			return a.AsI64() == b.AsI64()
		}
		return a.AsNumber() == b.AsNumber()
	}
	if a.IsBool() || b.IsBool() {
		return a.IsBool() && b.IsBool() && a.AsBool() == b.AsBool()
	}
	if a.IsUnit() || b.IsUnit() {
		return a.IsUnit() && b.IsUnit()
	}
	if a.GetTag() != b.GetTag() {
		return false
	}
	if !a.IsObj() {
		return a == b
	}
	idA, idB := a.AsObjID(), b.AsObjID()
	if idA == idB {
		return true
	}
	key := [2]ObjectId{idA, idB}
	if visited[key] {
		return true
	}
	visited[key] = true

	switch a.GetTag() {
	case TagStr:
		return rt.strText(a).Equal(rt.strText(b))
	case TagList:
		la, lb := rt.listObj(a), rt.listObj(b)
		if len(la.Elements) != len(lb.Elements) {
			return false
		}
		for i := range la.Elements {
			if !rt.valuesEqualVisited(la.Elements[i], lb.Elements[i], visited) {
				return false
			}
		}
		return true
	case TagTuple:
		ta := rt.heap.Get(idA).(*TupleObject)
		tb := rt.heap.Get(idB).(*TupleObject)
		if len(ta.Elements) != len(tb.Elements) {
			return false
		}
		for i := range ta.Elements {
			if !rt.valuesEqualVisited(ta.Elements[i], tb.Elements[i], visited) {
				return false
			}
		}
		return true
	case TagDict:
		da, db := rt.dictObj(a), rt.dictObj(b)
		if da.Len() != db.Len() {
			return false
		}
		for idx, ok := range da.hasElement {
			if !ok {
				continue
			}
			bv, ok := db.GetInt(int64(idx))
			if !ok || !rt.valuesEqualVisited(da.elements[idx], bv, visited) {
				return false
			}
		}
		for _, k := range da.m.Keys() {
			av, _ := da.m.Get(rt.heap, k)
			bv, ok := db.GetStr(rt.heap, k)
			if !ok || !rt.valuesEqualVisited(av, bv, visited) {
				return false
			}
		}
		return true
	case TagStruct:
		sa := rt.heap.Get(idA).(*StructObject)
		sb := rt.heap.Get(idB).(*StructObject)
		if sa.TypeName != sb.TypeName || len(sa.Fields) != len(sb.Fields) {
			return false
		}
		for i := range sa.Fields {
			if !rt.valuesEqualVisited(sa.Fields[i], sb.Fields[i], visited) {
				return false
			}
		}
		return true
	case TagEnum:
		ea := rt.heap.Get(idA).(*EnumObject)
		eb := rt.heap.Get(idB).(*EnumObject)
		if ea.TypeName != eb.TypeName || ea.VariantName != eb.VariantName || len(ea.Payload) != len(eb.Payload) {
			return false
		}
		for i := range ea.Payload {
			if !rt.valuesEqualVisited(ea.Payload[i], eb.Payload[i], visited) {
				return false
			}
		}
		return true
	case TagOption:
		soa, aok := rt.heap.Get(idA).(*OptionSomeObject)
		sob, bok := rt.heap.Get(idB).(*OptionSomeObject)
		if aok != bok {
			return false
		}
		if !aok {
			return true
		}
		return rt.valuesEqualVisited(soa.Inner, sob.Inner, visited)
	default:
		return false
	}
}

func floatRound(f float64) float64 { return math.Round(f) }
func floatFloor(f float64) float64 { return math.Floor(f) }
func floatCeil(f float64) float64  { return math.Ceil(f) }

// CallValue invokes a callable Value (bytecode function, closure, or
// builtin) with args and runs it to completion on a fresh VM. Built-in
// methods that take a function argument (list.reduce, option.map, ...)
// call it; the VM's Call/CallMethod opcodes call VM.invoke directly.
func (rt *Runtime) CallValue(fn Value, args []Value) (Value, *Error) {
	if fn.GetTag() != TagFunc {
		return Unit, errNotCallable(fn.TypeName())
	}
	vm := newVM(rt)
	defer rt.releaseVM(vm)
	return vm.invoke(fn, args)
}

// HeapStats exposes the heap_stats builtin's payload.
func (rt *Runtime) HeapStats() HeapStats { return rt.heap.Stats() }

// CollectGarbage runs an explicit mark-sweep cycle. The internal root
// set — globals, active LocalSlots, every live VM's operand and
// iterator stacks, the module cache — is always included; extraRoots
// adds whatever the caller is holding outside those.
func (rt *Runtime) CollectGarbage(extraRoots Roots) {
	rt.collectWith(extraRoots)
}
