package runtime

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
)

// gcProbeMask gates the periodic safepoint inside the dispatch loop:
// every 1024 instructions the VM offers the heap a chance to collect,
// with every live operand stack supplied as roots. Power of two so the
// check is a single mask.
const gcProbeMask = 1023

const (
	fastUndecided int8 = iota
	fastPrimitive
	fastParams
	fastNone
)

// int48 bounds: the widest integer a NaN-boxed Value payload holds.
// Add/Sub/Mul saturate here; Div/Mod are checked instead.
const (
	maxInt48 = int64(1)<<47 - 1
	minInt48 = -(int64(1) << 47)
)

// kvLoopPrefix marks a foreach variable that should iterate key/value
// tuples instead of bare keys; the frontend's desugaring of
// `foreach (k, v) in d` renames the loop variable with this prefix.
const kvLoopPrefix = "__kv_"

// execFrame is the per-run() state: one operand stack, one iterator
// stack, and the environment the frame resolves names against. Kept on
// the VM so a mid-run collection can see every live stack as a root.
type execFrame struct {
	prog  *Program
	stack []Value
	iters []*IterState
	env   *Environment
}

func (f *execFrame) push(v Value) { f.stack = append(f.stack, v) }

func (f *execFrame) pop() Value {
	n := len(f.stack) - 1
	if n < 0 {
		return Unit
	}
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

func (f *execFrame) peek() Value {
	if n := len(f.stack); n > 0 {
		return f.stack[n-1]
	}
	return Unit
}

// popN removes the top n values and returns them in push order.
func (f *execFrame) popN(n int) []Value {
	if n == 0 {
		return nil
	}
	start := len(f.stack) - n
	if start < 0 {
		start = 0
	}
	out := make([]Value, len(f.stack)-start)
	copy(out, f.stack[start:])
	f.stack = f.stack[:start]
	return out
}

// VM is one thread of bytecode execution. A Runtime may have several
// live at once (nested calls out of builtins like list.reduce spin up
// their own), all registered on rt.liveVMs so the collector can walk
// every operand stack.
type VM struct {
	rt     *Runtime
	frames []*execFrame
	temps  []Value // roots for multi-step allocations
	steps  uint64
}

func newVM(rt *Runtime) *VM {
	vm := &VM{rt: rt}
	rt.liveVMs = append(rt.liveVMs, vm)
	return vm
}

func (rt *Runtime) releaseVM(vm *VM) {
	for i := len(rt.liveVMs) - 1; i >= 0; i-- {
		if rt.liveVMs[i] == vm {
			rt.liveVMs = append(rt.liveVMs[:i], rt.liveVMs[i+1:]...)
			return
		}
	}
}

// runEntry executes a compiled module's top-level frame: a LocalSlots
// frame sized for the compiler's top-level slot assignment, resolved
// against env (normally the Runtime's global environment).
func (vm *VM) runEntry(prog *Program, env *Environment) (Value, *Error) {
	vm.rt.localSlots.Push()
	vm.rt.localSlots.GrowTo(prog.LocalsMax)
	v, err := vm.run(prog, env)
	vm.rt.localSlots.Pop()
	return v, err
}

// invoke runs a callable Value to completion: the call protocol of
// saving caller frame state, binding parameters, executing the body,
// and restoring on the way out.
func (vm *VM) invoke(fn Value, args []Value) (Value, *Error) {
	if fn.GetTag() != TagFunc {
		return Unit, errNotCallable(fn.TypeName())
	}
	fo := vm.rt.heap.Get(fn.AsObjID()).(*FuncObject)
	if fo.Kind == FuncKindBuiltin {
		return fo.Builtin(vm.rt, args)
	}
	bc := fo.Bytecode

	if len(args) != bc.Arity {
		return Unit, NewError(DiagTypeMismatchDetailed,
			fmt.Sprintf("%s expects %d arguments, got %d", fnDisplayName(bc), bc.Arity, len(args)))
	}
	for i, want := range bc.ParamType {
		if want != "" && !typeNameMatches(vm.rt, args[i], want) {
			return Unit, NewError(DiagTypeMismatchDetailed,
				fmt.Sprintf("%s parameter '%s' expects %s, got %s", fnDisplayName(bc), bc.Params[i], want, args[i].TypeName()))
		}
	}

	rt := vm.rt
	if rt.callDepth >= rt.recursionLimit {
		return Unit, errRecursionLimitExceeded(rt.recursionLimit)
	}
	rt.callDepth++

	// args live only in this Go frame once popped off an operand
	// stack; keep them rooted for any collection inside the call
	tempsMark := len(vm.temps)
	vm.temps = append(vm.temps, fn)
	vm.temps = append(vm.temps, args...)
	defer func() { vm.temps = vm.temps[:tempsMark] }()

	if bc.fastKind == fastUndecided {
		bc.fastKind = classifyFast(bc)
	}
	switch bc.fastKind {
	case fastPrimitive:
		if v, ok := runPrimitive(bc, args); ok {
			rt.callDepth--
			return vm.checkReturn(bc, v)
		}
	case fastParams:
		if v, ok := runParamsOnly(bc, args); ok {
			rt.callDepth--
			return vm.checkReturn(bc, v)
		}
	}

	env := bc.Env
	if env == nil {
		env = rt.globalEnv
	}

	rt.localSlots.Push()
	var ret Value
	var err *Error
	if bc.EnvMode {
		env.Push()
		for i, p := range bc.Params {
			env.Define(p, args[i])
		}
		ret, err = vm.run(bc.Program, env)
		env.PopWithoutClear()
	} else {
		rt.localSlots.GrowTo(bc.LocalsMax)
		for i, slot := range bc.ParamSlots {
			rt.localSlots.SetByIndex(slot, args[i])
		}
		ret, err = vm.run(bc.Program, env)
	}
	rt.localSlots.Pop()
	rt.callDepth--

	if err != nil {
		return Unit, err
	}
	return vm.checkReturn(bc, ret)
}

func (vm *VM) checkReturn(bc *BytecodeFunction, v Value) (Value, *Error) {
	if bc.ReturnType != "" && !typeNameMatches(vm.rt, v, bc.ReturnType) {
		return Unit, NewError(DiagReturnTypeMismatch,
			fmt.Sprintf("%s declares return type %s, returned %s", fnDisplayName(bc), bc.ReturnType, v.TypeName()))
	}
	return v, nil
}

func fnDisplayName(bc *BytecodeFunction) string {
	if bc.Name == "" {
		return "<anonymous function>"
	}
	return bc.Name
}

func typeNameMatches(rt *Runtime, v Value, want string) bool {
	if v.TypeName() == want {
		return true
	}
	if want == "number" {
		return v.IsNumeric()
	}
	switch v.GetTag() {
	case TagStruct:
		return rt.heap.Get(v.AsObjID()).(*StructObject).TypeName == want
	case TagEnum:
		return rt.heap.Get(v.AsObjID()).(*EnumObject).TypeName == want
	case TagOption:
		return want == "Option"
	}
	return false
}

// findHandler locates the innermost try range covering ip, returning
// its catch target.
func findHandler(prog *Program, ip int) (int, bool) {
	best := -1
	target := 0
	for _, r := range prog.TryRanges {
		if ip >= r.Start && ip < r.End && r.Start > best {
			best = r.Start
			target = r.End
		}
	}
	return target, best >= 0
}

// run is the dispatch loop: a switch over ops[ip], each arm advancing
// ip past its operands or installing a jump target. An arm that fails
// leaves ip on the faulting op and sets err; the tail of the loop
// either transfers to a covering catch handler or unwinds.
func (vm *VM) run(prog *Program, env *Environment) (Value, *Error) {
	rt := vm.rt
	f := &execFrame{prog: prog, env: env, stack: make([]Value, 0, 32)}
	vm.frames = append(vm.frames, f)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()

	code := prog.Code
	consts := prog.Consts
	ip := 0

	for ip < len(code) {
		vm.steps++
		if vm.steps&gcProbeMask == 0 && rt.heap.ShouldGC() {
			rt.collectAll()
		}

		var err *Error

		switch Op(code[ip]) {
		case OpConstInt:
			// fused int-accumulate: ConstInt n; Add; StoreLocal s
			if ip+4 < len(code) && Op(code[ip+2]) == OpAdd && Op(code[ip+3]) == OpStoreLocal && f.peek().IsInt() {
				sum := satAdd(f.pop().AsI64(), consts[code[ip+1]].Int)
				vm.storeLocal(code[ip+4], FromI64(sum))
				ip += 5
				continue
			}
			f.push(FromI64(consts[code[ip+1]].Int))
			ip += 2
		case OpConstFloat:
			f.push(FromF64(consts[code[ip+1]].Float))
			ip += 2
		case OpConst:
			c := consts[code[ip+1]]
			switch c.Kind {
			case ConstKindStr:
				f.push(rt.internString(c.Str))
			case ConstKindInt:
				f.push(FromI64(c.Int))
			case ConstKindFloat:
				f.push(FromF64(c.Float))
			default:
				f.push(Unit)
			}
			ip += 2
		case OpConstBool:
			f.push(FromBool(code[ip+1] != 0))
			ip += 2
		case OpConstUnit:
			f.push(Unit)
			ip++
		case OpPop:
			f.pop()
			ip++
		case OpDup:
			f.push(f.peek())
			ip++

		case OpLoadName:
			name := consts[code[ip+1]].Str
			if v, ok := vm.lookupName(f, name); ok {
				f.push(v)
				ip += 2
			} else {
				err = errUndefinedIdentifier(name)
			}
		case OpStoreName:
			name := consts[code[ip+1]].Str
			vm.storeName(f, name, f.pop())
			ip += 2
		case OpLoadLocal:
			v, _ := rt.localSlots.GetByIndex(code[ip+1])
			f.push(v)
			ip += 2
		case OpStoreLocal:
			vm.storeLocal(code[ip+1], f.pop())
			ip += 2
		case OpIncLocal:
			slot, delta := code[ip+1], int64(code[ip+2])
			cur, _ := rt.localSlots.GetByIndex(slot)
			if cur.IsInt() {
				vm.storeLocal(slot, FromI64(satAdd(cur.AsI64(), delta)))
			} else if cur.IsF64() {
				vm.storeLocal(slot, FromF64(cur.AsF64()+float64(delta)))
			} else {
				err = errTypeMismatch("number", cur.TypeName())
			}
			if err == nil {
				ip += 3
			}
		case OpAddAssignName:
			name := consts[code[ip+1]].Str
			rhs := f.pop()
			cur, ok := vm.lookupName(f, name)
			if !ok {
				err = errUndefinedIdentifier(name)
				break
			}
			var sum Value
			sum, err = vm.addValues(cur, rhs)
			if err == nil {
				vm.storeName(f, name, sum)
				ip += 2
			}
		case OpAddAssignLocal:
			slot := code[ip+1]
			rhs := f.pop()
			cur, _ := rt.localSlots.GetByIndex(slot)
			var sum Value
			sum, err = vm.addValues(cur, rhs)
			if err == nil {
				vm.storeLocal(slot, sum)
				ip += 2
			}

		case OpAdd:
			b, a := f.pop(), f.pop()
			if a.IsInt() && b.IsInt() {
				f.push(FromI64(satAdd(a.AsI64(), b.AsI64())))
				ip++
				break
			}
			var sum Value
			sum, err = vm.addValues(a, b)
			if err == nil {
				f.push(sum)
				ip++
			}
		case OpSub:
			b, a := f.pop(), f.pop()
			switch {
			case a.IsInt() && b.IsInt():
				f.push(FromI64(satSub(a.AsI64(), b.AsI64())))
			case a.IsNumeric() && b.IsNumeric():
				f.push(FromF64(a.AsNumber() - b.AsNumber()))
			default:
				err = errTypeMismatch("number", nonNumeric(a, b).TypeName())
			}
			if err == nil {
				ip++
			}
		case OpMul:
			b, a := f.pop(), f.pop()
			switch {
			case a.IsInt() && b.IsInt():
				f.push(FromI64(satMul(a.AsI64(), b.AsI64())))
			case a.IsNumeric() && b.IsNumeric():
				f.push(FromF64(a.AsNumber() * b.AsNumber()))
			default:
				err = errTypeMismatch("number", nonNumeric(a, b).TypeName())
			}
			if err == nil {
				ip++
			}
		case OpDiv:
			b, a := f.pop(), f.pop()
			switch {
			case a.IsInt() && b.IsInt():
				if b.AsI64() == 0 {
					err = errDivisionByZero()
				} else {
					f.push(FromI64(a.AsI64() / b.AsI64()))
				}
			case a.IsNumeric() && b.IsNumeric():
				if b.AsNumber() == 0 {
					err = errDivisionByZero()
				} else {
					f.push(FromF64(a.AsNumber() / b.AsNumber()))
				}
			default:
				err = errTypeMismatch("number", nonNumeric(a, b).TypeName())
			}
			if err == nil {
				ip++
			}
		case OpMod:
			b, a := f.pop(), f.pop()
			switch {
			case a.IsInt() && b.IsInt():
				if b.AsI64() == 0 {
					err = errDivisionByZero()
				} else {
					// Go's % already follows the sign of the dividend.
					f.push(FromI64(a.AsI64() % b.AsI64()))
				}
			case a.IsNumeric() && b.IsNumeric():
				if b.AsNumber() == 0 {
					err = errDivisionByZero()
				} else {
					f.push(FromF64(floatMod(a.AsNumber(), b.AsNumber())))
				}
			default:
				err = errTypeMismatch("number", nonNumeric(a, b).TypeName())
			}
			if err == nil {
				ip++
			}
		case OpAnd:
			b, a := f.pop(), f.pop()
			if !a.IsBool() || !b.IsBool() {
				err = errTypeMismatch("bool", nonBool(a, b).TypeName())
			} else {
				f.push(FromBool(a.AsBool() && b.AsBool()))
				ip++
			}
		case OpOr:
			b, a := f.pop(), f.pop()
			if !a.IsBool() || !b.IsBool() {
				err = errTypeMismatch("bool", nonBool(a, b).TypeName())
			} else {
				f.push(FromBool(a.AsBool() || b.AsBool()))
				ip++
			}
		case OpNot:
			v := f.pop()
			if !v.IsBool() {
				err = errTypeMismatch("bool", v.TypeName())
			} else {
				f.push(FromBool(!v.AsBool()))
				ip++
			}
		case OpEq:
			b, a := f.pop(), f.pop()
			f.push(FromBool(rt.valuesEqual(a, b)))
			ip++
		case OpNe:
			b, a := f.pop(), f.pop()
			f.push(FromBool(!rt.valuesEqual(a, b)))
			ip++
		case OpGt, OpLt, OpGe, OpLe:
			b, a := f.pop(), f.pop()
			var cmp int
			var ok bool
			cmp, ok = vm.compareValues(a, b)
			if !ok {
				err = errTypeMismatch("comparable values", a.TypeName()+" and "+b.TypeName())
				break
			}
			switch Op(code[ip]) {
			case OpGt:
				f.push(FromBool(cmp > 0))
			case OpLt:
				f.push(FromBool(cmp < 0))
			case OpGe:
				f.push(FromBool(cmp >= 0))
			case OpLe:
				f.push(FromBool(cmp <= 0))
			}
			ip++

		case OpStrAppend:
			b, a := f.pop(), f.pop()
			f.push(rt.internString(rt.displayString(a) + rt.displayString(b)))
			ip++
		case OpBuilderNewCap:
			vm.maybeGC()
			id := rt.heap.Alloc(&BuilderObject{Buf: make([]byte, 0, code[ip+1])})
			f.push(BuilderVal(id))
			ip += 2
		case OpBuilderAppend:
			v := f.pop()
			b := f.peek()
			if b.GetTag() != TagBuilder {
				err = errTypeMismatch("builder", b.TypeName())
			} else {
				bo := rt.heap.Get(b.AsObjID()).(*BuilderObject)
				bo.Buf = append(bo.Buf, rt.displayString(v)...)
				ip++
			}
		case OpBuilderFinalize:
			b := f.pop()
			if b.GetTag() != TagBuilder {
				err = errTypeMismatch("builder", b.TypeName())
			} else {
				bo := rt.heap.Get(b.AsObjID()).(*BuilderObject)
				f.push(rt.internString(string(bo.Buf)))
				ip++
			}

		case OpListNew:
			vm.maybeGC()
			n := code[ip+1]
			elems := f.popN(n)
			f.push(ListVal(rt.heap.Alloc(&ListObject{Elements: elems})))
			ip += 2
		case OpTupleNew:
			vm.maybeGC()
			n := code[ip+1]
			elems := f.popN(n)
			f.push(TupleVal(rt.heap.Alloc(&TupleObject{Elements: elems})))
			ip += 2
		case OpDictNew:
			// operand is a capacity hint (the literal's written arity);
			// the dict is built empty and populated by DictInsert ops
			vm.maybeGC()
			d := NewDictObject()
			if hint := code[ip+1]; hint > 0 {
				d.m.entries = make([]dictMapEntry, 0, hint)
			}
			f.push(DictValOf(rt.heap.Alloc(d)))
			ip += 2
		case OpDictInsert:
			v := f.pop()
			k := f.pop()
			dv := f.peek()
			if dv.GetTag() != TagDict {
				err = errTypeMismatch("dict", dv.TypeName())
			} else {
				vm.dictInsert(rt.dictObj(dv), k, v)
				ip++
			}
		case OpDictMerge:
			src := f.pop()
			dst := f.peek()
			if dst.GetTag() != TagDict || src.GetTag() != TagDict {
				err = errTypeMismatch("dict", nonTag(TagDict, dst, src).TypeName())
			} else {
				_, err = rt.callDictMethod(dst, MethodMerge, []Value{src})
				if err == nil {
					ip++
				}
			}
		case OpMakeRange:
			vm.maybeGC()
			end, start := f.pop(), f.pop()
			if !start.IsInt() || !end.IsInt() {
				err = errTypeMismatch("int", nonTag(TagInt, start, end).TypeName())
			} else {
				id := rt.heap.Alloc(&RangeObject{Start: start.AsI64(), End: end.AsI64(), Inclusive: code[ip+1] != 0})
				f.push(RangeVal(id))
				ip += 2
			}

		case OpGetMember:
			name := consts[code[ip+1]].Str
			recv := f.pop()
			var v Value
			v, err = vm.getMember(recv, name, code[ip+2])
			if err == nil {
				f.push(v)
				ip += 3
			}
		case OpGetIndex:
			idx := f.pop()
			recv := f.pop()
			var v Value
			v, err = vm.getIndex(recv, idx, code[ip+1])
			if err == nil {
				f.push(v)
				ip += 2
			}
		case OpAssignMember:
			name := consts[code[ip+1]].Str
			val := f.pop()
			recv := f.pop()
			err = vm.assignMember(recv, name, val, CompoundOp(code[ip+2]))
			if err == nil {
				ip += 3
			}
		case OpAssignIndex:
			val := f.pop()
			idx := f.pop()
			recv := f.pop()
			err = vm.assignIndex(recv, idx, val, CompoundOp(code[ip+1]))
			if err == nil {
				ip += 2
			}
		case OpDictGetStrConst:
			name := consts[code[ip+1]].Str
			recv := f.pop()
			if recv.GetTag() != TagDict {
				err = errTypeMismatch("dict", recv.TypeName())
				break
			}
			d := rt.dictObj(recv)
			if v, ok := vm.dictMemberIC(d, recv.AsObjID(), name, code[ip+3]); ok {
				f.push(v)
				ip += 4
			} else {
				err = errKeyNotFound(name)
			}
		case OpDictGetIntConst:
			key := consts[code[ip+1]].Int
			recv := f.pop()
			if recv.GetTag() != TagDict {
				err = errTypeMismatch("dict", recv.TypeName())
				break
			}
			d := rt.dictObj(recv)
			if v, ok := d.GetInt(key); ok {
				f.push(v)
				ip += 3
			} else if v, ok := d.GetStr(rt.heap, IntKey(key)); ok {
				f.push(v)
				ip += 3
			} else {
				err = errKeyNotFound(i64ToString(key))
			}

		case OpDefineStruct:
			def := consts[code[ip+1]].StructDef
			rt.structDefs[def.Name] = def
			ip += 2
		case OpDefineEnum:
			def := consts[code[ip+1]].EnumDef
			rt.enumDefs[def.Name] = def
			ip += 2
		case OpStructInit:
			vm.maybeGC()
			typeName := consts[code[ip+1]].Str
			names := consts[code[ip+2]].Names
			vals := f.popN(len(names))
			var v Value
			v, err = vm.structInit(typeName, names, vals, Unit)
			if err == nil {
				f.push(v)
				ip += 3
			}
		case OpStructInitSpread:
			vm.maybeGC()
			typeName := consts[code[ip+1]].Str
			names := consts[code[ip+2]].Names
			spread := f.pop()
			vals := f.popN(len(names))
			var v Value
			v, err = vm.structInit(typeName, names, vals, spread)
			if err == nil {
				f.push(v)
				ip += 3
			}
		case OpEnumCtor:
			typeName := consts[code[ip+1]].Str
			variant := consts[code[ip+2]].Str
			var v Value
			v, err = vm.enumCtor(typeName, variant, nil)
			if err == nil {
				f.push(v)
				ip += 3
			}
		case OpEnumCtorN:
			vm.maybeGC()
			typeName := consts[code[ip+1]].Str
			variant := consts[code[ip+2]].Str
			payload := f.popN(code[ip+3])
			var v Value
			v, err = vm.enumCtor(typeName, variant, payload)
			if err == nil {
				f.push(v)
				ip += 4
			}
		case OpAssertType:
			want := consts[code[ip+1]].Str
			if !typeNameMatches(rt, f.peek(), want) {
				err = NewError(DiagTypeMismatchDetailed,
					fmt.Sprintf("expected %s, got %s", want, f.peek().TypeName()))
			} else {
				ip += 2
			}

		case OpMakeFunction:
			vm.maybeGC()
			tmpl := consts[code[ip+1]].FuncLit
			bc := *tmpl
			if len(f.env.frames) > 1 {
				bc.Env = f.env.Freeze()
			} else {
				bc.Env = f.env
			}
			id := rt.heap.Alloc(&FuncObject{Kind: FuncKindBytecode, Bytecode: &bc, Name: bc.Name})
			f.push(FuncVal(id))
			ip += 2
		case OpCall:
			argc := code[ip+1]
			args := f.popN(argc)
			callee := f.pop()
			var v Value
			v, err = vm.invoke(callee, args)
			if err == nil {
				f.push(v)
				ip += 2
			}
		case OpCallMethod:
			name := consts[code[ip+1]].Str
			methodHash := uint64(consts[code[ip+2]].Int)
			args := f.popN(code[ip+3])
			recv := f.pop()
			var v Value
			v, err = vm.callMethod(f, recv, name, methodHash, code[ip+4], args)
			if err == nil {
				f.push(v)
				ip += 5
			}
		case OpReturn:
			return f.pop(), nil
		case OpJump:
			ip = code[ip+1]
		case OpJumpIfFalse:
			cond := f.pop()
			if !cond.IsBool() {
				err = errInvalidConditionType(cond.TypeName())
			} else if !cond.AsBool() {
				ip = code[ip+1]
			} else {
				ip += 2
			}
		case OpJumpIfTrue:
			cond := f.pop()
			if !cond.IsBool() {
				err = errInvalidConditionType(cond.TypeName())
			} else if cond.AsBool() {
				ip = code[ip+1]
			} else {
				ip += 2
			}
		case OpBreak, OpContinue:
			ip = code[ip+1]

		case OpForEachInit:
			name := consts[code[ip+1]].Str
			slot, endT := code[ip+2], code[ip+3]
			iterable := f.pop()
			var it *IterState
			it, err = vm.newIter(iterable, strings.HasPrefix(name, kvLoopPrefix))
			if err != nil {
				break
			}
			if !it.hasNext() {
				ip = endT
				break
			}
			f.iters = append(f.iters, it)
			vm.bindLoopVar(f, name, slot, vm.iterCurrent(it))
			ip += 4
		case OpForEachNext:
			name := consts[code[ip+1]].Str
			slot, loopStart, endT := code[ip+2], code[ip+3], code[ip+4]
			if len(f.iters) == 0 {
				ip = endT
				break
			}
			it := f.iters[len(f.iters)-1]
			it.advance()
			if !it.hasNext() {
				f.iters = f.iters[:len(f.iters)-1]
				ip = endT
				break
			}
			vm.bindLoopVar(f, name, slot, vm.iterCurrent(it))
			ip = loopStart
		case OpIterPop:
			if n := len(f.iters); n > 0 {
				f.iters = f.iters[:n-1]
			}
			ip++

		case OpMatchPattern:
			pat := consts[code[ip+1]].Pattern
			f.push(FromBool(vm.patternMatches(f.peek(), pat)))
			ip += 2
		case OpMatchBindings:
			pat := consts[code[ip+1]].Pattern
			subject := f.pop()
			var binds []Value
			vm.collectBindings(subject, pat, &binds)
			for i := len(binds) - 1; i >= 0; i-- {
				f.push(binds[i])
			}
			ip += 2

		case OpEnvPush:
			f.env.Push()
			ip++
		case OpEnvPop:
			f.env.PopWithoutClear()
			ip++
		case OpLocalsPush:
			rt.localSlots.Push()
			ip++
		case OpLocalsPop:
			rt.localSlots.Pop()
			ip++
		case OpHalt:
			return f.pop(), nil

		case OpUse:
			path := consts[code[ip+1]].Str
			alias := consts[code[ip+2]].Str
			var mod Value
			mod, err = vm.loadModule(path)
			if err == nil {
				f.env.Define(alias, mod)
				ip += 3
			}

		default:
			return Unit, NewError(DiagTypeMismatch, fmt.Sprintf("unknown opcode %d", code[ip]))
		}

		if err != nil {
			if target, ok := findHandler(prog, ip); ok {
				f.push(rt.internString(err.Error()))
				ip = target
				continue
			}
			return Unit, err
		}
	}
	return Unit, nil
}

// --- arithmetic helpers -------------------------------------------------

func satAdd(a, b int64) int64 { return clampInt48(a + b) }
func satSub(a, b int64) int64 { return clampInt48(a - b) }

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	r := a * b
	if r/b != a {
		if (a > 0) == (b > 0) {
			return maxInt48
		}
		return minInt48
	}
	return clampInt48(r)
}

func clampInt48(v int64) int64 {
	if v > maxInt48 {
		return maxInt48
	}
	if v < minInt48 {
		return minInt48
	}
	return v
}

func floatMod(a, b float64) float64 { return math.Mod(a, b) }

func nonNumeric(a, b Value) Value {
	if !a.IsNumeric() {
		return a
	}
	return b
}

func nonBool(a, b Value) Value {
	if !a.IsBool() {
		return a
	}
	return b
}

func nonTag(t Tag, a, b Value) Value {
	if a.GetTag() != t {
		return a
	}
	return b
}

// addValues handles the general + : saturating int add, float
// promotion, string concatenation, list concatenation.
func (vm *VM) addValues(a, b Value) (Value, *Error) {
	switch {
	case a.IsInt() && b.IsInt():
		return FromI64(satAdd(a.AsI64(), b.AsI64())), nil
	case a.IsNumeric() && b.IsNumeric():
		return FromF64(a.AsNumber() + b.AsNumber()), nil
	case a.GetTag() == TagStr || b.GetTag() == TagStr:
		return vm.rt.internString(vm.rt.displayString(a) + vm.rt.displayString(b)), nil
	case a.GetTag() == TagList && b.GetTag() == TagList:
		la, lb := vm.rt.listObj(a), vm.rt.listObj(b)
		out := make([]Value, 0, len(la.Elements)+len(lb.Elements))
		out = append(out, la.Elements...)
		out = append(out, lb.Elements...)
		return ListVal(vm.rt.heap.Alloc(&ListObject{Elements: out})), nil
	default:
		return Unit, errTypeMismatch("number, string, or list", a.TypeName()+" + "+b.TypeName())
	}
}

// compareValues orders numbers numerically and strings by code-unit
// sequence. Anything else is unordered.
func (vm *VM) compareValues(a, b Value) (int, bool) {
	if a.IsNumeric() && b.IsNumeric() {
		an, bn := a.AsNumber(), b.AsNumber()
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.GetTag() == TagStr && b.GetTag() == TagStr {
		return strings.Compare(vm.rt.strText(a).String(), vm.rt.strText(b).String()), true
	}
	return 0, false
}

// --- name resolution ----------------------------------------------------

// lookupName prefers the active LocalSlots frame and falls through to
// the frame's Environment.
func (vm *VM) lookupName(f *execFrame, name string) (Value, bool) {
	if v, ok := vm.rt.localSlots.Get(name); ok {
		return v, true
	}
	return f.env.GetCached(name)
}

// storeName assigns an existing binding, innermost first, and defines
// into the current environment frame when no binding exists anywhere.
func (vm *VM) storeName(f *execFrame, name string, v Value) {
	if vm.rt.localSlots.Set(name, v) {
		return
	}
	if f.env.Assign(name, v) {
		return
	}
	f.env.Define(name, v)
}

func (vm *VM) storeLocal(slot int, v Value) {
	if !vm.rt.localSlots.SetByIndex(slot, v) {
		vm.rt.localSlots.GrowTo(slot + 1)
		vm.rt.localSlots.SetByIndex(slot, v)
	}
}

// --- member / index access ----------------------------------------------

// dictMemberIC is the cached string-member lookup on a dict: a hit on
// (id, ver) whose cached offset still holds name resolves through that
// offset without a map lookup; a miss does the real shape-then-map
// lookup and remembers where the value lives. The name check matters
// because a string subscript site sees different names through one slot.
func (vm *VM) dictMemberIC(d *DictObject, id ObjectId, name string, icSlot int) (Value, bool) {
	rt := vm.rt
	slot := rt.ic.field(icSlot)
	if off, ok := slot.lookupDictOffset(id, d.ver); ok {
		if off >= 0 {
			if d.hasShape && off < len(d.propValues) {
				if names := rt.ShapeFieldNames(d.shape); off < len(names) && names[off] == name {
					return d.propValues[off], true
				}
			}
		} else if idx := -off - 1; idx < len(d.m.entries) && !d.m.entries[idx].deleted {
			if k := d.m.entries[idx].key; k.IsStr() && heapStrContent(rt.heap, k.StrObjID()) == name {
				return d.m.entries[idx].value, true
			}
		}
	}
	if d.hasShape {
		if off, ok := rt.ShapeOffset(d.shape, name); ok && off < len(d.propValues) {
			slot.storeDictOffset(id, d.ver, off)
			return d.propValues[off], true
		}
	}
	sv := rt.internString(name)
	dk := StrKeyFromText(name, sv.AsObjID())
	if idx := d.m.find(rt.heap, dk); idx >= 0 {
		slot.storeDictOffset(id, d.ver, -idx-1)
		return d.m.entries[idx].value, true
	}
	return Unit, false
}

func (vm *VM) getMember(recv Value, name string, icSlot int) (Value, *Error) {
	rt := vm.rt
	switch recv.GetTag() {
	case TagDict:
		d := rt.dictObj(recv)
		if v, ok := vm.dictMemberIC(d, recv.AsObjID(), name, icSlot); ok {
			return v, nil
		}
		return Unit, errKeyNotFound(name)
	case TagStruct:
		s := rt.heap.Get(recv.AsObjID()).(*StructObject)
		slot := rt.ic.field(icSlot)
		if off, ok := slot.lookupTypeOffset(s.TypeHash); ok && off < len(s.Fields) {
			return s.Fields[off], nil
		}
		for i, n := range s.Names {
			if n == name {
				slot.storeTypeOffset(s.TypeHash, i)
				return s.Fields[i], nil
			}
		}
		return Unit, errUnknownMember(s.TypeName, name)
	case TagModule:
		m := rt.heap.Get(recv.AsObjID()).(*ModuleObject)
		if v, ok := m.Exports.Map[name]; ok {
			return v, nil
		}
		return Unit, errUnknownMember("module "+m.Path, name)
	case TagRange:
		r := rt.heap.Get(recv.AsObjID()).(*RangeObject)
		switch name {
		case "start":
			return FromI64(r.Start), nil
		case "end":
			return FromI64(r.End), nil
		}
		return Unit, errUnknownMember("range", name)
	default:
		return Unit, errUnknownMember(recv.TypeName(), name)
	}
}

func (vm *VM) getIndex(recv, idx Value, icSlot int) (Value, *Error) {
	rt := vm.rt
	switch recv.GetTag() {
	case TagList:
		lst := rt.listObj(recv)
		if !idx.IsInt() {
			return Unit, errTypeMismatch("int", idx.TypeName())
		}
		i := int(idx.AsI64())
		if i < 0 || i >= len(lst.Elements) {
			return Unit, errIndexOutOfRange(i, len(lst.Elements))
		}
		return lst.Elements[i], nil
	case TagTuple:
		t := rt.heap.Get(recv.AsObjID()).(*TupleObject)
		if !idx.IsInt() {
			return Unit, errTypeMismatch("int", idx.TypeName())
		}
		i := int(idx.AsI64())
		if i < 0 || i >= len(t.Elements) {
			return Unit, errIndexOutOfRange(i, len(t.Elements))
		}
		return t.Elements[i], nil
	case TagDict:
		d := rt.dictObj(recv)
		// string subscripts go through the same member cache as d.key
		if idx.GetTag() == TagStr {
			if v, ok := vm.dictMemberIC(d, recv.AsObjID(), rt.strText(idx).String(), icSlot); ok {
				return v, nil
			}
			return Unit, errKeyNotFound(rt.strText(idx).String())
		}
		if v, ok := rt.dictGet(d, idx, rt.dictKeyForValue(idx)); ok {
			return v, nil
		}
		return Unit, errKeyNotFound(rt.displayString(idx))
	case TagStr:
		s := rt.strText(recv).String()
		if !idx.IsInt() {
			return Unit, errTypeMismatch("int", idx.TypeName())
		}
		i := int(idx.AsI64())
		if i < 0 || i >= len(s) {
			return Unit, errIndexOutOfRange(i, len(s))
		}
		return rt.internString(s[i : i+1]), nil
	default:
		return Unit, errTypeMismatch("indexable value", recv.TypeName())
	}
}

func (vm *VM) applyCompound(cur, rhs Value, op CompoundOp) (Value, *Error) {
	switch op {
	case CompoundNone:
		return rhs, nil
	case CompoundAdd:
		return vm.addValues(cur, rhs)
	case CompoundSub:
		if cur.IsInt() && rhs.IsInt() {
			return FromI64(satSub(cur.AsI64(), rhs.AsI64())), nil
		}
		if cur.IsNumeric() && rhs.IsNumeric() {
			return FromF64(cur.AsNumber() - rhs.AsNumber()), nil
		}
	case CompoundMul:
		if cur.IsInt() && rhs.IsInt() {
			return FromI64(satMul(cur.AsI64(), rhs.AsI64())), nil
		}
		if cur.IsNumeric() && rhs.IsNumeric() {
			return FromF64(cur.AsNumber() * rhs.AsNumber()), nil
		}
	case CompoundDiv:
		if cur.IsNumeric() && rhs.IsNumeric() {
			if rhs.AsNumber() == 0 {
				return Unit, errDivisionByZero()
			}
			if cur.IsInt() && rhs.IsInt() {
				return FromI64(cur.AsI64() / rhs.AsI64()), nil
			}
			return FromF64(cur.AsNumber() / rhs.AsNumber()), nil
		}
	}
	return Unit, errTypeMismatch("number", nonNumeric(cur, rhs).TypeName())
}

func (vm *VM) assignMember(recv Value, name string, val Value, op CompoundOp) *Error {
	rt := vm.rt
	switch recv.GetTag() {
	case TagStruct:
		s := rt.heap.Get(recv.AsObjID()).(*StructObject)
		for i, n := range s.Names {
			if n == name {
				nv, err := vm.applyCompound(s.Fields[i], val, op)
				if err != nil {
					return err
				}
				s.Fields[i] = nv
				return nil
			}
		}
		return errUnknownMember(s.TypeName, name)
	case TagDict:
		d := rt.dictObj(recv)
		if cur, ok := rt.DictShapeGet(d, name); ok {
			nv, err := vm.applyCompound(cur, val, op)
			if err != nil {
				return err
			}
			off, _ := rt.ShapeOffset(d.shape, name)
			d.propValues[off] = nv
			return nil
		}
		sv := rt.internString(name)
		dk := StrKeyFromText(name, sv.AsObjID())
		if cur, ok := d.GetStr(rt.heap, dk); ok {
			nv, err := vm.applyCompound(cur, val, op)
			if err != nil {
				return err
			}
			d.InsertStr(rt.heap, dk, nv)
			return nil
		}
		if op != CompoundNone {
			return errKeyNotFound(name)
		}
		// fresh string member on a record-style dict: grow the shape
		rt.DictAdoptShape(d, name, val)
		return nil
	case TagModule:
		return errTypeMismatch("mutable container", "module (exports are read-only)")
	default:
		return errUnknownMember(recv.TypeName(), name)
	}
}

func (vm *VM) assignIndex(recv, idx, val Value, op CompoundOp) *Error {
	rt := vm.rt
	switch recv.GetTag() {
	case TagList:
		lst := rt.listObj(recv)
		if !idx.IsInt() {
			return errTypeMismatch("int", idx.TypeName())
		}
		i := int(idx.AsI64())
		if i < 0 || i >= len(lst.Elements) {
			return errIndexOutOfRange(i, len(lst.Elements))
		}
		nv, err := vm.applyCompound(lst.Elements[i], val, op)
		if err != nil {
			return err
		}
		lst.Elements[i] = nv
		return nil
	case TagDict:
		d := rt.dictObj(recv)
		if op != CompoundNone {
			cur, ok := rt.dictGet(d, idx, rt.dictKeyForValue(idx))
			if !ok {
				return errKeyNotFound(rt.displayString(idx))
			}
			nv, err := vm.applyCompound(cur, val, op)
			if err != nil {
				return err
			}
			val = nv
		}
		vm.dictInsert(d, idx, val)
		return nil
	default:
		return errTypeMismatch("indexable value", recv.TypeName())
	}
}

func (vm *VM) dictInsert(d *DictObject, key, val Value) {
	rt := vm.rt
	if key.IsInt() {
		d.InsertInt(rt.heap, key.AsI64(), val)
		return
	}
	d.InsertStr(rt.heap, rt.dictKeyForValue(key), val)
}

// --- struct / enum construction -----------------------------------------

func (vm *VM) structInit(typeName string, names []string, vals []Value, spread Value) (Value, *Error) {
	rt := vm.rt
	def, ok := rt.structDefs[typeName]
	if !ok {
		return Unit, errUnknownStruct(typeName)
	}
	fields := make([]Value, len(def.Fields))
	for i := range fields {
		fields[i] = Unit
	}
	if spread != Unit {
		if spread.GetTag() != TagStruct {
			return Unit, errTypeMismatch(typeName, spread.TypeName())
		}
		base := rt.heap.Get(spread.AsObjID()).(*StructObject)
		if base.TypeName != typeName {
			return Unit, errTypeMismatch(typeName, base.TypeName)
		}
		copy(fields, base.Fields)
	}
	for i, name := range names {
		off := -1
		for j, fn := range def.Fields {
			if fn == name {
				off = j
				break
			}
		}
		if off < 0 {
			return Unit, errUnknownMember(typeName, name)
		}
		if i < len(vals) {
			fields[off] = vals[i]
		}
	}
	id := rt.heap.Alloc(&StructObject{
		TypeName: def.Name,
		TypeHash: def.TypeHash,
		Fields:   fields,
		Names:    append([]string(nil), def.Fields...),
	})
	return StructVal(id), nil
}

func (vm *VM) enumCtor(typeName, variant string, payload []Value) (Value, *Error) {
	rt := vm.rt
	// Option is built in: Some wraps, None is the shared enum form.
	if typeName == "Option" {
		switch variant {
		case "Some":
			if len(payload) != 1 {
				return Unit, NewError(DiagTypeMismatchDetailed, "Option.Some takes exactly one value")
			}
			return rt.someValue(payload[0]), nil
		case "None":
			return rt.noneValue(), nil
		}
		return Unit, errUnknownEnumVariant("Option", variant)
	}
	def, ok := rt.enumDefs[typeName]
	if !ok {
		return Unit, NewError(DiagUnknownStruct, fmt.Sprintf("unknown enum type '%s'", typeName))
	}
	for _, v := range def.Variants {
		if v.Name == variant {
			if v.Arity != len(payload) {
				return Unit, NewError(DiagTypeMismatchDetailed,
					fmt.Sprintf("%s.%s takes %d values, got %d", typeName, variant, v.Arity, len(payload)))
			}
			id := rt.heap.Alloc(&EnumObject{TypeName: typeName, VariantName: variant, Payload: payload})
			return EnumVal(id), nil
		}
	}
	return Unit, errUnknownEnumVariant(typeName, variant)
}

// --- method dispatch ----------------------------------------------------

func (vm *VM) callMethod(f *execFrame, recv Value, name string, methodHash uint64, icSlot int, args []Value) (Value, *Error) {
	rt := vm.rt
	tempsMark := len(vm.temps)
	vm.temps = append(vm.temps, recv)
	vm.temps = append(vm.temps, args...)
	defer func() { vm.temps = vm.temps[:tempsMark] }()

	tag := recv.GetTag()
	var typeHash uint64
	switch tag {
	case TagStruct:
		typeHash = rt.heap.Get(recv.AsObjID()).(*StructObject).TypeHash
	case TagEnum:
		typeHash = fnvHashString(rt.heap.Get(recv.AsObjID()).(*EnumObject).TypeName)
	case TagModule:
		typeHash = fnvHashString(rt.heap.Get(recv.AsObjID()).(*ModuleObject).Path)
	}

	slot := rt.ic.method(icSlot)
	if funcID, kind, hasFunc, ok := slot.lookup(tag, methodHash, typeHash); ok {
		if hasFunc {
			if tag == TagModule {
				return vm.invoke(FuncVal(funcID), args)
			}
			return vm.invoke(FuncVal(funcID), prependValue(recv, args))
		}
		return rt.CallMethod(recv, kind, args)
	}

	// user method table: __method__<type>__<name> in the environment
	if tag == TagStruct || tag == TagEnum {
		var tn string
		if tag == TagStruct {
			tn = rt.heap.Get(recv.AsObjID()).(*StructObject).TypeName
		} else {
			tn = rt.heap.Get(recv.AsObjID()).(*EnumObject).TypeName
		}
		if fv, ok := vm.lookupName(f, "__method__"+tn+"__"+name); ok && fv.GetTag() == TagFunc {
			slot.storeFunc(tag, methodHash, typeHash, fv.AsObjID())
			return vm.invoke(fv, prependValue(recv, args))
		}
	}

	if tag == TagModule {
		m := rt.heap.Get(recv.AsObjID()).(*ModuleObject)
		fv, ok := m.Exports.Map[name]
		if !ok {
			return Unit, errUnknownMember("module "+m.Path, name)
		}
		if fv.GetTag() != TagFunc {
			return Unit, errNotCallable(fv.TypeName())
		}
		slot.storeFunc(tag, methodHash, typeHash, fv.AsObjID())
		return vm.invoke(fv, args)
	}

	kind, ok := MethodKindFromName(name)
	if !ok {
		return Unit, errUnsupportedMethod(recv.TypeName(), name)
	}
	slot.storeKind(tag, methodHash, typeHash, kind)
	return rt.CallMethod(recv, kind, args)
}

func prependValue(v Value, rest []Value) []Value {
	out := make([]Value, 0, len(rest)+1)
	out = append(out, v)
	return append(out, rest...)
}

// --- iteration ----------------------------------------------------------

func (vm *VM) newIter(iterable Value, kv bool) (*IterState, *Error) {
	rt := vm.rt
	switch {
	case iterable.IsInt():
		return newRangeIter(0, iterable.AsI64(), false), nil
	case iterable.GetTag() == TagRange:
		r := rt.heap.Get(iterable.AsObjID()).(*RangeObject)
		return newRangeIter(r.Start, r.End, r.Inclusive), nil
	case iterable.GetTag() == TagList:
		return newListIter(iterable.AsObjID(), len(rt.listObj(iterable).Elements)), nil
	case iterable.GetTag() == TagTuple:
		t := rt.heap.Get(iterable.AsObjID()).(*TupleObject)
		return newListIter(iterable.AsObjID(), len(t.Elements)), nil
	case iterable.GetTag() == TagDict:
		d := rt.dictObj(iterable)
		if kv {
			return newDictKVIter(vm.dictItemsSnapshot(d)), nil
		}
		return newDictIter(vm.dictKeysSnapshot(d)), nil
	default:
		return nil, errInvalidIteratorType(iterable.TypeName())
	}
}

// dictKeysSnapshot freezes iteration order: dense element indices
// first, then map insertion order, then shape properties in shape
// declaration order.
func (vm *VM) dictKeysSnapshot(d *DictObject) []Value {
	rt := vm.rt
	var out []Value
	for idx, ok := range d.hasElement {
		if ok {
			out = append(out, FromI64(int64(idx)))
		}
	}
	for _, k := range d.m.Keys() {
		out = append(out, rt.dictKeyToValue(k))
	}
	if d.hasShape {
		for _, name := range rt.ShapeFieldNames(d.shape) {
			out = append(out, rt.internString(name))
		}
	}
	return out
}

func (vm *VM) dictItemsSnapshot(d *DictObject) [][2]Value {
	rt := vm.rt
	var out [][2]Value
	for idx, ok := range d.hasElement {
		if ok {
			out = append(out, [2]Value{FromI64(int64(idx)), d.elements[idx]})
		}
	}
	for _, k := range d.m.Keys() {
		v, _ := d.m.Get(rt.heap, k)
		out = append(out, [2]Value{rt.dictKeyToValue(k), v})
	}
	if d.hasShape {
		for _, name := range rt.ShapeFieldNames(d.shape) {
			off, _ := rt.ShapeOffset(d.shape, name)
			out = append(out, [2]Value{rt.internString(name), d.propValues[off]})
		}
	}
	return out
}

// iterCurrent reads the element the cursor is on. List elements are
// fetched live so in-place mutation during iteration is visible, as
// long as the snapshot length still covers the index.
func (vm *VM) iterCurrent(it *IterState) Value {
	rt := vm.rt
	switch it.Kind {
	case IterList:
		switch obj := rt.heap.Get(it.ListID).(type) {
		case *ListObject:
			if it.Idx < len(obj.Elements) {
				return obj.Elements[it.Idx]
			}
		case *TupleObject:
			if it.Idx < len(obj.Elements) {
				return obj.Elements[it.Idx]
			}
		}
		return Unit
	case IterRange:
		return FromI64(it.Cur)
	case IterDict:
		return it.Keys[it.Idx]
	case IterDictKV:
		kvPair := it.Items[it.Idx]
		vm.maybeGC()
		id := rt.heap.Alloc(&TupleObject{Elements: []Value{kvPair[0], kvPair[1]}})
		return TupleVal(id)
	}
	return Unit
}

func (vm *VM) bindLoopVar(f *execFrame, name string, slot int, v Value) {
	if slot >= 0 {
		vm.storeLocal(slot, v)
		return
	}
	f.env.Define(name, v)
}

// --- pattern matching ---------------------------------------------------

func (vm *VM) patternMatches(v Value, p *Pattern) bool {
	rt := vm.rt
	switch p.Kind {
	case PatternWildcard, PatternBind:
		return true
	case PatternLiteralInt:
		return v.IsInt() && v.AsI64() == p.LitInt
	case PatternLiteralStr:
		return v.GetTag() == TagStr && rt.strText(v).String() == p.LitStr
	case PatternLiteralBool:
		return v.IsBool() && v.AsBool() == p.LitBool
	case PatternTuple:
		if v.GetTag() != TagTuple {
			return false
		}
		t := rt.heap.Get(v.AsObjID()).(*TupleObject)
		if len(t.Elements) != len(p.Fields) {
			return false
		}
		for i := range p.Fields {
			if !vm.patternMatches(t.Elements[i], &p.Fields[i]) {
				return false
			}
		}
		return true
	case PatternStruct:
		if v.GetTag() != TagStruct {
			return false
		}
		s := rt.heap.Get(v.AsObjID()).(*StructObject)
		if p.TypeName != "" && s.TypeName != p.TypeName {
			return false
		}
		for i, fname := range p.FieldNames {
			fv, ok := structField(s, fname)
			if !ok || !vm.patternMatches(fv, &p.Fields[i]) {
				return false
			}
		}
		return true
	case PatternEnumVariant:
		// Option.Some is the OptionSome object, not a general enum.
		if v.GetTag() == TagOption {
			if p.TypeName != "" && p.TypeName != "Option" {
				return false
			}
			if p.Variant != "Some" || len(p.Fields) != 1 {
				return false
			}
			inner := rt.heap.Get(v.AsObjID()).(*OptionSomeObject).Inner
			return vm.patternMatches(inner, &p.Fields[0])
		}
		if v.GetTag() != TagEnum {
			return false
		}
		e := rt.heap.Get(v.AsObjID()).(*EnumObject)
		if p.TypeName != "" && e.TypeName != p.TypeName {
			return false
		}
		if e.VariantName != p.Variant || len(e.Payload) != len(p.Fields) {
			return false
		}
		for i := range p.Fields {
			if !vm.patternMatches(e.Payload[i], &p.Fields[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func structField(s *StructObject, name string) (Value, bool) {
	for i, n := range s.Names {
		if n == name {
			return s.Fields[i], true
		}
	}
	return Unit, false
}

// collectBindings appends bound values in declared order; only call
// after patternMatches reported true.
func (vm *VM) collectBindings(v Value, p *Pattern, out *[]Value) {
	rt := vm.rt
	switch p.Kind {
	case PatternBind:
		*out = append(*out, v)
	case PatternTuple:
		t := rt.heap.Get(v.AsObjID()).(*TupleObject)
		for i := range p.Fields {
			vm.collectBindings(t.Elements[i], &p.Fields[i], out)
		}
	case PatternStruct:
		s := rt.heap.Get(v.AsObjID()).(*StructObject)
		for i, fname := range p.FieldNames {
			if fv, ok := structField(s, fname); ok {
				vm.collectBindings(fv, &p.Fields[i], out)
			}
		}
	case PatternEnumVariant:
		if v.GetTag() == TagOption {
			inner := rt.heap.Get(v.AsObjID()).(*OptionSomeObject).Inner
			vm.collectBindings(inner, &p.Fields[0], out)
			return
		}
		e := rt.heap.Get(v.AsObjID()).(*EnumObject)
		for i := range p.Fields {
			vm.collectBindings(e.Payload[i], &p.Fields[i], out)
		}
	}
}

// --- modules ------------------------------------------------------------

// loadModule resolves, compiles, and executes an imported module,
// memoising by canonical path with an mtime staleness check. The
// stdlib root wins over the entry file's directory when both resolve.
func (vm *VM) loadModule(key string) (Value, *Error) {
	rt := vm.rt
	if rt.moduleLoader == nil || rt.frontend == nil {
		return Unit, NewError(DiagModuleNotFound, "no module loader installed")
	}

	baseDir := filepath.Dir(rt.entryPath)
	var canon, src string
	var mtime int64
	var resErr *Error
	if rt.stdlibPath != "" {
		canon, src, mtime, resErr = rt.moduleLoader.Resolve(key, rt.stdlibPath)
	}
	if rt.stdlibPath == "" || resErr != nil {
		canon, src, mtime, resErr = rt.moduleLoader.Resolve(key, baseDir)
		if resErr != nil {
			return Unit, resErr
		}
	}

	if rec, ok := rt.moduleCache[canon]; ok && rec.mtime == mtime {
		return ModuleVal(rec.id), nil
	}
	if rt.loading[canon] {
		return Unit, NewError(DiagCircularImport, fmt.Sprintf("circular import of '%s'", canon))
	}
	rt.loading[canon] = true
	defer delete(rt.loading, canon)

	prog, cerr := rt.frontend.Compile(canon, src)
	if cerr != nil {
		return Unit, cerr
	}

	// the module runs against its own scope stacked on the shared
	// global (builtin) frame, so its definitions stay private
	modEnv := &Environment{
		stack:     make([]Value, 0, 64),
		frames:    []Frame{rt.globalEnv.frames[0]},
		nameCache: make(map[string]nameCacheEntry),
	}
	modEnv.PushDetached()

	rt.localSlots.Push()
	rt.localSlots.GrowTo(prog.LocalsMax)
	_, rerr := vm.run(prog, modEnv)
	rt.localSlots.Pop()
	if rerr != nil {
		return Unit, rerr
	}

	exports := NewDictStrObject()
	modScope := modEnv.frames[len(modEnv.frames)-1].scope
	names := make([]string, 0, len(modScope.names))
	for name := range modScope.names {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return modScope.names[names[i]] < modScope.names[names[j]] })
	for _, name := range names {
		if idx := modScope.names[name]; idx < len(modScope.values) {
			exports.Insert(name, modScope.values[idx])
		}
	}

	mod := &ModuleObject{Path: canon, Exports: exports}
	id := rt.heap.Alloc(mod)
	rt.moduleCache[canon] = &moduleRecord{mtime: mtime, obj: mod, id: id}
	return ModuleVal(id), nil
}

// --- GC hooks -----------------------------------------------------------

// maybeGC is the allocation-path safepoint: call before popping the
// operands an allocation will consume, so everything live is still on
// a rooted stack when the collector runs.
func (vm *VM) maybeGC() {
	if vm.rt.heap.ShouldGC() {
		vm.rt.collectAll()
	}
}

// collectAll gathers the full root set — every live VM's operand and
// iterator stacks, temporary roots, environments, the active
// LocalSlots frames, globals, and the module cache — and runs one
// mark-sweep cycle. Inline caches are dropped afterwards since swept
// ids may be recycled.
func (rt *Runtime) collectAll() { rt.collectWith(Roots{}) }

func (rt *Runtime) collectWith(roots Roots) {
	for _, vm := range rt.liveVMs {
		roots.Values = append(roots.Values, vm.temps...)
		for _, f := range vm.frames {
			roots.Values = append(roots.Values, f.stack...)
			if f.env != nil {
				roots.Envs = append(roots.Envs, f.env)
			}
			for _, it := range f.iters {
				roots.Values = append(roots.Values, it.Keys...)
				for _, kvPair := range it.Items {
					roots.Values = append(roots.Values, kvPair[0], kvPair[1])
				}
				if it.Kind == IterList {
					roots.Values = append(roots.Values, ListVal(it.ListID))
				}
			}
		}
	}
	for _, rec := range rt.moduleCache {
		roots.Values = append(roots.Values, ModuleVal(rec.id))
	}
	roots.Envs = append(roots.Envs, rt.globalEnv)
	roots.Locals = append(roots.Locals, rt.localSlots)
	rt.heap.Mark(roots)
	rt.heap.Sweep()
	rt.ic.clear()
}

// --- secondary interpreters ---------------------------------------------

// opWidth reports how many code slots an op occupies including its
// operands, for linear scans over a code stream.
func opWidth(op Op) int {
	switch op {
	case OpConstInt, OpConstFloat, OpConst, OpConstBool, OpLoadName, OpStoreName,
		OpLoadLocal, OpStoreLocal, OpAddAssignName, OpAddAssignLocal,
		OpBuilderNewCap, OpListNew, OpTupleNew, OpDictNew, OpMakeRange,
		OpDefineStruct, OpDefineEnum, OpAssertType, OpMakeFunction, OpCall,
		OpJump, OpJumpIfFalse, OpJumpIfTrue, OpBreak, OpContinue,
		OpMatchPattern, OpMatchBindings, OpAssignIndex, OpGetIndex:
		return 2
	case OpIncLocal, OpGetMember, OpAssignMember, OpDictGetIntConst,
		OpStructInit, OpStructInitSpread, OpEnumCtor, OpUse:
		return 3
	case OpDictGetStrConst, OpEnumCtorN, OpForEachInit:
		return 4
	case OpCallMethod, OpForEachNext:
		return 5
	default:
		return 1
	}
}

const fastStackSize = 16

// classifyFast decides which secondary interpreter can run a function
// body, if any: the 16-op primitive interpreter for tiny straight-line
// integer bodies, or the params-only interpreter for branchy bodies
// whose every name reference is a parameter slot.
func classifyFast(bc *BytecodeFunction) int8 {
	if bc.EnvMode {
		return fastNone
	}
	ops := 0
	primitive := true
	paramsOnly := true
	for ip := 0; ip < len(bc.Program.Code); ip += opWidth(Op(bc.Program.Code[ip])) {
		ops++
		op := Op(bc.Program.Code[ip])
		switch op {
		case OpConstInt, OpConstFloat, OpConstBool, OpConstUnit,
			OpAdd, OpSub, OpMul, OpLt, OpLe, OpGt, OpGe, OpEq, OpReturn:
		case OpLoadLocal:
			if bc.Program.Code[ip+1] >= fastStackSize {
				return fastNone
			}
			if bc.Program.Code[ip+1] >= bc.Arity {
				paramsOnly = false
			}
		case OpStoreLocal, OpIncLocal:
			if bc.Program.Code[ip+1] >= fastStackSize {
				return fastNone
			}
			paramsOnly = false
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpNot, OpNe:
			primitive = false
		default:
			return fastNone
		}
	}
	if primitive && ops <= 16 && bc.LocalsMax <= fastStackSize {
		return fastPrimitive
	}
	if paramsOnly && bc.Arity <= fastStackSize {
		return fastParams
	}
	return fastNone
}

// runPrimitive executes a tiny straight-line body on fixed-size arrays
// with no heap contact at all. Any operand outside the integer fast
// path bails to the full interpreter; the allowed op set is
// side-effect-free below locals, so restarting is safe.
func runPrimitive(bc *BytecodeFunction, args []Value) (Value, bool) {
	var stack [fastStackSize]Value
	var locals [fastStackSize]Value
	for i := range locals {
		locals[i] = Unit
	}
	for i, slot := range bc.ParamSlots {
		locals[slot] = args[i]
	}
	sp := 0
	code := bc.Program.Code
	consts := bc.Program.Consts
	ip := 0
	for ip < len(code) {
		switch Op(code[ip]) {
		case OpConstInt:
			if sp == fastStackSize {
				return Unit, false
			}
			stack[sp] = FromI64(consts[code[ip+1]].Int)
			sp++
			ip += 2
		case OpConstFloat:
			if sp == fastStackSize {
				return Unit, false
			}
			stack[sp] = FromF64(consts[code[ip+1]].Float)
			sp++
			ip += 2
		case OpConstBool:
			if sp == fastStackSize {
				return Unit, false
			}
			stack[sp] = FromBool(code[ip+1] != 0)
			sp++
			ip += 2
		case OpConstUnit:
			if sp == fastStackSize {
				return Unit, false
			}
			stack[sp] = Unit
			sp++
			ip++
		case OpLoadLocal:
			if sp == fastStackSize {
				return Unit, false
			}
			stack[sp] = locals[code[ip+1]]
			sp++
			ip += 2
		case OpStoreLocal:
			if sp == 0 {
				return Unit, false
			}
			sp--
			locals[code[ip+1]] = stack[sp]
			ip += 2
		case OpIncLocal:
			cur := locals[code[ip+1]]
			if !cur.IsInt() {
				return Unit, false
			}
			locals[code[ip+1]] = FromI64(satAdd(cur.AsI64(), int64(code[ip+2])))
			ip += 3
		case OpAdd, OpSub, OpMul:
			if sp < 2 {
				return Unit, false
			}
			b, a := stack[sp-1], stack[sp-2]
			if !a.IsInt() || !b.IsInt() {
				return Unit, false
			}
			sp--
			switch Op(code[ip]) {
			case OpAdd:
				stack[sp-1] = FromI64(satAdd(a.AsI64(), b.AsI64()))
			case OpSub:
				stack[sp-1] = FromI64(satSub(a.AsI64(), b.AsI64()))
			case OpMul:
				stack[sp-1] = FromI64(satMul(a.AsI64(), b.AsI64()))
			}
			ip++
		case OpLt, OpLe, OpGt, OpGe, OpEq:
			if sp < 2 {
				return Unit, false
			}
			b, a := stack[sp-1], stack[sp-2]
			if !a.IsInt() || !b.IsInt() {
				return Unit, false
			}
			sp--
			ai, bi := a.AsI64(), b.AsI64()
			var r bool
			switch Op(code[ip]) {
			case OpLt:
				r = ai < bi
			case OpLe:
				r = ai <= bi
			case OpGt:
				r = ai > bi
			case OpGe:
				r = ai >= bi
			case OpEq:
				r = ai == bi
			}
			stack[sp-1] = FromBool(r)
			ip++
		case OpReturn:
			if sp == 0 {
				return Unit, true
			}
			return stack[sp-1], true
		default:
			return Unit, false
		}
	}
	return Unit, true
}

// runParamsOnly executes a body whose every name reference is a
// parameter, with the parameters bound into a fixed array: branches
// are allowed, stores are not.
func runParamsOnly(bc *BytecodeFunction, args []Value) (Value, bool) {
	var params [fastStackSize]Value
	for i, slot := range bc.ParamSlots {
		params[slot] = args[i]
	}
	var stack [fastStackSize * 2]Value
	sp := 0
	code := bc.Program.Code
	consts := bc.Program.Consts
	ip := 0
	push := func(v Value) bool {
		if sp == len(stack) {
			return false
		}
		stack[sp] = v
		sp++
		return true
	}
	for ip < len(code) {
		switch Op(code[ip]) {
		case OpConstInt:
			if !push(FromI64(consts[code[ip+1]].Int)) {
				return Unit, false
			}
			ip += 2
		case OpConstFloat:
			if !push(FromF64(consts[code[ip+1]].Float)) {
				return Unit, false
			}
			ip += 2
		case OpConstBool:
			if !push(FromBool(code[ip+1] != 0)) {
				return Unit, false
			}
			ip += 2
		case OpConstUnit:
			if !push(Unit) {
				return Unit, false
			}
			ip++
		case OpLoadLocal:
			if !push(params[code[ip+1]]) {
				return Unit, false
			}
			ip += 2
		case OpAdd, OpSub, OpMul:
			if sp < 2 {
				return Unit, false
			}
			b, a := stack[sp-1], stack[sp-2]
			sp--
			switch {
			case a.IsInt() && b.IsInt():
				ai, bi := a.AsI64(), b.AsI64()
				switch Op(code[ip]) {
				case OpAdd:
					stack[sp-1] = FromI64(satAdd(ai, bi))
				case OpSub:
					stack[sp-1] = FromI64(satSub(ai, bi))
				case OpMul:
					stack[sp-1] = FromI64(satMul(ai, bi))
				}
			case a.IsNumeric() && b.IsNumeric():
				an, bn := a.AsNumber(), b.AsNumber()
				switch Op(code[ip]) {
				case OpAdd:
					stack[sp-1] = FromF64(an + bn)
				case OpSub:
					stack[sp-1] = FromF64(an - bn)
				case OpMul:
					stack[sp-1] = FromF64(an * bn)
				}
			default:
				return Unit, false
			}
			ip++
		case OpLt, OpLe, OpGt, OpGe, OpEq, OpNe:
			if sp < 2 {
				return Unit, false
			}
			b, a := stack[sp-1], stack[sp-2]
			if !a.IsNumeric() || !b.IsNumeric() {
				return Unit, false
			}
			sp--
			an, bn := a.AsNumber(), b.AsNumber()
			var r bool
			switch Op(code[ip]) {
			case OpLt:
				r = an < bn
			case OpLe:
				r = an <= bn
			case OpGt:
				r = an > bn
			case OpGe:
				r = an >= bn
			case OpEq:
				r = an == bn
			case OpNe:
				r = an != bn
			}
			stack[sp-1] = FromBool(r)
			ip++
		case OpNot:
			if sp < 1 || !stack[sp-1].IsBool() {
				return Unit, false
			}
			stack[sp-1] = FromBool(!stack[sp-1].AsBool())
			ip++
		case OpJump:
			ip = code[ip+1]
		case OpJumpIfFalse:
			if sp < 1 || !stack[sp-1].IsBool() {
				return Unit, false
			}
			sp--
			if !stack[sp].AsBool() {
				ip = code[ip+1]
			} else {
				ip += 2
			}
		case OpJumpIfTrue:
			if sp < 1 || !stack[sp-1].IsBool() {
				return Unit, false
			}
			sp--
			if stack[sp].AsBool() {
				ip = code[ip+1]
			} else {
				ip += 2
			}
		case OpReturn:
			if sp == 0 {
				return Unit, true
			}
			return stack[sp-1], true
		default:
			return Unit, false
		}
	}
	return Unit, true
}
