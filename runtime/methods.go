package runtime

import (
	"sort"
	"strconv"
	"strings"
)

// MethodKind enumerates every built-in method name the runtime knows.
// Names are shared across receiver types on purpose —
// "length" means something different on a List than a Dict — so
// resolution from text is one lookup (MethodKindFromName) and
// dispatch is a switch on (tag, kind), matching the inline-cache
// method slot's (tag, method_hash) key.
type MethodKind int

const (
	MethodUnknown MethodKind = iota
	MethodPush
	MethodPop
	MethodInsert
	MethodRemove
	MethodReverse
	MethodJoin
	MethodSort
	MethodReduce
	MethodFind
	MethodLength
	MethodContains
	MethodClear
	MethodMerge
	MethodInsertInt
	MethodGet
	MethodGetInt
	MethodKeys
	MethodValues
	MethodItems
	MethodGetOrDefault
	MethodHas
	MethodFormat
	MethodSplit
	MethodToInt
	MethodToFloat
	MethodTryToInt
	MethodTryToFloat
	MethodReplace
	MethodReplaceAll
	MethodTrim
	MethodTrimStart
	MethodTrimEnd
	MethodToUpper
	MethodToLower
	MethodStartsWith
	MethodEndsWith
	MethodStrFind
	MethodSubstr
	MethodMatch
	MethodToString
	MethodAbs
	MethodToBase
	MethodIsEven
	MethodIsOdd
	MethodRound
	MethodFloor
	MethodCeil
	MethodNot
	MethodNone
	MethodOr
	MethodOrElse
	MethodMap
	MethodThen
	MethodEach
	MethodFilter
	MethodMapErr
	MethodName
	MethodTypeName
)

var methodNames = map[string]MethodKind{
	"push": MethodPush, "pop": MethodPop, "insert": MethodInsert, "remove": MethodRemove,
	"reverse": MethodReverse, "join": MethodJoin, "sort": MethodSort, "reduce": MethodReduce,
	"find": MethodFind, "length": MethodLength, "contains": MethodContains, "clear": MethodClear,
	"merge": MethodMerge, "insert_int": MethodInsertInt, "get": MethodGet, "get_int": MethodGetInt,
	"keys": MethodKeys, "values": MethodValues, "items": MethodItems,
	"get_or_default": MethodGetOrDefault, "has": MethodHas,
	"format": MethodFormat, "split": MethodSplit, "to_int": MethodToInt, "to_float": MethodToFloat,
	"try_to_int": MethodTryToInt, "try_to_float": MethodTryToFloat, "replace": MethodReplace,
	"replace_all": MethodReplaceAll, "trim": MethodTrim, "trim_start": MethodTrimStart,
	"trim_end": MethodTrimEnd, "to_upper": MethodToUpper, "to_lower": MethodToLower,
	"starts_with": MethodStartsWith, "ends_with": MethodEndsWith, "str_find": MethodStrFind,
	"substr": MethodSubstr, "match": MethodMatch,
	"to_string": MethodToString, "abs": MethodAbs, "to_base": MethodToBase,
	"is_even": MethodIsEven, "is_odd": MethodIsOdd, "round": MethodRound,
	"floor": MethodFloor, "ceil": MethodCeil, "not": MethodNot,
	"none": MethodNone, "or": MethodOr, "or_else": MethodOrElse, "map": MethodMap,
	"then": MethodThen, "each": MethodEach, "filter": MethodFilter, "map_err": MethodMapErr,
	"name": MethodName, "type_name": MethodTypeName,
}

func MethodKindFromName(name string) (MethodKind, bool) {
	k, ok := methodNames[name]
	return k, ok
}

// CallMethod dispatches a resolved (tag, kind) built-in method call.
// args does not include the receiver.
func (rt *Runtime) CallMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	switch recv.GetTag() {
	case TagList:
		return rt.callListMethod(recv, kind, args)
	case TagDict:
		return rt.callDictMethod(recv, kind, args)
	case TagStr:
		return rt.callStrMethod(recv, kind, args)
	case TagInt:
		return rt.callIntMethod(recv, kind, args)
	case TagBool:
		return rt.callBoolMethod(recv, kind, args)
	case TagOption:
		return rt.callOptionMethod(recv, kind, args)
	case TagEnum:
		// Option#none is an enum object; its methods are option methods
		if e, ok := rt.heap.Get(recv.AsObjID()).(*EnumObject); ok && e.TypeName == "Option" {
			return rt.callOptionMethod(recv, kind, args)
		}
		return rt.callEnumMethod(recv, kind, args)
	}
	if recv.IsF64() {
		return rt.callFloatMethod(recv, kind, args)
	}
	return Unit, errUnsupportedReceiver(recv.TypeName())
}

func (rt *Runtime) listObj(v Value) *ListObject { return rt.heap.Get(v.AsObjID()).(*ListObject) }

func (rt *Runtime) callListMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	lst := rt.listObj(recv)
	switch kind {
	case MethodPush:
		lst.Elements = append(lst.Elements, args...)
		return recv, nil
	case MethodPop:
		n := len(lst.Elements)
		if n == 0 {
			return Unit, errIndexOutOfRange(0, 0)
		}
		v := lst.Elements[n-1]
		lst.Elements = lst.Elements[:n-1]
		return v, nil
	case MethodInsert:
		idx := int(args[0].AsI64())
		if idx < 0 || idx > len(lst.Elements) {
			return Unit, errIndexOutOfRange(idx, len(lst.Elements))
		}
		lst.Elements = append(lst.Elements, Unit)
		copy(lst.Elements[idx+1:], lst.Elements[idx:])
		lst.Elements[idx] = args[1]
		return Unit, nil
	case MethodRemove:
		idx := int(args[0].AsI64())
		if idx < 0 || idx >= len(lst.Elements) {
			return Unit, errIndexOutOfRange(idx, len(lst.Elements))
		}
		v := lst.Elements[idx]
		lst.Elements = append(lst.Elements[:idx], lst.Elements[idx+1:]...)
		return v, nil
	case MethodReverse:
		for i, j := 0, len(lst.Elements)-1; i < j; i, j = i+1, j-1 {
			lst.Elements[i], lst.Elements[j] = lst.Elements[j], lst.Elements[i]
		}
		return recv, nil
	case MethodJoin:
		sep := ""
		if len(args) > 0 {
			sep = rt.displayString(args[0])
		}
		parts := make([]string, len(lst.Elements))
		for i, v := range lst.Elements {
			parts[i] = rt.displayString(v)
		}
		return rt.internString(strings.Join(parts, sep)), nil
	case MethodSort:
		out := append([]Value(nil), lst.Elements...)
		sort.SliceStable(out, func(i, j int) bool { return valueLess(out[i], out[j]) })
		id := rt.heap.Alloc(&ListObject{Elements: out})
		return ListVal(id), nil
	case MethodReduce:
		if len(args) < 2 {
			return Unit, errTypeMismatch("reduce(init, fn)", "insufficient args")
		}
		acc := args[0]
		fn := args[1]
		for _, v := range lst.Elements {
			res, err := rt.CallValue(fn, []Value{acc, v})
			if err != nil {
				return Unit, err
			}
			acc = res
		}
		return acc, nil
	case MethodFind:
		if len(args) < 1 {
			return Unit, errTypeMismatch("find(fn)", "insufficient args")
		}
		for _, v := range lst.Elements {
			res, err := rt.CallValue(args[0], []Value{v})
			if err != nil {
				return Unit, err
			}
			if res.IsBool() && res.AsBool() {
				return rt.someValue(v), nil
			}
		}
		return rt.noneValue(), nil
	case MethodLength:
		return FromI64(int64(len(lst.Elements))), nil
	case MethodContains:
		for _, v := range lst.Elements {
			if rt.valuesEqual(v, args[0]) {
				return FromBool(true), nil
			}
		}
		return FromBool(false), nil
	case MethodClear:
		lst.Elements = nil
		return Unit, nil
	}
	return Unit, errUnsupportedMethod("list", kind.displayName())
}

func (rt *Runtime) dictObj(v Value) *DictObject { return rt.heap.Get(v.AsObjID()).(*DictObject) }

func (rt *Runtime) callDictMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	d := rt.dictObj(recv)
	switch kind {
	case MethodMerge:
		other := rt.dictObj(args[0])
		for idx, ok := range other.hasElement {
			if ok {
				d.InsertInt(rt.heap, int64(idx), other.elements[idx])
			}
		}
		for _, e := range other.m.entries {
			if !e.deleted {
				d.m.Insert(rt.heap, e.key, e.value)
			}
		}
		d.ver++
		return recv, nil
	case MethodInsertInt:
		d.InsertInt(rt.heap, args[0].AsI64(), args[1])
		return Unit, nil
	case MethodInsert:
		key := rt.dictKeyForValue(args[0])
		d.InsertStr(rt.heap, key, args[1])
		return Unit, nil
	case MethodGet:
		key := rt.dictKeyForValue(args[0])
		v, ok := rt.dictGet(d, args[0], key)
		if !ok {
			return rt.noneValue(), nil
		}
		return rt.someValue(v), nil
	case MethodGetInt:
		v, ok := d.GetInt(args[0].AsI64())
		if !ok {
			return rt.noneValue(), nil
		}
		return rt.someValue(v), nil
	case MethodGetOrDefault:
		key := rt.dictKeyForValue(args[0])
		v, ok := rt.dictGet(d, args[0], key)
		if !ok {
			return args[1], nil
		}
		return v, nil
	case MethodHas, MethodContains:
		key := rt.dictKeyForValue(args[0])
		_, ok := rt.dictGet(d, args[0], key)
		return FromBool(ok), nil
	case MethodKeys:
		var out []Value
		for idx, ok := range d.hasElement {
			if ok {
				out = append(out, FromI64(int64(idx)))
			}
		}
		for _, k := range d.m.Keys() {
			out = append(out, rt.dictKeyToValue(k))
		}
		id := rt.heap.Alloc(&ListObject{Elements: out})
		return ListVal(id), nil
	case MethodValues:
		var out []Value
		for idx, ok := range d.hasElement {
			if ok {
				out = append(out, d.elements[idx])
			}
		}
		out = append(out, d.m.Values()...)
		id := rt.heap.Alloc(&ListObject{Elements: out})
		return ListVal(id), nil
	case MethodItems:
		var out []Value
		for idx, ok := range d.hasElement {
			if ok {
				tid := rt.heap.Alloc(&TupleObject{Elements: []Value{FromI64(int64(idx)), d.elements[idx]}})
				out = append(out, TupleVal(tid))
			}
		}
		for _, k := range d.m.Keys() {
			v, _ := d.m.Get(rt.heap, k)
			tid := rt.heap.Alloc(&TupleObject{Elements: []Value{rt.dictKeyToValue(k), v}})
			out = append(out, TupleVal(tid))
		}
		id := rt.heap.Alloc(&ListObject{Elements: out})
		return ListVal(id), nil
	case MethodRemove:
		key := rt.dictKeyForValue(args[0])
		if args[0].IsInt() {
			return FromBool(d.RemoveInt(args[0].AsI64())), nil
		}
		return FromBool(d.RemoveStr(rt.heap, key)), nil
	case MethodClear:
		d.Clear()
		return Unit, nil
	case MethodLength:
		return FromI64(int64(d.Len())), nil
	}
	return Unit, errUnsupportedMethod("dict", kind.displayName())
}

func (rt *Runtime) dictKeyForValue(v Value) DictKey {
	if v.IsInt() {
		return IntKey(v.AsI64())
	}
	return StrKeyFromText(rt.displayString(v), v.AsObjID())
}

func (rt *Runtime) dictGet(d *DictObject, key Value, dk DictKey) (Value, bool) {
	if key.IsInt() {
		if v, ok := d.GetInt(key.AsI64()); ok {
			return v, true
		}
	}
	return d.GetStr(rt.heap, dk)
}

func (rt *Runtime) dictKeyToValue(k DictKey) Value {
	if !k.IsStr() {
		return FromI64(k.Int())
	}
	return StrVal(k.StrObjID())
}

func (rt *Runtime) strText(v Value) Text {
	return rt.heap.Get(v.AsObjID()).(*StrObject).Text
}

func (rt *Runtime) callStrMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	s := rt.strText(recv).String()
	switch kind {
	case MethodFormat:
		var b strings.Builder
		ai := 0
		for i := 0; i < len(s); i++ {
			if s[i] == '{' && i+1 < len(s) && s[i+1] == '}' {
				if ai < len(args) {
					b.WriteString(rt.displayString(args[ai]))
					ai++
				}
				i++
				continue
			}
			b.WriteByte(s[i])
		}
		return rt.internString(b.String()), nil
	case MethodSplit:
		sep := rt.displayString(args[0])
		parts := strings.Split(s, sep)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = rt.internString(p)
		}
		id := rt.heap.Alloc(&ListObject{Elements: out})
		return ListVal(id), nil
	case MethodToInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Unit, errTypeMismatch("int", "string "+s)
		}
		return FromI64(n), nil
	case MethodToFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Unit, errTypeMismatch("float", "string "+s)
		}
		return FromF64(f), nil
	case MethodTryToInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return rt.noneValue(), nil
		}
		return rt.someValue(FromI64(n)), nil
	case MethodTryToFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return rt.noneValue(), nil
		}
		return rt.someValue(FromF64(f)), nil
	case MethodReplace:
		return rt.internString(strings.Replace(s, rt.displayString(args[0]), rt.displayString(args[1]), 1)), nil
	case MethodReplaceAll:
		return rt.internString(strings.ReplaceAll(s, rt.displayString(args[0]), rt.displayString(args[1]))), nil
	case MethodTrim:
		return rt.internString(strings.TrimSpace(s)), nil
	case MethodTrimStart:
		return rt.internString(strings.TrimLeft(s, " \t\n\r")), nil
	case MethodTrimEnd:
		return rt.internString(strings.TrimRight(s, " \t\n\r")), nil
	case MethodToUpper:
		return rt.internString(strings.ToUpper(s)), nil
	case MethodToLower:
		return rt.internString(strings.ToLower(s)), nil
	case MethodStartsWith:
		return FromBool(strings.HasPrefix(s, rt.displayString(args[0]))), nil
	case MethodEndsWith:
		return FromBool(strings.HasSuffix(s, rt.displayString(args[0]))), nil
	case MethodStrFind:
		idx := strings.Index(s, rt.displayString(args[0]))
		if idx < 0 {
			return rt.noneValue(), nil
		}
		return rt.someValue(FromI64(int64(idx))), nil
	case MethodSubstr:
		start := int(args[0].AsI64())
		end := len(s)
		if len(args) > 1 {
			end = int(args[1].AsI64())
		}
		if start < 0 || end > len(s) || start > end {
			return Unit, errIndexOutOfRange(start, len(s))
		}
		return rt.internString(s[start:end]), nil
	case MethodMatch, MethodContains:
		return FromBool(strings.Contains(s, rt.displayString(args[0]))), nil
	case MethodLength:
		t := rt.strText(recv)
		return FromI64(int64(t.CharCount())), nil
	case MethodToString:
		return recv, nil
	}
	return Unit, errUnsupportedMethod("string", kind.displayName())
}

func (rt *Runtime) callIntMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	i := recv.AsI64()
	switch kind {
	case MethodToString:
		return rt.internString(i64ToString(i)), nil
	case MethodAbs:
		if i < 0 {
			return FromI64(-i), nil
		}
		return recv, nil
	case MethodToBase:
		base := int(args[0].AsI64())
		return rt.internString(strconv.FormatInt(i, base)), nil
	case MethodIsEven:
		return FromBool(i%2 == 0), nil
	case MethodIsOdd:
		return FromBool(i%2 != 0), nil
	case MethodRound, MethodFloor, MethodCeil:
		return recv, nil
	}
	return Unit, errUnsupportedMethod("int", kind.displayName())
}

func (rt *Runtime) callFloatMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	f := recv.AsF64()
	switch kind {
	case MethodToString:
		return rt.internString(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case MethodAbs:
		if f < 0 {
			return FromF64(-f), nil
		}
		return recv, nil
	case MethodRound:
		return FromF64(floatRound(f)), nil
	case MethodFloor:
		return FromF64(floatFloor(f)), nil
	case MethodCeil:
		return FromF64(floatCeil(f)), nil
	}
	return Unit, errUnsupportedMethod("float", kind.displayName())
}

func (rt *Runtime) callBoolMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	switch kind {
	case MethodNot:
		return FromBool(!recv.AsBool()), nil
	case MethodToString:
		if recv.AsBool() {
			return rt.internString("true"), nil
		}
		return rt.internString("false"), nil
	}
	return Unit, errUnsupportedMethod("bool", kind.displayName())
}

func (rt *Runtime) callOptionMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	some, isSome := rt.heap.Get(recv.AsObjID()).(*OptionSomeObject)
	switch kind {
	case MethodHas:
		return FromBool(isSome), nil
	case MethodNone:
		return FromBool(!isSome), nil
	case MethodOr:
		if isSome {
			return some.Inner, nil
		}
		return args[0], nil
	case MethodOrElse:
		if isSome {
			return some.Inner, nil
		}
		return rt.CallValue(args[0], nil)
	case MethodGet:
		if isSome {
			return some.Inner, nil
		}
		return Unit, errTypeMismatch("Some", "None")
	case MethodMap:
		if !isSome {
			return recv, nil
		}
		res, err := rt.CallValue(args[0], []Value{some.Inner})
		if err != nil {
			return Unit, err
		}
		return rt.someValue(res), nil
	case MethodThen:
		if !isSome {
			return recv, nil
		}
		return rt.CallValue(args[0], []Value{some.Inner})
	case MethodEach:
		if isSome {
			if _, err := rt.CallValue(args[0], []Value{some.Inner}); err != nil {
				return Unit, err
			}
		}
		return Unit, nil
	case MethodFilter:
		if !isSome {
			return recv, nil
		}
		res, err := rt.CallValue(args[0], []Value{some.Inner})
		if err != nil {
			return Unit, err
		}
		if res.IsBool() && res.AsBool() {
			return recv, nil
		}
		return rt.noneValue(), nil
	case MethodMapErr:
		return recv, nil
	case MethodName:
		if isSome {
			return rt.internString("Some"), nil
		}
		return rt.internString("None"), nil
	case MethodTypeName:
		return rt.internString("option"), nil
	}
	return Unit, errUnsupportedMethod("option", kind.displayName())
}

func (rt *Runtime) callEnumMethod(recv Value, kind MethodKind, args []Value) (Value, *Error) {
	e := rt.heap.Get(recv.AsObjID()).(*EnumObject)
	switch kind {
	case MethodName:
		return rt.internString(e.VariantName), nil
	case MethodTypeName:
		return rt.internString(e.TypeName), nil
	case MethodToString:
		return rt.internString(e.TypeName + "." + e.VariantName), nil
	}
	return Unit, errUnsupportedMethod("enum", kind.displayName())
}

func (k MethodKind) displayName() string {
	for name, kind := range methodNames {
		if kind == k {
			return name
		}
	}
	return "?"
}

func valueLess(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return a.AsNumber() < b.AsNumber()
	}
	return false
}
