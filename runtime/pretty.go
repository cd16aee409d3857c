package runtime

import (
	"strconv"
	"strings"
)

// displayString renders v the way `print`/`to_text`/string interpolation
// do: no quotes around a top-level string, containers rendered with
// their elements in repr form.
func (rt *Runtime) displayString(v Value) string {
	if v.GetTag() == TagStr {
		return rt.strText(v).String()
	}
	return rt.reprString(v, make(map[ObjectId]bool))
}

// reprString renders v for use inside a container (quoted strings,
// nested containers rendered recursively) or as the Debug-ish output of
// `to_text` on a bare value.
func (rt *Runtime) reprString(v Value, seen map[ObjectId]bool) string {
	switch {
	case v.IsF64():
		return formatFloat(v.AsF64())
	case v.IsInt():
		return i64ToString(v.AsI64())
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsUnit():
		return "()"
	}

	id := v.AsObjID()
	if seen[id] {
		return "<cycle>"
	}

	switch v.GetTag() {
	case TagStr:
		return quoteString(rt.strText(v).String())
	case TagList:
		seen[id] = true
		lst := rt.listObj(v)
		parts := make([]string, len(lst.Elements))
		for i, el := range lst.Elements {
			parts[i] = rt.reprString(el, seen)
		}
		delete(seen, id)
		return "[" + strings.Join(parts, ", ") + "]"
	case TagTuple:
		seen[id] = true
		tup := rt.heap.Get(id).(*TupleObject)
		parts := make([]string, len(tup.Elements))
		for i, el := range tup.Elements {
			parts[i] = rt.reprString(el, seen)
		}
		delete(seen, id)
		return "(" + strings.Join(parts, ", ") + ")"
	case TagDict:
		seen[id] = true
		d := rt.dictObj(v)
		var parts []string
		for idx, ok := range d.hasElement {
			if ok {
				parts = append(parts, i64ToString(int64(idx))+": "+rt.reprString(d.elements[idx], seen))
			}
		}
		for _, k := range d.m.Keys() {
			val, _ := d.m.Get(rt.heap, k)
			parts = append(parts, k.String(rt.heap)+": "+rt.reprString(val, seen))
		}
		if d.hasShape {
			for _, name := range rt.ShapeFieldNames(d.shape) {
				off, _ := rt.ShapeOffset(d.shape, name)
				parts = append(parts, name+": "+rt.reprString(d.propValues[off], seen))
			}
		}
		delete(seen, id)
		return "{" + strings.Join(parts, ", ") + "}"
	case TagStruct:
		seen[id] = true
		s := rt.heap.Get(id).(*StructObject)
		parts := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			name := ""
			if i < len(s.Names) {
				name = s.Names[i]
			}
			parts[i] = name + ": " + rt.reprString(f, seen)
		}
		delete(seen, id)
		return s.TypeName + " { " + strings.Join(parts, ", ") + " }"
	case TagEnum:
		seen[id] = true
		e := rt.heap.Get(id).(*EnumObject)
		if len(e.Payload) == 0 {
			delete(seen, id)
			return e.TypeName + "." + e.VariantName
		}
		parts := make([]string, len(e.Payload))
		for i, f := range e.Payload {
			parts[i] = rt.reprString(f, seen)
		}
		delete(seen, id)
		return e.TypeName + "." + e.VariantName + "(" + strings.Join(parts, ", ") + ")"
	case TagOption:
		seen[id] = true
		inner := rt.heap.Get(id).(*OptionSomeObject).Inner
		s := "Some(" + rt.reprString(inner, seen) + ")"
		delete(seen, id)
		return s
	case TagRange:
		r := rt.heap.Get(id).(*RangeObject)
		op := ".."
		if r.Inclusive {
			op = "..="
		}
		return i64ToString(r.Start) + op + i64ToString(r.End)
	case TagModule:
		return "<module " + rt.heap.Get(id).(*ModuleObject).Path + ">"
	case TagFunc:
		fo := rt.heap.Get(id).(*FuncObject)
		if fo.Name == "" {
			return "<function>"
		}
		return "<function " + fo.Name + ">"
	case TagFile:
		return "<file " + rt.heap.Get(id).(*FileObject).Path + ">"
	case TagBuilder:
		return "<builder>"
	default:
		return "<value>"
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// formatFloat appends ".0" when the shortest form has neither a '.'
// nor an exponent, so 2.0 never reads back as the int 2; exponent
// forms such as 1e+21 are printed as they are.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
