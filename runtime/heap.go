package runtime

// ObjectId is a dense index into the heap's slot vector. Ids are reused
// after collection; a Value that names one is only valid until the
// next sweep reclaims it.
type ObjectId uint64

// HeapObject is implemented by every heap-resident object kind. Size
// feeds the allocator's byte estimator; trace pushes every Value this
// object transitively references onto the GC worklist.
type HeapObject interface {
	Size() int
	trace(h *Heap, worklist *[]ObjectId)
}

// --- object kinds -----------------------------------------------------

type ListObject struct{ Elements []Value }

func (o *ListObject) Size() int { return 64 + cap(o.Elements)*8 }
func (o *ListObject) trace(h *Heap, wl *[]ObjectId) { traceValues(o.Elements, wl) }

type TupleObject struct{ Elements []Value }

func (o *TupleObject) Size() int                    { return 64 + cap(o.Elements)*8 }
func (o *TupleObject) trace(h *Heap, wl *[]ObjectId) { traceValues(o.Elements, wl) }

type StrObject struct{ Text Text }

func (o *StrObject) Size() int                    { return 32 + o.Text.Len() }
func (o *StrObject) trace(h *Heap, wl *[]ObjectId) {}

type BuilderObject struct{ Buf []byte }

func (o *BuilderObject) Size() int                    { return 32 + cap(o.Buf) }
func (o *BuilderObject) trace(h *Heap, wl *[]ObjectId) {}

type StructObject struct {
	TypeName string
	TypeHash uint64
	Fields   []Value
	Names    []string // parallel to Fields
}

func (o *StructObject) Size() int                    { return 64 + len(o.Fields)*8 }
func (o *StructObject) trace(h *Heap, wl *[]ObjectId) { traceValues(o.Fields, wl) }

type ModuleObject struct {
	Path    string
	Exports *DictStr
}

func (o *ModuleObject) Size() int { return 256 }
func (o *ModuleObject) trace(h *Heap, wl *[]ObjectId) {
	for _, v := range o.Exports.Map {
		pushIfObj(wl, v)
	}
}

type RangeObject struct {
	Start, End int64
	Inclusive  bool
}

func (o *RangeObject) Size() int                    { return 32 }
func (o *RangeObject) trace(h *Heap, wl *[]ObjectId) {}

type EnumObject struct {
	TypeName    string
	VariantName string
	Payload     []Value
}

func (o *EnumObject) Size() int                    { return 64 + len(o.Payload)*8 }
func (o *EnumObject) trace(h *Heap, wl *[]ObjectId) { traceValues(o.Payload, wl) }

type OptionSomeObject struct{ Inner Value }

func (o *OptionSomeObject) Size() int { return 16 }
func (o *OptionSomeObject) trace(h *Heap, wl *[]ObjectId) {
	pushIfObj(wl, o.Inner)
}

type FileObject struct {
	Path   string
	Handle interface {
		Close() error
	}
	Closed bool
}

func (o *FileObject) Size() int                    { return 128 }
func (o *FileObject) trace(h *Heap, wl *[]ObjectId) {}

type ShapeObject struct {
	Parent      ObjectId
	HasParent   bool
	PropMap     map[string]int // field name -> offset
	PropOrder   []string
	Transitions map[string]ObjectId
}

func (o *ShapeObject) Size() int                    { return 64 + len(o.PropMap)*32 }
func (o *ShapeObject) trace(h *Heap, wl *[]ObjectId) {}

type FuncKind uint8

const (
	FuncKindBytecode FuncKind = iota
	FuncKindBuiltin
)

type BuiltinFunc func(rt *Runtime, args []Value) (Value, *Error)

type BytecodeFunction struct {
	Name       string
	Arity      int
	Params     []string
	ParamSlots []int
	Program    *Program
	LocalsMax  int
	Env        *Environment // captured environment; nil until frozen at closure creation
	ParamType  []string     // optional declared param type names, parallel to Params
	ReturnType string       // optional declared return type name

	// EnvMode marks a function whose locals live in the Environment
	// rather than LocalSlots because a nested function literal may
	// capture them.
	EnvMode bool

	// fastKind caches which secondary interpreter (if any) can run
	// this body: 0 undecided, see the fastKind* constants in vm.go.
	fastKind int8
}

type FuncObject struct {
	Kind     FuncKind
	Bytecode *BytecodeFunction
	Builtin  BuiltinFunc
	Name     string
}

func (o *FuncObject) Size() int { return 256 }
func (o *FuncObject) trace(h *Heap, wl *[]ObjectId) {
	if o.Kind != FuncKindBytecode || o.Bytecode.Env == nil {
		return
	}
	env := o.Bytecode.Env
	traceValues(env.stack, wl)
	for _, fr := range env.frames {
		if fr.scope != nil {
			traceValues(fr.scope.values, wl)
		}
	}
}

func traceValues(vals []Value, wl *[]ObjectId) {
	for _, v := range vals {
		pushIfObj(wl, v)
	}
}

func pushIfObj(wl *[]ObjectId, v Value) {
	if v.IsObj() {
		*wl = append(*wl, v.AsObjID())
	}
}

// --- heap / GC ----------------------------------------------------------

// Heap is the managed slab of objects, addressed by dense ObjectId,
// with a stop-the-world mark-sweep collector. Freed slot ids go on a
// free stack and are reused by later allocations, never within a
// single collection cycle.
type Heap struct {
	objects  []HeapObject
	freeList []int
	marks    []uint64

	allocCount       int
	gcThreshold      int
	allocBytes       int
	gcThresholdBytes int
}

func NewHeap() *Heap {
	return &Heap{
		objects:          make([]HeapObject, 0, 1024),
		gcThreshold:      500_000,
		gcThresholdBytes: 256 * 1024 * 1024,
	}
}

func (h *Heap) Alloc(obj HeapObject) ObjectId {
	h.allocCount++
	h.allocBytes += obj.Size()
	if n := len(h.freeList); n > 0 {
		id := h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		h.objects[id] = obj
		return ObjectId(id)
	}
	id := len(h.objects)
	h.objects = append(h.objects, obj)
	return ObjectId(id)
}

func (h *Heap) ShouldGC() bool {
	return h.allocCount >= h.gcThreshold || h.allocBytes >= h.gcThresholdBytes
}

func (h *Heap) Get(id ObjectId) HeapObject { return h.objects[id] }

func (h *Heap) IsMarked(id ObjectId) bool {
	word := int(id) >> 6
	bit := int(id) & 63
	return word < len(h.marks) && h.marks[word]&(1<<uint(bit)) != 0
}

func (h *Heap) setMark(id int) bool {
	word := id >> 6
	bit := uint(id & 63)
	if word >= len(h.marks) {
		grown := make([]uint64, word+1)
		copy(grown, h.marks)
		h.marks = grown
	}
	mask := uint64(1) << bit
	if h.marks[word]&mask != 0 {
		return false
	}
	h.marks[word] |= mask
	return true
}

// Roots is the reachability base for a collection: an explicit caller
// slice (the VM operand stack plus temporary roots), every Environment
// passed in, and every active LocalSlots frame.
type Roots struct {
	Values []Value
	Envs   []*Environment
	Locals []*LocalSlots
}

// Mark runs the mark phase over the given root set, using an explicit
// worklist rather than recursion so deep structures can't blow the Go
// call stack.
func (h *Heap) Mark(roots Roots) {
	neededWords := (len(h.objects) + 63) >> 6
	h.marks = make([]uint64, neededWords)

	worklist := make([]ObjectId, 0, 2048)
	traceValues(roots.Values, &worklist)
	for _, env := range roots.Envs {
		if env == nil {
			continue
		}
		traceValues(env.stack, &worklist)
		for _, fr := range env.frames {
			if fr.scope != nil {
				traceValues(fr.scope.values, &worklist)
			}
		}
	}
	for _, ls := range roots.Locals {
		if ls == nil {
			continue
		}
		for _, frame := range ls.values {
			traceValues(frame, &worklist)
		}
	}

	for len(worklist) > 0 {
		n := len(worklist) - 1
		id := worklist[n]
		worklist = worklist[:n]
		idx := int(id)
		if idx >= len(h.objects) || !h.setMark(idx) {
			continue
		}
		if obj := h.objects[idx]; obj != nil {
			obj.trace(h, &worklist)
		}
	}
}

// Sweep frees every unmarked slot and recomputes the next GC
// thresholds from the surviving live set, truncating the object vector
// after the last live slot.
func (h *Heap) Sweep() {
	liveCount := 0
	liveBytes := 0
	lastLive := -1

	for i, obj := range h.objects {
		if obj == nil {
			continue
		}
		if h.IsMarked(ObjectId(i)) {
			liveCount++
			liveBytes += obj.Size()
			lastLive = i
		} else {
			h.objects[i] = nil
		}
	}

	if lastLive+1 < len(h.objects) {
		h.objects = h.objects[:lastLive+1]
	}

	h.freeList = h.freeList[:0]
	for i, obj := range h.objects {
		if obj == nil {
			h.freeList = append(h.freeList, i)
		}
	}

	h.marks = nil
	h.allocCount = 0
	h.allocBytes = 0

	growth := 2.0
	if liveCount > 50_000 {
		growth = 1.5
	}
	h.gcThreshold = maxInt(int(float64(liveCount)*growth), 16384)
	h.gcThresholdBytes = maxInt(int(float64(liveBytes)*growth), 16*1024*1024)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// HeapStats is a per-kind census of live objects. Backs the
// `heap_stats` builtin.
type HeapStats struct {
	Total, Strings, Lists, Dicts, Structs, Enums, Functions, Other, Free int
}

func (h *Heap) Stats() HeapStats {
	var s HeapStats
	for _, obj := range h.objects {
		if obj == nil {
			continue
		}
		s.Total++
		switch obj.(type) {
		case *StrObject:
			s.Strings++
		case *ListObject, *TupleObject:
			s.Lists++
		case *DictObject, *DictStrObject:
			s.Dicts++
		case *StructObject:
			s.Structs++
		case *EnumObject, *OptionSomeObject:
			s.Enums++
		case *FuncObject:
			s.Functions++
		default:
			s.Other++
		}
	}
	s.Free = len(h.freeList)
	return s
}
