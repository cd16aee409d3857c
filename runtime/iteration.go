package runtime

// IterKind discriminates the IterState variants.
type IterKind uint8

const (
	IterList IterKind = iota
	IterRange
	IterDict
	IterDictKV
)

// IterState is one active foreach loop's cursor, pushed by
// ForEachInit and advanced by ForEachNext. Held on the VM's iterator
// stack rather than the operand stack since it isn't itself a Value.
type IterState struct {
	Kind IterKind

	// List
	ListID ObjectId
	Idx    int
	Len    int

	// Range
	Cur, End, Step int64
	Inclusive      bool

	// Dict / DictKV
	Keys  []Value
	Items [][2]Value
}

// newListIter builds the cursor for iterating a list's elements.
func newListIter(id ObjectId, length int) *IterState {
	return &IterState{Kind: IterList, ListID: id, Idx: 0, Len: length}
}

func newRangeIter(start, end int64, inclusive bool) *IterState {
	return &IterState{Kind: IterRange, Cur: start, End: end, Step: 1, Inclusive: inclusive}
}

func newDictIter(keys []Value) *IterState {
	return &IterState{Kind: IterDict, Keys: keys, Idx: 0}
}

func newDictKVIter(items [][2]Value) *IterState {
	return &IterState{Kind: IterDictKV, Items: items, Idx: 0}
}

// next returns the next bound Value and whether the iterator is
// exhausted. For DictKV it returns a 2-tuple packed as a TupleObject,
// allocated by the caller (the VM, which has heap access).
func (it *IterState) hasNext() bool {
	switch it.Kind {
	case IterList:
		return it.Idx < it.Len
	case IterRange:
		if it.Inclusive {
			return it.Cur <= it.End
		}
		return it.Cur < it.End
	case IterDict:
		return it.Idx < len(it.Keys)
	case IterDictKV:
		return it.Idx < len(it.Items)
	}
	return false
}

func (it *IterState) advance() {
	switch it.Kind {
	case IterList, IterDict, IterDictKV:
		it.Idx++
	case IterRange:
		it.Cur += it.Step
	}
}
