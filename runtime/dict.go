package runtime

// ELEMENTS_MAX bounds the dense integer-indexed fast path:
// non-negative integer keys smaller than this live in a plain slice,
// not the hash map.
const ELEMENTS_MAX = 64

// dictMapEntry backs the general-case hash map surface of a Dict. Go's
// native map can't be handed a custom hasher/equality (DictKey.Equal
// needs heap access to break hash collisions), so the map is hand
// rolled as a bucket index over an append-only, insertion-ordered
// entry slice.
type dictMapEntry struct {
	key     DictKey
	value   Value
	deleted bool
}

type dictMap struct {
	entries []dictMapEntry
	index   map[uint64][]int
	live    int
}

func newDictMap() *dictMap {
	return &dictMap{index: make(map[uint64][]int)}
}

func (m *dictMap) find(heap *Heap, key DictKey) int {
	for _, idx := range m.index[key.hash] {
		e := &m.entries[idx]
		if !e.deleted && e.key.Equal(key, heap) {
			return idx
		}
	}
	return -1
}

// Insert reports whether key was newly inserted, so the owning dict
// can bump ver on new keys but not on pure overwrites.
func (m *dictMap) Insert(heap *Heap, key DictKey, val Value) bool {
	if idx := m.find(heap, key); idx >= 0 {
		m.entries[idx].value = val
		return false
	}
	m.entries = append(m.entries, dictMapEntry{key: key, value: val})
	idx := len(m.entries) - 1
	m.index[key.hash] = append(m.index[key.hash], idx)
	m.live++
	return true
}

func (m *dictMap) Get(heap *Heap, key DictKey) (Value, bool) {
	if idx := m.find(heap, key); idx >= 0 {
		return m.entries[idx].value, true
	}
	return 0, false
}

func (m *dictMap) Remove(heap *Heap, key DictKey) bool {
	if idx := m.find(heap, key); idx >= 0 {
		m.entries[idx].deleted = true
		m.live--
		return true
	}
	return false
}

func (m *dictMap) Len() int { return m.live }

func (m *dictMap) Clear() {
	m.entries = m.entries[:0]
	m.index = make(map[uint64][]int)
	m.live = 0
}

// Keys/Values/Items walk entries in insertion order, skipping tombstones.
func (m *dictMap) Keys() []DictKey {
	out := make([]DictKey, 0, m.live)
	for _, e := range m.entries {
		if !e.deleted {
			out = append(out, e.key)
		}
	}
	return out
}

func (m *dictMap) Values() []Value {
	out := make([]Value, 0, m.live)
	for _, e := range m.entries {
		if !e.deleted {
			out = append(out, e.value)
		}
	}
	return out
}

// DictObject is the general-purpose container: a dense element slice
// for small non-negative int keys, a hash map for the general case,
// and an optional shape side-table for record-style use. ver bumps on
// every structurally observable change.
type DictObject struct {
	elements   []Value // index i holds the value for int key i; hasElement[i] marks it present
	hasElement []bool
	m          *dictMap
	shape      ObjectId
	hasShape   bool
	propValues []Value
	ver        uint64
}

func NewDictObject() *DictObject {
	return &DictObject{m: newDictMap()}
}

func (d *DictObject) Size() int {
	return 128 + len(d.m.entries)*48 + cap(d.elements)*8 + cap(d.propValues)*8
}

func (d *DictObject) trace(h *Heap, wl *[]ObjectId) {
	for _, e := range d.m.entries {
		if e.deleted {
			continue
		}
		if e.key.isStr {
			*wl = append(*wl, e.key.strID)
		}
		pushIfObj(wl, e.value)
	}
	traceValues(d.elements, wl)
	traceValues(d.propValues, wl)
	if d.hasShape {
		*wl = append(*wl, d.shape)
	}
}

func (d *DictObject) Ver() uint64 { return d.ver }

// InsertInt sets dict[key] = val using the dense element fast path
// when key qualifies, falling back to the hash map otherwise.
func (d *DictObject) InsertInt(heap *Heap, key int64, val Value) {
	if key >= 0 && key < ELEMENTS_MAX {
		idx := int(key)
		for len(d.elements) <= idx {
			d.elements = append(d.elements, Unit)
			d.hasElement = append(d.hasElement, false)
		}
		if !d.hasElement[idx] {
			d.ver++
		}
		d.elements[idx] = val
		d.hasElement[idx] = true
		return
	}
	if d.m.Insert(heap, IntKey(key), val) {
		d.ver++
	}
}

func (d *DictObject) GetInt(key int64) (Value, bool) {
	if key >= 0 && int(key) < len(d.elements) && d.hasElement[key] {
		return d.elements[key], true
	}
	return 0, false
}

func (d *DictObject) InsertStr(heap *Heap, key DictKey, val Value) {
	if d.m.Insert(heap, key, val) {
		d.ver++
	}
}

func (d *DictObject) GetStr(heap *Heap, key DictKey) (Value, bool) {
	return d.m.Get(heap, key)
}

func (d *DictObject) RemoveInt(key int64) bool {
	if key >= 0 && int(key) < len(d.elements) && d.hasElement[key] {
		d.hasElement[key] = false
		d.elements[key] = Unit
		d.ver++
		return true
	}
	return false
}

func (d *DictObject) RemoveStr(heap *Heap, key DictKey) bool {
	if d.m.Remove(heap, key) {
		d.ver++
		return true
	}
	return false
}

func (d *DictObject) Clear() {
	if d.Len() == 0 {
		return
	}
	d.elements = nil
	d.hasElement = nil
	d.m.Clear()
	d.propValues = nil
	d.hasShape = false
	d.ver++
}

// Len counts elements, map entries, and shape properties.
func (d *DictObject) Len() int {
	n := d.m.Len()
	for _, ok := range d.hasElement {
		if ok {
			n++
		}
	}
	n += len(d.propValues)
	return n
}

// DictStrObject is the string-keyed dict used only for module export
// tables: a plain insertion-ordered string map, no elements/shape
// surfaces.
type DictStrObject struct {
	Map   map[string]Value
	Order []string
	Ver   uint64
}

func NewDictStrObject() *DictStrObject {
	return &DictStrObject{Map: make(map[string]Value)}
}

func (d *DictStrObject) Size() int { return 64 + len(d.Map)*48 }
func (d *DictStrObject) trace(h *Heap, wl *[]ObjectId) {
	for _, v := range d.Map {
		pushIfObj(wl, v)
	}
}

func (d *DictStrObject) Insert(key string, val Value) {
	if _, ok := d.Map[key]; !ok {
		d.Order = append(d.Order, key)
		d.Ver++
	}
	d.Map[key] = val
}

// DictStr is a short alias for export-table call sites.
type DictStr = DictStrObject
