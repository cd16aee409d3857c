package runtime

// Cache entry modes for FieldICSlot. Offsets are cached instead of the
// resolved Value so a pure overwrite (which does not bump a dict's
// `ver`, per the version-bump rule) is still read fresh on a hit — the
// cache memoises where the value lives, not what it was.
const (
	fieldICEmpty uint8 = iota
	fieldICDictOffset
	fieldICTypeOffset
)

// FieldICSlot is one member/index cache entry: it remembers the last
// resolution a GetMember/GetIndex made at this site so a repeat access
// on an unchanged container skips the hash map or field scan entirely.
// Dict entries are keyed by (object id, version); struct entries by
// type hash alone, since struct layouts are immutable once defined.
type FieldICSlot struct {
	mode     uint8
	targetID ObjectId
	ver      uint64
	typeHash uint64
	offset   int
}

// lookupDictOffset returns the cached storage offset for a dict whose
// identity and version still match. Non-negative offsets index
// propValues (shape-backed records); negative offsets encode a map
// entry index as -idx-1.
func (s *FieldICSlot) lookupDictOffset(id ObjectId, ver uint64) (int, bool) {
	if s.mode == fieldICDictOffset && s.targetID == id && s.ver == ver {
		return s.offset, true
	}
	return 0, false
}

func (s *FieldICSlot) storeDictOffset(id ObjectId, ver uint64, offset int) {
	s.mode = fieldICDictOffset
	s.targetID = id
	s.ver = ver
	s.offset = offset
}

func (s *FieldICSlot) lookupTypeOffset(typeHash uint64) (int, bool) {
	if s.mode == fieldICTypeOffset && s.typeHash == typeHash {
		return s.offset, true
	}
	return 0, false
}

func (s *FieldICSlot) storeTypeOffset(typeHash uint64, offset int) {
	s.mode = fieldICTypeOffset
	s.typeHash = typeHash
	s.offset = offset
}

// MethodICSlot caches method-call resolution: keyed by receiver tag
// and method-name hash, plus a type hash for struct/enum/module
// receivers since those share a tag across distinct user types.
type MethodICSlot struct {
	valid      bool
	tag        Tag
	methodHash uint64
	typeHash   uint64
	hasFunc    bool
	funcID     ObjectId
	kind       MethodKind
}

func (s *MethodICSlot) lookup(tag Tag, methodHash, typeHash uint64) (ObjectId, MethodKind, bool, bool) {
	if s.valid && s.tag == tag && s.methodHash == methodHash && s.typeHash == typeHash {
		return s.funcID, s.kind, s.hasFunc, true
	}
	return 0, 0, false, false
}

func (s *MethodICSlot) storeFunc(tag Tag, methodHash, typeHash uint64, funcID ObjectId) {
	s.valid = true
	s.tag = tag
	s.methodHash = methodHash
	s.typeHash = typeHash
	s.hasFunc = true
	s.funcID = funcID
}

func (s *MethodICSlot) storeKind(tag Tag, methodHash, typeHash uint64, kind MethodKind) {
	s.valid = true
	s.tag = tag
	s.methodHash = methodHash
	s.typeHash = typeHash
	s.hasFunc = false
	s.kind = kind
}

// InlineCaches holds the two slot arrays a compiled program indexes
// into by the slot ids its compiler assigned. The arrays grow
// append-only: imported modules are compiled with their own slot
// numbering, so a lookup beyond the current length extends the array
// rather than faulting.
type InlineCaches struct {
	Fields  []FieldICSlot
	Methods []MethodICSlot
}

func NewInlineCaches(fieldSlots, methodSlots int) *InlineCaches {
	return &InlineCaches{
		Fields:  make([]FieldICSlot, fieldSlots),
		Methods: make([]MethodICSlot, methodSlots),
	}
}

func (ic *InlineCaches) field(slot int) *FieldICSlot {
	for slot >= len(ic.Fields) {
		ic.Fields = append(ic.Fields, FieldICSlot{})
	}
	return &ic.Fields[slot]
}

func (ic *InlineCaches) method(slot int) *MethodICSlot {
	for slot >= len(ic.Methods) {
		ic.Methods = append(ic.Methods, MethodICSlot{})
	}
	return &ic.Methods[slot]
}

// clear drops every cached entry. Called after a sweep: cached object
// ids may be reused by the next allocation, and a stale (id, ver) pair
// matching a recycled slot would serve a wrong hit.
func (ic *InlineCaches) clear() {
	for i := range ic.Fields {
		ic.Fields[i] = FieldICSlot{}
	}
	for i := range ic.Methods {
		ic.Methods[i] = MethodICSlot{}
	}
}
