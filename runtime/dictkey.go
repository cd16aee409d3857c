package runtime

import "hash/maphash"

// dictKeySeed gives integer and string DictKeys disjoint hash spaces:
// both key kinds hash through the same seeded hasher but with distinct
// domain prefixes, so an int key can never collide with a string key
// of the same bytes.
var dictKeySeed = maphash.MakeSeed()

// DictKey is a composite container key: either an integer or a
// reference to an interned string, carrying its hash so equality and
// map lookups never re-hash string content.
type DictKey struct {
	isStr bool
	hash  uint64
	strID ObjectId
	i     int64
}

func IntKey(i int64) DictKey {
	var h maphash.Hash
	h.SetSeed(dictKeySeed)
	var buf [9]byte
	buf[0] = 1
	u := uint64(i)
	for i := 0; i < 8; i++ {
		buf[i+1] = byte(u >> (8 * i))
	}
	h.Write(buf[:])
	return DictKey{isStr: false, i: i, hash: h.Sum64()}
}

// StrKeyFromText hashes s with the container's dedicated, deterministic
// hasher and records the interned string's ObjectId.
func StrKeyFromText(s string, id ObjectId) DictKey {
	var h maphash.Hash
	h.SetSeed(dictKeySeed)
	h.Write([]byte{0})
	h.Write([]byte(s))
	return DictKey{isStr: true, strID: id, hash: h.Sum64()}
}

func (k DictKey) IsStr() bool     { return k.isStr }
func (k DictKey) Hash() uint64    { return k.hash }
func (k DictKey) StrObjID() ObjectId { return k.strID }
func (k DictKey) Int() int64      { return k.i }

// Equal short-circuits on identity: identical string ids are equal
// without touching the heap; differing ids with matching hashes
// fall back to content comparison (a hash collision, or two distinct
// ObjectIds that happen to hold equal text — e.g. one interned, one
// built at runtime via string concatenation).
func (k DictKey) Equal(other DictKey, heap *Heap) bool {
	if k.isStr != other.isStr {
		return false
	}
	if !k.isStr {
		return k.i == other.i
	}
	if k.hash != other.hash {
		return false
	}
	if k.strID == other.strID {
		return true
	}
	return heapStrContent(heap, k.strID) == heapStrContent(heap, other.strID)
}

func heapStrContent(h *Heap, id ObjectId) string {
	if so, ok := h.Get(id).(*StrObject); ok {
		return so.Text.String()
	}
	return ""
}

func (k DictKey) String(heap *Heap) string {
	if k.isStr {
		return heapStrContent(heap, k.strID)
	}
	return i64ToString(k.i)
}

func i64ToString(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	n := uint64(i)
	if neg {
		n = uint64(-i)
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
