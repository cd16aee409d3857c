package runtime

import "unicode/utf8"

// inlineCap is the largest string length Text stores without a heap
// allocation.
const inlineCap = 22

// Text is a compact immutable string: short strings live inline in the
// struct, long strings share a backing buffer via a pointer so copies
// of Text stay cheap. The struct holds a length word, the 22-byte
// inline array, the heap pointer (nil for inline strings, whose inline
// array is then the content) and a cached character count; the heap
// case leaves the inline array unused.
type Text struct {
	len       int32
	inline    [inlineCap]byte
	heap      *string
	charCount int32 // -1 = not yet computed; only meaningful when heap != nil
}

func TextFromString(s string) Text {
	if len(s) <= inlineCap {
		var t Text
		t.len = int32(len(s))
		copy(t.inline[:], s)
		return t
	}
	heapStr := s
	return Text{len: -1, heap: &heapStr, charCount: -1}
}

func (t Text) String() string {
	if t.heap != nil {
		return *t.heap
	}
	return string(t.inline[:t.len])
}

func (t Text) Len() int {
	if t.heap != nil {
		return len(*t.heap)
	}
	return int(t.len)
}

func (t Text) IsEmpty() bool { return t.Len() == 0 }

// CharCount returns the number of Unicode code points, caching the
// result on the heap representation (inline strings are cheap enough
// to recompute every time).
func (t *Text) CharCount() int {
	if t.heap == nil {
		s := t.inline[:t.len]
		for _, b := range s {
			if b >= 0x80 {
				return utf8.RuneCount(s)
			}
		}
		return int(t.len)
	}
	if t.charCount >= 0 {
		return int(t.charCount)
	}
	n := utf8.RuneCountInString(*t.heap)
	t.charCount = int32(n)
	return n
}

func (a Text) Equal(b Text) bool {
	if a.heap == nil && b.heap == nil {
		return a.len == b.len && a.inline == b.inline
	}
	return a.String() == b.String()
}
