package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextInline(t *testing.T) {
	s := "hello, world"
	txt := TextFromString(s)
	assert.Nil(t, txt.heap, "short strings stay inline")
	assert.Equal(t, s, txt.String())
	assert.Equal(t, len(s), txt.Len())
}

func TestTextHeap(t *testing.T) {
	s := strings.Repeat("a", inlineCap+1)
	txt := TextFromString(s)
	assert.NotNil(t, txt.heap)
	assert.Equal(t, s, txt.String())
	assert.Equal(t, len(s), txt.Len())
}

func TestTextBoundary(t *testing.T) {
	s := strings.Repeat("b", inlineCap)
	txt := TextFromString(s)
	assert.Nil(t, txt.heap, "exactly inlineCap bytes still inline")
	assert.Equal(t, s, txt.String())
}

func TestTextCharCount(t *testing.T) {
	ascii := TextFromString("abc")
	assert.Equal(t, 3, ascii.CharCount())

	uni := TextFromString("héllo")
	assert.Equal(t, 5, uni.CharCount())
	assert.Equal(t, 6, uni.Len(), "é is two bytes")

	long := TextFromString(strings.Repeat("é", 20))
	assert.Equal(t, 20, long.CharCount())
	// cached on second call
	assert.Equal(t, 20, long.CharCount())
}

func TestTextEqual(t *testing.T) {
	assert.True(t, TextFromString("x").Equal(TextFromString("x")))
	assert.False(t, TextFromString("x").Equal(TextFromString("y")))
	long := strings.Repeat("z", 40)
	assert.True(t, TextFromString(long).Equal(TextFromString(long)))
	assert.False(t, TextFromString(long).Equal(TextFromString("z")))
}

func TestTextEmpty(t *testing.T) {
	assert.True(t, TextFromString("").IsEmpty())
	assert.False(t, TextFromString("a").IsEmpty())
}
