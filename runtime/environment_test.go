package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentDefineGetAssign(t *testing.T) {
	e := NewEnvironment()
	e.Define("x", FromI64(1))

	v, ok := e.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsI64())

	assert.True(t, e.Assign("x", FromI64(2)))
	v, _ = e.Get("x")
	assert.Equal(t, int64(2), v.AsI64())

	assert.False(t, e.Assign("missing", FromI64(0)))
	_, ok = e.Get("missing")
	assert.False(t, ok)
}

func TestEnvironmentShadowing(t *testing.T) {
	e := NewEnvironment()
	e.Define("x", FromI64(1))
	e.Push()
	e.Define("x", FromI64(2))

	v, _ := e.Get("x")
	assert.Equal(t, int64(2), v.AsI64())

	e.Pop()
	v, _ = e.Get("x")
	assert.Equal(t, int64(1), v.AsI64())
}

func TestEnvironmentAttachedFrameTruncatesStack(t *testing.T) {
	e := NewEnvironment()
	e.Push()
	e.Define("a", FromI64(1))
	e.Define("b", FromI64(2))
	require.Equal(t, 2, len(e.stack))

	e.Pop()
	assert.Equal(t, 0, len(e.stack), "popping an attached frame truncates to base")
}

func TestEnvironmentAssignThroughFrames(t *testing.T) {
	e := NewEnvironment()
	e.Define("outer", FromI64(10))
	e.Push()
	e.Push()
	assert.True(t, e.Assign("outer", FromI64(11)), "assignment walks out to the defining frame")
	e.Pop()
	e.Pop()
	v, _ := e.Get("outer")
	assert.Equal(t, int64(11), v.AsI64())
}

func TestEnvironmentFreezeShares(t *testing.T) {
	e := NewEnvironment()
	e.Push()
	e.Define("n", FromI64(0))

	frozen := e.Freeze()

	// mutation through the frozen view is visible in the original
	require.True(t, frozen.Assign("n", FromI64(5)))
	v, ok := e.Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(5), v.AsI64())

	// and the other way round
	require.True(t, e.Assign("n", FromI64(7)))
	v, _ = frozen.Get("n")
	assert.Equal(t, int64(7), v.AsI64())
}

func TestEnvironmentFreezeDetaches(t *testing.T) {
	e := NewEnvironment()
	e.Push()
	e.Define("n", FromI64(42))
	e.Freeze()

	for _, fr := range e.frames {
		assert.False(t, fr.attached, "freeze detaches every frame")
	}
	// values moved off the operand stack into the scope
	v, ok := e.Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.AsI64())
}

func TestEnvironmentPopWithoutClearPreservesScope(t *testing.T) {
	e := NewEnvironment()
	e.Push()
	e.Define("n", FromI64(1))
	frozen := e.Freeze()
	e.PopWithoutClear()

	v, ok := frozen.Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsI64(), "shared scope survives the pop")
}

func TestEnvironmentGetCachedConsistent(t *testing.T) {
	e := NewEnvironment()
	e.Define("x", FromI64(3))
	v1, ok1 := e.GetCached("x")
	v2, ok2 := e.GetCached("x") // second read comes from the cache
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, v1, v2)
}

func TestEnvironmentImmutability(t *testing.T) {
	e := NewEnvironment()
	e.DefineWithMutability("c", FromI64(1), true)
	e.DefineWithMutability("v", FromI64(2), false)
	assert.True(t, e.IsImmutable("c"))
	assert.False(t, e.IsImmutable("v"))
	assert.False(t, e.IsImmutable("unknown"))
}

func TestEnvironmentTake(t *testing.T) {
	e := NewEnvironment()
	e.Define("x", FromI64(9))
	v, ok := e.Take("x")
	require.True(t, ok)
	assert.Equal(t, int64(9), v.AsI64())
	left, _ := e.Get("x")
	assert.True(t, left.IsUnit(), "take leaves unit behind")
}

func TestLocalSlotsDefineAndIndex(t *testing.T) {
	ls := NewLocalSlots()
	ls.Push()
	idx, ok := ls.Define("a", FromI64(1))
	require.True(t, ok)

	v, ok := ls.GetByIndex(idx)
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsI64())

	require.True(t, ls.SetByIndex(idx, FromI64(2)))
	v, _ = ls.Get("a")
	assert.Equal(t, int64(2), v.AsI64())
	ls.Pop()
}

func TestLocalSlotsDepthIndex(t *testing.T) {
	ls := NewLocalSlots()
	ls.Push()
	ls.Define("outer", FromI64(1))
	ls.Push()
	ls.Define("inner", FromI64(2))

	v, ok := ls.GetByDepthIndex(1, 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsI64())

	v, ok = ls.GetByDepthIndex(0, 0)
	require.True(t, ok)
	assert.Equal(t, int64(2), v.AsI64())

	_, ok = ls.GetByDepthIndex(5, 0)
	assert.False(t, ok)
}

func TestLocalSlotsFallthroughShadowing(t *testing.T) {
	ls := NewLocalSlots()
	ls.Push()
	ls.Define("x", FromI64(1))
	ls.Push()
	ls.Define("x", FromI64(2))

	v, _ := ls.Get("x")
	assert.Equal(t, int64(2), v.AsI64(), "innermost frame wins")
	ls.Pop()
	v, _ = ls.Get("x")
	assert.Equal(t, int64(1), v.AsI64())
}

func TestLocalSlotsGrowTo(t *testing.T) {
	ls := NewLocalSlots()
	ls.Push()
	ls.GrowTo(4)
	require.True(t, ls.SetByIndex(3, FromI64(7)))
	v, ok := ls.GetByIndex(3)
	require.True(t, ok)
	assert.Equal(t, int64(7), v.AsI64())
	v, _ = ls.GetByIndex(0)
	assert.True(t, v.IsUnit(), "preallocated slots read as unit")
}

func TestLocalSlotsRecyclesFrames(t *testing.T) {
	ls := NewLocalSlots()
	ls.Push()
	ls.Define("a", FromI64(1))
	ls.Pop()
	ls.Push()
	_, ok := ls.Get("a")
	assert.False(t, ok, "recycled frame comes back empty")
	ls.Pop()
}

func TestLocalSlotsAllBindings(t *testing.T) {
	ls := NewLocalSlots()
	ls.Push()
	ls.Define("a", FromI64(1))
	ls.Define("b", FromI64(2))
	ls.Push()
	ls.Define("a", FromI64(10))

	binds := ls.AllBindings()
	got := map[string]int64{}
	for _, b := range binds {
		got[b.Name] = b.Value.AsI64()
	}
	assert.Equal(t, map[string]int64{"a": 10, "b": 2}, got, "inner frames shadow outer")
}
