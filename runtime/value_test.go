package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueFloatRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1.5, -2.25, 1e300, math.Inf(1), math.Inf(-1)} {
		v := FromF64(f)
		assert.True(t, v.IsF64())
		assert.Equal(t, f, v.AsF64())
	}
}

func TestValueNaNCanonical(t *testing.T) {
	a := FromF64(math.NaN())
	b := FromF64(math.Float64frombits(0x7FF8000000000001))
	assert.Equal(t, a, b, "every NaN payload collapses to the canonical quiet NaN")
	assert.True(t, a.IsF64())
}

func TestValueIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, maxInt48, minInt48}
	for _, i := range cases {
		v := FromI64(i)
		assert.True(t, v.IsInt(), "tag for %d", i)
		assert.False(t, v.IsF64())
		assert.Equal(t, i, v.AsI64(), "48-bit sign extension for %d", i)
	}
}

func TestValueBoolUnit(t *testing.T) {
	assert.True(t, FromBool(true).AsBool())
	assert.False(t, FromBool(false).AsBool())
	assert.True(t, FromBool(true).IsBool())
	assert.True(t, Unit.IsUnit())
	assert.False(t, Unit.IsObj())
}

func TestValueObjectTags(t *testing.T) {
	id := ObjectId(7)
	cases := map[Tag]Value{
		TagList:   ListVal(id),
		TagDict:   DictValOf(id),
		TagStr:    StrVal(id),
		TagStruct: StructVal(id),
		TagFunc:   FuncVal(id),
		TagRange:  RangeVal(id),
		TagEnum:   EnumVal(id),
		TagTuple:  TupleVal(id),
		TagOption: OptionSomeVal(id),
	}
	for tag, v := range cases {
		assert.Equal(t, tag, v.GetTag())
		assert.True(t, v.IsObj())
		assert.Equal(t, id, v.AsObjID())
	}
}

func TestValueAsNumberPromotes(t *testing.T) {
	assert.Equal(t, 3.0, FromI64(3).AsNumber())
	assert.Equal(t, 3.5, FromF64(3.5).AsNumber())
}

func TestValuesEqualCrossNumeric(t *testing.T) {
	rt := NewRuntime()
	assert.True(t, rt.valuesEqual(FromI64(1), FromF64(1.0)))
	assert.True(t, rt.valuesEqual(FromF64(2.0), FromI64(2)))
	assert.False(t, rt.valuesEqual(FromI64(1), FromBool(true)))
	assert.False(t, rt.valuesEqual(FromI64(1), Unit))
}

func TestValuesEqualStructural(t *testing.T) {
	rt := NewRuntime()
	l1 := ListVal(rt.heap.Alloc(&ListObject{Elements: []Value{FromI64(1), FromI64(2)}}))
	l2 := ListVal(rt.heap.Alloc(&ListObject{Elements: []Value{FromI64(1), FromI64(2)}}))
	l3 := ListVal(rt.heap.Alloc(&ListObject{Elements: []Value{FromI64(1)}}))
	assert.True(t, rt.valuesEqual(l1, l2))
	assert.True(t, rt.valuesEqual(l1, l1), "reflexive")
	assert.True(t, rt.valuesEqual(l2, l1), "symmetric")
	assert.False(t, rt.valuesEqual(l1, l3))

	s1 := rt.internString("hello")
	s2 := StrVal(rt.heap.Alloc(&StrObject{Text: TextFromString("hello")}))
	assert.True(t, rt.valuesEqual(s1, s2), "content equality across distinct ids")
}

func TestValuesEqualCyclic(t *testing.T) {
	rt := NewRuntime()
	a := &ListObject{}
	b := &ListObject{}
	idA := rt.heap.Alloc(a)
	idB := rt.heap.Alloc(b)
	a.Elements = []Value{ListVal(idA)}
	b.Elements = []Value{ListVal(idB)}
	// must terminate and report equal under the visited-set rule
	assert.True(t, rt.valuesEqual(ListVal(idA), ListVal(idB)))
}

func TestSaturatingArithmetic(t *testing.T) {
	assert.Equal(t, maxInt48, satAdd(maxInt48, 1))
	assert.Equal(t, minInt48, satSub(minInt48, 1))
	assert.Equal(t, maxInt48, satMul(maxInt48, 2))
	assert.Equal(t, minInt48, satMul(maxInt48, -2))
	assert.Equal(t, int64(6), satMul(2, 3))
	assert.Equal(t, int64(0), satMul(0, maxInt48))
}
