package runtime

// A shape is an immutable record layout: a name->offset map for the
// string members of a record-style Dict. Shapes form a transition tree
// — adding a field to a record with shape S allocates (once) a child
// shape S' and caches the edge on S, so later transitions from S along
// the same field reuse S'. Each dict that enters record form gets its
// own root shape (EmptyShape allocates a new one per call), so two
// dicts built separately end up on distinct shape objects even when
// they add the same fields in the same order.
//
// ShapeObject itself (the heap-resident storage) lives in heap.go
// alongside the other object variants; this file holds the transition
// logic that makes it behave like a shape rather than a plain struct.

// EmptyShape allocates a new root shape (no fields, no parent).
// DictAdoptShape calls it once per dict, when that dict first
// transitions into record form.
func (rt *Runtime) EmptyShape() ObjectId {
	return rt.heap.Alloc(&ShapeObject{
		PropMap:     make(map[string]int),
		Transitions: make(map[string]ObjectId),
	})
}

// ShapeChild returns the shape reached by adding name to shape's
// property list, allocating and caching a new ShapeObject on first
// transition and reusing it on every later transition from the same
// shape along the same name.
func (rt *Runtime) ShapeChild(shapeID ObjectId, name string) ObjectId {
	shape := rt.heap.Get(shapeID).(*ShapeObject)
	if existing, ok := shape.Transitions[name]; ok {
		return existing
	}
	if _, already := shape.PropMap[name]; already {
		return shapeID
	}
	child := &ShapeObject{
		Parent:    shapeID,
		HasParent: true,
		PropMap:   make(map[string]int, len(shape.PropMap)+1),
		PropOrder: append(append([]string(nil), shape.PropOrder...), name),
		Transitions: make(map[string]ObjectId),
	}
	for k, v := range shape.PropMap {
		child.PropMap[k] = v
	}
	child.PropMap[name] = len(shape.PropMap)
	childID := rt.heap.Alloc(child)
	shape.Transitions[name] = childID
	return childID
}

// ShapeOffset reports the dense prop_values offset name occupies in
// shapeID, if it is part of that shape's layout.
func (rt *Runtime) ShapeOffset(shapeID ObjectId, name string) (int, bool) {
	shape := rt.heap.Get(shapeID).(*ShapeObject)
	off, ok := shape.PropMap[name]
	return off, ok
}

// ShapeFieldNames returns the shape's fields in declaration order.
func (rt *Runtime) ShapeFieldNames(shapeID ObjectId) []string {
	shape := rt.heap.Get(shapeID).(*ShapeObject)
	return shape.PropOrder
}

// DictAdoptShape transitions d onto the shape reached by inserting
// name, growing propValues by one slot and storing val there, turning
// later reads of the field into a single indexed load. Called only
// when d has no conflicting general-map entry for name; the caller
// (AssignMember's record-building path) is responsible for that
// precondition.
func (rt *Runtime) DictAdoptShape(d *DictObject, name string, val Value) {
	if !d.hasShape {
		d.shape = rt.EmptyShape()
		d.hasShape = true
	}
	if off, ok := rt.ShapeOffset(d.shape, name); ok {
		d.propValues[off] = val
		return
	}
	next := rt.ShapeChild(d.shape, name)
	d.shape = next
	d.propValues = append(d.propValues, val)
	d.ver++
}

// DictShapeGet reads a shape-backed property by name, the path an
// inline-cache hit on a record-style dict skips straight to via a
// cached offset instead of calling this at all.
func (rt *Runtime) DictShapeGet(d *DictObject, name string) (Value, bool) {
	if !d.hasShape {
		return Unit, false
	}
	off, ok := rt.ShapeOffset(d.shape, name)
	if !ok || off >= len(d.propValues) {
		return Unit, false
	}
	return d.propValues[off], true
}
