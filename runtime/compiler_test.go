package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xu/ast"
)

func mustCompile(t *testing.T, prog *ast.Program) *Program {
	t.Helper()
	p, err := NewCompiler().Compile(prog)
	require.Nil(t, err, "compile failed: %v", err)
	return p
}

func opsOf(p *Program) []Op {
	var out []Op
	for ip := 0; ip < len(p.Code); ip += opWidth(Op(p.Code[ip])) {
		out = append(out, Op(p.Code[ip]))
	}
	return out
}

func TestCompileIntLiteral(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.NumericLiteral{Value: 42},
	}})
	assert.Equal(t, []Op{OpConstInt, OpPop, OpConstUnit, OpReturn}, opsOf(prog))
	assert.Equal(t, int64(42), prog.Consts[prog.Code[1]].Int)
}

func TestCompileFloatLiteral(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.NumericLiteral{Value: 1.5},
	}})
	assert.Equal(t, OpConstFloat, Op(prog.Code[0]))
	assert.Equal(t, 1.5, prog.Consts[prog.Code[1]].Float)
}

func TestCompileConstDedup(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.StringLiteral{Value: "hi"},
		&ast.StringLiteral{Value: "hi"},
		&ast.NumericLiteral{Value: 7},
		&ast.NumericLiteral{Value: 7},
	}})
	strs, ints := 0, 0
	for _, c := range prog.Consts {
		switch c.Kind {
		case ConstKindStr:
			strs++
		case ConstKindInt:
			ints++
		}
	}
	assert.Equal(t, 1, strs, "string constants are emitted once per textual value")
	assert.Equal(t, 1, ints)
}

func TestCompileBinaryOps(t *testing.T) {
	mk := func(op string) *Program {
		return mustCompile(t, &ast.Program{Body: []ast.Stmt{
			&ast.BinaryExpr{
				Left:     &ast.NumericLiteral{Value: 1},
				Right:    &ast.NumericLiteral{Value: 2},
				Operator: op,
			},
		}})
	}
	expect := map[string]Op{
		"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
		"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
	}
	for src, want := range expect {
		ops := opsOf(mk(src))
		require.Len(t, ops, 6, "op %q", src)
		assert.Equal(t, want, ops[2], "op %q", src)
	}
}

func TestCompileICSlotsUnique(t *testing.T) {
	obj := func() ast.Expr { return &ast.Identifier{Symbol: "o"} }
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.MemberExpr{Object: obj(), Property: &ast.Identifier{Symbol: "a"}},
		&ast.MemberExpr{Object: obj(), Property: &ast.Identifier{Symbol: "b"}},
		&ast.CallExpr{Callee: &ast.MemberExpr{Object: obj(), Property: &ast.Identifier{Symbol: "m"}}},
	}})
	assert.Equal(t, 2, prog.ICFieldSlots)
	assert.Equal(t, 1, prog.ICMethodSlots)

	// slot operands embedded in the op stream are distinct
	var fieldSlots []int
	for ip := 0; ip < len(prog.Code); ip += opWidth(Op(prog.Code[ip])) {
		if Op(prog.Code[ip]) == OpGetMember {
			fieldSlots = append(fieldSlots, prog.Code[ip+2])
		}
	}
	require.Len(t, fieldSlots, 2)
	assert.NotEqual(t, fieldSlots[0], fieldSlots[1])
}

func TestCompileICSlotsSpanNestedFunctions(t *testing.T) {
	member := &ast.MemberExpr{Object: &ast.Identifier{Symbol: "o"}, Property: &ast.Identifier{Symbol: "f"}}
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.MemberExpr{Object: &ast.Identifier{Symbol: "o"}, Property: &ast.Identifier{Symbol: "g"}},
		&ast.FunctionDeclaration{
			Name:   "inner",
			Body:   &ast.BlockStatement{Statements: []ast.Stmt{&ast.ReturnStatement{Value: member}}},
			Params: nil,
		},
	}})
	assert.Equal(t, 2, prog.ICFieldSlots, "nested function literals draw from the same slot counter")
}

func TestCompileFunctionSlots(t *testing.T) {
	fnDecl := &ast.FunctionDeclaration{
		Name:   "add",
		Params: []string{"a", "b"},
		Body: &ast.BlockStatement{Statements: []ast.Stmt{
			&ast.ReturnStatement{Value: &ast.BinaryExpr{
				Left:     &ast.Identifier{Symbol: "a"},
				Right:    &ast.Identifier{Symbol: "b"},
				Operator: "+",
			}},
		}},
	}
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{fnDecl}})

	var fn *BytecodeFunction
	for _, c := range prog.Consts {
		if c.Kind == ConstKindFuncLit {
			fn = c.FuncLit
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, 2, fn.Arity)
	assert.Equal(t, []int{0, 1}, fn.ParamSlots, "left-to-right slot numbering")
	assert.Equal(t, 2, fn.LocalsMax)
	assert.False(t, fn.EnvMode)
	assert.Equal(t, []Op{OpLoadLocal, OpLoadLocal, OpAdd, OpReturn, OpConstUnit, OpReturn}, opsOf(fn.Program))
}

func TestCompileEnvModeForClosures(t *testing.T) {
	inner := &ast.FunctionDeclaration{
		Name: "",
		Body: &ast.BlockStatement{Statements: []ast.Stmt{
			&ast.ReturnStatement{Value: &ast.Identifier{Symbol: "n"}},
		}},
	}
	outer := &ast.FunctionDeclaration{
		Name: "make",
		Body: &ast.BlockStatement{Statements: []ast.Stmt{
			&ast.VarDeclaration{Identifier: "n", Value: &ast.NumericLiteral{Value: 0}},
			&ast.ReturnStatement{Value: inner},
		}},
	}
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{outer}})

	var outerFn *BytecodeFunction
	for _, c := range prog.Consts {
		if c.Kind == ConstKindFuncLit && c.FuncLit.Name == "make" {
			outerFn = c.FuncLit
		}
	}
	require.NotNil(t, outerFn)
	assert.True(t, outerFn.EnvMode, "a body creating a closure keeps locals in the environment")
	assert.Contains(t, opsOf(outerFn.Program), OpStoreName)
	assert.NotContains(t, opsOf(outerFn.Program), OpStoreLocal)
}

func TestCompileWhileJumpTargets(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.WhileStatement{
			Condition: &ast.BooleanLiteral{Value: false},
			Body:      &ast.BlockStatement{Statements: []ast.Stmt{&ast.BreakStatement{}}},
		},
	}})
	// every jump operand lands on an op boundary inside the program
	for ip := 0; ip < len(prog.Code); ip += opWidth(Op(prog.Code[ip])) {
		switch Op(prog.Code[ip]) {
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpBreak, OpContinue:
			target := prog.Code[ip+1]
			assert.GreaterOrEqual(t, target, 0)
			assert.LessOrEqual(t, target, len(prog.Code))
		}
	}
}

func TestCompileMatchLowering(t *testing.T) {
	m := &ast.MatchExpr{
		Subject: &ast.NumericLiteral{Value: 2},
		Arms: []ast.MatchArm{
			{Pattern: &ast.NumericLiteral{Value: 1}, Body: &ast.NumericLiteral{Value: 10}},
			{Pattern: &ast.BindPattern{Name: "x"}, Body: &ast.Identifier{Symbol: "x"}},
		},
	}
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{m}})
	ops := opsOf(prog)
	assert.Contains(t, ops, OpMatchPattern)
	assert.Contains(t, ops, OpMatchBindings)

	patterns := 0
	for _, c := range prog.Consts {
		if c.Kind == ConstKindPattern {
			patterns++
		}
	}
	assert.Equal(t, 2, patterns)
}

func TestCompileStructAndEnumDecls(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.StructDeclaration{Name: "Point", Fields: []string{"x", "y"}},
		&ast.EnumDeclaration{Name: "Color", Variants: []ast.EnumVariant{
			{Name: "Red"}, {Name: "Rgb", Fields: []string{"r", "g", "b"}},
		}},
	}})
	ops := opsOf(prog)
	assert.Contains(t, ops, OpDefineStruct)
	assert.Contains(t, ops, OpDefineEnum)

	for _, c := range prog.Consts {
		switch c.Kind {
		case ConstKindStructDef:
			assert.Equal(t, "Point", c.StructDef.Name)
			assert.Equal(t, fnvHashString("Point"), c.StructDef.TypeHash)
		case ConstKindEnumDef:
			require.Len(t, c.EnumDef.Variants, 2)
			assert.Equal(t, 3, c.EnumDef.Variants[1].Arity)
		}
	}
}

func TestCompileForEachTargets(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.ForEachStatement{
			Identifier: &ast.Identifier{Symbol: "x"},
			Iterable:   &ast.ArrayLiteral{Elements: []ast.Expr{&ast.NumericLiteral{Value: 1}}},
			Body:       &ast.BlockStatement{Statements: []ast.Stmt{&ast.ContinueStatement{}}},
		},
	}})
	var initEnd, nextIP, nextEnd, contTarget = -1, -1, -1, -1
	for ip := 0; ip < len(prog.Code); ip += opWidth(Op(prog.Code[ip])) {
		switch Op(prog.Code[ip]) {
		case OpForEachInit:
			initEnd = prog.Code[ip+3]
		case OpForEachNext:
			nextIP = ip
			nextEnd = prog.Code[ip+4]
		case OpContinue:
			contTarget = prog.Code[ip+1]
		}
	}
	require.NotEqual(t, -1, nextIP)
	assert.Equal(t, initEnd, nextEnd, "init and next agree on the loop end")
	assert.Equal(t, nextIP, contTarget, "continue jumps to the advance op")
}

func TestCompileTopLevelLocalsMax(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.ForEachStatement{
			Identifier: &ast.Identifier{Symbol: "i"},
			Iterable:   &ast.NumericLiteral{Value: 3},
			Body:       &ast.BlockStatement{},
		},
	}})
	assert.Equal(t, 1, prog.LocalsMax, "top-level loop variables get slots")
}

func TestCompileIndexExpr(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.IndexExpr{
			Object: &ast.ArrayLiteral{Elements: []ast.Expr{&ast.NumericLiteral{Value: 1}}},
			Index:  &ast.NumericLiteral{Value: 0},
		},
		&ast.IndexExpr{
			Object: &ast.Identifier{Symbol: "d"},
			Index:  &ast.StringLiteral{Value: "k"},
		},
	}})
	assert.Equal(t, 2, prog.ICFieldSlots, "every container access gets a fresh cache slot")

	var slots []int
	for ip := 0; ip < len(prog.Code); ip += opWidth(Op(prog.Code[ip])) {
		if Op(prog.Code[ip]) == OpGetIndex {
			slots = append(slots, prog.Code[ip+1])
		}
	}
	require.Len(t, slots, 2)
	assert.NotEqual(t, slots[0], slots[1])
}

func TestCompileIndexAssignment(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.AssignmentExpr{
			Assignee: &ast.IndexExpr{
				Object: &ast.Identifier{Symbol: "xs"},
				Index:  &ast.NumericLiteral{Value: 0},
			},
			Value: &ast.NumericLiteral{Value: 9},
		},
	}})
	ops := opsOf(prog)
	assert.Contains(t, ops, OpAssignIndex)
	assert.NotContains(t, ops, OpPop, "index assignment is a real store, not a discarded value")
}

func TestCompileInvalidAssignmentTargetFails(t *testing.T) {
	_, err := NewCompiler().Compile(&ast.Program{Body: []ast.Stmt{
		&ast.AssignmentExpr{
			Assignee: &ast.NumericLiteral{Value: 1},
			Value:    &ast.NumericLiteral{Value: 2},
		},
	}})
	require.NotNil(t, err)
	assert.Equal(t, DiagTypeMismatch, err.Kind)
}

func TestCompileMapLiteralLowering(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.MapLiteral{Properties: []*ast.Property{
			{Key: &ast.Identifier{Symbol: "a"}, Value: &ast.NumericLiteral{Value: 1}},
			{Key: &ast.Identifier{Symbol: "b"}, Value: &ast.NumericLiteral{Value: 2}},
		}},
	}})
	ops := opsOf(prog)
	assert.Equal(t, OpDictNew, ops[0])
	assert.Equal(t, 2, prog.Code[1], "literal arity is the capacity hint")
	inserts := 0
	for _, op := range ops {
		if op == OpDictInsert {
			inserts++
		}
	}
	assert.Equal(t, 2, inserts, "one DictInsert per written pair")
}

func TestCompileMapLiteralSpread(t *testing.T) {
	prog := mustCompile(t, &ast.Program{Body: []ast.Stmt{
		&ast.MapLiteral{
			Spread: &ast.Identifier{Symbol: "base"},
			Properties: []*ast.Property{
				{Key: &ast.Identifier{Symbol: "k"}, Value: &ast.NumericLiteral{Value: 1}},
			},
		},
	}})
	ops := opsOf(prog)
	assert.Contains(t, ops, OpDictMerge)
	merged, inserted := -1, -1
	for i, op := range ops {
		switch op {
		case OpDictMerge:
			merged = i
		case OpDictInsert:
			inserted = i
		}
	}
	assert.Less(t, merged, inserted, "the spread base merges before listed keys so they win")
}
