package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xu/ast"
	"xu/runtime"
)

// runAST compiles a hand-built AST — the richer node set the frontend
// grammar does not surface yet — and returns the print output.
func runAST(t *testing.T, body ...ast.Stmt) string {
	t.Helper()
	rt := runtime.NewRuntime()
	prog, cerr := runtime.NewCompiler().Compile(&ast.Program{Body: body})
	require.Nil(t, cerr, "compile failed: %v", cerr)
	_, err := rt.RunProgram(prog)
	require.Nil(t, err, "program failed: %v", err)
	return rt.TakeOutput()
}

func printlnOf(e ast.Expr) ast.Stmt {
	return &ast.CallExpr{Callee: &ast.Identifier{Symbol: "println"}, Args: []ast.Expr{e}}
}

func num(v float64) ast.Expr  { return &ast.NumericLiteral{Value: v} }
func str(s string) ast.Expr   { return &ast.StringLiteral{Value: s} }
func id(name string) ast.Expr { return &ast.Identifier{Symbol: name} }

func TestASTStructDeclareInitAccess(t *testing.T) {
	out := runAST(t,
		&ast.StructDeclaration{Name: "Point", Fields: []string{"x", "y"}},
		&ast.VarDeclaration{Identifier: "p", Value: &ast.StructInitExpr{
			TypeName: "Point",
			Fields: []*ast.Property{
				{Key: id("x"), Value: num(1)},
				{Key: id("y"), Value: num(2)},
			},
		}},
		printlnOf(&ast.MemberExpr{Object: id("p"), Property: &ast.Identifier{Symbol: "x"}}),
		&ast.AssignmentExpr{
			Assignee: &ast.MemberExpr{Object: id("p"), Property: &ast.Identifier{Symbol: "y"}},
			Value:    num(5),
		},
		printlnOf(id("p")),
	)
	assert.Equal(t, "1\nPoint { x: 1, y: 5 }\n", out)
}

func TestASTStructInitSpread(t *testing.T) {
	out := runAST(t,
		&ast.StructDeclaration{Name: "Cfg", Fields: []string{"host", "port"}},
		&ast.VarDeclaration{Identifier: "base", Value: &ast.StructInitExpr{
			TypeName: "Cfg",
			Fields: []*ast.Property{
				{Key: id("host"), Value: str("localhost")},
				{Key: id("port"), Value: num(80)},
			},
		}},
		&ast.VarDeclaration{Identifier: "tls", Value: &ast.StructInitExpr{
			TypeName: "Cfg",
			Fields:   []*ast.Property{{Key: id("port"), Value: num(443)}},
			Spread:   id("base"),
		}},
		printlnOf(id("tls")),
	)
	assert.Equal(t, "Cfg { host: \"localhost\", port: 443 }\n", out)
}

func TestASTEnumDeclareAndConstruct(t *testing.T) {
	out := runAST(t,
		&ast.EnumDeclaration{Name: "Shape", Variants: []ast.EnumVariant{
			{Name: "Circle", Fields: []string{"r"}},
			{Name: "Unit"},
		}},
		&ast.VarDeclaration{Identifier: "c", Value: &ast.EnumCtorExpr{
			TypeName: "Shape", Variant: "Circle", Args: []ast.Expr{num(3)},
		}},
		printlnOf(id("c")),
		printlnOf(&ast.CallExpr{
			Callee: &ast.MemberExpr{Object: id("c"), Property: &ast.Identifier{Symbol: "name"}},
		}),
	)
	assert.Equal(t, "Shape.Circle(3)\nCircle\n", out)
}

func TestASTTupleLiteral(t *testing.T) {
	out := runAST(t,
		&ast.VarDeclaration{Identifier: "t", Value: &ast.TupleLiteral{
			Elements: []ast.Expr{num(1), str("two"), &ast.BooleanLiteral{Value: true}},
		}},
		printlnOf(id("t")),
	)
	assert.Equal(t, "(1, \"two\", true)\n", out)
}

func TestASTRangeForEach(t *testing.T) {
	out := runAST(t,
		&ast.ForEachStatement{
			Identifier: &ast.Identifier{Symbol: "i"},
			Iterable:   &ast.RangeLiteral{Start: num(1), End: num(3), Inclusive: true},
			Body:       &ast.BlockStatement{Statements: []ast.Stmt{printlnOf(id("i"))}},
		},
	)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestASTRangeExclusive(t *testing.T) {
	out := runAST(t,
		&ast.ForEachStatement{
			Identifier: &ast.Identifier{Symbol: "i"},
			Iterable:   &ast.RangeLiteral{Start: num(0), End: num(3), Inclusive: false},
			Body:       &ast.BlockStatement{Statements: []ast.Stmt{printlnOf(id("i"))}},
		},
	)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestASTForEachOverDictKeys(t *testing.T) {
	out := runAST(t,
		&ast.VarDeclaration{Identifier: "d", Value: &ast.MapLiteral{Properties: []*ast.Property{
			{Key: id("a"), Value: num(1)},
			{Key: id("b"), Value: num(2)},
		}}},
		&ast.ForEachStatement{
			Identifier: &ast.Identifier{Symbol: "k"},
			Iterable:   id("d"),
			Body:       &ast.BlockStatement{Statements: []ast.Stmt{printlnOf(id("k"))}},
		},
	)
	assert.Equal(t, "a\nb\n", out, "map insertion order")
}

func TestASTMatchLiteralArm(t *testing.T) {
	m := &ast.MatchExpr{
		Subject: num(2),
		Arms: []ast.MatchArm{
			{Pattern: num(1), Body: str("one")},
			{Pattern: num(2), Body: str("two")},
			{Pattern: &ast.WildcardPattern{}, Body: str("many")},
		},
	}
	out := runAST(t, &ast.VarDeclaration{Identifier: "r", Value: m}, printlnOf(id("r")))
	assert.Equal(t, "two\n", out)
}

func TestASTMatchWildcardFallback(t *testing.T) {
	m := &ast.MatchExpr{
		Subject: num(9),
		Arms: []ast.MatchArm{
			{Pattern: num(1), Body: str("one")},
			{Pattern: &ast.WildcardPattern{}, Body: str("many")},
		},
	}
	out := runAST(t, &ast.VarDeclaration{Identifier: "r", Value: m}, printlnOf(id("r")))
	assert.Equal(t, "many\n", out)
}

func TestASTMatchBindPattern(t *testing.T) {
	m := &ast.MatchExpr{
		Subject: num(21),
		Arms: []ast.MatchArm{
			{Pattern: &ast.BindPattern{Name: "x"}, Body: &ast.BinaryExpr{
				Left: id("x"), Right: num(2), Operator: "*",
			}},
		},
	}
	out := runAST(t, &ast.VarDeclaration{Identifier: "r", Value: m}, printlnOf(id("r")))
	assert.Equal(t, "42\n", out)
}

func TestASTMatchEnumVariantDestructure(t *testing.T) {
	body := []ast.Stmt{
		&ast.EnumDeclaration{Name: "Shape", Variants: []ast.EnumVariant{
			{Name: "Circle", Fields: []string{"r"}},
			{Name: "Rect", Fields: []string{"w", "h"}},
		}},
		&ast.VarDeclaration{Identifier: "s", Value: &ast.EnumCtorExpr{
			TypeName: "Shape", Variant: "Rect", Args: []ast.Expr{num(3), num(4)},
		}},
		&ast.VarDeclaration{Identifier: "area", Value: &ast.MatchExpr{
			Subject: id("s"),
			Arms: []ast.MatchArm{
				{
					Pattern: &ast.EnumVariantPattern{TypeName: "Shape", Variant: "Circle",
						Fields: []ast.Expr{&ast.BindPattern{Name: "r"}}},
					Body: id("r"),
				},
				{
					Pattern: &ast.EnumVariantPattern{TypeName: "Shape", Variant: "Rect",
						Fields: []ast.Expr{&ast.BindPattern{Name: "w"}, &ast.BindPattern{Name: "h"}}},
					Body: &ast.BinaryExpr{Left: id("w"), Right: id("h"), Operator: "*"},
				},
			},
		}},
		printlnOf(id("area")),
	}
	assert.Equal(t, "12\n", runAST(t, body...))
}

func TestASTMatchStructPattern(t *testing.T) {
	body := []ast.Stmt{
		&ast.StructDeclaration{Name: "P", Fields: []string{"x", "y"}},
		&ast.VarDeclaration{Identifier: "p", Value: &ast.StructInitExpr{
			TypeName: "P",
			Fields: []*ast.Property{
				{Key: id("x"), Value: num(7)},
				{Key: id("y"), Value: num(8)},
			},
		}},
		&ast.VarDeclaration{Identifier: "r", Value: &ast.MatchExpr{
			Subject: id("p"),
			Arms: []ast.MatchArm{
				{
					Pattern: &ast.StructPattern{TypeName: "P", Fields: []*ast.Property{
						{Key: id("x"), Value: &ast.BindPattern{Name: "a"}},
					}},
					Body: id("a"),
				},
			},
		}},
		printlnOf(id("r")),
	}
	assert.Equal(t, "7\n", runAST(t, body...))
}

func TestASTMatchNoArmYieldsUnit(t *testing.T) {
	m := &ast.MatchExpr{
		Subject: num(5),
		Arms: []ast.MatchArm{
			{Pattern: num(1), Body: str("one")},
		},
	}
	out := runAST(t, &ast.VarDeclaration{Identifier: "r", Value: m}, printlnOf(id("r")))
	assert.Equal(t, "()\n", out)
}

func TestASTKeyValueForEach(t *testing.T) {
	// the desugared loop variable prefix requests key/value tuples
	out := runAST(t,
		&ast.VarDeclaration{Identifier: "d", Value: &ast.MapLiteral{Properties: []*ast.Property{
			{Key: id("a"), Value: num(1)},
		}}},
		&ast.ForEachStatement{
			Identifier: &ast.Identifier{Symbol: "__kv_e"},
			Iterable:   id("d"),
			Body:       &ast.BlockStatement{Statements: []ast.Stmt{printlnOf(id("__kv_e"))}},
		},
	)
	assert.Equal(t, "(\"a\", 1)\n", out)
}

func TestASTMapLiteralSpread(t *testing.T) {
	out := runAST(t,
		&ast.VarDeclaration{Identifier: "base", Value: &ast.MapLiteral{Properties: []*ast.Property{
			{Key: id("host"), Value: str("localhost")},
			{Key: id("port"), Value: num(80)},
		}}},
		&ast.VarDeclaration{Identifier: "tls", Value: &ast.MapLiteral{
			Spread: id("base"),
			Properties: []*ast.Property{
				{Key: id("port"), Value: num(443)},
			},
		}},
		printlnOf(&ast.IndexExpr{Object: id("tls"), Index: str("host")}),
		printlnOf(&ast.IndexExpr{Object: id("tls"), Index: str("port")}),
		printlnOf(&ast.CallExpr{
			Callee: &ast.MemberExpr{Object: id("base"), Property: &ast.Identifier{Symbol: "get"}},
			Args:   []ast.Expr{str("port")},
		}),
	)
	// listed keys override the spread base; the base is untouched
	assert.Equal(t, "localhost\n443\nSome(80)\n", out)
}

func TestASTIndexExprKinds(t *testing.T) {
	out := runAST(t,
		&ast.VarDeclaration{Identifier: "t", Value: &ast.TupleLiteral{
			Elements: []ast.Expr{num(7), str("x")},
		}},
		printlnOf(&ast.IndexExpr{Object: id("t"), Index: num(0)}),
	)
	assert.Equal(t, "7\n", out)
}
