package runtime

import (
	"fmt"

	"xu/ast"
)

// functionScope tracks one function body's local-slot assignments
// during compilation. Locals are numbered left to right as they're
// first seen — no SSA, just stable ordering.
type functionScope struct {
	locals     map[string]int
	localsMax  int
	isTopLevel bool

	// envMode forces every local through the Environment instead of
	// LocalSlots: set when the body contains a nested function literal
	// that may capture locals. Slot addressing cannot survive the
	// enclosing call returning; the freeze mechanism can.
	envMode bool
}

type loopCtx struct {
	continueTarget  int
	breakPatches    []int
	continuePatches []int
	isForEach       bool
}

// compileUnit is shared by every function compiled out of one entry
// module: the inline-cache slot counters must be unique across the
// whole program because the VM's IC arrays are sized once, at the top
// level, and every nested function literal indexes into the same
// arrays.
type compileUnit struct {
	fieldICSlots  int
	methodICSlots int
}

// Compiler lowers an AST into a Program, one per function. Function
// literals compile through childCompiler so they share the unit-wide
// inline-cache slot counters.
type Compiler struct {
	prog   *Program
	scopes []*functionScope
	loops  []*loopCtx
	unit   *compileUnit

	// first error encountered while lowering; compilation keeps going
	// so later diagnostics still resolve names, but Compile reports it
	err *Error
}

func NewCompiler() *Compiler {
	c := &Compiler{prog: NewProgram(), unit: &compileUnit{}}
	c.pushScope(true)
	return c
}

func (c *Compiler) childCompiler() *Compiler {
	return &Compiler{prog: NewProgram(), unit: c.unit}
}

func (c *Compiler) pushScope(isTop bool) {
	c.scopes = append(c.scopes, &functionScope{locals: map[string]int{}, isTopLevel: isTop})
}

func (c *Compiler) popScope() { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *Compiler) scope() *functionScope { return c.scopes[len(c.scopes)-1] }

func (c *Compiler) nextFieldICSlot() int {
	s := c.unit.fieldICSlots
	c.unit.fieldICSlots++
	return s
}

func (c *Compiler) nextMethodICSlot() int {
	s := c.unit.methodICSlots
	c.unit.methodICSlots++
	return s
}

func (c *Compiler) fail(kind DiagnosticKind, format string, args ...interface{}) {
	if c.err == nil {
		c.err = NewError(kind, fmt.Sprintf(format, args...))
	}
}

// Compile lowers a whole module into its entry Program. The returned
// Program's ICFieldSlots/ICMethodSlots counts are final only once
// compilation of every nested function literal has finished, which
// Compile guarantees by doing all of it before returning.
func (c *Compiler) Compile(prog *ast.Program) (*Program, *Error) {
	for _, stmt := range prog.Body {
		c.compileStmt(stmt)
	}
	c.prog.emit(OpConstUnit)
	c.prog.emit(OpReturn)
	c.prog.ICFieldSlots = c.unit.fieldICSlots
	c.prog.ICMethodSlots = c.unit.methodICSlots
	c.prog.LocalsMax = c.scope().localsMax
	if c.err != nil {
		return nil, c.err
	}
	return c.prog, nil
}

func (c *Compiler) compileBlock(b *ast.BlockStatement) {
	for _, stmt := range b.Statements {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.VarDeclaration:
		c.compileExpr(n.Value)
		c.storeIdent(n.Identifier)

	case *ast.BlockStatement:
		c.compileBlock(n)

	case *ast.AssignmentExpr:
		c.compileAssignment(n, CompoundNone)

	case *ast.IfStatement:
		c.compileExpr(n.Condition)
		jfalse := c.prog.emit(OpJumpIfFalse, -1)
		c.compileBlock(n.Consequence)
		jend := c.prog.emit(OpJump, -1)
		c.prog.patch(jfalse+1, len(c.prog.Code))
		if n.Alternative != nil {
			c.compileBlock(n.Alternative)
		}
		c.prog.patch(jend+1, len(c.prog.Code))

	case *ast.WhileStatement:
		start := len(c.prog.Code)
		lc := &loopCtx{continueTarget: start}
		c.loops = append(c.loops, lc)
		c.compileExpr(n.Condition)
		jfalse := c.prog.emit(OpJumpIfFalse, -1)
		c.compileBlock(n.Body)
		c.prog.emit(OpJump, start)
		end := len(c.prog.Code)
		c.prog.patch(jfalse+1, end)
		for _, p := range lc.breakPatches {
			c.prog.patch(p, end)
		}
		c.loops = c.loops[:len(c.loops)-1]

	case *ast.ForStatement:
		// `for range (i, n)` iterates i over 0..n (or over any iterable n
		// evaluates to); lowered onto the same foreach ops.
		c.compileForEach(n.Identifier.Symbol, n.Range, n.Body)

	case *ast.ForEachStatement:
		c.compileForEach(n.Identifier.Symbol, n.Iterable, n.Body)

	case *ast.BreakStatement:
		if len(c.loops) == 0 {
			return
		}
		lc := c.loops[len(c.loops)-1]
		if lc.isForEach {
			c.prog.emit(OpIterPop)
		}
		ip := c.prog.emit(OpBreak, -1)
		lc.breakPatches = append(lc.breakPatches, ip+1)

	case *ast.ContinueStatement:
		if len(c.loops) == 0 {
			return
		}
		lc := c.loops[len(c.loops)-1]
		if lc.isForEach {
			// target is the ForEachNext op, not known yet.
			ip := c.prog.emit(OpContinue, -1)
			lc.continuePatches = append(lc.continuePatches, ip+1)
			return
		}
		c.prog.emit(OpContinue, lc.continueTarget)

	case *ast.FunctionDeclaration:
		fn := c.compileFunction(n.Name, n.Params, n.Body)
		idx := c.prog.addFuncLitConst(fn)
		c.prog.emit(OpMakeFunction, idx)
		c.storeIdent(n.Name)

	case *ast.ReturnStatement:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.prog.emit(OpConstUnit)
		}
		c.prog.emit(OpReturn)

	case *ast.ImportStatement:
		aliasIdx := c.prog.addStrConst(n.Alias)
		pathIdx := c.prog.addStrConst(n.Path)
		c.prog.emit(OpUse, pathIdx, aliasIdx)

	case *ast.StructDeclaration:
		def := &StructDef{Name: n.Name, TypeHash: fnvHashString(n.Name), Fields: n.Fields}
		idx := c.prog.addStructDefConst(def)
		c.prog.emit(OpDefineStruct, idx)

	case *ast.EnumDeclaration:
		def := &EnumDef{Name: n.Name, TypeHash: fnvHashString(n.Name)}
		for _, v := range n.Variants {
			def.Variants = append(def.Variants, EnumVariantDef{Name: v.Name, Arity: len(v.Fields)})
		}
		idx := c.prog.addEnumDefConst(def)
		c.prog.emit(OpDefineEnum, idx)

	case *ast.TryStatement:
		// The VM's handler lookup is by ip range: an error raised
		// inside [Start, End) jumps to End with the error value on the
		// stack, where the catch prologue stores it into the error var.
		tryStart := len(c.prog.Code)
		c.compileBlock(n.TryBlock)
		jend := c.prog.emit(OpJump, -1)
		catchStart := len(c.prog.Code)
		c.prog.TryRanges = append(c.prog.TryRanges, TryRange{Start: tryStart, End: catchStart, ErrVar: n.ErrorVar})
		if c.scope().envMode {
			c.prog.emit(OpStoreName, c.prog.addStrConst(n.ErrorVar))
		} else {
			c.prog.emit(OpStoreLocal, c.ensureLocal(n.ErrorVar))
		}
		c.compileBlock(n.CatchBlock)
		c.prog.patch(jend+1, len(c.prog.Code))

	default:
		expr, ok := s.(ast.Expr)
		if !ok {
			return
		}
		c.compileExpr(expr)
		c.prog.emit(OpPop)
	}
}

// compileForEach lowers one foreach loop. The loop variable binds by
// slot in slot-mode functions and by name otherwise; both operands are
// always emitted so the VM can pick whichever is live (slot -1 means
// name-only).
func (c *Compiler) compileForEach(varName string, iterable ast.Expr, body *ast.BlockStatement) {
	slot := -1
	if !c.scope().envMode {
		slot = c.ensureLocal(varName)
	}
	nameIdx := c.prog.addStrConst(varName)
	c.compileExpr(iterable)
	initIP := c.prog.emit(OpForEachInit, nameIdx, slot, -1)
	loopStart := len(c.prog.Code)
	lc := &loopCtx{continueTarget: loopStart, isForEach: true}
	c.loops = append(c.loops, lc)
	c.compileBlock(body)
	nextIP := c.prog.emit(OpForEachNext, nameIdx, slot, loopStart, -1)
	end := len(c.prog.Code)
	c.prog.patch(initIP+3, end)
	c.prog.patch(nextIP+4, end)
	for _, p := range lc.breakPatches {
		c.prog.patch(p, end)
	}
	for _, p := range lc.continuePatches {
		c.prog.patch(p, nextIP)
	}
	c.loops = c.loops[:len(c.loops)-1]
}

func (c *Compiler) storeIdent(name string) {
	if !c.scope().isTopLevel && !c.scope().envMode {
		slot := c.ensureLocal(name)
		c.prog.emit(OpStoreLocal, slot)
		return
	}
	if slot, ok := c.scope().locals[name]; ok {
		c.prog.emit(OpStoreLocal, slot)
		return
	}
	nameIdx := c.prog.addStrConst(name)
	c.prog.emit(OpStoreName, nameIdx)
}

func (c *Compiler) compileAssignment(n *ast.AssignmentExpr, op CompoundOp) {
	switch target := n.Assignee.(type) {
	case *ast.Identifier:
		if slot, ok := c.scope().locals[target.Symbol]; ok {
			if op == CompoundAdd {
				c.compileExpr(n.Value)
				c.prog.emit(OpAddAssignLocal, slot)
				return
			}
			c.compileExpr(n.Value)
			c.prog.emit(OpStoreLocal, slot)
			return
		}
		nameIdx := c.prog.addStrConst(target.Symbol)
		if op == CompoundAdd {
			c.compileExpr(n.Value)
			c.prog.emit(OpAddAssignName, nameIdx)
			return
		}
		c.compileExpr(n.Value)
		c.prog.emit(OpStoreName, nameIdx)

	case *ast.MemberExpr:
		c.compileExpr(target.Object)
		c.compileExpr(n.Value)
		keyIdx := c.prog.addStrConst(target.Property.Symbol)
		c.prog.emit(OpAssignMember, keyIdx, int(op))

	case *ast.IndexExpr:
		c.compileExpr(target.Object)
		c.compileExpr(target.Index)
		c.compileExpr(n.Value)
		c.prog.emit(OpAssignIndex, int(op))

	default:
		c.fail(DiagTypeMismatch, "invalid assignment target %T", n.Assignee)
	}
}

func (c *Compiler) compileFunction(name string, params []string, body *ast.BlockStatement) *BytecodeFunction {
	inner := c.childCompiler()
	inner.pushScope(false)
	envMode := blockHasFunctionLiteral(body)
	inner.scope().envMode = envMode
	var paramSlots []int
	if !envMode {
		paramSlots = make([]int, len(params))
		for i, p := range params {
			paramSlots[i] = inner.ensureLocal(p)
		}
	}
	inner.compileBlock(body)
	inner.prog.emit(OpConstUnit)
	inner.prog.emit(OpReturn)
	localsMax := inner.scope().localsMax
	inner.popScope()
	if inner.err != nil && c.err == nil {
		c.err = inner.err
	}

	return &BytecodeFunction{
		Name:       name,
		Arity:      len(params),
		Params:     params,
		ParamSlots: paramSlots,
		Program:    inner.prog,
		LocalsMax:  localsMax,
		EnvMode:    envMode,
	}
}

// blockHasFunctionLiteral reports whether a function body creates any
// nested function. Such bodies keep their locals in the Environment so
// a closure's freeze can capture them; slot-addressed locals would die
// with the call frame.
func blockHasFunctionLiteral(b *ast.BlockStatement) bool {
	for _, s := range b.Statements {
		if stmtHasFunctionLiteral(s) {
			return true
		}
	}
	return false
}

func stmtHasFunctionLiteral(s ast.Stmt) bool {
	switch n := s.(type) {
	case *ast.FunctionDeclaration:
		return true
	case *ast.VarDeclaration:
		return exprHasFunctionLiteral(n.Value)
	case *ast.ReturnStatement:
		return n.Value != nil && exprHasFunctionLiteral(n.Value)
	case *ast.IfStatement:
		if exprHasFunctionLiteral(n.Condition) || blockHasFunctionLiteral(n.Consequence) {
			return true
		}
		return n.Alternative != nil && blockHasFunctionLiteral(n.Alternative)
	case *ast.WhileStatement:
		return exprHasFunctionLiteral(n.Condition) || blockHasFunctionLiteral(n.Body)
	case *ast.ForStatement:
		return exprHasFunctionLiteral(n.Range) || blockHasFunctionLiteral(n.Body)
	case *ast.ForEachStatement:
		return exprHasFunctionLiteral(n.Iterable) || blockHasFunctionLiteral(n.Body)
	case *ast.TryStatement:
		return blockHasFunctionLiteral(n.TryBlock) || blockHasFunctionLiteral(n.CatchBlock)
	case *ast.BlockStatement:
		return blockHasFunctionLiteral(n)
	default:
		if e, ok := s.(ast.Expr); ok {
			return exprHasFunctionLiteral(e)
		}
	}
	return false
}

func exprHasFunctionLiteral(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.FunctionDeclaration:
		return true
	case *ast.BinaryExpr:
		return exprHasFunctionLiteral(n.Left) || exprHasFunctionLiteral(n.Right)
	case *ast.UnaryExpr:
		return exprHasFunctionLiteral(n.Operand)
	case *ast.AssignmentExpr:
		return exprHasFunctionLiteral(n.Assignee) || exprHasFunctionLiteral(n.Value)
	case *ast.CallExpr:
		if exprHasFunctionLiteral(n.Callee) {
			return true
		}
		for _, a := range n.Args {
			if exprHasFunctionLiteral(a) {
				return true
			}
		}
	case *ast.MemberExpr:
		return exprHasFunctionLiteral(n.Object)
	case *ast.IndexExpr:
		return exprHasFunctionLiteral(n.Object) || exprHasFunctionLiteral(n.Index)
	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			if exprHasFunctionLiteral(el) {
				return true
			}
		}
	case *ast.TupleLiteral:
		for _, el := range n.Elements {
			if exprHasFunctionLiteral(el) {
				return true
			}
		}
	case *ast.MapLiteral:
		if n.Spread != nil && exprHasFunctionLiteral(n.Spread) {
			return true
		}
		for _, prop := range n.Properties {
			if exprHasFunctionLiteral(prop.Key) || exprHasFunctionLiteral(prop.Value) {
				return true
			}
		}
	case *ast.MatchExpr:
		if exprHasFunctionLiteral(n.Subject) {
			return true
		}
		for _, arm := range n.Arms {
			if exprHasFunctionLiteral(arm.Body) {
				return true
			}
		}
	}
	return false
}

func (c *Compiler) compileExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.NumericLiteral:
		if n.Value == float64(int64(n.Value)) {
			idx := c.prog.addIntConst(int64(n.Value))
			c.prog.emit(OpConstInt, idx)
		} else {
			idx := c.prog.addFloatConst(n.Value)
			c.prog.emit(OpConstFloat, idx)
		}
	case *ast.StringLiteral:
		idx := c.prog.addStrConst(n.Value)
		c.prog.emit(OpConst, idx)
	case *ast.BooleanLiteral:
		v := 0
		if n.Value {
			v = 1
		}
		c.prog.emit(OpConstBool, v)
	case *ast.Identifier:
		if slot, ok := c.scope().locals[n.Symbol]; ok {
			c.prog.emit(OpLoadLocal, slot)
		} else {
			nameIdx := c.prog.addStrConst(n.Symbol)
			c.prog.emit(OpLoadName, nameIdx)
		}
	case *ast.UnaryExpr:
		c.compileUnary(n)
	case *ast.BinaryExpr:
		c.compileExpr(n.Left)
		c.compileExpr(n.Right)
		switch n.Operator {
		case "+":
			c.prog.emit(OpAdd)
		case "-":
			c.prog.emit(OpSub)
		case "*":
			c.prog.emit(OpMul)
		case "/":
			c.prog.emit(OpDiv)
		case "%":
			c.prog.emit(OpMod)
		case "&&", "and":
			c.prog.emit(OpAnd)
		case "||", "or":
			c.prog.emit(OpOr)
		case "==":
			c.prog.emit(OpEq)
		case "!=":
			c.prog.emit(OpNe)
		case "<":
			c.prog.emit(OpLt)
		case "<=":
			c.prog.emit(OpLe)
		case ">":
			c.prog.emit(OpGt)
		case ">=":
			c.prog.emit(OpGe)
		}
	case *ast.AssignmentExpr:
		c.compileAssignment(n, CompoundNone)
	case *ast.CallExpr:
		c.compileCall(n)
	case *ast.MemberExpr:
		c.compileExpr(n.Object)
		keyIdx := c.prog.addStrConst(n.Property.Symbol)
		icSlot := c.nextFieldICSlot()
		c.prog.emit(OpGetMember, keyIdx, icSlot)
	case *ast.IndexExpr:
		c.compileExpr(n.Object)
		c.compileExpr(n.Index)
		c.prog.emit(OpGetIndex, c.nextFieldICSlot())
	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			c.compileExpr(el)
		}
		c.prog.emit(OpListNew, len(n.Elements))
	case *ast.TupleLiteral:
		for _, el := range n.Elements {
			c.compileExpr(el)
		}
		c.prog.emit(OpTupleNew, len(n.Elements))
	case *ast.RangeLiteral:
		c.compileExpr(n.Start)
		c.compileExpr(n.End)
		inc := 0
		if n.Inclusive {
			inc = 1
		}
		c.prog.emit(OpMakeRange, inc)
	case *ast.MapLiteral:
		// an empty dict sized by the literal's arity, populated one
		// DictInsert at a time (the dict stays on the stack throughout);
		// a spread base is merged in before the listed keys so they win
		c.prog.emit(OpDictNew, len(n.Properties))
		if n.Spread != nil {
			c.compileExpr(n.Spread)
			c.prog.emit(OpDictMerge)
		}
		for _, prop := range n.Properties {
			// a bare identifier key is the key's name, not a lookup
			if ident, ok := prop.Key.(*ast.Identifier); ok {
				c.prog.emit(OpConst, c.prog.addStrConst(ident.Symbol))
			} else {
				c.compileExpr(prop.Key)
			}
			c.compileExpr(prop.Value)
			c.prog.emit(OpDictInsert)
		}
	case *ast.StructInitExpr:
		for _, f := range n.Fields {
			c.compileExpr(f.Value)
		}
		var names []string
		for _, f := range n.Fields {
			if ident, ok := f.Key.(*ast.Identifier); ok {
				names = append(names, ident.Symbol)
			}
		}
		typeIdx := c.prog.addStrConst(n.TypeName)
		namesIdx := c.prog.addNameListConst(names)
		if n.Spread != nil {
			c.compileExpr(n.Spread)
			c.prog.emit(OpStructInitSpread, typeIdx, namesIdx)
		} else {
			c.prog.emit(OpStructInit, typeIdx, namesIdx)
		}
	case *ast.EnumCtorExpr:
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		typeIdx := c.prog.addStrConst(n.TypeName)
		variantIdx := c.prog.addStrConst(n.Variant)
		if len(n.Args) == 0 {
			c.prog.emit(OpEnumCtor, typeIdx, variantIdx)
		} else {
			c.prog.emit(OpEnumCtorN, typeIdx, variantIdx, len(n.Args))
		}
	case *ast.MatchExpr:
		c.compileMatch(n)
	case *ast.FunctionDeclaration:
		// anonymous function literal in expression position
		fn := c.compileFunction(n.Name, n.Params, n.Body)
		idx := c.prog.addFuncLitConst(fn)
		c.prog.emit(OpMakeFunction, idx)
	default:
		c.prog.emit(OpConstUnit)
	}
}

func (c *Compiler) compileUnary(n *ast.UnaryExpr) {
	switch n.Operator {
	case "!", "not":
		c.compileExpr(n.Operand)
		c.prog.emit(OpNot)
	case "++", "--":
		ident, ok := n.Operand.(*ast.Identifier)
		if !ok {
			c.compileExpr(n.Operand)
			return
		}
		delta := int64(1)
		if n.Operator == "--" {
			delta = -1
		}
		if slot, ok := c.scope().locals[ident.Symbol]; ok {
			c.prog.emit(OpIncLocal, slot, int(delta))
			c.prog.emit(OpLoadLocal, slot)
			return
		}
		nameIdx := c.prog.addStrConst(ident.Symbol)
		idx := c.prog.addIntConst(delta)
		c.prog.emit(OpLoadName, nameIdx)
		c.prog.emit(OpConstInt, idx)
		c.prog.emit(OpAdd)
		c.prog.emit(OpStoreName, nameIdx)
		c.prog.emit(OpLoadName, nameIdx)
	default:
		c.compileExpr(n.Operand)
	}
}

func (c *Compiler) compileCall(n *ast.CallExpr) {
	if member, ok := n.Callee.(*ast.MemberExpr); ok {
		c.compileExpr(member.Object)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		nameIdx := c.prog.addStrConst(member.Property.Symbol)
		methodHash := fnvHashString(member.Property.Symbol)
		hashIdx := c.prog.addIntConst(int64(methodHash))
		icSlot := c.nextMethodICSlot()
		c.prog.emit(OpCallMethod, nameIdx, hashIdx, len(n.Args), icSlot)
		return
	}
	c.compileExpr(n.Callee)
	for _, a := range n.Args {
		c.compileExpr(a)
	}
	c.prog.emit(OpCall, len(n.Args))
}

func (c *Compiler) compileMatch(n *ast.MatchExpr) {
	// Stack discipline per arm: MatchPattern peeks the subject and
	// pushes a bool; a miss leaves [subject] for the next arm; a hit
	// runs MatchBindings, which consumes the subject and pushes the
	// bindings in reverse declared order so the StoreLocal sequence
	// below pops them first-declared-first.
	c.compileExpr(n.Subject)
	var endJumps []int
	for _, arm := range n.Arms {
		pat := c.lowerPattern(arm.Pattern)
		patIdx := c.prog.addPatternConst(pat)
		c.prog.emit(OpMatchPattern, patIdx)
		jfalse := c.prog.emit(OpJumpIfFalse, -1)
		c.prog.emit(OpMatchBindings, patIdx)
		for _, name := range patternBindNames(pat) {
			if c.scope().envMode {
				c.prog.emit(OpStoreName, c.prog.addStrConst(name))
			} else {
				c.prog.emit(OpStoreLocal, c.ensureLocal(name))
			}
		}
		c.compileExpr(arm.Body)
		endJumps = append(endJumps, c.prog.emit(OpJump, -1))
		c.prog.patch(jfalse+1, len(c.prog.Code))
	}
	c.prog.emit(OpPop) // no arm matched: drop the subject, yield unit
	c.prog.emit(OpConstUnit)
	end := len(c.prog.Code)
	for _, j := range endJumps {
		c.prog.patch(j+1, end)
	}
}

func (c *Compiler) lowerPattern(e ast.Expr) *Pattern {
	switch n := e.(type) {
	case *ast.WildcardPattern:
		return &Pattern{Kind: PatternWildcard}
	case *ast.BindPattern:
		return &Pattern{Kind: PatternBind, BindName: n.Name}
	case *ast.NumericLiteral:
		return &Pattern{Kind: PatternLiteralInt, LitInt: int64(n.Value)}
	case *ast.StringLiteral:
		return &Pattern{Kind: PatternLiteralStr, LitStr: n.Value}
	case *ast.BooleanLiteral:
		return &Pattern{Kind: PatternLiteralBool, LitBool: n.Value}
	case *ast.TuplePattern:
		p := &Pattern{Kind: PatternTuple}
		for _, el := range n.Elements {
			p.Fields = append(p.Fields, *c.lowerPattern(el))
		}
		return p
	case *ast.StructPattern:
		p := &Pattern{Kind: PatternStruct, TypeName: n.TypeName}
		for _, f := range n.Fields {
			if ident, ok := f.Key.(*ast.Identifier); ok {
				p.FieldNames = append(p.FieldNames, ident.Symbol)
			}
			p.Fields = append(p.Fields, *c.lowerPattern(f.Value))
		}
		return p
	case *ast.EnumVariantPattern:
		p := &Pattern{Kind: PatternEnumVariant, TypeName: n.TypeName, Variant: n.Variant}
		for _, f := range n.Fields {
			p.Fields = append(p.Fields, *c.lowerPattern(f))
		}
		return p
	default:
		return &Pattern{Kind: PatternWildcard}
	}
}

func patternBindNames(p *Pattern) []string {
	var out []string
	switch p.Kind {
	case PatternBind:
		out = append(out, p.BindName)
	case PatternTuple, PatternStruct, PatternEnumVariant:
		for i := range p.Fields {
			out = append(out, patternBindNames(&p.Fields[i])...)
		}
	}
	return out
}

func (c *Compiler) ensureLocal(name string) int {
	if slot, ok := c.scope().locals[name]; ok {
		return slot
	}
	s := c.scope()
	slot := s.localsMax
	s.locals[name] = slot
	s.localsMax++
	return slot
}
