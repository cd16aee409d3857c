package runtime

// Op is a single bytecode instruction. Operands are packed inline in
// the Code stream as plain ints (Go's int is 64-bit on every platform
// this targets), a flat interleaved op/operand encoding with absolute
// jump targets.
type Op int

const (
	// Stack
	OpConstInt Op = iota
	OpConstFloat
	OpConst
	OpConstBool
	OpConstUnit
	OpPop
	OpDup

	// Names & locals
	OpLoadName
	OpStoreName
	OpLoadLocal
	OpStoreLocal
	OpIncLocal
	OpAddAssignName
	OpAddAssignLocal

	// Arithmetic / logic / compare
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpNot
	OpEq
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe

	// String construction
	OpStrAppend
	OpBuilderNewCap
	OpBuilderAppend
	OpBuilderFinalize

	// Collections
	OpListNew
	OpTupleNew
	OpDictNew
	OpDictInsert
	OpDictMerge
	OpMakeRange

	// Access
	OpGetMember
	OpGetIndex
	OpAssignMember
	OpAssignIndex
	OpDictGetStrConst
	OpDictGetIntConst

	// Types
	OpDefineStruct
	OpDefineEnum
	OpStructInit
	OpStructInitSpread
	OpEnumCtor
	OpEnumCtorN
	OpAssertType

	// Calls & flow
	OpMakeFunction
	OpCall
	OpCallMethod
	OpReturn
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpBreak
	OpContinue

	// Iteration
	OpForEachInit
	OpForEachNext
	OpIterPop

	// Pattern matching
	OpMatchPattern
	OpMatchBindings

	// Control
	OpEnvPush
	OpEnvPop
	OpLocalsPush
	OpLocalsPop
	OpHalt

	// Imports
	OpUse
)

var opNames = map[Op]string{
	OpConstInt: "CONST_INT", OpConstFloat: "CONST_FLOAT", OpConst: "CONST",
	OpConstBool: "CONST_BOOL", OpConstUnit: "CONST_UNIT", OpPop: "POP", OpDup: "DUP",
	OpLoadName: "LOAD_NAME", OpStoreName: "STORE_NAME", OpLoadLocal: "LOAD_LOCAL",
	OpStoreLocal: "STORE_LOCAL", OpIncLocal: "INC_LOCAL",
	OpAddAssignName: "ADD_ASSIGN_NAME", OpAddAssignLocal: "ADD_ASSIGN_LOCAL",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpAnd: "AND", OpOr: "OR", OpNot: "NOT", OpEq: "EQ", OpNe: "NE",
	OpGt: "GT", OpLt: "LT", OpGe: "GE", OpLe: "LE",
	OpStrAppend: "STR_APPEND", OpBuilderNewCap: "BUILDER_NEW_CAP",
	OpBuilderAppend: "BUILDER_APPEND", OpBuilderFinalize: "BUILDER_FINALIZE",
	OpListNew: "LIST_NEW", OpTupleNew: "TUPLE_NEW", OpDictNew: "DICT_NEW",
	OpDictInsert: "DICT_INSERT", OpDictMerge: "DICT_MERGE", OpMakeRange: "MAKE_RANGE",
	OpGetMember: "GET_MEMBER", OpGetIndex: "GET_INDEX", OpAssignMember: "ASSIGN_MEMBER",
	OpAssignIndex: "ASSIGN_INDEX", OpDictGetStrConst: "DICT_GET_STR_CONST",
	OpDictGetIntConst: "DICT_GET_INT_CONST",
	OpDefineStruct:      "DEFINE_STRUCT",
	OpDefineEnum:        "DEFINE_ENUM",
	OpStructInit:        "STRUCT_INIT",
	OpStructInitSpread:  "STRUCT_INIT_SPREAD",
	OpEnumCtor:          "ENUM_CTOR",
	OpEnumCtorN:         "ENUM_CTOR_N",
	OpAssertType:        "ASSERT_TYPE",
	OpMakeFunction:      "MAKE_FUNCTION",
	OpCall:              "CALL",
	OpCallMethod:        "CALL_METHOD",
	OpReturn:            "RETURN",
	OpJump:              "JUMP",
	OpJumpIfFalse:       "JUMP_IF_FALSE",
	OpJumpIfTrue:        "JUMP_IF_TRUE",
	OpBreak:             "BREAK",
	OpContinue:          "CONTINUE",
	OpForEachInit:       "FOR_EACH_INIT",
	OpForEachNext:       "FOR_EACH_NEXT",
	OpIterPop:           "ITER_POP",
	OpMatchPattern:      "MATCH_PATTERN",
	OpMatchBindings:     "MATCH_BINDINGS",
	OpEnvPush:           "ENV_PUSH",
	OpEnvPop:            "ENV_POP",
	OpLocalsPush:        "LOCALS_PUSH",
	OpLocalsPop:         "LOCALS_POP",
	OpHalt:              "HALT",
	OpUse:               "USE",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "?"
}

// CompoundOp tags the operator an AssignMember/AssignIndex carries
// for compound assignment (`+=`, `-=`, ...). CompoundNone means a plain `=`.
type CompoundOp int

const (
	CompoundNone CompoundOp = iota
	CompoundAdd
	CompoundSub
	CompoundMul
	CompoundDiv
)

// ConstKind discriminates the constant-pool entry kinds: Int, Float,
// Str, struct definition, enum definition, bytecode function literal,
// compiled pattern, or a name list.
type ConstKind uint8

const (
	ConstKindInt ConstKind = iota
	ConstKindFloat
	ConstKindStr
	ConstKindStructDef
	ConstKindEnumDef
	ConstKindFuncLit
	ConstKindPattern
	ConstKindNameList
)

// StructDef is a struct type's compiled definition: its name and the
// declared order of its fields.
type StructDef struct {
	Name      string
	TypeHash  uint64
	Fields    []string
}

// EnumDef is an enum type's compiled definition: its name and the
// declared variants, each with its payload field count.
type EnumDef struct {
	Name     string
	TypeHash uint64
	Variants []EnumVariantDef
}

type EnumVariantDef struct {
	Name  string
	Arity int
}

// PatternKind discriminates the match-pattern AST nodes a compiled
// MatchPattern/MatchBindings pair tests and destructures.
type PatternKind uint8

const (
	PatternWildcard PatternKind = iota
	PatternBind
	PatternLiteralInt
	PatternLiteralStr
	PatternLiteralBool
	PatternTuple
	PatternStruct
	PatternEnumVariant
)

// Pattern is the compiled form of one match arm's pattern.
type Pattern struct {
	Kind      PatternKind
	BindName  string
	LitInt    int64
	LitStr    string
	LitBool   bool
	TypeName  string // struct/enum type name
	Variant   string // enum variant name
	Fields    []Pattern
	FieldNames []string // struct field names, parallel to Fields
}

// Const is one constant-pool entry.
type Const struct {
	Kind      ConstKind
	Int       int64
	Float     float64
	Str       string
	StructDef *StructDef
	EnumDef   *EnumDef
	FuncLit   *BytecodeFunction
	Pattern   *Pattern
	Names     []string
}

// Program is a compiled unit: one per module, and one more per
// function literal (stored as a ConstKindFuncLit constant of its
// enclosing program).
type Program struct {
	Code     []int
	Consts   []Const
	LineInfo []int32

	// ICFieldSlots/ICMethodSlots are only meaningful on the entry
	// program of a compiled module: the VM sizes its inline-cache
	// arrays from these totals, shared across every nested function
	// literal compiled alongside it.
	ICFieldSlots  int
	ICMethodSlots int

	// LocalsMax is the top-level slot count; function literals carry
	// theirs on BytecodeFunction instead.
	LocalsMax int

	TryRanges []TryRange

	constIntIdx   map[int64]int
	constFloatIdx map[float64]int
	constStrIdx   map[string]int
}

// TryRange marks a compiled try block's op range; the VM's handler
// stack pushes/pops these as execution enters/leaves them.
type TryRange struct {
	Start, End int
	ErrVar     string
}

func NewProgram() *Program {
	return &Program{
		Code:          make([]int, 0, 256),
		Consts:        make([]Const, 0, 64),
		constIntIdx:   make(map[int64]int),
		constFloatIdx: make(map[float64]int),
		constStrIdx:   make(map[string]int),
	}
}

func (p *Program) emit(op Op, operands ...int) int {
	ip := len(p.Code)
	p.Code = append(p.Code, int(op))
	p.Code = append(p.Code, operands...)
	return ip
}

// patch overwrites a previously emitted jump target operand, used
// once the compiler discovers the real target (end of loop/if).
func (p *Program) patch(operandIP, target int) {
	p.Code[operandIP] = target
}

func (p *Program) addIntConst(v int64) int {
	if idx, ok := p.constIntIdx[v]; ok {
		return idx
	}
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindInt, Int: v})
	p.constIntIdx[v] = idx
	return idx
}

func (p *Program) addFloatConst(v float64) int {
	if idx, ok := p.constFloatIdx[v]; ok {
		return idx
	}
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindFloat, Float: v})
	p.constFloatIdx[v] = idx
	return idx
}

// addStrConst deduplicates by textual value: a string constant is
// emitted once per distinct text, and the VM interns it on first load.
func (p *Program) addStrConst(v string) int {
	if idx, ok := p.constStrIdx[v]; ok {
		return idx
	}
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindStr, Str: v})
	p.constStrIdx[v] = idx
	return idx
}

func (p *Program) addNameListConst(names []string) int {
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindNameList, Names: names})
	return idx
}

func (p *Program) addStructDefConst(def *StructDef) int {
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindStructDef, StructDef: def})
	return idx
}

func (p *Program) addEnumDefConst(def *EnumDef) int {
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindEnumDef, EnumDef: def})
	return idx
}

func (p *Program) addFuncLitConst(fn *BytecodeFunction) int {
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindFuncLit, FuncLit: fn})
	return idx
}

func (p *Program) addPatternConst(pat *Pattern) int {
	idx := len(p.Consts)
	p.Consts = append(p.Consts, Const{Kind: ConstKindPattern, Pattern: pat})
	return idx
}
