package runtime_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xu/lexer"
	"xu/parser"
	"xu/runtime"
)

type testFrontend struct{}

func (testFrontend) Compile(path, source string) (*runtime.Program, *runtime.Error) {
	tokens := lexer.Tokenize(source)
	program, err := parser.New(tokens).ParseProgram()
	if err != nil {
		return nil, err
	}
	return runtime.NewCompiler().Compile(program)
}

func newTestRuntime() *runtime.Runtime {
	rt := runtime.NewRuntime()
	rt.SetFrontend(testFrontend{})
	return rt
}

// runSrc executes source and returns the buffered print output.
func runSrc(t *testing.T, source string) string {
	t.Helper()
	rt := newTestRuntime()
	_, err := rt.ExecModule("test.xu", source)
	require.Nil(t, err, "program failed: %v", err)
	return rt.TakeOutput()
}

func runSrcErr(t *testing.T, source string) *runtime.Error {
	t.Helper()
	rt := newTestRuntime()
	_, err := rt.ExecModule("test.xu", source)
	require.NotNil(t, err)
	return err
}

func TestExecPrintln(t *testing.T) {
	assert.Equal(t, "hello\n", runSrc(t, `println("hello")`))
}

func TestExecArithmetic(t *testing.T) {
	out := runSrc(t, `
println(1 + 2 * 3)
println(10 - 4)
println(7 / 2)
println(7 % 3)
println(1 + 0.5)
`)
	assert.Equal(t, "7\n6\n3\n1\n1.5\n", out)
}

func TestExecMixedNumericComparison(t *testing.T) {
	out := runSrc(t, `
println(1 == 1.0)
println((1 + 0.5) < 2)
println(2 <= 2)
println("abc" < "abd")
`)
	assert.Equal(t, "true\ntrue\ntrue\ntrue\n", out)
}

func TestExecDivisionByZero(t *testing.T) {
	err := runSrcErr(t, `var x = 1 / 0`)
	assert.Equal(t, runtime.DiagDivisionByZero, err.Kind)

	err = runSrcErr(t, `var x = 1.0 / 0.0`)
	assert.Equal(t, runtime.DiagDivisionByZero, err.Kind)
}

func TestExecVariablesAndWhile(t *testing.T) {
	out := runSrc(t, `
var total = 0
var i = 0
while (i < 5) {
  total = total + i
  i = i + 1
}
println(total)
`)
	assert.Equal(t, "10\n", out)
}

func TestExecIfElse(t *testing.T) {
	out := runSrc(t, `
var n = 3
if (n > 2) {
  println("big")
} else {
  println("small")
}
`)
	assert.Equal(t, "big\n", out)
}

func TestExecFunctionCall(t *testing.T) {
	out := runSrc(t, `
funct add(a, b) {
  return a + b
}
println(add(2, 3))
`)
	assert.Equal(t, "5\n", out)
}

func TestExecRecursiveFactorial(t *testing.T) {
	out := runSrc(t, `
funct fact(n) {
  if (n <= 1) {
    return 1
  }
  return n * fact(n - 1)
}
println(fact(5))
println(fact(10))
`)
	assert.Equal(t, "120\n3628800\n", out)
}

func TestExecRecursionLimit(t *testing.T) {
	err := runSrcErr(t, `
funct spin(n) {
  return spin(n + 1)
}
spin(0)
`)
	assert.Equal(t, runtime.DiagRecursionLimitExceeded, err.Kind)
}

func TestExecCountingClosure(t *testing.T) {
	out := runSrc(t, `
funct counter() {
  var n = 0
  return funct() {
    n = n + 1
    return n
  }
}
var g = counter()
println(g())
println(g())
println(g())
`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestExecClosureMutationVisibleInOuterFrame(t *testing.T) {
	out := runSrc(t, `
funct make() {
  var n = 0
  funct bump() {
    n = n + 1
  }
  bump()
  bump()
  return n
}
println(make())
`)
	assert.Equal(t, "2\n", out)
}

func TestExecIndependentClosureInstances(t *testing.T) {
	out := runSrc(t, `
funct counter() {
  var n = 0
  return funct() {
    n = n + 1
    return n
  }
}
var a = counter()
var b = counter()
a()
a()
println(a())
println(b())
`)
	assert.Equal(t, "3\n1\n", out)
}

func TestExecListLiteralAndMethods(t *testing.T) {
	out := runSrc(t, `
var xs = [1, 2, 3, 4]
xs.reverse()
println(xs)
xs.reverse()
println(xs)
xs.push(5)
println(xs.length())
println(xs.contains(5))
`)
	assert.Equal(t, "[4, 3, 2, 1]\n[1, 2, 3, 4]\n5\ntrue\n", out)
}

func TestExecDictLiteralMembersAndMethods(t *testing.T) {
	out := runSrc(t, `
var d = {name: "ada", age: 36}
println(d.age)
d.age = 37
println(d.age)
println(d.length())
println(d.has("name"))
`)
	assert.Equal(t, "36\n37\n2\ntrue\n", out)
}

func TestExecDictGetReturnsOption(t *testing.T) {
	out := runSrc(t, `
var d = {a: 1}
println(d.get("a").get())
println(d.get("zzz").none())
`)
	assert.Equal(t, "1\ntrue\n", out)
}

func TestExecForRangeLoop(t *testing.T) {
	out := runSrc(t, `
var total = 0
for range (i, 5) {
  total = total + i
}
println(total)
`)
	assert.Equal(t, "10\n", out)
}

func TestExecForRangeOverList(t *testing.T) {
	out := runSrc(t, `
for range (x, [10, 20, 30]) {
  println(x)
}
`)
	assert.Equal(t, "10\n20\n30\n", out)
}

func TestExecLoopBreakContinue(t *testing.T) {
	out := runSrc(t, `
var total = 0
for range (i, 10) {
  if (i == 3) {
    continue
  }
  if (i == 6) {
    break
  }
  total = total + i
}
println(total)
`)
	// 0+1+2+4+5 = 12
	assert.Equal(t, "12\n", out)
}

func TestExecNestedLoops(t *testing.T) {
	out := runSrc(t, `
var n = 0
for range (i, 3) {
  for range (j, 3) {
    n = n + 1
  }
}
println(n)
`)
	assert.Equal(t, "9\n", out)
}

func TestExecMethodCallInLoopHitsCache(t *testing.T) {
	out := runSrc(t, `
var xs = [1, 2, 3]
var total = 0
for range (i, 10) {
  total = total + xs.length()
}
println(total)
`)
	assert.Equal(t, "30\n", out)
}

func TestExecStringOps(t *testing.T) {
	out := runSrc(t, `
var s = "hello"
println(s + " " + "world")
println(s.to_upper())
println(s.length())
println("a,b,c".split(","))
`)
	assert.Equal(t, "hello world\nHELLO\n5\n[\"a\", \"b\", \"c\"]\n", out)
}

func TestExecTryCatch(t *testing.T) {
	out := runSrc(t, `
try {
  var x = 1 / 0
  println("unreached")
} catch (e) {
  println("caught")
  println(e.contains("DivisionByZero"))
}
println("after")
`)
	assert.Equal(t, "caught\ntrue\nafter\n", out)
}

func TestExecTryCatchNoError(t *testing.T) {
	out := runSrc(t, `
try {
  println("fine")
} catch (e) {
  println("unreached")
}
`)
	assert.Equal(t, "fine\n", out)
}

func TestExecUndefinedIdentifier(t *testing.T) {
	err := runSrcErr(t, `println(ghost)`)
	assert.Equal(t, runtime.DiagUndefinedIdentifier, err.Kind)
}

func TestExecUnknownMethod(t *testing.T) {
	err := runSrcErr(t, `
var xs = [1]
xs.frobnicate()
`)
	assert.Equal(t, runtime.DiagUnsupportedMethod, err.Kind)
}

func TestExecBuiltins(t *testing.T) {
	out := runSrc(t, `
println(abs(0 - 5))
println(max(1, 9, 4))
println(min(3, 2, 8))
println(to_text(42))
println(parse_int("17").get())
`)
	assert.Equal(t, "5\n9\n2\n42\n17\n", out)
}

func TestExecAssertBuiltins(t *testing.T) {
	out := runSrc(t, `
assert(1 < 2)
assert_eq(2 + 2, 4)
println("ok")
`)
	assert.Equal(t, "ok\n", out)

	err := runSrcErr(t, `assert(false, "boom")`)
	assert.Equal(t, runtime.DiagAssertionFailed, err.Kind)
	assert.Contains(t, err.Message, "boom")
}

func TestExecBuilderBuiltins(t *testing.T) {
	out := runSrc(t, `
var b = builder_new_cap(32)
builder_push(b, "a")
builder_push(b, 1)
builder_push(b, true)
println(builder_finalize(b))
`)
	assert.Equal(t, "a1true\n", out)
}

func TestExecGCBuiltinsDuringRun(t *testing.T) {
	rt := newTestRuntime()
	_, err := rt.ExecModule("test.xu", `
var keep = [1, 2, 3]
for range (i, 1000) {
  var s = "temp" + i.to_string()
}
gc()
println(keep.length())
println(heap_stats().get("total").none())
`)
	require.Nil(t, err)
	out := rt.TakeOutput()
	assert.True(t, strings.HasPrefix(out, "3\nfalse\n"), "got %q", out)
}

func TestExecDeterministicSeededRand(t *testing.T) {
	run := func() string {
		rt := newTestRuntime()
		rt.SetRNGSeed(7)
		_, err := rt.ExecModule("t.xu", `
for range (i, 5) {
  println(rand(0, 100))
}
`)
		require.Nil(t, err)
		return rt.TakeOutput()
	}
	assert.Equal(t, run(), run(), "seeded streams repeat")
}

func TestExecSaturatingIntegerOverflow(t *testing.T) {
	out := runSrc(t, `
var big = 140737488355327
println(big + 1)
println(0 - big - 2)
println(big * 2)
`)
	// 2^47-1 saturates on add and mul; -2^47 on sub
	assert.Equal(t, "140737488355327\n-140737488355328\n140737488355327\n", out)
}

func TestExecExactIntegerArithmeticInRange(t *testing.T) {
	out := runSrc(t, `
println(1099511627776 * 64)
println(70368744177664 + 70368744177663)
`)
	assert.Equal(t, "70368744177664\n140737488355327\n", out)
}

func TestExecIncrementOperators(t *testing.T) {
	out := runSrc(t, `
var i = 0
i++
i++
i--
println(i)
`)
	assert.Equal(t, "1\n", out)
}

func TestExecModuleImport(t *testing.T) {
	rt := newTestRuntime()
	rt.SetModuleLoader(srcLoader{files: map[string]string{
		"mathmod": `
funct twice(x) {
  return x * 2
}
var magic = 21
`,
	}})
	rt.SetEntryPath("main.xu")
	_, err := rt.ExecModule("main.xu", `
import "mathmod" as m
println(m.twice(21))
println(m.magic)
`)
	require.Nil(t, err)
	assert.Equal(t, "42\n21\n", rt.TakeOutput())
}

func TestExecCircularImport(t *testing.T) {
	rt := newTestRuntime()
	rt.SetModuleLoader(srcLoader{files: map[string]string{
		"a": `import "b" as b`,
		"b": `import "a" as a`,
	}})
	rt.SetEntryPath("main.xu")
	_, err := rt.ExecModule("main.xu", `import "a" as a`)
	require.NotNil(t, err)
	assert.Equal(t, runtime.DiagCircularImport, err.Kind)
}

type srcLoader struct {
	files map[string]string
}

func (l srcLoader) Resolve(key, baseDir string) (string, string, int64, *runtime.Error) {
	src, ok := l.files[key]
	if !ok {
		return "", "", 0, runtime.NewError(runtime.DiagModuleNotFound, "no module "+key)
	}
	return "/src/" + key, src, 1, nil
}

func TestExecOutputDrains(t *testing.T) {
	rt := newTestRuntime()
	_, err := rt.ExecModule("t.xu", `println("once")`)
	require.Nil(t, err)
	assert.Equal(t, "once\n", rt.TakeOutput())
	assert.Equal(t, "", rt.TakeOutput(), "take drains the buffer")
}

func TestExecValueRenderings(t *testing.T) {
	out := runSrc(t, `
println(2.0 + 0.5)
println(true)
println([1, [2, 3]])
println({a: 1})
`)
	assert.Equal(t, "2.5\ntrue\n[1, [2, 3]]\n{a: 1}\n", out)
}

func TestExecIndexRead(t *testing.T) {
	out := runSrc(t, `
var xs = [10, 20, 30]
println(xs[0])
println(xs[2])
var d = {a: 1, b: 2}
println(d["b"])
println("abc"[1])
`)
	assert.Equal(t, "10\n30\n2\nb\n", out)
}

func TestExecIndexAssignment(t *testing.T) {
	out := runSrc(t, `
var xs = [1, 2, 3]
xs[1] = 9
println(xs)
var d = {a: 1}
d["a"] = 5
d["b"] = 6
println(d.get("a").get())
println(d.get("b").get())
`)
	assert.Equal(t, "[1, 9, 3]\n5\n6\n", out)
}

func TestExecIndexInLoopHitsCache(t *testing.T) {
	out := runSrc(t, `
var d = {total: 0}
for range (i, 10) {
  d["total"] = d["total"] + i
}
println(d["total"])
`)
	assert.Equal(t, "45\n", out)
}

func TestExecIndexOutOfRange(t *testing.T) {
	err := runSrcErr(t, `
var xs = [1]
println(xs[5])
`)
	assert.Equal(t, runtime.DiagIndexOutOfRange, err.Kind)
}

func TestExecIndexMissingKey(t *testing.T) {
	err := runSrcErr(t, `
var d = {a: 1}
println(d["zzz"])
`)
	assert.Equal(t, runtime.DiagKeyNotFound, err.Kind)
}

func TestExecInvalidAssignmentTargetCompileError(t *testing.T) {
	err := runSrcErr(t, `xs.pop() = 1`)
	assert.Equal(t, runtime.DiagSyntaxError, err.Kind)
}
